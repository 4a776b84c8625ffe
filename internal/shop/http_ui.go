package shop

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).ParseFS(templateFS, "templates/*.html"))

func (s *Server) render(w http.ResponseWriter, name string, data any) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	return nil
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sf, err := LoadStorefront(r.Context(), s.Store)
	if err == nil {
		err = s.render(w, "index.html", sf)
	}
	if err != nil {
		s.logFailure(r, "render index failed", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	price, err := formPrice(r)
	if err == nil {
		_, err = s.Store.CreateProduct(r.Context(), r.PostFormValue("category"), r.PostFormValue("name"), price)
	}
	if err != nil {
		s.logFailure(r, "add product failed", err)
		http.Error(w, "Error adding product", http.StatusInternalServerError)
		return
	}
	redirectHome(w, r)
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, found, err := s.Store.GetProduct(r.Context(), id)
	if err == nil && found {
		err = s.render(w, "edit.html", p)
		if err == nil {
			return
		}
	}
	if err != nil {
		s.logFailure(r, "edit form failed", err, zap.String("id", id))
	}
	redirectHome(w, r)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	patch, err := formPatch(r)
	if err == nil {
		_, _, err = s.Store.UpdateProduct(r.Context(), id, patch)
	}
	if err != nil {
		s.logFailure(r, "update product failed", err, zap.String("id", id))
		http.Error(w, "Error updating product", http.StatusInternalServerError)
		return
	}
	redirectHome(w, r)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.Store.DeleteProduct(r.Context(), id); err != nil {
		s.logFailure(r, "delete product failed", err, zap.String("id", id))
		http.Error(w, "Error deleting product", http.StatusInternalServerError)
		return
	}
	redirectHome(w, r)
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.Store.AddToCart(r.Context(), id); err != nil {
		s.logFailure(r, "add to cart failed", err, zap.String("product_id", id))
		http.Error(w, "Error adding to cart", http.StatusInternalServerError)
		return
	}
	redirectHome(w, r)
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.Store.RemoveFromCart(r.Context(), id); err != nil {
		s.logFailure(r, "remove from cart failed", err, zap.String("entry_id", id))
		http.Error(w, "Error removing from cart", http.StatusInternalServerError)
		return
	}
	redirectHome(w, r)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.ClearCart(r.Context()); err != nil {
		s.logFailure(r, "clear cart failed", err)
		http.Error(w, "Error clearing cart", http.StatusInternalServerError)
		return
	}
	redirectHome(w, r)
}

// formPrice reads the price form field. An empty value is zero.
func formPrice(r *http.Request) (decimal.Decimal, error) {
	return parseFormPrice(r.PostFormValue("price"))
}

func parseFormPrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// formPatch builds a patch from the allow-listed fields present in the form.
func formPatch(r *http.Request) (ProductPatch, error) {
	if err := r.ParseForm(); err != nil {
		return ProductPatch{}, err
	}

	var patch ProductPatch
	if v, ok := r.PostForm["category"]; ok && len(v) > 0 {
		patch.Category = &v[0]
	}
	if v, ok := r.PostForm["name"]; ok && len(v) > 0 {
		patch.Name = &v[0]
	}
	if v, ok := r.PostForm["price"]; ok && len(v) > 0 {
		price, err := parseFormPrice(v[0])
		if err != nil {
			return ProductPatch{}, err
		}
		patch.Price = &price
	}
	return patch, nil
}
