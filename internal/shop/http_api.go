package shop

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Emporium/pkg/kit"
)

const (
	msgServerError    = "Server Error"
	msgNotFound       = "Product not found"
	msgMissingFields  = "Please provide all fields"
	msgInvalidBody    = "Invalid request body"
	msgInvalidPrice   = "Invalid price"
	msgInvalidCat     = "Invalid category"
	msgProductDeleted = "Product deleted successfully"
	productFieldCat   = "category"
	productFieldName  = "name"
	productFieldPrice = "price"
)

func (s *Server) apiServerError(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	s.logFailure(r, msg, err, fields...)
	kit.WriteError(w, r, http.StatusInternalServerError, msgServerError)
}

func (s *Server) apiListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.ListProducts(r.Context())
	if err != nil {
		s.apiServerError(w, r, "list products failed", err)
		return
	}
	kit.WriteList(w, http.StatusOK, len(products), products)
}

func (s *Server) apiSearchProducts(w http.ResponseWriter, r *http.Request) {
	category, err := pathParam(r, "category")
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, msgInvalidCat)
		return
	}

	products, err := s.Store.ListProductsByCategory(r.Context(), category)
	if err != nil {
		s.apiServerError(w, r, "search products failed", err, zap.String("category", category))
		return
	}
	kit.WriteList(w, http.StatusOK, len(products), products)
}

func (s *Server) apiGetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, found, err := s.Store.GetProduct(r.Context(), id)
	if err != nil {
		s.apiServerError(w, r, "get product failed", err, zap.String("id", id))
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	kit.WriteData(w, http.StatusOK, p)
}

func (s *Server) apiCreateProduct(w http.ResponseWriter, r *http.Request) {
	in, err := decodeProductInput(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if !in.complete() {
		kit.WriteError(w, r, http.StatusBadRequest, msgMissingFields)
		return
	}

	price, err := decimal.NewFromString(strings.TrimSpace(*in.Price))
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, msgInvalidPrice)
		return
	}
	// a JSON number 0 is falsy and fails the presence check; the string "0" is not
	if in.PriceIsNumber && price.IsZero() {
		kit.WriteError(w, r, http.StatusBadRequest, msgMissingFields)
		return
	}

	p, err := s.Store.CreateProduct(r.Context(), *in.Category, *in.Name, price)
	if errors.Is(err, ErrInvalidProduct) {
		kit.WriteError(w, r, http.StatusBadRequest, msgInvalidPrice)
		return
	}
	if err != nil {
		s.apiServerError(w, r, "create product failed", err)
		return
	}
	kit.WriteData(w, http.StatusCreated, p)
}

func (s *Server) apiUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	in, err := decodeProductInput(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, msgInvalidBody)
		return
	}
	patch, err := in.patch()
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, msgInvalidPrice)
		return
	}

	p, found, err := s.Store.UpdateProduct(r.Context(), id, patch)
	if errors.Is(err, ErrInvalidProduct) {
		kit.WriteError(w, r, http.StatusBadRequest, msgInvalidPrice)
		return
	}
	if err != nil {
		s.apiServerError(w, r, "update product failed", err, zap.String("id", id))
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	kit.WriteData(w, http.StatusOK, p)
}

func (s *Server) apiDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := s.Store.DeleteProduct(r.Context(), id)
	if err != nil {
		s.apiServerError(w, r, "delete product failed", err, zap.String("id", id))
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	kit.WriteJSON(w, http.StatusOK, kit.Envelope{
		Success: true,
		Data:    map[string]any{},
		Message: msgProductDeleted,
	})
}

func (s *Server) apiCart(w http.ResponseWriter, r *http.Request) {
	lines, err := s.Store.ListCart(r.Context())
	if err != nil {
		s.apiServerError(w, r, "list cart failed", err)
		return
	}
	total, err := s.Store.CartTotal(r.Context())
	if err != nil {
		s.apiServerError(w, r, "cart total failed", err)
		return
	}

	n := len(lines)
	kit.WriteJSON(w, http.StatusOK, kit.Envelope{
		Success: true,
		Count:   &n,
		Total:   total,
		Data:    lines,
	})
}

// productInput holds the allow-listed product fields of a request body.
// A nil field was absent or null.
type productInput struct {
	Category *string
	Name     *string
	Price    *string

	// PriceIsNumber is set when price arrived as a JSON number.
	PriceIsNumber bool
}

func (in productInput) complete() bool {
	return nonEmpty(in.Category) && nonEmpty(in.Name) && nonEmpty(in.Price)
}

func (in productInput) patch() (ProductPatch, error) {
	patch := ProductPatch{Category: in.Category, Name: in.Name}
	if in.Price != nil {
		price, err := decimal.NewFromString(strings.TrimSpace(*in.Price))
		if err != nil {
			return ProductPatch{}, err
		}
		patch.Price = &price
	}
	return patch, nil
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// decodeProductInput accepts a JSON object or an urlencoded form. Keys other
// than category, name and price are ignored.
func decodeProductInput(w http.ResponseWriter, r *http.Request) (productInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/json" {
		if err := r.ParseForm(); err != nil {
			return productInput{}, err
		}
		var in productInput
		in.Category = formField(r, productFieldCat)
		in.Name = formField(r, productFieldName)
		in.Price = formField(r, productFieldPrice)
		return in, nil
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return productInput{}, nil
		}
		return productInput{}, err
	}

	var in productInput
	var err error
	if in.Category, err = jsonField(raw, productFieldCat); err != nil {
		return productInput{}, err
	}
	if in.Name, err = jsonField(raw, productFieldName); err != nil {
		return productInput{}, err
	}
	if in.Price, err = jsonField(raw, productFieldPrice); err != nil {
		return productInput{}, err
	}
	in.PriceIsNumber = in.Price != nil && isJSONNumber(raw[productFieldPrice])
	return in, nil
}

func formField(r *http.Request, key string) *string {
	v, ok := r.PostForm[key]
	if !ok || len(v) == 0 {
		return nil
	}
	return &v[0]
}

// pathParam returns the decoded route parameter. chi matches on the raw path
// when the request carried escapes the default encoding would not produce
// (such as %2F), leaving the parameter escaped.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func isJSONNumber(msg json.RawMessage) bool {
	msg = bytes.TrimSpace(msg)
	return len(msg) > 0 && (msg[0] == '-' || (msg[0] >= '0' && msg[0] <= '9'))
}

// jsonField reads a string or number member as text. Null is treated as absent.
func jsonField(raw map[string]json.RawMessage, key string) (*string, error) {
	msg, ok := raw[key]
	if !ok {
		return nil, nil
	}
	msg = bytes.TrimSpace(msg)
	switch {
	case len(msg) == 0 || string(msg) == "null":
		return nil, nil
	case msg[0] == '"':
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case isJSONNumber(msg):
		s := string(msg)
		return &s, nil
	case string(msg) == "false":
		return nil, nil
	default:
		return nil, fmt.Errorf("field %s: unsupported value %s", key, msg)
	}
}
