package shop

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"Emporium/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	StaticDir string

	// Guard wraps the API write routes. Nil leaves them open.
	Guard func(http.Handler) http.Handler
	// Auth is mounted under /api/auth when set.
	Auth http.Handler
}

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	metricsOn := deps.MetricsEnabled && deps.Registry != nil
	if deps.MetricsEnabled && deps.Registry == nil && deps.Log != nil {
		deps.Log.Warn("metrics enabled but Registry is nil")
	}

	setupMiddleware(r, deps)
	setupRoutes(r, s, deps, metricsOn)

	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))
	r.Use(kit.Tracing(deps.Service, "/healthz", "/readyz", "/metrics"))

	if deps.Registry != nil {
		metrics := kit.NewMetrics(deps.Registry)
		r.Use(metrics.Middleware(deps.Service, kit.RoutePatternOrPath))
	}
}

func setupRoutes(r *chi.Mux, s *Server, deps HTTPDeps, metricsOn bool) {
	r.Get("/healthz", healthz)
	r.Get("/readyz", s.handleReady)

	r.Get("/", s.handleIndex)
	r.Post("/add-product", s.handleAddProduct)
	r.Get("/edit-product/{id}", s.handleEditForm)
	r.Post("/update-product/{id}", s.handleUpdateProduct)
	r.Post("/delete-product/{id}", s.handleDeleteProduct)
	r.Post("/add-to-cart/{id}", s.handleAddToCart)
	r.Post("/remove-from-cart/{id}", s.handleRemoveFromCart)
	r.Post("/clear-cart", s.handleClearCart)

	r.Route("/api", func(api chi.Router) {
		api.Get("/products", s.apiListProducts)
		api.Get("/products/{id}", s.apiGetProduct)
		api.Get("/products/search/{category}", s.apiSearchProducts)
		api.Get("/cart", s.apiCart)

		api.Group(func(w chi.Router) {
			if deps.Guard != nil {
				w.Use(deps.Guard)
			}
			w.Post("/products", s.apiCreateProduct)
			w.Put("/products/{id}", s.apiUpdateProduct)
			w.Delete("/products/{id}", s.apiDeleteProduct)
		})

		if deps.Auth != nil {
			api.Mount("/auth", deps.Auth)
		}
	})

	if metricsOn {
		r.With(kit.MetricsAuth(deps.MetricsToken)).Handle(
			"/metrics",
			promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
		)
	}

	if deps.StaticDir != "" {
		r.NotFound(http.FileServer(http.Dir(deps.StaticDir)).ServeHTTP)
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
