package shop

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const (
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

type StoreMetrics struct {
	Operations *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
}

func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emporium_store_operations_total",
				Help: "Store operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emporium_store_operation_duration_seconds",
				Help:    "Store operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(m.Operations, m.Latency)
	return m
}

// InstrumentedStore records a counter and a latency sample for every call.
type InstrumentedStore struct {
	Store
	m *StoreMetrics
}

func Instrument(s Store, m *StoreMetrics) *InstrumentedStore {
	return &InstrumentedStore{Store: s, m: m}
}

func (s *InstrumentedStore) observe(op string, start time.Time, found bool, err error) {
	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeError
	case !found:
		outcome = outcomeNotFound
	}
	s.m.Operations.WithLabelValues(op, outcome).Inc()
	s.m.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStore) ListProducts(ctx context.Context) ([]Product, error) {
	start := time.Now()
	out, err := s.Store.ListProducts(ctx)
	s.observe("list_products", start, true, err)
	return out, err
}

func (s *InstrumentedStore) ListProductsByCategory(ctx context.Context, category string) ([]Product, error) {
	start := time.Now()
	out, err := s.Store.ListProductsByCategory(ctx, category)
	s.observe("list_products_by_category", start, true, err)
	return out, err
}

func (s *InstrumentedStore) GetProduct(ctx context.Context, id string) (Product, bool, error) {
	start := time.Now()
	p, found, err := s.Store.GetProduct(ctx, id)
	s.observe("get_product", start, found, err)
	return p, found, err
}

func (s *InstrumentedStore) CreateProduct(ctx context.Context, category, name string, price decimal.Decimal) (Product, error) {
	start := time.Now()
	p, err := s.Store.CreateProduct(ctx, category, name, price)
	s.observe("create_product", start, true, err)
	return p, err
}

func (s *InstrumentedStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error) {
	start := time.Now()
	p, found, err := s.Store.UpdateProduct(ctx, id, patch)
	s.observe("update_product", start, found, err)
	return p, found, err
}

func (s *InstrumentedStore) DeleteProduct(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	found, err := s.Store.DeleteProduct(ctx, id)
	s.observe("delete_product", start, found, err)
	return found, err
}

func (s *InstrumentedStore) ListCart(ctx context.Context) ([]CartLine, error) {
	start := time.Now()
	out, err := s.Store.ListCart(ctx)
	s.observe("list_cart", start, true, err)
	return out, err
}

func (s *InstrumentedStore) AddToCart(ctx context.Context, productID string) (CartEntry, error) {
	start := time.Now()
	e, err := s.Store.AddToCart(ctx, productID)
	s.observe("add_to_cart", start, true, err)
	return e, err
}

func (s *InstrumentedStore) RemoveFromCart(ctx context.Context, entryID string) error {
	start := time.Now()
	err := s.Store.RemoveFromCart(ctx, entryID)
	s.observe("remove_from_cart", start, true, err)
	return err
}

func (s *InstrumentedStore) ClearCart(ctx context.Context) error {
	start := time.Now()
	err := s.Store.ClearCart(ctx)
	s.observe("clear_cart", start, true, err)
	return err
}

func (s *InstrumentedStore) CartTotal(ctx context.Context) (decimal.Decimal, error) {
	start := time.Now()
	total, err := s.Store.CartTotal(ctx)
	s.observe("cart_total", start, true, err)
	return total, err
}
