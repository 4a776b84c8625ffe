package shop

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memProduct struct {
	Product
	seq uint64
}

// MemStore keeps everything behind one lock, so the cart upsert and the
// cascading delete are atomic.
type MemStore struct {
	mu       sync.RWMutex
	seq      uint64
	products map[string]memProduct
	entries  map[string]CartEntry
	byProd   map[string]string // product id -> entry id
	now      func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: map[string]memProduct{},
		entries:  map[string]CartEntry{},
		byProd:   map[string]string{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Close(ctx context.Context) error { return nil }

func (s *MemStore) ListProducts(ctx context.Context) ([]Product, error) {
	return s.filterProducts(func(Product) bool { return true }), nil
}

func (s *MemStore) ListProductsByCategory(ctx context.Context, category string) ([]Product, error) {
	return s.filterProducts(func(p Product) bool { return p.Category == category }), nil
}

func (s *MemStore) filterProducts(keep func(Product) bool) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]memProduct, 0, len(s.products))
	for _, p := range s.products {
		if keep(p.Product) {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]Product, 0, len(rows))
	for _, p := range rows {
		out = append(out, p.Product)
	}
	return out
}

func (s *MemStore) GetProduct(ctx context.Context, id string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	return p.Product, ok, nil
}

func (s *MemStore) CreateProduct(ctx context.Context, category, name string, price decimal.Decimal) (Product, error) {
	if err := validatePrice(price); err != nil {
		return Product{}, err
	}

	p := Product{
		ID:       "p_" + uuid.NewString(),
		Category: category,
		Name:     name,
		Price:    price,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.products[p.ID] = memProduct{Product: p, seq: s.seq}
	return p, nil
}

func (s *MemStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error) {
	if err := patch.validate(); err != nil {
		return Product{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, false, nil
	}
	patch.apply(&p.Product)
	s.products[id] = p
	return p.Product, true, nil
}

func (s *MemStore) DeleteProduct(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.products[id]
	delete(s.products, id)

	if entryID, has := s.byProd[id]; has {
		delete(s.entries, entryID)
		delete(s.byProd, id)
	}
	return ok, nil
}

func (s *MemStore) ListCart(ctx context.Context) ([]CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CartLine, 0, len(s.entries))
	for _, e := range s.entries {
		line := CartLine{CartEntry: e}
		if p, ok := s.products[e.ProductID]; ok {
			prod := p.Product
			line.Product = &prod
		}
		out = append(out, line)
	}
	sortLines(out)
	return out, nil
}

func (s *MemStore) AddToCart(ctx context.Context, productID string) (CartEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.byProd[productID]; ok {
		e := s.entries[entryID]
		e.Quantity++
		s.entries[entryID] = e
		return e, nil
	}

	e := CartEntry{
		ID:        "c_" + uuid.NewString(),
		ProductID: productID,
		Quantity:  1,
		AddedAt:   s.now(),
	}
	s.entries[e.ID] = e
	s.byProd[productID] = e.ID
	return e, nil
}

func (s *MemStore) RemoveFromCart(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[entryID]; ok {
		delete(s.entries, entryID)
		delete(s.byProd, e.ProductID)
	}
	return nil
}

func (s *MemStore) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = map[string]CartEntry{}
	s.byProd = map[string]string{}
	return nil
}

func (s *MemStore) CartTotal(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, e := range s.entries {
		p, ok := s.products[e.ProductID]
		if !ok {
			continue
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(e.Quantity))))
	}
	return total, nil
}

func sortLines(lines []CartLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ID < lines[j].ID
	})
}
