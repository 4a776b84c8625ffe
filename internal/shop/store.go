package shop

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

// Store owns products and cart entries.
//
// Not found is reported through the bool results, never as an error.
// DeleteProduct also removes every cart entry that references the product.
// AddToCart keeps at most one entry per product id and does not check that the
// product exists. CartTotal sums price*quantity over entries whose product
// resolves.
type Store interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	ListProducts(ctx context.Context) ([]Product, error)
	ListProductsByCategory(ctx context.Context, category string) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, bool, error)
	CreateProduct(ctx context.Context, category, name string, price decimal.Decimal) (Product, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error)
	DeleteProduct(ctx context.Context, id string) (bool, error)

	ListCart(ctx context.Context) ([]CartLine, error)
	AddToCart(ctx context.Context, productID string) (CartEntry, error)
	RemoveFromCart(ctx context.Context, entryID string) error
	ClearCart(ctx context.Context) error
	CartTotal(ctx context.Context) (decimal.Decimal, error)
}

// Storefront is everything the index page shows.
type Storefront struct {
	Products []Product
	Cart     []CartLine
	Total    decimal.Decimal
}

func LoadStorefront(ctx context.Context, s Store) (Storefront, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return Storefront{}, fmt.Errorf("list products: %w", err)
	}
	lines, err := s.ListCart(ctx)
	if err != nil {
		return Storefront{}, fmt.Errorf("list cart: %w", err)
	}
	total, err := s.CartTotal(ctx)
	if err != nil {
		return Storefront{}, fmt.Errorf("cart total: %w", err)
	}
	return Storefront{Products: products, Cart: lines, Total: total}, nil
}

// Open connects to the datastore named by rawURL. The scheme picks the
// backend: memory, postgres(ql) or mongodb(+srv).
func Open(ctx context.Context, rawURL string, log *zap.Logger) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse datastore url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		log.Info("datastore opened", zap.String("backend", "memory"))
		return NewMemStore(), nil
	case "postgres", "postgresql":
		s, err := OpenPostgres(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		log.Info("datastore opened", zap.String("backend", "postgres"), zap.String("host", u.Host))
		return s, nil
	case "mongodb", "mongodb+srv":
		s, err := OpenMongo(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		log.Info("datastore opened", zap.String("backend", "mongodb"), zap.String("host", u.Host))
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported datastore scheme %q", u.Scheme)
	}
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
