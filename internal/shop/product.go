package shop

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// prices and totals travel as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidID      = errors.New("invalid id")
)

type Product struct {
	ID       string          `json:"id"`
	Category string          `json:"category"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
}

// ProductPatch lists the updatable product fields. Nil fields are left as they are.
type ProductPatch struct {
	Category *string          `json:"category,omitempty"`
	Name     *string          `json:"name,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

func (p ProductPatch) Empty() bool {
	return p.Category == nil && p.Name == nil && p.Price == nil
}

func (p ProductPatch) apply(dst *Product) {
	if p.Category != nil {
		dst.Category = *p.Category
	}
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
}

func (p ProductPatch) validate() error {
	if p.Price != nil {
		return validatePrice(*p.Price)
	}
	return nil
}

type CartEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}

// CartLine is a cart entry joined with its product. Product is nil when the
// entry references a product that no longer exists.
type CartLine struct {
	CartEntry
	Product *Product `json:"product"`
}

// Subtotal is price times quantity, zero for a dangling entry.
func (l CartLine) Subtotal() decimal.Decimal {
	if l.Product == nil {
		return decimal.Zero
	}
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return nil
}
