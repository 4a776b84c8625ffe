package shop

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// storeHarness opens an empty store for one subtest. danglingID is a well
// formed product id that no product will ever have.
type storeHarness struct {
	open       func(t *testing.T) Store
	danglingID string
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(t, want).Equal(got), "want %s, got %s", want, got)
}

func lineFor(lines []CartLine, productID string) (CartLine, bool) {
	for _, l := range lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

func runStoreContract(t *testing.T, h storeHarness) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := h.open(t)

		p, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "40"))
		require.NoError(t, err)
		require.NotEmpty(t, p.ID)

		got, found, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Shirts", got.Category)
		assert.Equal(t, "Oxford", got.Name)
		assertDecimal(t, "40", got.Price)
	})

	t.Run("get missing is not an error", func(t *testing.T) {
		s := h.open(t)

		_, found, err := s.GetProduct(ctx, h.danglingID)
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.GetProduct(ctx, "not-an-id")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("negative price rejected", func(t *testing.T) {
		s := h.open(t)

		_, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "-1"))
		require.ErrorIs(t, err, ErrInvalidProduct)

		products, err := s.ListProducts(ctx)
		require.NoError(t, err)
		assert.Empty(t, products)

		p, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "10"))
		require.NoError(t, err)
		neg := dec(t, "-5")
		_, _, err = s.UpdateProduct(ctx, p.ID, ProductPatch{Price: &neg})
		require.ErrorIs(t, err, ErrInvalidProduct)
	})

	t.Run("list and search by category", func(t *testing.T) {
		s := h.open(t)

		empty, err := s.ListProducts(ctx)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		for _, p := range []struct{ cat, name string }{
			{"Shirts", "Oxford"}, {"Trousers", "Chino"}, {"Shirts", "Flannel"}, {"shirts", "Lower"},
		} {
			_, err := s.CreateProduct(ctx, p.cat, p.name, dec(t, "10"))
			require.NoError(t, err)
		}

		all, err := s.ListProducts(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		shirts, err := s.ListProductsByCategory(ctx, "Shirts")
		require.NoError(t, err)
		require.Len(t, shirts, 2)
		for _, p := range shirts {
			assert.Equal(t, "Shirts", p.Category)
		}

		none, err := s.ListProductsByCategory(ctx, "Hats")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("partial update keeps other fields", func(t *testing.T) {
		s := h.open(t)

		p, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "40"))
		require.NoError(t, err)

		price := dec(t, "20")
		got, found, err := s.UpdateProduct(ctx, p.ID, ProductPatch{Price: &price})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, "Shirts", got.Category)
		assert.Equal(t, "Oxford", got.Name)
		assertDecimal(t, "20", got.Price)

		name := "Poplin"
		got, found, err = s.UpdateProduct(ctx, p.ID, ProductPatch{Name: &name})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Poplin", got.Name)
		assertDecimal(t, "20", got.Price)

		got, found, err = s.UpdateProduct(ctx, p.ID, ProductPatch{})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Poplin", got.Name)

		_, found, err = s.UpdateProduct(ctx, h.danglingID, ProductPatch{Price: &price})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("repeated add increments one entry", func(t *testing.T) {
		s := h.open(t)

		p, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "40"))
		require.NoError(t, err)

		var first CartEntry
		for i := 1; i <= 3; i++ {
			e, err := s.AddToCart(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, i, e.Quantity)
			if i == 1 {
				first = e
			}
			assert.Equal(t, first.ID, e.ID)
			assert.True(t, first.AddedAt.Equal(e.AddedAt), "addedAt must not change")
		}

		lines, err := s.ListCart(ctx)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, 3, lines[0].Quantity)
		require.NotNil(t, lines[0].Product)
		assert.Equal(t, "Oxford", lines[0].Product.Name)
		assertDecimal(t, "120", lines[0].Subtotal())
	})

	t.Run("concurrent adds collapse to one entry", func(t *testing.T) {
		s := h.open(t)

		p, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "1"))
		require.NoError(t, err)

		const n = 50
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				_, err := s.AddToCart(ctx, p.ID)
				return err
			})
		}
		require.NoError(t, g.Wait())

		lines, err := s.ListCart(ctx)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, n, lines[0].Quantity)

		total, err := s.CartTotal(ctx)
		require.NoError(t, err)
		assertDecimal(t, "50", total)
	})

	t.Run("total sums price times quantity", func(t *testing.T) {
		s := h.open(t)

		total, err := s.CartTotal(ctx)
		require.NoError(t, err)
		assertDecimal(t, "0", total)

		p1, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "10"))
		require.NoError(t, err)
		p2, err := s.CreateProduct(ctx, "Socks", "Wool", dec(t, "5"))
		require.NoError(t, err)

		for _, id := range []string{p1.ID, p1.ID, p2.ID} {
			_, err := s.AddToCart(ctx, id)
			require.NoError(t, err)
		}

		total, err = s.CartTotal(ctx)
		require.NoError(t, err)
		assertDecimal(t, "25", total)
	})

	t.Run("fractional prices stay exact", func(t *testing.T) {
		s := h.open(t)

		p, err := s.CreateProduct(ctx, "Ties", "Silk", dec(t, "19.99"))
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err := s.AddToCart(ctx, p.ID)
			require.NoError(t, err)
		}

		total, err := s.CartTotal(ctx)
		require.NoError(t, err)
		assertDecimal(t, "59.97", total)
	})

	t.Run("delete cascades to cart", func(t *testing.T) {
		s := h.open(t)

		p1, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "10"))
		require.NoError(t, err)
		p2, err := s.CreateProduct(ctx, "Socks", "Wool", dec(t, "5"))
		require.NoError(t, err)
		_, err = s.AddToCart(ctx, p1.ID)
		require.NoError(t, err)
		_, err = s.AddToCart(ctx, p2.ID)
		require.NoError(t, err)

		found, err := s.DeleteProduct(ctx, p1.ID)
		require.NoError(t, err)
		assert.True(t, found)

		lines, err := s.ListCart(ctx)
		require.NoError(t, err)
		_, ok := lineFor(lines, p1.ID)
		assert.False(t, ok)
		_, ok = lineFor(lines, p2.ID)
		assert.True(t, ok)

		total, err := s.CartTotal(ctx)
		require.NoError(t, err)
		assertDecimal(t, "5", total)

		found, err = s.DeleteProduct(ctx, p1.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("dangling entry has nil product and no total", func(t *testing.T) {
		s := h.open(t)

		p, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "10"))
		require.NoError(t, err)
		_, err = s.AddToCart(ctx, p.ID)
		require.NoError(t, err)
		_, err = s.AddToCart(ctx, h.danglingID)
		require.NoError(t, err)

		lines, err := s.ListCart(ctx)
		require.NoError(t, err)
		require.Len(t, lines, 2)

		stale, ok := lineFor(lines, h.danglingID)
		require.True(t, ok)
		assert.Nil(t, stale.Product)
		assertDecimal(t, "0", stale.Subtotal())

		total, err := s.CartTotal(ctx)
		require.NoError(t, err)
		assertDecimal(t, "10", total)
	})

	t.Run("remove and clear", func(t *testing.T) {
		s := h.open(t)

		require.NoError(t, s.RemoveFromCart(ctx, h.danglingID))
		require.NoError(t, s.RemoveFromCart(ctx, "not-an-id"))

		p1, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "10"))
		require.NoError(t, err)
		p2, err := s.CreateProduct(ctx, "Socks", "Wool", dec(t, "5"))
		require.NoError(t, err)
		e1, err := s.AddToCart(ctx, p1.ID)
		require.NoError(t, err)
		_, err = s.AddToCart(ctx, p2.ID)
		require.NoError(t, err)

		require.NoError(t, s.RemoveFromCart(ctx, e1.ID))
		lines, err := s.ListCart(ctx)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, p2.ID, lines[0].ProductID)

		// removal by product id is not removal by entry id
		require.NoError(t, s.RemoveFromCart(ctx, p2.ID))
		lines, err = s.ListCart(ctx)
		require.NoError(t, err)
		assert.Len(t, lines, 1)

		require.NoError(t, s.ClearCart(ctx))
		lines, err = s.ListCart(ctx)
		require.NoError(t, err)
		assert.NotNil(t, lines)
		assert.Empty(t, lines)

		// products survive a cleared cart
		products, err := s.ListProducts(ctx)
		require.NoError(t, err)
		assert.Len(t, products, 2)
	})

	t.Run("oxford walkthrough", func(t *testing.T) {
		s := h.open(t)

		p, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "40"))
		require.NoError(t, err)
		_, err = s.AddToCart(ctx, p.ID)
		require.NoError(t, err)
		_, err = s.AddToCart(ctx, p.ID)
		require.NoError(t, err)

		sf, err := LoadStorefront(ctx, s)
		require.NoError(t, err)
		assert.Len(t, sf.Products, 1)
		require.Len(t, sf.Cart, 1)
		assert.Equal(t, 2, sf.Cart[0].Quantity)
		assertDecimal(t, "80", sf.Total)

		found, err := s.DeleteProduct(ctx, p.ID)
		require.NoError(t, err)
		require.True(t, found)

		sf, err = LoadStorefront(ctx, s)
		require.NoError(t, err)
		assert.Empty(t, sf.Products)
		assert.Empty(t, sf.Cart)
		assertDecimal(t, "0", sf.Total)
	})
}
