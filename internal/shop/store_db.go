package shop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

const pgCheckViolation = "23514"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	category   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	price      NUMERIC NOT NULL DEFAULT 0 CHECK (price >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS products_category_idx ON products (category);

CREATE TABLE IF NOT EXISTS cart_entries (
	id         TEXT PRIMARY KEY,
	product_id TEXT NOT NULL UNIQUE,
	quantity   INTEGER NOT NULL DEFAULT 1 CHECK (quantity > 0),
	added_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore keeps cart_entries.product_id as a plain column with no
// foreign key: the cart may reference products that do not exist.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a pool through the pgx driver, checks connectivity and
// applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := NewPostgresStore(db)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return withTimeout(ctx, 10*time.Second, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx, `
		SELECT id, category, name, price
		FROM products
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *PostgresStore) ListProductsByCategory(ctx context.Context, category string) ([]Product, error) {
	return s.queryProducts(ctx, `
		SELECT id, category, name, price
		FROM products
		WHERE category = $1
		ORDER BY created_at ASC, id ASC
	`, category)
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			var p Product
			if err := rows.Scan(&p.ID, &p.Category, &p.Name, &p.Price); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (Product, bool, error) {
	var p Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, category, name, price
			FROM products
			WHERE id = $1
		`, id).Scan(&p.ID, &p.Category, &p.Name, &p.Price)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, fmt.Errorf("get product: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, category, name string, price decimal.Decimal) (Product, error) {
	if err := validatePrice(price); err != nil {
		return Product{}, err
	}

	p := Product{
		ID:       "p_" + uuid.NewString(),
		Category: category,
		Name:     name,
		Price:    price,
	}

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO products (id, category, name, price)
			VALUES ($1, $2, $3, $4)
		`, p.ID, p.Category, p.Name, p.Price)
		return err
	})
	if err != nil {
		return Product{}, mapPgError("create product", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error) {
	if err := patch.validate(); err != nil {
		return Product{}, false, err
	}

	price := decimal.NullDecimal{}
	if patch.Price != nil {
		price = decimal.NullDecimal{Decimal: *patch.Price, Valid: true}
	}

	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			UPDATE products
			SET category = COALESCE($2, category),
			    name     = COALESCE($3, name),
			    price    = COALESCE($4, price)
			WHERE id = $1
			RETURNING id, category, name, price
		`, id, nullString(patch.Category), nullString(patch.Name), price).
			Scan(&p.ID, &p.Category, &p.Name, &p.Price)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, mapPgError("update product", err)
	}
	return p, true, nil
}

// DeleteProduct removes the product and its cart entries in one transaction.
// Entries for the id are removed even when the product row is already gone.
func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) (bool, error) {
	var found bool

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		found = n > 0

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_entries WHERE product_id = $1`, id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return found, nil
}

func (s *PostgresStore) ListCart(ctx context.Context) ([]CartLine, error) {
	var out []CartLine

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT c.id, c.product_id, c.quantity, c.added_at,
			       p.id, p.category, p.name, p.price
			FROM cart_entries c
			LEFT JOIN products p ON p.id = c.product_id
			ORDER BY c.added_at ASC, c.id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]CartLine, 0, 8)
		for rows.Next() {
			var (
				l                CartLine
				pid, pcat, pname sql.NullString
				pprice           decimal.NullDecimal
			)
			if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity, &l.AddedAt, &pid, &pcat, &pname, &pprice); err != nil {
				return err
			}
			if pid.Valid {
				l.Product = &Product{ID: pid.String, Category: pcat.String, Name: pname.String, Price: pprice.Decimal}
			}
			l.AddedAt = l.AddedAt.UTC()
			out = append(out, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	return out, nil
}

// AddToCart is a single upsert against the unique product_id index, so
// concurrent adds of one product never create a second entry.
func (s *PostgresStore) AddToCart(ctx context.Context, productID string) (CartEntry, error) {
	var e CartEntry

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO cart_entries (id, product_id, quantity, added_at)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (product_id) DO UPDATE
			SET quantity = cart_entries.quantity + 1
			RETURNING id, product_id, quantity, added_at
		`, "c_"+uuid.NewString(), productID, time.Now().UTC()).
			Scan(&e.ID, &e.ProductID, &e.Quantity, &e.AddedAt)
	})
	if err != nil {
		return CartEntry{}, fmt.Errorf("add to cart: %w", err)
	}
	e.AddedAt = e.AddedAt.UTC()
	return e, nil
}

func (s *PostgresStore) RemoveFromCart(ctx context.Context, entryID string) error {
	return s.exec(ctx, "remove from cart", `DELETE FROM cart_entries WHERE id = $1`, entryID)
}

func (s *PostgresStore) ClearCart(ctx context.Context) error {
	return s.exec(ctx, "clear cart", `DELETE FROM cart_entries`)
}

func (s *PostgresStore) CartTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(p.price * c.quantity), 0)
			FROM cart_entries c
			JOIN products p ON p.id = c.product_id
		`).Scan(&total)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("cart total: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return fmt.Errorf("%s: %w", op, ErrInvalidProduct)
	}
	return fmt.Errorf("%s: %w", op, err)
}
