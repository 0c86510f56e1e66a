package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"quickcart/internal/domain"
)

type productRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) ProductRepo {
	return &productRepo{db: db}
}

const productColumns = `id, name, description, images, price, discount, stock`

func (r *productRepo) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("products.FindByID: %w", err)
	}
	return p, nil
}

func (r *productRepo) DecrementStock(ctx context.Context, id string, quantity int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET stock = GREATEST(stock - $1, 0) WHERE id = $2 AND stock IS NOT NULL`,
		quantity, id,
	)
	if err != nil {
		return fmt.Errorf("products.DecrementStock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("products.DecrementStock: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("products.DecrementStock: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (r *productRepo) Search(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("products.Search: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("products.Search: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *productRepo) Upsert(ctx context.Context, p domain.Product) error {
	images, err := json.Marshal(p.Images)
	if err != nil {
		return fmt.Errorf("products.Upsert: %w", err)
	}
	var stock sql.NullInt64
	if p.Stock != nil {
		stock = sql.NullInt64{Int64: *p.Stock, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, images, price, discount, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			images = EXCLUDED.images,
			price = EXCLUDED.price,
			discount = EXCLUDED.discount,
			stock = EXCLUDED.stock`,
		p.ID, p.Name, p.Description, images, p.Price, p.Discount, stock,
	)
	if err != nil {
		return fmt.Errorf("products.Upsert: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p      domain.Product
		images []byte
		stock  sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &images, &p.Price, &p.Discount, &stock); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if stock.Valid {
		p.Stock = &stock.Int64
	}
	return &p, nil
}
