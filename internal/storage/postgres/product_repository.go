package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductRepository — каталог и остатки в PostgreSQL.
// Реализует domain.ProductRepository и domain.StockStore.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{db: store.DB()}
}

func (r *ProductRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	images, err := json.Marshal(append([]string{}, product.Images...))
	if err != nil {
		return fmt.Errorf("encode product images: %w", err)
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (
				id, name, brand, category, description, image, images,
				price_minor, count_in_stock, active, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`,
			product.ID, product.Name, product.Brand, string(product.Category), product.Description,
			product.Image, images, product.PriceMinor, product.CountInStock, product.Active,
			product.CreatedAt, product.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrProductExists
			}
			if isCheckViolation(err) {
				return fmt.Errorf("%w: %v", domain.ErrStockNegative, err)
			}
			return fmt.Errorf("insert product: %w", err)
		}

		for i, v := range product.Variants {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO product_variants (product_id, position, size, color, stock)
				VALUES ($1,$2,$3,$4,$5)
			`, product.ID, i, v.Size, v.Color, v.Stock); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("duplicate variant %s/%s: %w", v.Size, v.Color, domain.ErrProductExists)
				}
				return fmt.Errorf("insert product variant: %w", err)
			}
		}
		return nil
	})
}

func (r *ProductRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		p         domain.Product
		category  string
		imagesRaw []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, brand, category, description, image, images,
		       price_minor, count_in_stock, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&p.ID, &p.Name, &p.Brand, &category, &p.Description, &p.Image, &imagesRaw,
		&p.PriceMinor, &p.CountInStock, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	p.Category = domain.Category(category)
	if len(imagesRaw) > 0 {
		if err := json.Unmarshal(imagesRaw, &p.Images); err != nil {
			return domain.Product{}, fmt.Errorf("decode product images: %w", err)
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT size, color, stock
		FROM product_variants
		WHERE product_id = $1
		ORDER BY position ASC
	`, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("load product variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.Size, &v.Color, &v.Stock); err != nil {
			return domain.Product{}, fmt.Errorf("scan product variant: %w", err)
		}
		p.Variants = append(p.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return domain.Product{}, fmt.Errorf("iterate product variants: %w", err)
	}

	return p, nil
}

// DecrementStock списывает остаток одним условным UPDATE: строка меняется,
// только если stock >= qty, поэтому два конкурентных списания последней
// единицы не проходят оба.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID, size, color string, qty int) error {
	return r.adjust(ctx, productID, size, color, -qty)
}

// IncrementStock возвращает qty на склад.
func (r *ProductRepository) IncrementStock(ctx context.Context, productID, size, color string, qty int) error {
	return r.adjust(ctx, productID, size, color, qty)
}

func (r *ProductRepository) adjust(ctx context.Context, productID, size, color string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		hasVariants, err := productHasVariantsTx(ctx, tx, productID)
		if err != nil {
			return err
		}

		var res sql.Result
		if hasVariants {
			res, err = tx.ExecContext(ctx, `
				UPDATE product_variants
				SET stock = stock + $4
				WHERE product_id = $1
				  AND LOWER(size) = LOWER(TRIM($2))
				  AND LOWER(color) = LOWER(TRIM($3))
				  AND stock + $4 >= 0
			`, productID, size, color, delta)
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE products
				SET count_in_stock = count_in_stock + $2
				WHERE id = $1
				  AND count_in_stock + $2 >= 0
			`, productID, delta)
		}
		if err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("stock rows affected: %w", err)
		}
		if affected > 0 {
			_, err = tx.ExecContext(ctx, `UPDATE products SET updated_at = $2 WHERE id = $1`, productID, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("touch product: %w", err)
			}
			return nil
		}

		if hasVariants {
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM product_variants
					WHERE product_id = $1 AND LOWER(size) = LOWER(TRIM($2)) AND LOWER(color) = LOWER(TRIM($3))
				)
			`, productID, size, color).Scan(&exists); err != nil {
				return fmt.Errorf("check variant exists: %w", err)
			}
			if !exists {
				return domain.ErrVariantNotFound
			}
		}
		return domain.ErrInsufficientStock
	})
}

func productHasVariantsTx(ctx context.Context, tx *sql.Tx, productID string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM product_variants WHERE product_id = p.id)
		FROM products p
		WHERE p.id = $1
	`, productID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrProductNotFound
		}
		return false, fmt.Errorf("check product variants: %w", err)
	}
	return count > 0, nil
}

var (
	_ domain.ProductRepository = (*ProductRepository)(nil)
	_ domain.StockStore        = (*ProductRepository)(nil)
)
