package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
)

const (
	productColumns = `id, sku, name, slug, description, product_type, category_id, gender,
		price, compare_at_price, cost_price, concentration, notes, is_active, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_active ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	countProductsSQL = `SELECT count(*) FROM products WHERE is_active`

	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	variantColumns       = `id, product_id, sku, name, size, price, cost_price, is_active`
	listVariantsSQL      = `SELECT ` + variantColumns + ` FROM product_variants WHERE product_id = ANY($1) ORDER BY price, name`
	getVariantSQL        = `SELECT ` + variantColumns + ` FROM product_variants WHERE id = $1`
	listImagesSQL        = `SELECT product_id, url, alt_text, is_primary FROM product_images WHERE product_id = ANY($1) ORDER BY sort_order`
	deleteImagesSQL      = `DELETE FROM product_images WHERE product_id = $1`
	deactivateVariantSQL = `UPDATE product_variants SET is_active = FALSE WHERE product_id = $1 AND NOT (id = ANY($2))`

	insertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	updateProductSQL = `UPDATE products SET sku = $2, name = $3, slug = $4, description = $5,
		product_type = $6, category_id = $7, gender = $8, price = $9, compare_at_price = $10,
		cost_price = $11, concentration = $12, notes = $13, is_active = $14, updated_at = $15
		WHERE id = $1`

	upsertVariantSQL = `INSERT INTO product_variants (` + variantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET sku = EXCLUDED.sku, name = EXCLUDED.name, size = EXCLUDED.size,
			price = EXCLUDED.price, cost_price = EXCLUDED.cost_price, is_active = EXCLUDED.is_active`

	insertImageSQL = `INSERT INTO product_images (id, product_id, url, alt_text, is_primary, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)`

	categoryColumns   = `id, name, slug, description, parent_id, is_active, sort_order, created_at`
	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories
		WHERE is_active OR NOT $1 ORDER BY sort_order, name`
	insertCategorySQL = `INSERT INTO categories (` + categoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

var (
	_ catalog.Repository         = (*CatalogRepository)(nil)
	_ catalog.CategoryRepository = (*CatalogRepository)(nil)
)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// List returns a page of active products, newest first.
func (r *CatalogRepository) List(ctx context.Context, page domain.Page) ([]catalog.Product, int, error) {
	total, err := count(ctx, r.pool, countProductsSQL)
	if err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}
	rows, err := r.pool.Query(ctx, listProductsSQL, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	if err := r.attach(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetByID returns a single product with variants and images.
func (r *CatalogRepository) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	products := []catalog.Product{p}
	if err := r.attach(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// GetByIDs returns products matching any of the given IDs, active or not.
func (r *CatalogRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	if err := r.attach(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetVariant returns a single variant.
func (r *CatalogRepository) GetVariant(ctx context.Context, id uuid.UUID) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// Create stores a product with its variants and images.
func (r *CatalogRepository) Create(ctx context.Context, p *catalog.Product) error {
	notes, err := json.Marshal(nonNilNotes(p.Notes))
	if err != nil {
		return fmt.Errorf("marshaling notes: %w", err)
	}
	err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertProductSQL,
			p.ID, p.SKU, p.Name, p.Slug, p.Description, string(p.Type), p.CategoryID, p.Gender,
			p.Price, p.CompareAtPrice, p.CostPrice, p.Concentration, notes, p.IsActive, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return err
		}
		return writeChildren(ctx, tx, p)
	})
	switch {
	case isUniqueViolation(err):
		return domain.Invalid("sku", "sku or slug already in use")
	case isForeignKeyViolation(err):
		return domain.Invalid("category_id", "unknown category")
	case err != nil:
		return fmt.Errorf("creating product %q: %w", p.SKU, err)
	}
	return nil
}

// Update replaces a product's fields, upserts its variants and rewrites its
// images. Variants no longer listed are deactivated, not deleted, since
// carts and purchase orders may still reference them.
func (r *CatalogRepository) Update(ctx context.Context, p *catalog.Product) error {
	notes, err := json.Marshal(nonNilNotes(p.Notes))
	if err != nil {
		return fmt.Errorf("marshaling notes: %w", err)
	}
	err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateProductSQL,
			p.ID, p.SKU, p.Name, p.Slug, p.Description, string(p.Type), p.CategoryID, p.Gender,
			p.Price, p.CompareAtPrice, p.CostPrice, p.Concentration, notes, p.IsActive, p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return catalog.ErrNotFound
		}
		keep := make([]uuid.UUID, 0, len(p.Variants))
		for _, v := range p.Variants {
			keep = append(keep, v.ID)
		}
		if _, err := tx.Exec(ctx, deactivateVariantSQL, p.ID, keep); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteImagesSQL, p.ID); err != nil {
			return err
		}
		return writeChildren(ctx, tx, p)
	})
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return err
	case isUniqueViolation(err):
		return domain.Invalid("sku", "sku or slug already in use")
	case isForeignKeyViolation(err):
		return domain.Invalid("category_id", "unknown category")
	case err != nil:
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	return nil
}

// ListCategories returns categories ordered for display.
func (r *CatalogRepository) ListCategories(ctx context.Context, activeOnly bool) ([]catalog.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Category, error) {
		var c catalog.Category
		err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID, &c.IsActive, &c.SortOrder, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return out, nil
}

// CreateCategory stores a category.
func (r *CatalogRepository) CreateCategory(ctx context.Context, c *catalog.Category) error {
	_, err := r.pool.Exec(ctx, insertCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, c.ParentID, c.IsActive, c.SortOrder, c.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return domain.Invalid("slug", "slug already in use")
	case isForeignKeyViolation(err):
		return catalog.ErrCategoryNotFound
	case err != nil:
		return fmt.Errorf("creating category %q: %w", c.Slug, err)
	}
	return nil
}

func writeChildren(ctx context.Context, tx pgx.Tx, p *catalog.Product) error {
	for _, v := range p.Variants {
		if _, err := tx.Exec(ctx, upsertVariantSQL,
			v.ID, p.ID, v.SKU, v.Name, v.Size, v.Price, v.CostPrice, v.IsActive,
		); err != nil {
			return err
		}
	}
	for i, img := range p.Images {
		if _, err := tx.Exec(ctx, insertImageSQL,
			uuid.New(), p.ID, img.URL, img.AltText, img.IsPrimary, i,
		); err != nil {
			return err
		}
	}
	return nil
}

// attach loads variants and images for products in two batch queries.
func (r *CatalogRepository) attach(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(products))
	byID := make(map[uuid.UUID]*catalog.Product, len(products))
	for i := range products {
		ids[i] = products[i].ID
		byID[products[i].ID] = &products[i]
	}

	rows, err := r.pool.Query(ctx, listVariantsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing variants: %w", err)
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return fmt.Errorf("listing variants: %w", err)
	}
	for _, v := range variants {
		p := byID[v.ProductID]
		p.Variants = append(p.Variants, v)
	}

	rows, err = r.pool.Query(ctx, listImagesSQL, ids)
	if err != nil {
		return fmt.Errorf("listing images: %w", err)
	}
	_, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (struct{}, error) {
		var (
			productID uuid.UUID
			img       catalog.Image
		)
		if err := row.Scan(&productID, &img.URL, &img.AltText, &img.IsPrimary); err != nil {
			return struct{}{}, err
		}
		p := byID[productID]
		p.Images = append(p.Images, img)
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("listing images: %w", err)
	}
	return nil
}

func nonNilNotes(n []catalog.Note) []catalog.Note {
	if n == nil {
		return []catalog.Note{}
	}
	return n
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p     catalog.Product
		typ   string
		notes []byte
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Slug, &p.Description, &typ, &p.CategoryID, &p.Gender,
		&p.Price, &p.CompareAtPrice, &p.CostPrice, &p.Concentration, &notes, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Type = catalog.ProductType(typ)
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &p.Notes); err != nil {
			return p, fmt.Errorf("decoding notes of %q: %w", p.ID, err)
		}
	}
	return p, nil
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Size, &v.Price, &v.CostPrice, &v.IsActive)
	return v, err
}
