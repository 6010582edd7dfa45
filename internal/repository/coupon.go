package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, discount_type, discount_value, min_order_amount,
		max_discount, usage_limit, used_count, valid_from, valid_until, is_active, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`
	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	listCouponsSQL     = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	countCouponsSQL    = `SELECT count(*) FROM coupons`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	updateCouponSQL = `UPDATE coupons SET code = $2, description = $3, discount_type = $4,
		discount_value = $5, min_order_amount = $6, max_discount = $7, usage_limit = $8,
		valid_from = $9, valid_until = $10, is_active = $11
		WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12)
		ON CONFLICT ((UPPER(code))) DO UPDATE SET description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount, max_discount = EXCLUDED.max_discount,
			usage_limit = EXCLUDED.usage_limit, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, is_active = EXCLUDED.is_active
		RETURNING id, used_count`

	// consumeCouponSQL counts one use unless the limit is already reached.
	consumeCouponSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive), whether active
// or not. Returns coupon.ErrInvalidCoupon when no coupon has that code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// GetByID returns a coupon.
func (r *CouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return &c, nil
}

// List returns a page of coupons, newest first.
func (r *CouponRepository) List(ctx context.Context, page domain.Page) ([]coupon.Coupon, int, error) {
	total, err := count(ctx, r.pool, countCouponsSQL)
	if err != nil {
		return nil, 0, fmt.Errorf("counting coupons: %w", err)
	}
	rows, err := r.pool.Query(ctx, listCouponsSQL, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	return out, total, nil
}

// Create stores a new coupon.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, c.Description, string(c.DiscountType), c.Value, c.MinOrderAmount,
		c.MaxDiscount, c.UsageLimit, c.UsedCount, c.ValidFrom, c.ValidUntil, c.IsActive, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.Invalid("code", "coupon code already exists")
	}
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update overwrites the admin-editable fields. used_count is never touched.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Description, string(c.DiscountType), c.Value, c.MinOrderAmount,
		c.MaxDiscount, c.UsageLimit, c.ValidFrom, c.ValidUntil, c.IsActive,
	)
	if isUniqueViolation(err) {
		return domain.Invalid("code", "coupon code already exists")
	}
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon. Orders keep their copy of the code.
func (r *CouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Upsert inserts c or refreshes the coupon with the same code. The existing
// id and used_count are written back into c.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, upsertCouponSQL,
		c.ID, c.Code, c.Description, string(c.DiscountType), c.Value, c.MinOrderAmount,
		c.MaxDiscount, c.UsageLimit, c.ValidFrom, c.ValidUntil, c.IsActive, c.CreatedAt,
	).Scan(&c.ID, &c.UsedCount)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &typ, &c.Value, &c.MinOrderAmount,
		&c.MaxDiscount, &c.UsageLimit, &c.UsedCount, &c.ValidFrom, &c.ValidUntil, &c.IsActive, &c.CreatedAt,
	)
	c.DiscountType = coupon.DiscountType(typ)
	return c, err
}
