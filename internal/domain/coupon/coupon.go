package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, never more than the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalidCoupon matches every coupon rejection, including unknown codes.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponInactive is returned when a coupon has been switched off.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponExhausted is returned when a coupon has used up its usage limit.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrMinimumNotMet is returned when the subtotal is below the coupon minimum.
	ErrMinimumNotMet = errors.New("order minimum not met")
	// ErrNotFound is returned by admin lookups by id.
	ErrNotFound = errors.Wrap(domain.ErrNotFound, "coupon")
)

// InvalidCouponError carries the rejected code and the specific reason.
// It matches ErrInvalidCoupon as well as its Reason under errors.Is.
type InvalidCouponError struct {
	Code   string
	Reason error
}

func (e *InvalidCouponError) Error() string {
	return fmt.Sprintf("coupon %q: %v", e.Code, e.Reason)
}

func (e *InvalidCouponError) Unwrap() error { return e.Reason }

func (e *InvalidCouponError) Is(target error) bool {
	return target == ErrInvalidCoupon
}

// Reject wraps reason into an InvalidCouponError for code.
func Reject(code string, reason error) error {
	return &InvalidCouponError{Code: code, Reason: reason}
}

// Coupon defines a discount and its eligibility constraints.
type Coupon struct {
	ID             uuid.UUID
	Code           string
	Description    string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    *decimal.Decimal
	UsageLimit     *int
	UsedCount      int
	ValidFrom      time.Time
	ValidUntil     time.Time
	IsActive       bool
	CreatedAt      time.Time
}

// Validate checks the admin-editable fields.
func (c *Coupon) Validate() error {
	if c.Code == "" {
		return domain.Invalid("code", "required")
	}
	switch c.DiscountType {
	case DiscountPercentage:
		if c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return domain.Invalid("discount_value", "percentage must not exceed 100")
		}
	case DiscountFixed:
	default:
		return domain.Invalid("discount_type", "must be percentage or fixed")
	}
	if c.Value.IsNegative() {
		return domain.Invalid("discount_value", "must not be negative")
	}
	if c.MinOrderAmount.IsNegative() {
		return domain.Invalid("min_order_amount", "must not be negative")
	}
	if c.MaxDiscount != nil && c.MaxDiscount.IsNegative() {
		return domain.Invalid("max_discount", "must not be negative")
	}
	if c.UsageLimit != nil && *c.UsageLimit < 0 {
		return domain.Invalid("usage_limit", "must not be negative")
	}
	if !c.ValidUntil.After(c.ValidFrom) {
		return domain.Invalid("valid_until", "must be after valid_from")
	}
	return nil
}

// Discount holds the computed discount for an order subtotal.
type Discount struct {
	CouponID uuid.UUID
	Code     string
	Amount   decimal.Decimal
}

// Repository provides lookup and admin mutation of coupons.
type Repository interface {
	// FindByCode looks up a coupon case-insensitively regardless of is_active.
	// Returns ErrInvalidCoupon when no coupon has that code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	List(ctx context.Context, page domain.Page) ([]Coupon, int, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Upsert inserts or refreshes a coupon by code, keeping used_count.
	Upsert(ctx context.Context, c *Coupon) error
}
