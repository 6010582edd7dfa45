package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate checks c against an order subtotal at time now and returns the
// discount amount. It never changes UsedCount; counting a use is done by the
// order ledger when the order commits.
func Evaluate(c *Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !c.IsActive {
		return decimal.Zero, Reject(c.Code, ErrCouponInactive)
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return decimal.Zero, Reject(c.Code, ErrCouponExpired)
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return decimal.Zero, Reject(c.Code, ErrCouponExhausted)
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return decimal.Zero, Reject(c.Code, ErrMinimumNotMet)
	}

	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountFixed:
		amount = c.Value
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
	default:
		return decimal.Zero, Reject(c.Code, errors.Errorf("unknown discount type %q", c.DiscountType))
	}

	if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
		amount = *c.MaxDiscount
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount.Round(2), nil
}

// Validator validates a coupon code against an order subtotal and returns
// the computed discount.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error)
}

// RepoValidator implements Validator by looking up coupons from a
// Repository and applying Evaluate.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon for code and evaluates it.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error) {
	code = strings.TrimSpace(code)
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, Reject(code, ErrInvalidCoupon)
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	amount, err := Evaluate(c, subtotal, v.now())
	if err != nil {
		return nil, err
	}
	return &Discount{CouponID: c.ID, Code: c.Code, Amount: amount}, nil
}
