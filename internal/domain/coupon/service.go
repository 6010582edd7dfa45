package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// Service provides admin management of coupons and side-effect free previews.
type Service struct {
	repo      Repository
	validator Validator
	now       func() time.Time
}

// NewService creates a coupon Service.
func NewService(repo Repository, validator Validator) *Service {
	return &Service{repo: repo, validator: validator, now: time.Now}
}

// Preview evaluates code against subtotal without recording a use.
func (s *Service) Preview(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.Invalid("code", "required")
	}
	if subtotal.IsNegative() {
		return nil, domain.Invalid("subtotal", "must not be negative")
	}
	return s.validator.Validate(ctx, code, subtotal)
}

// List returns a page of coupons.
func (s *Service) List(ctx context.Context, page domain.Page) ([]Coupon, int, error) {
	return s.repo.List(ctx, page)
}

// Get returns a coupon by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Coupon, error) {
	return s.repo.GetByID(ctx, id)
}

// Create stores a new coupon. Codes are kept upper-case.
func (s *Service) Create(ctx context.Context, c *Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if err := c.Validate(); err != nil {
		return err
	}
	c.ID = uuid.New()
	c.UsedCount = 0
	c.CreatedAt = s.now()
	if err := s.repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "create coupon")
	}
	return nil
}

// Update replaces the editable fields. UsedCount is owned by the order ledger
// and is never taken from input.
func (s *Service) Update(ctx context.Context, c *Coupon) error {
	current, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if err := c.Validate(); err != nil {
		return err
	}
	c.UsedCount = current.UsedCount
	c.CreatedAt = current.CreatedAt
	if err := s.repo.Update(ctx, c); err != nil {
		return errors.Wrap(err, "update coupon")
	}
	return nil
}

// Delete removes a coupon. Orders keep their coupon_code snapshot.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
