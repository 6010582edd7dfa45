package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rimae-ledger/internal/domain"
)

type mockCouponRepo struct {
	coupon *Coupon
	err    error
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	return m.coupon, m.err
}

func (m *mockCouponRepo) GetByID(_ context.Context, id uuid.UUID) (*Coupon, error) {
	if m.coupon == nil || m.coupon.ID != id {
		return nil, ErrNotFound
	}
	return m.coupon, nil
}

func (m *mockCouponRepo) List(context.Context, domain.Page) ([]Coupon, int, error) {
	return nil, 0, nil
}

func (m *mockCouponRepo) Create(_ context.Context, c *Coupon) error {
	m.coupon = c
	return nil
}

func (m *mockCouponRepo) Update(_ context.Context, c *Coupon) error {
	m.coupon = c
	return nil
}

func (m *mockCouponRepo) Delete(context.Context, uuid.UUID) error { return nil }
func (m *mockCouponRepo) Upsert(context.Context, *Coupon) error   { return nil }

func ptr[T any](v T) *T { return &v }

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	base := Coupon{
		Code:         "SAVE10",
		DiscountType: DiscountPercentage,
		Value:        decimal.NewFromInt(10),
		ValidFrom:    now.Add(-24 * time.Hour),
		ValidUntil:   now.Add(24 * time.Hour),
		IsActive:     true,
	}

	tests := []struct {
		name     string
		mutate   func(c *Coupon)
		subtotal decimal.Decimal
		want     decimal.Decimal
		wantErr  error
	}{
		{
			name:     "percentage",
			mutate:   func(*Coupon) {},
			subtotal: decimal.NewFromInt(1000),
			want:     decimal.NewFromInt(100),
		},
		{
			name: "percentage capped by max discount",
			mutate: func(c *Coupon) {
				c.MaxDiscount = ptr(decimal.NewFromInt(50))
			},
			subtotal: decimal.NewFromInt(1000),
			want:     decimal.NewFromInt(50),
		},
		{
			name: "fixed never exceeds subtotal",
			mutate: func(c *Coupon) {
				c.DiscountType = DiscountFixed
				c.Value = decimal.NewFromInt(300)
			},
			subtotal: decimal.NewFromInt(200),
			want:     decimal.NewFromInt(200),
		},
		{
			name: "percentage rounds to cents",
			mutate: func(c *Coupon) {
				c.Value = decimal.RequireFromString("12.5")
			},
			subtotal: decimal.RequireFromString("99.99"),
			want:     decimal.RequireFromString("12.50"),
		},
		{
			name:     "inactive",
			mutate:   func(c *Coupon) { c.IsActive = false },
			subtotal: decimal.NewFromInt(1000),
			wantErr:  ErrCouponInactive,
		},
		{
			name:     "expired",
			mutate:   func(c *Coupon) { c.ValidUntil = now.Add(-time.Minute) },
			subtotal: decimal.NewFromInt(1000),
			wantErr:  ErrCouponExpired,
		},
		{
			name:     "not yet valid",
			mutate:   func(c *Coupon) { c.ValidFrom = now.Add(time.Minute) },
			subtotal: decimal.NewFromInt(1000),
			wantErr:  ErrCouponExpired,
		},
		{
			name: "exhausted",
			mutate: func(c *Coupon) {
				c.UsageLimit = ptr(5)
				c.UsedCount = 5
			},
			subtotal: decimal.NewFromInt(1000),
			wantErr:  ErrCouponExhausted,
		},
		{
			name: "under limit",
			mutate: func(c *Coupon) {
				c.UsageLimit = ptr(5)
				c.UsedCount = 4
			},
			subtotal: decimal.NewFromInt(1000),
			want:     decimal.NewFromInt(100),
		},
		{
			name:     "minimum not met",
			mutate:   func(c *Coupon) { c.MinOrderAmount = decimal.NewFromInt(500) },
			subtotal: decimal.NewFromInt(499),
			wantErr:  ErrMinimumNotMet,
		},
		{
			name:     "minimum met exactly",
			mutate:   func(c *Coupon) { c.MinOrderAmount = decimal.NewFromInt(500) },
			subtotal: decimal.NewFromInt(500),
			want:     decimal.NewFromInt(50),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)

			got, err := Evaluate(&c, tt.subtotal, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrInvalidCoupon)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Coupon{
		Code:         "X",
		DiscountType: DiscountPercentage,
		Value:        decimal.NewFromInt(15),
		ValidFrom:    now.Add(-time.Hour),
		ValidUntil:   now.Add(time.Hour),
		IsActive:     true,
		UsedCount:    3,
	}
	first, err := Evaluate(c, decimal.NewFromInt(800), now)
	require.NoError(t, err)
	second, err := Evaluate(c, decimal.NewFromInt(800), now)
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, 3, c.UsedCount)
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	t.Run("unknown code", func(t *testing.T) {
		v := NewRepoValidator(&mockCouponRepo{err: ErrInvalidCoupon})
		_, err := v.Validate(context.Background(), "BOGUS", decimal.NewFromInt(100))

		var invalid *InvalidCouponError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "BOGUS", invalid.Code)
		assert.ErrorIs(t, err, ErrInvalidCoupon)
	})

	t.Run("lookup failure", func(t *testing.T) {
		v := NewRepoValidator(&mockCouponRepo{err: errors.New("db down")})
		_, err := v.Validate(context.Background(), "ANY", decimal.NewFromInt(100))

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidCoupon)
		assert.Contains(t, err.Error(), "lookup coupon")
	})

	t.Run("valid", func(t *testing.T) {
		v := NewRepoValidator(&mockCouponRepo{coupon: &Coupon{
			ID:           id,
			Code:         "FLAT50",
			DiscountType: DiscountFixed,
			Value:        decimal.NewFromInt(50),
			ValidFrom:    fixedNow.Add(-time.Hour),
			ValidUntil:   fixedNow.Add(time.Hour),
			IsActive:     true,
		}})
		v.now = func() time.Time { return fixedNow }

		d, err := v.Validate(context.Background(), " FLAT50 ", decimal.NewFromInt(400))
		require.NoError(t, err)
		assert.Equal(t, id, d.CouponID)
		assert.True(t, decimal.NewFromInt(50).Equal(d.Amount))
	})
}

func TestService_CreateAndUpdate(t *testing.T) {
	repo := &mockCouponRepo{}
	svc := NewService(repo, NewRepoValidator(repo))
	now := time.Now()

	c := &Coupon{
		Code:         " welcome ",
		DiscountType: DiscountPercentage,
		Value:        decimal.NewFromInt(10),
		ValidFrom:    now,
		ValidUntil:   now.Add(time.Hour),
		IsActive:     true,
		UsedCount:    99,
	}
	require.NoError(t, svc.Create(context.Background(), c))
	assert.Equal(t, "WELCOME", c.Code)
	assert.Zero(t, c.UsedCount)

	repo.coupon.UsedCount = 7
	upd := *c
	upd.UsedCount = 0
	upd.Value = decimal.NewFromInt(20)
	require.NoError(t, svc.Update(context.Background(), &upd))
	assert.Equal(t, 7, upd.UsedCount)

	bad := *c
	bad.ValidUntil = bad.ValidFrom
	var vErr *domain.ValidationError
	require.ErrorAs(t, svc.Update(context.Background(), &bad), &vErr)
	assert.Equal(t, "valid_until", vErr.Field)
}

func TestService_PreviewValidation(t *testing.T) {
	svc := NewService(&mockCouponRepo{}, NewRepoValidator(&mockCouponRepo{}))

	_, err := svc.Preview(context.Background(), "", decimal.NewFromInt(10))
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "code", vErr.Field)
}
