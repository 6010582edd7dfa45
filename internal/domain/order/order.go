package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
	"github.com/xenking/rimae-ledger/internal/domain/payment"
)

var hundred = decimal.NewFromInt(100)

// Order is an immutable financial snapshot of a checkout plus its mutable
// lifecycle fields (status, payment, admin cost corrections).
type Order struct {
	ID            uuid.UUID
	OrderNumber   string
	UserID        uuid.UUID
	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod payment.Method
	PaymentID     string

	// Revenue.
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal

	// Costs.
	COGS              decimal.Decimal
	ShippingCost      decimal.Decimal
	PackagingCost     decimal.Decimal
	PaymentGatewayFee decimal.Decimal
	CAC               decimal.Decimal

	CouponID   *uuid.UUID
	CouponCode string

	ShippingAddress Address
	CustomerNotes   string
	AdminNotes      string

	Items       []Item
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Item is a snapshot of one purchased line. Its price and cost are copied at
// order creation and never re-read from the catalog.
type Item struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	ProductName string
	VariantName string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
	UnitCost    decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Address is the shipping destination copied onto the order.
type Address struct {
	Name    string
	Phone   string
	Line1   string
	Line2   string
	City    string
	State   string
	Pincode string
}

// Validate checks that every required address field is present.
func (a Address) Validate() error {
	required := []struct{ field, value string }{
		{"shipping_name", a.Name},
		{"shipping_phone", a.Phone},
		{"shipping_address_line1", a.Line1},
		{"shipping_city", a.City},
		{"shipping_state", a.State},
		{"shipping_pincode", a.Pincode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return domain.Invalid(r.field, "required")
		}
	}
	return nil
}

// TotalCosts is the sum of every cost field.
func (o *Order) TotalCosts() decimal.Decimal {
	return o.COGS.Add(o.ShippingCost).Add(o.PackagingCost).Add(o.PaymentGatewayFee).Add(o.CAC)
}

// GrossProfit is revenue minus cost of goods.
func (o *Order) GrossProfit() decimal.Decimal {
	return o.TotalAmount.Sub(o.COGS)
}

// NetProfit is revenue minus every cost.
func (o *Order) NetProfit() decimal.Decimal {
	return o.TotalAmount.Sub(o.TotalCosts())
}

// ProfitMargin is net profit as a percentage of the total, 0 for a zero total.
func (o *Order) ProfitMargin() decimal.Decimal {
	if o.TotalAmount.IsZero() {
		return decimal.Zero
	}
	return o.NetProfit().Div(o.TotalAmount).Mul(hundred).Round(2)
}

// PaymentStatus tracks whether the order has been paid for.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Filter narrows order listings. Zero values match everything.
type Filter struct {
	UserID        *uuid.UUID
	Status        Status
	PaymentStatus PaymentStatus
	// Search matches the order number or the shipping name.
	Search string
	// DeliveredOnly restricts to delivered orders created in [From, To).
	DeliveredOnly bool
	From          *time.Time
	To            *time.Time
}

// UpdateFunc mutates a locked order and reports whether anything changed.
type UpdateFunc func(o *Order) (changed bool, err error)

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores o and its items, removes the consumed lines from the
	// cart and counts a coupon use, all in one transaction.
	Create(ctx context.Context, o *Order, consumed *cart.Cart) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f Filter, page domain.Page) ([]Order, int, error)
	// Update locks the order row, applies fn and persists the result.
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*Order, error)
	// AddPayment applies fn to the locked order and stores p in one
	// transaction. p is stored even when fn fails; fn may amend p first. The
	// error from fn is returned after commit.
	AddPayment(ctx context.Context, p *payment.Payment, fn UpdateFunc) (*Order, error)
	// Economics returns delivered orders without items for aggregation.
	Economics(ctx context.Context, from, to *time.Time) ([]Order, error)
}

var (
	// ErrNotFound is returned when the order is missing or owned by someone else.
	ErrNotFound = errors.Wrap(domain.ErrNotFound, "order")
	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrAlreadyPaid is returned when paying an order twice.
	ErrAlreadyPaid = errors.New("order is already paid")
	// ErrNotPayable is returned when paying a cancelled or returned order.
	ErrNotPayable = errors.New("order can no longer be paid")
	// ErrCartChanged is returned when the cart was modified during checkout.
	ErrCartChanged = errors.Wrap(domain.ErrConflict, "cart changed during checkout")
)
