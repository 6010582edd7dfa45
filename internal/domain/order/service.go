package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/domain/payment"
	"github.com/xenking/rimae-ledger/internal/domain/pricing"
)

// CreateRequest holds the input for checking out a cart.
type CreateRequest struct {
	UserID          uuid.UUID
	ShippingAddress Address
	PaymentMethod   payment.Method
	CouponCode      string
	CustomerNotes   string
}

// CostUpdate carries admin corrections to the cost side of an order.
// Nil fields are left unchanged.
type CostUpdate struct {
	ShippingCost      *decimal.Decimal
	PackagingCost     *decimal.Decimal
	PaymentGatewayFee *decimal.Decimal
	CAC               *decimal.Decimal
}

// AdminUpdate is a partial admin edit of an order.
type AdminUpdate struct {
	Status     *Status
	Costs      CostUpdate
	AdminNotes *string
}

// Metrics counts checkout outcomes.
type Metrics struct {
	created metric.Int64Counter
	revenue metric.Float64Counter
}

// NewMetrics registers order instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	created, err := meter.Int64Counter("rimae.orders.created",
		metric.WithDescription("Orders created from carts"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	revenue, err := meter.Float64Counter("rimae.orders.revenue",
		metric.WithDescription("Order total amount at creation"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.revenue counter")
	}
	return &Metrics{created: created, revenue: revenue}, nil
}

func (m *Metrics) record(ctx context.Context, o *Order) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("payment_method", string(o.PaymentMethod)),
		attribute.Bool("coupon", o.CouponID != nil),
	)
	m.created.Add(ctx, 1, attrs)
	m.revenue.Add(ctx, o.TotalAmount.InexactFloat64(), attrs)
}

// Service encapsulates the order ledger business logic.
type Service struct {
	carts    cart.Repository
	products catalog.Repository
	coupons  coupon.Validator
	orders   Repository
	gateway  payment.Gateway
	policy   pricing.Policy
	metrics  *Metrics
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts cart.Repository,
	products catalog.Repository,
	coupons coupon.Validator,
	orders Repository,
	gateway payment.Gateway,
	policy pricing.Policy,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		coupons:  coupons,
		orders:   orders,
		gateway:  gateway,
		policy:   policy,
		now:      time.Now,
	}
}

// WithMetrics enables checkout counters.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// CreateOrder converts the user's cart into an order. On any error nothing is
// written and the cart is left as it was.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := req.ShippingAddress.Validate(); err != nil {
		return nil, err
	}
	if !req.PaymentMethod.Valid() {
		return nil, domain.Invalid("payment_method", fmt.Sprintf("unknown method %q", req.PaymentMethod))
	}

	c, err := s.carts.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	lines, err := cart.PriceItems(ctx, s.products, c.Items)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if !l.Available {
			return nil, domain.Invalid("items", l.SKU+" is no longer available")
		}
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New(),
		OrderNumber:     NewOrderNumber(now),
		UserID:          req.UserID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		CustomerNotes:   strings.TrimSpace(req.CustomerNotes),
		Subtotal:        decimal.Zero,
		COGS:            decimal.Zero,
		DiscountAmount:  decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.Items = make([]Item, len(lines))
	for i, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		o.Items[i] = Item{
			ID:          uuid.New(),
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			VariantName: l.VariantName,
			SKU:         l.SKU,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			UnitCost:    l.UnitCost,
			TotalPrice:  l.UnitPrice.Mul(qty).Round(2),
		}
		o.Subtotal = o.Subtotal.Add(o.Items[i].TotalPrice)
		o.COGS = o.COGS.Add(l.UnitCost.Mul(qty))
	}
	o.Subtotal = o.Subtotal.Round(2)
	o.COGS = o.COGS.Round(2)

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		d, err := s.coupons.Validate(ctx, code, o.Subtotal)
		if err != nil {
			return nil, err
		}
		id := d.CouponID
		o.CouponID = &id
		o.CouponCode = d.Code
		o.DiscountAmount = d.Amount
	}

	taxable := o.Subtotal.Sub(o.DiscountAmount)
	quote := s.policy.Quote(taxable)
	o.ShippingAmount = quote.Shipping
	o.TaxAmount = quote.Tax
	o.TotalAmount = taxable.Add(quote.Shipping).Add(quote.Tax).Round(2)

	costs := s.policy.EstimateCosts(o.TotalAmount)
	o.ShippingCost = decimal.Zero
	o.PackagingCost = costs.Packaging
	o.PaymentGatewayFee = costs.GatewayFee
	o.CAC = costs.CAC

	if err := s.orders.Create(ctx, o, c); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.metrics.record(ctx, o)
	return o, nil
}

// NewOrderNumber returns a unique order token: ORD, a UTC timestamp and a
// random suffix.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ORD" + now.UTC().Format("20060102150405") + suffix
}

// Get returns any order (admin).
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// GetForUser returns the order only if userID owns it.
func (s *Service) GetForUser(ctx context.Context, userID, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns a filtered page of orders (admin).
func (s *Service) List(ctx context.Context, f Filter, page domain.Page) ([]Order, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, domain.Invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	return s.orders.List(ctx, f, page)
}

// ListForUser returns the user's own orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, page domain.Page) ([]Order, int, error) {
	return s.orders.List(ctx, Filter{UserID: &userID}, page)
}

// UpdateStatus applies a status change requested by src.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next Status, src Source) (*Order, error) {
	now := s.now()
	return s.orders.Update(ctx, id, func(o *Order) (bool, error) {
		return o.SetStatus(next, src, now)
	})
}

// MarkDelivered is called by the shipment tracker when a parcel is delivered.
// Repeated calls are no-ops.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.orders.Update(ctx, id, func(o *Order) (bool, error) {
		return o.SetStatus(StatusDelivered, SourceShipment, at)
	})
	return err
}

// RecordShippingCosts copies the courier charges of a shipment onto the order.
func (s *Service) RecordShippingCosts(ctx context.Context, id uuid.UUID, shipping, packaging decimal.Decimal) error {
	_, err := s.orders.Update(ctx, id, func(o *Order) (bool, error) {
		if o.ShippingCost.Equal(shipping) && o.PackagingCost.Equal(packaging) {
			return false, nil
		}
		o.ShippingCost = shipping
		o.PackagingCost = packaging
		return true, nil
	})
	return err
}

// AdminUpdate applies a partial admin edit atomically.
func (s *Service) AdminUpdate(ctx context.Context, id uuid.UUID, upd AdminUpdate) (*Order, error) {
	fields := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"shipping_cost", upd.Costs.ShippingCost},
		{"packaging_cost", upd.Costs.PackagingCost},
		{"payment_gateway_fee", upd.Costs.PaymentGatewayFee},
		{"customer_acquisition_cost", upd.Costs.CAC},
	}
	for _, f := range fields {
		if f.value != nil && f.value.IsNegative() {
			return nil, domain.Invalid(f.name, "must not be negative")
		}
	}

	now := s.now()
	return s.orders.Update(ctx, id, func(o *Order) (bool, error) {
		changed := false
		if upd.Status != nil {
			c, err := o.SetStatus(*upd.Status, SourceAdmin, now)
			if err != nil {
				return false, err
			}
			changed = changed || c
		}
		set := func(dst *decimal.Decimal, v *decimal.Decimal) {
			if v != nil && !dst.Equal(*v) {
				*dst = v.Round(2)
				changed = true
			}
		}
		set(&o.ShippingCost, upd.Costs.ShippingCost)
		set(&o.PackagingCost, upd.Costs.PackagingCost)
		set(&o.PaymentGatewayFee, upd.Costs.PaymentGatewayFee)
		set(&o.CAC, upd.Costs.CAC)
		if upd.AdminNotes != nil && *upd.AdminNotes != o.AdminNotes {
			o.AdminNotes = *upd.AdminNotes
			changed = true
		}
		return changed, nil
	})
}

// Pay charges the order total through the gateway and records the outcome.
// A successful charge confirms a pending order.
func (s *Service) Pay(ctx context.Context, userID, id uuid.UUID) (*Order, *payment.Payment, error) {
	o, err := s.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if err := checkPayable(o); err != nil {
		return nil, nil, err
	}

	out, err := s.gateway.Charge(ctx, o.ID, o.TotalAmount, o.PaymentMethod)
	if err != nil {
		return nil, nil, errors.Wrap(err, "charge")
	}

	now := s.now()
	p := payment.Record(o.ID, userID, o.TotalAmount, o.PaymentMethod, out, now)
	updated, err := s.orders.AddPayment(ctx, &p, func(o *Order) (bool, error) {
		if err := checkPayable(o); err != nil {
			if p.Status == payment.StatusSuccess {
				p.Status = payment.StatusNeedsRefund
			}
			return false, err
		}
		o.PaymentID = p.TransactionID
		if !out.Success {
			o.PaymentStatus = PaymentFailed
			return true, nil
		}
		o.PaymentStatus = PaymentPaid
		if o.Status == StatusPending {
			if _, err := o.SetStatus(StatusConfirmed, SourceAdmin, now); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, &p, nil
}

func checkPayable(o *Order) error {
	if o.PaymentStatus == PaymentPaid {
		return ErrAlreadyPaid
	}
	if o.Status == StatusCancelled || o.Status == StatusReturned {
		return ErrNotPayable
	}
	return nil
}
