package order

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/domain/payment"
	"github.com/xenking/rimae-ledger/internal/domain/pricing"
)

// --- Mock implementations ---

type mockCarts struct {
	cart *cart.Cart
	err  error
}

func (m *mockCarts) GetOrCreate(_ context.Context, userID uuid.UUID) (*cart.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		m.cart = &cart.Cart{ID: uuid.New(), UserID: userID}
	}
	c := *m.cart
	c.Items = append([]cart.Item(nil), m.cart.Items...)
	return &c, nil
}

func (m *mockCarts) AddItem(context.Context, uuid.UUID, cart.Item) (*cart.Item, error) {
	return nil, nil
}

func (m *mockCarts) SetQuantity(context.Context, uuid.UUID, uuid.UUID, int) error { return nil }
func (m *mockCarts) RemoveItem(context.Context, uuid.UUID, uuid.UUID) error       { return nil }

type mockProducts struct {
	byID map[uuid.UUID]catalog.Product
}

func (m *mockProducts) List(context.Context, domain.Page) ([]catalog.Product, int, error) {
	return nil, 0, nil
}

func (m *mockProducts) GetByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProducts) GetVariant(context.Context, uuid.UUID) (*catalog.Variant, error) {
	return nil, catalog.ErrNotFound
}

func (m *mockProducts) Create(context.Context, *catalog.Product) error { return nil }
func (m *mockProducts) Update(context.Context, *catalog.Product) error { return nil }

type mockCouponValidator struct {
	discount *coupon.Discount
	err      error
	gotCode  string
	gotTotal decimal.Decimal
}

func (m *mockCouponValidator) Validate(_ context.Context, code string, subtotal decimal.Decimal) (*coupon.Discount, error) {
	m.gotCode = code
	m.gotTotal = subtotal
	return m.discount, m.err
}

// mockOrderRepo mimics the transactional repository: Create clears the
// consumed cart only when it succeeds.
type mockOrderRepo struct {
	carts     *mockCarts
	byID      map[uuid.UUID]*Order
	createErr error
	payments  []payment.Payment
}

func newOrderRepo(carts *mockCarts) *mockOrderRepo {
	return &mockOrderRepo{carts: carts, byID: map[uuid.UUID]*Order{}}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order, consumed *cart.Cart) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	m.byID[o.ID] = &cp
	if m.carts != nil && m.carts.cart != nil && m.carts.cart.ID == consumed.ID {
		m.carts.cart.Items = nil
	}
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, f Filter, _ domain.Page) ([]Order, int, error) {
	var out []Order
	for _, o := range m.byID {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) Update(_ context.Context, id uuid.UUID, fn UpdateFunc) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	changed, err := fn(&cp)
	if err != nil {
		return nil, err
	}
	if changed {
		m.byID[id] = &cp
	}
	return &cp, nil
}

func (m *mockOrderRepo) AddPayment(ctx context.Context, p *payment.Payment, fn UpdateFunc) (*Order, error) {
	o, err := m.Update(ctx, p.OrderID, fn)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	m.payments = append(m.payments, *p)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (m *mockOrderRepo) Economics(context.Context, *time.Time, *time.Time) ([]Order, error) {
	return nil, nil
}

type mockGateway struct {
	outcome payment.Outcome
	err     error
	calls   int
	// during runs inside Charge, standing in for a concurrent request.
	during func()
}

func (m *mockGateway) Charge(context.Context, uuid.UUID, decimal.Decimal, payment.Method) (payment.Outcome, error) {
	m.calls++
	if m.during != nil {
		m.during()
	}
	return m.outcome, m.err
}

// --- Helpers ---

var fixedNow = time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	carts    *mockCarts
	orders   *mockOrderRepo
	coupons  *mockCouponValidator
	gateway  *mockGateway
	product  catalog.Product
	variant  catalog.Variant
	userID   uuid.UUID
	products *mockProducts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pid := uuid.New()
	variant := catalog.Variant{
		ID:        uuid.New(),
		ProductID: pid,
		SKU:       "SANTAL-50",
		Name:      "50ml",
		Price:     decimal.NewFromInt(500),
		CostPrice: decimal.NewFromInt(200),
		IsActive:  true,
	}
	product := catalog.Product{
		ID:        pid,
		SKU:       "SANTAL",
		Name:      "Santal Smoke",
		Price:     decimal.NewFromInt(1400),
		CostPrice: decimal.NewFromInt(520),
		IsActive:  true,
		Variants:  []catalog.Variant{variant},
	}

	f := &fixture{
		carts:    &mockCarts{},
		coupons:  &mockCouponValidator{},
		gateway:  &mockGateway{outcome: payment.Outcome{Success: true, GatewayTxnID: "gw-1"}},
		product:  product,
		variant:  variant,
		userID:   uuid.New(),
		products: &mockProducts{byID: map[uuid.UUID]catalog.Product{pid: product}},
	}
	f.orders = newOrderRepo(f.carts)

	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	f.svc = NewService(f.carts, f.products, f.coupons, f.orders, f.gateway, pricing.DefaultPolicy()).
		WithMetrics(metrics)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) fillCart(items ...cart.Item) {
	f.carts.cart = &cart.Cart{ID: uuid.New(), UserID: f.userID, Items: items}
}

func (f *fixture) request(code string) CreateRequest {
	return CreateRequest{
		UserID: f.userID,
		ShippingAddress: Address{
			Name:    "Asha Rao",
			Phone:   "9999999999",
			Line1:   "12 MG Road",
			City:    "Bengaluru",
			State:   "KA",
			Pincode: "560001",
		},
		PaymentMethod: payment.MethodUPI,
		CouponCode:    code,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: expected %s, got %s", field, want, got)
}

// --- Tests ---

func TestCreateOrder_VariantWithPercentageCoupon(t *testing.T) {
	f := newFixture(t)
	variantID := f.variant.ID
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: f.product.ID, VariantID: &variantID, Quantity: 2})
	couponID := uuid.New()
	f.coupons.discount = &coupon.Discount{CouponID: couponID, Code: "TENOFF", Amount: dec("100")}

	o, err := f.svc.CreateOrder(context.Background(), f.request("tenoff"))
	require.NoError(t, err)

	assertDec(t, "1000", o.Subtotal, "subtotal")
	assertDec(t, "100", o.DiscountAmount, "discount")
	assertDec(t, "400", o.COGS, "cogs")
	assertDec(t, "49", o.ShippingAmount, "shipping")
	assertDec(t, "162", o.TaxAmount, "tax")
	assertDec(t, "1111", o.TotalAmount, "total")
	assertDec(t, "25", o.PackagingCost, "packaging")
	assertDec(t, "22.22", o.PaymentGatewayFee, "gateway fee")
	assertDec(t, "663.78", o.NetProfit(), "net profit")

	reconciled := o.Subtotal.Sub(o.DiscountAmount).Add(o.ShippingAmount).Add(o.TaxAmount)
	assert.True(t, reconciled.Sub(o.TotalAmount).Abs().LessThanOrEqual(dec("0.01")))

	assert.Equal(t, "tenoff", f.coupons.gotCode)
	assertDec(t, "1000", f.coupons.gotTotal, "coupon subtotal")
	require.NotNil(t, o.CouponID)
	assert.Equal(t, couponID, *o.CouponID)
	assert.Equal(t, "TENOFF", o.CouponCode)

	require.Len(t, o.Items, 1)
	item := o.Items[0]
	assert.Equal(t, "SANTAL-50", item.SKU)
	assert.Equal(t, "50ml", item.VariantName)
	assertDec(t, "500", item.UnitPrice, "unit price")
	assertDec(t, "200", item.UnitCost, "unit cost")
	assertDec(t, "1000", item.TotalPrice, "line total")

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.True(t, strings.HasPrefix(o.OrderNumber, "ORD20250701093000"))
	assert.Empty(t, f.carts.cart.Items)
}

func TestCreateOrder_SnapshotSurvivesCatalogChange(t *testing.T) {
	f := newFixture(t)
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: f.product.ID, Quantity: 1})

	o, err := f.svc.CreateOrder(context.Background(), f.request(""))
	require.NoError(t, err)

	p := f.products.byID[f.product.ID]
	p.Price = decimal.NewFromInt(9999)
	p.CostPrice = decimal.NewFromInt(9999)
	f.products.byID[f.product.ID] = p

	stored, err := f.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assertDec(t, "1400", stored.Items[0].UnitPrice, "unit price")
	assertDec(t, "520", stored.Items[0].UnitCost, "unit cost")
	assertDec(t, "0", stored.ShippingAmount, "free shipping over threshold")
}

func TestCreateOrder_EmptyCartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: f.product.ID, Quantity: 1})

	_, err := f.svc.CreateOrder(context.Background(), f.request(""))
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(context.Background(), f.request(""))
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Len(t, f.orders.byID, 1)
}

func TestCreateOrder_InvalidCouponLeavesCart(t *testing.T) {
	f := newFixture(t)
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: f.product.ID, Quantity: 1})
	f.coupons.err = coupon.Reject("OLD", coupon.ErrCouponExpired)

	_, err := f.svc.CreateOrder(context.Background(), f.request("OLD"))
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.ErrorIs(t, err, coupon.ErrCouponExpired)
	assert.Len(t, f.carts.cart.Items, 1)
	assert.Empty(t, f.orders.byID)
}

func TestCreateOrder_RepositoryFailureLeavesCart(t *testing.T) {
	f := newFixture(t)
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: f.product.ID, Quantity: 1})
	f.orders.createErr = errors.New("tx aborted")

	_, err := f.svc.CreateOrder(context.Background(), f.request(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Len(t, f.carts.cart.Items, 1)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: f.product.ID, Quantity: 1})

	req := f.request("")
	req.ShippingAddress.Pincode = ""
	_, err := f.svc.CreateOrder(context.Background(), req)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "shipping_pincode", vErr.Field)

	req = f.request("")
	req.PaymentMethod = "barter"
	_, err = f.svc.CreateOrder(context.Background(), req)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "payment_method", vErr.Field)
}

func TestCreateOrder_DiscontinuedProduct(t *testing.T) {
	f := newFixture(t)
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: uuid.New(), Quantity: 1})

	_, err := f.svc.CreateOrder(context.Background(), f.request(""))
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestCreateOrder_DeactivatedLine(t *testing.T) {
	f := newFixture(t)
	variantID := f.variant.ID
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: f.product.ID, VariantID: &variantID, Quantity: 1})

	p := f.products.byID[f.product.ID]
	p.Variants = []catalog.Variant{f.variant}
	p.Variants[0].IsActive = false
	f.products.byID[f.product.ID] = p

	_, err := f.svc.CreateOrder(context.Background(), f.request(""))
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "items", vErr.Field)
	assert.Contains(t, vErr.Reason, "SANTAL-50")
	assert.Len(t, f.carts.cart.Items, 1)
	assert.Empty(t, f.orders.byID)
}

func TestGetForUser_HidesForeignOrders(t *testing.T) {
	f := newFixture(t)
	f.fillCart(cart.Item{ID: uuid.New(), ProductID: f.product.ID, Quantity: 1})
	o, err := f.svc.CreateOrder(context.Background(), f.request(""))
	require.NoError(t, err)

	_, err = f.svc.GetForUser(context.Background(), uuid.New(), o.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.GetForUser(context.Background(), f.userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)
}

func TestMarkDelivered_Idempotent(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.orders.byID[id] = &Order{ID: id, Status: StatusShipped}

	require.NoError(t, f.svc.MarkDelivered(context.Background(), id, fixedNow))
	require.NoError(t, f.svc.MarkDelivered(context.Background(), id, fixedNow.Add(time.Hour)))

	o := f.orders.byID[id]
	assert.Equal(t, StatusDelivered, o.Status)
	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, fixedNow, *o.DeliveredAt)
}

func TestAdminUpdate(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.orders.byID[id] = &Order{ID: id, Status: StatusPending, TotalAmount: dec("1000")}

	shipping := dec("80")
	cac := dec("120")
	notes := "called customer"
	next := StatusConfirmed
	o, err := f.svc.AdminUpdate(context.Background(), id, AdminUpdate{
		Status:     &next,
		Costs:      CostUpdate{ShippingCost: &shipping, CAC: &cac},
		AdminNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
	assertDec(t, "80", o.ShippingCost, "shipping cost")
	assertDec(t, "120", o.CAC, "cac")
	assert.Equal(t, notes, o.AdminNotes)

	negative := dec("-1")
	_, err = f.svc.AdminUpdate(context.Background(), id, AdminUpdate{Costs: CostUpdate{PackagingCost: &negative}})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "packaging_cost", vErr.Field)

	back := StatusPending
	_, err = f.svc.AdminUpdate(context.Background(), id, AdminUpdate{Status: &back})
	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
}

func TestPay(t *testing.T) {
	t.Run("success confirms order", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.byID[id] = &Order{
			ID: id, UserID: f.userID, Status: StatusPending,
			PaymentStatus: PaymentPending, PaymentMethod: payment.MethodUPI, TotalAmount: dec("500"),
		}

		o, p, err := f.svc.Pay(context.Background(), f.userID, id)
		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, o.PaymentStatus)
		assert.Equal(t, StatusConfirmed, o.Status)
		assert.Equal(t, p.TransactionID, o.PaymentID)
		assert.Equal(t, payment.StatusSuccess, p.Status)
		assert.Len(t, f.orders.payments, 1)

		_, _, err = f.svc.Pay(context.Background(), f.userID, id)
		require.ErrorIs(t, err, ErrAlreadyPaid)
		assert.Equal(t, 1, f.gateway.calls)
	})

	t.Run("failure records attempt", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.outcome = payment.Outcome{Success: false}
		id := uuid.New()
		f.orders.byID[id] = &Order{ID: id, UserID: f.userID, Status: StatusPending, PaymentStatus: PaymentPending}

		o, p, err := f.svc.Pay(context.Background(), f.userID, id)
		require.NoError(t, err)
		assert.Equal(t, PaymentFailed, o.PaymentStatus)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, payment.StatusFailed, p.Status)
	})

	t.Run("cancelled order", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.byID[id] = &Order{ID: id, UserID: f.userID, Status: StatusCancelled}

		_, _, err := f.svc.Pay(context.Background(), f.userID, id)
		require.ErrorIs(t, err, ErrNotPayable)
		assert.Zero(t, f.gateway.calls)
	})

	t.Run("gateway error", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.err = errors.New("timeout")
		id := uuid.New()
		f.orders.byID[id] = &Order{ID: id, UserID: f.userID, Status: StatusPending}

		_, _, err := f.svc.Pay(context.Background(), f.userID, id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "charge")
		assert.Empty(t, f.orders.payments)
	})

	t.Run("order cancelled while charging keeps the capture", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.outcome = payment.Outcome{Success: true, GatewayTxnID: "gw-captured"}
		id := uuid.New()
		f.orders.byID[id] = &Order{
			ID: id, UserID: f.userID, Status: StatusPending,
			PaymentStatus: PaymentPending, TotalAmount: dec("500"),
		}
		f.gateway.during = func() { f.orders.byID[id].Status = StatusCancelled }

		_, _, err := f.svc.Pay(context.Background(), f.userID, id)
		require.ErrorIs(t, err, ErrNotPayable)
		require.Len(t, f.orders.payments, 1)
		assert.Equal(t, payment.StatusNeedsRefund, f.orders.payments[0].Status)
		assert.Equal(t, "gw-captured", f.orders.payments[0].GatewayTxnID)
		assert.Equal(t, PaymentPending, f.orders.byID[id].PaymentStatus)
	})
}
