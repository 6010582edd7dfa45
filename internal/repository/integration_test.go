//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
	"github.com/xenking/rimae-ledger/internal/domain/order"
	"github.com/xenking/rimae-ledger/internal/domain/payment"
	"github.com/xenking/rimae-ledger/internal/domain/pricing"
	"github.com/xenking/rimae-ledger/internal/domain/review"
	"github.com/xenking/rimae-ledger/internal/domain/shipment"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "rimae",
				"POSTGRES_PASSWORD": "rimae",
				"POSTGRES_DB":       "rimae",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://rimae:rimae@%s:%s/rimae?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	// Migrations are idempotent.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrate twice: %v", err)
	}

	return m.Run()
}

func seedProduct(t *testing.T, price, cost string) *catalog.Product {
	t.Helper()
	id := uuid.New()
	p := &catalog.Product{
		ID:        id,
		SKU:       "SKU-" + id.String()[:8],
		Name:      "Oud " + id.String()[:4],
		Slug:      "oud-" + id.String(),
		Type:      catalog.TypeFragrance,
		Gender:    "unisex",
		Price:     decimal.RequireFromString(price),
		CostPrice: decimal.RequireFromString(cost),
		Notes:     []catalog.Note{{Type: catalog.NoteTop, Value: "saffron"}},
		IsActive:  true,
		Images:    []catalog.Image{{URL: "https://cdn.example.com/oud.jpg", IsPrimary: true}},
		Variants: []catalog.Variant{{
			ID:        uuid.New(),
			ProductID: id,
			SKU:       "SKU-" + id.String()[:8] + "-50",
			Name:      "50ml",
			Price:     decimal.RequireFromString(price),
			CostPrice: decimal.RequireFromString(cost),
			IsActive:  true,
		}},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, NewCatalogRepository(testPool).Create(context.Background(), p))
	return p
}

func newOrderService() *order.Service {
	coupons := NewCouponRepository(testPool)
	return order.NewService(
		NewCartRepository(testPool),
		NewCatalogRepository(testPool),
		coupon.NewRepoValidator(coupons),
		NewOrderRepository(testPool, DefaultMaxRetries),
		payment.CashOnDelivery{},
		pricing.DefaultPolicy(),
	)
}

var testAddress = order.Address{
	Name: "Asha", Phone: "9999999999", Line1: "1 MG Road",
	City: "Bengaluru", State: "KA", Pincode: "560001",
}

func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)
	p := seedProduct(t, "1200", "400")

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.SKU, got.SKU)
	assert.Equal(t, []catalog.Note{{Type: catalog.NoteTop, Value: "saffron"}}, got.Notes)
	require.Len(t, got.Variants, 1)
	require.Len(t, got.Images, 1)

	dup := *p
	dup.ID = uuid.New()
	dup.Variants = nil
	err = repo.Create(ctx, &dup)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCheckoutCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	p := seedProduct(t, "500", "200")
	userID := uuid.New()

	now := time.Now()
	limit := 1
	c := &coupon.Coupon{
		ID: uuid.New(), Code: "ONCE-" + userID.String()[:6], DiscountType: coupon.DiscountPercentage,
		Value: decimal.NewFromInt(10), UsageLimit: &limit, ValidFrom: now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour), IsActive: true, CreatedAt: now,
	}
	require.NoError(t, NewCouponRepository(testPool).Create(ctx, c))

	carts := cart.NewService(NewCartRepository(testPool), NewCatalogRepository(testPool))
	_, err := carts.AddItem(ctx, userID, p.ID, &p.Variants[0].ID, 2)
	require.NoError(t, err)

	svc := newOrderService()
	o, err := svc.CreateOrder(ctx, order.CreateRequest{
		UserID: userID, ShippingAddress: testAddress, PaymentMethod: payment.MethodCOD, CouponCode: c.Code,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "100.00", o.DiscountAmount.StringFixed(2))

	stored, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "1111.00", stored.TotalAmount.StringFixed(2))
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 2, stored.Items[0].Quantity)

	view, err := carts.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	used, err := NewCouponRepository(testPool).GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, used.UsedCount)

	// The limit is now reached: a second checkout fails and leaves the cart.
	_, err = carts.AddItem(ctx, userID, p.ID, nil, 1)
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, order.CreateRequest{
		UserID: userID, ShippingAddress: testAddress, PaymentMethod: payment.MethodCOD, CouponCode: c.Code,
	})
	require.ErrorIs(t, err, coupon.ErrCouponExhausted)
	view, err = carts.Get(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1)

	_, err = svc.CreateOrder(ctx, order.CreateRequest{UserID: uuid.New(), ShippingAddress: testAddress, PaymentMethod: payment.MethodCOD})
	require.ErrorIs(t, err, order.ErrEmptyCart)
}

func TestOrderUpdateAndPayment(t *testing.T) {
	ctx := context.Background()
	p := seedProduct(t, "1500", "500")
	userID := uuid.New()

	carts := cart.NewService(NewCartRepository(testPool), NewCatalogRepository(testPool))
	_, err := carts.AddItem(ctx, userID, p.ID, nil, 1)
	require.NoError(t, err)

	svc := newOrderService()
	o, err := svc.CreateOrder(ctx, order.CreateRequest{UserID: userID, ShippingAddress: testAddress, PaymentMethod: payment.MethodCOD})
	require.NoError(t, err)

	paid, pay, err := svc.Pay(ctx, userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, paid.Status)
	assert.Equal(t, pay.TransactionID, paid.PaymentID)

	_, _, err = svc.Pay(ctx, userID, o.ID)
	require.ErrorIs(t, err, order.ErrAlreadyPaid)

	require.NoError(t, svc.MarkDelivered(ctx, o.ID, time.Now()))
	delivered, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	first := *delivered.DeliveredAt
	require.NoError(t, svc.MarkDelivered(ctx, o.ID, time.Now().Add(time.Hour)))
	again, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(*again.DeliveredAt))

	list, total, err := svc.List(ctx, order.Filter{Search: o.OrderNumber}, domain.Page{Number: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	econ, err := NewOrderRepository(testPool, DefaultMaxRetries).Economics(ctx, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, econ)
}

func TestInventoryAdjustConcurrent(t *testing.T) {
	ctx := context.Background()
	p := seedProduct(t, "900", "300")
	repo := NewInventoryRepository(testPool, 10)
	svc := inventory.NewService(repo, NewPurchaseRepository(testPool, 10), false)

	inv := &inventory.Inventory{ProductID: p.ID}
	require.NoError(t, svc.Create(ctx, inv))
	_, _, err := svc.Adjust(ctx, inv.ID, 20, inventory.MovementIn, "opening", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Adjust(ctx, inv.ID, -1, inventory.MovementOut, "", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, denied int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, inventory.ErrNegativeStock)
			denied++
		}
	}
	assert.Equal(t, 20, ok)
	assert.Equal(t, 5, denied)

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)

	moves, total, err := svc.Movements(ctx, inv.ID, domain.Page{Number: 1, Size: 50})
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	for _, m := range moves {
		assert.Equal(t, m.PreviousQuantity+m.Quantity, m.NewQuantity)
	}
}

func TestPurchaseOrderReceive(t *testing.T) {
	ctx := context.Background()
	a := seedProduct(t, "900", "300")
	b := seedProduct(t, "700", "250")
	svc := inventory.NewService(NewInventoryRepository(testPool, 3), NewPurchaseRepository(testPool, 3), false)

	sup := &inventory.Supplier{Name: "Grasse Oils"}
	require.NoError(t, svc.CreateSupplier(ctx, sup))

	po := &inventory.PurchaseOrder{
		SupplierID: sup.ID,
		Status:     inventory.POOrdered,
		Lines: []inventory.Line{
			{ProductID: a.ID, QuantityOrdered: 10, UnitCost: decimal.NewFromInt(300)},
			{ProductID: b.ID, VariantID: &b.Variants[0].ID, QuantityOrdered: 5, UnitCost: decimal.NewFromInt(250)},
		},
	}
	require.NoError(t, svc.CreatePurchaseOrder(ctx, po))

	got, moves, err := svc.Receive(ctx, po.ID, []inventory.Receipt{
		{LineID: po.Lines[0].ID, Quantity: 10},
		{LineID: po.Lines[1].ID, Quantity: 2},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, inventory.POPartial, got.Status)
	require.Len(t, moves, 2)

	_, _, err = svc.ReceiveLine(ctx, po.Lines[1].ID, 4, nil)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	got, _, err = svc.ReceiveLine(ctx, po.Lines[1].ID, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, inventory.POReceived, got.Status)
	assert.NotNil(t, got.ReceivedAt)

	_, _, err = svc.ReceiveLine(ctx, po.Lines[1].ID, 1, nil)
	require.ErrorIs(t, err, inventory.ErrPurchaseOrderClosed)

	low, err := svc.LowStock(ctx)
	require.NoError(t, err)
	var found bool
	for _, inv := range low {
		if inv.ProductID == b.ID {
			found = true
			assert.Equal(t, 5, inv.Quantity)
		}
	}
	assert.True(t, found, "variant stock of 5 is below the default reorder level")
}

func TestShipmentDelivery(t *testing.T) {
	ctx := context.Background()
	p := seedProduct(t, "400", "100")
	userID := uuid.New()

	carts := cart.NewService(NewCartRepository(testPool), NewCatalogRepository(testPool))
	_, err := carts.AddItem(ctx, userID, p.ID, nil, 1)
	require.NoError(t, err)
	orders := newOrderService()
	o, err := orders.CreateOrder(ctx, order.CreateRequest{UserID: userID, ShippingAddress: testAddress, PaymentMethod: payment.MethodUPI})
	require.NoError(t, err)

	svc := shipment.NewService(NewShipmentRepository(testPool, 3), orders)
	carrier := &shipment.Carrier{Name: "Bluedart " + userID.String()[:4], Code: "BD" + userID.String()[:4], TrackingURLTemplate: "https://bd.example.com/{tracking_number}", IsActive: true}
	require.NoError(t, svc.CreateCarrier(ctx, carrier))

	sh, err := svc.Create(ctx, shipment.CreateRequest{
		OrderID: o.ID, CarrierID: &carrier.ID, TrackingNumber: "AWB1", ShippingCost: decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://bd.example.com/AWB1", sh.TrackingURL)

	_, err = svc.Create(ctx, shipment.CreateRequest{OrderID: o.ID})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.UpdateStatus(ctx, sh.ID, shipment.StatusPickedUp)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, sh.ID, shipment.StatusDelivered)
	require.NoError(t, err)

	got, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)
	assert.Equal(t, "60.00", got.ShippingCost.StringFixed(2))

	perf, err := svc.Performance(ctx)
	require.NoError(t, err)
	var mine *shipment.CarrierPerformance
	for i := range perf {
		if perf[i].CarrierID == carrier.ID {
			mine = &perf[i]
		}
	}
	require.NotNil(t, mine)
	assert.Equal(t, 1, mine.Delivered)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)
	svc := catalog.NewService(repo).WithCategories(repo)

	suffix := uuid.NewString()[:8]
	woody := &catalog.Category{Name: "Woody " + suffix, IsActive: true}
	require.NoError(t, svc.CreateCategory(ctx, woody))
	hidden := &catalog.Category{Name: "Hidden " + suffix, ParentID: &woody.ID}
	require.NoError(t, svc.CreateCategory(ctx, hidden))

	shown, err := svc.Categories(ctx, false)
	require.NoError(t, err)
	names := make([]string, 0, len(shown))
	for _, c := range shown {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, woody.Name)
	assert.NotContains(t, names, hidden.Name)

	p := seedProduct(t, "800", "250")
	p.CategoryID = &woody.ID
	require.NoError(t, repo.Update(ctx, p))
	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, woody.ID, *got.CategoryID)

	unknown := uuid.New()
	p.CategoryID = &unknown
	err = repo.Update(ctx, p)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category_id", verr.Field)
}

func TestSupplierLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := inventory.NewService(NewInventoryRepository(testPool, DefaultMaxRetries), NewPurchaseRepository(testPool, DefaultMaxRetries), false)

	sup := &inventory.Supplier{Name: "Grasse Oils", Email: "sales@grasse.example"}
	require.NoError(t, svc.CreateSupplier(ctx, sup))

	phone := "+33 4 93 00 00 00"
	updated, err := svc.UpdateSupplier(ctx, sup.ID, inventory.SupplierUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, phone, updated.Phone)
	assert.Equal(t, "sales@grasse.example", updated.Email)

	require.NoError(t, svc.DeactivateSupplier(ctx, sup.ID))
	got, err := svc.GetSupplier(ctx, sup.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.GetSupplier(ctx, uuid.New())
	require.ErrorIs(t, err, inventory.ErrSupplierNotFound)
}

func TestReviewsAndWishlist(t *testing.T) {
	ctx := context.Background()
	p := seedProduct(t, "700", "200")
	buyer, browser := uuid.New(), uuid.New()

	carts := cart.NewService(NewCartRepository(testPool), NewCatalogRepository(testPool)).
		WithWishlist(NewCartRepository(testPool))
	_, err := carts.AddItem(ctx, buyer, p.ID, nil, 1)
	require.NoError(t, err)
	_, err = newOrderService().CreateOrder(ctx, order.CreateRequest{
		UserID: buyer, ShippingAddress: testAddress, PaymentMethod: payment.MethodCOD,
	})
	require.NoError(t, err)

	reviews := review.NewService(NewReviewRepository(testPool, DefaultMaxRetries), NewCatalogRepository(testPool))
	verified := &review.Review{Rating: 5, Comment: "Sillage for days"}
	require.NoError(t, reviews.Submit(ctx, buyer, p.ID, verified))
	assert.True(t, verified.IsVerifiedPurchase)

	casual := &review.Review{Rating: 3, Comment: "Nice tester"}
	require.NoError(t, reviews.Submit(ctx, browser, p.ID, casual))
	assert.False(t, casual.IsVerifiedPurchase)

	err = reviews.Submit(ctx, buyer, p.ID, &review.Review{Rating: 1, Comment: "changed my mind"})
	require.ErrorIs(t, err, review.ErrAlreadyReviewed)

	_, err = reviews.Moderate(ctx, verified.ID, review.ActionApprove, "")
	require.NoError(t, err)
	replied, err := reviews.Moderate(ctx, verified.ID, review.ActionReply, "Thank you")
	require.NoError(t, err)
	assert.Equal(t, review.StatusApproved, replied.Status)
	assert.Equal(t, p.Name, replied.ProductName)

	shown, total, err := reviews.Approved(ctx, p.ID, domain.Page{Number: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, shown, 1)
	assert.Equal(t, "Thank you", shown[0].AdminReply)

	pending, total, err := reviews.List(ctx, review.Filter{ProductID: &p.ID, Status: review.StatusPending}, domain.Page{Number: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, pending, 1)
	assert.Equal(t, casual.ID, pending[0].ID)

	_, created, err := carts.AddWish(ctx, browser, p.ID)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = carts.AddWish(ctx, browser, p.ID)
	require.NoError(t, err)
	assert.False(t, created)

	wishes, err := carts.Wishlist(ctx, browser)
	require.NoError(t, err)
	require.Len(t, wishes, 1)
	require.NotNil(t, wishes[0].Product)
	assert.Equal(t, p.Name, wishes[0].Product.Name)

	require.NoError(t, carts.RemoveWish(ctx, browser, p.ID))
	wishes, err = carts.Wishlist(ctx, browser)
	require.NoError(t, err)
	assert.Empty(t, wishes)
}
