// Package handler exposes the ledger over HTTP: net/http routing with
// hand-written jx encoding on top of the domain services.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/analytics"
	"github.com/xenking/rimae-ledger/internal/domain/auth"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
	"github.com/xenking/rimae-ledger/internal/domain/order"
	"github.com/xenking/rimae-ledger/internal/domain/payment"
	"github.com/xenking/rimae-ledger/internal/domain/review"
	"github.com/xenking/rimae-ledger/internal/domain/shipment"
)

// DefaultPageSize is the number of results per listing page.
const DefaultPageSize = 20

// CatalogService is the catalog store.
type CatalogService interface {
	List(ctx context.Context, page domain.Page) ([]catalog.Product, int, error)
	Get(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*catalog.Variant, error)
	Create(ctx context.Context, p *catalog.Product) error
	Update(ctx context.Context, p *catalog.Product) error
	Categories(ctx context.Context, includeInactive bool) ([]catalog.Category, error)
	CreateCategory(ctx context.Context, c *catalog.Category) error
}

// CartService is the per-user cart.
type CartService interface {
	Get(ctx context.Context, userID uuid.UUID) (*cart.View, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID, quantity int) (*cart.View, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*cart.View, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*cart.View, error)
	Wishlist(ctx context.Context, userID uuid.UUID) ([]cart.Wish, error)
	AddWish(ctx context.Context, userID, productID uuid.UUID) (*cart.Wish, bool, error)
	RemoveWish(ctx context.Context, userID, productID uuid.UUID) error
}

// OrderService is the order ledger.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*order.Order, error)
	List(ctx context.Context, f order.Filter, page domain.Page) ([]order.Order, int, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page domain.Page) ([]order.Order, int, error)
	AdminUpdate(ctx context.Context, id uuid.UUID, upd order.AdminUpdate) (*order.Order, error)
	Pay(ctx context.Context, userID, id uuid.UUID) (*order.Order, *payment.Payment, error)
}

// CouponService manages coupons and previews discounts.
type CouponService interface {
	Preview(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Discount, error)
	List(ctx context.Context, page domain.Page) ([]coupon.Coupon, int, error)
	Get(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error)
	Create(ctx context.Context, c *coupon.Coupon) error
	Update(ctx context.Context, c *coupon.Coupon) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// InventoryService is the stock ledger with purchase order receiving.
type InventoryService interface {
	List(ctx context.Context, page domain.Page) ([]inventory.Inventory, int, error)
	Get(ctx context.Context, id uuid.UUID) (*inventory.Inventory, error)
	LowStock(ctx context.Context) ([]inventory.Inventory, error)
	Movements(ctx context.Context, id uuid.UUID, page domain.Page) ([]inventory.Movement, int, error)
	Create(ctx context.Context, inv *inventory.Inventory) error
	Adjust(ctx context.Context, id uuid.UUID, delta int, typ inventory.MovementType, note string, actor *uuid.UUID) (*inventory.Inventory, *inventory.Movement, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, st inventory.Settings) (*inventory.Inventory, error)
	CreateSupplier(ctx context.Context, s *inventory.Supplier) error
	ListSuppliers(ctx context.Context, page domain.Page) ([]inventory.Supplier, int, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (*inventory.Supplier, error)
	UpdateSupplier(ctx context.Context, id uuid.UUID, upd inventory.SupplierUpdate) (*inventory.Supplier, error)
	DeactivateSupplier(ctx context.Context, id uuid.UUID) error
	CreatePurchaseOrder(ctx context.Context, po *inventory.PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*inventory.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status inventory.POStatus, page domain.Page) ([]inventory.PurchaseOrder, int, error)
	SetPurchaseOrderStatus(ctx context.Context, id uuid.UUID, status inventory.POStatus) (*inventory.PurchaseOrder, error)
	Receive(ctx context.Context, id uuid.UUID, receipts []inventory.Receipt, actor *uuid.UUID) (*inventory.PurchaseOrder, []inventory.Movement, error)
	ReceiveLine(ctx context.Context, lineID uuid.UUID, qty int, actor *uuid.UUID) (*inventory.PurchaseOrder, []inventory.Movement, error)
}

// ShipmentService is the shipment tracker.
type ShipmentService interface {
	Create(ctx context.Context, req shipment.CreateRequest) (*shipment.Shipment, error)
	Get(ctx context.Context, id uuid.UUID) (*shipment.Shipment, error)
	List(ctx context.Context, f shipment.Filter, page domain.Page) ([]shipment.Shipment, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next shipment.Status) (*shipment.Shipment, error)
	CreateCarrier(ctx context.Context, c *shipment.Carrier) error
	ListCarriers(ctx context.Context) ([]shipment.Carrier, error)
	Performance(ctx context.Context) ([]shipment.CarrierPerformance, error)
}

// ReviewService accepts and moderates product reviews.
type ReviewService interface {
	Submit(ctx context.Context, userID, productID uuid.UUID, r *review.Review) error
	Approved(ctx context.Context, productID uuid.UUID, page domain.Page) ([]review.Review, int, error)
	List(ctx context.Context, f review.Filter, page domain.Page) ([]review.Review, int, error)
	Moderate(ctx context.Context, id uuid.UUID, a review.Action, reply string) (*review.Review, error)
}

// AnalyticsService computes reports.
type AnalyticsService interface {
	UnitEconomics(ctx context.Context, r analytics.Range) (*analytics.Report, error)
	Dashboard(ctx context.Context, r analytics.Range) (*analytics.Dashboard, error)
}

// TokenVerifier resolves a bearer token to a principal.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Services groups the domain dependencies of the handler.
type Services struct {
	Catalog   CatalogService
	Cart      CartService
	Orders    OrderService
	Coupons   CouponService
	Inventory InventoryService
	Shipments ShipmentService
	Reviews   ReviewService
	Analytics AnalyticsService
}

// Handler serves the ledger API.
type Handler struct {
	svc      Services
	tokens   TokenVerifier
	pageSize int
}

// NewHandler constructs a Handler.
func NewHandler(svc Services, tokens TokenVerifier) *Handler {
	return &Handler{svc: svc, tokens: tokens, pageSize: DefaultPageSize}
}

// Register mounts every API route on mux below prefix.
func (h *Handler) Register(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimSuffix(prefix, "/")
	handle := func(pattern string, level access, fn handlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+prefix+path, h.route(level, fn))
	}

	// Catalog.
	handle("GET /products", public, h.listProducts)
	handle("GET /products/categories", public, h.listCategories)
	handle("GET /products/{id}", public, h.getProduct)
	handle("GET /variants/{id}", public, h.getVariant)
	handle("POST /admin/products", admin, h.createProduct)
	handle("PUT /admin/products/{id}", admin, h.updateProduct)
	handle("GET /admin/categories", admin, h.adminListCategories)
	handle("POST /admin/categories", admin, h.createCategory)

	// Cart.
	handle("GET /cart", customer, h.getCart)
	handle("POST /cart/items", customer, h.addCartItem)
	handle("PATCH /cart/items/{id}", customer, h.updateCartItem)
	handle("DELETE /cart/items/{id}", customer, h.removeCartItem)
	handle("GET /wishlist", customer, h.getWishlist)
	handle("POST /wishlist", customer, h.addWish)
	handle("DELETE /wishlist/{product_id}", customer, h.removeWish)

	// Reviews.
	handle("GET /products/{id}/reviews", public, h.listProductReviews)
	handle("POST /products/{id}/reviews", customer, h.submitReview)
	handle("GET /admin/reviews", admin, h.adminListReviews)
	handle("POST /admin/reviews/{id}/action", admin, h.moderateReview)

	// Orders.
	handle("POST /orders/create", customer, h.createOrder)
	handle("GET /orders", customer, h.listOrders)
	handle("GET /orders/{id}", customer, h.getOrder)
	handle("POST /orders/{id}/pay", customer, h.payOrder)
	handle("POST /coupons/apply", customer, h.applyCoupon)
	handle("GET /admin/orders", admin, h.adminListOrders)
	handle("GET /admin/orders/{id}", admin, h.adminGetOrder)
	handle("PATCH /admin/orders/{id}", admin, h.adminUpdateOrder)

	// Coupons.
	handle("GET /admin/coupons", admin, h.listCoupons)
	handle("POST /admin/coupons", admin, h.createCoupon)
	handle("GET /admin/coupons/{id}", admin, h.getCoupon)
	handle("PUT /admin/coupons/{id}", admin, h.updateCoupon)
	handle("DELETE /admin/coupons/{id}", admin, h.deleteCoupon)

	// Inventory.
	handle("GET /inventory", admin, h.listInventory)
	handle("POST /inventory", admin, h.createInventory)
	handle("GET /inventory/low-stock", admin, h.lowStock)
	handle("GET /inventory/{id}", admin, h.getInventory)
	handle("PATCH /inventory/{id}", admin, h.updateInventory)
	handle("POST /inventory/{id}/adjust", admin, h.adjustInventory)
	handle("GET /inventory/{id}/movements", admin, h.listMovements)
	handle("GET /suppliers", admin, h.listSuppliers)
	handle("POST /suppliers", admin, h.createSupplier)
	handle("GET /suppliers/{id}", admin, h.getSupplier)
	handle("PATCH /suppliers/{id}", admin, h.updateSupplier)
	handle("DELETE /suppliers/{id}", admin, h.deleteSupplier)
	handle("GET /purchase-orders", admin, h.listPurchaseOrders)
	handle("POST /purchase-orders", admin, h.createPurchaseOrder)
	handle("GET /purchase-orders/{id}", admin, h.getPurchaseOrder)
	handle("POST /purchase-orders/{id}/status", admin, h.setPurchaseOrderStatus)
	handle("POST /purchase-orders/{id}/receive", admin, h.receivePurchaseOrder)
	handle("POST /purchase-order-lines/{id}/receive", admin, h.receivePurchaseOrderLine)

	// Shipments.
	handle("GET /shipments", admin, h.listShipments)
	handle("POST /shipments", admin, h.createShipment)
	handle("GET /shipments/{id}", admin, h.getShipment)
	handle("POST /shipments/{id}/status", admin, h.updateShipmentStatus)
	handle("GET /carriers", admin, h.listCarriers)
	handle("POST /carriers", admin, h.createCarrier)
	handle("GET /carriers/performance", admin, h.carrierPerformance)

	// Analytics.
	handle("GET /analytics/unit-economics", admin, h.unitEconomics)
	handle("GET /analytics/unit-economics.xlsx", admin, h.unitEconomicsXLSX)
	handle("GET /analytics/dashboard", admin, h.dashboard)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

type access int

const (
	public access = iota
	customer
	admin
)

// route authenticates the caller for level and maps returned errors to
// responses.
func (h *Handler) route(level access, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if level != public {
			ctx, err := h.authenticate(r.Context(), r.Header.Get("Authorization"), level == admin)
			if err != nil {
				writeError(w, r, err)
				return
			}
			r = r.WithContext(ctx)
		}
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

func (h *Handler) authenticate(ctx context.Context, header string, requireAdmin bool) (context.Context, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ctx, auth.ErrUnauthenticated
	}
	p, err := h.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return ctx, err
	}
	ctx = auth.With(ctx, p)
	if _, err := auth.Require(ctx, requireAdmin); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// caller returns the authenticated principal. Routes are registered with an
// access level, so a missing principal is a wiring bug reported as 401.
func caller(r *http.Request) (auth.Principal, error) {
	return auth.Require(r.Context(), false)
}

// actorID is the principal id used to attribute ledger movements.
func actorID(r *http.Request) *uuid.UUID {
	p, ok := auth.From(r.Context())
	if !ok {
		return nil
	}
	id := p.UserID
	return &id
}
