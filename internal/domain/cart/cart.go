package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
)

// ErrNotFound is returned for cart items that are missing or belong to
// another user.
var ErrNotFound = errors.Wrap(domain.ErrNotFound, "cart item")

// Cart is the single mutable basket owned by a user.
type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []Item
	UpdatedAt time.Time
}

// Item is one (product, variant) line. Quantity is always at least 1.
type Item struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
	AddedAt   time.Time
}

// Line is an Item priced against the live catalog.
type Line struct {
	Item
	catalog.Snapshot
	Total decimal.Decimal
	// Available is false once the product or variant was deactivated.
	Available bool
}

// View is a cart with live prices, used for display only.
type View struct {
	Cart
	Lines    []Line
	Subtotal decimal.Decimal
	Count    int
}

// ProductIDs returns the distinct product ids referenced by the cart.
func (c *Cart) ProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(c.Items))
	ids := make([]uuid.UUID, 0, len(c.Items))
	for _, it := range c.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

// Repository defines persistence operations for carts.
type Repository interface {
	// GetOrCreate returns the user's cart, creating an empty one if needed.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error)
	// AddItem inserts a line or increments the quantity of the matching
	// (product, variant) line.
	AddItem(ctx context.Context, cartID uuid.UUID, item Item) (*Item, error)
	SetQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error
}
