package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
)

var (
	// ErrNotFound is returned when an inventory row does not exist.
	ErrNotFound = errors.Wrap(domain.ErrNotFound, "inventory")
	// ErrNegativeStock is returned when a change would take stock below zero
	// and the policy forbids it.
	ErrNegativeStock = errors.New("insufficient stock")
	// ErrConflict is returned when concurrent writers kept winning the row lock.
	ErrConflict = errors.Wrap(domain.ErrConflict, "inventory")
	// ErrSupplierNotFound is returned when a supplier does not exist.
	ErrSupplierNotFound = errors.Wrap(domain.ErrNotFound, "supplier")
)

// NegativeStockError describes a rejected change.
type NegativeStockError struct {
	InventoryID uuid.UUID
	Current     int
	Delta       int
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("inventory %s: %d on hand, change of %d would go negative", e.InventoryID, e.Current, e.Delta)
}

func (e *NegativeStockError) Is(target error) bool { return target == ErrNegativeStock }

// Inventory is the stock counter of one (product, variant) pair.
type Inventory struct {
	ID                uuid.UUID
	ProductID         uuid.UUID
	VariantID         *uuid.UUID
	Quantity          int
	ReservedQuantity  int
	ReorderLevel      int
	ReorderQuantity   int
	WarehouseLocation string
	BatchNumber       string
	LastRestocked     *time.Time
	UpdatedAt         time.Time

	// Display fields joined from the catalog.
	ProductName string
	SKU         string
}

// Default reorder settings for rows created on first receipt.
const (
	DefaultReorderLevel    = 10
	DefaultReorderQuantity = 50
)

// Available is stock that is not committed to unfulfilled orders.
func (i *Inventory) Available() int {
	return i.Quantity - i.ReservedQuantity
}

// NeedsReorder reports whether available stock is at or below the reorder level.
func (i *Inventory) NeedsReorder() bool {
	return i.Available() <= i.ReorderLevel
}

// MovementType classifies a stock change.
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
	MovementTransfer   MovementType = "transfer"
	MovementReturn     MovementType = "return"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer, MovementReturn:
		return true
	}
	return false
}

// Movement is one append-only record of a stock change.
// NewQuantity always equals PreviousQuantity + Quantity.
type Movement struct {
	ID               uuid.UUID
	InventoryID      uuid.UUID
	Type             MovementType
	Quantity         int
	PreviousQuantity int
	NewQuantity      int
	ReferenceType    string
	ReferenceID      *uuid.UUID
	Notes            string
	CreatedBy        *uuid.UUID
	CreatedAt        time.Time
}

// Reference types recorded on movements.
const (
	RefPurchaseOrder = "purchase_order"
	RefManual        = "manual"
)

// Change is a requested stock change.
type Change struct {
	Delta         int
	Type          MovementType
	ReferenceType string
	ReferenceID   *uuid.UUID
	Notes         string
	ActorID       *uuid.UUID
}

// Options control how changes are applied.
type Options struct {
	AllowNegative bool
	Now           time.Time
}

// Settings is a partial edit of the non-stock fields of a row. Nil fields
// are left unchanged; quantities only move through Adjust.
type Settings struct {
	ReorderLevel      *int
	ReorderQuantity   *int
	WarehouseLocation *string
	BatchNumber       *string
}

// apply copies the set fields onto inv and reports whether anything changed.
func (st Settings) apply(inv *Inventory) (bool, error) {
	if st.ReorderLevel != nil && *st.ReorderLevel < 0 {
		return false, domain.Invalid("reorder_level", "must not be negative")
	}
	if st.ReorderQuantity != nil && *st.ReorderQuantity < 0 {
		return false, domain.Invalid("reorder_quantity", "must not be negative")
	}
	for field, v := range map[string]*int{"reorder_level": st.ReorderLevel, "reorder_quantity": st.ReorderQuantity} {
		if v == nil {
			continue
		}
		if err := domain.CheckQuantity(field, *v); err != nil {
			return false, err
		}
	}
	changed := false
	if st.ReorderLevel != nil && *st.ReorderLevel != inv.ReorderLevel {
		inv.ReorderLevel = *st.ReorderLevel
		changed = true
	}
	if st.ReorderQuantity != nil && *st.ReorderQuantity != inv.ReorderQuantity {
		inv.ReorderQuantity = *st.ReorderQuantity
		changed = true
	}
	if st.WarehouseLocation != nil && *st.WarehouseLocation != inv.WarehouseLocation {
		inv.WarehouseLocation = *st.WarehouseLocation
		changed = true
	}
	if st.BatchNumber != nil && *st.BatchNumber != inv.BatchNumber {
		inv.BatchNumber = *st.BatchNumber
		changed = true
	}
	return changed, nil
}

// Supplier is a vendor that purchase orders are placed with.
type Supplier struct {
	ID            uuid.UUID
	Name          string
	ContactPerson string
	Email         string
	Phone         string
	Address       string
	IsActive      bool
	CreatedAt     time.Time
}

// Repository defines storage for stock counters and their movement log.
type Repository interface {
	List(ctx context.Context, page domain.Page) ([]Inventory, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Inventory, error)
	LowStock(ctx context.Context) ([]Inventory, error)
	Movements(ctx context.Context, inventoryID uuid.UUID, page domain.Page) ([]Movement, int, error)
	Create(ctx context.Context, inv *Inventory) error
	// Adjust locks the row, applies ch with Apply and appends the movement in
	// one transaction.
	Adjust(ctx context.Context, id uuid.UUID, ch Change, opts Options) (*Inventory, *Movement, error)
	// Update locks the row and persists the settings changed by fn. It never
	// writes quantities.
	Update(ctx context.Context, id uuid.UUID, fn func(inv *Inventory) (bool, error)) (*Inventory, error)
}

// PurchaseRepository defines storage for suppliers and purchase orders.
type PurchaseRepository interface {
	CreateSupplier(ctx context.Context, s *Supplier) error
	ListSuppliers(ctx context.Context, page domain.Page) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (*Supplier, error)
	UpdateSupplier(ctx context.Context, s *Supplier) error
	CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status POStatus, page domain.Page) ([]PurchaseOrder, int, error)
	// PurchaseOrderIDForLine resolves the parent of a line.
	PurchaseOrderIDForLine(ctx context.Context, lineID uuid.UUID) (uuid.UUID, error)
	// UpdatePurchaseOrder locks the order and persists header changes made by fn.
	UpdatePurchaseOrder(ctx context.Context, id uuid.UUID, fn func(po *PurchaseOrder) error) (*PurchaseOrder, error)
	// Receive applies receipts to the lines with ReceiveLines, books an "in"
	// movement per receipt and persists the derived status, atomically.
	Receive(ctx context.Context, id uuid.UUID, receipts []Receipt, opts Options, actor *uuid.UUID) (*PurchaseOrder, []Movement, error)
}

// LineTotal is quantity times unit cost rounded to cents.
func LineTotal(qty int, unitCost decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(int64(qty))).Round(2)
}
