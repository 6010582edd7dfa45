package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// Service is the inventory ledger: stock counters, their audit trail and
// purchase-order receiving.
type Service struct {
	stock         Repository
	purchases     PurchaseRepository
	allowNegative bool
	now           func() time.Time
}

// NewService creates an inventory Service. allowNegative selects whether
// stock may drop below zero.
func NewService(stock Repository, purchases PurchaseRepository, allowNegative bool) *Service {
	return &Service{
		stock:         stock,
		purchases:     purchases,
		allowNegative: allowNegative,
		now:           time.Now,
	}
}

func (s *Service) options() Options {
	return Options{AllowNegative: s.allowNegative, Now: s.now()}
}

// List returns a page of stock rows.
func (s *Service) List(ctx context.Context, page domain.Page) ([]Inventory, int, error) {
	return s.stock.List(ctx, page)
}

// Get returns a stock row.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Inventory, error) {
	return s.stock.GetByID(ctx, id)
}

// LowStock lists rows whose available stock is at or below the reorder level.
func (s *Service) LowStock(ctx context.Context) ([]Inventory, error) {
	return s.stock.LowStock(ctx)
}

// Movements returns the audit trail of a stock row, newest first.
func (s *Service) Movements(ctx context.Context, id uuid.UUID, page domain.Page) ([]Movement, int, error) {
	if _, err := s.stock.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.stock.Movements(ctx, id, page)
}

// Create registers a stock row for a product (and optional variant) with
// zero quantity. Opening stock is booked through Adjust so it is audited.
func (s *Service) Create(ctx context.Context, inv *Inventory) error {
	if inv.ProductID == uuid.Nil {
		return domain.Invalid("product_id", "required")
	}
	if inv.ReorderLevel < 0 || inv.ReorderQuantity < 0 {
		return domain.Invalid("reorder_level", "must not be negative")
	}
	if err := domain.CheckQuantity("reorder_quantity", inv.ReorderQuantity); err != nil {
		return err
	}
	if inv.ReorderLevel == 0 {
		inv.ReorderLevel = DefaultReorderLevel
	}
	if inv.ReorderQuantity == 0 {
		inv.ReorderQuantity = DefaultReorderQuantity
	}
	inv.ID = uuid.New()
	inv.Quantity = 0
	inv.ReservedQuantity = 0
	inv.UpdatedAt = s.now()
	if err := s.stock.Create(ctx, inv); err != nil {
		return errors.Wrap(err, "create inventory")
	}
	return nil
}

// Adjust changes the stock of one row by delta and records the movement.
func (s *Service) Adjust(ctx context.Context, id uuid.UUID, delta int, typ MovementType, note string, actor *uuid.UUID) (*Inventory, *Movement, error) {
	ch := Change{
		Delta:         delta,
		Type:          typ,
		ReferenceType: RefManual,
		Notes:         strings.TrimSpace(note),
		ActorID:       actor,
	}
	// Reject malformed input before taking a row lock.
	probe := Inventory{Quantity: 0}
	if _, err := Apply(&probe, ch, Options{AllowNegative: true}); err != nil {
		return nil, nil, err
	}
	return s.stock.Adjust(ctx, id, ch, s.options())
}

// UpdateSettings edits the reorder and storage settings of a row.
func (s *Service) UpdateSettings(ctx context.Context, id uuid.UUID, st Settings) (*Inventory, error) {
	now := s.now()
	return s.stock.Update(ctx, id, func(inv *Inventory) (bool, error) {
		changed, err := st.apply(inv)
		if changed {
			inv.UpdatedAt = now
		}
		return changed, err
	})
}

// SupplierUpdate is a partial edit of a supplier. Nil fields are unchanged.
type SupplierUpdate struct {
	Name          *string
	ContactPerson *string
	Email         *string
	Phone         *string
	Address       *string
	IsActive      *bool
}

// CreateSupplier stores a new supplier.
func (s *Service) CreateSupplier(ctx context.Context, sup *Supplier) error {
	if strings.TrimSpace(sup.Name) == "" {
		return domain.Invalid("name", "required")
	}
	sup.ID = uuid.New()
	sup.IsActive = true
	sup.CreatedAt = s.now()
	if err := s.purchases.CreateSupplier(ctx, sup); err != nil {
		return errors.Wrap(err, "create supplier")
	}
	return nil
}

// ListSuppliers returns a page of suppliers.
func (s *Service) ListSuppliers(ctx context.Context, page domain.Page) ([]Supplier, int, error) {
	return s.purchases.ListSuppliers(ctx, page)
}

// GetSupplier returns one supplier.
func (s *Service) GetSupplier(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	return s.purchases.GetSupplier(ctx, id)
}

// UpdateSupplier applies a partial edit to a supplier.
func (s *Service) UpdateSupplier(ctx context.Context, id uuid.UUID, upd SupplierUpdate) (*Supplier, error) {
	sup, err := s.purchases.GetSupplier(ctx, id)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&sup.Name, upd.Name)
	set(&sup.ContactPerson, upd.ContactPerson)
	set(&sup.Email, upd.Email)
	set(&sup.Phone, upd.Phone)
	set(&sup.Address, upd.Address)
	if upd.IsActive != nil {
		sup.IsActive = *upd.IsActive
	}
	if sup.Name == "" {
		return nil, domain.Invalid("name", "required")
	}
	if err := s.purchases.UpdateSupplier(ctx, sup); err != nil {
		return nil, errors.Wrap(err, "update supplier")
	}
	return sup, nil
}

// DeactivateSupplier marks a supplier inactive. Suppliers are never deleted
// since purchase orders reference them.
func (s *Service) DeactivateSupplier(ctx context.Context, id uuid.UUID) error {
	inactive := false
	_, err := s.UpdateSupplier(ctx, id, SupplierUpdate{IsActive: &inactive})
	return err
}

// CreatePurchaseOrder validates lines, computes totals and stores a draft
// (or ordered, when requested) purchase order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error {
	if po.SupplierID == uuid.Nil {
		return domain.Invalid("supplier_id", "required")
	}
	if len(po.Lines) == 0 {
		return domain.Invalid("items", "at least one line required")
	}
	switch po.Status {
	case "":
		po.Status = PODraft
	case PODraft, POOrdered:
	default:
		return domain.Invalid("status", "new purchase orders must be draft or ordered")
	}

	now := s.now()
	po.ID = uuid.New()
	po.PONumber = NewPONumber(now)
	po.CreatedAt = now
	po.TotalAmount = decimal.Zero
	if po.Status == POOrdered {
		po.OrderedAt = &now
	}
	for i := range po.Lines {
		l := &po.Lines[i]
		if l.ProductID == uuid.Nil {
			return domain.Invalid("items", "product_id required")
		}
		if l.QuantityOrdered < 1 {
			return domain.Invalid("quantity_ordered", "must be at least 1")
		}
		if err := domain.CheckQuantity("quantity_ordered", l.QuantityOrdered); err != nil {
			return err
		}
		if l.UnitCost.IsNegative() {
			return domain.Invalid("unit_cost", "must not be negative")
		}
		l.ID = uuid.New()
		l.QuantityReceived = 0
		l.TotalCost = LineTotal(l.QuantityOrdered, l.UnitCost)
		po.TotalAmount = po.TotalAmount.Add(l.TotalCost)
	}

	if err := s.purchases.CreatePurchaseOrder(ctx, po); err != nil {
		return errors.Wrap(err, "create purchase order")
	}
	return nil
}

// GetPurchaseOrder returns a purchase order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	return s.purchases.GetPurchaseOrder(ctx, id)
}

// ListPurchaseOrders returns a page of purchase orders, optionally by status.
func (s *Service) ListPurchaseOrders(ctx context.Context, status POStatus, page domain.Page) ([]PurchaseOrder, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.Invalid("status", "unknown status "+string(status))
	}
	return s.purchases.ListPurchaseOrders(ctx, status, page)
}

// SetPurchaseOrderStatus places (draft -> ordered) or cancels a purchase order.
// Partial and received states are only reached by receiving stock.
func (s *Service) SetPurchaseOrderStatus(ctx context.Context, id uuid.UUID, status POStatus) (*PurchaseOrder, error) {
	now := s.now()
	return s.purchases.UpdatePurchaseOrder(ctx, id, func(po *PurchaseOrder) error {
		switch {
		case po.Status == status:
			return nil
		case status == POOrdered && po.Status == PODraft:
			po.OrderedAt = &now
		case status == POCancelled && (po.Status == PODraft || po.Status == POOrdered):
		default:
			return domain.Invalid("status", "cannot move purchase order from "+string(po.Status)+" to "+string(status))
		}
		po.Status = status
		return nil
	})
}

// Receive books received quantities for several lines of one purchase order.
func (s *Service) Receive(ctx context.Context, id uuid.UUID, receipts []Receipt, actor *uuid.UUID) (*PurchaseOrder, []Movement, error) {
	if len(receipts) == 0 {
		return nil, nil, domain.Invalid("items", "nothing to receive")
	}
	return s.purchases.Receive(ctx, id, receipts, s.options(), actor)
}

// ReceiveLine books a received quantity for a single purchase order line.
func (s *Service) ReceiveLine(ctx context.Context, lineID uuid.UUID, qty int, actor *uuid.UUID) (*PurchaseOrder, []Movement, error) {
	poID, err := s.purchases.PurchaseOrderIDForLine(ctx, lineID)
	if err != nil {
		return nil, nil, err
	}
	return s.Receive(ctx, poID, []Receipt{{LineID: lineID, Quantity: qty}}, actor)
}
