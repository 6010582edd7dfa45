package inventory

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
)

var (
	// ErrPurchaseOrderNotFound is returned for unknown purchase orders or lines.
	ErrPurchaseOrderNotFound = errors.Wrap(domain.ErrNotFound, "purchase order")
	// ErrPurchaseOrderClosed is returned when receiving into a received or
	// cancelled purchase order.
	ErrPurchaseOrderClosed = errors.New("purchase order is closed")
)

// POStatus is the lifecycle state of a purchase order.
type POStatus string

const (
	PODraft     POStatus = "draft"
	POOrdered   POStatus = "ordered"
	POPartial   POStatus = "partial"
	POReceived  POStatus = "received"
	POCancelled POStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s POStatus) Valid() bool {
	switch s {
	case PODraft, POOrdered, POPartial, POReceived, POCancelled:
		return true
	}
	return false
}

// Closed reports whether the order accepts no more receipts.
func (s POStatus) Closed() bool {
	return s == POReceived || s == POCancelled
}

// PurchaseOrder is a restocking order placed with a supplier.
type PurchaseOrder struct {
	ID          uuid.UUID
	PONumber    string
	SupplierID  uuid.UUID
	Status      POStatus
	TotalAmount decimal.Decimal
	Notes       string
	OrderedAt   *time.Time
	ExpectedAt  *time.Time
	ReceivedAt  *time.Time
	CreatedAt   time.Time
	Lines       []Line
}

// Line is one product line of a purchase order.
type Line struct {
	ID               uuid.UUID
	ProductID        uuid.UUID
	VariantID        *uuid.UUID
	QuantityOrdered  int
	QuantityReceived int
	UnitCost         decimal.Decimal
	TotalCost        decimal.Decimal
}

// Complete reports whether everything ordered has arrived.
func (l *Line) Complete() bool {
	return l.QuantityReceived >= l.QuantityOrdered
}

// Receipt is a quantity received against a line.
type Receipt struct {
	LineID   uuid.UUID
	Quantity int
}

// NewPONumber returns a purchase order number: PO and a UTC timestamp.
func NewPONumber(now time.Time) string {
	return "PO" + now.UTC().Format("20060102150405") + uuid.NewString()[:4]
}

// DeriveStatus returns received when every line is complete, partial when
// any line has received stock, and current otherwise.
func DeriveStatus(current POStatus, lines []Line) POStatus {
	if len(lines) == 0 {
		return current
	}
	complete, started := true, false
	for i := range lines {
		if !lines[i].Complete() {
			complete = false
		}
		if lines[i].QuantityReceived > 0 {
			started = true
		}
	}
	switch {
	case complete:
		return POReceived
	case started:
		return POPartial
	default:
		return current
	}
}

// ReceiveLines books receipts onto po's lines and recomputes its status.
// It returns the lines touched, in receipt order.
func ReceiveLines(po *PurchaseOrder, receipts []Receipt, now time.Time) ([]*Line, error) {
	if po.Status.Closed() {
		return nil, errors.Wrapf(ErrPurchaseOrderClosed, "%s is %s", po.PONumber, po.Status)
	}
	if len(receipts) == 0 {
		return nil, domain.Invalid("items", "nothing to receive")
	}

	byID := make(map[uuid.UUID]*Line, len(po.Lines))
	for i := range po.Lines {
		byID[po.Lines[i].ID] = &po.Lines[i]
	}

	// Validate everything before mutating so a rejected batch leaves po as is.
	pending := make(map[uuid.UUID]int, len(receipts))
	touched := make([]*Line, 0, len(receipts))
	for _, r := range receipts {
		line, ok := byID[r.LineID]
		if !ok {
			return nil, ErrPurchaseOrderNotFound
		}
		if r.Quantity < 1 {
			return nil, domain.Invalid("quantity_received", "must be at least 1")
		}
		pending[line.ID] += r.Quantity
		if outstanding := line.QuantityOrdered - line.QuantityReceived; pending[line.ID] > outstanding {
			return nil, domain.Invalid("quantity_received",
				fmt.Sprintf("line %s: receiving %d exceeds outstanding %d", line.ID, pending[line.ID], outstanding))
		}
		touched = append(touched, line)
	}
	for _, r := range receipts {
		byID[r.LineID].QuantityReceived += r.Quantity
	}

	po.Status = DeriveStatus(po.Status, po.Lines)
	if po.Status == POReceived && po.ReceivedAt == nil {
		at := now
		po.ReceivedAt = &at
	}
	return touched, nil
}
