package inventory

import (
	"github.com/google/uuid"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// Apply computes the effect of ch on inv. On success inv is updated in place
// and the matching movement is returned; on error inv is untouched.
func Apply(inv *Inventory, ch Change, opts Options) (Movement, error) {
	if !ch.Type.Valid() {
		return Movement{}, domain.Invalid("movement_type", "unknown movement type "+string(ch.Type))
	}
	if ch.Delta == 0 {
		return Movement{}, domain.Invalid("quantity", "must not be zero")
	}
	if err := domain.CheckQuantity("quantity", ch.Delta); err != nil {
		return Movement{}, err
	}
	switch ch.Type {
	case MovementIn, MovementReturn:
		if ch.Delta < 0 {
			return Movement{}, domain.Invalid("quantity", string(ch.Type)+" movements must add stock")
		}
	case MovementOut:
		if ch.Delta > 0 {
			return Movement{}, domain.Invalid("quantity", "out movements must remove stock")
		}
	}

	prev := inv.Quantity
	next := prev + ch.Delta
	if next < 0 && !opts.AllowNegative {
		return Movement{}, &NegativeStockError{InventoryID: inv.ID, Current: prev, Delta: ch.Delta}
	}

	inv.Quantity = next
	inv.UpdatedAt = opts.Now
	if ch.Type == MovementIn {
		at := opts.Now
		inv.LastRestocked = &at
	}

	refType := ch.ReferenceType
	if refType == "" {
		refType = RefManual
	}
	return Movement{
		ID:               uuid.New(),
		InventoryID:      inv.ID,
		Type:             ch.Type,
		Quantity:         ch.Delta,
		PreviousQuantity: prev,
		NewQuantity:      next,
		ReferenceType:    refType,
		ReferenceID:      ch.ReferenceID,
		Notes:            ch.Notes,
		CreatedBy:        ch.ActorID,
		CreatedAt:        opts.Now,
	}, nil
}
