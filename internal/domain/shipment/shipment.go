// Package shipment tracks parcels from pickup to delivery and feeds courier
// charges and delivery events back into the order ledger.
package shipment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
)

var (
	ErrNotFound        = errors.Wrap(domain.ErrNotFound, "shipment")
	ErrCarrierNotFound = errors.Wrap(domain.ErrNotFound, "carrier")
	// ErrDuplicate is returned when the order already has a shipment.
	ErrDuplicate = errors.Wrap(domain.ErrConflict, "order already has a shipment")
	// ErrOrderClosed is returned when delivering a parcel whose order was
	// cancelled or returned.
	ErrOrderClosed = errors.Wrap(domain.ErrConflict, "order is cancelled or returned")
)

// Status is the delivery state of a shipment.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPickedUp       Status = "picked_up"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusFailed         Status = "failed"
	StatusReturned       Status = "returned"
)

var forward = map[Status]int{
	StatusPending:        0,
	StatusPickedUp:       1,
	StatusInTransit:      2,
	StatusOutForDelivery: 3,
	StatusDelivered:      4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := forward[s]
	return ok || s == StatusFailed || s == StatusReturned
}

// Terminal reports whether s accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusReturned
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	if from == StatusFailed {
		return to == StatusReturned
	}
	if to == StatusFailed || to == StatusReturned {
		return true
	}
	fromRank, ok := forward[from]
	if !ok {
		return false
	}
	toRank, ok := forward[to]
	return ok && toRank > fromRank
}

// TransitionError is returned for a status change the state machine forbids.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move shipment from %s to %s", e.From, e.To)
}

// Shipment is the single parcel of an order.
type Shipment struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	CarrierID       *uuid.UUID
	TrackingNumber  string
	TrackingURL     string
	Status          Status
	ShippingCharged decimal.Decimal
	ShippingCost    decimal.Decimal
	PackagingCost   decimal.Decimal
	WeightGrams     *int
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Display fields.
	OrderNumber string
	CarrierName string
}

// ProfitLoss is what the customer paid for shipping minus what it cost us.
func (s *Shipment) ProfitLoss() decimal.Decimal {
	return s.ShippingCharged.Sub(s.ShippingCost).Sub(s.PackagingCost)
}

// SetStatus moves the shipment to next. Setting the current status is a no-op.
// The first move past pending stamps ShippedAt and delivery stamps DeliveredAt.
func (s *Shipment) SetStatus(next Status, now time.Time) (bool, error) {
	if !next.Valid() {
		return false, domain.Invalid("status", fmt.Sprintf("unknown status %q", next))
	}
	if next == s.Status {
		return false, nil
	}
	if !CanTransition(s.Status, next) {
		return false, &TransitionError{From: s.Status, To: next}
	}

	s.Status = next
	if rank, ok := forward[next]; ok && rank > 0 && s.ShippedAt == nil {
		at := now
		s.ShippedAt = &at
	}
	if next == StatusDelivered && s.DeliveredAt == nil {
		at := now
		s.DeliveredAt = &at
	}
	s.UpdatedAt = now
	return true, nil
}

// Carrier is a courier partner.
type Carrier struct {
	ID                  uuid.UUID
	Name                string
	Code                string
	TrackingURLTemplate string
	IsActive            bool
}

const trackingPlaceholder = "{tracking_number}"

// TrackingURL renders the carrier's template for a tracking number.
func (c *Carrier) TrackingURL(number string) string {
	if c.TrackingURLTemplate == "" || number == "" {
		return ""
	}
	return strings.ReplaceAll(c.TrackingURLTemplate, trackingPlaceholder, number)
}

// Validate checks a carrier before it is stored.
func (c *Carrier) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.Invalid("name", "required")
	}
	if strings.TrimSpace(c.Code) == "" {
		return domain.Invalid("code", "required")
	}
	if c.TrackingURLTemplate != "" && !strings.Contains(c.TrackingURLTemplate, trackingPlaceholder) {
		return domain.Invalid("tracking_url_template", "must contain "+trackingPlaceholder)
	}
	return nil
}

// Filter narrows shipment listings.
type Filter struct {
	Status    Status
	CarrierID *uuid.UUID
}

// UpdateFunc mutates a locked shipment and reports whether it changed.
type UpdateFunc func(s *Shipment) (bool, error)

// Repository defines storage for shipments and carriers.
type Repository interface {
	Create(ctx context.Context, s *Shipment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Shipment, error)
	List(ctx context.Context, f Filter, page domain.Page) ([]Shipment, int, error)
	// Update locks the shipment, runs fn and persists when fn reports a change.
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*Shipment, error)
	// Delivered returns every delivered shipment with a carrier.
	Delivered(ctx context.Context) ([]Shipment, error)

	CreateCarrier(ctx context.Context, c *Carrier) error
	GetCarrier(ctx context.Context, id uuid.UUID) (*Carrier, error)
	ListCarriers(ctx context.Context) ([]Carrier, error)
}
