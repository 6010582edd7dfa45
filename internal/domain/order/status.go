package order

import (
	"fmt"
	"time"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// forward is the main line; an order may skip ahead but never go back.
var forward = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := forward[s]
	return ok || s == StatusCancelled || s == StatusReturned
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

// Source identifies who requested a status change.
type Source string

const (
	SourceAdmin    Source = "admin"
	SourceShipment Source = "shipment"
)

// TransitionError is returned for a status change the state machine forbids.
type TransitionError struct {
	From   Status
	To     Status
	Source Source
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s (%s)", e.From, e.To, e.Source)
}

// SetStatus moves the order to next. Setting the current status again is a
// no-op. Entering delivered stamps DeliveredAt once.
func (o *Order) SetStatus(next Status, src Source, now time.Time) (bool, error) {
	if !next.Valid() {
		return false, domain.Invalid("status", fmt.Sprintf("unknown status %q", next))
	}
	if src == SourceShipment && next != StatusDelivered {
		return false, &TransitionError{From: o.Status, To: next, Source: src}
	}
	if next == o.Status {
		return false, nil
	}
	if !CanTransition(o.Status, next) {
		return false, &TransitionError{From: o.Status, To: next, Source: src}
	}

	o.Status = next
	if next == StatusDelivered && o.DeliveredAt == nil {
		at := now
		o.DeliveredAt = &at
	}
	return true, nil
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == StatusCancelled || to == StatusReturned {
		return true
	}
	fromRank, ok := forward[from]
	if !ok {
		return false
	}
	toRank, ok := forward[to]
	return ok && toRank > fromRank
}
