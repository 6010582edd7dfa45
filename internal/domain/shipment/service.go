package shipment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/order"
)

// OrderLedger is the part of the order ledger the tracker reports back to.
type OrderLedger interface {
	Get(ctx context.Context, id uuid.UUID) (*order.Order, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordShippingCosts(ctx context.Context, id uuid.UUID, shipping, packaging decimal.Decimal) error
}

// CreateRequest describes a new shipment.
type CreateRequest struct {
	OrderID        uuid.UUID
	CarrierID      *uuid.UUID
	TrackingNumber string
	ShippingCost   decimal.Decimal
	PackagingCost  decimal.Decimal
	WeightGrams    *int
}

// Service is the shipment tracker.
type Service struct {
	repo   Repository
	orders OrderLedger
	now    func() time.Time
}

// NewService creates a shipment tracker that reports to orders.
func NewService(repo Repository, orders OrderLedger) *Service {
	return &Service{repo: repo, orders: orders, now: time.Now}
}

// Create opens the shipment of an order. The charged amount is the order's
// shipping fee and the courier costs are copied onto the order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Shipment, error) {
	if req.ShippingCost.IsNegative() {
		return nil, domain.Invalid("shipping_cost", "must not be negative")
	}
	if req.PackagingCost.IsNegative() {
		return nil, domain.Invalid("packaging_cost", "must not be negative")
	}
	if req.WeightGrams != nil && *req.WeightGrams <= 0 {
		return nil, domain.Invalid("weight", "must be positive")
	}

	o, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusCancelled || o.Status == order.StatusReturned {
		return nil, domain.Invalid("order_id", "order is "+string(o.Status))
	}

	now := s.now()
	sh := &Shipment{
		ID:              uuid.New(),
		OrderID:         o.ID,
		CarrierID:       req.CarrierID,
		TrackingNumber:  strings.TrimSpace(req.TrackingNumber),
		Status:          StatusPending,
		ShippingCharged: o.ShippingAmount,
		ShippingCost:    req.ShippingCost.Round(2),
		PackagingCost:   req.PackagingCost.Round(2),
		WeightGrams:     req.WeightGrams,
		CreatedAt:       now,
		UpdatedAt:       now,
		OrderNumber:     o.OrderNumber,
	}
	if req.CarrierID != nil {
		c, err := s.repo.GetCarrier(ctx, *req.CarrierID)
		if err != nil {
			return nil, err
		}
		if !c.IsActive {
			return nil, domain.Invalid("carrier_id", "carrier is inactive")
		}
		sh.TrackingURL = c.TrackingURL(sh.TrackingNumber)
		sh.CarrierName = c.Name
	}

	if err := s.repo.Create(ctx, sh); err != nil {
		return nil, err
	}
	if err := s.orders.RecordShippingCosts(ctx, o.ID, sh.ShippingCost, sh.PackagingCost); err != nil {
		return nil, errors.Wrap(err, "record shipping costs")
	}
	return sh, nil
}

// Get returns a shipment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Shipment, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of shipments.
func (s *Service) List(ctx context.Context, f Filter, page domain.Page) ([]Shipment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, domain.Invalid("status", "unknown status "+string(f.Status))
	}
	return s.repo.List(ctx, f, page)
}

// UpdateStatus moves a shipment along its state machine. Whenever the
// shipment ends up delivered the order ledger is told, so repeating a
// delivered update heals a delivery that failed to propagate.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next Status) (*Shipment, error) {
	if next == StatusDelivered {
		if err := s.checkDeliverable(ctx, id); err != nil {
			return nil, err
		}
	}
	now := s.now()
	sh, err := s.repo.Update(ctx, id, func(sh *Shipment) (bool, error) {
		return sh.SetStatus(next, now)
	})
	if err != nil {
		return nil, err
	}
	if sh.Status != StatusDelivered || next != StatusDelivered {
		return sh, nil
	}

	if err := s.orders.RecordShippingCosts(ctx, sh.OrderID, sh.ShippingCost, sh.PackagingCost); err != nil {
		return sh, errors.Wrap(err, "record shipping costs")
	}
	if err := s.orders.MarkDelivered(ctx, sh.OrderID, *sh.DeliveredAt); err != nil {
		return sh, errors.Wrap(err, "mark order delivered")
	}
	return sh, nil
}

// checkDeliverable refuses a delivery the order ledger could never accept.
func (s *Service) checkDeliverable(ctx context.Context, id uuid.UUID) error {
	sh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	o, err := s.orders.Get(ctx, sh.OrderID)
	if err != nil {
		return errors.Wrap(err, "get order")
	}
	if o.Status == order.StatusCancelled || o.Status == order.StatusReturned {
		return ErrOrderClosed
	}
	return nil
}

// CreateCarrier stores a courier partner.
func (s *Service) CreateCarrier(ctx context.Context, c *Carrier) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if err := c.Validate(); err != nil {
		return err
	}
	c.ID = uuid.New()
	return s.repo.CreateCarrier(ctx, c)
}

// ListCarriers returns every carrier.
func (s *Service) ListCarriers(ctx context.Context) ([]Carrier, error) {
	return s.repo.ListCarriers(ctx)
}

// Performance reports delivery economics per carrier.
func (s *Service) Performance(ctx context.Context) ([]CarrierPerformance, error) {
	carriers, err := s.repo.ListCarriers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list carriers")
	}
	delivered, err := s.repo.Delivered(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list delivered")
	}
	return Performance(carriers, delivered), nil
}
