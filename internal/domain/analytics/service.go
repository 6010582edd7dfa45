package analytics

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
	"github.com/xenking/rimae-ledger/internal/domain/order"
	"github.com/xenking/rimae-ledger/internal/domain/shipment"
)

// Range bounds a report by order creation time. Nil ends are open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Validate rejects inverted ranges.
func (r Range) Validate() error {
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return domain.Invalid("to", "must be after from")
	}
	return nil
}

// OrderSource loads delivered orders.
type OrderSource interface {
	Economics(ctx context.Context, from, to *time.Time) ([]order.Order, error)
}

// CarrierSource reports carrier performance.
type CarrierSource interface {
	Performance(ctx context.Context) ([]shipment.CarrierPerformance, error)
}

// StockSource lists rows that need reordering.
type StockSource interface {
	LowStock(ctx context.Context) ([]inventory.Inventory, error)
}

// Dashboard is the admin landing view.
type Dashboard struct {
	Economics Report
	Carriers  []shipment.CarrierPerformance
	LowStock  []inventory.Inventory
}

// Service computes reports on demand.
type Service struct {
	orders   OrderSource
	carriers CarrierSource
	stock    StockSource
}

// NewService creates an analytics Service.
func NewService(orders OrderSource, carriers CarrierSource, stock StockSource) *Service {
	return &Service{orders: orders, carriers: carriers, stock: stock}
}

// UnitEconomics summarizes delivered orders in r.
func (s *Service) UnitEconomics(ctx context.Context, r Range) (*Report, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	orders, err := s.orders.Economics(ctx, r.From, r.To)
	if err != nil {
		return nil, errors.Wrap(err, "load delivered orders")
	}
	rep := Summarize(orders)
	return &rep, nil
}

// Dashboard fetches economics, carrier performance and low stock concurrently.
func (s *Service) Dashboard(ctx context.Context, r Range) (*Dashboard, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rep, err := s.UnitEconomics(gctx, r)
		if err != nil {
			return err
		}
		d.Economics = *rep
		return nil
	})
	g.Go(func() error {
		perf, err := s.carriers.Performance(gctx)
		if err != nil {
			return errors.Wrap(err, "carrier performance")
		}
		d.Carriers = perf
		return nil
	})
	g.Go(func() error {
		low, err := s.stock.LowStock(gctx)
		if err != nil {
			return errors.Wrap(err, "low stock")
		}
		d.LowStock = low
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}
