package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/shipment"
)

const (
	shipmentColumns = `s.id, s.order_id, s.carrier_id, s.tracking_number, s.tracking_url, s.status,
		s.shipping_charged, s.shipping_cost, s.packaging_cost, s.weight_grams, s.shipped_at, s.delivered_at,
		s.created_at, s.updated_at, o.order_number, COALESCE(c.name, '')`

	shipmentFrom = ` FROM shipments s
		JOIN orders o ON o.id = s.order_id
		LEFT JOIN carriers c ON c.id = s.carrier_id`

	insertShipmentSQL = `INSERT INTO shipments (id, order_id, carrier_id, tracking_number, tracking_url, status,
		shipping_charged, shipping_cost, packaging_cost, weight_grams, shipped_at, delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getShipmentSQL  = `SELECT ` + shipmentColumns + shipmentFrom + ` WHERE s.id = $1`
	lockShipmentSQL = getShipmentSQL + ` FOR UPDATE OF s`
	deliveredSQL    = `SELECT ` + shipmentColumns + shipmentFrom + `
		WHERE s.status = 'delivered' AND s.carrier_id IS NOT NULL`

	saveShipmentSQL = `UPDATE shipments SET status = $2, shipped_at = $3, delivered_at = $4, updated_at = $5
		WHERE id = $1`

	carrierColumns   = `id, name, code, tracking_url_template, is_active`
	insertCarrierSQL = `INSERT INTO carriers (` + carrierColumns + `) VALUES ($1, $2, $3, $4, $5)`
	getCarrierSQL    = `SELECT ` + carrierColumns + ` FROM carriers WHERE id = $1`
	listCarriersSQL  = `SELECT ` + carrierColumns + ` FROM carriers ORDER BY name`
)

var _ shipment.Repository = (*ShipmentRepository)(nil)

// ShipmentRepository implements shipment.Repository backed by PostgreSQL.
type ShipmentRepository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewShipmentRepository returns a ShipmentRepository that uses the given pool.
func NewShipmentRepository(pool *pgxpool.Pool, maxRetries int) *ShipmentRepository {
	return &ShipmentRepository{pool: pool, maxRetries: maxRetries}
}

// Create stores a shipment. A second shipment for the same order is rejected.
func (r *ShipmentRepository) Create(ctx context.Context, s *shipment.Shipment) error {
	_, err := r.pool.Exec(ctx, insertShipmentSQL,
		s.ID, s.OrderID, s.CarrierID, s.TrackingNumber, s.TrackingURL, string(s.Status),
		s.ShippingCharged, s.ShippingCost, s.PackagingCost, s.WeightGrams, s.ShippedAt, s.DeliveredAt,
		s.CreatedAt, s.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return shipment.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("creating shipment for order %q: %w", s.OrderID, err)
	}
	return nil
}

// GetByID returns a shipment.
func (r *ShipmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*shipment.Shipment, error) {
	return getShipment(ctx, r.pool, getShipmentSQL, id)
}

// List returns a page of shipments, newest first.
func (r *ShipmentRepository) List(ctx context.Context, f shipment.Filter, page domain.Page) ([]shipment.Shipment, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, "s.status = $"+strconv.Itoa(len(args)))
	}
	if f.CarrierID != nil {
		args = append(args, *f.CarrierID)
		conds = append(conds, "s.carrier_id = $"+strconv.Itoa(len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	total, err := count(ctx, r.pool, `SELECT count(*) FROM shipments s`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("counting shipments: %w", err)
	}
	n := len(args)
	query := `SELECT ` + shipmentColumns + shipmentFrom + where +
		` ORDER BY s.created_at DESC, s.id LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.pool.Query(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing shipments: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanShipment)
	if err != nil {
		return nil, 0, fmt.Errorf("listing shipments: %w", err)
	}
	return out, total, nil
}

// Update locks the shipment, runs fn and saves the lifecycle fields.
func (r *ShipmentRepository) Update(ctx context.Context, id uuid.UUID, fn shipment.UpdateFunc) (*shipment.Shipment, error) {
	var out *shipment.Shipment
	err := withRetry(ctx, r.pool, r.maxRetries, nil, func(tx pgx.Tx) error {
		s, err := getShipment(ctx, tx, lockShipmentSQL, id)
		if err != nil {
			return err
		}
		changed, err := fn(s)
		if err != nil {
			return err
		}
		if changed {
			if _, err := tx.Exec(ctx, saveShipmentSQL, s.ID, string(s.Status), s.ShippedAt, s.DeliveredAt, s.UpdatedAt); err != nil {
				return fmt.Errorf("saving shipment %q: %w", s.ID, err)
			}
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delivered returns delivered shipments that have a carrier.
func (r *ShipmentRepository) Delivered(ctx context.Context) ([]shipment.Shipment, error) {
	rows, err := r.pool.Query(ctx, deliveredSQL)
	if err != nil {
		return nil, fmt.Errorf("listing delivered shipments: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanShipment)
	if err != nil {
		return nil, fmt.Errorf("listing delivered shipments: %w", err)
	}
	return out, nil
}

// CreateCarrier stores a carrier.
func (r *ShipmentRepository) CreateCarrier(ctx context.Context, c *shipment.Carrier) error {
	_, err := r.pool.Exec(ctx, insertCarrierSQL, c.ID, c.Name, c.Code, c.TrackingURLTemplate, c.IsActive)
	if isUniqueViolation(err) {
		return domain.Invalid("code", "carrier code already exists")
	}
	if err != nil {
		return fmt.Errorf("creating carrier %q: %w", c.Code, err)
	}
	return nil
}

// GetCarrier returns a carrier.
func (r *ShipmentRepository) GetCarrier(ctx context.Context, id uuid.UUID) (*shipment.Carrier, error) {
	rows, err := r.pool.Query(ctx, getCarrierSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting carrier %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCarrier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipment.ErrCarrierNotFound
		}
		return nil, fmt.Errorf("getting carrier %q: %w", id, err)
	}
	return &c, nil
}

// ListCarriers returns every carrier ordered by name.
func (r *ShipmentRepository) ListCarriers(ctx context.Context) ([]shipment.Carrier, error) {
	rows, err := r.pool.Query(ctx, listCarriersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing carriers: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanCarrier)
	if err != nil {
		return nil, fmt.Errorf("listing carriers: %w", err)
	}
	return out, nil
}

func getShipment(ctx context.Context, q querier, sql string, id uuid.UUID) (*shipment.Shipment, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting shipment %q: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanShipment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipment.ErrNotFound
		}
		return nil, fmt.Errorf("getting shipment %q: %w", id, err)
	}
	return &s, nil
}

func scanShipment(row pgx.CollectableRow) (shipment.Shipment, error) {
	var (
		s      shipment.Shipment
		status string
	)
	err := row.Scan(
		&s.ID, &s.OrderID, &s.CarrierID, &s.TrackingNumber, &s.TrackingURL, &status,
		&s.ShippingCharged, &s.ShippingCost, &s.PackagingCost, &s.WeightGrams, &s.ShippedAt, &s.DeliveredAt,
		&s.CreatedAt, &s.UpdatedAt, &s.OrderNumber, &s.CarrierName,
	)
	s.Status = shipment.Status(status)
	return s, err
}

func scanCarrier(row pgx.CollectableRow) (shipment.Carrier, error) {
	var c shipment.Carrier
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.TrackingURLTemplate, &c.IsActive)
	return c, err
}
