package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
)

const (
	supplierColumns   = `id, name, contact_person, email, phone, address, is_active, created_at`
	insertSupplierSQL = `INSERT INTO suppliers (` + supplierColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	listSuppliersSQL  = `SELECT ` + supplierColumns + ` FROM suppliers ORDER BY name, id LIMIT $1 OFFSET $2`
	countSuppliersSQL = `SELECT count(*) FROM suppliers`
	getSupplierSQL    = `SELECT ` + supplierColumns + ` FROM suppliers WHERE id = $1`
	updateSupplierSQL = `UPDATE suppliers SET name = $2, contact_person = $3, email = $4, phone = $5,
		address = $6, is_active = $7 WHERE id = $1`

	poColumns = `id, po_number, supplier_id, status, total_amount, notes, ordered_at, expected_at, received_at, created_at`

	insertPOSQL = `INSERT INTO purchase_orders (` + poColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	getPOSQL    = `SELECT ` + poColumns + ` FROM purchase_orders WHERE id = $1`
	lockPOSQL   = getPOSQL + ` FOR UPDATE`
	savePOSQL   = `UPDATE purchase_orders SET status = $2, notes = $3, ordered_at = $4, expected_at = $5, received_at = $6
		WHERE id = $1`

	poLineColumns   = `id, product_id, variant_id, quantity_ordered, quantity_received, unit_cost, total_cost`
	insertPOLineSQL = `INSERT INTO purchase_order_lines (purchase_order_id, ` + poLineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	listPOLinesSQL = `SELECT ` + poLineColumns + ` FROM purchase_order_lines
		WHERE purchase_order_id = $1 ORDER BY id`
	savePOLineSQL = `UPDATE purchase_order_lines SET quantity_received = $2 WHERE id = $1`
	poForLineSQL  = `SELECT purchase_order_id FROM purchase_order_lines WHERE id = $1`
)

var _ inventory.PurchaseRepository = (*PurchaseRepository)(nil)

// PurchaseRepository implements inventory.PurchaseRepository backed by PostgreSQL.
type PurchaseRepository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewPurchaseRepository returns a PurchaseRepository that uses the given pool.
func NewPurchaseRepository(pool *pgxpool.Pool, maxRetries int) *PurchaseRepository {
	return &PurchaseRepository{pool: pool, maxRetries: maxRetries}
}

// CreateSupplier stores a supplier.
func (r *PurchaseRepository) CreateSupplier(ctx context.Context, s *inventory.Supplier) error {
	_, err := r.pool.Exec(ctx, insertSupplierSQL,
		s.ID, s.Name, s.ContactPerson, s.Email, s.Phone, s.Address, s.IsActive, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating supplier %q: %w", s.Name, err)
	}
	return nil
}

// ListSuppliers returns a page of suppliers ordered by name.
func (r *PurchaseRepository) ListSuppliers(ctx context.Context, page domain.Page) ([]inventory.Supplier, int, error) {
	total, err := count(ctx, r.pool, countSuppliersSQL)
	if err != nil {
		return nil, 0, fmt.Errorf("counting suppliers: %w", err)
	}
	rows, err := r.pool.Query(ctx, listSuppliersSQL, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing suppliers: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanSupplier)
	if err != nil {
		return nil, 0, fmt.Errorf("listing suppliers: %w", err)
	}
	return out, total, nil
}

// GetSupplier returns one supplier.
func (r *PurchaseRepository) GetSupplier(ctx context.Context, id uuid.UUID) (*inventory.Supplier, error) {
	rows, err := r.pool.Query(ctx, getSupplierSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting supplier %q: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSupplier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrSupplierNotFound
		}
		return nil, fmt.Errorf("getting supplier %q: %w", id, err)
	}
	return &s, nil
}

// UpdateSupplier persists every editable supplier field.
func (r *PurchaseRepository) UpdateSupplier(ctx context.Context, s *inventory.Supplier) error {
	tag, err := r.pool.Exec(ctx, updateSupplierSQL,
		s.ID, s.Name, s.ContactPerson, s.Email, s.Phone, s.Address, s.IsActive,
	)
	if err != nil {
		return fmt.Errorf("updating supplier %q: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrSupplierNotFound
	}
	return nil
}

func scanSupplier(row pgx.CollectableRow) (inventory.Supplier, error) {
	var s inventory.Supplier
	err := row.Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Email, &s.Phone, &s.Address, &s.IsActive, &s.CreatedAt)
	return s, err
}

// CreatePurchaseOrder stores the order header and lines.
func (r *PurchaseRepository) CreatePurchaseOrder(ctx context.Context, po *inventory.PurchaseOrder) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertPOSQL,
			po.ID, po.PONumber, po.SupplierID, string(po.Status), po.TotalAmount, po.Notes,
			po.OrderedAt, po.ExpectedAt, po.ReceivedAt, po.CreatedAt,
		); err != nil {
			return err
		}
		for _, l := range po.Lines {
			if _, err := tx.Exec(ctx, insertPOLineSQL,
				po.ID, l.ID, l.ProductID, l.VariantID, l.QuantityOrdered, l.QuantityReceived, l.UnitCost, l.TotalCost,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if isForeignKeyViolation(err) {
		return domain.Invalid("supplier_id", "unknown supplier, product or variant")
	}
	if err != nil {
		return fmt.Errorf("creating purchase order %q: %w", po.PONumber, err)
	}
	return nil
}

// GetPurchaseOrder returns a purchase order with its lines.
func (r *PurchaseRepository) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*inventory.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, r.pool, getPOSQL, id)
}

// ListPurchaseOrders returns a page of purchase orders, newest first,
// without lines.
func (r *PurchaseRepository) ListPurchaseOrders(ctx context.Context, status inventory.POStatus, page domain.Page) ([]inventory.PurchaseOrder, int, error) {
	where, args := "", []any{}
	if status != "" {
		where, args = ` WHERE status = $1`, append(args, string(status))
	}
	total, err := count(ctx, r.pool, `SELECT count(*) FROM purchase_orders`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("counting purchase orders: %w", err)
	}
	n := len(args)
	query := `SELECT ` + poColumns + ` FROM purchase_orders` + where +
		` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.pool.Query(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing purchase orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanPurchaseOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing purchase orders: %w", err)
	}
	return out, total, nil
}

// PurchaseOrderIDForLine resolves the purchase order of a line.
func (r *PurchaseRepository) PurchaseOrderIDForLine(ctx context.Context, lineID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, poForLineSQL, lineID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, inventory.ErrPurchaseOrderNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving purchase order line %q: %w", lineID, err)
	}
	return id, nil
}

// UpdatePurchaseOrder locks the order, runs fn and saves the header.
func (r *PurchaseRepository) UpdatePurchaseOrder(ctx context.Context, id uuid.UUID, fn func(po *inventory.PurchaseOrder) error) (*inventory.PurchaseOrder, error) {
	var out *inventory.PurchaseOrder
	err := withRetry(ctx, r.pool, r.maxRetries, nil, func(tx pgx.Tx) error {
		po, err := getPurchaseOrder(ctx, tx, lockPOSQL, id)
		if err != nil {
			return err
		}
		if err := fn(po); err != nil {
			return err
		}
		if err := savePurchaseOrder(ctx, tx, po); err != nil {
			return err
		}
		out = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Receive books receipts against the locked order, moves stock in for every
// receipt and saves the derived status, all in one transaction.
func (r *PurchaseRepository) Receive(ctx context.Context, id uuid.UUID, receipts []inventory.Receipt, opts inventory.Options, actor *uuid.UUID) (*inventory.PurchaseOrder, []inventory.Movement, error) {
	var (
		out       *inventory.PurchaseOrder
		movements []inventory.Movement
	)
	err := withRetry(ctx, r.pool, r.maxRetries, inventory.ErrConflict, func(tx pgx.Tx) error {
		movements = movements[:0]
		po, err := getPurchaseOrder(ctx, tx, lockPOSQL, id)
		if err != nil {
			return err
		}
		touched, err := inventory.ReceiveLines(po, receipts, opts.Now)
		if err != nil {
			return err
		}
		for i, line := range touched {
			if _, err := tx.Exec(ctx, savePOLineSQL, line.ID, line.QuantityReceived); err != nil {
				return fmt.Errorf("saving line %q: %w", line.ID, err)
			}
			inv, err := lockStock(ctx, tx, line.ProductID, line.VariantID, opts)
			if err != nil {
				return err
			}
			mv, err := applyChange(ctx, tx, inv, inventory.Change{
				Delta:         receipts[i].Quantity,
				Type:          inventory.MovementIn,
				ReferenceType: inventory.RefPurchaseOrder,
				ReferenceID:   &po.ID,
				Notes:         "received against " + po.PONumber,
				ActorID:       actor,
			}, opts)
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}
		if err := savePurchaseOrder(ctx, tx, po); err != nil {
			return err
		}
		out = po
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, movements, nil
}

func savePurchaseOrder(ctx context.Context, tx pgx.Tx, po *inventory.PurchaseOrder) error {
	_, err := tx.Exec(ctx, savePOSQL, po.ID, string(po.Status), po.Notes, po.OrderedAt, po.ExpectedAt, po.ReceivedAt)
	if err != nil {
		return fmt.Errorf("saving purchase order %q: %w", po.ID, err)
	}
	return nil
}

func getPurchaseOrder(ctx context.Context, q querier, sql string, id uuid.UUID) (*inventory.PurchaseOrder, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting purchase order %q: %w", id, err)
	}
	po, err := pgx.CollectExactlyOneRow(rows, scanPurchaseOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrPurchaseOrderNotFound
		}
		return nil, fmt.Errorf("getting purchase order %q: %w", id, err)
	}

	rows, err = q.Query(ctx, listPOLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing purchase order lines: %w", err)
	}
	po.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Line, error) {
		var l inventory.Line
		err := row.Scan(&l.ID, &l.ProductID, &l.VariantID, &l.QuantityOrdered, &l.QuantityReceived, &l.UnitCost, &l.TotalCost)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing purchase order lines: %w", err)
	}
	return &po, nil
}

func scanPurchaseOrder(row pgx.CollectableRow) (inventory.PurchaseOrder, error) {
	var (
		po     inventory.PurchaseOrder
		status string
	)
	err := row.Scan(&po.ID, &po.PONumber, &po.SupplierID, &status, &po.TotalAmount, &po.Notes,
		&po.OrderedAt, &po.ExpectedAt, &po.ReceivedAt, &po.CreatedAt)
	po.Status = inventory.POStatus(status)
	return po, err
}
