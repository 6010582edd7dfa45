package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
)

const (
	inventoryColumns = `i.id, i.product_id, i.variant_id, i.quantity, i.reserved_quantity, i.reorder_level,
		i.reorder_quantity, i.warehouse_location, i.batch_number, i.last_restocked, i.updated_at,
		p.name, COALESCE(v.sku, p.sku)`

	inventoryFrom = ` FROM inventory i
		JOIN products p ON p.id = i.product_id
		LEFT JOIN product_variants v ON v.id = i.variant_id`

	listInventorySQL  = `SELECT ` + inventoryColumns + inventoryFrom + ` ORDER BY p.name, i.id LIMIT $1 OFFSET $2`
	countInventorySQL = `SELECT count(*) FROM inventory`
	getInventorySQL   = `SELECT ` + inventoryColumns + inventoryFrom + ` WHERE i.id = $1`
	lockInventorySQL  = getInventorySQL + ` FOR UPDATE OF i`
	lowStockSQL       = `SELECT ` + inventoryColumns + inventoryFrom + `
		WHERE i.quantity - i.reserved_quantity <= i.reorder_level
		ORDER BY i.quantity - i.reserved_quantity, p.name`

	// lockStockSQL finds the row of a (product, variant) pair.
	lockStockSQL = `SELECT ` + inventoryColumns + inventoryFrom + `
		WHERE i.product_id = $1 AND i.variant_id IS NOT DISTINCT FROM $2 FOR UPDATE OF i`

	insertInventorySQL = `INSERT INTO inventory (id, product_id, variant_id, quantity, reserved_quantity,
		reorder_level, reorder_quantity, warehouse_location, batch_number, last_restocked, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ensureInventorySQL = `INSERT INTO inventory (id, product_id, variant_id, reorder_level, reorder_quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, variant_id) DO NOTHING`

	saveStockSQL = `UPDATE inventory SET quantity = $2, last_restocked = $3, updated_at = $4 WHERE id = $1`

	saveSettingsSQL = `UPDATE inventory SET reorder_level = $2, reorder_quantity = $3,
		warehouse_location = $4, batch_number = $5, updated_at = $6 WHERE id = $1`

	movementColumns = `id, inventory_id, movement_type, quantity, previous_quantity, new_quantity,
		reference_type, reference_id, notes, created_by, created_at`

	insertMovementSQL = `INSERT INTO inventory_movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	listMovementsSQL = `SELECT ` + movementColumns + ` FROM inventory_movements
		WHERE inventory_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	countMovementsSQL = `SELECT count(*) FROM inventory_movements WHERE inventory_id = $1`
)

var _ inventory.Repository = (*InventoryRepository)(nil)

// InventoryRepository implements inventory.Repository backed by PostgreSQL.
type InventoryRepository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewInventoryRepository returns an InventoryRepository that retries
// lock-contended adjustments up to maxRetries times.
func NewInventoryRepository(pool *pgxpool.Pool, maxRetries int) *InventoryRepository {
	return &InventoryRepository{pool: pool, maxRetries: maxRetries}
}

// List returns a page of stock rows ordered by product name.
func (r *InventoryRepository) List(ctx context.Context, page domain.Page) ([]inventory.Inventory, int, error) {
	total, err := count(ctx, r.pool, countInventorySQL)
	if err != nil {
		return nil, 0, fmt.Errorf("counting inventory: %w", err)
	}
	rows, err := r.pool.Query(ctx, listInventorySQL, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing inventory: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanInventory)
	if err != nil {
		return nil, 0, fmt.Errorf("listing inventory: %w", err)
	}
	return out, total, nil
}

// GetByID returns a stock row.
func (r *InventoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*inventory.Inventory, error) {
	return getInventory(ctx, r.pool, getInventorySQL, id)
}

// LowStock lists rows at or below their reorder level, emptiest first.
func (r *InventoryRepository) LowStock(ctx context.Context) ([]inventory.Inventory, error) {
	rows, err := r.pool.Query(ctx, lowStockSQL)
	if err != nil {
		return nil, fmt.Errorf("listing low stock: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanInventory)
	if err != nil {
		return nil, fmt.Errorf("listing low stock: %w", err)
	}
	return out, nil
}

// Movements returns a page of a row's movements, newest first.
func (r *InventoryRepository) Movements(ctx context.Context, inventoryID uuid.UUID, page domain.Page) ([]inventory.Movement, int, error) {
	total, err := count(ctx, r.pool, countMovementsSQL, inventoryID)
	if err != nil {
		return nil, 0, fmt.Errorf("counting movements: %w", err)
	}
	rows, err := r.pool.Query(ctx, listMovementsSQL, inventoryID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing movements: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanMovement)
	if err != nil {
		return nil, 0, fmt.Errorf("listing movements: %w", err)
	}
	return out, total, nil
}

// Create stores a new stock row.
func (r *InventoryRepository) Create(ctx context.Context, inv *inventory.Inventory) error {
	_, err := r.pool.Exec(ctx, insertInventorySQL,
		inv.ID, inv.ProductID, inv.VariantID, inv.Quantity, inv.ReservedQuantity,
		inv.ReorderLevel, inv.ReorderQuantity, inv.WarehouseLocation, inv.BatchNumber,
		inv.LastRestocked, inv.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return domain.Invalid("product_id", "inventory already exists for this product and variant")
	case isForeignKeyViolation(err):
		return domain.Invalid("product_id", "unknown product or variant")
	case err != nil:
		return fmt.Errorf("creating inventory: %w", err)
	}
	return nil
}

// Adjust locks the row, applies ch and appends the movement in one
// transaction. Lock contention is retried; other errors are returned as is.
func (r *InventoryRepository) Adjust(ctx context.Context, id uuid.UUID, ch inventory.Change, opts inventory.Options) (*inventory.Inventory, *inventory.Movement, error) {
	var (
		inv *inventory.Inventory
		mv  inventory.Movement
	)
	err := withRetry(ctx, r.pool, r.maxRetries, inventory.ErrConflict, func(tx pgx.Tx) error {
		var err error
		inv, err = getInventory(ctx, tx, lockInventorySQL, id)
		if err != nil {
			return err
		}
		mv, err = applyChange(ctx, tx, inv, ch, opts)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return inv, &mv, nil
}

// Update locks the row and persists the settings fn changed.
func (r *InventoryRepository) Update(ctx context.Context, id uuid.UUID, fn func(inv *inventory.Inventory) (bool, error)) (*inventory.Inventory, error) {
	var inv *inventory.Inventory
	err := withRetry(ctx, r.pool, r.maxRetries, inventory.ErrConflict, func(tx pgx.Tx) error {
		var err error
		inv, err = getInventory(ctx, tx, lockInventorySQL, id)
		if err != nil {
			return err
		}
		changed, err := fn(inv)
		if err != nil || !changed {
			return err
		}
		if _, err := tx.Exec(ctx, saveSettingsSQL,
			inv.ID, inv.ReorderLevel, inv.ReorderQuantity, inv.WarehouseLocation, inv.BatchNumber, inv.UpdatedAt,
		); err != nil {
			return fmt.Errorf("saving inventory settings %q: %w", inv.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// applyChange runs inventory.Apply on a locked row and persists the result.
func applyChange(ctx context.Context, tx pgx.Tx, inv *inventory.Inventory, ch inventory.Change, opts inventory.Options) (inventory.Movement, error) {
	mv, err := inventory.Apply(inv, ch, opts)
	if err != nil {
		return mv, err
	}
	if _, err := tx.Exec(ctx, saveStockSQL, inv.ID, inv.Quantity, inv.LastRestocked, inv.UpdatedAt); err != nil {
		return mv, fmt.Errorf("saving stock %q: %w", inv.ID, err)
	}
	if _, err := tx.Exec(ctx, insertMovementSQL,
		mv.ID, mv.InventoryID, string(mv.Type), mv.Quantity, mv.PreviousQuantity, mv.NewQuantity,
		mv.ReferenceType, mv.ReferenceID, mv.Notes, mv.CreatedBy, mv.CreatedAt,
	); err != nil {
		return mv, fmt.Errorf("recording movement: %w", err)
	}
	return mv, nil
}

// lockStock returns the locked row of (product, variant), creating it with
// default reorder settings when it does not exist.
func lockStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, variantID *uuid.UUID, opts inventory.Options) (*inventory.Inventory, error) {
	if _, err := tx.Exec(ctx, ensureInventorySQL,
		uuid.New(), productID, variantID, inventory.DefaultReorderLevel, inventory.DefaultReorderQuantity, opts.Now,
	); err != nil {
		return nil, fmt.Errorf("ensuring inventory for %q: %w", productID, err)
	}
	rows, err := tx.Query(ctx, lockStockSQL, productID, variantID)
	if err != nil {
		return nil, fmt.Errorf("locking inventory for %q: %w", productID, err)
	}
	inv, err := pgx.CollectExactlyOneRow(rows, scanInventory)
	if err != nil {
		return nil, fmt.Errorf("locking inventory for %q: %w", productID, err)
	}
	return &inv, nil
}

func getInventory(ctx context.Context, q querier, sql string, id uuid.UUID) (*inventory.Inventory, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting inventory %q: %w", id, err)
	}
	inv, err := pgx.CollectExactlyOneRow(rows, scanInventory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting inventory %q: %w", id, err)
	}
	return &inv, nil
}

func scanInventory(row pgx.CollectableRow) (inventory.Inventory, error) {
	var inv inventory.Inventory
	err := row.Scan(
		&inv.ID, &inv.ProductID, &inv.VariantID, &inv.Quantity, &inv.ReservedQuantity, &inv.ReorderLevel,
		&inv.ReorderQuantity, &inv.WarehouseLocation, &inv.BatchNumber, &inv.LastRestocked, &inv.UpdatedAt,
		&inv.ProductName, &inv.SKU,
	)
	return inv, err
}

func scanMovement(row pgx.CollectableRow) (inventory.Movement, error) {
	var (
		mv  inventory.Movement
		typ string
	)
	err := row.Scan(
		&mv.ID, &mv.InventoryID, &typ, &mv.Quantity, &mv.PreviousQuantity, &mv.NewQuantity,
		&mv.ReferenceType, &mv.ReferenceID, &mv.Notes, &mv.CreatedBy, &mv.CreatedAt,
	)
	mv.Type = inventory.MovementType(typ)
	return mv, err
}
