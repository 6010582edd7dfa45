package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/domain/order"
	"github.com/xenking/rimae-ledger/internal/domain/payment"
)

const (
	orderColumns = `id, order_number, user_id, status, payment_status, payment_method, payment_id,
		subtotal, discount_amount, shipping_amount, tax_amount, total_amount,
		cogs, shipping_cost, packaging_cost, payment_gateway_fee, cac,
		coupon_id, coupon_code,
		shipping_name, shipping_phone, shipping_line1, shipping_line2, shipping_city, shipping_state, shipping_pincode,
		customer_notes, admin_notes, delivered_at, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		$20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`

	getOrderSQL   = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL  = getOrderSQL + ` FOR UPDATE`
	lockCartSQL   = `SELECT id FROM carts WHERE id = $1 FOR UPDATE`
	orderItemsSQL = `SELECT order_id, id, product_id, variant_id, product_name, variant_name, sku, quantity, unit_price, unit_cost, total_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY product_name, id`

	// consumeCartSQL deletes exactly the lines that were priced; a line added
	// or re-quantified meanwhile does not match.
	consumeCartSQL = `DELETE FROM cart_items WHERE cart_id = $1
		AND (id, quantity) IN (SELECT * FROM unnest($2::uuid[], $3::int[]))`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3, payment_id = $4,
		shipping_cost = $5, packaging_cost = $6, payment_gateway_fee = $7, cac = $8,
		admin_notes = $9, delivered_at = $10, updated_at = $11
		WHERE id = $1`

	insertPaymentSQL = `INSERT INTO payments (id, transaction_id, order_id, user_id, amount, method, status,
		gateway_transaction_id, gateway_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

var orderItemColumns = []string{
	"id", "order_id", "product_id", "variant_id", "product_name", "variant_name", "sku",
	"quantity", "unit_price", "unit_cost", "total_price",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool, maxRetries int) *OrderRepository {
	return &OrderRepository{pool: pool, maxRetries: maxRetries}
}

// Create stores the order and its items, deletes the consumed cart lines and
// counts one coupon use in a single transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, consumed *cart.Cart) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var cartID uuid.UUID
		if err := tx.QueryRow(ctx, lockCartSQL, consumed.ID).Scan(&cartID); err != nil {
			return fmt.Errorf("locking cart: %w", err)
		}

		a := o.ShippingAddress
		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.OrderNumber, o.UserID, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), o.PaymentID,
			o.Subtotal, o.DiscountAmount, o.ShippingAmount, o.TaxAmount, o.TotalAmount,
			o.COGS, o.ShippingCost, o.PackagingCost, o.PaymentGatewayFee, o.CAC,
			o.CouponID, o.CouponCode,
			a.Name, a.Phone, a.Line1, a.Line2, a.City, a.State, a.Pincode,
			o.CustomerNotes, o.AdminNotes, o.DeliveredAt, o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		rows := make([][]any, len(o.Items))
		for i, it := range o.Items {
			rows[i] = []any{
				it.ID, o.ID, it.ProductID, it.VariantID, it.ProductName, it.VariantName, it.SKU,
				it.Quantity, it.UnitPrice, it.UnitCost, it.TotalPrice,
			}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"order_items"}, orderItemColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("inserting order items: %w", err)
		}

		ids := make([]uuid.UUID, len(consumed.Items))
		qtys := make([]int32, len(consumed.Items))
		for i, it := range consumed.Items {
			ids[i] = it.ID
			qtys[i] = int32(it.Quantity)
		}
		tag, err := tx.Exec(ctx, consumeCartSQL, consumed.ID, ids, qtys)
		if err != nil {
			return fmt.Errorf("clearing cart: %w", err)
		}
		if tag.RowsAffected() != int64(len(consumed.Items)) {
			return order.ErrCartChanged
		}

		if o.CouponID != nil {
			tag, err := tx.Exec(ctx, consumeCouponSQL, *o.CouponID)
			if err != nil {
				return fmt.Errorf("counting coupon use: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return coupon.Reject(o.CouponCode, coupon.ErrCouponExhausted)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.OrderNumber, err)
	}
	return nil
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, err := r.get(ctx, r.pool, getOrderSQL, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// List returns a page of orders matching f, newest first, with items.
func (r *OrderRepository) List(ctx context.Context, f order.Filter, page domain.Page) ([]order.Order, int, error) {
	where, args := orderFilter(f)

	total, err := count(ctx, r.pool, `SELECT count(*) FROM orders`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	n := len(args)
	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.pool.Query(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	if err := attachItems(ctx, r.pool, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Economics returns delivered orders created in [from, to) without items.
func (r *OrderRepository) Economics(ctx context.Context, from, to *time.Time) ([]order.Order, error) {
	where, args := orderFilter(order.Filter{DeliveredOnly: true, From: from, To: to})
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("loading delivered orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("loading delivered orders: %w", err)
	}
	return out, nil
}

// Update locks the order, applies fn and persists the mutable fields.
func (r *OrderRepository) Update(ctx context.Context, id uuid.UUID, fn order.UpdateFunc) (*order.Order, error) {
	var out *order.Order
	err := withRetry(ctx, r.pool, r.maxRetries, nil, func(tx pgx.Tx) error {
		o, err := r.get(ctx, tx, lockOrderSQL, id)
		if err != nil {
			return err
		}
		changed, err := fn(o)
		if err != nil {
			return err
		}
		if changed {
			if err := saveOrder(ctx, tx, o); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddPayment locks the order, applies fn and records p in one transaction.
// The payment row is written even when fn rejects the order change so that a
// captured charge is never lost; fn's error is returned once committed.
func (r *OrderRepository) AddPayment(ctx context.Context, p *payment.Payment, fn order.UpdateFunc) (*order.Order, error) {
	var (
		out      *order.Order
		applyErr error
	)
	err := withRetry(ctx, r.pool, r.maxRetries, nil, func(tx pgx.Tx) error {
		o, err := r.get(ctx, tx, lockOrderSQL, p.OrderID)
		if err != nil {
			return err
		}
		var changed bool
		changed, applyErr = fn(o)
		if applyErr != nil {
			changed = false
		}

		raw := []byte("{}")
		if p.GatewayResponse != nil {
			if raw, err = json.Marshal(p.GatewayResponse); err != nil {
				return fmt.Errorf("marshaling gateway response: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, insertPaymentSQL,
			p.ID, p.TransactionID, p.OrderID, p.UserID, p.Amount, string(p.Method), string(p.Status),
			p.GatewayTxnID, raw, p.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting payment: %w", err)
		}
		if changed {
			if err := saveOrder(ctx, tx, o); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applyErr != nil {
		return nil, applyErr
	}
	return out, nil
}

func (r *OrderRepository) get(ctx context.Context, q querier, sql string, id uuid.UUID) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	orders := []order.Order{o}
	if err := attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func saveOrder(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	o.UpdatedAt = time.Now()
	_, err := tx.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.PaymentStatus), o.PaymentID,
		o.ShippingCost, o.PackagingCost, o.PaymentGatewayFee, o.CAC,
		o.AdminNotes, o.DeliveredAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	return nil
}

// orderFilter renders f as a WHERE clause with positional arguments.
func orderFilter(f order.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.UserID != nil {
		add("user_id = ?", *f.UserID)
	}
	if f.DeliveredOnly {
		add("status = ?", string(order.StatusDelivered))
	} else if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.PaymentStatus != "" {
		add("payment_status = ?", string(f.PaymentStatus))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("(order_number ILIKE ? OR shipping_name ILIKE ?)", "%"+s+"%")
	}
	if f.From != nil {
		add("created_at >= ?", *f.From)
	}
	if f.To != nil {
		add("created_at < ?", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func attachItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}
	rows, err := q.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	_, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (struct{}, error) {
		var (
			orderID uuid.UUID
			it      order.Item
		)
		err := row.Scan(&orderID, &it.ID, &it.ProductID, &it.VariantID, &it.ProductName, &it.VariantName,
			&it.SKU, &it.Quantity, &it.UnitPrice, &it.UnitCost, &it.TotalPrice)
		if err != nil {
			return struct{}{}, err
		}
		o := byID[orderID]
		o.Items = append(o.Items, it)
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                             order.Order
		status, paymentStatus, method string
	)
	a := &o.ShippingAddress
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &status, &paymentStatus, &method, &o.PaymentID,
		&o.Subtotal, &o.DiscountAmount, &o.ShippingAmount, &o.TaxAmount, &o.TotalAmount,
		&o.COGS, &o.ShippingCost, &o.PackagingCost, &o.PaymentGatewayFee, &o.CAC,
		&o.CouponID, &o.CouponCode,
		&a.Name, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.Pincode,
		&o.CustomerNotes, &o.AdminNotes, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.PaymentMethod = payment.Method(method)
	return o, err
}
