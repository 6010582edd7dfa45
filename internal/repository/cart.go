package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
)

const (
	getOrCreateCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, updated_at`

	listCartItemsSQL = `SELECT id, product_id, variant_id, quantity, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`

	addCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id, variant_id) DO UPDATE
			SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, product_id, variant_id, quantity, added_at`

	setCartItemQuantitySQL = `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND id = $2`
	removeCartItemSQL      = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`
	touchCartSQL           = `UPDATE carts SET updated_at = now() WHERE id = $1`

	// addWishSQL returns xmax = 0 only for freshly inserted rows.
	addWishSQL = `INSERT INTO wishlist (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING product_id, created_at, xmax = 0`
	removeWishSQL = `DELETE FROM wishlist WHERE user_id = $1 AND product_id = $2`
	listWishesSQL = `SELECT product_id, created_at FROM wishlist WHERE user_id = $1
		ORDER BY created_at DESC, product_id`
)

var (
	_ cart.Repository         = (*CartRepository)(nil)
	_ cart.WishlistRepository = (*CartRepository)(nil)
)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreate returns the user's cart with its items.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	var c cart.Cart
	err := r.pool.QueryRow(ctx, getOrCreateCartSQL, uuid.New(), userID).Scan(&c.ID, &c.UserID, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting cart of %q: %w", userID, err)
	}

	rows, err := r.pool.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return &c, nil
}

// AddItem inserts a line or increments the existing (product, variant) line.
func (r *CartRepository) AddItem(ctx context.Context, cartID uuid.UUID, item cart.Item) (*cart.Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	var out cart.Item
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, addCartItemSQL, item.ID, cartID, item.ProductID, item.VariantID, item.Quantity)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scanCartItem)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, touchCartSQL, cartID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("adding cart item: %w", err)
	}
	return &out, nil
}

// SetQuantity overwrites the quantity of a line in cartID.
func (r *CartRepository) SetQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error {
	tag, err := r.pool.Exec(ctx, setCartItemQuantitySQL, cartID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// RemoveItem deletes a line from cartID.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, removeCartItemSQL, cartID, itemID)
	if err != nil {
		return fmt.Errorf("removing cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.Quantity, &it.AddedAt)
	return it, err
}

// AddWish saves a product to the user's wishlist.
func (r *CartRepository) AddWish(ctx context.Context, userID, productID uuid.UUID) (*cart.Wish, bool, error) {
	var (
		w       cart.Wish
		created bool
	)
	err := r.pool.QueryRow(ctx, addWishSQL, userID, productID).Scan(&w.ProductID, &w.AddedAt, &created)
	if isForeignKeyViolation(err) {
		return nil, false, domain.Invalid("product_id", "unknown product")
	}
	if err != nil {
		return nil, false, fmt.Errorf("adding %q to wishlist: %w", productID, err)
	}
	return &w, created, nil
}

// RemoveWish drops a product from the user's wishlist.
func (r *CartRepository) RemoveWish(ctx context.Context, userID, productID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, removeWishSQL, userID, productID); err != nil {
		return fmt.Errorf("removing %q from wishlist: %w", productID, err)
	}
	return nil
}

// ListWishes returns the user's wishlist, newest first.
func (r *CartRepository) ListWishes(ctx context.Context, userID uuid.UUID) ([]cart.Wish, error) {
	rows, err := r.pool.Query(ctx, listWishesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wishlist: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Wish, error) {
		var w cart.Wish
		err := row.Scan(&w.ProductID, &w.AddedAt)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing wishlist: %w", err)
	}
	return out, nil
}
