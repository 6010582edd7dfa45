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
	"github.com/xenking/rimae-ledger/internal/domain/review"
)

const (
	reviewColumns = `r.id, r.user_id, r.product_id, r.rating, r.title, r.comment, r.status,
		r.admin_reply, r.is_verified_purchase, r.created_at, r.updated_at, p.name`

	reviewFrom = ` FROM reviews r JOIN products p ON p.id = r.product_id`

	insertReviewSQL = `INSERT INTO reviews (id, user_id, product_id, rating, title, comment, status,
		admin_reply, is_verified_purchase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getReviewSQL  = `SELECT ` + reviewColumns + reviewFrom + ` WHERE r.id = $1`
	lockReviewSQL = getReviewSQL + ` FOR UPDATE OF r`

	saveReviewSQL = `UPDATE reviews SET status = $2, admin_reply = $3, updated_at = $4 WHERE id = $1`

	// hasPurchasedSQL ignores cancelled orders.
	hasPurchasedSQL = `SELECT EXISTS (
		SELECT 1 FROM order_items i JOIN orders o ON o.id = i.order_id
		WHERE o.user_id = $1 AND i.product_id = $2 AND o.status <> 'cancelled')`
)

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool, maxRetries int) *ReviewRepository {
	return &ReviewRepository{pool: pool, maxRetries: maxRetries}
}

// Create stores a review.
func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := r.pool.Exec(ctx, insertReviewSQL,
		rv.ID, rv.UserID, rv.ProductID, rv.Rating, rv.Title, rv.Comment, string(rv.Status),
		rv.AdminReply, rv.IsVerifiedPurchase, rv.CreatedAt, rv.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return review.ErrAlreadyReviewed
	}
	if isForeignKeyViolation(err) {
		return domain.Invalid("product_id", "unknown product")
	}
	if err != nil {
		return fmt.Errorf("creating review of %q: %w", rv.ProductID, err)
	}
	return nil
}

// Get returns a review.
func (r *ReviewRepository) Get(ctx context.Context, id uuid.UUID) (*review.Review, error) {
	return getReview(ctx, r.pool, getReviewSQL, id)
}

// List returns a page of reviews, newest first.
func (r *ReviewRepository) List(ctx context.Context, f review.Filter, page domain.Page) ([]review.Review, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.ProductID != nil {
		args = append(args, *f.ProductID)
		conds = append(conds, "r.product_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, "r.status = $"+strconv.Itoa(len(args)))
	}
	if f.Rating != nil {
		args = append(args, *f.Rating)
		conds = append(conds, "r.rating = $"+strconv.Itoa(len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	total, err := count(ctx, r.pool, `SELECT count(*) FROM reviews r`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("counting reviews: %w", err)
	}
	n := len(args)
	query := `SELECT ` + reviewColumns + reviewFrom + where +
		` ORDER BY r.created_at DESC, r.id LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.pool.Query(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing reviews: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanReview)
	if err != nil {
		return nil, 0, fmt.Errorf("listing reviews: %w", err)
	}
	return out, total, nil
}

// Update locks the review, runs fn and saves the moderation fields.
func (r *ReviewRepository) Update(ctx context.Context, id uuid.UUID, fn func(*review.Review) (bool, error)) (*review.Review, error) {
	var out *review.Review
	err := withRetry(ctx, r.pool, r.maxRetries, nil, func(tx pgx.Tx) error {
		rv, err := getReview(ctx, tx, lockReviewSQL, id)
		if err != nil {
			return err
		}
		changed, err := fn(rv)
		if err != nil {
			return err
		}
		if changed {
			if _, err := tx.Exec(ctx, saveReviewSQL, rv.ID, string(rv.Status), rv.AdminReply, rv.UpdatedAt); err != nil {
				return fmt.Errorf("saving review %q: %w", rv.ID, err)
			}
		}
		out = rv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasPurchased reports whether userID ordered productID.
func (r *ReviewRepository) HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, hasPurchasedSQL, userID, productID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking purchase of %q: %w", productID, err)
	}
	return ok, nil
}

func getReview(ctx context.Context, q querier, sql string, id uuid.UUID) (*review.Review, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting review %q: %w", id, err)
	}
	rv, err := pgx.CollectExactlyOneRow(rows, scanReview)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, fmt.Errorf("getting review %q: %w", id, err)
	}
	return &rv, nil
}

func scanReview(row pgx.CollectableRow) (review.Review, error) {
	var (
		rv     review.Review
		status string
	)
	err := row.Scan(&rv.ID, &rv.UserID, &rv.ProductID, &rv.Rating, &rv.Title, &rv.Comment, &status,
		&rv.AdminReply, &rv.IsVerifiedPurchase, &rv.CreatedAt, &rv.UpdatedAt, &rv.ProductName)
	rv.Status = review.Status(status)
	return rv, err
}
