// Package review holds customer product reviews and their moderation.
package review

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// Status is the moderation state of a review.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Action is an admin moderation step.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReply   Action = "reply"
)

const (
	MinRating = 1
	MaxRating = 5

	maxTitleLen = 200
)

var (
	// ErrNotFound is returned for unknown review ids.
	ErrNotFound = errors.Wrap(domain.ErrNotFound, "review")
	// ErrAlreadyReviewed is returned when a user reviews the same product twice.
	ErrAlreadyReviewed = errors.Wrap(domain.ErrConflict, "product already reviewed")
)

// Review is one user's rating of a product. Only approved reviews are shown
// to shoppers.
type Review struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	ProductID          uuid.UUID
	Rating             int
	Title              string
	Comment            string
	Status             Status
	AdminReply         string
	IsVerifiedPurchase bool
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// ProductName is filled on reads.
	ProductName string
}

// Validate checks the fields a customer may set.
func (r *Review) Validate() error {
	if r.Rating < MinRating || r.Rating > MaxRating {
		return domain.Invalid("rating", "must be between 1 and 5")
	}
	if utf8.RuneCountInString(r.Title) > maxTitleLen {
		return domain.Invalid("title", "too long")
	}
	if strings.TrimSpace(r.Comment) == "" {
		return domain.Invalid("comment", "required")
	}
	return nil
}

// Moderate applies an admin action. Reply only replaces the admin reply and
// leaves the status as is.
func (r *Review) Moderate(a Action, reply string) error {
	switch a {
	case ActionApprove:
		r.Status = StatusApproved
	case ActionReject:
		r.Status = StatusRejected
	case ActionReply:
		r.AdminReply = strings.TrimSpace(reply)
	default:
		return domain.Invalid("action", "must be approve, reject or reply")
	}
	return nil
}

// Filter narrows a review listing. Zero values match everything.
type Filter struct {
	ProductID *uuid.UUID
	Status    Status
	Rating    *int
}

// Repository stores reviews.
type Repository interface {
	// Create stores r, returning ErrAlreadyReviewed when the user already
	// reviewed the product.
	Create(ctx context.Context, r *Review) error
	Get(ctx context.Context, id uuid.UUID) (*Review, error)
	// List returns matching reviews, newest first.
	List(ctx context.Context, f Filter, page domain.Page) ([]Review, int, error)
	// Update locks the review and saves it when fn reports a change.
	Update(ctx context.Context, id uuid.UUID, fn func(*Review) (bool, error)) (*Review, error)
	// HasPurchased reports whether the user has a non-cancelled order
	// containing the product.
	HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}
