package review

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
)

// Products is the catalog lookup used to check reviewed products.
type Products interface {
	GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
}

// Service accepts and moderates reviews.
type Service struct {
	repo     Repository
	products Products
	now      func() time.Time
}

// NewService creates a review Service.
func NewService(repo Repository, products Products) *Service {
	return &Service{repo: repo, products: products, now: time.Now}
}

// Submit stores a pending review of productID by userID. The review is
// marked as a verified purchase when the user has ordered the product.
func (s *Service) Submit(ctx context.Context, userID, productID uuid.UUID, r *Review) error {
	r.Title = strings.TrimSpace(r.Title)
	r.Comment = strings.TrimSpace(r.Comment)
	if err := r.Validate(); err != nil {
		return err
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	verified, err := s.repo.HasPurchased(ctx, userID, productID)
	if err != nil {
		return errors.Wrap(err, "check purchase")
	}

	now := s.now()
	r.ID = uuid.New()
	r.UserID = userID
	r.ProductID = productID
	r.ProductName = p.Name
	r.Status = StatusPending
	r.AdminReply = ""
	r.IsVerifiedPurchase = verified
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := s.repo.Create(ctx, r); err != nil {
		return errors.Wrap(err, "create review")
	}
	return nil
}

// Approved lists the reviews of a product visible to shoppers.
func (s *Service) Approved(ctx context.Context, productID uuid.UUID, page domain.Page) ([]Review, int, error) {
	return s.repo.List(ctx, Filter{ProductID: &productID, Status: StatusApproved}, page)
}

// List returns reviews for moderation.
func (s *Service) List(ctx context.Context, f Filter, page domain.Page) ([]Review, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, domain.Invalid("status", "unknown status "+string(f.Status))
	}
	if f.Rating != nil && (*f.Rating < MinRating || *f.Rating > MaxRating) {
		return nil, 0, domain.Invalid("rating", "must be between 1 and 5")
	}
	return s.repo.List(ctx, f, page)
}

// Moderate approves, rejects or replies to a review.
func (s *Service) Moderate(ctx context.Context, id uuid.UUID, a Action, reply string) (*Review, error) {
	return s.repo.Update(ctx, id, func(r *Review) (bool, error) {
		before := *r
		if err := r.Moderate(a, reply); err != nil {
			return false, err
		}
		if r.Status == before.Status && r.AdminReply == before.AdminReply {
			return false, nil
		}
		r.UpdatedAt = s.now()
		return true, nil
	})
}
