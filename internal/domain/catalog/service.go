package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// Service exposes catalog reads and admin writes.
type Service struct {
	repo       Repository
	categories CategoryRepository
	now        func() time.Time
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns a page of products and the total count.
func (s *Service) List(ctx context.Context, page domain.Page) ([]Product, int, error) {
	return s.repo.List(ctx, page)
}

// Get returns one product with its variants and images.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// GetVariant returns a single variant.
func (s *Service) GetVariant(ctx context.Context, id uuid.UUID) (*Variant, error) {
	return s.repo.GetVariant(ctx, id)
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.Type == "" {
		p.Type = TypeFragrance
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = uuid.New()
	for i := range p.Variants {
		p.Variants[i].ID = uuid.New()
		p.Variants[i].ProductID = p.ID
	}
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	if err := s.repo.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create product")
	}
	return nil
}

// Update replaces the admin-editable fields of an existing product.
// Historical order lines are unaffected since they hold snapshots.
func (s *Service) Update(ctx context.Context, p *Product) error {
	current, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.Slug == "" {
		p.Slug = current.Slug
	}
	if p.Type == "" {
		p.Type = current.Type
	}
	if err := p.Validate(); err != nil {
		return err
	}
	for i := range p.Variants {
		if p.Variants[i].ID == uuid.Nil {
			p.Variants[i].ID = uuid.New()
		}
		p.Variants[i].ProductID = p.ID
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return errors.Wrap(err, "update product")
	}
	return nil
}
