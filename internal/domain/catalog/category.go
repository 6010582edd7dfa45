package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// ErrCategoryNotFound is returned when a referenced category does not exist.
var ErrCategoryNotFound = errors.Wrap(domain.ErrNotFound, "category")

// Category groups products for browsing. Categories nest one level or more
// through ParentID.
type Category struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description string
	ParentID    *uuid.UUID
	IsActive    bool
	SortOrder   int
	CreatedAt   time.Time
}

// Validate checks the fields an admin may set.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.Invalid("name", "required")
	}
	if c.Slug == "" {
		return domain.Invalid("slug", "required")
	}
	if c.ParentID != nil && *c.ParentID == c.ID {
		return domain.Invalid("parent_id", "category cannot be its own parent")
	}
	return nil
}

// CategoryRepository stores product categories.
type CategoryRepository interface {
	// ListCategories returns categories ordered by sort order then name.
	ListCategories(ctx context.Context, activeOnly bool) ([]Category, error)
	CreateCategory(ctx context.Context, c *Category) error
}

// WithCategories enables category management.
func (s *Service) WithCategories(repo CategoryRepository) *Service {
	s.categories = repo
	return s
}

// Categories returns the active categories shown to shoppers, or every
// category for admins.
func (s *Service) Categories(ctx context.Context, includeInactive bool) ([]Category, error) {
	if s.categories == nil {
		return nil, nil
	}
	return s.categories.ListCategories(ctx, !includeInactive)
}

// CreateCategory validates and stores a new category.
func (s *Service) CreateCategory(ctx context.Context, c *Category) error {
	if s.categories == nil {
		return errors.New("categories are not configured")
	}
	c.ID = uuid.New()
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.CreatedAt = s.now()
	if err := s.categories.CreateCategory(ctx, c); err != nil {
		return errors.Wrap(err, "create category")
	}
	return nil
}
