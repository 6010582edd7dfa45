package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
)

// Wish is a product saved for later.
type Wish struct {
	ProductID uuid.UUID
	AddedAt   time.Time
	Product   *catalog.Product
}

// WishlistRepository stores the per-user wishlist. A product appears at
// most once per user.
type WishlistRepository interface {
	// AddWish saves productID, reporting false when it was already saved.
	AddWish(ctx context.Context, userID, productID uuid.UUID) (*Wish, bool, error)
	RemoveWish(ctx context.Context, userID, productID uuid.UUID) error
	ListWishes(ctx context.Context, userID uuid.UUID) ([]Wish, error)
}

// WithWishlist enables the wishlist.
func (s *Service) WithWishlist(repo WishlistRepository) *Service {
	s.wishes = repo
	return s
}

// Wishlist returns the user's saved products, newest first, with the
// current catalog entries attached.
func (s *Service) Wishlist(ctx context.Context, userID uuid.UUID) ([]Wish, error) {
	if s.wishes == nil {
		return nil, nil
	}
	wishes, err := s.wishes.ListWishes(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list wishes")
	}
	if len(wishes) == 0 {
		return wishes, nil
	}
	ids := make([]uuid.UUID, len(wishes))
	for i, w := range wishes {
		ids[i] = w.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[uuid.UUID]*catalog.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for i := range wishes {
		wishes[i].Product = byID[wishes[i].ProductID]
	}
	return wishes, nil
}

// AddWish saves a product to the wishlist. Saving it twice is not an error;
// created is false on the second call.
func (s *Service) AddWish(ctx context.Context, userID, productID uuid.UUID) (w *Wish, created bool, err error) {
	if s.wishes == nil {
		return nil, false, errors.New("wishlist is not configured")
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
		return nil, false, errors.Wrap(err, "get product")
	}
	w, created, err = s.wishes.AddWish(ctx, userID, productID)
	if err != nil {
		return nil, false, errors.Wrap(err, "add wish")
	}
	w.Product = p
	return w, created, nil
}

// RemoveWish drops a product from the wishlist. Removing an absent product
// succeeds.
func (s *Service) RemoveWish(ctx context.Context, userID, productID uuid.UUID) error {
	if s.wishes == nil {
		return errors.New("wishlist is not configured")
	}
	if err := s.wishes.RemoveWish(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "remove wish")
	}
	return nil
}
