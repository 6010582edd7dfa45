package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
)

// Service manages a user's cart.
type Service struct {
	carts    Repository
	products catalog.Repository
	wishes   WishlistRepository
}

// NewService creates a cart Service.
func NewService(carts Repository, products catalog.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// Get returns the user's cart priced at current catalog values.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return s.price(ctx, c)
}

// AddItem adds quantity units of a product (and optional variant).
func (s *Service) AddItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID, quantity int) (*View, error) {
	if quantity < 1 {
		return nil, domain.Invalid("quantity", "must be at least 1")
	}
	if err := domain.CheckQuantity("quantity", quantity); err != nil {
		return nil, err
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Invalid("product_id", "unknown product")
		}
		return nil, errors.Wrap(err, "get product")
	}
	if !p.IsActive {
		return nil, domain.Invalid("product_id", "product is not available")
	}
	if variantID != nil {
		v, ok := p.FindVariant(*variantID)
		if !ok {
			return nil, domain.Invalid("variant_id", "variant does not belong to product")
		}
		if !v.IsActive {
			return nil, domain.Invalid("variant_id", "variant is not available")
		}
	}

	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if _, err := s.carts.AddItem(ctx, c.ID, Item{
		ID:        uuid.New(),
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
	}); err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}
	return s.Get(ctx, userID)
}

// UpdateItem sets the quantity of a line. A quantity of zero or less removes it.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*View, error) {
	if err := domain.CheckQuantity("quantity", quantity); err != nil {
		return nil, err
	}
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if quantity <= 0 {
		err = s.carts.RemoveItem(ctx, c.ID, itemID)
	} else {
		err = s.carts.SetQuantity(ctx, c.ID, itemID, quantity)
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// RemoveItem deletes a line from the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error) {
	return s.UpdateItem(ctx, userID, itemID, 0)
}

func (s *Service) price(ctx context.Context, c *Cart) (*View, error) {
	view := &View{Cart: *c, Subtotal: decimal.Zero}
	if len(c.Items) == 0 {
		return view, nil
	}
	lines, err := PriceItems(ctx, s.products, c.Items)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		view.Subtotal = view.Subtotal.Add(l.Total)
		view.Count += l.Quantity
	}
	view.Lines = lines
	return view, nil
}

// PriceItems resolves every item against the catalog in one batch lookup.
// Items whose product has disappeared yield a ValidationError.
func PriceItems(ctx context.Context, products catalog.Repository, items []Item) ([]Line, error) {
	c := Cart{Items: items}
	fetched, err := products.GetByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[uuid.UUID]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, domain.Invalid("items", "product "+it.ProductID.String()+" no longer exists")
		}
		var v *catalog.Variant
		if it.VariantID != nil {
			v, ok = p.FindVariant(*it.VariantID)
			if !ok {
				return nil, domain.Invalid("items", "variant "+it.VariantID.String()+" no longer exists")
			}
		}
		snap := catalog.Resolve(p, v)
		lines = append(lines, Line{
			Item:      it,
			Snapshot:  snap,
			Total:     snap.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
			Available: p.IsActive && (v == nil || v.IsActive),
		})
	}
	return lines, nil
}
