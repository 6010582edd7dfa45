package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
)

// ErrNotFound is returned when a requested product or variant does not exist.
var ErrNotFound = errors.Wrap(domain.ErrNotFound, "product")

// ProductType distinguishes perfumes from add-on goods.
type ProductType string

const (
	TypeFragrance ProductType = "fragrance"
	TypeAccessory ProductType = "accessory"
)

// NoteType is the pyramid layer of a fragrance note.
type NoteType string

const (
	NoteTop    NoteType = "top"
	NoteMiddle NoteType = "middle"
	NoteBase   NoteType = "base"
)

// Note is a single fragrance note, e.g. {top, bergamot}.
type Note struct {
	Type  NoteType `json:"type"`
	Value string   `json:"value"`
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID             uuid.UUID
	SKU            string
	Name           string
	Slug           string
	Description    string
	Type           ProductType
	CategoryID     *uuid.UUID
	Gender         string
	Price          decimal.Decimal
	CompareAtPrice *decimal.Decimal
	CostPrice      decimal.Decimal
	Concentration  string
	Notes          []Note
	IsActive       bool
	Images         []Image
	Variants       []Variant
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Variant overrides price and cost of its product for a given size.
type Variant struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	SKU       string
	Name      string
	Size      string
	Price     decimal.Decimal
	CostPrice decimal.Decimal
	IsActive  bool
}

// Image is a product picture stored by an external file store.
type Image struct {
	URL       string
	AltText   string
	IsPrimary bool
}

// Snapshot is the price and cost of a purchasable unit at a point in time.
type Snapshot struct {
	ProductName string
	VariantName string
	SKU         string
	UnitPrice   decimal.Decimal
	UnitCost    decimal.Decimal
}

// Resolve returns the effective unit values for p, preferring v when set.
func Resolve(p Product, v *Variant) Snapshot {
	s := Snapshot{
		ProductName: p.Name,
		SKU:         p.SKU,
		UnitPrice:   p.Price,
		UnitCost:    p.CostPrice,
	}
	if v != nil {
		s.VariantName = v.Name
		s.SKU = v.SKU
		s.UnitPrice = v.Price
		s.UnitCost = v.CostPrice
	}
	return s
}

// FindVariant returns the variant with the given id from p.Variants.
func (p Product) FindVariant(id uuid.UUID) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Validate checks the fields an admin may set.
func (p Product) Validate() error {
	if strings.TrimSpace(p.SKU) == "" {
		return domain.Invalid("sku", "required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return domain.Invalid("name", "required")
	}
	switch p.Type {
	case TypeFragrance, TypeAccessory:
	default:
		return domain.Invalid("product_type", "must be fragrance or accessory")
	}
	if p.Price.IsNegative() {
		return domain.Invalid("price", "must not be negative")
	}
	if p.CostPrice.IsNegative() {
		return domain.Invalid("cost_price", "must not be negative")
	}
	for _, n := range p.Notes {
		switch n.Type {
		case NoteTop, NoteMiddle, NoteBase:
		default:
			return domain.Invalid("notes", "unknown note type "+string(n.Type))
		}
		if strings.TrimSpace(n.Value) == "" {
			return domain.Invalid("notes", "empty note value")
		}
	}
	for _, v := range p.Variants {
		if v.Price.IsNegative() || v.CostPrice.IsNegative() {
			return domain.Invalid("variants", "price and cost must not be negative")
		}
		if strings.TrimSpace(v.SKU) == "" {
			return domain.Invalid("variants", "sku required")
		}
	}
	return nil
}

// Slugify derives a URL slug from a product name.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Repository defines storage operations for the product catalog.
type Repository interface {
	List(ctx context.Context, page domain.Page) ([]Product, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*Variant, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
}
