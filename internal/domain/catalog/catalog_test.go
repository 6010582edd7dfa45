package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rimae-ledger/internal/domain"
)

type mockRepo struct {
	byID    map[uuid.UUID]*Product
	created *Product
	updated *Product
}

func (m *mockRepo) List(_ context.Context, _ domain.Page) ([]Product, int, error) {
	out := make([]Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]Product, error) {
	var out []Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepo) GetVariant(_ context.Context, id uuid.UUID) (*Variant, error) {
	for _, p := range m.byID {
		if v, ok := p.FindVariant(id); ok {
			return v, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Create(_ context.Context, p *Product) error {
	m.created = p
	return nil
}

func (m *mockRepo) Update(_ context.Context, p *Product) error {
	m.updated = p
	return nil
}

func TestResolve(t *testing.T) {
	p := Product{
		Name:      "Oud Noir",
		SKU:       "OUD",
		Price:     decimal.NewFromInt(1200),
		CostPrice: decimal.NewFromInt(400),
	}
	v := &Variant{
		Name:      "50ml",
		SKU:       "OUD-50",
		Price:     decimal.NewFromInt(500),
		CostPrice: decimal.NewFromInt(200),
	}

	base := Resolve(p, nil)
	assert.Equal(t, "OUD", base.SKU)
	assert.True(t, base.UnitPrice.Equal(decimal.NewFromInt(1200)))
	assert.True(t, base.UnitCost.Equal(decimal.NewFromInt(400)))
	assert.Empty(t, base.VariantName)

	withVariant := Resolve(p, v)
	assert.Equal(t, "Oud Noir", withVariant.ProductName)
	assert.Equal(t, "50ml", withVariant.VariantName)
	assert.Equal(t, "OUD-50", withVariant.SKU)
	assert.True(t, withVariant.UnitPrice.Equal(decimal.NewFromInt(500)))
	assert.True(t, withVariant.UnitCost.Equal(decimal.NewFromInt(200)))
}

func TestProduct_Validate(t *testing.T) {
	valid := Product{
		SKU:       "ROSE-01",
		Name:      "Rose Attar",
		Type:      TypeFragrance,
		Price:     decimal.NewFromInt(900),
		CostPrice: decimal.NewFromInt(300),
		Notes:     []Note{{Type: NoteTop, Value: "rose"}},
	}

	tests := []struct {
		name    string
		mutate  func(p *Product)
		wantErr string
	}{
		{name: "valid", mutate: func(*Product) {}},
		{name: "missing sku", mutate: func(p *Product) { p.SKU = " " }, wantErr: "sku"},
		{name: "missing name", mutate: func(p *Product) { p.Name = "" }, wantErr: "name"},
		{name: "bad type", mutate: func(p *Product) { p.Type = "candle" }, wantErr: "product_type"},
		{name: "negative price", mutate: func(p *Product) { p.Price = decimal.NewFromInt(-1) }, wantErr: "price"},
		{name: "negative cost", mutate: func(p *Product) { p.CostPrice = decimal.NewFromInt(-1) }, wantErr: "cost_price"},
		{name: "unknown note", mutate: func(p *Product) { p.Notes = []Note{{Type: "heart", Value: "x"}} }, wantErr: "notes"},
		{name: "empty note", mutate: func(p *Product) { p.Notes = []Note{{Type: NoteBase}} }, wantErr: "notes"},
		{
			name:    "variant without sku",
			mutate:  func(p *Product) { p.Variants = []Variant{{Price: decimal.NewFromInt(1)}} },
			wantErr: "variants",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantErr, vErr.Field)
		})
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "oud-noir-edp", Slugify("  Oud Noir (EDP) "))
	assert.Equal(t, "vetiver-50ml", Slugify("Vetiver -- 50ml"))
}

func TestService_CreateAssignsIDs(t *testing.T) {
	repo := &mockRepo{byID: map[uuid.UUID]*Product{}}
	svc := NewService(repo)
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	p := &Product{
		SKU:      "AMBER",
		Name:     "Amber Dusk",
		Price:    decimal.NewFromInt(1500),
		Variants: []Variant{{SKU: "AMBER-10", Name: "10ml", Price: decimal.NewFromInt(400)}},
	}
	require.NoError(t, svc.Create(context.Background(), p))

	require.NotNil(t, repo.created)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, "amber-dusk", p.Slug)
	assert.Equal(t, TypeFragrance, p.Type)
	assert.Equal(t, p.ID, p.Variants[0].ProductID)
	assert.Equal(t, fixed, p.CreatedAt)
}

func TestService_UpdateMissing(t *testing.T) {
	svc := NewService(&mockRepo{byID: map[uuid.UUID]*Product{}})

	err := svc.Update(context.Background(), &Product{ID: uuid.New(), SKU: "X", Name: "X"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServiceGetVariant(t *testing.T) {
	vid := uuid.New()
	p := &Product{ID: uuid.New(), Variants: []Variant{{ID: vid, Name: "100ml"}}}
	svc := NewService(&mockRepo{byID: map[uuid.UUID]*Product{p.ID: p}})

	v, err := svc.GetVariant(context.Background(), vid)
	require.NoError(t, err)
	assert.Equal(t, "100ml", v.Name)

	_, err = svc.GetVariant(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

type mockCategories struct {
	stored []Category
}

func (m *mockCategories) ListCategories(_ context.Context, activeOnly bool) ([]Category, error) {
	var out []Category
	for _, c := range m.stored {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCategories) CreateCategory(_ context.Context, c *Category) error {
	m.stored = append(m.stored, *c)
	return nil
}

func TestServiceCategories(t *testing.T) {
	ctx := context.Background()
	cats := &mockCategories{}
	svc := NewService(&mockRepo{byID: map[uuid.UUID]*Product{}}).WithCategories(cats)

	woody := &Category{Name: "Woody Scents", IsActive: true}
	require.NoError(t, svc.CreateCategory(ctx, woody))
	assert.Equal(t, "woody-scents", woody.Slug)
	assert.NotEqual(t, uuid.Nil, woody.ID)

	parent := woody.ID
	require.NoError(t, svc.CreateCategory(ctx, &Category{Name: "Oud", ParentID: &parent}))

	err := svc.CreateCategory(ctx, &Category{Name: "  "})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)

	shown, err := svc.Categories(ctx, false)
	require.NoError(t, err)
	require.Len(t, shown, 1)
	assert.Equal(t, "Woody Scents", shown[0].Name)

	all, err := svc.Categories(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
