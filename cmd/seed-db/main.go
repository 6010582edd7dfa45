// Command seed-db loads a demo catalog with opening stock, carriers and
// launch coupons. Records that already exist are left alone, so it can be
// re-run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appkg "github.com/xenking/rimae-ledger/internal/app"
	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
	"github.com/xenking/rimae-ledger/internal/domain/shipment"
	"github.com/xenking/rimae-ledger/internal/repository"
)

type productJSON struct {
	SKU            string           `json:"sku"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Type           string           `json:"product_type"`
	Category       string           `json:"category"`
	Gender         string           `json:"gender"`
	Concentration  string           `json:"concentration"`
	Price          decimal.Decimal  `json:"price"`
	CompareAtPrice *decimal.Decimal `json:"compare_at_price"`
	CostPrice      decimal.Decimal  `json:"cost_price"`
	Notes          []catalog.Note   `json:"notes"`
	Images         []struct {
		URL       string `json:"url"`
		AltText   string `json:"alt_text"`
		IsPrimary bool   `json:"is_primary"`
	} `json:"images"`
	Variants []struct {
		SKU       string          `json:"sku"`
		Name      string          `json:"name"`
		Size      string          `json:"size"`
		Price     decimal.Decimal `json:"price"`
		CostPrice decimal.Decimal `json:"cost_price"`
		Stock     int             `json:"stock"`
	} `json:"variants"`
	// Stock is the opening quantity of a product without variants.
	Stock int `json:"stock"`
}

func (p productJSON) product() catalog.Product {
	out := catalog.Product{
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Type:           catalog.ProductType(p.Type),
		Gender:         p.Gender,
		Concentration:  p.Concentration,
		Price:          p.Price,
		CompareAtPrice: p.CompareAtPrice,
		CostPrice:      p.CostPrice,
		Notes:          p.Notes,
		IsActive:       true,
	}
	for _, img := range p.Images {
		out.Images = append(out.Images, catalog.Image{URL: img.URL, AltText: img.AltText, IsPrimary: img.IsPrimary})
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, catalog.Variant{
			SKU:       v.SKU,
			Name:      v.Name,
			Size:      v.Size,
			Price:     v.Price,
			CostPrice: v.CostPrice,
			IsActive:  true,
		})
	}
	return out
}

var carriers = []shipment.Carrier{
	{Name: "Delhivery", Code: "DLV", TrackingURLTemplate: "https://www.delhivery.com/track/package/{tracking_number}", IsActive: true},
	{Name: "BlueDart", Code: "BD", TrackingURLTemplate: "https://www.bluedart.com/tracking?awb={tracking_number}", IsActive: true},
	{Name: "DTDC", Code: "DTDC", TrackingURLTemplate: "https://www.dtdc.in/tracking.asp?cnno={tracking_number}", IsActive: true},
	{Name: "Ecom Express", Code: "ECM", IsActive: true},
}

func launchCoupons(now time.Time) []coupon.Coupon {
	maxDiscount := decimal.NewFromInt(300)
	limit := 500
	until := now.AddDate(1, 0, 0)
	return []coupon.Coupon{
		{
			Code:         "WELCOME10",
			Description:  "10% off your first order, up to 300",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			MaxDiscount:  &maxDiscount,
			ValidFrom:    now,
			ValidUntil:   until,
			IsActive:     true,
		},
		{
			Code:           "FLAT200",
			Description:    "200 off orders of 1499 or more",
			DiscountType:   coupon.DiscountFixed,
			Value:          decimal.NewFromInt(200),
			MinOrderAmount: decimal.NewFromInt(1499),
			UsageLimit:     &limit,
			ValidFrom:      now,
			ValidUntil:     until,
			IsActive:       true,
		},
	}
}

func main() {
	var catalogFile string
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.Parse()

	_ = godotenv.Load()

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		return run(ctx, lg, catalogFile)
	})
}

type seeder struct {
	lg        *zap.Logger
	catalog   *catalog.Service
	stock     *inventory.Service
	shipments *shipment.Service
	coupons   *repository.CouponRepository
}

func run(ctx context.Context, lg *zap.Logger, catalogFile string) error {
	cfg, err := appkg.LoadToolConfig()
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	retries := cfg.Inventory.MaxRetries
	catalogRepo := repository.NewCatalogRepository(pool)
	s := &seeder{
		lg:      lg,
		catalog: catalog.NewService(catalogRepo).WithCategories(catalogRepo),
		stock: inventory.NewService(
			repository.NewInventoryRepository(pool, retries),
			repository.NewPurchaseRepository(pool, retries),
			false,
		),
		// Carrier creation never reaches the order ledger.
		shipments: shipment.NewService(repository.NewShipmentRepository(pool, retries), nil),
		coupons:   repository.NewCouponRepository(pool),
	}

	if err := s.seedCatalog(ctx, catalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := s.seedCarriers(ctx); err != nil {
		return errors.Wrap(err, "seed carriers")
	}
	if err := s.seedCoupons(ctx); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	lg.Info("Seed completed")
	return nil
}

// exists reports whether err means the record was seeded before.
func exists(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr) || errors.Is(err, domain.ErrConflict)
}

func (s *seeder) seedCatalog(ctx context.Context, path string) error {
	s.lg.Info("Reading catalog file", zap.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	categories, err := s.seedCategories(ctx, products)
	if err != nil {
		return err
	}

	for _, raw := range products {
		p := raw.product()
		if id, ok := categories[raw.Category]; ok {
			p.CategoryID = &id
		}
		if err := s.catalog.Create(ctx, &p); err != nil {
			if exists(err) {
				s.lg.Info("Product already present", zap.String("sku", raw.SKU), zap.Error(err))
				continue
			}
			return errors.Wrapf(err, "create product %s", raw.SKU)
		}
		s.lg.Info("Created product", zap.String("sku", p.SKU), zap.Stringer("id", p.ID))

		if len(p.Variants) == 0 {
			if err := s.openStock(ctx, p.ID, nil, raw.Stock); err != nil {
				return errors.Wrapf(err, "stock %s", p.SKU)
			}
			continue
		}
		for i := range p.Variants {
			v := &p.Variants[i]
			if err := s.openStock(ctx, p.ID, &v.ID, raw.Variants[i].Stock); err != nil {
				return errors.Wrapf(err, "stock %s", v.SKU)
			}
		}
	}
	return nil
}

// seedCategories makes sure every category named in the catalog file exists
// and returns their ids by name.
func (s *seeder) seedCategories(ctx context.Context, products []productJSON) (map[string]uuid.UUID, error) {
	existing, err := s.catalog.Categories(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	byName := make(map[string]uuid.UUID, len(existing))
	for _, c := range existing {
		byName[c.Name] = c.ID
	}
	for _, raw := range products {
		if raw.Category == "" {
			continue
		}
		if _, ok := byName[raw.Category]; ok {
			continue
		}
		c := catalog.Category{Name: raw.Category, IsActive: true}
		if err := s.catalog.CreateCategory(ctx, &c); err != nil {
			return nil, errors.Wrapf(err, "create category %s", raw.Category)
		}
		s.lg.Info("Created category", zap.String("name", c.Name), zap.Stringer("id", c.ID))
		byName[c.Name] = c.ID
	}
	return byName, nil
}

// openStock registers a stock row and books the opening quantity through the
// ledger so it shows up as a movement.
func (s *seeder) openStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	inv := inventory.Inventory{ProductID: productID, VariantID: variantID}
	if err := s.stock.Create(ctx, &inv); err != nil {
		return err
	}
	if qty <= 0 {
		return nil
	}
	_, _, err := s.stock.Adjust(ctx, inv.ID, qty, inventory.MovementIn, "opening stock", nil)
	return err
}

func (s *seeder) seedCarriers(ctx context.Context) error {
	for _, c := range carriers {
		if err := s.shipments.CreateCarrier(ctx, &c); err != nil {
			if exists(err) {
				s.lg.Info("Carrier already present", zap.String("code", c.Code))
				continue
			}
			return errors.Wrapf(err, "create carrier %s", c.Code)
		}
		s.lg.Info("Created carrier", zap.String("code", c.Code), zap.String("name", c.Name))
	}
	return nil
}

func (s *seeder) seedCoupons(ctx context.Context) error {
	now := time.Now().UTC()
	for _, c := range launchCoupons(now) {
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		c.ID = uuid.New()
		c.CreatedAt = now
		if err := s.coupons.Upsert(ctx, &c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		s.lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}
