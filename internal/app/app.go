package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/rimae-ledger/internal/domain/analytics"
	"github.com/xenking/rimae-ledger/internal/domain/auth"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
	"github.com/xenking/rimae-ledger/internal/domain/catalog"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
	"github.com/xenking/rimae-ledger/internal/domain/order"
	"github.com/xenking/rimae-ledger/internal/domain/payment"
	"github.com/xenking/rimae-ledger/internal/domain/pricing"
	"github.com/xenking/rimae-ledger/internal/domain/review"
	"github.com/xenking/rimae-ledger/internal/domain/shipment"
	"github.com/xenking/rimae-ledger/internal/handler"
	"github.com/xenking/rimae-ledger/internal/repository"
	"github.com/xenking/rimae-ledger/pkg/health"
	"github.com/xenking/rimae-ledger/pkg/httpmiddleware"
)

const serviceName = "rimae-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.Pricing.Policy()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New(lg)
	healthSvc.Ready(health.Check{Name: "postgres", Timeout: 5 * time.Second, Run: health.PingCheck(pool)})
	healthSvc.Ready(health.Check{Name: "postgres_pool", Timeout: time.Second, Run: health.PoolSaturationCheck(poolStat(pool)), FailAfter: 5})
	healthSvc.Live(health.Check{Name: "goroutines", Timeout: time.Second, Run: health.GoroutineCountCheck(10000)})
	healthSvc.Live(health.Check{Name: "gc_pause", Timeout: time.Second, Run: health.GCMaxPauseCheck(time.Second)})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	services, err := newServices(pool, cfg, policy, m)
	if err != nil {
		return err
	}

	h := handler.NewHandler(services, auth.NewVerifier([]byte(cfg.Auth.JWTSecret)))

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, "/api")
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newServices builds repositories and domain services over pool.
func newServices(pool *pgxpool.Pool, cfg *Config, policy pricing.Policy, m *app.Telemetry) (handler.Services, error) {
	retries := cfg.Inventory.MaxRetries

	// Repositories.
	catalogRepo := repository.NewCatalogRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool, retries)
	stockRepo := repository.NewInventoryRepository(pool, retries)
	purchaseRepo := repository.NewPurchaseRepository(pool, retries)
	shipmentRepo := repository.NewShipmentRepository(pool, retries)
	reviewRepo := repository.NewReviewRepository(pool, retries)

	// Domain services.
	metrics, err := order.NewMetrics(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return handler.Services{}, errors.Wrap(err, "order metrics")
	}
	orders := order.NewService(
		cartRepo,
		catalogRepo,
		coupon.NewRepoValidator(couponRepo),
		orderRepo,
		payment.CashOnDelivery{},
		policy,
	).WithMetrics(metrics)
	stock := inventory.NewService(stockRepo, purchaseRepo, cfg.Inventory.AllowNegativeStock)
	shipments := shipment.NewService(shipmentRepo, orders)

	return handler.Services{
		Catalog:   catalog.NewService(catalogRepo).WithCategories(catalogRepo),
		Cart:      cart.NewService(cartRepo, catalogRepo).WithWishlist(cartRepo),
		Orders:    orders,
		Coupons:   coupon.NewService(couponRepo, coupon.NewRepoValidator(couponRepo)),
		Inventory: stock,
		Shipments: shipments,
		Reviews:   review.NewService(reviewRepo, catalogRepo),
		Analytics: analytics.NewService(orderRepo, shipments, stock),
	}, nil
}

func poolStat(pool *pgxpool.Pool) func() (acquired, limit int32) {
	return func() (int32, int32) {
		st := pool.Stat()
		return st.AcquiredConns(), st.MaxConns()
	}
}
