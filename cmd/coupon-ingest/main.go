// Command coupon-ingest bulk-loads coupon campaigns from gzip-compressed CSV
// files. Codes that appear in more than one file are ambiguous and skipped;
// everything else is upserted by code.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appkg "github.com/xenking/rimae-ledger/internal/app"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/repository"
)

type options struct {
	files       []string
	validDays   int
	description string
	capacity    uint
	workers     int
	dryRun      bool
}

func main() {
	var opts options
	flag.IntVar(&opts.validDays, "valid-days", 90, "validity window for lines without valid_until")
	flag.StringVar(&opts.description, "description", "Campaign coupon", "description for imported coupons")
	flag.UintVar(&opts.capacity, "capacity", 10_000_000, "expected codes per file, sizes the bloom filters")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent database writers")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "parse and report without writing")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] campaign.csv.gz...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	opts.files = flag.Args()
	if len(opts.files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		return run(ctx, lg, opts)
	})
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	for _, f := range opts.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	sc := &scanner{lg: lg, capacity: opts.capacity}
	dups, err := sc.crossFileDuplicates(ctx, opts.files)
	if err != nil {
		return err
	}
	lg.Info("Shared codes found", zap.Int("count", len(dups)))

	now := time.Now().UTC()
	def := defaults{
		ValidFrom:   now,
		ValidUntil:  now.AddDate(0, 0, opts.validDays),
		Description: opts.description,
	}

	var store upserter = discard{}
	if !opts.dryRun {
		cfg, err := appkg.LoadToolConfig()
		if err != nil {
			return err
		}
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()
		if err := repository.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		store = repository.NewCouponRepository(pool)
	}

	st, err := ingest(ctx, lg, store, opts.files, dups, def, opts.workers)
	if err != nil {
		return err
	}
	lg.Info("Coupon ingest complete",
		zap.Int64("written", st.written.Load()),
		zap.Int64("shared", st.shared.Load()),
		zap.Int64("invalid", st.invalid.Load()),
		zap.Bool("dry_run", opts.dryRun),
	)
	return nil
}

type upserter interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

type discard struct{}

func (discard) Upsert(context.Context, *coupon.Coupon) error { return nil }

type stats struct {
	written atomic.Int64
	shared  atomic.Int64
	invalid atomic.Int64
}

// ingest parses every file and upserts the coupons whose codes are not in
// dups. Malformed lines are logged and counted, not fatal.
func ingest(ctx context.Context, lg *zap.Logger, store upserter, files []string, dups map[string]struct{}, def defaults, workers int) (*stats, error) {
	st := new(stats)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for _, path := range files {
		line := 0
		err := streamGzFile(gctx, path, func(raw string) {
			line++
			if skipLine(raw) {
				return
			}
			if _, ok := dups[lineCode(raw)]; ok {
				st.shared.Add(1)
				return
			}
			c, err := parseLine(raw, def)
			if err != nil {
				st.invalid.Add(1)
				lg.Warn("Skipping line", zap.String("file", path), zap.Int("line", line), zap.Error(err))
				return
			}
			n := line
			g.Go(func() error {
				if err := store.Upsert(gctx, &c); err != nil {
					return errors.Wrapf(err, "%s:%d", path, n)
				}
				st.written.Add(1)
				return nil
			})
		})
		if err != nil {
			// A failed write cancels gctx; report it over the read error.
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, err
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}
