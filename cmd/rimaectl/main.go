// Command rimaectl is the operator tool for the ledger: schema migrations,
// stock corrections, report exports and bearer tokens for support staff.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appkg "github.com/xenking/rimae-ledger/internal/app"
	"github.com/xenking/rimae-ledger/internal/repository"
)

// cli carries state shared by subcommands. The pool is opened lazily so
// commands that do not need the database work without one.
type cli struct {
	lg      *zap.Logger
	verbose bool
	cfg     *appkg.Config
	pool    *pgxpool.Pool
}

func (c *cli) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if c.pool != nil {
		return c.pool, nil
	}
	cfg, err := appkg.LoadToolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	c.cfg, c.pool = cfg, pool
	return pool, nil
}

func (c *cli) close() {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.lg != nil {
		_ = c.lg.Sync()
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "rimaectl",
		Short:         "Operate the Rimae order ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := zap.NewProductionConfig()
			if c.verbose {
				cfg = zap.NewDevelopmentConfig()
			}
			lg, err := cfg.Build()
			if err != nil {
				return errors.Wrap(err, "build logger")
			}
			c.lg = lg
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "human-readable debug logging")

	root.AddCommand(
		newMigrateCmd(c),
		newTokenCmd(c),
		newStockCmd(c),
		newReportCmd(c),
	)
	return root
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	c.close()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
