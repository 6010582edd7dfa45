package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appkg "github.com/xenking/rimae-ledger/internal/app"
	"github.com/xenking/rimae-ledger/internal/domain/analytics"
	"github.com/xenking/rimae-ledger/internal/domain/auth"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
	"github.com/xenking/rimae-ledger/internal/report"
	"github.com/xenking/rimae-ledger/internal/repository"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := repository.RunMigrations(cmd.Context(), pool); err != nil {
				return err
			}
			c.lg.Info("Schema applied")
			return nil
		},
	}
}

func newTokenCmd(c *cli) *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := principal(user, role)
			if err != nil {
				return err
			}
			ac, err := appkg.LoadAuthConfig()
			if err != nil {
				return err
			}
			tok, err := auth.Sign([]byte(ac.JWTSecret), p, time.Now(), ttl)
			if err != nil {
				return errors.Wrap(err, "sign token")
			}
			c.lg.Info("Token issued",
				zap.Stringer("user_id", p.UserID),
				zap.String("role", string(p.Role)),
				zap.Duration("ttl", ttl),
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id; a random one when empty")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "customer or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

// principal parses the token subject flags.
func principal(user, role string) (auth.Principal, error) {
	p := auth.Principal{Role: auth.Role(role)}
	if !p.Role.Valid() {
		return auth.Principal{}, errors.Errorf("unknown role %q", role)
	}
	if user == "" {
		p.UserID = uuid.New()
		return p, nil
	}
	id, err := uuid.Parse(user)
	if err != nil {
		return auth.Principal{}, errors.Wrap(err, "parse user id")
	}
	p.UserID = id
	return p, nil
}

func newStockCmd(c *cli) *cobra.Command {
	stock := &cobra.Command{
		Use:   "stock",
		Short: "Inspect and correct inventory",
	}

	low := &cobra.Command{
		Use:   "low",
		Short: "List rows at or below their reorder level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.inventory(cmd)
			if err != nil {
				return err
			}
			rows, err := svc.LowStock(cmd.Context())
			if err != nil {
				return err
			}
			return writeLowStock(cmd.OutOrStdout(), rows)
		},
	}

	var (
		typ  string
		note string
	)
	adjust := &cobra.Command{
		Use:   "adjust <inventory-id> <delta>",
		Short: "Book a stock movement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return errors.Wrap(err, "parse inventory id")
			}
			var delta int
			if _, err := fmt.Sscan(args[1], &delta); err != nil {
				return errors.Wrap(err, "parse delta")
			}
			svc, err := c.inventory(cmd)
			if err != nil {
				return err
			}
			inv, mv, err := svc.Adjust(cmd.Context(), id, delta, inventory.MovementType(typ), note, nil)
			if err != nil {
				return err
			}
			c.lg.Info("Stock adjusted",
				zap.Stringer("inventory_id", inv.ID),
				zap.String("type", string(mv.Type)),
				zap.Int("previous", mv.PreviousQuantity),
				zap.Int("quantity", inv.Quantity),
			)
			return nil
		},
	}
	adjust.Flags().StringVar(&typ, "type", string(inventory.MovementAdjustment), "movement type: in, out, adjustment, transfer, return")
	adjust.Flags().StringVar(&note, "note", "", "reason recorded on the movement")

	stock.AddCommand(low, adjust)
	return stock
}

func (c *cli) inventory(cmd *cobra.Command) (*inventory.Service, error) {
	pool, err := c.connect(cmd.Context())
	if err != nil {
		return nil, err
	}
	retries := c.cfg.Inventory.MaxRetries
	return inventory.NewService(
		repository.NewInventoryRepository(pool, retries),
		repository.NewPurchaseRepository(pool, retries),
		c.cfg.Inventory.AllowNegativeStock,
	), nil
}

func writeLowStock(w io.Writer, rows []inventory.Inventory) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSKU\tPRODUCT\tAVAILABLE\tREORDER LEVEL\tREORDER QTY")
	for i := range rows {
		r := &rows[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.SKU, r.ProductName, r.Available(), r.ReorderLevel, r.ReorderQuantity)
	}
	return tw.Flush()
}

func newReportCmd(c *cli) *cobra.Command {
	rep := &cobra.Command{
		Use:   "report",
		Short: "Export analytics",
	}

	var from, to, out string
	economics := &cobra.Command{
		Use:   "economics",
		Short: "Write the unit-economics workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := parseRange(from, to)
			if err != nil {
				return err
			}
			pool, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			retries := c.cfg.Inventory.MaxRetries
			svc := analytics.NewService(repository.NewOrderRepository(pool, retries), nil, nil)
			res, err := svc.UnitEconomics(cmd.Context(), r)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := report.WriteEconomics(&buf, res); err != nil {
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return errors.Wrap(err, "write workbook")
			}
			c.lg.Info("Report written",
				zap.String("path", out),
				zap.Int("orders", res.Summary.OrderCount),
				zap.String("net_profit", res.Summary.NetProfit.StringFixed(2)),
			)
			return nil
		},
	}
	economics.Flags().StringVar(&from, "from", "", "start date, YYYY-MM-DD or RFC 3339")
	economics.Flags().StringVar(&to, "to", "", "end date, YYYY-MM-DD or RFC 3339")
	economics.Flags().StringVarP(&out, "out", "o", "unit-economics.xlsx", "output path")

	rep.AddCommand(economics)
	return rep
}

func parseRange(from, to string) (analytics.Range, error) {
	var r analytics.Range
	for _, f := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{"from", from, &r.From},
		{"to", to, &r.To},
	} {
		if f.raw == "" {
			continue
		}
		t, err := parseTime(f.raw)
		if err != nil {
			return analytics.Range{}, errors.Wrapf(err, "parse --%s", f.name)
		}
		*f.dst = &t
	}
	if err := r.Validate(); err != nil {
		return analytics.Range{}, err
	}
	return r, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
