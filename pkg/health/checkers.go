package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when the database does not answer a ping.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// PoolSaturationCheck reports unhealthy while every pooled connection is
// checked out. stat returns the acquired and maximum connection counts; a
// maximum of zero disables the check.
func PoolSaturationCheck(stat func() (acquired, limit int32)) CheckFunc {
	return func(_ context.Context) error {
		acquired, limit := stat()
		if limit > 0 && acquired >= limit {
			return errors.Errorf("all %d connections acquired", limit)
		}
		return nil
	}
}

// GoroutineCountCheck fails once more than threshold goroutines are alive,
// which on this server means handlers are piling up behind the database.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when any recent stop-the-world pause exceeds
// threshold. Large workbook exports are the usual cause.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var st debug.GCStats
		debug.ReadGCStats(&st)
		if i := slices.IndexFunc(st.Pause, func(p time.Duration) bool { return p > threshold }); i >= 0 {
			return errors.Errorf("GC pause %s exceeds threshold %s", st.Pause[i], threshold)
		}
		return nil
	}
}
