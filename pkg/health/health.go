// Package health serves the /livez and /readyz probes of the ledger API.
//
// Each check is polled by its own goroutine. A check goes down after
// FailAfter consecutive failures and comes back after RecoverAfter
// consecutive passes, so a single slow ping does not flap readiness.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc returns nil while the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes one probe.
type Check struct {
	Name    string
	Timeout time.Duration
	Run     CheckFunc
	// FailAfter defaults to 3.
	FailAfter int
	// RecoverAfter defaults to 1.
	RecoverAfter int
}

// probe is a Check plus its runtime state. fails and passes belong to the
// polling goroutine; up and lastErr are read by HTTP handlers.
type probe struct {
	Check
	lg *zap.Logger

	up      atomic.Bool
	lastErr atomic.Pointer[error]

	fails  int
	passes int
}

func newProbe(lg *zap.Logger, c Check) *probe {
	if c.FailAfter <= 0 {
		c.FailAfter = 3
	}
	if c.RecoverAfter <= 0 {
		c.RecoverAfter = 1
	}
	p := &probe{Check: c, lg: lg.With(zap.String("check", c.Name))}
	p.up.Store(true)
	return p
}

func (p *probe) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// observe runs the check once and moves the probe between up and down.
func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Run(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.passes = 0
		p.fails++
		if p.fails >= p.FailAfter && p.up.Swap(false) {
			p.lg.Warn("Health check down", zap.Int("failures", p.fails), zap.Error(err))
		}
		return
	}
	p.fails = 0
	p.passes++
	if p.passes >= p.RecoverAfter && !p.up.Swap(true) {
		p.lg.Info("Health check recovered")
	}
}

func (p *probe) poll(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	p.observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.observe(ctx)
		}
	}
}

// Health aggregates liveness and readiness probes.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg.Named("health")}
}

// Live registers a liveness check, e.g. goroutine growth or GC pauses.
func (h *Health) Live(c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(h.lg, c))
}

// Ready registers a readiness check, e.g. database reachability.
func (h *Health) Ready(c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(h.lg, c))
}

// Start polls every registered check at the given interval until Stop or
// ctx is done. Call it once, after registration.
func (h *Health) Start(ctx context.Context, every time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	all := append(append([]*probe(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range all {
		go p.poll(ctx, every)
	}
}

// Stop halts polling. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate; the server clears it before
// draining connections on shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the gate AND every readiness probe.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshot(&h.readiness) {
		if !p.up.Load() {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(set *[]*probe) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*probe(nil), (*set)...)
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	report(w, failures(h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	report(w, failed)
}

// failures maps each down probe to its last error.
func failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if p.up.Load() {
			continue
		}
		msg := "check is unhealthy"
		if err := p.err(); err != nil {
			msg = err.Error()
		}
		out[p.Name] = msg
	}
	return out
}

// report writes {"status":"ok"} with 200, or the failing checks with 503.
func report(w http.ResponseWriter, failed map[string]string) {
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	if len(names) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("status")
		e.Str(status)
		if len(names) == 0 {
			return
		}
		e.FieldStart("checks")
		e.Obj(func(e *jx.Encoder) {
			for _, name := range names {
				e.FieldStart(name)
				e.Str(failed[name])
			}
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
