package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func check(name string, fn CheckFunc) Check {
	return Check{Name: name, Timeout: time.Second, Run: fn}
}

type statusBody struct {
	Status string
	Checks map[string]string
}

func serve(t *testing.T, endpoint http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := statusBody{Checks: map[string]string{}}
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			body.Status = v
			return err
		case "checks":
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				body.Checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return w.Code, body
}

// drive runs the only probe of set n times.
func drive(t *testing.T, set []*probe, n int) *probe {
	t.Helper()
	require.Len(t, set, 1)
	for range n {
		set[0].observe(context.Background())
	}
	return set[0]
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("NoChecks", func(t *testing.T) {
		code, body := serve(t, New(zaptest.NewLogger(t)).LiveEndpoint)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
	})
	t.Run("HealthyUntilPolled", func(t *testing.T) {
		h := New(zaptest.NewLogger(t))
		h.Live(check("db", fail("refused")))

		code, body := serve(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusOK, code)
		assert.Empty(t, body.Checks)
	})
	t.Run("BelowThreshold", func(t *testing.T) {
		h := New(zaptest.NewLogger(t))
		h.Live(check("flaky", fail("temporary")))
		drive(t, h.liveness, 2)

		code, _ := serve(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusOK, code)
	})
	t.Run("Down", func(t *testing.T) {
		h := New(zaptest.NewLogger(t))
		h.Live(check("db", fail("connection refused")))
		h.Live(check("gc", pass))
		drive(t, h.liveness[:1], 3)

		code, body := serve(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, map[string]string{"db": "connection refused"}, body.Checks)
	})
}

func TestReadyEndpoint(t *testing.T) {
	for _, tt := range []struct {
		name   string
		ready  bool
		checks []Check
		want   map[string]string
	}{
		{name: "ReadyNoChecks", ready: true, want: map[string]string{}},
		{name: "ReadyPassing", ready: true, checks: []Check{check("postgres", pass)}, want: map[string]string{}},
		{
			name:   "NotReady",
			checks: []Check{check("postgres", pass)},
			want:   map[string]string{"_readiness": "service is not ready"},
		},
		{
			name:   "OneDown",
			ready:  true,
			checks: []Check{check("postgres", pass), {Name: "postgres_pool", Timeout: time.Second, Run: fail("all 4 connections acquired"), FailAfter: 1}},
			want:   map[string]string{"postgres_pool": "all 4 connections acquired"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New(zaptest.NewLogger(t))
			for _, c := range tt.checks {
				h.Ready(c)
			}
			for _, p := range h.readiness {
				p.observe(context.Background())
			}
			h.SetReady(tt.ready)

			code, body := serve(t, h.ReadyEndpoint)
			assert.Equal(t, tt.want, body.Checks)
			if len(tt.want) == 0 {
				assert.Equal(t, http.StatusOK, code)
				assert.True(t, h.IsReady())
			} else {
				assert.Equal(t, http.StatusServiceUnavailable, code)
				assert.False(t, h.IsReady())
			}
		})
	}
}

func TestSetReadyFalseOnShutdown(t *testing.T) {
	h := New(nil)
	h.Ready(check("postgres", pass))
	h.SetReady(true)
	require.True(t, h.IsReady())

	h.SetReady(false)
	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")
}

func TestProbeTransitions(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := New(zap.New(core))

	down := true
	h.Live(Check{
		Name:         "flaky",
		Timeout:      time.Second,
		RecoverAfter: 2,
		Run: func(context.Context) error {
			if down {
				return errors.New("down")
			}
			return nil
		},
	})

	p := drive(t, h.liveness, 3)
	assert.False(t, p.up.Load())
	assert.EqualError(t, p.err(), "down")

	down = false
	p.observe(context.Background())
	assert.False(t, p.up.Load(), "one pass is below RecoverAfter")
	p.observe(context.Background())
	assert.True(t, p.up.Load())
	assert.NoError(t, p.err())

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "Health check down", logs.All()[0].Message)
	assert.Equal(t, "Health check recovered", logs.All()[1].Message)
	assert.Equal(t, "flaky", logs.All()[0].ContextMap()["check"])
}

func TestProbeDefaults(t *testing.T) {
	p := newProbe(zap.NewNop(), Check{Name: "x", Timeout: time.Second, Run: pass})
	assert.Equal(t, 3, p.FailAfter)
	assert.Equal(t, 1, p.RecoverAfter)
	assert.True(t, p.up.Load())
	assert.Nil(t, p.err())
}

func TestProbeTimeout(t *testing.T) {
	p := newProbe(zap.NewNop(), Check{
		Name:      "slow",
		Timeout:   10 * time.Millisecond,
		FailAfter: 1,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	p.observe(context.Background())
	assert.False(t, p.up.Load())
	assert.ErrorIs(t, p.err(), context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	h := New(zap.NewNop())
	h.Live(check("goroutines", pass))
	h.Start(context.Background(), 10*time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	// Pollers may outlive the test body, so they must not log to t.
	h := New(zap.NewNop())
	h.Live(check("concurrent", fail("err")))
	h.Ready(check("concurrent", pass))
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(stubPinger{})(context.Background()))

	err := PingCheck(stubPinger{err: errors.New("dial tcp: refused")})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}

func TestPoolSaturationCheck(t *testing.T) {
	for _, tt := range []struct {
		name     string
		acquired int32
		max      int32
		wantErr  bool
	}{
		{name: "Idle", acquired: 0, max: 10},
		{name: "Busy", acquired: 9, max: 10},
		{name: "Exhausted", acquired: 10, max: 10, wantErr: true},
		{name: "Unbounded", acquired: 5, max: 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := PoolSaturationCheck(func() (int32, int32) { return tt.acquired, tt.max })(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
