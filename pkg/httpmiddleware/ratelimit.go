package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max requests per Window for one key.
	Max    int
	Window time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(*http.Request) string
}

// window counts requests in the current and previous fixed windows; the
// effective count weights the previous one by its remaining overlap.
type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type rateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &rateLimiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// allow counts one request for key unless the limit is reached.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	size := rl.cfg.Window
	w, found := rl.windows[key]
	if !found {
		w = &window{currStart: now.Truncate(size)}
		rl.windows[key] = w
	}
	if elapsed := now.Sub(w.currStart); elapsed >= size {
		if elapsed >= 2*size {
			w.prev = 0
		} else {
			w.prev = w.curr
		}
		w.curr = 0
		w.currStart = now.Truncate(size)
	}

	overlap := 1 - now.Sub(w.currStart).Seconds()/size.Seconds()
	effective := w.prev*math.Max(overlap, 0) + w.curr
	resetAt = w.currStart.Add(size)

	limit := float64(rl.cfg.Max)
	if effective >= limit {
		return 0, resetAt, false
	}
	w.curr++
	return max(int(limit-effective-1), 0), resetAt, true
}

// evict drops keys idle for two full windows.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if now.Sub(w.currStart) >= 2*rl.cfg.Window {
			delete(rl.windows, key)
		}
	}
}

func (rl *rateLimiter) runEviction(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// RateLimit limits requests per key. Rejected requests get 429 with a
// {code, message} body and a Retry-After header; every response carries the
// X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a goroutine evicting idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go rl.runEviction(ctx)
	return rl.middleware()
}

func (rl *rateLimiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := rl.now()
			remaining, resetAt, ok := rl.allow(rl.cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retry := math.Ceil(math.Max(resetAt.Sub(now).Seconds(), 0))
			h.Set("Retry-After", strconv.Itoa(int(retry)))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			e := jx.GetEncoder()
			defer jx.PutEncoder(e)
			e.ObjStart()
			e.FieldStart("code")
			e.Int(http.StatusTooManyRequests)
			e.FieldStart("message")
			e.Str("rate limit exceeded")
			e.ObjEnd()
			_, _ = w.Write(e.Bytes())
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
