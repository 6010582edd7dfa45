package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures CORS.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to every method the API routes use.
	AllowMethods []string
	// AllowHeaders is echoed from Access-Control-Request-Headers when empty.
	AllowHeaders  []string
	ExposeHeaders []string
	// AllowCredentials disables the "*" origin; the matched origin is echoed.
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the header.
	MaxAge int
}

var defaultCORSMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// CORS answers preflight requests and decorates cross-origin responses.
// Origins are matched case-insensitively and echoed in their configured case.
func CORS(cfg CORSConfig) Middleware {
	anyOrigin := len(cfg.AllowOrigins) == 0
	origins := make(map[string]string, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			anyOrigin = true
			continue
		}
		origins[strings.ToLower(o)] = o
	}
	// Browsers reject "*" together with credentials.
	if cfg.AllowCredentials {
		anyOrigin = false
	}

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")

	var maxAge string
	switch {
	case cfg.MaxAge > 0:
		maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		maxAge = "0"
	}

	allowed := func(origin string) string {
		if anyOrigin {
			return "*"
		}
		return origins[strings.ToLower(origin)]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			if !anyOrigin {
				h.Add("Vary", "Origin")
			}
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin := allowed(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowOrigin != "" {
					h.Set("Access-Control-Allow-Origin", allowOrigin)
					h.Set("Access-Control-Allow-Methods", allowMethods)
					if allowHeaders != "" {
						h.Set("Access-Control-Allow-Headers", allowHeaders)
					} else if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
						h.Set("Access-Control-Allow-Headers", requested)
					}
					if cfg.AllowCredentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if exposeHeaders != "" {
					h.Set("Access-Control-Expose-Headers", exposeHeaders)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
