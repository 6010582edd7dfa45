package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (RIMAE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (RIMAE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	Pricing     PricingConfig
	Inventory   InventoryConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" usage:"HS256 secret for bearer tokens (RIMAE_AUTH_JWT_SECRET)" flag:"jwt-secret"`
}

// PricingConfig holds store pricing settings. Amounts are decimal strings.
type PricingConfig struct {
	FreeShippingThreshold string `default:"999" usage:"Discounted subtotal at which shipping is free"`
	FlatShipping          string `default:"49"  usage:"Shipping charged below the threshold"`
	TaxPercent            string `default:"18"  usage:"Tax percent on the discounted subtotal"`
	PackagingCost         string `default:"25"  usage:"Per-order packaging cost estimate"`
	GatewayFeePercent     string `default:"2"   usage:"Payment gateway fee percent of the order total"`
	DefaultCAC            string `default:"0"   usage:"Customer acquisition cost allocated per order"`
}

// Policy parses the configured amounts.
func (c PricingConfig) Policy() (pricing.Policy, error) {
	var p pricing.Policy
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"free shipping threshold", c.FreeShippingThreshold, &p.FreeShippingThreshold},
		{"flat shipping", c.FlatShipping, &p.FlatShipping},
		{"tax percent", c.TaxPercent, &p.TaxPercent},
		{"packaging cost", c.PackagingCost, &p.PackagingCost},
		{"gateway fee percent", c.GatewayFeePercent, &p.GatewayFeePercent},
		{"default CAC", c.DefaultCAC, &p.DefaultCAC},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return pricing.Policy{}, errors.Wrapf(err, "pricing: %s", f.name)
		}
		if v.IsNegative() {
			return pricing.Policy{}, errors.Errorf("pricing: %s must not be negative", f.name)
		}
		*f.dst = v
	}
	return p, nil
}

// InventoryConfig controls the stock ledger.
type InventoryConfig struct {
	AllowNegativeStock bool `default:"false" usage:"Permit stock adjustments below zero" flag:"allow-negative-stock"`
	MaxRetries         int  `default:"3"     usage:"Retries for serialization failures in ledger transactions"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags, YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	cfg, err := load(false)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadToolConfig loads configuration for command line tools that define
// their own flags. Only the database URL is required.
func LoadToolConfig() (*Config, error) {
	cfg, err := load(true)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errDatabaseURL
	}
	return cfg, nil
}

// LoadAuthConfig loads only the token settings, for tools that mint tokens
// without touching the database.
func LoadAuthConfig() (AuthConfig, error) {
	cfg, err := load(true)
	if err != nil {
		return AuthConfig{}, err
	}
	if cfg.Auth.JWTSecret == "" {
		return AuthConfig{}, errJWTSecret
	}
	return cfg.Auth, nil
}

var (
	errDatabaseURL = errors.New("database URL is required: set RIMAE_DATABASE_URL or DATABASE_URL")
	errJWTSecret   = errors.New("JWT secret is required: set RIMAE_AUTH_JWT_SECRET")
)

func load(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RIMAE",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/rimae/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errDatabaseURL
	}
	if c.Auth.JWTSecret == "" {
		return errJWTSecret
	}
	if c.Inventory.MaxRetries < 0 {
		return errors.New("inventory max retries must not be negative")
	}
	if _, err := c.Pricing.Policy(); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's RIMAE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
