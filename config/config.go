package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Ingest    IngestConfig
	Engine    EngineConfig
	Browser   BrowserConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Brands    BrandsConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting on the API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// StoreConfig selects and configures the product store.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver string // default: "memory"

	// DSN is the postgres connection string; required for the postgres driver.
	DSN string

	// MaxConns caps the postgres pool size. 0 keeps the pgx default.
	MaxConns int
}

// IngestConfig controls catalog ingestion runs.
type IngestConfig struct {
	// MaxPages caps catalog pagination for brands that do not set their own.
	MaxPages int // default: 10

	// FetchTimeout is the deadline for one catalog page fetch.
	FetchTimeout time.Duration // default: 30s

	// UserAgent overrides the engines' default user agent.
	UserAgent string

	// RunTTL is how long finished runs stay queryable on the API.
	RunTTL time.Duration // default: 1h
}

// EngineConfig controls the multi-engine racing dispatcher.
type EngineConfig struct {
	// EnableMultiEngine toggles the browser engine and the racing
	// dispatcher. Off, only the HTTP engine fetches.
	EnableMultiEngine bool // default: true

	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration // default: [0s, 2s]

	// DomainMemoryTTL is how long a winning engine is remembered per domain.
	DomainMemoryTTL time.Duration // default: 30m
}

// BrowserConfig controls the Rod browser instance and its page pool.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL used by both fetch engines.
	Proxy string

	// MinPages is the minimum number of pooled pages.
	MinPages int // default: 2

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 10

	// MaxTimeout caps the per-fetch timeout a request may ask for.
	MaxTimeout time.Duration // default: 120s

	// BlockedResourceTypes lists resource types to block on catalog pages.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds blocks requests to known ad and analytics domains.
	BlockAds bool // default: true

	// RemoveOverlays strips cookie banners and newsletter modals before
	// the page HTML is read.
	RemoveOverlays bool // default: true
}

// CacheConfig controls the fetch result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached pages.
	MaxEntries int // default: 1000

	// TTL is how long a cached page stays fresh. 0 disables the cache.
	TTL time.Duration // default: 15m
}

// WebhookConfig controls run completion notifications.
type WebhookConfig struct {
	// URL receives run.completed / run.failed events. Empty disables webhooks.
	URL string

	// Secret signs deliveries; receivers verify the signature header.
	Secret string
}

// BrandsConfig locates the brand adapter configuration.
type BrandsConfig struct {
	// File is the path to the brands YAML file.
	File string // default: "brands.yaml"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("STOCKROOM_HOST", "0.0.0.0"),
			Port: envIntOr("STOCKROOM_PORT", 8080),
			Mode: envOr("STOCKROOM_MODE", "release"),
		},
		Log: LogConfig{
			Level:  envOr("STOCKROOM_LOG_LEVEL", "info"),
			Format: envOr("STOCKROOM_LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("STOCKROOM_AUTH_ENABLED", true),
			APIKeys: envSliceOr("STOCKROOM_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("STOCKROOM_RATE_RPS", 5.0),
			Burst:             envIntOr("STOCKROOM_RATE_BURST", 10),
		},
		Store: StoreConfig{
			Driver:   envOr("STOCKROOM_STORE_DRIVER", "memory"),
			DSN:      os.Getenv("STOCKROOM_STORE_DSN"),
			MaxConns: envIntOr("STOCKROOM_STORE_MAX_CONNS", 0),
		},
		Ingest: IngestConfig{
			MaxPages:     envIntOr("STOCKROOM_INGEST_MAX_PAGES", 10),
			FetchTimeout: envDurationOr("STOCKROOM_FETCH_TIMEOUT", 30*time.Second),
			UserAgent:    os.Getenv("STOCKROOM_USER_AGENT"),
			RunTTL:       envDurationOr("STOCKROOM_RUN_TTL", time.Hour),
		},
		Engine: EngineConfig{
			EnableMultiEngine: envBoolOr("STOCKROOM_MULTI_ENGINE", true),
			EscalationDelays:  envDurationSliceOr("STOCKROOM_ESCALATION_DELAYS", []time.Duration{0, 2 * time.Second}),
			DomainMemoryTTL:   envDurationOr("STOCKROOM_DOMAIN_MEMORY_TTL", 30*time.Minute),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("STOCKROOM_HEADLESS", true),
			NoSandbox:  envBoolOr("STOCKROOM_NO_SANDBOX", false),
			BrowserBin: os.Getenv("STOCKROOM_BROWSER_BIN"),
			Proxy:      os.Getenv("STOCKROOM_PROXY"),
			MinPages:   envIntOr("STOCKROOM_POOL_MIN_PAGES", 2),
			MaxPages:   envIntOr("STOCKROOM_POOL_MAX_PAGES", 10),
			MaxTimeout: envDurationOr("STOCKROOM_BROWSER_MAX_TIMEOUT", 120*time.Second),
			BlockedResourceTypes: envSliceOr("STOCKROOM_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockAds:       envBoolOr("STOCKROOM_BLOCK_ADS", true),
			RemoveOverlays: envBoolOr("STOCKROOM_REMOVE_OVERLAYS", true),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("STOCKROOM_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("STOCKROOM_CACHE_TTL", 15*time.Minute),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("STOCKROOM_WEBHOOK_URL"),
			Secret: os.Getenv("STOCKROOM_WEBHOOK_SECRET"),
		},
		Brands: BrandsConfig{
			File: envOr("STOCKROOM_BRANDS_FILE", "brands.yaml"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
