package dedup

import (
	"net/http"
	"strings"
	"time"

	"github.com/l1cache/dedup/l1"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultBaseURL     = "http://localhost:8080"
	DefaultMaxDistance = 0.5
	DefaultTTLSeconds  = 3600
	DefaultTopK        = 1
)

// Config holds the configuration for a dedup Wrapper.
type Config struct {
	// Namespace partitions all cache identifiers and searches. Required:
	// an unnamespaced cache would collide across unrelated call sites.
	Namespace string `json:"namespace" yaml:"namespace"`

	// BaseURL is the L1 cache service endpoint. Defaults to DefaultBaseURL.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// MaxDistance is the inclusive similarity threshold for approximate
	// hits: a candidate qualifies when score <= MaxDistance. Zero means
	// DefaultMaxDistance; a negative value disables the approximate path
	// entirely, leaving only exact-match lookups.
	MaxDistance float64 `json:"max_distance" yaml:"max_distance"`

	// TTLSeconds is the expiry requested for written records. Zero means
	// DefaultTTLSeconds; a negative value writes records without a TTL.
	TTLSeconds int `json:"ttl_seconds" yaml:"ttl_seconds"`

	// TopK bounds the candidate set requested from similarity search.
	// Only the best candidate is ever acted on. Defaults to DefaultTopK.
	TopK int `json:"top_k" yaml:"top_k"`

	// TimeoutSeconds bounds each request to the L1 service. Defaults to
	// l1.DefaultTimeout. Ignored when HTTPClient is set.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// LocalCacheSize enables an in-process LRU of exact hits when > 0.
	// The remote service stays the source of truth; the local tier only
	// skips repeat network round-trips within one process.
	LocalCacheSize int `json:"local_cache_size,omitempty" yaml:"local_cache_size,omitempty"`

	// LocalCacheTTLSeconds is the expiry of local-tier entries. Defaults
	// to 60 when LocalCacheSize is set.
	LocalCacheTTLSeconds int `json:"local_cache_ttl_seconds,omitempty" yaml:"local_cache_ttl_seconds,omitempty"`

	// KeyFunc optionally overrides cache query resolution. See ResolveQuery.
	KeyFunc KeyFunc `json:"-" yaml:"-"`

	// HTTPClient overrides the HTTP client used for L1 requests. Must be
	// safe for concurrent use. When nil a client with TimeoutSeconds is built.
	HTTPClient *http.Client `json:"-" yaml:"-"`
}

// normalize applies defaults in place.
func (cfg *Config) normalize() {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxDistance == 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	if cfg.TTLSeconds == 0 {
		cfg.TTLSeconds = DefaultTTLSeconds
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = int(l1.DefaultTimeout / time.Second)
	}
	if cfg.LocalCacheSize > 0 && cfg.LocalCacheTTLSeconds <= 0 {
		cfg.LocalCacheTTLSeconds = 60
	}
}

// timeout returns the configured request timeout as a duration.
func (cfg *Config) timeout() time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}
