// Package dedup wraps expensive text-generation calls with a two-tier
// cache lookup against the L1 cache/search service: an exact-match lookup
// by content hash, then an approximate lookup by vector similarity.
//
// The Wrapper type is the main entry point: create one with New, then
// either decorate an operation with Wrap / WrapPrompt, or drive a single
// call with Call when the per-call Decision is needed.
//
// The cache layer is strictly fail-open: every lookup or write failure is
// logged and treated as a miss, so a broken cache service never blocks or
// corrupts the wrapped operation. The only errors a caller ever sees are
// its own operation's errors and the missing-namespace configuration error
// at construction time.
package dedup

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/l1cache/dedup/internal/cache"
	"github.com/l1cache/dedup/internal/logging"
	"github.com/l1cache/dedup/internal/metrics"
	"github.com/l1cache/dedup/l1"
)

// Operation is a wrapped expensive call. It receives the original call
// arguments and returns the generated text.
type Operation func(ctx context.Context, args Args) (string, error)

// Outcome classifies how a call was served.
type Outcome string

// Outcome values, from cheapest to most expensive.
const (
	OutcomeLocalHit  Outcome = "local_hit"
	OutcomeExactHit  Outcome = "exact_hit"
	OutcomeApproxHit Outcome = "approx_hit"
	OutcomeMiss      Outcome = "miss"
)

// Decision describes how one call through the wrapper was resolved.
type Decision struct {
	Namespace string
	ItemID    string
	Query     string
	Outcome   Outcome
	// Score is the similarity distance of an approximate hit; -1 for every
	// other outcome.
	Score   float64
	Latency time.Duration
}

// HookFunc is called asynchronously after each completed call with the
// dedup decision that resolved it.
type HookFunc func(ctx context.Context, d Decision)

// ErrMissingNamespace is returned by New when no namespace is configured.
// This is the single fail-fast error: everything else in this package is
// fail-open.
var ErrMissingNamespace = errors.New("dedup: namespace is required")

// Wrapper injects cache-dedup behavior around operations. It is safe for
// concurrent use; concurrent identical calls are not coalesced, so two
// simultaneous misses may both invoke the operation and both write
// (idempotent per identifier, last write wins).
type Wrapper struct {
	cfg    Config
	client *l1.Client
	local  *cache.Memory

	mu    sync.RWMutex
	hooks []HookFunc
}

// New creates a Wrapper from cfg, applying defaults for zero-valued
// fields. It fails only when the namespace is empty.
func New(cfg Config) (*Wrapper, error) {
	if strings.TrimSpace(cfg.Namespace) == "" {
		return nil, ErrMissingNamespace
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout()}
	}

	w := &Wrapper{
		cfg:    cfg,
		client: l1.NewClient(cfg.BaseURL, httpClient),
	}
	if cfg.LocalCacheSize > 0 {
		w.local = cache.NewMemory(cfg.LocalCacheSize, time.Duration(cfg.LocalCacheTTLSeconds)*time.Second)
	}
	return w, nil
}

// Config returns a copy of the wrapper's normalized configuration.
func (w *Wrapper) Config() Config {
	return w.cfg
}

// Client returns the underlying L1 service client, shared and safe for
// concurrent use. Front ends use it for browse/inspect/delete operations
// outside the dedup path.
func (w *Wrapper) Client() *l1.Client {
	return w.client
}

// AddHook registers a HookFunc invoked asynchronously with the Decision of
// each completed call. Multiple hooks may be registered; all are invoked.
func (w *Wrapper) AddHook(fn HookFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, fn)
}

// Wrap returns an operation with the identical calling contract that
// consults the cache before invoking op and writes through after a miss.
func (w *Wrapper) Wrap(op Operation) Operation {
	return func(ctx context.Context, args Args) (string, error) {
		result, _, err := w.Call(ctx, args, op)
		return result, err
	}
}

// WrapPrompt is a convenience for the common single-prompt call shape.
func (w *Wrapper) WrapPrompt(fn func(ctx context.Context, prompt string) (string, error)) func(ctx context.Context, prompt string) (string, error) {
	wrapped := w.Wrap(func(ctx context.Context, args Args) (string, error) {
		prompt, _ := args.Positional[0].(string)
		return fn(ctx, prompt)
	})
	return func(ctx context.Context, prompt string) (string, error) {
		return wrapped(ctx, PromptArgs(prompt))
	}
}

// Call performs one deduplicated call: resolve the cache query, look up
// exact then approximate, and on a miss invoke op and write the result
// through. Operation errors propagate unchanged and suppress the write.
// The returned Decision reports how the call was served.
func (w *Wrapper) Call(ctx context.Context, args Args, op Operation) (string, Decision, error) {
	start := time.Now()
	query, serializedArgs := ResolveQuery(args, w.cfg.KeyFunc)
	itemID := CacheID(w.cfg.Namespace, query)

	d := Decision{
		Namespace: w.cfg.Namespace,
		ItemID:    itemID,
		Query:     query,
		Score:     -1,
	}

	if resp, outcome, score, ok := w.lookup(ctx, query, itemID); ok {
		d.Outcome = outcome
		d.Score = score
		d.Latency = time.Since(start)
		w.finish(ctx, d)
		return resp, d, nil
	}

	metrics.OperationCalls.WithLabelValues(w.cfg.Namespace).Inc()
	result, err := op(ctx, args)
	if err != nil {
		// The result was never produced; nothing to write through.
		d.Outcome = OutcomeMiss
		d.Latency = time.Since(start)
		return result, d, err
	}

	w.persist(ctx, query, itemID, result, serializedArgs)

	d.Outcome = OutcomeMiss
	d.Latency = time.Since(start)
	w.finish(ctx, d)
	return result, d, nil
}

// lookup runs the exact-then-approximate protocol. Any remote failure is
// recovered here and reported as a miss; an error on the exact path aborts
// the whole lookup rather than falling through to a search against a
// service that is already misbehaving.
func (w *Wrapper) lookup(ctx context.Context, query, itemID string) (string, Outcome, float64, bool) {
	ns := w.cfg.Namespace
	log := logging.FromContext(ctx)
	lookupStart := time.Now()
	defer func() {
		metrics.LookupDuration.WithLabelValues(ns).Observe(time.Since(lookupStart).Seconds())
	}()

	if w.local != nil {
		if resp, ok := w.local.Get(itemID); ok {
			log.Debug("cache hit", "tier", "local", "item_id", itemID)
			return resp, OutcomeLocalHit, -1, true
		}
	}

	rec, err := w.client.Get(ctx, ns, itemID)
	if err != nil {
		metrics.LookupErrors.WithLabelValues(ns, "exact").Inc()
		log.Warn("cache lookup failed", "path", "exact", "item_id", itemID, "error", err.Error())
		return "", "", -1, false
	}
	if resp, ok := rec.Response(); ok {
		w.remember(itemID, resp)
		log.Info("cache hit", "tier", "exact", "item_id", itemID)
		return resp, OutcomeExactHit, -1, true
	}

	if w.cfg.MaxDistance < 0 {
		return "", "", -1, false
	}

	results, err := w.client.Search(ctx, ns, query, w.cfg.TopK)
	if err != nil {
		metrics.LookupErrors.WithLabelValues(ns, "search").Inc()
		log.Warn("cache lookup failed", "path", "search", "item_id", itemID, "error", err.Error())
		return "", "", -1, false
	}
	if len(results) == 0 {
		log.Debug("no cached results", "item_id", itemID)
		return "", "", -1, false
	}

	// Results arrive in ascending distance order; only the best candidate
	// is ever considered.
	best := results[0]
	log.Debug("search candidate", "item_id", best.ItemID, "score", best.Score)
	if best.Score > w.cfg.MaxDistance {
		return "", "", -1, false
	}

	candidate, err := w.client.Get(ctx, ns, best.ItemID)
	if err != nil {
		metrics.LookupErrors.WithLabelValues(ns, "fetch").Inc()
		log.Warn("cache lookup failed", "path", "fetch", "item_id", best.ItemID, "error", err.Error())
		return "", "", -1, false
	}
	if resp, ok := candidate.Response(); ok {
		log.Info("cache hit", "tier", "approx", "item_id", best.ItemID, "score", best.Score)
		return resp, OutcomeApproxHit, best.Score, true
	}
	return "", "", -1, false
}

// persist writes the freshly computed result through to the L1 service,
// best-effort. The caller already holds the result, so failures are logged
// and dropped.
func (w *Wrapper) persist(ctx context.Context, query, itemID, result, serializedArgs string) {
	ns := w.cfg.Namespace
	log := logging.FromContext(ctx)

	meta := map[string]any{
		"response": result,
		"query":    query,
		"cache_id": itemID,
	}
	if serializedArgs != "" && serializedArgs != query {
		meta["serialized_args"] = serializedArgs
	}

	wr := l1.WriteRequest{ItemID: itemID, Text: query, Meta: meta}
	if w.cfg.TTLSeconds > 0 {
		ttl := w.cfg.TTLSeconds
		wr.TTLSeconds = &ttl
	}

	res, err := w.client.Write(ctx, ns, wr)
	if err != nil {
		metrics.WritesTotal.WithLabelValues(ns, "error").Inc()
		log.Warn("cache write failed", "item_id", itemID, "error", err.Error())
		return
	}
	metrics.WritesTotal.WithLabelValues(ns, "ok").Inc()
	w.remember(itemID, result)
	log.Debug("cached response",
		"item_id", res.ItemID,
		"vectorized", res.Vectorized,
		"vector_error", res.VectorError,
	)
}

// remember stores a response in the local hot cache when enabled.
func (w *Wrapper) remember(itemID, response string) {
	if w.local != nil {
		w.local.Set(itemID, response)
	}
}

// finish emits metrics and fans the decision out to hooks asynchronously.
// Hooks outlive the call, so they get a context that keeps the caller's
// values (trace ID) but not its cancellation: an HTTP handler returning must
// not cancel a hook's database write mid-flight.
func (w *Wrapper) finish(ctx context.Context, d Decision) {
	metrics.LookupsTotal.WithLabelValues(d.Namespace, string(d.Outcome)).Inc()

	w.mu.RLock()
	hooks := make([]HookFunc, len(w.hooks))
	copy(hooks, w.hooks)
	w.mu.RUnlock()

	hookCtx := context.WithoutCancel(ctx)
	for _, h := range hooks {
		fn := h
		go fn(hookCtx, d)
	}
}
