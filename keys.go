package dedup

import (
	"crypto/sha1" //nolint:gosec // content addressing, not authentication
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Args carries the arguments of one wrapped call: an ordered positional
// list plus named values. The resolver derives the cache query from these;
// the wrapped operation receives them unchanged.
type Args struct {
	Positional []any
	Named      map[string]any
}

// PromptArgs builds the Args for the common single-prompt call shape.
func PromptArgs(prompt string) Args {
	return Args{Positional: []any{prompt}}
}

// KeyFunc derives a cache query from call arguments, overriding the default
// resolution. A failure (error, panic, or empty result) is swallowed and
// resolution falls through to the conventional rules.
type KeyFunc func(args Args) (string, error)

// Named arguments consulted for the cache query, in priority order.
var namedKeyCandidates = [...]string{"prompt", "query", "text"}

// ResolveQuery derives the cache query for a call. Resolution order: the
// caller-supplied key function, then named arguments ("prompt", "query",
// "text"), then the first positional string, then a canonical serialization
// of the whole argument set. It never fails; serializedArgs is non-empty
// only when the serialization fallback was used.
func ResolveQuery(args Args, keyFn KeyFunc) (query, serializedArgs string) {
	if keyFn != nil {
		if key, err := callKeyFunc(keyFn, args); err == nil {
			if trimmed := strings.TrimSpace(key); trimmed != "" {
				return trimmed, ""
			}
		}
	}

	for _, name := range namedKeyCandidates {
		if s, ok := args.Named[name].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed, ""
			}
		}
	}

	for _, v := range args.Positional {
		if s, ok := v.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed, ""
			}
		}
	}

	serialized := serializeArgs(args)
	return serialized, serialized
}

// callKeyFunc invokes a KeyFunc, converting panics into errors so a broken
// key function can never break the call.
func callKeyFunc(fn KeyFunc, args Args) (key string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("key function panic: %v", r)
		}
	}()
	return fn(args)
}

// serializeArgs renders the full argument set deterministically. JSON
// object keys are emitted sorted, so identical argument sets always
// serialize identically. Values JSON cannot represent are substituted with
// their fmt rendering.
func serializeArgs(args Args) string {
	payload := map[string]any{"args": args.Positional, "kwargs": args.Named}
	if b, err := json.Marshal(payload); err == nil {
		return string(b)
	}

	sanitized := map[string]any{
		"args":   sanitizeValues(args.Positional),
		"kwargs": sanitizeNamed(args.Named),
	}
	b, err := json.Marshal(sanitized)
	if err != nil {
		// Sanitized payloads contain only strings and marshalable values.
		return fmt.Sprintf("%+v", sanitized)
	}
	return string(b)
}

func sanitizeValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = sanitizeValue(v)
	}
	return out
}

func sanitizeNamed(named map[string]any) map[string]any {
	out := make(map[string]any, len(named))
	for k, v := range named {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}

// CacheID maps a (namespace, query) pair to its deterministic
// content-addressed identifier: "dedup:<ns>:<hex sha1 of query>".
// Identical inputs always produce the same identifier.
func CacheID(ns, query string) string {
	digest := sha1.Sum([]byte(query)) //nolint:gosec // content addressing, not authentication
	return "dedup:" + ns + ":" + hex.EncodeToString(digest[:])
}
