package l1

import (
	"encoding/json"
	"math"
)

// Record is a cached item as returned by the L1 service. Meta is an open
// schema owned by whoever wrote the record; the dedup layer only relies on
// a string "response" field being present.
type Record struct {
	NS         string         `json:"ns,omitempty"`
	ItemID     string         `json:"item_id"`
	Text       string         `json:"text,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	TTLSeconds *int           `json:"ttl_s,omitempty"`
}

// Response extracts the cached response string from the record's meta.
// It returns false when meta is missing or "response" is not a string.
func (r *Record) Response() (string, bool) {
	if r == nil || r.Meta == nil {
		return "", false
	}
	resp, ok := r.Meta["response"].(string)
	return resp, ok
}

// SearchResult is one candidate from a vector similarity search. Score is a
// distance: lower means more similar. The service returns results in
// ascending score order.
type SearchResult struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// UnmarshalJSON treats a missing score as +Inf. A candidate the service did
// not score must read as infinitely distant, never as a perfect match.
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		ItemID string   `json:"item_id"`
		Score  *float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.ItemID = wire.ItemID
	if wire.Score != nil {
		r.Score = *wire.Score
	} else {
		r.Score = math.Inf(1)
	}
	return nil
}

// WriteRequest is the payload for storing a record. TTLSeconds is optional;
// when nil the service keeps the record until it decides otherwise.
type WriteRequest struct {
	ItemID     string         `json:"item_id"`
	Text       string         `json:"text"`
	Meta       map[string]any `json:"meta,omitempty"`
	TTLSeconds *int           `json:"ttl_s,omitempty"`
}

// WriteResult reports what the service did with a write. VectorError is set
// when the record was stored but could not be vectorized for similarity
// search; such records still serve exact-match lookups.
type WriteResult struct {
	ItemID      string `json:"item_id"`
	Vectorized  bool   `json:"vectorized"`
	VectorError string `json:"vector_error,omitempty"`
}
