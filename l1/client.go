// Package l1 implements the HTTP client for the L1 cache/search service.
// The service owns storage, vectorization, and similarity scoring; this
// package only speaks its wire protocol: cache.get, search.vector,
// cache.write, cache.delete, and cache.list.
package l1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds every request to the L1 service. A slow or hung
// cache must never stall the caller longer than this.
const DefaultTimeout = 30 * time.Second

// Client is a thread-safe client for one L1 service endpoint. It may be
// shared freely across goroutines; it holds no per-call state.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL. Pass a nil
// httpClient to use a default client with DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// BaseURL returns the configured service endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches a record by its exact item ID. A 404 from the service is not
// an error: it returns (nil, nil) so callers can distinguish "not cached"
// from a broken cache.
func (c *Client) Get(ctx context.Context, ns, itemID string) (*Record, error) {
	q := url.Values{}
	q.Set("ns", ns)
	q.Set("item_id", itemID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cache.get?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building cache.get request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cache.get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := checkStatus("cache.get", resp); err != nil {
		return nil, err
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding cache.get response: %w", err)
	}
	return &rec, nil
}

// Search runs a vector similarity search for query within ns, returning at
// most topK candidates in ascending score (distance) order. An empty result
// list is a valid response, not an error.
func (c *Client) Search(ctx context.Context, ns, query string, topK int) ([]SearchResult, error) {
	body := map[string]any{"ns": ns, "query": query, "top_k": topK}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.postJSON(ctx, "/search.vector", body, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// Write stores a record in ns. The service decides how to convert the
// optional TTL into expiry and whether the text can be vectorized.
func (c *Client) Write(ctx context.Context, ns string, wr WriteRequest) (*WriteResult, error) {
	body := map[string]any{
		"ns":      ns,
		"item_id": wr.ItemID,
		"text":    wr.Text,
		"meta":    wr.Meta,
	}
	if wr.TTLSeconds != nil {
		body["ttl_s"] = *wr.TTLSeconds
	}

	var result WriteResult
	if err := c.postJSON(ctx, "/cache.write", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete removes a record by item ID. It returns false (without error) when
// the record does not exist.
func (c *Client) Delete(ctx context.Context, ns, itemID string) (bool, error) {
	body, err := json.Marshal(map[string]string{"ns": ns, "item_id": itemID})
	if err != nil {
		return false, fmt.Errorf("encoding cache.delete request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/cache.delete", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("building cache.delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("cache.delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := checkStatus("cache.delete", resp); err != nil {
		return false, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return true, nil
}

// List returns the item IDs currently stored in ns. The service may cap or
// sample the listing; callers must not assume it is exhaustive.
func (c *Client) List(ctx context.Context, ns string) ([]string, error) {
	q := url.Values{}
	q.Set("ns", ns)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cache.list?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building cache.list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cache.list: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("cache.list", resp); err != nil {
		return nil, err
	}

	var payload struct {
		ItemIDs []string `json:"item_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding cache.list response: %w", err)
	}
	return payload.ItemIDs, nil
}

// postJSON sends body to path and decodes the 2xx response into out.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(path, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// checkStatus returns an error for any non-2xx response, including a
// truncated body excerpt for diagnostics.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, string(excerpt))
}
