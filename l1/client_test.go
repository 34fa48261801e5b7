package l1

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cache.get" {
			t.Errorf("path = %q, want /cache.get", r.URL.Path)
		}
		if got := r.URL.Query().Get("ns"); got != "demo" {
			t.Errorf("ns = %q, want demo", got)
		}
		switch r.URL.Query().Get("item_id") {
		case "dedup:demo:hit":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"item_id": "dedup:demo:hit",
				"text":    "the query",
				"meta":    map[string]any{"response": "the answer", "cache_id": "dedup:demo:hit"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)

	t.Run("found", func(t *testing.T) {
		rec, err := c.Get(context.Background(), "demo", "dedup:demo:hit")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if rec == nil {
			t.Fatal("expected a record")
		}
		resp, ok := rec.Response()
		if !ok || resp != "the answer" {
			t.Errorf("Response() = (%q, %v), want (the answer, true)", resp, ok)
		}
	})

	t.Run("not found is not an error", func(t *testing.T) {
		rec, err := c.Get(context.Background(), "demo", "dedup:demo:absent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if rec != nil {
			t.Errorf("expected nil record, got %+v", rec)
		}
	})
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.vector" {
			t.Errorf("path = %q, want /search.vector", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding search body: %v", err)
		}
		if body["ns"] != "demo" || body["query"] != "similar?" || body["top_k"] != float64(3) {
			t.Errorf("unexpected search body: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []SearchResult{
				{ItemID: "dedup:demo:a", Score: 0.12},
				{ItemID: "dedup:demo:b", Score: 0.48},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	results, err := c.Search(context.Background(), "demo", "similar?", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ItemID != "dedup:demo:a" || results[0].Score != 0.12 {
		t.Errorf("best result = %+v", results[0])
	}
}

func TestClient_Search_MissingScoreReadsAsInfinity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"item_id":"dedup:demo:a"},{"item_id":"dedup:demo:b","score":0.2}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	results, err := c.Search(context.Background(), "demo", "q", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !math.IsInf(results[0].Score, 1) {
		t.Errorf("score-less result scored %v, want +Inf", results[0].Score)
	}
	if results[1].Score != 0.2 {
		t.Errorf("scored result = %v, want 0.2", results[1].Score)
	}
}

func TestClient_Search_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []SearchResult{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	results, err := c.Search(context.Background(), "demo", "anything", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestClient_Write(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cache.write" {
			t.Errorf("path = %q, want /cache.write", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decoding write body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(WriteResult{ItemID: "dedup:demo:x", Vectorized: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	ttl := 300
	res, err := c.Write(context.Background(), "demo", WriteRequest{
		ItemID:     "dedup:demo:x",
		Text:       "the query",
		Meta:       map[string]any{"response": "the answer"},
		TTLSeconds: &ttl,
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !res.Vectorized || res.ItemID != "dedup:demo:x" {
		t.Errorf("result = %+v", res)
	}
	if captured["ttl_s"] != float64(300) {
		t.Errorf("ttl_s = %v, want 300", captured["ttl_s"])
	}
	if captured["ns"] != "demo" {
		t.Errorf("ns = %v, want demo", captured["ns"])
	}
}

func TestClient_Write_OmitsTTLWhenUnset(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(WriteResult{ItemID: "x"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if _, err := c.Write(context.Background(), "demo", WriteRequest{ItemID: "x", Text: "q"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, present := captured["ttl_s"]; present {
		t.Errorf("ttl_s present in payload: %v", captured["ttl_s"])
	}
}

func TestClient_Delete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["item_id"] == "dedup:demo:gone" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)

	deleted, err := c.Delete(context.Background(), "demo", "dedup:demo:there")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Error("expected deleted = true")
	}

	deleted, err = c.Delete(context.Background(), "demo", "dedup:demo:gone")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted {
		t.Error("expected deleted = false for missing item")
	}
}

func TestClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cache.list" {
			t.Errorf("path = %q, want /cache.list", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"item_ids": []string{"dedup:demo:a", "dedup:demo:b"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	ids, err := c.List(context.Background(), "demo")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("got %d ids, want 2", len(ids))
	}
}

func TestClient_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)

	if _, err := c.Get(context.Background(), "demo", "x"); err == nil {
		t.Error("Get: expected error on 500")
	}
	if _, err := c.Search(context.Background(), "demo", "q", 1); err == nil {
		t.Error("Search: expected error on 500")
	}
	if _, err := c.Write(context.Background(), "demo", WriteRequest{ItemID: "x"}); err == nil {
		t.Error("Write: expected error on 500")
	}
	if _, err := c.List(context.Background(), "demo"); err == nil {
		t.Error("List: expected error on 500")
	}
}

func TestRecord_Response(t *testing.T) {
	tests := []struct {
		name   string
		rec    *Record
		want   string
		wantOK bool
	}{
		{"nil record", nil, "", false},
		{"no meta", &Record{ItemID: "x"}, "", false},
		{"response not a string", &Record{Meta: map[string]any{"response": 7}}, "", false},
		{"string response", &Record{Meta: map[string]any{"response": "hi"}}, "hi", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rec.Response()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Response() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Get(ctx, "demo", "x"); err == nil {
		t.Error("expected error from cancelled context")
	}
}
