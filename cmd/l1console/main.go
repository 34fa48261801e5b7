// Command l1console serves a small web console over the L1 dedup cache:
// ask a prompt and watch it hit or miss, browse and inspect cached items,
// delete stale entries, and scrape Prometheus metrics.
//
// When OPENAI_API_KEY is set the ask endpoint answers with a real OpenAI
// chat completion; otherwise a local echo reply stands in, which is enough
// to demonstrate the dedup behavior end to end.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dedup "github.com/l1cache/dedup"
	"github.com/l1cache/dedup/internal/hitlog"
	"github.com/l1cache/dedup/internal/logging"
	"github.com/l1cache/dedup/internal/version"
	"github.com/l1cache/dedup/llm"
	"github.com/l1cache/dedup/web"
)

func main() {
	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	wrapper, err := dedup.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create dedup wrapper: %v", err)
	}

	op, opName := buildOperation()
	log.Printf("Ask operation: %s", opName)

	// Optional persistent decision log, fed from a wrapper hook.
	var decisions *hitlog.SQLWriter
	switch {
	case os.Getenv("HITLOG_POSTGRES_DSN") != "":
		decisions, err = hitlog.NewPostgresWriter(os.Getenv("HITLOG_POSTGRES_DSN"))
	case os.Getenv("HITLOG_DB") != "":
		decisions, err = hitlog.NewSQLiteWriter(os.Getenv("HITLOG_DB"))
	}
	if err != nil {
		log.Fatalf("Failed to open hit log: %v", err)
	}
	if decisions != nil {
		defer decisions.Close()
		wrapper.AddHook(func(ctx context.Context, d dedup.Decision) {
			entry := hitlog.Entry{
				TraceID:   logging.TraceIDFromContext(ctx),
				Namespace: d.Namespace,
				ItemID:    d.ItemID,
				Outcome:   string(d.Outcome),
				Score:     d.Score,
				Query:     d.Query,
				LatencyMS: d.Latency.Milliseconds(),
			}
			if err := decisions.Write(ctx, entry); err != nil {
				logging.FromContext(ctx).Warn("hit log write failed", "error", err.Error())
			}
		})
		log.Printf("Hit log enabled")
	}

	r := newRouter(wrapper, op, decisions)

	addr := ":8081"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("l1console %s listening on %s (namespace %q, cache %s)",
		version.Short(), addr, cfg.Namespace, wrapper.Client().BaseURL())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// buildConfig assembles the dedup config from an optional config file plus
// environment overrides.
func buildConfig() (dedup.Config, error) {
	var cfg dedup.Config
	if path := os.Getenv("L1_CONFIG"); path != "" {
		loaded, err := dedup.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	if v := os.Getenv("L1_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("L1_NS"); v != "" {
		cfg.Namespace = v
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "demo"
	}
	if v := os.Getenv("L1_MAX_DISTANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, err
		}
		cfg.MaxDistance = f
	}
	if v := os.Getenv("L1_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, err
		}
		cfg.TTLSeconds = n
	}
	if v := os.Getenv("L1_TOP_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, err
		}
		cfg.TopK = n
	}

	return cfg, dedup.ValidateConfig(cfg)
}

// buildOperation returns the expensive operation the console wraps: OpenAI
// chat when configured, or a local echo stand-in.
func buildOperation() (dedup.Operation, string) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		chat, err := llm.NewChat(key, os.Getenv("OPENAI_CHAT_MODEL"), os.Getenv("OPENAI_BASE_URL"))
		if err == nil {
			return func(ctx context.Context, args dedup.Args) (string, error) {
				prompt, _ := args.Positional[0].(string)
				return chat.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
			}, "openai/" + chat.Model()
		}
		log.Printf("OpenAI setup failed, falling back to local echo: %v", err)
	}
	return func(_ context.Context, args dedup.Args) (string, error) {
		prompt, _ := args.Positional[0].(string)
		return "[fresh reply] " + reverse(prompt), nil
	}, "local echo"
}

// newRouter builds the HTTP router.
func newRouter(wrapper *dedup.Wrapper, op dedup.Operation, decisions *hitlog.SQLWriter) http.Handler {
	ns := wrapper.Config().Namespace
	client := wrapper.Client()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		page, err := web.Assets.ReadFile("index.html")
		if err != nil {
			http.Error(w, "console page unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/ask", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(body.Prompt) == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		response, decision, err := wrapper.Call(req.Context(), dedup.PromptArgs(body.Prompt), op)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		writeJSON(w, map[string]any{
			"response":   response,
			"outcome":    decision.Outcome,
			"item_id":    decision.ItemID,
			"score":      decision.Score,
			"latency_ms": decision.Latency.Milliseconds(),
		})
	})

	r.Get("/api/items", func(w http.ResponseWriter, req *http.Request) {
		ids, err := client.List(req.Context(), ns)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, map[string]any{"item_ids": ids})
	})

	r.Get("/api/item", func(w http.ResponseWriter, req *http.Request) {
		itemID := strings.TrimSpace(req.URL.Query().Get("item_id"))
		if itemID == "" {
			writeError(w, http.StatusBadRequest, "item_id is required")
			return
		}
		rec, err := client.Get(req.Context(), ns, itemID)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, rec)
	})

	r.Delete("/api/item", func(w http.ResponseWriter, req *http.Request) {
		itemID := strings.TrimSpace(req.URL.Query().Get("item_id"))
		if itemID == "" {
			writeError(w, http.StatusBadRequest, "item_id is required")
			return
		}
		deleted, err := client.Delete(req.Context(), ns, itemID)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, map[string]any{"ok": true, "item_id": itemID})
	})

	r.Get("/api/decisions", func(w http.ResponseWriter, req *http.Request) {
		if decisions == nil {
			writeJSON(w, map[string]any{"decisions": []hitlog.Entry{}})
			return
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		entries, err := decisions.Recent(req.Context(), ns, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"decisions": entries})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
