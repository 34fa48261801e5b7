// Command l1chat is an interactive chat CLI that wraps OpenAI chat
// completions with L1 cache deduplication. Repeating a prompt (or asking
// something semantically close to a cached one) answers from the cache
// without calling OpenAI.
//
// Configuration is environment-driven (optionally seeded from a local .env
// file): L1_BASE_URL, L1_NS, L1_MAX_DISTANCE, L1_TTL_SECONDS, L1_TOP_K,
// OPENAI_API_KEY, OPENAI_CHAT_MODEL, and optionally L1_CONFIG pointing at a
// JSON/YAML config file.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	dedup "github.com/l1cache/dedup"
	"github.com/l1cache/dedup/internal/logging"
	"github.com/l1cache/dedup/internal/version"
	"github.com/l1cache/dedup/llm"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("l1chat %s\n", version.String())
		return
	}

	// Keep human-readable logs on an interactive terminal unless the user
	// asked for something else.
	if os.Getenv("LOG_FORMAT") == "" {
		logging.Setup(os.Getenv("LOG_LEVEL"), "text")
	}

	loadEnvFile(".env")

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	wrapper, err := dedup.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dedup setup failed: %v\n", err)
		os.Exit(1)
	}

	chat, err := llm.NewChat(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_CHAT_MODEL"), os.Getenv("OPENAI_BASE_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "OpenAI setup failed: %v (set OPENAI_API_KEY)\n", err)
		os.Exit(1)
	}

	// The prompt is the first positional argument, so the resolver uses it
	// as the cache query; the history rides along for the real call.
	op := func(ctx context.Context, args dedup.Args) (string, error) {
		prompt, _ := args.Positional[0].(string)
		history, _ := args.Positional[1].([]llm.Message)
		messages := append(append([]llm.Message{}, history...), llm.Message{Role: llm.RoleUser, Content: prompt})
		return chat.Complete(ctx, messages)
	}

	fmt.Printf("l1chat — model %s, namespace %q. Type 'exit' to quit.\n", chat.Model(), cfg.Namespace)

	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	ctx := context.Background()

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println("\nbye!")
			return
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if low := strings.ToLower(prompt); low == "exit" || low == "quit" {
			fmt.Println("bye!")
			return
		}

		reply, decision, err := wrapper.Call(ctx, dedup.Args{Positional: []any{prompt, history}}, op)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[error calling OpenAI] %v\n", err)
			continue
		}

		switch decision.Outcome {
		case dedup.OutcomeMiss:
			// Fresh answer, nothing extra to report.
		case dedup.OutcomeApproxHit:
			fmt.Printf("[cache hit @ %.3f] item_id=%s\n", decision.Score, decision.ItemID)
		default:
			fmt.Printf("[cache hit @ %s] item_id=%s\n", decision.Outcome, decision.ItemID)
		}
		fmt.Println(reply)

		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: prompt},
			llm.Message{Role: llm.RoleAssistant, Content: reply},
		)
		// Keep the context window bounded.
		if len(history) > maxHistoryMessages {
			history = history[len(history)-maxHistoryMessages:]
		}
	}
}

// maxHistoryMessages bounds how much conversation rides along with each
// prompt. Ten exchanges is plenty for an interactive session.
const maxHistoryMessages = 20

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
			return cfg, fmt.Errorf("invalid L1_MAX_DISTANCE %q: %w", v, err)
		}
		cfg.MaxDistance = f
	}
	if v := os.Getenv("L1_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid L1_TTL_SECONDS %q: %w", v, err)
		}
		cfg.TTLSeconds = n
	}
	if v := os.Getenv("L1_TOP_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid L1_TOP_K %q: %w", v, err)
		}
		cfg.TopK = n
	}

	return cfg, dedup.ValidateConfig(cfg)
}

// loadEnvFile populates missing environment variables from a KEY=VALUE
// file. Variables the user already exported win; the file only fills gaps,
// so the CLI behaves the same whether or not the shell sourced it first.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return
	}

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		os.Setenv(key, value)
	}
}
