package dedup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Valid(t *testing.T) {
	data := `{
		"namespace": "demo",
		"base_url": "http://cache:8080",
		"max_distance": 0.25,
		"ttl_seconds": 600,
		"top_k": 3
	}`
	path := writeTempFile(t, "config.json", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Namespace != "demo" {
		t.Errorf("expected namespace demo, got %q", cfg.Namespace)
	}
	if cfg.BaseURL != "http://cache:8080" {
		t.Errorf("expected base_url http://cache:8080, got %q", cfg.BaseURL)
	}
	if cfg.MaxDistance != 0.25 {
		t.Errorf("expected max_distance 0.25, got %v", cfg.MaxDistance)
	}
	if cfg.TopK != 3 {
		t.Errorf("expected top_k 3, got %d", cfg.TopK)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	data := `
namespace: prod
base_url: http://l1.internal:8080
max_distance: 0.4
ttl_seconds: -1
local_cache_size: 256
`
	path := writeTempFile(t, "config.yaml", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Namespace != "prod" {
		t.Errorf("expected namespace prod, got %q", cfg.Namespace)
	}
	if cfg.TTLSeconds != -1 {
		t.Errorf("expected ttl_seconds -1, got %d", cfg.TTLSeconds)
	}
	if cfg.LocalCacheSize != 256 {
		t.Errorf("expected local_cache_size 256, got %d", cfg.LocalCacheSize)
	}
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig("/tmp/does-not-exist-config-12345.json")
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, "bad.json", `{invalid`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadConfig_UnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "config.toml", "namespace = 'demo'")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"minimal valid", Config{Namespace: "demo"}, false},
		{"full valid", Config{Namespace: "demo", MaxDistance: 0.3, TTLSeconds: -1, TopK: 5, TimeoutSeconds: 10}, false},
		{"missing namespace", Config{}, true},
		{"whitespace namespace", Config{Namespace: "   "}, true},
		{"negative top_k", Config{Namespace: "demo", TopK: -1}, true},
		{"negative timeout", Config{Namespace: "demo", TimeoutSeconds: -2}, true},
		{"negative local cache size", Config{Namespace: "demo", LocalCacheSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
