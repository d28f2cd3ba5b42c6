package config_test

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/firasghr/ssrengine/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.PoolSize <= 0 {
		t.Errorf("PoolSize should be > 0, got %d", cfg.PoolSize)
	}
	if cfg.CacheSize <= 0 {
		t.Errorf("CacheSize should be > 0, got %d", cfg.CacheSize)
	}
	if cfg.QueueCapacity <= 0 {
		t.Errorf("QueueCapacity should be > 0, got %d", cfg.QueueCapacity)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig should validate cleanly, got: %v", err)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	raw := map[string]interface{}{
		"bundle_path":     "dist/ssr-bundle.js",
		"pool_size":       4,
		"queue_capacity":  256,
		"pin_threads":     true,
		"cache_size":      100,
		"cache_ttl":       int64(60 * time.Second),
		"request_timeout": int64(10 * time.Second),
		"render_function": "renderPage",
		"coalesce_misses": false,
	}
	f, err := os.CreateTemp(t.TempDir(), "config*.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewEncoder(f).Encode(raw); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := config.LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("got PoolSize=%d, want 4", cfg.PoolSize)
	}
	if cfg.BundlePath != "dist/ssr-bundle.js" {
		t.Errorf("got BundlePath=%q, want dist/ssr-bundle.js", cfg.BundlePath)
	}
	if !cfg.PinThreads {
		t.Error("expected PinThreads to be true")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bad*.json")
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not valid json}")
	f.Close()

	_, err = config.LoadConfig(f.Name())
	if err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

func TestValidate_ZeroPoolSizeRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PoolSize = 0
	if err := config.Validate(cfg); err == nil {
		t.Error("expected pool_size=0 to be rejected")
	}
}

func TestValidate_ZeroCacheSizeRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CacheSize = 0
	if err := config.Validate(cfg); err == nil {
		t.Error("expected cache_size=0 to be rejected")
	}
}

func TestValidate_ZeroQueueCapacityRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.QueueCapacity = 0
	if err := config.Validate(cfg); err == nil {
		t.Error("expected queue_capacity=0 to be rejected")
	}
}

func TestValidate_EmptyRenderFunctionRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RenderFunction = ""
	if err := config.Validate(cfg); err == nil {
		t.Error("expected an empty render_function to be rejected")
	}
}

func TestValidate_InvalidRenderFunctionRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RenderFunction = "foo; evil()"
	if err := config.Validate(cfg); err == nil {
		t.Error("expected a render_function with invalid characters to be rejected")
	}
}

func TestValidate_DottedRenderFunctionAccepted(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RenderFunction = "module.renderPage"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("expected a dotted render_function to be accepted, got: %v", err)
	}
}
