package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "MAX_ADJUSTMENT_SET_SIZE", "COMBINE_MODE", "RESULT_CACHE_TTL", "DEFAULT_EDGE_COEFFICIENT"} {
		t.Setenv(key, "")
	}

	if ServerAddr() != ":8080" {
		t.Fatalf("expected :8080, got %s", ServerAddr())
	}
	if MaxAdjustmentSetSize() != 8 {
		t.Fatalf("expected 8, got %d", MaxAdjustmentSetSize())
	}
	if CombineMode() != "sum" {
		t.Fatalf("expected sum, got %s", CombineMode())
	}
	if ResultCacheTTL() != 10*time.Minute {
		t.Fatalf("expected 10m, got %s", ResultCacheTTL())
	}
	if DefaultEdgeCoefficient() != 1 {
		t.Fatalf("expected 1, got %v", DefaultEdgeCoefficient())
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MAX_PATHS", "12")
	t.Setenv("RESULT_CACHE_TTL", "30s")
	t.Setenv("DEFAULT_EDGE_COEFFICIENT", "-0.5")
	t.Setenv("OTEL_SAMPLING_RATE", "3")
	t.Setenv("RESULT_CACHE_SIZE", "0")

	if ServerPort() != 9090 {
		t.Fatalf("expected 9090, got %d", ServerPort())
	}
	if MaxPaths() != 12 {
		t.Fatalf("expected 12, got %d", MaxPaths())
	}
	if ResultCacheTTL() != 30*time.Second {
		t.Fatalf("expected 30s, got %s", ResultCacheTTL())
	}
	if DefaultEdgeCoefficient() != -0.5 {
		t.Fatalf("expected -0.5, got %v", DefaultEdgeCoefficient())
	}
	if SamplingRate() != 1 {
		t.Fatalf("out of range sampling rate should fall back to 1, got %v", SamplingRate())
	}
	if ResultCacheSize() != 0 {
		t.Fatalf("expected cache disabled, got %d", ResultCacheSize())
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CAUSAL_ENV", envFile)
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	if err := Load(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if LogLevel() != "debug" {
		t.Fatalf("expected debug, got %s", LogLevel())
	}
}
