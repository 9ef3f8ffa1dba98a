package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CAUSAL_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CAUSAL_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process environment still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intEnv("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL is optional. Without it graphs live in memory only.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func MigrationsPath() string {
	return stringEnv("MIGRATIONS_PATH", "migrations")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intEnv("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	return stringEnv("LOG_LEVEL", "info")
}

// MaxAdjustmentSetSize bounds the size of adjustment sets tried by the
// backdoor search.
func MaxAdjustmentSetSize() int {
	return intEnv("MAX_ADJUSTMENT_SET_SIZE", 8)
}

// MaxSearchIterations bounds the number of candidate sets tested per search.
func MaxSearchIterations() int {
	return intEnv("MAX_SEARCH_ITERATIONS", 100_000)
}

func MaxPaths() int {
	return intEnv("MAX_PATHS", 1_000)
}

func MaxGraphVariables() int {
	return intEnv("MAX_GRAPH_VARIABLES", 10_000)
}

func MaxGraphEdges() int {
	return intEnv("MAX_GRAPH_EDGES", 100_000)
}

// DefaultEdgeCoefficient is the linear coefficient used for edges without
// their own equation. Defaults to 1.
func DefaultEdgeCoefficient() float64 {
	v, err := strconv.ParseFloat(os.Getenv("DEFAULT_EDGE_COEFFICIENT"), 64)
	if err != nil {
		return 1
	}
	return v
}

// CombineMode returns how parent contributions are combined: sum or mean.
func CombineMode() string {
	return stringEnv("COMBINE_MODE", "sum")
}

// ScenarioParallelism bounds concurrent scenario evaluation per request.
func ScenarioParallelism() int {
	return intEnv("SCENARIO_PARALLELISM", 4)
}

// ResultCacheSize is the number of cached effect estimates. Zero disables
// the cache.
func ResultCacheSize() int {
	n, err := strconv.Atoi(os.Getenv("RESULT_CACHE_SIZE"))
	if err != nil || n < 0 {
		return 1024
	}
	return n
}

func ResultCacheTTL() time.Duration {
	return durationEnv("RESULT_CACHE_TTL", 10*time.Minute)
}

func CacheJanitorInterval() time.Duration {
	return durationEnv("CACHE_JANITOR_INTERVAL", time.Minute)
}

// OTLPEndpoint is the collector address for traces. Tracing is disabled
// when it is empty.
func OTLPEndpoint() string {
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// SamplingRate is the fraction of traces sampled. Defaults to 1.
func SamplingRate() float64 {
	r, err := strconv.ParseFloat(os.Getenv("OTEL_SAMPLING_RATE"), 64)
	if err != nil || r < 0 || r > 1 {
		return 1
	}
	return r
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
