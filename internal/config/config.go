package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string `validate:"oneof=debug info warn error"`
	// LogFormat is "json" or "console".
	LogFormat string `validate:"oneof=json console"`

	Gemini   GeminiConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	Mock     MockConfig
}

type GeminiConfig struct {
	APIKey  string
	Model   string        `validate:"required"`
	Retries int           `validate:"gte=1,lte=10"`
	Timeout time.Duration `validate:"gt=0"`
	// RPS of 0 disables client-side rate limiting.
	RPS     float64       `validate:"gte=0"`
	Burst   int           `validate:"gte=0"`
}

type PipelineConfig struct {
	TileThreshold    int     `validate:"gt=0"`
	TileRows         int     `validate:"gte=1,lte=8"`
	TileCols         int     `validate:"gte=1,lte=8"`
	TileOverlap      float64 `validate:"gte=0,lt=1"`
	IoUThreshold     float64 `validate:"gt=0,lte=1"`
	MaxConcurrency   int     `validate:"gte=1,lte=64"`
	Refine           bool
	PreserveGeometry bool
	ClassAwareNMS    bool
	// Temperature of 0 keeps the per-stage defaults.
	Temperature float64 `validate:"gte=0,lte=2"`
}

type CacheConfig struct {
	Size int           `validate:"gte=0"`
	TTL  time.Duration `validate:"gte=0"`
}

type MockConfig struct {
	Enabled  bool
	DataPath string `validate:"required_if=Enabled true"`
	// Kind answers classification calls while mocking.
	Kind string
}

var validate = validator.New()

// Load reads .env (if present) and the environment. Invalid numbers fall back
// to defaults; out-of-range values are rejected.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.Mock.Enabled && c.Gemini.APIKey == "" {
		return fmt.Errorf("invalid configuration: GEMINI_API_KEY is required unless MOCK_MODE is set")
	}
	return nil
}

func fromEnv() *Config {
	port := firstNonEmpty(env("PORT"), "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return &Config{
		Port:      port,
		LogLevel:  strings.ToLower(firstNonEmpty(env("LOG_LEVEL"), "info")),
		LogFormat: strings.ToLower(firstNonEmpty(env("LOG_FORMAT"), "json")),
		Gemini: GeminiConfig{
			APIKey:  firstNonEmpty(env("GEMINI_API_KEY"), env("GOOGLE_API_KEY")),
			Model:   firstNonEmpty(env("BLUEPRINT_MODEL"), env("GEMINI_MODEL"), "gemini-2.5-flash"),
			Retries: envInt("LLM_RETRIES", 3),
			Timeout: envDuration("LLM_TIMEOUT", 90*time.Second),
			RPS:     envFloat(firstKey("LLM_RPS", "GEMINI_RPS"), 0),
			Burst:   envInt(firstKey("LLM_BURST", "GEMINI_BURST"), 0),
		},
		Pipeline: PipelineConfig{
			TileThreshold:    envInt("BLUEPRINT_TILE_THRESHOLD", 500000),
			TileRows:         envInt("BLUEPRINT_TILE_ROWS", 2),
			TileCols:         envInt("BLUEPRINT_TILE_COLS", 2),
			TileOverlap:      envFloat("BLUEPRINT_TILE_OVERLAP", 0.10),
			IoUThreshold:     envFloat("BLUEPRINT_IOU_THRESHOLD", 0.5),
			MaxConcurrency:   envInt("BLUEPRINT_MAX_CONCURRENCY", 4),
			Refine:           envBool("BLUEPRINT_REFINE", true),
			PreserveGeometry: envBool("BLUEPRINT_PRESERVE_GEOMETRY", false),
			ClassAwareNMS:    envBool("BLUEPRINT_CLASS_AWARE_NMS", false),
			Temperature:      envFloat("BLUEPRINT_TEMPERATURE", 0),
		},
		Cache: CacheConfig{
			Size: envInt("BLUEPRINT_CACHE_SIZE", 256),
			TTL:  envDuration("BLUEPRINT_CACHE_TTL", 24*time.Hour),
		},
		Mock: MockConfig{
			Enabled:  envBool("MOCK_MODE", false),
			DataPath: env("MOCK_DATA_PATH"),
			Kind:     firstNonEmpty(env("MOCK_BLUEPRINT_TYPE"), "HVAC"),
		},
	}
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envInt(key string, def int) int {
	v, err := strconv.Atoi(env(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(env(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(env(key))
	if err != nil {
		return def
	}
	return v
}

// envDuration accepts Go durations ("90s") or a bare number of seconds.
func envDuration(key string, def time.Duration) time.Duration {
	raw := env(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

// firstKey returns the first key that is set, so LLM_* overrides GEMINI_*.
func firstKey(keys ...string) string {
	for _, k := range keys {
		if env(k) != "" {
			return k
		}
	}
	return keys[len(keys)-1]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
