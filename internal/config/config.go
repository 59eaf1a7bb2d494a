// Package config loads gateway settings with precedence CLI flags > env
// vars > YAML config file > hardcoded defaults, using the teacher's
// getEnvOrDefault/getEnvAsInt/getEnvFloat helper family.
package config

import (
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds every recognized option from spec.md §6's enumerated table.
type Config struct {
	Port int `yaml:"port"`

	OpenRouterAPIKey  string `yaml:"-"`
	OpenCodeZenAPIKey string `yaml:"-"`

	ScannerTTL time.Duration `yaml:"scanner_ttl"`

	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`

	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitResetDelay       time.Duration `yaml:"circuit_reset_delay"`

	SpendingDailyCap      float64 `yaml:"spending_daily_cap"`
	SpendingMonthlyCap    float64 `yaml:"spending_monthly_cap"`
	SpendingWarnAtPercent float64 `yaml:"spending_warn_at_percent"`

	TelemetryEndpoint      string        `yaml:"telemetry_endpoint"`
	TelemetryBatchSize     int           `yaml:"telemetry_batch_size"`
	TelemetryFlushInterval time.Duration `yaml:"telemetry_flush_interval"`

	InspectorMaxTransactions int `yaml:"inspector_max_transactions"`

	FanoutMaxModels int `yaml:"fanout_max_models"`

	// OpenCodeZenAllowList is the fixed beta-free model id set (spec.md
	// §4.3): treated as a static, config-loaded constant set.
	OpenCodeZenAllowList []string `yaml:"opencode_zen_allow_list"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load builds a Config from defaults, an optional YAML file at path (if it
// exists), then environment variables, in that increasing-precedence order.
// CLI flags are applied afterward by the caller (cmd/gateway), since urfave/
// cli owns flag parsing and must win last.
func Load(path string) *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := defaultConfig()

	if path != "" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			if err := LoadFile(f, cfg); err != nil {
				log.Printf("warning: failed to parse config file %s: %v", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Port: 11434,

		ScannerTTL: 300 * time.Second,

		RetryMaxAttempts: 3,
		RetryBaseDelay:   1000 * time.Millisecond,
		RetryMaxDelay:    30 * time.Second,

		CircuitFailureThreshold: 5,
		CircuitResetDelay:       60 * time.Second,

		SpendingDailyCap:      5.00,
		SpendingMonthlyCap:    50.00,
		SpendingWarnAtPercent: 80,

		TelemetryBatchSize:     10,
		TelemetryFlushInterval: 5 * time.Second,

		InspectorMaxTransactions: 1000,

		FanoutMaxModels: 3,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadFile decodes YAML config options onto an existing Config, leaving
// unset fields at their current value (mirroring the teacher's
// LoadConfigFile).
func LoadFile(reader io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(reader)
	return decoder.Decode(cfg)
}

func applyEnv(cfg *Config) {
	cfg.OpenRouterAPIKey = getEnvOrDefault("OPENROUTER_API_KEY", cfg.OpenRouterAPIKey)
	cfg.OpenCodeZenAPIKey = getEnvOrDefault("OPENCODE_ZEN_API_KEY", cfg.OpenCodeZenAPIKey)

	cfg.Port = getEnvAsInt("MULTIAI_PORT", cfg.Port)
	cfg.SpendingDailyCap = getEnvFloat("MULTIAI_DAILY_CAP", cfg.SpendingDailyCap)
	cfg.SpendingMonthlyCap = getEnvFloat("MULTIAI_MONTHLY_CAP", cfg.SpendingMonthlyCap)
	cfg.SpendingWarnAtPercent = getEnvFloat("MULTIAI_WARN_AT_PERCENT", cfg.SpendingWarnAtPercent)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("warning: failed to parse env var %s=%q as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		} else {
			log.Printf("warning: failed to parse env var %s=%q as float, using default %f: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
