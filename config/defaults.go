package config

import (
	"time"

	"github.com/BaSui01/consortium/persistence"
)

// DefaultConfig returns the configuration used when no file or environment
// override is present.
func DefaultConfig() *Config {
	return &Config{
		Consortium: ConsortiumConfig{
			ConfidenceThreshold: 0.8,
			MinIterations:       1,
			MaxIterations:       3,
			TaskTimeout:         2 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434/v1",
			Timeout:     2 * time.Minute,
			MaxTokens:   4096,
			Temperature: 0.7,
			MaxRetries:  3,
		},
		Cache: CacheConfig{
			TTL:       time.Hour,
			KeyPrefix: "consortium",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Database: persistence.DBConfig{
			Driver: "sqlite",
			DSN:    "consortium.db",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "consortium",
			SampleRate:   1.0,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}
