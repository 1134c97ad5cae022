package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/consortium/consortium"
	"github.com/BaSui01/consortium/persistence"
	"github.com/BaSui01/consortium/types"
)

// Config is the full process configuration.
type Config struct {
	Consortium ConsortiumConfig     `yaml:"consortium" env:"CONSORTIUM"`
	LLM        LLMConfig            `yaml:"llm" env:"LLM"`
	Cache      CacheConfig          `yaml:"cache" env:"CACHE"`
	Redis      RedisConfig          `yaml:"redis" env:"REDIS"`
	Database   persistence.DBConfig `yaml:"database" env:"-"`
	Log        LogConfig            `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig      `yaml:"telemetry" env:"TELEMETRY"`
	Metrics    MetricsConfig        `yaml:"metrics" env:"METRICS"`
}

// ConsortiumConfig holds the orchestration defaults. Roster entries use the
// "model" or "model:count" syntax.
type ConsortiumConfig struct {
	Roster              []string      `yaml:"roster" env:"-"`
	Arbiter             string        `yaml:"arbiter" env:"ARBITER"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	MinIterations       int           `yaml:"min_iterations" env:"MIN_ITERATIONS"`
	MaxIterations       int           `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	SystemPrompt        string        `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	TaskTimeout         time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	MaxConcurrency      int           `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
}

// LLMConfig addresses the chat-completions endpoint all agents share.
type LLMConfig struct {
	BaseURL       string        `yaml:"base_url" env:"BASE_URL"`
	APIKey        string        `yaml:"api_key" env:"API_KEY"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxTokens     int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature   float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxRetries    int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RatePerSecond float64       `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
}

// CacheConfig controls response caching.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// RedisConfig addresses the cache backend.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

// OrchestrationConfig converts the file-level section into the core config,
// parsing the roster syntax. An empty roster is passed through untouched;
// callers usually fill it from flags, and the orchestrator rejects it if
// nobody does.
func (c *Config) OrchestrationConfig() (consortium.Config, error) {
	var roster types.Roster
	if len(c.Consortium.Roster) > 0 {
		var err error
		roster, err = consortium.ParseRoster(c.Consortium.Roster, 1)
		if err != nil {
			return consortium.Config{}, err
		}
	}
	return consortium.Config{
		Roster:              roster,
		Arbiter:             c.Consortium.Arbiter,
		ConfidenceThreshold: c.Consortium.ConfidenceThreshold,
		MinIterations:       c.Consortium.MinIterations,
		MaxIterations:       c.Consortium.MaxIterations,
		SystemPrompt:        c.Consortium.SystemPrompt,
		TaskTimeout:         c.Consortium.TaskTimeout,
		MaxConcurrency:      c.Consortium.MaxConcurrency,
	}, nil
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader returns a Loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CONSORTIUM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics. For main() only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the cross-section constraints a run depends on.
func (c *Config) Validate() error {
	var errs []string

	if c.Consortium.ConfidenceThreshold < 0 || c.Consortium.ConfidenceThreshold > 100 {
		errs = append(errs, "confidence_threshold must be in [0,1] or a percentage in (1,100]")
	}
	if c.Consortium.MinIterations < 0 {
		errs = append(errs, "min_iterations must not be negative")
	}
	if c.Consortium.MaxIterations < 0 {
		errs = append(errs, "max_iterations must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm temperature must be between 0 and 2")
	}
	if c.Cache.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "cache is enabled but redis addr is empty")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfigInvalid, strings.Join(errs, "; "))
	}
	return nil
}
