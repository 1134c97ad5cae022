// Command consortium runs a weighted panel of language models against a
// single prompt, synthesizes their answers through an arbiter model, and
// iterates until the arbiter's confidence crosses the configured threshold.
//
// Usage:
//
//	consortium run -m gpt-4o:2 -m claude --arbiter claude "your question"
//	consortium run --consortium careful-panel < prompt.txt
//	consortium save careful-panel -m gpt-4o:2 -m claude --arbiter claude
//	consortium list
//	consortium remove careful-panel
//	consortium show <run-id>
//	consortium version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/consortium/config"
	"github.com/BaSui01/consortium/consortium"
	"github.com/BaSui01/consortium/internal/metrics"
	"github.com/BaSui01/consortium/internal/telemetry"
	"github.com/BaSui01/consortium/llm"
	"github.com/BaSui01/consortium/persistence"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "save":
		runSave(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "remove":
		runRemove(os.Args[2:])
	case "show":
		runShow(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// stringList collects repeated -m flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// rosterFlags is the flag set shared by run and save.
type rosterFlags struct {
	models        stringList
	defaultCount  int
	arbiter       string
	threshold     float64
	minIterations int
	maxIterations int
	system        string
}

func (r *rosterFlags) register(fs *flag.FlagSet) {
	fs.Var(&r.models, "m", "Model to include, as name or name:count (repeatable)")
	fs.Var(&r.models, "model", "Alias for -m")
	fs.IntVar(&r.defaultCount, "n", 1, "Default instance count for models without an explicit count")
	fs.StringVar(&r.arbiter, "arbiter", "", "Model that synthesizes the responses")
	fs.Float64Var(&r.threshold, "confidence-threshold", 0, "Stop once synthesis confidence reaches this value (0-1, or 1-100 as a percentage)")
	fs.IntVar(&r.minIterations, "min-iterations", 0, "Minimum number of rounds")
	fs.IntVar(&r.maxIterations, "max-iterations", 0, "Maximum number of rounds")
	fs.StringVar(&r.system, "system", "", "System prompt text, or a path to a file containing it")
}

// apply overlays the explicitly set flags onto cfg.
func (r *rosterFlags) apply(cfg *consortium.Config) error {
	if len(r.models) > 0 {
		roster, err := consortium.ParseRoster(r.models, r.defaultCount)
		if err != nil {
			return err
		}
		cfg.Roster = roster
	}
	if r.arbiter != "" {
		cfg.Arbiter = r.arbiter
	}
	if r.threshold != 0 {
		cfg.ConfidenceThreshold = r.threshold
	}
	if r.minIterations != 0 {
		cfg.MinIterations = r.minIterations
	}
	if r.maxIterations != 0 {
		cfg.MaxIterations = r.maxIterations
	}
	if r.system != "" {
		system := r.system
		if data, err := os.ReadFile(system); err == nil {
			system = string(data)
		}
		cfg.SystemPrompt = system
	}
	return nil
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	savedName := fs.String("consortium", "", "Run a saved consortium by name")
	outputPath := fs.String("output", "", "Write the full result as JSON to this file")
	rawOutput := fs.Bool("raw", false, "Print the raw arbiter reply instead of the synthesized answer")
	noLog := fs.Bool("no-log", false, "Do not persist iteration records")
	var rf rosterFlags
	rf.register(fs)
	fs.Parse(args)

	appCfg := loadAppConfig(*configPath)
	logger := initLogger(appCfg.Log)
	defer logger.Sync()

	otelProviders, err := telemetry.Init(telemetry.Config{
		Enabled:      appCfg.Telemetry.Enabled,
		OTLPEndpoint: appCfg.Telemetry.OTLPEndpoint,
		ServiceName:  appCfg.Telemetry.ServiceName,
		SampleRate:   appCfg.Telemetry.SampleRate,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	coreCfg, err := appCfg.OrchestrationConfig()
	if err != nil {
		fatal(logger, "invalid consortium section", err)
	}

	if *savedName != "" {
		db, dbErr := persistence.OpenDatabase(appCfg.Database)
		if dbErr != nil {
			fatal(logger, "failed to open database", dbErr)
		}
		store, storeErr := persistence.NewConfigStore(db, logger)
		if storeErr != nil {
			fatal(logger, "failed to open config store", storeErr)
		}
		coreCfg, err = store.Get(context.Background(), *savedName)
		if err != nil {
			fatal(logger, "failed to load saved consortium", err)
		}
	}
	if err := rf.apply(&coreCfg); err != nil {
		fatal(logger, "invalid roster flags", err)
	}
	if coreCfg.TaskTimeout == 0 {
		coreCfg.TaskTimeout = appCfg.Consortium.TaskTimeout
	}

	query := readQuery(fs.Args())
	if query == "" {
		fmt.Fprintln(os.Stderr, "No prompt given: pass it as an argument or on stdin")
		os.Exit(1)
	}

	collector := metrics.NewCollector("consortium", prometheus.DefaultRegisterer, logger)
	if appCfg.Metrics.Enabled {
		serveMetrics(appCfg.Metrics.Addr, logger)
	}

	invoker := buildInvoker(appCfg, logger)
	orch, err := consortium.NewOrchestrator(coreCfg, invoker, logger)
	if err != nil {
		fatal(logger, "invalid configuration", err)
	}
	orch.SetMetrics(collector)
	orch.SetTokenizer(llm.NewTiktokenTokenizer("cl100k_base"))

	if !*noLog {
		db, dbErr := persistence.OpenDatabase(appCfg.Database)
		if dbErr != nil {
			logger.Warn("database unavailable, iteration records will not be persisted", zap.Error(dbErr))
		} else {
			store, storeErr := persistence.NewGormStore(db, logger)
			if storeErr != nil {
				logger.Warn("record store unavailable", zap.Error(storeErr))
			} else {
				appender := persistence.NewAsyncAppender(store, logger, persistence.WithCollector(collector))
				defer func() {
					if err := appender.Close(); err != nil {
						logger.Warn("failed to flush iteration records", zap.Error(err))
					}
				}()
				orch.SetRecordSink(appender)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orch.Run(ctx, query)
	if err != nil {
		fatal(logger, "orchestration failed", err)
	}

	if *outputPath != "" {
		data, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			fatal(logger, "failed to encode result", marshalErr)
		}
		if writeErr := os.WriteFile(*outputPath, data, 0o644); writeErr != nil {
			fatal(logger, "failed to write result", writeErr)
		}
	}

	if *rawOutput {
		fmt.Println(result.Synthesis.Raw)
		return
	}
	fmt.Println(result.Synthesis.Synthesis)
	fmt.Fprintf(os.Stderr, "\nconfidence %.2f after %d round(s), run %s\n",
		result.Synthesis.Confidence, len(result.Rounds), result.RunID)
}

func runSave(args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "Usage: consortium save <name> [options]")
		os.Exit(1)
	}
	name := args[0]

	fs := flag.NewFlagSet("save", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	var rf rosterFlags
	rf.register(fs)
	fs.Parse(args[1:])

	appCfg := loadAppConfig(*configPath)
	logger := initLogger(appCfg.Log)
	defer logger.Sync()

	coreCfg, err := appCfg.OrchestrationConfig()
	if err != nil {
		fatal(logger, "invalid consortium section", err)
	}
	if err := rf.apply(&coreCfg); err != nil {
		fatal(logger, "invalid roster flags", err)
	}
	coreCfg.Normalize()
	if err := coreCfg.Validate(); err != nil {
		fatal(logger, "invalid consortium definition", err)
	}

	store := openConfigStore(appCfg, logger)
	if err := store.Save(context.Background(), name, coreCfg); err != nil {
		fatal(logger, "failed to save consortium", err)
	}
	fmt.Printf("Saved consortium %q\n", name)
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	appCfg := loadAppConfig(*configPath)
	logger := initLogger(appCfg.Log)
	defer logger.Sync()

	store := openConfigStore(appCfg, logger)
	names, err := store.List(context.Background())
	if err != nil {
		fatal(logger, "failed to list consortiums", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runRemove(args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "Usage: consortium remove <name>")
		os.Exit(1)
	}
	name := args[0]

	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args[1:])

	appCfg := loadAppConfig(*configPath)
	logger := initLogger(appCfg.Log)
	defer logger.Sync()

	store := openConfigStore(appCfg, logger)
	if err := store.Remove(context.Background(), name); err != nil {
		fatal(logger, "failed to remove consortium", err)
	}
	fmt.Printf("Removed consortium %q\n", name)
}

func runShow(args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "Usage: consortium show <run-id>")
		os.Exit(1)
	}
	runID := args[0]

	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args[1:])

	appCfg := loadAppConfig(*configPath)
	logger := initLogger(appCfg.Log)
	defer logger.Sync()

	db, err := persistence.OpenDatabase(appCfg.Database)
	if err != nil {
		fatal(logger, "failed to open database", err)
	}
	store, err := persistence.NewGormStore(db, logger)
	if err != nil {
		fatal(logger, "failed to open record store", err)
	}
	defer store.Close()

	records, err := store.ListByRun(context.Background(), runID)
	if err != nil {
		fatal(logger, "failed to load run", err)
	}
	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "No records for run %s\n", runID)
		os.Exit(1)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fatal(logger, "failed to encode records", err)
	}
	fmt.Println(string(data))
}

// buildInvoker assembles the invocation stack from the inside out:
// HTTP transport, retry, rate limiting, redis cache.
func buildInvoker(cfg *config.Config, logger *zap.Logger) llm.Invoker {
	var invoker llm.Invoker = llm.NewHTTPInvoker(llm.HTTPConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: float32(cfg.LLM.Temperature),
	}, logger)

	policy := llm.DefaultRetryPolicy()
	if cfg.LLM.MaxRetries > 0 {
		policy.MaxRetries = cfg.LLM.MaxRetries
	}
	invoker = llm.NewRetryInvoker(invoker, policy, logger)

	if cfg.LLM.RatePerSecond > 0 {
		invoker = llm.NewRateLimitedInvoker(invoker, cfg.LLM.RatePerSecond, 1, logger)
	}

	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		invoker = llm.NewCachedInvoker(invoker, client, llm.CacheConfig{
			TTL:       cfg.Cache.TTL,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}, logger)
	}

	return invoker
}

func loadAppConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.WithValidator(func(c *config.Config) error { return c.Validate() }).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openConfigStore(cfg *config.Config, logger *zap.Logger) *persistence.ConfigStore {
	db, err := persistence.OpenDatabase(cfg.Database)
	if err != nil {
		fatal(logger, "failed to open database", err)
	}
	store, err := persistence.NewConfigStore(db, logger)
	if err != nil {
		fatal(logger, "failed to open config store", err)
	}
	return store
}

// readQuery takes the prompt from the remaining arguments, or from stdin
// when none are given.
func readQuery(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " "))
	}
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return ""
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	opts := []zap.Option{}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func fatal(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func printVersion() {
	fmt.Printf("consortium %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`consortium - multi-model consensus runner

Usage:
  consortium <command> [options]

Commands:
  run       Run a prompt through the consortium
  save      Save a named consortium definition
  list      List saved consortium definitions
  remove    Remove a saved consortium definition
  show      Print the stored iteration records of a run
  version   Show version information
  help      Show this help message

Options for 'run' and 'save':
  -m, --model <name[:count]>     Model to include (repeatable)
  -n <count>                     Default instance count (default 1)
  --arbiter <name>               Synthesizing model
  --confidence-threshold <v>     Stop threshold, 0-1 or a percentage
  --min-iterations <n>           Minimum rounds
  --max-iterations <n>           Maximum rounds
  --system <text|file>           System prompt
  --config <path>                Configuration file (YAML)

Options for 'run' only:
  --consortium <name>            Use a saved definition
  --output <path>                Write the full result as JSON
  --raw                          Print the raw arbiter reply
  --no-log                       Skip persisting iteration records

Examples:
  consortium run -m gpt-4o:2 -m claude --arbiter claude "What is the airspeed of an unladen swallow?"
  echo "prompt" | consortium run --consortium careful-panel
  consortium save careful-panel -m gpt-4o:2 -m claude --arbiter claude
  consortium show 7f9c2c4e-...`)
}
