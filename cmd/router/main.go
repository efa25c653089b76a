// =============================================================================
// Router main entry
// =============================================================================
// Usage:
//
//	router serve                       # start the HTTP server
//	router serve --config config.yaml  # use a specific config file
//	router version                     # print version info
//	router health                      # check a running server
//	router help                        # usage
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentflow-router/config"
	"github.com/BaSui01/agentflow-router/entrypoint"
	"github.com/BaSui01/agentflow-router/internal/identity"
	"github.com/BaSui01/agentflow-router/internal/metrics"
	"github.com/BaSui01/agentflow-router/internal/server"
	"github.com/BaSui01/agentflow-router/internal/store"
	"github.com/BaSui01/agentflow-router/internal/telemetry"
	"github.com/BaSui01/agentflow-router/policy"
	"github.com/BaSui01/agentflow-router/postcall"
	"github.com/BaSui01/agentflow-router/router"
	"github.com/BaSui01/agentflow-router/semcache"
	"github.com/BaSui01/agentflow-router/tokenizer"
	"github.com/BaSui01/agentflow-router/trace"
	"github.com/BaSui01/agentflow-router/vendor"
	"github.com/redis/go-redis/v9"
)

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
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting router",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry, continuing without it", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	rulesManager := policy.NewManager(cfg.Policy.RulesPath, logger)

	health := router.NewHealthMonitor(logger)
	rules := rulesManager.RulesSnapshot()
	global := router.NewGlobalBreaker(rules.GlobalCBThreshold, rules.GlobalCBCooldown)
	users := router.NewUserBreaker(rules.UserCBThreshold, rules.UserCBCooldown)

	adapters := map[policy.Vendor]vendor.Adapter{
		policy.VendorPrimary: vendor.NewPrimary(vendor.PrimaryConfig{
			APIKey:        cfg.Vendors.PrimaryAPIKey,
			BaseURL:       cfg.Vendors.PrimaryBaseURL,
			MaxConcurrent: cfg.Vendors.PrimaryMaxConcurrent,
		}, logger),
		policy.VendorSecondary: vendor.NewSecondary(vendor.SecondaryConfig{
			BaseURL:       cfg.Vendors.SecondaryBaseURL,
			MaxConcurrent: cfg.Vendors.SecondaryMaxConcurrent,
		}, logger),
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis not reachable, semantic cache running local-only", zap.Error(err))
			rdb = nil
		}
		cancel()
	}

	cacheCfg := semcache.DefaultConfig()
	if rdb == nil {
		cacheCfg.EnableRedis = false
	}
	cache := semcache.New(cacheCfg, rdb, logger)

	dbName := cfg.Database.Name
	if dbName == "" {
		dbName = "router.db"
	}
	persist, err := store.Open(dbName, logger)
	if err != nil {
		logger.Fatal("failed to open history store", zap.Error(err))
	}

	steps := postcall.BuildSteps(persist, persist, persist, persist)

	ring := trace.NewRingStore(1000)

	var verifier *identity.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = identity.NewVerifier(identity.Config{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.JWTIssuer,
			Audience: cfg.Auth.JWTAudience,
		})
		if err != nil {
			logger.Fatal("failed to build identity verifier", zap.Error(err))
		}
	}

	collector := metrics.NewCollector("agentflow_router", logger)

	var counter tokenizer.Counter = tokenizer.NewEstimator()
	if cfg.Vendors.TokenizerKind == "tiktoken" {
		counter = tokenizer.NewTiktoken(rules.PrimaryBaselineModel)
	}

	handler := &entrypoint.Handler{
		Rules:    rulesManager,
		Health:   health,
		Global:   global,
		Users:    users,
		Counter:  counter,
		Adapters: adapters,
		Cache:    cache,
		Steps:    steps,
		Store:    ring,
		Metrics:  collector,
		Logger:   logger,
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	shutdownCtx, stopRateLimiter := context.WithCancel(context.Background())
	defer stopRateLimiter()

	wrapped := entrypoint.Chain(mux,
		entrypoint.Recovery(logger),
		entrypoint.Metrics(collector),
		entrypoint.RequestLogger(logger),
		entrypoint.RequestID(),
		entrypoint.CORS(cfg.Auth.AllowedOrigins),
		entrypoint.RateLimiter(shutdownCtx, cfg.Auth.RateLimitRPS, cfg.Auth.RateLimitBurst),
		entrypoint.Identity(verifier),
	)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	if cfg.Server.ReadTimeout > 0 {
		srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.ShutdownTimeout > 0 {
		srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}

	mgr := server.NewManager(wrapped, srvCfg, logger)
	if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
		if err := mgr.StartTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	} else if err := mgr.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	mgr.WaitForShutdown()
	logger.Info("router stopped")
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("agentflow-router %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`agentflow-router - LLM request router and orchestrator

Usage:
  router <command> [options]

Commands:
  serve     Start the router's HTTP server
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Examples:
  router serve
  router serve --config /etc/router/config.yaml
  router health --addr http://localhost:8080
  router version`)
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
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
