// Storyflow service entry point: composition, metrics/health listener, and
// graceful shutdown.
//
// Usage:
//
//	storyflow serve                       # start the service
//	storyflow serve --config config.yaml  # with a config file
//	storyflow version                     # show version info
//	storyflow health                      # probe a running instance
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/storyflow-ai/storyflow/cancel"
	"github.com/storyflow-ai/storyflow/config"
	"github.com/storyflow-ai/storyflow/credit"
	"github.com/storyflow-ai/storyflow/director"
	"github.com/storyflow-ai/storyflow/internal/metrics"
	"github.com/storyflow-ai/storyflow/internal/telemetry"
	"github.com/storyflow-ai/storyflow/persist"
	"github.com/storyflow-ai/storyflow/providers/gemini"
	"github.com/storyflow-ai/storyflow/session"
)

// Version information injected at build time.
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

	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting storyflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("backend", cfg.Persistence.Backend),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry init failed", zap.Error(err))
	}

	kv, err := openKV(cfg.Persistence)
	if err != nil {
		logger.Fatal("storage backend init failed", zap.Error(err))
	}

	collector := metrics.NewCollector("storyflow", logger)
	store := session.New(logger)
	ctrl := cancel.New(logger)
	ledger := credit.New(cfg.Credits.StartingBalance, cfg.Credits.DisplayCurrency, cfg.Credits.ConversionRate, logger)
	ps := persist.NewStore(kv, logger,
		persist.WithEvictionHook(func(collection string, emptied bool) {
			collector.RecordEviction(collection, emptied)
		}),
	)

	svc := gemini.New(gemini.Config{
		APIKey:     os.Getenv("GEMINI_API_KEY"),
		ImageModel: cfg.Generation.DefaultImageModel,
		VideoModel: cfg.Generation.DefaultVideoModel,
	}, logger)
	if os.Getenv("GEMINI_API_KEY") == "" {
		logger.Warn("GEMINI_API_KEY not set; generation calls will be rejected upstream")
	}

	d := director.New(store, ctrl, ledger, ps, svc, director.Options{
		Logger:  logger,
		Metrics: collector,
		Costs: director.Costs{
			Image: cfg.Credits.ImageCost,
			Video: cfg.Credits.VideoCost,
			Edit:  cfg.Credits.EditCost,
			Angle: cfg.Credits.AngleCost,
		},
		MaxScenes:   cfg.Generation.MaxScenes,
		Throttle:    cfg.Generation.ThrottleInterval,
		BookmarkTTL: cfg.Generation.BookmarkTTL,
	})

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	if err := d.Load(loadCtx); err != nil {
		logger.Warn("persisted state not restored", zap.Error(err))
	}
	cancelLoad()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, Version)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: mux,
	}
	go func() {
		logger.Info("metrics listener started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics listener failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	d.Stop()
	d.WaitFlush()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("listener shutdown failed", zap.Error(err))
	}
	if otelProviders != nil {
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", zap.Error(err))
		}
	}

	logger.Info("storyflow stopped")
}

// openKV selects the storage backend from config.
func openKV(cfg config.PersistenceConfig) (persist.KV, error) {
	switch cfg.Backend {
	case "memory":
		return persist.NewMemoryKV(0), nil
	case "file":
		return persist.NewFileKV(cfg.FileDir)
	case "redis":
		return persist.NewRedisKV(persist.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}), nil
	case "sqlite":
		return persist.NewGormKV(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown persistence backend: %s", cfg.Backend)
	}
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:9090", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
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
	fmt.Printf("storyflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`storyflow - generation session store service

Usage:
  storyflow <command> [options]

Commands:
  serve     Start the storyflow service
  version   Show version information
  health    Check a running instance
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Environment:
  GEMINI_API_KEY        Generation service API key
  STORYFLOW_*           Config overrides (see config package)

Examples:
  storyflow serve
  storyflow serve --config /etc/storyflow/config.yaml
  storyflow health --addr http://localhost:9090`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	return zap.New(core, zap.AddCaller())
}
