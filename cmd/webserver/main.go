package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chen150182055/WebServer-02/internal/logger"
	"github.com/chen150182055/WebServer-02/internal/server"
	"github.com/chen150182055/WebServer-02/pkg/config"
	"github.com/chen150182055/WebServer-02/pkg/metrics"
	"github.com/chen150182055/WebServer-02/pkg/store/user"
	badgerstore "github.com/chen150182055/WebServer-02/pkg/store/user/badger"
	memorystore "github.com/chen150182055/WebServer-02/pkg/store/user/memory"
	mysqlstore "github.com/chen150182055/WebServer-02/pkg/store/user/mysql"
)

func newStore(ctx context.Context, cfg *config.Config) (user.Store, error) {
	switch cfg.Database.Type {
	case "mysql":
		return mysqlstore.New(ctx, mysqlstore.Config{
			Host:     cfg.Database.MySQL.Host,
			Port:     cfg.Database.MySQL.Port,
			User:     cfg.Database.MySQL.User,
			Password: cfg.Database.MySQL.Password,
			Database: cfg.Database.MySQL.Database,
			PoolSize: cfg.Database.MySQL.PoolSize,
		})
	case "badger":
		return badgerstore.New(cfg.Database.Badger.Dir)
	case "memory":
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Database.Type)
	}
}

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	port := flag.Int("port", 0, "Override the listen port")
	logLevel := flag.String("log-level", "", "Override the log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if cfg.Logging.Enabled {
		if err := logger.Init(parseLevel(cfg.Logging.Level), cfg.Logging.Dir,
			cfg.Logging.Suffix, cfg.Logging.QueueSize); err != nil {
			stdlog.Fatalf("Failed to init logger: %v", err)
		}
		defer logger.Close()
	} else {
		logger.SetLevel(cfg.Logging.Level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.ServerMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		m = metrics.NewServerMetrics()
		go func() {
			mux := nethttp.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
			if err := nethttp.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error("metrics listener: %v", err)
			}
		}()
		logger.Info("metrics exposed on %s/metrics", cfg.Metrics.Addr)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		stdlog.Fatalf("Failed to open user store: %v", err)
	}
	defer store.Close()

	srv, err := server.New(server.Config{
		Port:           cfg.Server.Port,
		TrigMode:       cfg.Server.TrigMode,
		TimeoutMS:      cfg.Server.TimeoutMS,
		Linger:         cfg.Server.Linger,
		MaxConnections: cfg.Server.MaxConnections,
		DocRoot:        cfg.Server.DocRoot,
		Workers:        cfg.Pool.Workers,
		AcceptRPS:      cfg.Server.AcceptRPS,
		AcceptBurst:    cfg.Server.AcceptBurst,
	}, store, m)
	if err != nil {
		stdlog.Fatalf("Failed to create server: %v", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running on port %d, press Ctrl+C to stop", cfg.Server.Port)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case err := <-serverDone:
		if err != nil {
			logger.Error("server error: %v", err)
			os.Exit(1)
		}
		logger.Info("server stopped")
	}
}

func parseLevel(level string) logger.Level {
	switch level {
	case "DEBUG", "debug":
		return logger.LevelDebug
	case "WARN", "warn":
		return logger.LevelWarn
	case "ERROR", "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
