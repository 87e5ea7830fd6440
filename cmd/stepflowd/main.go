// Package main implements stepflowd, the HTTP daemon serving stepflow orders.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/hupe1980/stepflow"
	"github.com/hupe1980/stepflow/api"
	"github.com/hupe1980/stepflow/config"
	"github.com/hupe1980/stepflow/engine"
	"github.com/hupe1980/stepflow/logging"
	"github.com/hupe1980/stepflow/metric"
)

// Build information
const (
	Version = "0.1.0"
	appName = "stepflowd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	configPath := flag.String("config", "", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	validate := flag.Bool("validate", false, "validate the configuration and flows, then exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *validate); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, validateOnly bool) error {
	// 1. Configuration
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// 2. Logger
	level, _ := logging.ParseLevel(cfg.Log.Level) // validated by config
	logger := logging.NewSlogLogger(level, cfg.Log.Format, cfg.Log.AddSource).WithComponent(appName)

	// 3. Models and order store
	models, err := buildModels(cfg.Models)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// 4. Engine, runner and flows
	var reg *metric.Registry
	if cfg.Metrics.Enabled {
		reg = metric.NewRegistry()
	}

	sf, err := stepflow.New(func(o *stepflow.Options) {
		o.EngineConfig = engine.Config{
			MaxConcurrentExecutions: cfg.Engine.MaxConcurrentExecutions,
			NodeTimeout:             cfg.Engine.NodeTimeout,
			MaxModelCalls:           cfg.Engine.MaxModelCalls,
		}
		o.MaxConflictRetries = cfg.Runner.MaxConflictRetries
		o.AllowRevisit = cfg.Runner.AllowRevisit
		o.OrderStore = store
		o.Metrics = reg
		o.Logger = logger
	})
	if err != nil {
		return fmt.Errorf("create stepflow: %w", err)
	}

	names, err := sf.LoadFlows(cfg.Flows.Dir, models)
	if err != nil {
		return fmt.Errorf("load flows: %w", err)
	}

	logger.Info("stepflowd.flows.loaded", "dir", cfg.Flows.Dir, "flows", names)

	if validateOnly {
		logger.Info("stepflowd.config.valid")
		return nil
	}

	// 5. HTTP server
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: sf.Handler(func(o *api.Options) {
			o.MaxBodyBytes = cfg.Server.MaxBodyBytes
			o.RequestTimeout = cfg.Server.RequestTimeout
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return serve(ctx, srv, cfg.Server, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg, err := config.Parse(nil)
		if err != nil {
			return nil, fmt.Errorf("default config: %w", err)
		}
		return cfg, nil
	}

	return config.Load(path)
}

// serve runs srv until ctx is cancelled and then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, cfg config.ServerConfig, logger logging.Logger) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Info("stepflowd.server.listening", "addr", srv.Addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("stepflowd.server.shutdown", "timeout", cfg.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
