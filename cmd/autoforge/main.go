package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rendis/autoforge/internal/actions"
	"github.com/rendis/autoforge/internal/engine"
	"github.com/rendis/autoforge/internal/expressions"
	"github.com/rendis/autoforge/internal/ingress"
	"github.com/rendis/autoforge/internal/logging"
	"github.com/rendis/autoforge/internal/metrics"
	"github.com/rendis/autoforge/internal/scheduler"
	"github.com/rendis/autoforge/internal/secrets"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/internal/trigger"
	"github.com/rendis/autoforge/internal/validation"
	"github.com/rendis/autoforge/pkg/mcp"
)

const shutdownTimeout = 30 * time.Second

func usage() {
	fmt.Fprintln(os.Stderr, "usage: autoforge <serve|migrate|version> [flags]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "version":
		printVersion()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "autoforge:", err)
		os.Exit(1)
	}
}

// parseFlags layers command line flags over the loaded config.
func parseFlags(name string, args []string) (Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if name == "serve" {
		fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
		fs.BoolVar(&cfg.MCP, "mcp", cfg.MCP, "serve MCP tools over stdio")
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func runMigrate(args []string) error {
	cfg, err := parseFlags("migrate", args)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)
	s, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	logger.Info("database migrated", "db_path", cfg.DBPath)
	return nil
}

func runServe(args []string) error {
	cfg, err := parseFlags("serve", args)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var vault secrets.Vault
	if vc, ok := cfg.vault(); ok {
		v, err := secrets.NewAESVault(s, vc)
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		vault = v
	}

	validator, err := validation.NewChainValidator()
	if err != nil {
		return err
	}

	collector := metrics.New()
	registry := actions.NewDefaultRegistry(cfg.actions())
	runner := engine.NewRunner(collector.Instrument(s), registry, expressions.NewInterpolator(vault), engine.RunnerConfig{}, logger)
	dispatcher := engine.NewDispatcher(runner, s, cfg.dispatcher(), logger)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	defer dispatcher.Stop()
	collector.WatchDispatcher(dispatcher)

	if n, err := dispatcher.RecoverStuck(ctx); err != nil {
		logger.Error("recover stuck executions", "error", err)
	} else if n > 0 {
		logger.Info("interrupted stuck executions", "count", n)
	}
	if n, err := dispatcher.RecoverPending(ctx); err != nil {
		logger.Error("recover pending executions", "error", err)
	} else if n > 0 {
		logger.Info("re-dispatched pending executions", "count", n)
	}

	triggers := trigger.NewService(s, dispatcher, logger)

	poller := scheduler.NewPoller(s, triggers, cfg.scheduler(), logger)
	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop()

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: ingress.NewServer(ingress.Deps{
			Trigger:  triggers,
			Metrics:  dispatcher,
			Exporter: collector.Handler(),
			Logger:   logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if cfg.MCP {
		mcpSrv := mcp.NewServer(mcp.ServerDeps{
			Trigger:   triggers,
			Store:     s,
			Validator: validator,
			Logger:    logger,
		})
		go func() {
			if err := mcpSrv.Serve(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("mcp server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
		logger.Error("http shutdown", "error", shutErr)
	}
	poller.Stop()
	dispatcher.Stop()
	logger.Info("stopped", "dispatcher", dispatcher.Metrics())
	return err
}
