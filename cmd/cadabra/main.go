// Package main implements the cadabra server CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cadabra-cache/cadabra/internal/cache"
	"github.com/cadabra-cache/cadabra/internal/cli"
	"github.com/cadabra-cache/cadabra/internal/config"
	"github.com/cadabra-cache/cadabra/internal/logging"
	"github.com/cadabra-cache/cadabra/internal/schemahints"
	"github.com/cadabra-cache/cadabra/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, lookupEnv func(string) (string, bool), stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stdout, err.Error())
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	cfg, warnings, err := resolveConfig(opts, lookupEnv)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	log := logging.NewSlogAdapter(logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Writer: stderr,
	}))
	for _, warning := range warnings {
		log.Warn(warning)
	}

	var hints map[string]string
	if cfg.SchemaPath != "" {
		hints, err = schemahints.Load(cfg.SchemaPath)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 1
		}
		log.Info("loaded schema hints", "path", cfg.SchemaPath, "tables", len(hints))
	}

	c, err := cache.New(ctx, cache.Options{
		Path:        cfg.DBPath,
		LRUCapacity: cfg.LRUCapacity,
		Hints:       hints,
		Logger:      log,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("closing cache", "error", err)
		}
	}()

	srv := server.New(server.Options{
		Cache:       c,
		Logger:      log,
		CORSEnabled: cfg.CORSEnabled,
	})
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr(), "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
		return 1
	}
	return 0
}

// resolveConfig layers the sources: built-in defaults, then the configuration
// file, then explicitly-set flags, then environment variables.
func resolveConfig(opts cli.Options, lookupEnv func(string) (string, bool)) (config.Config, []string, error) {
	cfg := config.Default()
	var warnings []string

	result, err := config.Load(opts.ConfigPath, config.LoadOptions{Strict: opts.StrictConfig})
	switch {
	case err == nil:
		cfg = result.Config
		warnings = result.Warnings
	case errors.Is(err, os.ErrNotExist) && !opts.ConfigPathSet():
		// The default config path is optional; an explicit -config is not.
	default:
		return config.Config{}, nil, err
	}

	opts.Apply(&cfg)
	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, warnings, nil
}
