package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/planlens/planlens/config"
	"github.com/planlens/planlens/deadletter"
	"github.com/planlens/planlens/orchestrator"
	"github.com/planlens/planlens/server"
	sig "github.com/planlens/planlens/signal"
)

func newServeCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.Default()

			cfg := config.NewLoader(logger).LoadOrDefault()
			if listen != "" {
				cfg.Server.Listen = listen
			}

			sink, closeSink, err := buildSink(cfg.Rules.DeadLetter, logger)
			if err != nil {
				return err
			}
			defer closeSink()

			orch := orchestrator.New(cfg.Rules, sink, logger)
			if err := registerConsumers(orch, cfg.Consumers, logger); err != nil {
				return err
			}

			srv := server.New(orch, cfg.Server.Listen, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

// buildSink constructs the configured dead-letter sink. An unusable backend
// degrades to no persistence with a logged warning rather than refusing to
// start.
func buildSink(cfg config.DeadLetterConfig, logger *slog.Logger) (deadletter.Sink, func(), error) {
	noop := func() {}

	if !cfg.Enabled {
		return deadletter.NoopSink{}, noop, nil
	}

	switch cfg.Backend {
	case "", "file":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(".planlens", "deadletters")
		}
		fileSink, err := deadletter.NewFileSink(path)
		if err != nil {
			logger.Warn("Dead-letter file sink unavailable, persistence disabled",
				slog.String("path", path), slog.String("error", err.Error()))
			return deadletter.NoopSink{}, noop, nil
		}
		return fileSink, noop, nil

	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(".planlens", "deadletters.db")
		}
		dbSink, err := deadletter.NewSQLiteSink(path)
		if err != nil {
			logger.Warn("Dead-letter sqlite sink unavailable, persistence disabled",
				slog.String("path", path), slog.String("error", err.Error()))
			return deadletter.NoopSink{}, noop, nil
		}
		return dbSink, func() { _ = dbSink.Close() }, nil

	case "nats":
		natsSink, err := deadletter.NewNATSSink(cfg.URL, cfg.Subject)
		if err != nil {
			logger.Warn("Dead-letter NATS sink unavailable, persistence disabled",
				slog.String("url", cfg.URL), slog.String("error", err.Error()))
			return deadletter.NoopSink{}, noop, nil
		}
		return natsSink, func() { _ = natsSink.Close() }, nil

	case "none":
		return deadletter.NoopSink{}, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown dead-letter backend %q", cfg.Backend)
	}
}

// registerConsumers registers the consumers declared in configuration. Each
// gets a collector handler appending delivered signals to a JSONL file;
// in-process pipeline phases register programmatically instead.
func registerConsumers(orch *orchestrator.Orchestrator, specs []config.ConsumerSpec, logger *slog.Logger) error {
	for _, spec := range specs {
		output := spec.Output
		if output == "" {
			output = filepath.Join(".planlens", "out", spec.ID+".jsonl")
		}

		handler, err := newCollectorHandler(output)
		if err != nil {
			return fmt.Errorf("consumer %q: %w", spec.ID, err)
		}

		err = orch.RegisterConsumer(orchestrator.Consumer{
			ID:           spec.ID,
			Scopes:       spec.Scopes,
			Capabilities: spec.Capabilities,
			Handler:      handler,
		})
		if err != nil {
			return err
		}
		logger.Info("Registered consumer",
			slog.String("consumer_id", spec.ID),
			slog.Int("scopes", len(spec.Scopes)),
			slog.String("output", output))
	}
	return nil
}

// newCollectorHandler returns a handler that appends each delivered signal's
// wire form as one JSONL line.
func newCollectorHandler(path string) (orchestrator.Handler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var mu sync.Mutex
	return orchestrator.HandlerFunc(func(_ context.Context, s *sig.Signal) error {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal signal: %w", err)
		}

		mu.Lock()
		defer mu.Unlock()

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer f.Close()

		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("append signal: %w", err)
		}
		return nil
	}), nil
}
