package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/planlens/planlens/deadletter"
	"github.com/planlens/planlens/orchestrator"
)

func newReplayCommand() *cobra.Command {
	var (
		dir       string
		serverURL string
		pattern   string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-dispatch persisted dead-letter records through a running orchestrator",
		Long: `Replay reads dead-letter records persisted by the file sink and posts
their signals to a running planlens server. With --watch it keeps running and
replays records as they appear in the directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.Default()

			sink, err := deadletter.NewFileSink(dir)
			if err != nil {
				return err
			}

			records, errs := sink.LoadAll(pattern)
			for _, e := range errs {
				logger.Warn("Skipping unreadable record", slog.String("error", e.Error()))
			}
			for _, dl := range records {
				replayRecord(serverURL, dl, logger)
			}
			logger.Info("Replay pass complete", slog.Int("records", len(records)))

			if !watch {
				return nil
			}
			return watchAndReplay(cmd.Context(), dir, serverURL, sink, logger)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", filepath.Join(".planlens", "deadletters"),
		"dead-letter directory to read")
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8410",
		"base URL of the running planlens server")
	cmd.Flags().StringVar(&pattern, "glob", "*.json",
		"glob pattern selecting records within the directory")
	cmd.Flags().BoolVar(&watch, "watch", false,
		"keep watching the directory and replay new records")
	return cmd
}

// replayRecord posts one dead letter's signal to the server's dispatch
// endpoint and logs the resulting receipt. Failures are logged, not fatal:
// a replay pass is best effort.
func replayRecord(serverURL string, dl deadletter.DeadLetter, logger *slog.Logger) {
	if dl.Signal == nil {
		logger.Warn("Record has no signal", slog.String("dead_letter_id", dl.ID))
		return
	}

	body, err := dl.Signal.Encode()
	if err != nil {
		logger.Warn("Failed to encode signal",
			slog.String("dead_letter_id", dl.ID), slog.String("error", err.Error()))
		return
	}

	resp, err := http.Post(serverURL+"/api/signals", "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("Dispatch request failed",
			slog.String("dead_letter_id", dl.ID), slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	var receipt orchestrator.Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		logger.Warn("Unreadable dispatch response",
			slog.String("dead_letter_id", dl.ID),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()))
		return
	}

	logger.Info("Replayed dead letter",
		slog.String("dead_letter_id", dl.ID),
		slog.String("signal_id", receipt.SignalID),
		slog.String("outcome", string(receipt.Status)),
		slog.String("reason", string(receipt.Reason)))
}

// watchAndReplay replays records as the file sink writes them.
func watchAndReplay(ctx context.Context, dir, serverURL string, sink *deadletter.FileSink, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("Watching for new dead letters", slog.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}

			// The sink may still be writing; give it a moment.
			time.Sleep(50 * time.Millisecond)

			id := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			dl, err := sink.Load(id)
			if err != nil {
				logger.Warn("Skipping unreadable record",
					slog.String("path", event.Name), slog.String("error", err.Error()))
				continue
			}
			replayRecord(serverURL, dl, logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", slog.String("error", err.Error()))
		}
	}
}
