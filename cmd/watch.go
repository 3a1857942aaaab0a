package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bermanqa/qlog/internal/config"
	"github.com/bermanqa/qlog/internal/daemon"
	"github.com/bermanqa/qlog/internal/store"
	"github.com/bermanqa/qlog/internal/webhook"
)

// parseLevel maps a config level name to a slog level. Unknown names are info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// daemonLogger builds the long-running logger: rotating file when log.file is
// set, stderr otherwise.
func daemonLogger(cfg config.Log, debug bool) (*slog.Logger, io.Closer) {
	var w io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w, closer = lj, lj
	}

	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep this device in sync until interrupted",
	Long: `Run in the foreground and sync whenever something changes:
- a complaint is added, edited or deleted on this device (by any qlog command)
- another device pushes to the shared collection
- every --interval, when set

When webhook.url is configured, every successful or failed cycle is posted to
it. Logs go to log.file (rotated) when set, stderr otherwise.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, logCloser := daemonLogger(cfg.Log, verbose)
		defer logCloser.Close()

		a, err := openAppWith(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		orch, client, err := a.orchestrator()
		if err != nil {
			return err
		}
		defer orch.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		files, err := daemon.NewFileWatcher(a.store.DataDir(), store.DBFile)
		if err != nil {
			return err
		}
		defer files.Close()
		go func() {
			for err := range files.Errors() {
				logger.Warn("file watcher", "err", err)
			}
		}()

		if webhook.IsEnabled(cfg.Webhook) {
			events, cancel := orch.Subscribe(16)
			defer cancel()
			n := webhook.NewNotifier(cfg.Webhook, client.DeviceID, logger)
			go n.Run(ctx, events)
			logger.Info("webhook enabled", "url", cfg.Webhook.URL)
		}

		d := &daemon.Daemon{
			Syncer:   orch,
			Store:    a.store,
			Remote:   client,
			DeviceID: client.DeviceID,
			Interval: cfg.Sync.Interval,
			Logger:   logger,
		}

		if a.identity.LocalOnly() {
			fmt.Fprintln(os.Stderr, "No sync id set; waiting for 'qlog sync-id set <id>'.")
		} else if err := orch.SyncNow(); err != nil {
			logger.Warn("initial sync", "err", err)
		}
		return d.Run(ctx, files.Events())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("interval", 0, "also sync on this interval (overrides sync.interval)")
	watchCmd.Flags().Duration("debounce", 0, "quiet period before a triggered sync (overrides sync.debounce)")
}
