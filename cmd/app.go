package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/config"
	"github.com/bermanqa/qlog/internal/identity"
	"github.com/bermanqa/qlog/internal/store"
	qsync "github.com/bermanqa/qlog/internal/sync"
	"github.com/bermanqa/qlog/internal/syncclient"
)

// app holds what a command needs: resolved config, the local store and the
// sync identity on top of it.
type app struct {
	cfg      *config.Config
	store    *store.Store
	identity *identity.Identity
	logger   *slog.Logger
}

// loadConfig resolves configuration for cmd, honoring --config and the
// flags config.BindFlags knows about.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	if err := config.Read(v, configPath); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

// openApp loads config and opens the local store. Callers must Close it.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openAppWith(cfg, slog.Default())
}

func openAppWith(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.Open(getBaseDir(), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &app{
		cfg:      cfg,
		store:    st,
		identity: identity.New(st),
		logger:   logger,
	}, nil
}

// Close releases the local store.
func (a *app) Close() error {
	return a.store.Close()
}

// remoteClient returns a KV client tagged with this device's id.
func (a *app) remoteClient() (*syncclient.Client, error) {
	deviceID, err := a.store.DeviceID()
	if err != nil {
		return nil, err
	}
	return syncclient.New(a.cfg.Remote, deviceID), nil
}

// orchestrator builds a sync orchestrator bound to the store and follows
// identity changes made through a.identity. Callers must Close it.
func (a *app) orchestrator() (*qsync.Orchestrator, *syncclient.Client, error) {
	client, err := a.remoteClient()
	if err != nil {
		return nil, nil, err
	}
	orch := qsync.New(qsync.Options{
		Store:      a.store,
		Remote:     client,
		Retry:      retryPolicy(a.cfg.Sync),
		Debounce:   a.cfg.Sync.Debounce,
		Logger:     a.logger,
		Identifier: a.identity.Current(),
	})
	a.identity.OnChange(orch.SetIdentifier)
	return orch, client, nil
}

func retryPolicy(s config.Sync) qsync.RetryPolicy {
	return qsync.RetryPolicy{
		MaxAttempts: s.MaxAttempts,
		Backoff:     qsync.ExponentialBackoff(s.BackoffBase, s.BackoffMax),
	}
}
