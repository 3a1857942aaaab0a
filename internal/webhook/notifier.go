package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bermanqa/qlog/internal/config"
	qsync "github.com/bermanqa/qlog/internal/sync"
)

// Notifier forwards terminal sync states (success, error) to a webhook.
type Notifier struct {
	URL      string
	Secret   string
	DeviceID string
	HTTP     *http.Client
	Logger   *slog.Logger
	Now      func() time.Time
}

// IsEnabled returns true if a webhook URL is configured.
func IsEnabled(cfg config.Webhook) bool {
	return cfg.URL != ""
}

// NewNotifier builds a Notifier from config.
func NewNotifier(cfg config.Webhook, deviceID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		URL:      cfg.URL,
		Secret:   cfg.Secret,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: defaultTimeout},
		Logger:   logger,
		Now:      time.Now,
	}
}

// Run consumes events until ctx is done or the channel closes. Dispatch
// failures are logged and never stop the loop.
func (n *Notifier) Run(ctx context.Context, events <-chan qsync.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !notable(ev) {
				continue
			}
			p := BuildPayload(n.DeviceID, ev, n.Now())
			if err := Dispatch(ctx, n.HTTP, n.URL, n.Secret, p); err != nil {
				n.Logger.Warn("webhook: dispatch failed", "err", err, "state", p.State)
				continue
			}
			n.Logger.Debug("webhook: dispatched", "state", p.State, "sync_id", p.Identifier)
		}
	}
}

func notable(ev qsync.Event) bool {
	if ev.Kind != qsync.StatusChanged {
		return false
	}
	return ev.Status.State == qsync.StateSuccess || ev.Status.State == qsync.StateError
}
