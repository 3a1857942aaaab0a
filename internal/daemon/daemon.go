package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/bermanqa/qlog/internal/identity"
	qsync "github.com/bermanqa/qlog/internal/sync"
	"github.com/bermanqa/qlog/internal/syncclient"
)

// DefaultReconnect is the wait between remote watch attempts.
const DefaultReconnect = 5 * time.Second

// Syncer is the orchestrator as the daemon drives it.
type Syncer interface {
	Trigger(reason qsync.Reason)
	Identifier() string
	SetIdentifier(id string)
	Status() qsync.Snapshot
	Subscribe(buffer int) (<-chan qsync.Event, func())
}

// Store is read after file events to tell real edits from the daemon's own
// writes and to pick up a sync id changed by another process.
type Store interface {
	Revision() int64
	SyncID() string
}

// Remote is the change feed of the shared bucket.
type Remote interface {
	NamespaceKey(identifier string) string
	Watch(ctx context.Context, key string) (<-chan syncclient.Change, error)
}

// Daemon wires triggers to a Syncer. Store and Syncer are required; Remote is
// optional and Interval zero disables periodic cycles.
type Daemon struct {
	Syncer    Syncer
	Store     Store
	Remote    Remote
	DeviceID  string
	Interval  time.Duration
	Reconnect time.Duration
	Logger    *slog.Logger
}

// Run blocks until ctx is cancelled or the Syncer closes its event stream.
// fileEvents may be nil.
func (d *Daemon) Run(ctx context.Context, fileEvents <-chan struct{}) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	events, unsubscribe := d.Syncer.Subscribe(16)
	defer unsubscribe()

	restart := make(chan struct{}, 1)
	if d.Remote != nil {
		go d.watchRemote(ctx, restart, logger)
	}

	var tick <-chan time.Time
	if d.Interval > 0 {
		ticker := time.NewTicker(d.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	lastRev := d.Store.Revision()
	currentID := d.Syncer.Identifier()
	identifierChanged := func(id string) {
		if id == currentID {
			return
		}
		currentID = id
		select {
		case restart <- struct{}{}:
		default:
		}
	}

	// A file event may be the Syncer's own apply landing before its
	// CollectionChanged event. While an apply is in progress the decision
	// waits for the next event.
	pendingFile := false
	checkRevision := func() {
		if !pendingFile {
			return
		}
		st := d.Syncer.Status()
		if st.Applying {
			return
		}
		pendingFile = false
		rev := d.Store.Revision()
		if rev == lastRev {
			return
		}
		lastRev = rev
		if rev == st.Revision {
			return
		}
		d.Syncer.Trigger(qsync.ReasonMutation)
	}

	logger.Info("daemon started", "sync_id", currentID, "interval", d.Interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopped")
			return nil

		case _, ok := <-fileEvents:
			if !ok {
				fileEvents = nil
				continue
			}
			if stored := identity.Normalize(d.Store.SyncID()); stored != d.Syncer.Identifier() {
				logger.Info("sync id changed on disk", "sync_id", stored)
				d.Syncer.SetIdentifier(stored)
				identifierChanged(stored)
			}
			pendingFile = true
			checkRevision()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case qsync.CollectionChanged:
				if ev.Status.Revision != 0 {
					lastRev = ev.Status.Revision
				} else {
					lastRev = d.Store.Revision()
				}
				logger.Info("collection updated", "reports", len(ev.Reports))
			case qsync.StatusChanged:
				identifierChanged(ev.Status.Identifier)
				if ev.Status.State == qsync.StateError {
					logger.Warn("sync failed", "sync_id", ev.Status.Identifier, "reason", ev.Reason, "err", ev.Status.LastError)
				} else {
					logger.Debug("sync status", "state", ev.Status.State, "reason", ev.Reason)
				}
			}
			checkRevision()

		case <-tick:
			checkRevision()
			d.Syncer.Trigger(qsync.ReasonInterval)
		}
	}
}

// watchRemote follows the change feed of the current identifier, triggering
// a cycle for every write made by another device. It reconnects after
// failures and re-subscribes when the identifier changes.
func (d *Daemon) watchRemote(ctx context.Context, restart <-chan struct{}, logger *slog.Logger) {
	reconnect := d.Reconnect
	if reconnect <= 0 {
		reconnect = DefaultReconnect
	}
	pause := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-restart:
		case <-time.After(reconnect):
		}
		return true
	}

	for {
		id := d.Syncer.Identifier()
		if id == "" {
			select {
			case <-ctx.Done():
				return
			case <-restart:
				continue
			}
		}

		wctx, cancel := context.WithCancel(ctx)
		changes, err := d.Remote.Watch(wctx, d.Remote.NamespaceKey(id))
		if err != nil {
			cancel()
			logger.Warn("remote watch failed", "sync_id", id, "err", err)
			if !pause() {
				return
			}
			continue
		}
		logger.Debug("watching remote", "sync_id", id)

		if !d.follow(ctx, changes, restart, pause) {
			cancel()
			return
		}
		cancel()
	}
}

// follow forwards changes until the feed drops or a restart arrives.
// It returns false once ctx is done.
func (d *Daemon) follow(ctx context.Context, changes <-chan syncclient.Change, restart <-chan struct{}, pause func() bool) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-restart:
			return true
		case c, ok := <-changes:
			if !ok {
				return pause()
			}
			if c.DeviceID != "" && c.DeviceID == d.DeviceID {
				continue
			}
			d.Syncer.Trigger(qsync.ReasonRemote)
		}
	}
}
