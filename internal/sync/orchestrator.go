// Package sync decides when the local report collection is reconciled with the
// shared remote copy, and applies the results.
//
// A cycle fetches the remote collection, merges it with local, pushes the
// merge back and then folds it into the local store. Triggers are debounced.
// At most one cycle per identifier is in flight; a trigger arriving meanwhile
// schedules exactly one follow-up cycle. Every cycle carries a sequence number
// and the identifier it started with, and its result is applied only when the
// identifier is unchanged and no later cycle has been applied already.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bermanqa/qlog/internal/clock"
	"github.com/bermanqa/qlog/internal/merge"
	"github.com/bermanqa/qlog/internal/models"
	"github.com/bermanqa/qlog/internal/syncclient"
)

// DefaultDebounce is the quiet period before a triggered cycle starts.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrLocalOnly is returned by SyncNow when no identifier is set.
	ErrLocalOnly = errors.New("sync id not set (local-only mode)")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sync orchestrator closed")

	errStale = errors.New("cycle superseded")
)

// Store is the local collection as seen by the orchestrator.
type Store interface {
	Load() []models.Report
	Update(fn func([]models.Report) []models.Report) ([]models.Report, error)
	SetLastSyncAt(time.Time) error
}

// revisioner is implemented by stores that count collection writes.
type revisioner interface {
	Revision() int64
}

// Remote is the shared key-value bucket.
type Remote interface {
	NamespaceKey(identifier string) string
	Fetch(ctx context.Context, key string) ([]models.Report, error)
	Upsert(ctx context.Context, key string, reports []models.Report) error
}

// Options holds the orchestrator's collaborators. Store and Remote are required.
type Options struct {
	Store      Store
	Remote     Remote
	Clock      clock.Clock
	Retry      RetryPolicy
	Debounce   time.Duration
	Logger     *slog.Logger
	Identifier string
}

type cycle struct {
	seq        uint64
	identifier string
	reason     Reason
}

// Orchestrator runs sync cycles. It is safe for concurrent use.
type Orchestrator struct {
	store    Store
	remote   Remote
	clock    clock.Clock
	retry    RetryPolicy
	debounce time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// applyMu orders the gate check and local write of finishing cycles.
	applyMu sync.Mutex

	mu            sync.Mutex
	identifier    string
	state         State
	lastErr       error
	lastSuccess   time.Time
	seq           uint64
	appliedSeq    uint64
	revision      int64
	applying      bool
	timer         clock.Timer
	timerGen      uint64
	pendingReason Reason
	inflight      map[string]bool
	dirty         map[string]bool
	active        int
	idle          chan struct{}
	subs          map[int]chan Event
	nextSub       int
	closed        bool
}

// New creates an orchestrator in the Idle state. No cycle starts until a
// trigger arrives.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry.MaxAttempts == 0 && opts.Retry.Backoff == nil {
		opts.Retry = DefaultRetryPolicy()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:      opts.Store,
		remote:     opts.Remote,
		clock:      opts.Clock,
		retry:      opts.Retry,
		debounce:   opts.Debounce,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		identifier: opts.Identifier,
		state:      StateIdle,
		inflight:   make(map[string]bool),
		dirty:      make(map[string]bool),
		subs:       make(map[int]chan Event),
	}
}

// Trigger requests a debounced cycle. Repeated triggers within the quiet
// period collapse into one. Ignored in local-only mode.
func (o *Orchestrator) Trigger(reason Reason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.triggerLocked(reason)
}

func (o *Orchestrator) triggerLocked(reason Reason) {
	if o.closed || o.identifier == "" {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.pendingReason = reason
	o.timerGen++
	gen := o.timerGen
	o.timer = o.clock.AfterFunc(o.debounce, func() { o.fire(gen) })
}

// fire runs when the debounce period ends. A timer replaced or stopped after
// it began firing is recognized by its generation and ignored.
func (o *Orchestrator) fire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer == nil || gen != o.timerGen {
		return
	}
	o.timer = nil
	o.startLocked(o.pendingReason)
	o.notifyIdleLocked()
}

// SyncNow starts a cycle immediately, skipping the debounce. If a cycle for
// the current identifier is already running, one follow-up is scheduled.
func (o *Orchestrator) SyncNow() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.identifier == "" {
		return ErrLocalOnly
	}
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.startLocked(ReasonManual)
	return nil
}

// SetIdentifier switches sync groups. Empty enters local-only mode: pending
// work is cancelled and the state returns to Idle. In-flight cycles for the
// previous identifier finish but their results are discarded.
func (o *Orchestrator) SetIdentifier(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.identifier = id
	if id == "" {
		if o.timer != nil {
			o.timer.Stop()
			o.timer = nil
		}
		clear(o.dirty)
		o.lastErr = nil
		o.setStateLocked(StateIdle, ReasonIdentity)
		o.notifyIdleLocked()
		return
	}
	o.triggerLocked(ReasonIdentity)
}

// Identifier returns the active sync identifier.
func (o *Orchestrator) Identifier() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.identifier
}

// Status returns the current snapshot.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:       o.state,
		Identifier:  o.identifier,
		LastError:   o.lastErr,
		LastSuccess: o.lastSuccess,
		Seq:         o.appliedSeq,
		Revision:    o.revision,
		Applying:    o.applying,
	}
}

func (o *Orchestrator) startLocked(reason Reason) {
	id := o.identifier
	if o.closed || id == "" {
		return
	}
	if o.inflight[id] {
		o.dirty[id] = true
		o.logger.Debug("sync: cycle in flight, coalescing", "reason", reason)
		return
	}
	o.inflight[id] = true
	o.seq++
	c := cycle{seq: o.seq, identifier: id, reason: reason}
	o.active++
	o.setStateLocked(StateSyncing, reason)
	o.logger.Debug("sync: cycle start", "seq", c.seq, "reason", reason)
	go o.run(c)
}

func (o *Orchestrator) run(c cycle) {
	merged, err := o.attempt(c)
	o.finish(c, merged, err)
}

// stale reports whether c can no longer be applied.
func (o *Orchestrator) stale(c cycle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.staleLocked(c)
}

func (o *Orchestrator) staleLocked(c cycle) bool {
	return o.closed || o.identifier != c.identifier || c.seq <= o.appliedSeq
}

func (o *Orchestrator) attempt(c cycle) ([]models.Report, error) {
	for n := 1; ; n++ {
		if o.stale(c) {
			return nil, errStale
		}
		merged, err := o.roundTrip(o.ctx, c)
		if err == nil {
			return merged, nil
		}
		if !o.retry.shouldRetry(n, err) {
			return nil, err
		}
		wait := o.retry.wait(n)
		o.logger.Warn("sync: attempt failed, retrying", "seq", c.seq, "attempt", n, "wait", wait, "err", err)
		select {
		case <-o.clock.After(wait):
		case <-o.ctx.Done():
			return nil, o.ctx.Err()
		}
	}
}

// roundTrip is one fetch-merge-push exchange. Local state is not touched.
func (o *Orchestrator) roundTrip(ctx context.Context, c cycle) ([]models.Report, error) {
	key := o.remote.NamespaceKey(c.identifier)
	local := o.store.Load()

	remote, err := o.remote.Fetch(ctx, key)
	switch {
	case errors.Is(err, syncclient.ErrMalformedPayload):
		o.logger.Warn("sync: remote payload malformed, treating as empty", "key", key, "err", err)
		remote = nil
	case err != nil:
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}

	merged := merge.Merge(local, remote)

	// Skip rewriting an identical value so peers watching the key are not
	// woken by a no-op. An absent remote is always written.
	if len(remote) > 0 && merge.Equal(merged, remote) {
		return merged, nil
	}
	if err := o.remote.Upsert(ctx, key, merged); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", key, err)
	}
	return merged, nil
}

func (o *Orchestrator) finish(c cycle, merged []models.Report, err error) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	o.mu.Lock()
	apply := err == nil && !o.staleLocked(c)
	o.applying = apply
	o.mu.Unlock()

	var (
		applied  []models.Report
		changed  bool
		ahead    bool
		rev      int64
		applyErr error
		now      = o.clock.Now()
	)
	if apply {
		applied, changed, ahead, apply, applyErr = o.apply(c, merged)
		if r, ok := o.store.(revisioner); ok && changed && applyErr == nil {
			rev = r.Revision()
		}
		if apply && applyErr == nil {
			if err := o.store.SetLastSyncAt(now); err != nil {
				o.logger.Warn("sync: record last sync time", "err", err)
			}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, c.identifier)
	o.active--
	o.applying = false
	if rev != 0 {
		o.revision = rev
	}
	current := !o.closed && o.identifier == c.identifier

	switch {
	case apply && applyErr == nil:
		o.lastSuccess = now
		o.lastErr = nil
		if ahead && current {
			// Local edits landed after the fetch and are not on the remote yet.
			o.dirty[c.identifier] = true
		}
		if changed {
			o.emitLocked(Event{Kind: CollectionChanged, Status: o.snapshotLocked(), Reason: c.reason, Reports: applied})
		}
		if current {
			o.setStateLocked(StateSuccess, c.reason)
		}
		o.logger.Info("sync: cycle applied", "seq", c.seq, "reports", len(applied), "changed", changed)
	case apply:
		o.lastErr = applyErr
		if current {
			o.setStateLocked(StateError, c.reason)
		}
		o.logger.Error("sync: apply merged collection", "seq", c.seq, "err", applyErr)
	case err != nil && !errors.Is(err, errStale) && current && c.seq > o.appliedSeq:
		o.lastErr = err
		o.setStateLocked(StateError, c.reason)
		o.logger.Warn("sync: cycle failed", "seq", c.seq, "err", err)
	default:
		o.logger.Debug("sync: cycle discarded", "seq", c.seq, "identifier", c.identifier, "err", err)
	}

	if o.dirty[c.identifier] {
		delete(o.dirty, c.identifier)
		if current {
			o.startLocked(ReasonCoalesced)
		}
	}
	o.notifyIdleLocked()
}

// apply folds merged into the current local collection so edits made while
// the cycle was in flight survive; ahead reports such edits. The gate is
// checked again once the store write lock is held, and ok is false when the
// cycle went stale while waiting.
func (o *Orchestrator) apply(c cycle, merged []models.Report) (out []models.Report, changed, ahead, ok bool, err error) {
	out, err = o.store.Update(func(cur []models.Report) []models.Report {
		o.mu.Lock()
		ok = !o.staleLocked(c)
		if ok {
			o.appliedSeq = c.seq
		}
		o.mu.Unlock()
		if !ok {
			return cur
		}
		next := merge.Merge(cur, merged)
		changed = !merge.Equal(cur, next)
		ahead = !merge.Equal(next, merged)
		if !changed {
			return cur
		}
		return next
	})
	if err != nil {
		// Update can fail before fn runs.
		ok = ok || !o.stale(c)
	}
	return out, changed, ahead, ok, err
}

func (o *Orchestrator) idleLocked() bool {
	return o.active == 0 && o.timer == nil && len(o.dirty) == 0
}

func (o *Orchestrator) notifyIdleLocked() {
	if o.idle != nil && o.idleLocked() {
		close(o.idle)
		o.idle = nil
	}
}

// Wait blocks until no cycle is running, debounced or queued.
func (o *Orchestrator) Wait(ctx context.Context) error {
	for {
		o.mu.Lock()
		if o.idleLocked() || o.closed {
			o.mu.Unlock()
			return nil
		}
		if o.idle == nil {
			o.idle = make(chan struct{})
		}
		ch := o.idle
		o.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops timers, abandons retries and closes subscriber channels.
// Cycles already in flight finish without applying.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.cancel()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
	if o.idle != nil {
		close(o.idle)
		o.idle = nil
	}
}
