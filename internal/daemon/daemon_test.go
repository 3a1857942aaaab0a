package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qsync "github.com/bermanqa/qlog/internal/sync"
	"github.com/bermanqa/qlog/internal/syncclient"
)

type fakeSyncer struct {
	mu       sync.Mutex
	id       string
	triggers []qsync.Reason
	setIDs   []string
	status   qsync.Snapshot
	events   chan qsync.Event
}

func newFakeSyncer(id string) *fakeSyncer {
	return &fakeSyncer{id: id, events: make(chan qsync.Event, 16)}
}

func (f *fakeSyncer) Trigger(r qsync.Reason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, r)
}

func (f *fakeSyncer) Identifier() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeSyncer) SetIdentifier(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
	f.setIDs = append(f.setIDs, id)
}

func (f *fakeSyncer) Status() qsync.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSyncer) setStatus(st qsync.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
}

func (f *fakeSyncer) Subscribe(int) (<-chan qsync.Event, func()) {
	return f.events, func() {}
}

func (f *fakeSyncer) count(r qsync.Reason) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, got := range f.triggers {
		if got == r {
			n++
		}
	}
	return n
}

type fakeStore struct {
	rev    atomic.Int64
	syncID atomic.Value
}

func newFakeStore(id string) *fakeStore {
	s := &fakeStore{}
	s.syncID.Store(id)
	return s
}

func (s *fakeStore) Revision() int64 { return s.rev.Load() }
func (s *fakeStore) SyncID() string  { return s.syncID.Load().(string) }

type fakeRemote struct {
	mu    sync.Mutex
	keys  []string
	feeds chan chan syncclient.Change
	fail  error
}

func (r *fakeRemote) NamespaceKey(id string) string { return "reports_" + id }

func (r *fakeRemote) Watch(ctx context.Context, key string) (<-chan syncclient.Change, error) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	ch := make(chan syncclient.Change, 4)
	r.feeds <- ch
	return ch, nil
}

func (r *fakeRemote) watchedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startDaemon(t *testing.T, d *Daemon, files <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, files) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func TestFileEventTriggersOnlyOnRevisionChange(t *testing.T) {
	syncer := newFakeSyncer("BAKERY")
	store := newFakeStore("BAKERY")
	files := make(chan struct{}, 1)
	startDaemon(t, &Daemon{Syncer: syncer, Store: store}, files)

	files <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	if n := syncer.count(qsync.ReasonMutation); n != 0 {
		t.Fatalf("touch without revision change triggered %d cycles", n)
	}

	store.rev.Store(1)
	files <- struct{}{}
	waitFor(t, "mutation trigger", func() bool { return syncer.count(qsync.ReasonMutation) == 1 })
}

func TestOwnApplyDoesNotRetrigger(t *testing.T) {
	syncer := newFakeSyncer("BAKERY")
	store := newFakeStore("BAKERY")
	files := make(chan struct{}, 1)
	startDaemon(t, &Daemon{Syncer: syncer, Store: store}, files)

	store.rev.Store(5)
	syncer.events <- qsync.Event{Kind: qsync.CollectionChanged, Status: qsync.Snapshot{Identifier: "BAKERY"}}
	time.Sleep(50 * time.Millisecond)
	files <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	if n := syncer.count(qsync.ReasonMutation); n != 0 {
		t.Errorf("applied merge should not trigger a mutation cycle, got %d", n)
	}
}

func TestFileEventDuringApplyWaitsForResult(t *testing.T) {
	tests := []struct {
		name     string
		storeRev int64
		want     int
	}{
		{"own write", 6, 0},
		{"edit after apply", 7, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := newFakeSyncer("BAKERY")
			store := newFakeStore("BAKERY")
			files := make(chan struct{}, 1)
			startDaemon(t, &Daemon{Syncer: syncer, Store: store}, files)

			// The apply has written revision 6 but not reported it yet.
			syncer.setStatus(qsync.Snapshot{Identifier: "BAKERY", State: qsync.StateSyncing, Applying: true})
			store.rev.Store(tt.storeRev)
			files <- struct{}{}
			time.Sleep(50 * time.Millisecond)
			if n := syncer.count(qsync.ReasonMutation); n != 0 {
				t.Fatalf("triggered %d cycles while applying", n)
			}

			done := qsync.Snapshot{Identifier: "BAKERY", State: qsync.StateSuccess, Revision: 6}
			syncer.setStatus(done)
			syncer.events <- qsync.Event{Kind: qsync.CollectionChanged, Status: done}
			syncer.events <- qsync.Event{Kind: qsync.StatusChanged, Status: done}
			if tt.want > 0 {
				waitFor(t, "mutation trigger", func() bool { return syncer.count(qsync.ReasonMutation) == tt.want })
			}
			time.Sleep(50 * time.Millisecond)
			if n := syncer.count(qsync.ReasonMutation); n != tt.want {
				t.Errorf("mutation triggers = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestSyncIDChangedOnDisk(t *testing.T) {
	syncer := newFakeSyncer("BAKERY")
	store := newFakeStore("BAKERY")
	files := make(chan struct{}, 1)
	startDaemon(t, &Daemon{Syncer: syncer, Store: store}, files)

	store.syncID.Store("shop7")
	files <- struct{}{}
	waitFor(t, "identifier switch", func() bool { return syncer.Identifier() == "SHOP7" })
}

func TestRemoteChangesTriggerCycles(t *testing.T) {
	syncer := newFakeSyncer("BAKERY")
	remote := &fakeRemote{feeds: make(chan chan syncclient.Change, 4)}
	startDaemon(t, &Daemon{Syncer: syncer, Store: newFakeStore("BAKERY"), Remote: remote, DeviceID: "me"}, nil)

	var feed chan syncclient.Change
	select {
	case feed = <-remote.feeds:
	case <-time.After(2 * time.Second):
		t.Fatal("remote watch not started")
	}
	if keys := remote.watchedKeys(); keys[0] != "reports_BAKERY" {
		t.Errorf("watched %v", keys)
	}

	feed <- syncclient.Change{Key: "reports_BAKERY", DeviceID: "me", Version: 1}
	feed <- syncclient.Change{Key: "reports_BAKERY", DeviceID: "other", Version: 2}
	waitFor(t, "remote trigger", func() bool { return syncer.count(qsync.ReasonRemote) == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := syncer.count(qsync.ReasonRemote); n != 1 {
		t.Errorf("own writes should be ignored, got %d triggers", n)
	}
}

func TestRemoteResubscribesOnIdentifierChange(t *testing.T) {
	syncer := newFakeSyncer("BAKERY")
	remote := &fakeRemote{feeds: make(chan chan syncclient.Change, 4)}
	startDaemon(t, &Daemon{Syncer: syncer, Store: newFakeStore("BAKERY"), Remote: remote, Reconnect: time.Hour}, nil)
	<-remote.feeds

	syncer.SetIdentifier("SHOP7")
	syncer.events <- qsync.Event{Kind: qsync.StatusChanged, Status: qsync.Snapshot{Identifier: "SHOP7"}, Reason: qsync.ReasonIdentity}

	select {
	case <-remote.feeds:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a new watch after identifier change")
	}
	keys := remote.watchedKeys()
	if keys[len(keys)-1] != "reports_SHOP7" {
		t.Errorf("watched %v", keys)
	}
}

func TestRemoteWatchRetries(t *testing.T) {
	syncer := newFakeSyncer("BAKERY")
	remote := &fakeRemote{fail: errors.New("refused")}
	startDaemon(t, &Daemon{Syncer: syncer, Store: newFakeStore("BAKERY"), Remote: remote, Reconnect: 10 * time.Millisecond}, nil)
	waitFor(t, "watch retries", func() bool { return len(remote.watchedKeys()) >= 3 })
}

func TestIntervalTriggers(t *testing.T) {
	syncer := newFakeSyncer("BAKERY")
	startDaemon(t, &Daemon{Syncer: syncer, Store: newFakeStore("BAKERY"), Interval: 10 * time.Millisecond}, nil)
	waitFor(t, "interval triggers", func() bool { return syncer.count(qsync.ReasonInterval) >= 2 })
}

func TestRunStopsWhenEventsClose(t *testing.T) {
	syncer := newFakeSyncer("")
	close(syncer.events)
	d := &Daemon{Syncer: syncer, Store: newFakeStore("")}
	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestFileWatcher(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(dir, "qlog.db")
	if err != nil {
		t.Fatalf("NewFileWatcher: %v", err)
	}
	defer fw.Close()

	if err := os.WriteFile(filepath.Join(dir, "qlog.db-wal"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fw.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("expected an event for the database file")
	}

	if err := fw.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestFileWatcherMissingDir(t *testing.T) {
	if _, err := NewFileWatcher(filepath.Join(t.TempDir(), "nope"), "qlog.db"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
