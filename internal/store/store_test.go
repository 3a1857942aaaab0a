package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bermanqa/qlog/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rawPut(t *testing.T, s *Store, key, value string) {
	t.Helper()
	if err := s.withWriteLock(func(tx *sql.Tx) error { return put(tx, key, value) }); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func TestOpenCreatesDataDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, DirName, DBFile)); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if s.DataDir() != filepath.Join(dir, DirName) {
		t.Errorf("DataDir: got %s", s.DataDir())
	}
}

func TestLoadEmpty(t *testing.T) {
	s := openTestStore(t)
	got := s.Load()
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil collection, got %#v", got)
	}
}

func TestLoadCorruptIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed", "{bad json"},
		{"object", `{"id":"1"}`},
		{"string", `"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			rawPut(t, s, KeyReports, tt.raw)
			if got := s.Load(); len(got) != 0 {
				t.Fatalf("want empty, got %v", got)
			}
		})
	}
}

func TestSaveLoadRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reports := []models.Report{
		{ID: "200", ProductName: "Rye", Status: models.StatusSubmitted},
		{ID: "100", ProductName: "Challah", Status: models.StatusDone,
			Analysis: &models.Analysis{Category: "foreign object", Urgency: models.UrgencyHigh}},
	}
	if err := s.Save(reports); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got := s.Load()
	if len(got) != 2 || got[0].ID != "200" || got[1].Analysis == nil || got[1].Analysis.Urgency != models.UrgencyHigh {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestUpdateBumpsRevisionOnlyOnChange(t *testing.T) {
	s := openTestStore(t)

	if rev := s.Revision(); rev != 0 {
		t.Fatalf("initial revision: got %d", rev)
	}

	add := func(cur []models.Report) []models.Report {
		return append(cur, models.Report{ID: "1", ProductName: "Bun"})
	}
	if _, err := s.Update(add); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rev := s.Revision(); rev != 1 {
		t.Fatalf("revision after change: got %d, want 1", rev)
	}

	same := func(cur []models.Report) []models.Report { return cur }
	got, err := s.Update(same)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Update result: %v", got)
	}
	if rev := s.Revision(); rev != 1 {
		t.Fatalf("no-op update bumped revision to %d", rev)
	}
}

func TestUpdateConcurrent(t *testing.T) {
	s := openTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(func(cur []models.Report) []models.Report {
				return append(cur, models.Report{ID: models.NewReportID(time.UnixMilli(int64(1000 + i)))})
			})
			if err != nil {
				t.Errorf("Update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(s.Load()); got != n {
		t.Fatalf("lost updates: got %d reports, want %d", got, n)
	}
}

func TestSyncIDAndLastSync(t *testing.T) {
	s := openTestStore(t)

	if s.SyncID() != "" {
		t.Fatal("sync id should start empty")
	}
	if err := s.SetSyncID("BAKERY1"); err != nil {
		t.Fatalf("SetSyncID: %v", err)
	}
	if s.SyncID() != "BAKERY1" {
		t.Fatalf("SyncID: got %q", s.SyncID())
	}

	if _, ok := s.LastSyncAt(); ok {
		t.Fatal("last sync should be unset")
	}
	when := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	if err := s.SetLastSyncAt(when); err != nil {
		t.Fatalf("SetLastSyncAt: %v", err)
	}
	got, ok := s.LastSyncAt()
	if !ok || !got.Equal(when) {
		t.Fatalf("LastSyncAt: got %v %v", got, ok)
	}
}

func TestDeviceIDStable(t *testing.T) {
	s := openTestStore(t)
	a, err := s.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID: %v", err)
	}
	b, err := s.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID: %v", err)
	}
	if a == "" || a != b {
		t.Fatalf("device id not stable: %q vs %q", a, b)
	}
}

func TestOpenWithCgoDriver(t *testing.T) {
	s, err := OpenWithDriver(t.TempDir(), "sqlite3")
	if err != nil {
		t.Skipf("cgo sqlite3 driver unavailable: %v", err)
	}
	defer s.Close()

	if err := s.Save([]models.Report{{ID: "5"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := s.Load(); len(got) != 1 {
		t.Fatalf("Load: %v", got)
	}
}

func TestWriteLockerTimeout(t *testing.T) {
	dir := t.TempDir()

	holder := newWriteLocker(dir)
	if err := holder.acquire(time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer holder.release()

	waiter := newWriteLocker(dir)
	err := waiter.acquire(30 * time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("want ErrLockTimeout, got %v", err)
	}
}
