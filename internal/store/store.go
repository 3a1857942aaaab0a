// Package store persists the on-device report collection and sync state in a
// small SQLite key-value table under <baseDir>/.qlog.
package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bermanqa/qlog/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DirName is the per-workspace data directory.
	DirName = ".qlog"
	// DBFile is the database file inside DirName.
	DBFile = "qlog.db"

	// DefaultDriver is the pure-Go SQLite driver; "sqlite3" selects the cgo one.
	DefaultDriver = "sqlite"
)

// Persisted keys.
const (
	KeyReports    = "reports"
	KeySyncID     = "sync_id"
	KeyLastSyncAt = "last_sync_at"
	KeyRevision   = "revision"
	KeyDeviceID   = "device_id"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps the database connection and the cross-process write lock.
type Store struct {
	conn    *sql.DB
	baseDir string
	logger  *slog.Logger

	// mu serializes writers in this process; the file lock covers other processes.
	mu          sync.Mutex
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for recovered read errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLockTimeout bounds how long writers wait for the file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// Open opens or creates the store under baseDir using the pure-Go driver.
func Open(baseDir string, opts ...Option) (*Store, error) {
	return OpenWithDriver(baseDir, DefaultDriver, opts...)
}

// OpenWithDriver opens the store with a specific database/sql driver name.
func OpenWithDriver(baseDir, driver string, opts ...Option) (*Store, error) {
	dataDir := filepath.Join(baseDir, DirName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open(driver, filepath.Join(dataDir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=2000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{
		conn:        conn,
		baseDir:     baseDir,
		logger:      slog.Default(),
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// BaseDir returns the workspace directory the store was opened in.
func (s *Store) BaseDir() string { return s.baseDir }

// DataDir returns the .qlog directory holding the database and lock file.
func (s *Store) DataDir() string { return filepath.Join(s.baseDir, DirName) }

func (s *Store) get(key string) (string, bool, error) {
	var v string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func put(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, key, value)
	return err
}

// withWriteLock runs fn inside a transaction while holding both write locks.
func (s *Store) withWriteLock(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locker := newWriteLocker(s.DataDir())
	if err := locker.acquire(s.lockTimeout); err != nil {
		return err
	}
	defer locker.release()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the persisted collection. A missing, corrupt or unreadable entry
// yields an empty collection; the problem is logged, never returned.
func (s *Store) Load() []models.Report {
	raw, ok, err := s.get(KeyReports)
	if err != nil {
		s.logger.Warn("read reports failed, using empty collection", "err", err)
		return []models.Report{}
	}
	if !ok {
		return []models.Report{}
	}
	return s.decode(raw)
}

func (s *Store) decode(raw string) []models.Report {
	var reports []models.Report
	if err := json.Unmarshal([]byte(raw), &reports); err != nil {
		s.logger.Warn("stored reports are corrupt, using empty collection", "err", err)
		return []models.Report{}
	}
	if reports == nil {
		reports = []models.Report{}
	}
	return reports
}

// Save replaces the persisted collection and bumps the revision.
func (s *Store) Save(reports []models.Report) error {
	data, err := encode(reports)
	if err != nil {
		return err
	}
	return s.withWriteLock(func(tx *sql.Tx) error {
		return writeReports(tx, data)
	})
}

// Update loads the collection, applies fn and saves the result, all under the
// write lock. When fn returns a collection identical to the stored one nothing
// is written and the revision is unchanged.
func (s *Store) Update(fn func([]models.Report) []models.Report) ([]models.Report, error) {
	var next []models.Report
	err := s.withWriteLock(func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRow(`SELECT value FROM kv WHERE key = ?`, KeyReports).Scan(&raw)
		var cur []models.Report
		switch {
		case errors.Is(err, sql.ErrNoRows):
			cur = []models.Report{}
		case err != nil:
			s.logger.Warn("read reports failed, using empty collection", "err", err)
			cur = []models.Report{}
		default:
			cur = s.decode(raw)
		}

		next = fn(cur)
		data, err := encode(next)
		if err != nil {
			return err
		}
		if raw != "" && bytes.Equal(data, []byte(raw)) {
			return nil
		}
		return writeReports(tx, data)
	})
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = []models.Report{}
	}
	return next, nil
}

func encode(reports []models.Report) ([]byte, error) {
	if reports == nil {
		reports = []models.Report{}
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return nil, fmt.Errorf("marshal reports: %w", err)
	}
	return data, nil
}

func writeReports(tx *sql.Tx, data []byte) error {
	if err := put(tx, KeyReports, string(data)); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}
	_, err := tx.Exec(`INSERT INTO kv (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(kv.value AS INTEGER) + 1 AS TEXT), updated_at = CURRENT_TIMESTAMP`, KeyRevision)
	if err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	return nil
}

// Revision counts collection writes. Watchers compare it to tell real changes
// from their own no-op touches.
func (s *Store) Revision() int64 {
	raw, ok, err := s.get(KeyRevision)
	if err != nil || !ok {
		return 0
	}
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}

// SyncID returns the stored sync identifier, empty when unset.
func (s *Store) SyncID() string {
	raw, _, err := s.get(KeySyncID)
	if err != nil {
		s.logger.Warn("read sync id failed", "err", err)
		return ""
	}
	return raw
}

// SetSyncID persists the sync identifier. The caller normalizes it.
func (s *Store) SetSyncID(id string) error {
	return s.withWriteLock(func(tx *sql.Tx) error {
		return put(tx, KeySyncID, id)
	})
}

// LastSyncAt returns the time of the last applied sync.
func (s *Store) LastSyncAt() (time.Time, bool) {
	raw, ok, err := s.get(KeyLastSyncAt)
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetLastSyncAt records the time of a successful sync.
func (s *Store) SetLastSyncAt(t time.Time) error {
	return s.withWriteLock(func(tx *sql.Tx) error {
		return put(tx, KeyLastSyncAt, t.UTC().Format(time.RFC3339Nano))
	})
}

// DeviceID returns this installation's id, generating one on first use.
func (s *Store) DeviceID() (string, error) {
	raw, ok, err := s.get(KeyDeviceID)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if ok && raw != "" {
		return raw, nil
	}

	id := uuid.NewString()
	err = s.withWriteLock(func(tx *sql.Tx) error {
		// another process may have won the race
		var existing string
		if err := tx.QueryRow(`SELECT value FROM kv WHERE key = ?`, KeyDeviceID).Scan(&existing); err == nil && existing != "" {
			id = existing
			return nil
		}
		return put(tx, KeyDeviceID, id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
