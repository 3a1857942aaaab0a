// Package serverdb stores whole-value JSON documents by bucket and key for the
// reference KV server.
package serverdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3  = "sqlite3" // github.com/mattn/go-sqlite3, cgo
	DriverPostgres = "postgres"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Entry is one stored value.
type Entry struct {
	Bucket    string
	Key       string
	Value     []byte
	Version   int64
	DeviceID  string
	UpdatedAt time.Time
}

// ServerDB wraps the server database connection
type ServerDB struct {
	conn   *sql.DB
	driver string
}

// Open opens the server database with the given driver and creates the schema.
// For the SQLite drivers dsn is a file path; its directory is created.
func Open(driver, dsn string) (*ServerDB, error) {
	switch driver {
	case DriverSQLite, DriverSQLite3:
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db := &ServerDB{conn: conn, driver: driver}

	if db.isSQLite() {
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
		conn.Exec("PRAGMA synchronous=NORMAL")
	}

	for _, stmt := range serverSchema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	if err := db.setSchemaVersion(ServerSchemaVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set schema version: %w", err)
	}
	return db, nil
}

// Driver returns the database/sql driver name in use.
func (db *ServerDB) Driver() string { return db.driver }

// Ping checks the database connection is alive.
func (db *ServerDB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close checkpoints the WAL (SQLite) and closes the database connection.
func (db *ServerDB) Close() error {
	if db.isSQLite() {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return db.conn.Close()
}

// Get returns the entry stored under bucket/key, or ErrNotFound.
func (db *ServerDB) Get(ctx context.Context, bucket, key string) (*Entry, error) {
	e := &Entry{Bucket: bucket, Key: key}
	var value, updated string
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT value, version, device_id, updated_at FROM kv WHERE bucket = ? AND key = ?`),
		bucket, key).Scan(&value, &e.Version, &e.DeviceID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	e.Value = []byte(value)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return e, nil
}

// Put replaces the value under bucket/key and bumps its version.
func (db *ServerDB) Put(ctx context.Context, bucket, key string, value []byte, deviceID string) (*Entry, error) {
	now := time.Now().UTC()
	e := &Entry{Bucket: bucket, Key: key, Value: value, DeviceID: deviceID, UpdatedAt: now}
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		INSERT INTO kv (bucket, key, value, version, device_id, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (bucket, key) DO UPDATE SET
			value = excluded.value,
			version = kv.version + 1,
			device_id = excluded.device_id,
			updated_at = excluded.updated_at
		RETURNING version`),
		bucket, key, string(value), deviceID, now.Format(time.RFC3339Nano)).Scan(&e.Version)
	if err != nil {
		return nil, fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return e, nil
}

// Count returns the number of stored keys across all buckets.
func (db *ServerDB) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count keys: %w", err)
	}
	return n, nil
}

func (db *ServerDB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(db.rebind(`
		INSERT INTO schema_info (key, value) VALUES ('version', ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		strconv.Itoa(version))
	return err
}

func (db *ServerDB) isSQLite() bool {
	return db.driver == DriverSQLite || db.driver == DriverSQLite3
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (db *ServerDB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
