package serverdb

// ServerSchemaVersion is the current server database schema version
const ServerSchemaVersion = 1

// The statements avoid dialect-specific types so the same schema runs on
// SQLite and PostgreSQL. Timestamps are RFC 3339 text.
var serverSchema = []string{
	`CREATE TABLE IF NOT EXISTS kv (
    bucket TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    version BIGINT NOT NULL DEFAULT 1,
    device_id TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    PRIMARY KEY (bucket, key)
)`,
	`CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv(updated_at)`,
}
