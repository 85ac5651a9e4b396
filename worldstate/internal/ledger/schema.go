package ledger

import "database/sql"

// Schema is the persisted dedup ledger layout. Deleting the database file
// resets all dedup memory.
const Schema = `
-- One row per announced entity. Never un-marked except by Reset or Compact.
CREATE TABLE IF NOT EXISTS pushed_markers (
    key        TEXT PRIMARY KEY,
    domain     TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pushed_markers_domain ON pushed_markers(domain, created_at);

-- Single superseding value per slot (Earth cycle keeps only the most
-- recently announced phase, not a growing set).
CREATE TABLE IF NOT EXISTS last_values (
    name       TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// ApplySchema applies the ledger schema to a database. Idempotent.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
