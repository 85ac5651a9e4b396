// Package ledger is the durable dedup store: a mapping from dedup key to
// pushed marker that survives restarts.
//
// All writes produced by one poll cycle are committed in a single
// transaction. A crash mid-cycle can at worst lose that cycle's new
// markers (causing one re-notification on the next successful cycle),
// never corrupt prior entries.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tennolabs/tennowatch/dbopen"
	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// Mark is one pushed-marker write.
type Mark struct {
	Key    string
	Domain snap.Domain
	At     time.Time
}

// Value is one last-value write. The previous value for the slot is
// superseded.
type Value struct {
	Name  string
	Value string
	At    time.Time
}

// Batch collects the writes of one poll cycle.
type Batch struct {
	Marks  []Mark
	Values []Value
}

// Empty reports whether the batch has no writes.
func (b *Batch) Empty() bool {
	return len(b.Marks) == 0 && len(b.Values) == 0
}

// AddMark appends a pushed-marker write.
func (b *Batch) AddMark(key string, domain snap.Domain, at time.Time) {
	b.Marks = append(b.Marks, Mark{Key: key, Domain: domain, At: at})
}

// SetValue appends a last-value write.
func (b *Batch) SetValue(name, value string, at time.Time) {
	b.Values = append(b.Values, Value{Name: name, Value: value, At: at})
}

// Ledger wraps an already-opened ledger database.
type Ledger struct {
	db *sql.DB
}

// New creates a Ledger from an open database connection.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Has reports whether key has been marked pushed.
func (l *Ledger) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM pushed_markers WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: has %s: %w", key, err)
	}
	return true, nil
}

// LastValue returns the stored value for a slot, or "" if none is set.
func (l *Ledger) LastValue(ctx context.Context, name string) (string, error) {
	var v string
	err := l.db.QueryRowContext(ctx,
		`SELECT value FROM last_values WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: last value %s: %w", name, err)
	}
	return v, nil
}

// Commit durably applies one cycle's writes in a single transaction.
// Marks are idempotent: re-marking an existing key keeps the original
// created_at, so compaction retention is measured from first announcement.
func (l *Ledger) Commit(ctx context.Context, b *Batch) error {
	if b.Empty() {
		return nil
	}
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		for _, m := range b.Marks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO pushed_markers (key, domain, created_at) VALUES (?,?,?)
				 ON CONFLICT(key) DO NOTHING`,
				m.Key, string(m.Domain), m.At.Unix()); err != nil {
				return fmt.Errorf("ledger: mark %s: %w", m.Key, err)
			}
		}
		for _, v := range b.Values {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO last_values (name, value, updated_at) VALUES (?,?,?)
				 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				v.Name, v.Value, v.At.Unix()); err != nil {
				return fmt.Errorf("ledger: value %s: %w", v.Name, err)
			}
		}
		return nil
	})
}

// Compact deletes markers for the given domains older than cutoff, except
// markers in the live set. Age alone is not proof of expiry: an entity can
// outlive the retention window while still present in the feed, and dropping
// its marker would re-announce it. Only keys both old and absent from live
// are deleted; identifiers of entities gone from the feed are never reused,
// so removal cannot cause a duplicate notification. Last-value slots are
// never compacted. Returns the number of markers removed.
func (l *Ledger) Compact(ctx context.Context, domains []snap.Domain, cutoff time.Time, live []string) (int64, error) {
	query := `DELETE FROM pushed_markers WHERE domain = ? AND created_at < ?`
	if len(live) > 0 {
		query += ` AND key NOT IN (?` + strings.Repeat(",?", len(live)-1) + `)`
	}

	var total int64
	for _, d := range domains {
		args := make([]any, 0, 2+len(live))
		args = append(args, string(d), cutoff.Unix())
		for _, k := range live {
			args = append(args, k)
		}
		res, err := l.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("ledger: compact %s: %w", d, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Reset clears all dedup memory. Manual operation only.
func (l *Ledger) Reset(ctx context.Context) error {
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pushed_markers`); err != nil {
			return fmt.Errorf("ledger: reset markers: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM last_values`); err != nil {
			return fmt.Errorf("ledger: reset values: %w", err)
		}
		return nil
	})
}

// Stats returns the marker count per domain.
func (l *Ledger) Stats(ctx context.Context) (map[snap.Domain]int64, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT domain, COUNT(*) FROM pushed_markers GROUP BY domain`)
	if err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}
	defer rows.Close()

	out := make(map[snap.Domain]int64)
	for rows.Next() {
		var d string
		var n int64
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("ledger: stats scan: %w", err)
		}
		out[snap.Domain(d)] = n
	}
	return out, rows.Err()
}
