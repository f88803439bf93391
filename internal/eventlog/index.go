package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oddjobs/oj/internal/domain"
)

const defaultBusyTimeout = 5 * time.Second

// Index is a queryable secondary index of (seq, event_type, owner_id,
// created_at) rows, appended to on every WAL write (it is not rebuilt on
// snapshot load). It is never the source of truth (the WAL + fold is, per the
// single global invariant in spec.md §8) — it exists only so the debug
// HTTP surface can answer "show me job X's event history" without
// replaying the whole log, the same read-model-beside-write-model shape
// the teacher uses pervasively. Opened with the teacher's single-writer +
// WAL pragma idiom, generalised from internal/db/sqlite.go.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) <stateDir>/index.db and its schema.
func OpenIndex(stateDir string) (*Index, error) {
	path := filepath.Join(stateDir, "index.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: prepare index dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_cache=shared",
		path, int(defaultBusyTimeout/time.Millisecond),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open index db: %w", err)
	}
	// Single writer connection: serializes writes and avoids SQLITE_BUSY,
	// same rationale as the teacher's OpenSQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS event_index (
			seq        INTEGER PRIMARY KEY,
			event_type TEXT NOT NULL,
			owner_id   TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_event_index_owner ON event_index(owner_id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: create index schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Record appends one row per event into the side index, in the same
// critical section as the WAL append that produced them (see Log.Append),
// so it never diverges from the WAL's seq ordering.
func (idx *Index) Record(ctx context.Context, events []domain.Event) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO event_index (seq, event_type, owner_id, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		owner := ownerOf(e)
		if _, err := stmt.ExecContext(ctx, e.Seq, string(e.Kind), owner, e.At.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ownerOf extracts an owner string for indexing, where the event's payload
// carries one. Best-effort: events with no owner concept index with an
// empty owner_id.
func ownerOf(e domain.Event) string {
	switch p := e.Payload.(type) {
	case *domain.AgentSpawnedPayload:
		return p.Owner.String()
	case *domain.AgentSpawnFailedPayload:
		return p.Owner.String()
	case *domain.DecisionCreatedPayload:
		return p.Owner.String()
	case *domain.WorkspaceCreatedPayload:
		return p.Owner.String()
	case *domain.JobCreatedPayload:
		return domain.JobOwner(p.JobID).String()
	case *domain.JobAdvancedPayload:
		return domain.JobOwner(p.JobID).String()
	case *domain.CrewCreatedPayload:
		return domain.CrewOwner(p.CrewID).String()
	case *domain.CrewUpdatedPayload:
		return domain.CrewOwner(p.CrewID).String()
	}
	return ""
}

// EventsForOwner returns the rows indexed for the given owner string,
// newest first, used by the debug HTTP surface.
func (idx *Index) EventsForOwner(ctx context.Context, owner string, limit int) ([]IndexedEvent, error) {
	rows, err := idx.db.QueryContext(ctx,
		`SELECT seq, event_type, created_at FROM event_index WHERE owner_id = ? ORDER BY seq DESC LIMIT ?`,
		owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexedEvent
	for rows.Next() {
		var e IndexedEvent
		var createdAt string
		if err := rows.Scan(&e.Seq, &e.EventType, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// IndexedEvent is one row of the side index.
type IndexedEvent struct {
	Seq       uint64
	EventType string
	CreatedAt time.Time
}

func (idx *Index) Close() error {
	return idx.db.Close()
}
