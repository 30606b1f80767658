// Package results persists call outcomes to a local SQLite database. The
// orchestrator records every finished call; the health endpoint reads back
// the most recent ones.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	number      TEXT    NOT NULL,
	started_at  TEXT    NOT NULL,
	duration_s  REAL    NOT NULL,
	listened_s  REAL    NOT NULL,
	opening_s   REAL    NOT NULL DEFAULT 0,
	outcome     TEXT    NOT NULL,
	interest    INTEGER NOT NULL,
	band        TEXT    NOT NULL,
	summary     TEXT    NOT NULL DEFAULT '',
	transcript  TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls(started_at);
`

// Result is one finished call.
type Result struct {
	// ID is assigned by the store; zero until recorded.
	ID int64
	// Number is the dialed number.
	Number string
	// StartedAt is when the callee picked up.
	StartedAt time.Time
	// Duration is the total call length.
	Duration time.Duration
	// Listened is how long the callee heard the opening message.
	Listened time.Duration
	// Opening is the opening message's full length; zero when unknown.
	Opening time.Duration
	// Band groups calls by how much of the opening was heard. Computed by
	// the store on Record; see [ListenedBand].
	Band string
	// Outcome is the analysis result label ("interested", "callback", ...).
	Outcome string
	// Interest is the callee's interest level in [0, 100].
	Interest int
	// Summary is the one-sentence analysis summary.
	Summary string
	// Transcript is the full conversation, one line per turn.
	Transcript string
}

// ListenedBand maps the share of the opening message a callee heard to a
// reporting band: under 20% "low", up to 60% "medium", above that "high".
// Returns "unknown" when the opening length was never determined.
func ListenedBand(listened, opening time.Duration) string {
	if opening <= 0 {
		return "unknown"
	}
	pct := 100 * listened.Seconds() / opening.Seconds()
	switch {
	case pct < 20:
		return "low"
	case pct <= 60:
		return "medium"
	default:
		return "high"
	}
}

// Store persists call results in SQLite. Safe for concurrent use; database/sql
// serialises access to the single connection modernc.org/sqlite provides.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the result database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init results schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one call result, computing its listened band and filling in
// its ID.
func (s *Store) Record(ctx context.Context, r *Result) error {
	r.Band = ListenedBand(r.Listened, r.Opening)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (number, started_at, duration_s, listened_s, opening_s, outcome, interest, band, summary, transcript)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Number,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.Duration.Seconds(),
		r.Listened.Seconds(),
		r.Opening.Seconds(),
		r.Outcome,
		r.Interest,
		r.Band,
		r.Summary,
		r.Transcript,
	)
	if err != nil {
		return fmt.Errorf("record call result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("record call result: %w", err)
	}
	r.ID = id
	return nil
}

// Recent returns the n most recently started calls, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, started_at, duration_s, listened_s, opening_s, band, outcome, interest, summary, transcript
		FROM calls ORDER BY started_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r         Result
			startedAt string
			duration  float64
			listened  float64
			opening   float64
		)
		if err := rows.Scan(&r.ID, &r.Number, &startedAt, &duration, &listened, &opening,
			&r.Band, &r.Outcome, &r.Interest, &r.Summary, &r.Transcript); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			r.StartedAt = t
		}
		r.Duration = time.Duration(duration * float64(time.Second))
		r.Listened = time.Duration(listened * float64(time.Second))
		r.Opening = time.Duration(opening * float64(time.Second))
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
