package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/intonelabs/intone/internal/config"
	_ "modernc.org/sqlite"
)

// Run is one recorded render run.
type Run struct {
	RunID        string
	Title        string
	Segments     int
	Format       string
	State        string
	Error        string
	ArtifactPath string
	CreatedAt    time.Time
}

// Event is one recorded stage transition within a run.
type Event struct {
	ID        int64
	RunID     string
	Type      string
	Detail    string
	CreatedAt time.Time
}

// Run states.
const (
	StateRendering = "rendering"
	StateDone      = "done"
	StateFailed    = "failed"
)

// Store keeps a SQLite-backed ledger of render runs. With retention_mode
// "ephemeral" it degrades to a no-op so the CLI can run without touching
// disk.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the run ledger according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    title TEXT,
    segments INTEGER,
    format TEXT,
    state TEXT NOT NULL,
    error TEXT,
    artifact_path TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS run_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    event_type TEXT,
    detail TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_events_run_created ON run_events(run_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun records a new run in the rendering state.
func (s *Store) BeginRun(ctx context.Context, runID, title string, segments int, format string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, title, segments, format, state, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET title=excluded.title, segments=excluded.segments,
		   format=excluded.format, state=excluded.state`,
		runID, title, segments, format, StateRendering, s.clock().UTC())
	return err
}

// FinishRun marks a run done or failed.
func (s *Store) FinishRun(ctx context.Context, runID, state, errText, artifactPath string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, error = ?, artifact_path = ? WHERE run_id = ?`,
		state, errText, artifactPath, runID)
	return err
}

// AppendEvent records a stage transition for a run.
func (s *Store) AppendEvent(ctx context.Context, runID, eventType, detail string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_events(run_id, event_type, detail, created_at) VALUES(?, ?, ?, ?)`,
		runID, eventType, detail, s.clock().UTC())
	return err
}

// GetRun retrieves one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	if s.db == nil {
		return Run{}, sql.ErrNoRows
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, title, segments, format, state, COALESCE(error, ''), COALESCE(artifact_path, ''), created_at
		 FROM runs WHERE run_id = ?`, runID)
	var r Run
	var created string
	if err := row.Scan(&r.RunID, &r.Title, &r.Segments, &r.Format, &r.State, &r.Error, &r.ArtifactPath, &created); err != nil {
		return Run{}, err
	}
	r.CreatedAt = s.parseTimestamp(r.RunID, created)
	return r, nil
}

// parseTimestamp decodes a stored created_at column. A row with a mangled
// timestamp keeps its other fields; the corruption is logged rather than
// silently zeroed.
func (s *Store) parseTimestamp(runID, created string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		s.log.Warn("failed to parse stored timestamp",
			slog.String("run_id", runID),
			slog.String("created_at", created),
			slog.String("error", err.Error()))
		return time.Time{}
	}
	return ts
}

// ListRunEvents retrieves up to limit events for a run ordered ascending by time.
func (s *Store) ListRunEvents(ctx context.Context, runID string, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, event_type, COALESCE(detail, ''), created_at
		 FROM run_events WHERE run_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = s.parseTimestamp(e.RunID, created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM run_events WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRuns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
			SELECT run_id FROM runs ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRuns)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
