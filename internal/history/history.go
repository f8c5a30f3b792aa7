// Package history keeps a DuckDB log of runs and per-source task events.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // Driver

	"github.com/brensch/zipfetch/internal/orchestrator"
)

// Event names stored in task_events.event.
const (
	EventTaskStart   = "task_start"
	EventTaskSuccess = "task_success"
	EventTaskFailure = "task_failure"
)

// Tables lists the tables Export writes, in creation order.
var Tables = []string{"runs", "task_events"}

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS task_event_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id       VARCHAR PRIMARY KEY,
    destination  VARCHAR NOT NULL,
    workers      INTEGER NOT NULL,
    source_count INTEGER NOT NULL,
    started_at   TIMESTAMP NOT NULL,
    finished_at  TIMESTAMP,
    succeeded    INTEGER,
    failed       INTEGER
);
CREATE TABLE IF NOT EXISTS task_events (
    event_id        BIGINT PRIMARY KEY DEFAULT nextval('task_event_id_seq'),
    run_id          VARCHAR NOT NULL,
    source          VARCHAR NOT NULL,
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    kind            VARCHAR,
    message         VARCHAR,
    member_count    INTEGER,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_task_events_run ON task_events (run_id);
CREATE INDEX IF NOT EXISTS idx_task_events_event_time ON task_events (event, event_timestamp);
`

// Store wraps the history database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the DuckDB file at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb (%s): %w", path, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb (%s): %w", path, err)
	}
	if err := InitializeSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("History database ready.", slog.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// InitializeSchema creates the sequence and then the tables.
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSequenceSQL); err != nil && !alreadyExists(err) {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaTableSQL); err != nil && !alreadyExists(err) {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

func alreadyExists(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a run and returns a recorder for its tasks.
func (s *Store) BeginRun(ctx context.Context, destination string, workers, sourceCount int) (*Run, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, destination, workers, source_count, started_at) VALUES (?, ?, ?, ?, ?);`,
		id, destination, workers, sourceCount, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	return &Run{ID: id, store: s, logger: s.logger.With(slog.String("run_id", id))}, nil
}

// Run logs task events for one run. It implements orchestrator.Recorder.
type Run struct {
	ID string

	store  *Store
	logger *slog.Logger
	mu     sync.Mutex // serialises inserts from pool goroutines
}

// TaskStarted implements orchestrator.Recorder.
func (r *Run) TaskStarted(ctx context.Context, source string) {
	r.logEvent(ctx, source, EventTaskStart, "", "", sql.NullInt64{}, nil)
}

// TaskFinished implements orchestrator.Recorder.
func (r *Run) TaskFinished(ctx context.Context, out orchestrator.Outcome, elapsed time.Duration) {
	if out.OK() {
		r.logEvent(ctx, out.Source, EventTaskSuccess, "", "", sql.NullInt64{Int64: int64(len(out.Members)), Valid: true}, &elapsed)
		return
	}
	r.logEvent(ctx, out.Source, EventTaskFailure, out.Kind().String(), out.Err.Error(), sql.NullInt64{}, &elapsed)
}

// logEvent never fails the task; a lost history row is only logged.
func (r *Run) logEvent(ctx context.Context, source, event, kind, message string, members sql.NullInt64, duration *time.Duration) {
	var durationMs sql.NullInt64
	if duration != nil {
		durationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	}
	// History writes outlive a cancelled run.
	ctx = context.WithoutCancel(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.store.db.ExecContext(ctx, `
        INSERT INTO task_events (run_id, source, event, event_timestamp, kind, message, member_count, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		r.ID,
		source,
		event,
		time.Now().UTC(),
		sql.NullString{String: kind, Valid: kind != ""},
		sql.NullString{String: message, Valid: message != ""},
		members,
		durationMs,
	)
	if err != nil {
		r.logger.Warn("Failed to log task event.", slog.String("source", source), slog.String("event", event), "error", err)
	}
}

// Finish stores the run's totals.
func (r *Run) Finish(ctx context.Context, results orchestrator.Results) error {
	failed := len(results.Failures())
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, failed = ? WHERE run_id = ?;`,
		time.Now().UTC(), len(results)-failed, failed, r.ID)
	if err != nil {
		return fmt.Errorf("failed to record run finish for %s: %w", r.ID, err)
	}
	return nil
}

// DisplayHistory prints the most recent task events, newest first.
// eventFilter restricts output to a single event name when non-empty.
func (s *Store) DisplayHistory(ctx context.Context, w io.Writer, eventFilter string, limit int) error {
	query := `
        SELECT source, event, event_timestamp, kind, message, duration_ms, run_id
        FROM task_events
    `
	args := []any{}
	if eventFilter != "" {
		query += " WHERE event = ?"
		args = append(args, eventFilter)
	}
	query += " ORDER BY event_timestamp DESC, event_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query task events: %w", err)
	}
	defer rows.Close()

	fmt.Fprintf(w, "--- Task Event History (Limit %d) ---\n", limit)
	fmt.Fprintf(w, "%-60s | %-12s | %-25s | %-14s | %-10s | %s\n", "Source", "Event", "Timestamp (UTC)", "Kind", "DurationMS", "Message")
	fmt.Fprintln(w, strings.Repeat("-", 150))

	count := 0
	for rows.Next() {
		var source, event, runID string
		var ts time.Time
		var kind, message sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&source, &event, &ts, &kind, &message, &durationMs, &runID); err != nil {
			return fmt.Errorf("failed to scan task event row: %w", err)
		}
		duration := ""
		if durationMs.Valid {
			duration = fmt.Sprintf("%d", durationMs.Int64)
		}
		fmt.Fprintf(w, "%-60s | %-12s | %-25s | %-14s | %-10s | %s\n",
			truncate(source, 60), event, ts.Format(time.RFC3339), kind.String, duration, message.String)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating task events: %w", err)
	}
	if count == 0 {
		fmt.Fprintln(w, "No events found.")
	}
	return nil
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID          string
	Destination string
	Workers     int
	Sources     int
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	Succeeded   sql.NullInt64
	Failed      sql.NullInt64
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, destination, workers, source_count, started_at, finished_at, succeeded, failed
        FROM runs ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Destination, &r.Workers, &r.Sources, &r.StartedAt, &r.FinishedAt, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}

// Export writes every history table to dir as <table>.parquet using
// DuckDB's COPY. Tables are exported concurrently.
func (s *Store) Export(ctx context.Context, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory '%s': %w", dir, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var exportErrors []error
	written := make([]string, len(Tables))

	for i, table := range Tables {
		wg.Add(1)
		go func(i int, table string) {
			defer wg.Done()
			l := s.logger.With(slog.String("table", table))

			outputFilePath := strings.TrimRight(strings.ReplaceAll(dir, `\`, `/`), "/") + "/" + table + ".parquet"
			copySQL := fmt.Sprintf(`COPY "%s" TO '%s' (FORMAT PARQUET);`, table, strings.ReplaceAll(outputFilePath, "'", "''"))

			if _, err := s.db.ExecContext(ctx, copySQL); err != nil {
				l.Error("Failed to export table.", "error", err)
				mu.Lock()
				exportErrors = append(exportErrors, fmt.Errorf("export %s: %w", table, err))
				mu.Unlock()
				return
			}
			l.Info("Exported table to Parquet.", slog.String("output_path", outputFilePath))
			written[i] = outputFilePath
		}(i, table)
	}
	wg.Wait()

	if err := errors.Join(exportErrors...); err != nil {
		return nil, err
	}
	return written, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
