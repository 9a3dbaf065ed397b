package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run records one invocation of a pipeline pass.
type Run struct {
	ID         uuid.UUID
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Skipped    int
	Failed     int
	Error      string
}

// Runs is the ledger of pipeline runs.
type Runs struct {
	db *sql.DB
}

func NewRuns(db *sql.DB) *Runs {
	return &Runs{db: db}
}

// StartRun records a new run of the given kind.
func (r *Runs) StartRun(ctx context.Context, kind string) (*Run, error) {
	run := &Run{ID: uuid.New(), Kind: kind, StartedAt: time.Now().UTC()}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at) VALUES ($1, $2, $3)`,
		run.ID.String(), run.Kind, run.StartedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	return run, nil
}

// FinishRun stores the run's counters and marks it finished now.
func (r *Runs) FinishRun(ctx context.Context, run *Run) error {
	run.FinishedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = $2, processed = $3, skipped = $4, failed = $5, error_message = $6
		WHERE id = $1
	`, run.ID.String(), timestamp(run.FinishedAt), run.Processed, run.Skipped, run.Failed, NullString(&run.Error))
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, kind, started_at, finished_at, processed, skipped, failed, error_message`

// GetRun returns the run with the given ID, or nil if there is none.
func (r *Runs) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id.String())
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs first, at most limit of them.
func (r *Runs) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var (
		run    Run
		id     string
		errMsg sql.NullString
	)
	err := scan(&id, &run.Kind, timestampScanner(&run.StartedAt), timestampScanner(&run.FinishedAt),
		&run.Processed, &run.Skipped, &run.Failed, &errMsg)
	if err != nil {
		return nil, err
	}
	run.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing run ID: %w", err)
	}
	run.Error = errMsg.String
	return &run, nil
}
