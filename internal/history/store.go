// Package history keeps an append-only log of filter evaluations in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/beefci/internal/filter"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 20

var ErrRunNotFound = errors.New("evaluation run not found")

// Run is one recorded evaluation.
type Run struct {
	ID          string          `json:"id"`
	ConfigPath  string          `json:"config_path"`
	Fingerprint string          `json:"fingerprint"`
	Branch      string          `json:"branch"`
	Tag         string          `json:"tag"`
	Deduped     bool            `json:"deduped"`
	JobCount    int             `json:"job_count"`
	Result      json.RawMessage `json:"result"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Store persists evaluation runs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record appends res as a new run and returns it with its assigned ID.
func (s *Store) Record(ctx context.Context, configPath string, res *filter.Result) (*Run, error) {
	if res == nil {
		return nil, fmt.Errorf("result is nil")
	}

	body, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	jobCount := 0
	for _, wf := range res.Workflows {
		jobCount += len(wf.Jobs)
	}

	run := &Run{
		ID:          uuid.NewString(),
		ConfigPath:  configPath,
		Fingerprint: res.Fingerprint,
		Branch:      res.Input.Branch,
		Tag:         res.Input.Tag,
		Deduped:     res.Deduped,
		JobCount:    jobCount,
		Result:      json.RawMessage(body),
		CreatedAt:   s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO evaluation_run(id, config_path, fingerprint, branch, tag, deduped, job_count, result, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, run.ID, run.ConfigPath, run.Fingerprint, run.Branch, run.Tag, boolToInt(run.Deduped), run.JobCount, string(body), run.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert evaluation run: %w", err)
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, config_path, fingerprint, branch, tag, deduped, job_count, result, created_at
FROM evaluation_run
ORDER BY created_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query evaluation runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with the given ID or ErrRunNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, config_path, fingerprint, branch, tag, deduped, job_count, result, created_at
FROM evaluation_run
WHERE id = ?;
`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run       Run
		deduped   int
		result    string
		createdAt string
	)
	if err := sc.Scan(&run.ID, &run.ConfigPath, &run.Fingerprint, &run.Branch, &run.Tag, &deduped, &run.JobCount, &result, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan evaluation run: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for run %s: %w", run.ID, err)
	}
	run.CreatedAt = ts
	run.Deduped = deduped != 0
	run.Result = json.RawMessage(result)
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
