// Package history keeps a ledger of processed bulk imports in SQLite.
// It records what was mapped and how many rows survived; row data is
// never stored.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/fleet-intake/pkg/bulk"
)

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("import run not found")

// Run is one row of the import_runs table.
type Run struct {
	ID         string            `json:"id"`
	Mode       bulk.Mode         `json:"mode"`
	Source     string            `json:"source,omitempty"`
	Input      int               `json:"input"`
	Output     int               `json:"output"`
	Duplicates int               `json:"duplicates"`
	Invalid    int               `json:"invalid"`
	Mapping    map[string]string `json:"mapping"`
	CreatedAt  int64             `json:"created_at"`
}

// Store manages the import_runs SQLite table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and ensures the
// import_runs table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS import_runs (
		id          TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		source      TEXT NOT NULL DEFAULT '',
		input       INTEGER NOT NULL,
		output      INTEGER NOT NULL,
		duplicates  INTEGER NOT NULL,
		invalid     INTEGER NOT NULL,
		mapping     TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS import_runs_created ON import_runs(created_at)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create import_runs table: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a summary of res and returns the new run.
func (s *Store) Record(ctx context.Context, res *bulk.Result) (Run, error) {
	run := Run{
		ID:         uuid.NewString(),
		Mode:       res.Mode,
		Source:     res.Source,
		Input:      res.Summary.Input,
		Output:     res.Summary.Output,
		Duplicates: res.Summary.Duplicates,
		Invalid:    res.Summary.Invalid,
		Mapping:    make(map[string]string, len(res.Mapping.Assignments)),
		CreatedAt:  s.now().UnixMilli(),
	}
	for _, a := range res.Mapping.Assignments {
		run.Mapping[string(a.Field)] = a.Header
	}
	mapping, err := json.Marshal(run.Mapping)
	if err != nil {
		return Run{}, fmt.Errorf("marshal mapping: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO import_runs
		(id, mode, source, input, output, duplicates, invalid, mapping, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), run.Source, run.Input, run.Output, run.Duplicates, run.Invalid,
		string(mapping), run.CreatedAt,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, mode, source, input, output, duplicates, invalid,
		mapping, created_at FROM import_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, mode, source, input, output, duplicates, invalid,
		mapping, created_at FROM import_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run     Run
		mode    string
		mapping string
	)
	if err := sc.Scan(&run.ID, &mode, &run.Source, &run.Input, &run.Output, &run.Duplicates,
		&run.Invalid, &mapping, &run.CreatedAt); err != nil {
		return Run{}, err
	}
	run.Mode = bulk.Mode(mode)
	if err := json.Unmarshal([]byte(mapping), &run.Mapping); err != nil {
		return Run{}, fmt.Errorf("decode mapping: %w", err)
	}
	return run, nil
}
