// Package bulk infers which spreadsheet column holds which canonical fleet
// field, normalizes the values, removes duplicate rows and checks business
// rules, before anything is sent to a backend.
//
// The pipeline is pure: Process does no I/O and keeps no state between calls.
// Engine only adds a swappable set of alias tables on top.
package bulk

import (
	"fmt"
	"sync"
)

// Summary counts what happened to a dataset.
type Summary struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// Result is the outcome of one import. Rows and Issues have the same length
// and Issues[i] belongs to Rows[i]; SourceRows[i] is the index of Rows[i]
// in the input dataset.
type Result struct {
	Mode       Mode            `json:"mode"`
	Source     string          `json:"source,omitempty"`
	Mapping    Mapping         `json:"mapping"`
	Profile    Profile         `json:"profile"`
	Rows       []NormalizedRow `json:"rows"`
	Issues     [][]string      `json:"issues"`
	SourceRows []int           `json:"source_rows"`
	Summary    Summary         `json:"summary"`
}

// Valid reports whether no surviving row has issues.
func (r *Result) Valid() bool {
	return r.Summary.Invalid == 0
}

// Run executes the whole pipeline for one dataset against schema s.
func Run(ds Dataset, s *Schema) *Result {
	profile := ProfileColumns(ds, s)
	mapping := MapColumns(profile, s)
	headers := ds.OrderedHeaders()

	normalized := make([]NormalizedRow, len(ds.Rows))
	for i, raw := range ds.Rows {
		normalized[i] = normalizeRow(raw, headers, mapping, s)
	}

	rows, idx := Dedupe(normalized, s.DedupeKey)
	res := &Result{
		Mode:       s.Mode,
		Source:     ds.Source,
		Mapping:    mapping,
		Profile:    profile,
		Rows:       rows,
		Issues:     make([][]string, len(rows)),
		SourceRows: idx,
		Summary: Summary{
			Input:      len(ds.Rows),
			Output:     len(rows),
			Duplicates: len(ds.Rows) - len(rows),
		},
	}
	for i, row := range rows {
		res.Issues[i] = Validate(row)
		if len(res.Issues[i]) > 0 {
			res.Summary.Invalid++
		}
	}
	return res
}

func normalizeRow(raw RawRow, headers []string, m Mapping, s *Schema) NormalizedRow {
	row := NewRow(s)
	for _, f := range s.Columns {
		var v string
		if h, ok := m.Header(f); ok {
			v = CellString(raw[h])
		}
		row.Fields[f] = s.Normalizers[f](v)
	}
	for _, h := range headers {
		if m.Consumes(h) {
			continue
		}
		if v := CellString(raw[h]); v != "" {
			row.Extra.Set(h, v)
		}
	}
	return row
}

// Engine holds the schemas in use, optionally extended from an alias file
// that can be reloaded while requests are served.
type Engine struct {
	mu        sync.RWMutex
	schemas   map[Mode]*Schema
	aliasPath string
}

// NewEngine returns an engine with built-in schemas. If aliasPath is not
// empty, Load must be called to apply it.
func NewEngine(aliasPath string) *Engine {
	e := &Engine{aliasPath: aliasPath}
	e.schemas, _ = buildSchemas(nil)
	return e
}

// Load (re)builds the schemas from the built-in tables and the alias file.
func (e *Engine) Load() error {
	var af AliasFile
	if e.aliasPath != "" {
		var err error
		if af, err = LoadAliases(e.aliasPath); err != nil {
			return err
		}
	}
	schemas, err := buildSchemas(af)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.schemas = schemas
	e.mu.Unlock()
	return nil
}

// Reload re-reads the alias file (hot reload).
func (e *Engine) Reload() error {
	return e.Load()
}

// Schema returns the schema currently used for mode. It must not be modified.
func (e *Engine) Schema(mode Mode) (*Schema, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.schemas[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return s, nil
}

// Process runs the pipeline for ds in the given mode.
func (e *Engine) Process(ds Dataset, mode Mode) (*Result, error) {
	s, err := e.Schema(mode)
	if err != nil {
		return nil, err
	}
	return Run(ds, s), nil
}

// Revalidate re-normalizes and validates rows the user edited after review.
// Duplicates are not removed again.
func (e *Engine) Revalidate(mode Mode, rows []map[string]any) ([]NormalizedRow, [][]string, error) {
	s, err := e.Schema(mode)
	if err != nil {
		return nil, nil, err
	}
	out := make([]NormalizedRow, len(rows))
	issues := make([][]string, len(rows))
	for i, values := range rows {
		row, err := RowFromValues(s, values, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = row
		issues[i] = Validate(row)
	}
	return out, issues, nil
}

// Process runs the pipeline with the built-in schemas.
func Process(ds Dataset, mode Mode) (*Result, error) {
	s, err := DefaultSchema(mode)
	if err != nil {
		return nil, err
	}
	return Run(ds, s), nil
}

func buildSchemas(af AliasFile) (map[Mode]*Schema, error) {
	out := make(map[Mode]*Schema, 2)
	for _, mode := range []Mode{ModeVehicle, ModeDriver} {
		s, err := DefaultSchema(mode)
		if err != nil {
			return nil, err
		}
		af.Apply(s)
		out[mode] = s
	}
	return out, nil
}
