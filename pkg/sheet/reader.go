// Package sheet turns uploaded spreadsheets into bulk.Dataset values, one per
// worksheet, keeping the left-to-right column order of the file.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/hazyhaar/fleet-intake/pkg/bulk"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	// ErrNoHeader is returned when no sheet has a header row.
	ErrNoHeader = errors.New("no header row found")
)

// Options tune CSV parsing. Zero values mean comma-delimited UTF-8.
type Options struct {
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
	// MaxRows caps data rows per sheet; 0 means no limit.
	MaxRows int `yaml:"max_rows"`
}

const utf8BOM = "\ufeff"

// ReadFile opens path and reads it according to its extension.
func ReadFile(path string, opts Options) ([]bulk.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path), opts)
}

// Read parses r as xlsx or csv depending on name's extension.
func Read(r io.Reader, name string, opts Options) ([]bulk.Dataset, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r, name, opts)
	case ".csv", ".txt":
		ds, err := ReadCSV(r, name, opts)
		if err != nil {
			return nil, err
		}
		return []bulk.Dataset{ds}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// ReadXLSX reads every worksheet of a workbook. Sheets without a header row
// are skipped; the source of each dataset is "name#sheet".
func ReadXLSX(r io.Reader, name string, opts Options) ([]bulk.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer f.Close()

	var out []bulk.Dataset
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheetName, err)
		}
		ds, err := FromRecords(name+"#"+sheetName, rows, opts.MaxRows)
		if errors.Is(err, ErrNoHeader) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("workbook %s: %w", name, ErrNoHeader)
	}
	return out, nil
}

// ReadCSV reads a delimited text file, transcoding it first when
// opts.Encoding names a non-UTF-8 charset (e.g. "windows-1252").
func ReadCSV(r io.Reader, name string, opts Options) (bulk.Dataset, error) {
	if enc := opts.Encoding; enc != "" && !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return bulk.Dataset{}, fmt.Errorf("unsupported encoding %q: %w", enc, err)
		}
		r = transform.NewReader(r, e.NewDecoder())
	}

	cr := csv.NewReader(r)
	if delim := opts.Delimiter; delim != "" {
		cr.Comma = []rune(delim)[0]
	} else {
		peek, err := io.ReadAll(r)
		if err != nil {
			return bulk.Dataset{}, fmt.Errorf("read %s: %w", name, err)
		}
		cr = csv.NewReader(bytes.NewReader(peek))
		cr.Comma = sniffDelimiter(peek)
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return bulk.Dataset{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return FromRecords(name, records, opts.MaxRows)
}

// FromRecords builds a dataset from a grid of cells. The first non-blank
// record is the header; blank headers become "column_N" and repeated ones
// get a " (2)", " (3)" suffix. Blank data rows are dropped.
func FromRecords(source string, records [][]string, maxRows int) (bulk.Dataset, error) {
	start := -1
	for i, rec := range records {
		if !blank(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return bulk.Dataset{}, fmt.Errorf("%s: %w", source, ErrNoHeader)
	}

	headers := headerNames(records[start])
	ds := bulk.Dataset{Source: source, Headers: headers, Rows: []bulk.RawRow{}}
	for _, rec := range records[start+1:] {
		if blank(rec) {
			continue
		}
		if maxRows > 0 && len(ds.Rows) >= maxRows {
			break
		}
		row := make(bulk.RawRow, len(headers))
		for j, h := range headers {
			if j < len(rec) {
				row[h] = strings.TrimSpace(rec[j])
			} else {
				row[h] = ""
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func headerNames(rec []string) []string {
	headers := make([]string, len(rec))
	used := make(map[string]bool, len(rec))
	for i, h := range rec {
		h = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		used[h] = true
		headers[i] = h
	}

	// Later repeats take the first free " (n)" suffix, never a name that is
	// already a header of its own.
	seen := make(map[string]bool, len(rec))
	for i, h := range headers {
		if !seen[h] {
			seen[h] = true
			continue
		}
		name := h
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s (%d)", h, n)
		}
		used[name] = true
		seen[name] = true
		headers[i] = name
	}
	return headers
}

// sniffDelimiter picks the most frequent of , ; tab | on the first line.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isUTF8(enc string) bool {
	e := strings.ToLower(strings.ReplaceAll(enc, "-", ""))
	return e == "utf8" || e == ""
}
