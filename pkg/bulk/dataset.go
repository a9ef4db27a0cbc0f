package bulk

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// RawRow is one spreadsheet row keyed by the header as written in the file.
// Values are strings, numbers, booleans or nil.
type RawRow map[string]any

// Dataset is one loaded sheet. Headers carries the left-to-right column order
// of the source file and is the only ordering the engine relies on.
type Dataset struct {
	Source  string   `json:"source,omitempty"`
	Headers []string `json:"headers"`
	Rows    []RawRow `json:"rows"`
}

// OrderedHeaders returns the keys present in at least one row. Keys listed in
// Headers come first in that order (deduplicated); keys only rows carry follow,
// sorted so the result never depends on map order. A header no row contains
// is dropped.
func (d Dataset) OrderedHeaders() []string {
	present := make(map[string]bool)
	for _, row := range d.Rows {
		for k := range row {
			present[k] = true
		}
	}

	out := make([]string, 0, len(present))
	for _, h := range d.Headers {
		if !present[h] {
			continue
		}
		delete(present, h)
		out = append(out, h)
	}

	late := make([]string, 0, len(present))
	for k := range present {
		late = append(late, k)
	}
	sort.Strings(late)
	return append(out, late...)
}

// CellString converts a raw cell value to its trimmed textual form.
// Integral floats print without a fractional part, so 1234.0 becomes "1234".
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return strings.TrimSpace(t.String())
	case bool:
		return strconv.FormatBool(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
