package bulk

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ExtraKey is the JSON key of the side bag of unmapped columns.
const ExtraKey = "extra"

// NormalizedRow is one row in canonical form. Fields holds every canonical
// field of the mode (possibly empty); Extra holds the unmapped raw columns
// in header order.
type NormalizedRow struct {
	Mode    Mode
	Fields  map[Field]string
	Extra   *orderedmap.OrderedMap[string, string]
	columns []Field
}

// NewRow returns an empty row for the schema with every field set to "".
func NewRow(s *Schema) NormalizedRow {
	row := NormalizedRow{
		Mode:    s.Mode,
		Fields:  make(map[Field]string, len(s.Columns)),
		Extra:   orderedmap.New[string, string](),
		columns: s.Columns,
	}
	for _, f := range s.Columns {
		row.Fields[f] = ""
	}
	return row
}

// Get returns the value of f, or "" when absent.
func (r NormalizedRow) Get(f Field) string {
	return r.Fields[f]
}

// MarshalJSON writes canonical fields in schema order followed by "extra".
func (r NormalizedRow) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, any]()
	for _, f := range r.columns {
		out.Set(string(f), r.Fields[f])
	}
	extra := r.Extra
	if extra == nil {
		extra = orderedmap.New[string, string]()
	}
	out.Set(ExtraKey, extra)
	return json.Marshal(out)
}

// RowFromValues builds a row from already-normalized values, e.g. a row the
// user edited after review. Unknown keys go to Extra; canonical values are
// normalized again, which leaves clean values unchanged.
func RowFromValues(s *Schema, values map[string]any, keyOrder []string) (NormalizedRow, error) {
	row := NewRow(s)
	for _, k := range orderedKeys(values, keyOrder) {
		v := values[k]
		if k == ExtraKey {
			bag, ok := v.(map[string]any)
			if !ok && v != nil {
				return row, fmt.Errorf("%s must be an object, got %T", ExtraKey, v)
			}
			for _, ek := range orderedKeys(bag, nil) {
				if text := CellString(bag[ek]); text != "" {
					row.Extra.Set(ek, text)
				}
			}
			continue
		}
		f := Field(k)
		if !s.HasField(f) {
			if text := CellString(v); text != "" {
				row.Extra.Set(k, text)
			}
			continue
		}
		row.Fields[f] = s.Normalizers[f](CellString(v))
	}
	for _, f := range s.Columns {
		if _, given := values[string(f)]; !given {
			row.Fields[f] = s.Normalizers[f]("")
		}
	}
	return row, nil
}

func orderedKeys(m map[string]any, order []string) []string {
	ds := Dataset{Headers: order, Rows: []RawRow{m}}
	keys := ds.OrderedHeaders()
	out := keys[:0]
	for _, k := range keys {
		if _, ok := m[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
