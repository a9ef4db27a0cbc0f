package bulk

// ColumnStats summarizes one raw column across a dataset.
type ColumnStats struct {
	Header string `json:"header"`
	// Index is the column's position in Dataset.OrderedHeaders.
	Index          int                 `json:"index"`
	Total          int                 `json:"total"`
	PatternMatches map[PatternName]int `json:"pattern_matches"`
	AliasScore     map[Field]int       `json:"alias_score,omitempty"`
}

// MatchRate returns the share of non-blank values matching pattern, in percent.
func (c ColumnStats) MatchRate(pattern PatternName) float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.PatternMatches[pattern]) / float64(c.Total) * 100
}

// Profile is the column statistics of one dataset, in header order.
type Profile struct {
	Columns []ColumnStats `json:"columns"`
}

// ProfileColumns scans every row once per column and counts non-blank values
// and matches against each pattern the schema uses.
func ProfileColumns(ds Dataset, s *Schema) Profile {
	headers := ds.OrderedHeaders()
	wanted := s.patternNames()

	p := Profile{Columns: make([]ColumnStats, len(headers))}
	for i, h := range headers {
		col := ColumnStats{
			Header:         h,
			Index:          i,
			PatternMatches: make(map[PatternName]int, len(wanted)),
			AliasScore:     s.AliasScores(h),
		}
		for _, name := range wanted {
			col.PatternMatches[name] = 0
		}

		for _, row := range ds.Rows {
			v := CellString(row[h])
			if v == "" {
				continue
			}
			col.Total++
			for _, name := range wanted {
				if pred, ok := LookupPattern(name); ok && pred(v, h) {
					col.PatternMatches[name]++
				}
			}
		}
		p.Columns[i] = col
	}
	return p
}

// patternNames lists the distinct patterns used by the schema, in priority order.
func (s *Schema) patternNames() []PatternName {
	var names []PatternName
	seen := make(map[PatternName]bool)
	for _, f := range s.Priority {
		name, ok := s.Patterns[f]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
