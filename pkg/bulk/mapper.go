package bulk

// MatchThreshold is the content match rate, in percent, a column must exceed
// before its content counts toward a field's score.
const MatchThreshold = 50.0

// Assignment records which raw header a field was mapped to and why.
type Assignment struct {
	Field  Field   `json:"field"`
	Header string  `json:"header"`
	Score  float64 `json:"score"`
}

// Mapping is an injective, partial assignment of canonical fields to raw headers.
type Mapping struct {
	Assignments []Assignment `json:"assignments"`
}

// Header returns the raw header mapped to f.
func (m Mapping) Header(f Field) (string, bool) {
	for _, a := range m.Assignments {
		if a.Field == f {
			return a.Header, true
		}
	}
	return "", false
}

// Consumes reports whether header is mapped to any field.
func (m Mapping) Consumes(header string) bool {
	for _, a := range m.Assignments {
		if a.Header == header {
			return true
		}
	}
	return false
}

// Fields returns field -> header as a plain map.
func (m Mapping) Fields() map[Field]string {
	out := make(map[Field]string, len(m.Assignments))
	for _, a := range m.Assignments {
		out[a.Field] = a.Header
	}
	return out
}

// Score combines the alias bonus and the content match rate of col for f.
func (s *Schema) Score(col ColumnStats, f Field) float64 {
	score := float64(col.AliasScore[f])
	if name, ok := s.Patterns[f]; ok && col.Total > 0 {
		if rate := col.MatchRate(name); rate > MatchThreshold {
			score += rate
		}
	}
	return score
}

// MapColumns assigns fields to columns greedily in schema priority order.
// Each field takes the unused column with the strictly highest positive
// score; on ties the column further left wins. Fields nobody scores for
// stay unmapped.
func MapColumns(p Profile, s *Schema) Mapping {
	used := make([]bool, len(p.Columns))
	m := Mapping{Assignments: []Assignment{}}

	for _, f := range s.Priority {
		best, bestScore := -1, 0.0
		for i, col := range p.Columns {
			if used[i] {
				continue
			}
			if score := s.Score(col, f); score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true
		m.Assignments = append(m.Assignments, Assignment{
			Field:  f,
			Header: p.Columns[best].Header,
			Score:  bestScore,
		})
	}
	return m
}
