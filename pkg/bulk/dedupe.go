package bulk

// Dedupe drops rows whose key value was already seen, keeping the first
// occurrence and the original order. Rows with an empty key are always kept.
// It returns the kept rows and the original indices they came from.
func Dedupe(rows []NormalizedRow, key Field) ([]NormalizedRow, []int) {
	seen := make(map[string]struct{}, len(rows))
	kept := make([]NormalizedRow, 0, len(rows))
	idx := make([]int, 0, len(rows))

	for i, row := range rows {
		v := row.Get(key)
		if v == "" {
			kept = append(kept, row)
			idx = append(idx, i)
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		kept = append(kept, row)
		idx = append(idx, i)
	}
	return kept, idx
}
