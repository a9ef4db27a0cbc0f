package bulk

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AliasBonus is added to a column's score for a field when its header contains
// one of the field's alias tokens. It exceeds the largest possible content
// score (100) so an explicit header always wins over content evidence.
const AliasBonus = 1000

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeHeader lowercases s, folds accents and drops every character that
// is not an ASCII letter or digit ("Numéro d'immatriculation" -> "numerodimmatriculation").
func SanitizeHeader(s string) string {
	folded, _, err := transform.String(stripAccents, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AliasScores returns the alias bonus each field earns from header, either by
// containing one of its alias tokens or by equaling one of its exact tokens.
// Fields with no matching alias are absent.
func (s *Schema) AliasScores(header string) map[Field]int {
	clean := SanitizeHeader(header)
	scores := make(map[Field]int)
	if clean == "" {
		return scores
	}
	for _, f := range s.Priority {
		if slices.Contains(s.ExactAliases[f], clean) {
			scores[f] = AliasBonus
			continue
		}
		for _, alias := range s.Aliases[f] {
			if strings.Contains(clean, alias) {
				scores[f] = AliasBonus
				break
			}
		}
	}
	return scores
}
