package bulk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalizer turns a mapped raw value into its canonical form.
type Normalizer func(string) string

// DefaultRole is what an empty role normalizes to.
const DefaultRole = "Employee"

// RoleSuperAdmin can never be granted through a bulk upload.
const RoleSuperAdmin = "Super Admin"

// knownRoles maps lowercased role names to their canonical spelling.
var knownRoles = map[string]string{
	"driver":      "Driver",
	"employee":    "Employee",
	"helper":      "Helper",
	"dispatcher":  "Dispatcher",
	"supervisor":  "Supervisor",
	"manager":     "Manager",
	"admin":       "Admin",
	"super admin": RoleSuperAdmin,
}

// NormalizeCode uppercases and keeps only A-Z and 0-9 ("ka 01-ab 1234" -> "KA01AB1234").
func NormalizeCode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeName collapses whitespace and title-cases every word.
func NormalizeName(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = upperFirst(w)
	}
	return strings.Join(words, " ")
}

// NormalizeRole collapses whitespace, maps known roles to their canonical
// spelling and otherwise capitalizes the first letter. Empty becomes DefaultRole.
func NormalizeRole(s string) string {
	r := collapseSpace(s)
	if r == "" {
		return DefaultRole
	}
	if canonical, ok := knownRoles[strings.ToLower(r)]; ok {
		return canonical
	}
	return upperFirst(strings.ToLower(r))
}

// NormalizeText collapses whitespace and trims. Case is preserved.
func NormalizeText(s string) string {
	return collapseSpace(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
