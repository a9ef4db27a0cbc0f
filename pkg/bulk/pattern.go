package bulk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// PatternName identifies a content predicate in the pattern library.
type PatternName string

const (
	PatternRegistration PatternName = "registration"
	PatternChassis      PatternName = "chassis"
	PatternVehicleType  PatternName = "vehicle_type"
)

// Predicate tests a single cell value. header is the raw column name the
// value came from; most predicates ignore it.
type Predicate func(value, header string) bool

var (
	// Two letters, 1-2 digits, 1-2 letters, 3-4 digits (e.g. KA01AB1234).
	plateStrictRe = regexp.MustCompile(`^[A-Z]{2}[0-9]{1,2}[A-Z]{1,2}[0-9]{3,4}$`)
	// Any single 6-13 character alphanumeric-with-hyphens token.
	plateBroadRe = regexp.MustCompile(`^[A-Z0-9-]{6,13}$`)
	chassisRe    = regexp.MustCompile(`^[A-Z0-9]{10,}$`)
	vehicleKwRe  = regexp.MustCompile(`(?i)\b(truck|van|bus|car|tractor|pickup|suv|tempo)\b`)
	modelCodeRe  = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 -]{0,10}[A-Z0-9]$`)
)

const (
	// maxRegistrationLen rejects free text that happens to be plate-like once compacted.
	maxRegistrationLen = 20
	vinLength          = 17
)

var patterns = map[PatternName]Predicate{
	PatternRegistration: func(v, _ string) bool { return LooksLikeRegistration(v) },
	PatternChassis:      func(v, _ string) bool { return LooksLikeChassis(v) },
	PatternVehicleType:  LooksLikeVehicleType,
}

// LookupPattern returns the predicate registered under name.
func LookupPattern(name PatternName) (Predicate, bool) {
	p, ok := patterns[name]
	return p, ok
}

// LooksLikeRegistration reports whether v has the shape of a number plate.
// The strict plate shape is tested with spaces and hyphens removed; the broad
// token shape is tested on the trimmed value as written.
func LooksLikeRegistration(v string) bool {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" || utf8.RuneCountInString(s) > maxRegistrationLen {
		return false
	}
	if plateStrictRe.MatchString(compact(s)) {
		return true
	}
	return plateBroadRe.MatchString(s)
}

// LooksLikeChassis reports whether v has the shape of a chassis number or VIN.
func LooksLikeChassis(v string) bool {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return false
	}
	return chassisRe.MatchString(s) || utf8.RuneCountInString(s) == vinLength
}

// LooksLikeVehicleType reports whether v names a vehicle category, or looks
// like a short model code when the column header mentions a model.
func LooksLikeVehicleType(v, header string) bool {
	s := strings.TrimSpace(v)
	if s == "" {
		return false
	}
	if vehicleKwRe.MatchString(s) {
		return true
	}
	return strings.Contains(SanitizeHeader(header), "model") && modelCodeRe.MatchString(strings.ToUpper(s))
}

// compact drops spaces and hyphens.
func compact(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}
