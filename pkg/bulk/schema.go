package bulk

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which entity a spreadsheet describes.
type Mode string

const (
	ModeVehicle Mode = "vehicle"
	ModeDriver  Mode = "driver"
)

// ErrUnknownMode is returned when a mode string is neither vehicle nor driver.
var ErrUnknownMode = errors.New("unknown entity mode")

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeVehicle:
		return ModeVehicle, nil
	case ModeDriver:
		return ModeDriver, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Field is a canonical business attribute the engine fills.
type Field string

const (
	FieldRegistrationNo        Field = "registration_no"
	FieldChassisNumber         Field = "chassis_number"
	FieldVehicleType           Field = "vehicle_type"
	FieldName                  Field = "name"
	FieldVehicleRegistrationNo Field = "vehicle_registration_no"
	FieldRole                  Field = "role"
)

// Schema is the per-mode table driving mapping, normalization and dedupe.
type Schema struct {
	Mode Mode
	// Priority is the order in which fields claim columns.
	Priority []Field
	// Columns is the output order of canonical fields on a normalized row.
	Columns []Field
	// Aliases holds sanitized alias tokens per field, matched anywhere in a
	// sanitized header.
	Aliases map[Field][]string
	// ExactAliases holds sanitized tokens that only match a header equal to them.
	ExactAliases map[Field][]string
	// Patterns names the content predicate used for each field, if any.
	Patterns    map[Field]PatternName
	Normalizers map[Field]Normalizer
	DedupeKey   Field
}

var defaultAliases = map[Mode]map[Field][]string{
	ModeVehicle: {
		FieldRegistrationNo: {
			"registration", "registration_no", "reg_no", "reg number", "vehicle no", "vehicle number",
			"vehicle reg", "plate", "plate no", "number plate", "license plate", "rc no",
		},
		FieldChassisNumber: {
			"chassis", "chassis_no", "chassis number", "vin no", "vin number", "frame no", "frame number",
		},
		FieldVehicleType: {
			"vehicle_type", "type", "model", "model no", "category", "body type", "vehicle class",
		},
	},
	ModeDriver: {
		FieldName: {
			"name", "driver name", "full name", "employee name", "staff name",
		},
		FieldVehicleRegistrationNo: {
			"vehicle_registration_no", "vehicle registration", "vehicle no", "vehicle number",
			"reg_no", "registration", "assigned vehicle", "vehicle", "plate",
		},
		FieldRole: {
			"role", "designation", "position", "job title", "user type",
		},
	},
}

// Short tokens that would match inside unrelated words ("driving" holds "vin").
var defaultExactAliases = map[Mode]map[Field][]string{
	ModeVehicle: {
		FieldChassisNumber: {"vin"},
	},
}

// DefaultSchema returns a fresh copy of the built-in schema for mode.
func DefaultSchema(mode Mode) (*Schema, error) {
	switch mode {
	case ModeVehicle:
		return &Schema{
			Mode:         ModeVehicle,
			Priority:     []Field{FieldRegistrationNo, FieldChassisNumber, FieldVehicleType},
			Columns:      []Field{FieldRegistrationNo, FieldVehicleType, FieldChassisNumber},
			Aliases:      sanitizeAliases(defaultAliases[ModeVehicle]),
			ExactAliases: sanitizeAliases(defaultExactAliases[ModeVehicle]),
			Patterns: map[Field]PatternName{
				FieldRegistrationNo: PatternRegistration,
				FieldChassisNumber:  PatternChassis,
				FieldVehicleType:    PatternVehicleType,
			},
			Normalizers: map[Field]Normalizer{
				FieldRegistrationNo: NormalizeCode,
				FieldChassisNumber:  NormalizeCode,
				FieldVehicleType:    NormalizeText,
			},
			DedupeKey: FieldRegistrationNo,
		}, nil
	case ModeDriver:
		return &Schema{
			Mode:         ModeDriver,
			Priority:     []Field{FieldName, FieldVehicleRegistrationNo, FieldRole},
			Columns:      []Field{FieldName, FieldRole, FieldVehicleRegistrationNo},
			Aliases:      sanitizeAliases(defaultAliases[ModeDriver]),
			ExactAliases: sanitizeAliases(defaultExactAliases[ModeDriver]),
			Patterns: map[Field]PatternName{
				FieldVehicleRegistrationNo: PatternRegistration,
			},
			Normalizers: map[Field]Normalizer{
				FieldName:                  NormalizeName,
				FieldVehicleRegistrationNo: NormalizeCode,
				FieldRole:                  NormalizeRole,
			},
			DedupeKey: FieldName,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// HasField reports whether f is a canonical field of this schema.
func (s *Schema) HasField(f Field) bool {
	for _, c := range s.Columns {
		if c == f {
			return true
		}
	}
	return false
}

// AddAliases appends alias tokens for f, skipping duplicates after sanitizing.
func (s *Schema) AddAliases(f Field, tokens ...string) {
	existing := make(map[string]bool, len(s.Aliases[f]))
	for _, a := range s.Aliases[f] {
		existing[a] = true
	}
	for _, t := range tokens {
		clean := SanitizeHeader(t)
		if clean == "" || existing[clean] {
			continue
		}
		existing[clean] = true
		s.Aliases[f] = append(s.Aliases[f], clean)
	}
}

func sanitizeAliases(in map[Field][]string) map[Field][]string {
	out := make(map[Field][]string, len(in))
	for f, tokens := range in {
		seen := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			clean := SanitizeHeader(t)
			if clean == "" || seen[clean] {
				continue
			}
			seen[clean] = true
			out[f] = append(out[f], clean)
		}
	}
	return out
}
