package bulk

import (
	"regexp"
	"unicode/utf8"
)

var (
	registrationRe = regexp.MustCompile(`^[A-Z0-9]{5,}$`)
	chassisValidRe = regexp.MustCompile(`^[A-Z0-9]{6,}$`)
)

// Issue messages reported by Validate.
const (
	IssueRegistration        = "Registration number must be at least 5 characters (A-Z/0-9)."
	IssueChassis             = "Chassis number must be at least 6 alphanumeric characters."
	IssueName                = "Name must be at least 2 characters."
	IssueVehicleRegistration = "Vehicle registration number must be at least 5 characters (A-Z/0-9)."
	IssueSuperAdmin          = "Bulk upload cannot assign Super Admin role."
)

// Validate checks one normalized row against the business rules of its mode.
// An empty, non-nil slice means the row is valid.
func Validate(row NormalizedRow) []string {
	issues := []string{}
	switch row.Mode {
	case ModeVehicle:
		if !registrationRe.MatchString(row.Get(FieldRegistrationNo)) {
			issues = append(issues, IssueRegistration)
		}
		if c := row.Get(FieldChassisNumber); c != "" && !chassisValidRe.MatchString(c) {
			issues = append(issues, IssueChassis)
		}
	case ModeDriver:
		if utf8.RuneCountInString(row.Get(FieldName)) < 2 {
			issues = append(issues, IssueName)
		}
		if v := row.Get(FieldVehicleRegistrationNo); v != "" && !registrationRe.MatchString(v) {
			issues = append(issues, IssueVehicleRegistration)
		}
		if row.Get(FieldRole) == RoleSuperAdmin {
			issues = append(issues, IssueSuperAdmin)
		}
	}
	return issues
}
