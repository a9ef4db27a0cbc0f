package bulk

import (
	"reflect"
	"testing"
)

func mustSchema(t *testing.T, mode Mode) *Schema {
	t.Helper()
	s, err := DefaultSchema(mode)
	if err != nil {
		t.Fatalf("DefaultSchema(%s): %v", mode, err)
	}
	return s
}

func TestAliasScores(t *testing.T) {
	s := mustSchema(t, ModeVehicle)

	tests := []struct {
		header string
		want   map[Field]int
	}{
		{"Vehicle No", map[Field]int{FieldRegistrationNo: AliasBonus}},
		{"REG. NO", map[Field]int{FieldRegistrationNo: AliasBonus}},
		{"Chassis Number", map[Field]int{FieldChassisNumber: AliasBonus}},
		{"Model No", map[Field]int{FieldVehicleType: AliasBonus}},
		{"VIN", map[Field]int{FieldChassisNumber: AliasBonus}},
		{"VIN No.", map[Field]int{FieldChassisNumber: AliasBonus}},
		{"Driving Licence", map[Field]int{}},
		{"junk1", map[Field]int{}},
		{"", map[Field]int{}},
	}
	for _, tt := range tests {
		if got := s.AliasScores(tt.header); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("AliasScores(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestProfileColumns(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	ds := Dataset{
		Headers: []string{"A", "B", "Empty"},
		Rows: []RawRow{
			{"A": "KA01AB1234", "B": "truck", "Empty": ""},
			{"A": "MH12CD5678", "B": "  ", "Empty": nil},
			{"A": "hello", "B": "van"},
		},
	}
	p := ProfileColumns(ds, s)

	if len(p.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(p.Columns))
	}
	a := p.Columns[0]
	if a.Header != "A" || a.Index != 0 || a.Total != 3 {
		t.Errorf("A = %+v", a)
	}
	if a.PatternMatches[PatternRegistration] != 2 {
		t.Errorf("A registration matches = %d, want 2", a.PatternMatches[PatternRegistration])
	}
	b := p.Columns[1]
	if b.Total != 2 || b.PatternMatches[PatternVehicleType] != 2 {
		t.Errorf("B = %+v", b)
	}
	empty := p.Columns[2]
	if empty.Total != 0 {
		t.Errorf("Empty total = %d, want 0", empty.Total)
	}
}

func TestMapColumns_HeaderBeatsContent(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	ds := Dataset{
		Headers: []string{"junk1", "Vehicle No"},
		Rows: []RawRow{
			{"Vehicle No": "something", "junk1": "KA01AB1234"},
			{"Vehicle No": "else", "junk1": "KA02CD5678"},
		},
	}
	m := MapColumns(ProfileColumns(ds, s), s)

	if h, _ := m.Header(FieldRegistrationNo); h != "Vehicle No" {
		t.Errorf("registration_no -> %q, want Vehicle No", h)
	}
}

func TestMapColumns_ContentOnly(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	ds := Dataset{
		Headers: []string{"col_a", "col_b", "col_c"},
		Rows: []RawRow{
			{"col_a": "Ramesh Kumar", "col_b": "KA01AB1234", "col_c": "JHMCM56557C400123"},
			{"col_a": "Suresh Rao", "col_b": "ka 02 cd 5678", "col_c": "MA3EWDE1S00123456"},
			{"col_a": "", "col_b": "not a plate at all", "col_c": ""},
		},
	}
	m := MapColumns(ProfileColumns(ds, s), s)

	if h, _ := m.Header(FieldRegistrationNo); h != "col_b" {
		t.Errorf("registration_no -> %q, want col_b", h)
	}
	if h, _ := m.Header(FieldChassisNumber); h != "col_c" {
		t.Errorf("chassis_number -> %q, want col_c", h)
	}
	if _, ok := m.Header(FieldVehicleType); ok {
		t.Errorf("vehicle_type should be unmapped, mapping = %v", m.Fields())
	}
}

func TestMapColumns_ThresholdIsStrict(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	ds := Dataset{
		Headers: []string{"x"},
		Rows: []RawRow{
			{"x": "KA01AB1234"},
			{"x": "nope"},
		},
	}
	m := MapColumns(ProfileColumns(ds, s), s)
	if len(m.Assignments) != 0 {
		t.Errorf("a 50%% match rate must not map, got %v", m.Fields())
	}
}

func TestMapColumns_TieGoesToLeftmost(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	rows := []RawRow{
		{"Plate A": "KA01AB1234", "Plate B": "KA01AB1234"},
	}
	for _, headers := range [][]string{{"Plate A", "Plate B"}, {"Plate B", "Plate A"}} {
		ds := Dataset{Headers: headers, Rows: rows}
		m := MapColumns(ProfileColumns(ds, s), s)
		if h, _ := m.Header(FieldRegistrationNo); h != headers[0] {
			t.Errorf("headers %v: registration_no -> %q, want %q", headers, h, headers[0])
		}
	}
}

func TestMapColumns_Injective(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	// One column that looks like everything, aliased for every field.
	ds := Dataset{
		Headers: []string{"Registration Chassis Type"},
		Rows:    []RawRow{{"Registration Chassis Type": "KA01AB1234"}},
	}
	m := MapColumns(ProfileColumns(ds, s), s)

	seen := make(map[string]Field)
	for _, a := range m.Assignments {
		if prev, dup := seen[a.Header]; dup {
			t.Fatalf("header %q assigned to both %s and %s", a.Header, prev, a.Field)
		}
		seen[a.Header] = a.Field
	}
	if len(m.Assignments) != 1 || m.Assignments[0].Field != FieldRegistrationNo {
		t.Errorf("assignments = %+v, want only registration_no", m.Assignments)
	}
}

func TestMapColumns_Deterministic(t *testing.T) {
	s := mustSchema(t, ModeDriver)
	ds := Dataset{
		Headers: []string{"Driver Name", "Vehicle", "Designation", "Phone"},
		Rows: []RawRow{
			{"Driver Name": "anil", "Vehicle": "KA01AB1234", "Designation": "driver", "Phone": "98450"},
			{"Driver Name": "sunil", "Vehicle": "KA02AB1234", "Designation": "", "Phone": ""},
		},
	}
	first := MapColumns(ProfileColumns(ds, s), s)
	for i := 0; i < 20; i++ {
		again := MapColumns(ProfileColumns(ds, s), s)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d: mapping changed: %v vs %v", i, first.Fields(), again.Fields())
		}
	}
	want := map[Field]string{
		FieldName:                  "Driver Name",
		FieldVehicleRegistrationNo: "Vehicle",
		FieldRole:                  "Designation",
	}
	if got := first.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("mapping = %v, want %v", got, want)
	}
}

func TestOrderedHeaders_LateKeysSortedAbsentDropped(t *testing.T) {
	ds := Dataset{
		Headers: []string{"b", "a", "b"},
		Rows: []RawRow{
			{"a": 1, "z": 2, "m": 3},
		},
	}
	want := []string{"a", "m", "z"}
	if got := ds.OrderedHeaders(); !reflect.DeepEqual(got, want) {
		t.Errorf("OrderedHeaders = %v, want %v", got, want)
	}
}

func TestMapColumns_HeaderWithoutValuesIsIgnored(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	ds := Dataset{
		Headers: []string{"Registration", "reg"},
		Rows:    []RawRow{{"reg": "KA01AB1234"}},
	}
	m := MapColumns(ProfileColumns(ds, s), s)

	want := map[Field]string{FieldRegistrationNo: "reg"}
	if got := m.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("mapping = %v, want %v", got, want)
	}
	res, err := Process(ds, ModeVehicle)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Rows[0].Get(FieldRegistrationNo); got != "KA01AB1234" {
		t.Errorf("registration_no = %q, want KA01AB1234", got)
	}
	if len(res.Issues[0]) != 0 {
		t.Errorf("issues = %v, want none", res.Issues[0])
	}
}

func TestMapColumns_NumericFleetCodes(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	ds := Dataset{
		Headers: []string{"col_a"},
		Rows:    []RawRow{{"col_a": "100234"}, {"col_a": "100235"}},
	}
	m := MapColumns(ProfileColumns(ds, s), s)

	want := map[Field]string{FieldRegistrationNo: "col_a"}
	if got := m.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("mapping = %v, want %v", got, want)
	}
}

func TestMapColumns_LicenceIsNotChassis(t *testing.T) {
	s := mustSchema(t, ModeVehicle)
	ds := Dataset{
		Headers: []string{"Vehicle No", "Driving Licence"},
		Rows: []RawRow{
			{"Vehicle No": "KA01AB1234", "Driving Licence": "KA-0520110012345"},
			{"Vehicle No": "KA02CD5678", "Driving Licence": "KA-0520110067890"},
		},
	}
	m := MapColumns(ProfileColumns(ds, s), s)

	if h, ok := m.Header(FieldChassisNumber); ok {
		t.Errorf("chassis_number -> %q, want unmapped", h)
	}
}
