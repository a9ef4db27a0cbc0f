package bulk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasFile adds alias tokens on top of the built-in tables:
//
//	vehicle:
//	  registration_no: ["gaadi no", "veh reg"]
//	driver:
//	  role: ["post"]
type AliasFile map[Mode]map[Field][]string

// LoadAliases reads and checks an alias file.
func LoadAliases(path string) (AliasFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases %s: %w", path, err)
	}
	var af AliasFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("parse aliases %s: %w", path, err)
	}
	for mode, fields := range af {
		s, err := DefaultSchema(mode)
		if err != nil {
			return nil, fmt.Errorf("aliases %s: %w", path, err)
		}
		for f := range fields {
			if !s.HasField(f) {
				return nil, fmt.Errorf("aliases %s: mode %s has no field %q", path, mode, f)
			}
		}
	}
	return af, nil
}

// Apply extends s with the aliases configured for its mode.
func (af AliasFile) Apply(s *Schema) {
	for f, tokens := range af[s.Mode] {
		s.AddAliases(f, tokens...)
	}
}
