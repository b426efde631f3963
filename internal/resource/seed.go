package resource

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Resources []Resource `yaml:"resources"`
}

// LoadSeed читает список исполнителей из YAML вида resources: [...]
func LoadSeed(r io.Reader) ([]Resource, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Resources))
	result := make([]Resource, 0, len(file.Resources))
	for i, res := range file.Resources {
		res.ID = strings.TrimSpace(res.ID)
		res.Name = strings.TrimSpace(res.Name)
		if res.ID == "" || res.Name == "" {
			return nil, fmt.Errorf("resource #%d: id and name are required", i+1)
		}
		if _, ok := seen[res.ID]; ok {
			return nil, fmt.Errorf("resource %q: duplicate id", res.ID)
		}
		seen[res.ID] = struct{}{}

		switch res.Role {
		case "":
			res.Role = RoleTechnician
		case RoleTechnician, RoleSupervisor:
		default:
			return nil, fmt.Errorf("resource %q: unknown role %q", res.ID, res.Role)
		}
		if res.Status == "" {
			res.Status = StatusAvailable
		} else if s, ok := ParseStatus(string(res.Status)); ok {
			res.Status = s
		} else {
			return nil, fmt.Errorf("resource %q: unknown status %q", res.ID, res.Status)
		}
		if (res.Lat == nil) != (res.Lng == nil) {
			return nil, fmt.Errorf("resource %q: lat and lng must be set together", res.ID)
		}
		res.Skills = NormalizeSkills(res.Skills)
		result = append(result, res)
	}
	return result, nil
}
