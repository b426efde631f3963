package resource

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
)

func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case StatusAvailable, StatusBusy:
		return s, true
	default:
		return "", false
	}
}

type Role string

const (
	RoleTechnician Role = "technician"
	RoleSupervisor Role = "supervisor"
)

// Resource - техник или супервайзер, на которого назначаются задачи
type Resource struct {
	ID         string                      `json:"id" yaml:"id" gorm:"type:text;primaryKey"`
	Name       string                      `json:"name" yaml:"name" gorm:"type:text;not null"`
	Role       Role                        `json:"role" yaml:"role" gorm:"type:text;not null;default:'technician'"`
	Department string                      `json:"department,omitempty" yaml:"department" gorm:"type:text"`
	Phone      string                      `json:"phone,omitempty" yaml:"phone" gorm:"type:text"`
	Status     Status                      `json:"status" yaml:"status" gorm:"type:text;not null;default:'available';index"`
	Skills     datatypes.JSONSlice[string] `json:"skills" yaml:"skills" gorm:"type:jsonb"`
	Lat        *float64                    `json:"lat,omitempty" yaml:"lat"`
	Lng        *float64                    `json:"lng,omitempty" yaml:"lng"`
	Version    int64                       `json:"version" yaml:"-" gorm:"not null;default:0"`
	CreatedAt  time.Time                   `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time                   `json:"updatedAt" yaml:"-"`
}

func (r Resource) Location() task.Location {
	return task.Location{Lat: r.Lat, Lng: r.Lng}
}

// HasSkill - точное совпадение с нормализованным тегом
func (r Resource) HasSkill(skill string) bool {
	want := NormalizeSkill(skill)
	if want == "" {
		return false
	}
	for _, s := range r.Skills {
		if NormalizeSkill(s) == want {
			return true
		}
	}
	return false
}

func NormalizeSkill(skill string) string {
	return strings.ToLower(strings.TrimSpace(skill))
}

// NormalizeSkills приводит теги к нижнему регистру и убирает пустые и повторы
func NormalizeSkills(skills []string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		n := NormalizeSkill(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
