package task

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type Category string

const (
	CategoryElectrical     Category = "electrical"
	CategoryWater          Category = "water"
	CategoryInfrastructure Category = "infrastructure"
	CategorySanitation     Category = "sanitation"
	CategoryEnvironment    Category = "environment"
	CategorySecurity       Category = "security"
	CategoryGeneral        Category = "general"
)

var categoryTitles = map[Category]string{
	CategoryElectrical:     "Electrical issue",
	CategoryWater:          "Water supply issue",
	CategoryInfrastructure: "Infrastructure damage",
	CategorySanitation:     "Sanitation issue",
	CategoryEnvironment:    "Environmental hazard",
	CategorySecurity:       "Security concern",
	CategoryGeneral:        "General issue",
}

// ParseCategory приводит метку к категории; неизвестные метки становятся general
func ParseCategory(label string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(label)))
	if _, ok := categoryTitles[c]; ok {
		return c
	}
	return CategoryGeneral
}

func (c Category) Valid() bool {
	_, ok := categoryTitles[c]
	return ok
}

func (c Category) Title() string {
	if title, ok := categoryTitles[c]; ok {
		return title
	}
	return categoryTitles[CategoryGeneral]
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(value string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(value)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	case "":
		return PriorityMedium, nil
	default:
		return "", fmt.Errorf("invalid priority %q: must be low, medium or high", value)
	}
}

type Note struct {
	Text       string    `json:"text" bson:"text"`
	AuthorID   string    `json:"authorId" bson:"author_id"`
	AuthorName string    `json:"authorName" bson:"author_name"`
	CreatedAt  time.Time `json:"timestamp" bson:"timestamp"`
}

type LocationKind string

const (
	LocationNone        LocationKind = ""
	LocationAddressText LocationKind = "address"
	LocationCoordinates LocationKind = "coordinates"
	LocationMixed       LocationKind = "mixed"
)

// Location хранит адрес и/или координаты; вид определяется заполненными полями
type Location struct {
	Address      string   `json:"address,omitempty" bson:"address,omitempty" gorm:"type:text"`
	Lat          *float64 `json:"lat,omitempty" bson:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty" bson:"lng,omitempty"`
	Floor        string   `json:"floor,omitempty" bson:"floor,omitempty" gorm:"type:text"`
	Sector       string   `json:"sector,omitempty" bson:"sector,omitempty" gorm:"type:text"`
	Instructions string   `json:"instructions,omitempty" bson:"instructions,omitempty" gorm:"type:text"`
}

func NewCoordinates(lat, lng float64) Location {
	return Location{Lat: &lat, Lng: &lng}
}

func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

func (l Location) Kind() LocationKind {
	hasText := strings.TrimSpace(l.Address) != ""
	switch {
	case hasText && l.HasCoordinates():
		return LocationMixed
	case l.HasCoordinates():
		return LocationCoordinates
	case hasText:
		return LocationAddressText
	default:
		return LocationNone
	}
}

// Empty означает, что назначение исполнителя невозможно
func (l Location) Empty() bool {
	return l.Kind() == LocationNone
}

func (l Location) String() string {
	switch l.Kind() {
	case LocationCoordinates:
		return fmt.Sprintf("%.6f,%.6f", *l.Lat, *l.Lng)
	case LocationAddressText, LocationMixed:
		return l.Address
	default:
		return ""
	}
}

type Reporter struct {
	ID    string `json:"id,omitempty" bson:"id,omitempty" gorm:"type:text"`
	Name  string `json:"name,omitempty" bson:"name,omitempty" gorm:"type:text"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty" gorm:"type:text"`
}

type Task struct {
	ID                 string                      `json:"id" bson:"_id" gorm:"type:uuid;primaryKey"`
	Category           Category                    `json:"category" bson:"category" gorm:"type:text;not null;index"`
	Title              string                      `json:"title" bson:"title" gorm:"type:text;not null"`
	Description        string                      `json:"description,omitempty" bson:"description,omitempty" gorm:"type:text"`
	Status             Status                      `json:"status" bson:"status" gorm:"type:text;not null;default:'reported';index"`
	Priority           Priority                    `json:"priority" bson:"priority" gorm:"type:text;not null;default:'medium'"`
	Location           Location                    `json:"location" bson:"location" gorm:"embedded;embeddedPrefix:location_"`
	Reporter           Reporter                    `json:"reporter" bson:"reporter" gorm:"embedded;embeddedPrefix:reporter_"`
	AssignedResourceID *string                     `json:"assignedResourceId,omitempty" bson:"assigned_resource_id,omitempty" gorm:"type:text;index"`
	ReportImageIDs     datatypes.JSONSlice[string] `json:"reportImageIds" bson:"report_image_ids" gorm:"type:jsonb"`
	InitiationImageIDs datatypes.JSONSlice[string] `json:"initiationImageIds" bson:"initiation_image_ids" gorm:"type:jsonb"`
	CompletionImageIDs datatypes.JSONSlice[string] `json:"completionImageIds" bson:"completion_image_ids" gorm:"type:jsonb"`
	BillImageIDs       datatypes.JSONSlice[string] `json:"billImageIds" bson:"bill_image_ids" gorm:"type:jsonb"`
	Notes              datatypes.JSONSlice[Note]   `json:"notes" bson:"notes" gorm:"type:jsonb"`
	UpdatedBy          string                      `json:"updatedBy,omitempty" bson:"updated_by,omitempty" gorm:"type:text"`
	CreatedAt          time.Time                   `json:"createdAt" bson:"created_at" gorm:"not null"`
	UpdatedAt          time.Time                   `json:"updatedAt" bson:"updated_at" gorm:"not null"`
	AssignedAt         *time.Time                  `json:"assignedAt,omitempty" bson:"assigned_at,omitempty"`
	WorkStartedAt      *time.Time                  `json:"workStartedAt,omitempty" bson:"work_started_at,omitempty"`
	ResolvedAt         *time.Time                  `json:"resolvedAt,omitempty" bson:"resolved_at,omitempty"`
	// Version растёт на каждой записи, обновление условно по версии
	Version int64 `json:"version" bson:"version" gorm:"not null;default:0"`
}

// Clone копирует срезы, чтобы изменения не затрагивали исходную запись
func (t Task) Clone() Task {
	out := t
	out.ReportImageIDs = append(datatypes.JSONSlice[string](nil), t.ReportImageIDs...)
	out.InitiationImageIDs = append(datatypes.JSONSlice[string](nil), t.InitiationImageIDs...)
	out.CompletionImageIDs = append(datatypes.JSONSlice[string](nil), t.CompletionImageIDs...)
	out.BillImageIDs = append(datatypes.JSONSlice[string](nil), t.BillImageIDs...)
	out.Notes = append(datatypes.JSONSlice[Note](nil), t.Notes...)
	if t.AssignedResourceID != nil {
		id := *t.AssignedResourceID
		out.AssignedResourceID = &id
	}
	return out
}

// HasImage ищет ключ среди всех снимков задачи
func (t Task) HasImage(key string) bool {
	for _, list := range [][]string{t.ReportImageIDs, t.InitiationImageIDs, t.CompletionImageIDs, t.BillImageIDs} {
		for _, id := range list {
			if id == key {
				return true
			}
		}
	}
	return false
}
