package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category of a service request
type Category int

const (
	CategoryPothole Category = iota
	CategoryStreetLight
	CategoryGraffiti
	CategoryIllegalDumping
	CategorySidewalkRepair
	CategoryTreeMaintenance
	CategoryWaterLeak
	CategoryOther
)

var categoryNames = [...]string{
	"Pothole",
	"StreetLight",
	"Graffiti",
	"IllegalDumping",
	"SidewalkRepair",
	"TreeMaintenance",
	"WaterLeak",
	"Other",
}

var categoryDisplayNames = [...]string{
	"Pothole",
	"Street Light",
	"Graffiti",
	"Illegal Dumping",
	"Sidewalk Repair",
	"Tree Maintenance",
	"Water Leak",
	"Other",
}

func (c Category) Valid() bool {
	return c >= 0 && int(c) < len(categoryNames)
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// DisplayName is the human readable label used in emails
func (c Category) DisplayName() string {
	if !c.Valid() {
		return c.String()
	}
	return categoryDisplayNames[c]
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(categoryNames[c]), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory matches a category name case-insensitively
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// AllCategories lists every category in declaration order
func AllCategories() []Category {
	out := make([]Category, len(categoryNames))
	for i := range categoryNames {
		out[i] = Category(i)
	}
	return out
}

// Status of a service request
type Status int

const (
	StatusOpen Status = iota
	StatusInProgress
	StatusClosed
)

var statusNames = [...]string{"Open", "InProgress", "Closed"}

func (s Status) Valid() bool {
	return s >= 0 && int(s) < len(statusNames)
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// DisplayName is the human readable label used in emails
func (s Status) DisplayName() string {
	if s == StatusInProgress {
		return "In Progress"
	}
	return s.String()
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus matches a status name case-insensitively
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// AllStatuses lists every status in declaration order
func AllStatuses() []Status {
	out := make([]Status, len(statusNames))
	for i := range statusNames {
		out[i] = Status(i)
	}
	return out
}

// ServiceRequest represents an issue reported by a citizen or a guest
type ServiceRequest struct {
	ID            uuid.UUID `json:"id"`
	Category      Category  `json:"category"`
	Description   string    `json:"description"`
	Address       string    `json:"address"`
	Neighborhood  *string   `json:"neighborhood,omitempty"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	SubmittedByID *string   `json:"submittedById,omitempty"`
}
