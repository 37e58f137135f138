package models

import (
	"strings"

	"github.com/google/uuid"
)

// SortKey selects the ordering of a request listing
type SortKey string

const (
	SortCreatedAtAsc  SortKey = "createdAt_asc"
	SortCreatedAtDesc SortKey = "createdAt_desc"
	SortUpdatedAtAsc  SortKey = "updatedAt_asc"
	SortUpdatedAtDesc SortKey = "updatedAt_desc"
	SortUpvotesDesc   SortKey = "upvotes_desc"

	DefaultSort = SortCreatedAtDesc
)

var sortKeys = []SortKey{SortCreatedAtAsc, SortCreatedAtDesc, SortUpdatedAtAsc, SortUpdatedAtDesc, SortUpvotesDesc}

// ParseSortKey is case-insensitive; anything unknown falls back to DefaultSort.
func ParseSortKey(s string) SortKey {
	for _, k := range sortKeys {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k
		}
	}
	return DefaultSort
}

// RequestFilter is a conjunction of equality predicates; nil fields match anything.
type RequestFilter struct {
	Status        *Status
	Category      *Category
	SubmittedByID *string
}

func (f RequestFilter) Match(r ServiceRequest) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.Category != nil && r.Category != *f.Category {
		return false
	}
	if f.SubmittedByID != nil && (r.SubmittedByID == nil || *r.SubmittedByID != *f.SubmittedByID) {
		return false
	}
	return true
}

// RequestQuery is what the store executes: filter, order, then slice.
type RequestQuery struct {
	Filter RequestFilter
	Sort   SortKey
	Offset int
	Limit  int
}

// ListQuery is the caller-facing listing input before normalisation
type ListQuery struct {
	Status   *Status
	Category *Category
	Sort     string
	Page     int
	PageSize int
}

// CreateRequestInput carries the fields a submitter controls
type CreateRequestInput struct {
	Category    Category
	Description string
	Address     string
	Latitude    *float64
	Longitude   *float64
}

// ServiceRequestView is a request annotated for a particular viewer
type ServiceRequestView struct {
	ServiceRequest
	UpvoteCount int  `json:"upvoteCount"`
	HasUpvoted  bool `json:"hasUpvoted"`
}

type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type NeighborhoodCount struct {
	Neighborhood string `json:"neighborhood"`
	Count        int    `json:"count"`
}

type DashboardStats struct {
	TotalRequests          int                 `json:"totalRequests"`
	OpenRequests           int                 `json:"openRequests"`
	TotalUpvotes           int64               `json:"totalUpvotes"`
	ByStatus               map[string]int      `json:"byStatus"`
	ByCategory             map[string]int      `json:"byCategory"`
	RequestsOverTime       []DailyCount        `json:"requestsOverTime"`
	AverageResolutionHours float64             `json:"averageResolutionHours"`
	TopNeighborhoods       []NeighborhoodCount `json:"topNeighborhoods"`
}

// StatusChange is the payload handed to notifiers after a status update
type StatusChange struct {
	Contact     string    `json:"contact"`
	DisplayName string    `json:"displayName"`
	RequestID   uuid.UUID `json:"requestId"`
	Category    Category  `json:"category"`
	OldStatus   Status    `json:"oldStatus"`
	NewStatus   Status    `json:"newStatus"`
}
