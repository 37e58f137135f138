package services

import (
	"civicservice-be/models"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// normalizePaging clamps page to >= 1 and pageSize to [1, MaxPageSize].
// Callers apply DefaultPageSize when none was requested.
func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

func requestIDs(requests []models.ServiceRequest) []uuid.UUID {
	ids := make([]uuid.UUID, len(requests))
	for i, r := range requests {
		ids[i] = r.ID
	}
	return ids
}

// annotate attaches upvote counts and the viewer's own vote using the
// upvotes already fetched for exactly these requests.
func annotate(requests []models.ServiceRequest, upvotes []models.Upvote, viewer models.Actor) []models.ServiceRequestView {
	counts := make(map[uuid.UUID]int, len(requests))
	mine := make(map[uuid.UUID]bool)
	for _, u := range upvotes {
		counts[u.ServiceRequestID]++
		if viewer.Matches(u) {
			mine[u.ServiceRequestID] = true
		}
	}

	views := make([]models.ServiceRequestView, len(requests))
	for i, r := range requests {
		views[i] = models.ServiceRequestView{
			ServiceRequest: r,
			UpvoteCount:    counts[r.ID],
			HasUpvoted:     mine[r.ID],
		}
	}
	return views
}
