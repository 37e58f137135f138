package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"civicservice-be/models"
	"civicservice-be/services"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. It backs DATABASE_PROVIDER=memory
// and most of the unit tests.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]models.ServiceRequest
	upvotes  map[uuid.UUID]models.Upvote
	users    map[string]models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: map[uuid.UUID]models.ServiceRequest{},
		upvotes:  map[uuid.UUID]models.Upvote{},
		users:    map[string]models.User{},
	}
}

var (
	_ services.Store     = (*MemoryStore)(nil)
	_ services.UserStore = (*MemoryStore)(nil)
)

func (m *MemoryStore) InsertRequest(_ context.Context, r *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = *r
	return nil
}

func (m *MemoryStore) FindRequest(_ context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) QueryRequests(_ context.Context, q models.RequestQuery) ([]models.ServiceRequest, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.ServiceRequest
	for _, r := range m.requests {
		if q.Filter.Match(r) {
			matched = append(matched, r)
		}
	}
	total := int64(len(matched))

	counts := map[uuid.UUID]int{}
	if q.Sort == models.SortUpvotesDesc {
		for _, u := range m.upvotes {
			counts[u.ServiceRequestID]++
		}
	}
	sortRequests(matched, q.Sort, counts)

	if q.Offset >= len(matched) {
		return []models.ServiceRequest{}, total, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], total, nil
}

// sortRequests orders in place. Ties fall back to id so the map iteration
// order never leaks into a page.
func sortRequests(rs []models.ServiceRequest, key models.SortKey, upvotes map[uuid.UUID]int) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		switch key {
		case models.SortCreatedAtAsc:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case models.SortUpdatedAtAsc:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		case models.SortUpdatedAtDesc:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		case models.SortUpvotesDesc:
			if upvotes[a.ID] != upvotes[b.ID] {
				return upvotes[a.ID] > upvotes[b.ID]
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID.String() < b.ID.String()
	})
}

func (m *MemoryStore) AllRequests(_ context.Context) ([]models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]models.ServiceRequest, 0, len(m.requests))
	for _, r := range m.requests {
		all = append(all, r)
	}
	sortRequests(all, models.SortCreatedAtAsc, nil)
	return all, nil
}

func (m *MemoryStore) UpdateRequestStatus(_ context.Context, r *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.requests[r.ID]
	if !ok {
		return services.ErrNotFound
	}
	existing.Status = r.Status
	existing.UpdatedAt = r.UpdatedAt
	m.requests[r.ID] = existing
	return nil
}

// DeleteRequest removes a request and its upvotes
func (m *MemoryStore) DeleteRequest(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return services.ErrNotFound
	}
	delete(m.requests, id)
	for uid, u := range m.upvotes {
		if u.ServiceRequestID == id {
			delete(m.upvotes, uid)
		}
	}
	return nil
}

func (m *MemoryStore) ListUpvotes(_ context.Context, requestIDs []uuid.UUID) ([]models.Upvote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[uuid.UUID]bool, len(requestIDs))
	for _, id := range requestIDs {
		wanted[id] = true
	}
	var out []models.Upvote
	for _, u := range m.upvotes {
		if wanted[u.ServiceRequestID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountUpvotes(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.upvotes)), nil
}

func (m *MemoryStore) FindUpvote(_ context.Context, requestID uuid.UUID, actor models.Actor) (*models.Upvote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.upvotes {
		if u.ServiceRequestID == requestID && actor.Matches(u) {
			return &u, nil
		}
	}
	return nil, services.ErrNotFound
}

// InsertUpvote enforces the same uniqueness the database indexes do
func (m *MemoryStore) InsertUpvote(_ context.Context, u *models.Upvote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[u.ServiceRequestID]; !ok {
		return services.ErrNotFound
	}
	voter := models.Actor{}
	if u.UserID != nil {
		voter.UserID = *u.UserID
	} else if u.IPAddress != nil {
		voter.IPAddress = *u.IPAddress
	}
	for _, existing := range m.upvotes {
		if existing.ServiceRequestID == u.ServiceRequestID && voter.Matches(existing) {
			return services.ErrDuplicateUpvote
		}
	}
	m.upvotes[u.ID] = *u
	return nil
}

func (m *MemoryStore) DeleteUpvote(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.upvotes[id]; !ok {
		return services.ErrNotFound
	}
	delete(m.upvotes, id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) InsertUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return services.ErrDuplicateEmail
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, services.ErrNotFound
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}
