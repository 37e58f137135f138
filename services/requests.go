package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"civicservice-be/models"

	"github.com/apex/log"
	"github.com/google/uuid"
)

const defaultNotifyTimeout = 30 * time.Second

// RequestService holds the service request rules: creation, listing,
// statistics, status changes and upvotes.
type RequestService struct {
	store         Store
	users         UserStore
	notifier      Notifier
	now           func() time.Time
	notifyTimeout time.Duration

	inflight sync.WaitGroup
}

type Option func(*RequestService)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *RequestService) { s.now = now }
}

// WithNotifyTimeout bounds each detached notification
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *RequestService) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func NewRequestService(store Store, users UserStore, notifier Notifier, opts ...Option) *RequestService {
	s := &RequestService{
		store:         store,
		users:         users,
		notifier:      notifier,
		now:           time.Now,
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RequestService) clock() time.Time {
	return s.now().UTC()
}

// CreateRequest stores a new open request on behalf of the actor. Guests
// (no user id) are recorded with no submitter.
func (s *RequestService) CreateRequest(ctx context.Context, in models.CreateRequestInput, actor models.Actor) (*models.ServiceRequestView, error) {
	now := s.clock()
	neighborhood := ExtractNeighborhood(in.Address)

	r := &models.ServiceRequest{
		ID:           uuid.New(),
		Category:     in.Category,
		Description:  in.Description,
		Address:      in.Address,
		Neighborhood: &neighborhood,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Status:       models.StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if actor.Authenticated() {
		id := actor.UserID
		r.SubmittedByID = &id
	}

	if err := s.store.InsertRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("insert service request: %w", err)
	}

	log.WithFields(log.Fields{
		"id":       r.ID,
		"category": r.Category,
		"address":  r.Address,
	}).Info("created service request")

	return &models.ServiceRequestView{ServiceRequest: *r}, nil
}

// ListRequests returns one page of requests annotated for the viewer
func (s *RequestService) ListRequests(ctx context.Context, q models.ListQuery, viewer models.Actor) (*models.PagedResult[models.ServiceRequestView], error) {
	return s.list(ctx, models.RequestFilter{Status: q.Status, Category: q.Category}, q, viewer)
}

// ListMyRequests is ListRequests restricted to what the viewer submitted
func (s *RequestService) ListMyRequests(ctx context.Context, q models.ListQuery, viewer models.Actor) (*models.PagedResult[models.ServiceRequestView], error) {
	if !viewer.Authenticated() {
		return nil, ErrViewerRequired
	}
	userID := viewer.UserID
	return s.list(ctx, models.RequestFilter{Status: q.Status, Category: q.Category, SubmittedByID: &userID}, q, viewer)
}

func (s *RequestService) list(ctx context.Context, filter models.RequestFilter, q models.ListQuery, viewer models.Actor) (*models.PagedResult[models.ServiceRequestView], error) {
	page, pageSize := normalizePaging(q.Page, q.PageSize)

	requests, total, err := s.store.QueryRequests(ctx, models.RequestQuery{
		Filter: filter,
		Sort:   models.ParseSortKey(q.Sort),
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("query service requests: %w", err)
	}

	var upvotes []models.Upvote
	if len(requests) > 0 {
		upvotes, err = s.store.ListUpvotes(ctx, requestIDs(requests))
		if err != nil {
			return nil, fmt.Errorf("list upvotes: %w", err)
		}
	}

	return &models.PagedResult[models.ServiceRequestView]{
		Items:      annotate(requests, upvotes, viewer),
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// GetRequest returns ErrNotFound for an unknown id
func (s *RequestService) GetRequest(ctx context.Context, id uuid.UUID, viewer models.Actor) (*models.ServiceRequestView, error) {
	r, err := s.store.FindRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, r, viewer)
}

func (s *RequestService) view(ctx context.Context, r *models.ServiceRequest, viewer models.Actor) (*models.ServiceRequestView, error) {
	upvotes, err := s.store.ListUpvotes(ctx, []uuid.UUID{r.ID})
	if err != nil {
		return nil, fmt.Errorf("list upvotes: %w", err)
	}
	views := annotate([]models.ServiceRequest{*r}, upvotes, viewer)
	return &views[0], nil
}

// UpdateStatus moves a request to any status and, when the submitter has an
// email on file, notifies them in the background. Notification problems
// never fail the update.
func (s *RequestService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.ServiceRequestView, error) {
	r, err := s.store.FindRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	oldStatus := r.Status
	r.Status = status
	r.UpdatedAt = s.clock()
	if r.UpdatedAt.Before(r.CreatedAt) {
		r.UpdatedAt = r.CreatedAt
	}

	if err := s.store.UpdateRequestStatus(ctx, r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update service request status: %w", err)
	}

	log.WithFields(log.Fields{
		"id":         r.ID,
		"old_status": oldStatus,
		"new_status": status,
	}).Info("updated service request status")

	s.notifySubmitter(ctx, r, oldStatus)

	return s.view(ctx, r, models.Actor{})
}

func (s *RequestService) notifySubmitter(ctx context.Context, r *models.ServiceRequest, oldStatus models.Status) {
	if s.notifier == nil || s.users == nil || r.SubmittedByID == nil {
		return
	}

	user, err := s.users.FindUserByID(ctx, *r.SubmittedByID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.WithError(err).Warnf("could not load submitter %s for notification", *r.SubmittedByID)
		}
		return
	}
	if user.Email == "" {
		return
	}

	change := models.StatusChange{
		Contact:     user.Email,
		DisplayName: user.DisplayName(),
		RequestID:   r.ID,
		Category:    r.Category,
		OldStatus:   oldStatus,
		NewStatus:   r.Status,
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		nctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyStatusChange(nctx, change); err != nil {
			log.WithError(err).Errorf("failed to notify %s about request %s", change.Contact, change.RequestID)
		}
	}()
}

// Wait blocks until background notifications have finished
func (s *RequestService) Wait() {
	s.inflight.Wait()
}

// GetStatistics aggregates the whole request collection for the dashboard
func (s *RequestService) GetStatistics(ctx context.Context) (*models.DashboardStats, error) {
	requests, err := s.store.AllRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service requests: %w", err)
	}
	totalUpvotes, err := s.store.CountUpvotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("count upvotes: %w", err)
	}
	stats := computeStatistics(requests, totalUpvotes, s.clock())
	return &stats, nil
}

// MappedRequests returns every matching request that carries coordinates,
// newest first.
func (s *RequestService) MappedRequests(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, error) {
	all, err := s.store.AllRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service requests: %w", err)
	}
	out := []models.ServiceRequest{}
	for i := len(all) - 1; i >= 0; i-- {
		r := all[i]
		if r.Latitude != nil && r.Longitude != nil && filter.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
