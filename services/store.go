package services

import (
	"context"
	"errors"

	"civicservice-be/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateUpvote = errors.New("upvote already exists")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrViewerRequired  = errors.New("an authenticated viewer is required")
)

// Store persists service requests and their upvotes. Implementations must
// enforce upvote uniqueness per (request, user) and per (request, anonymous IP)
// and report violations as ErrDuplicateUpvote.
type Store interface {
	InsertRequest(ctx context.Context, r *models.ServiceRequest) error
	// FindRequest returns ErrNotFound when the id is unknown
	FindRequest(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	// QueryRequests filters, sorts and slices, returning the page and the
	// pre-pagination total.
	QueryRequests(ctx context.Context, q models.RequestQuery) ([]models.ServiceRequest, int64, error)
	AllRequests(ctx context.Context) ([]models.ServiceRequest, error)
	// UpdateRequestStatus returns ErrNotFound when the id is unknown
	UpdateRequestStatus(ctx context.Context, r *models.ServiceRequest) error

	ListUpvotes(ctx context.Context, requestIDs []uuid.UUID) ([]models.Upvote, error)
	CountUpvotes(ctx context.Context) (int64, error)
	// FindUpvote returns ErrNotFound when the actor has no vote on the request
	FindUpvote(ctx context.Context, requestID uuid.UUID, actor models.Actor) (*models.Upvote, error)
	InsertUpvote(ctx context.Context, u *models.Upvote) error
	// DeleteUpvote returns ErrNotFound when nothing was deleted
	DeleteUpvote(ctx context.Context, id uuid.UUID) error

	Ping(ctx context.Context) error
}

// UserStore persists accounts
type UserStore interface {
	// InsertUser returns ErrDuplicateEmail when the email is taken
	InsertUser(ctx context.Context, u *models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

//go:generate mockgen -destination=mocks/notifier.go -package=mocks civicservice-be/services Notifier

// Notifier tells a submitter their request changed status
type Notifier interface {
	NotifyStatusChange(ctx context.Context, change models.StatusChange) error
}
