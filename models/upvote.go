package models

import (
	"time"

	"github.com/google/uuid"
)

// Upvote records that an actor is affected by a service request.
// Exactly one of UserID and IPAddress is set.
type Upvote struct {
	ID               uuid.UUID `json:"id"`
	ServiceRequestID uuid.UUID `json:"serviceRequestId"`
	UserID           *string   `json:"userId,omitempty"`
	IPAddress        *string   `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Actor is whoever is reading or voting: a signed-in user, or an anonymous client IP.
type Actor struct {
	UserID    string
	IPAddress string
}

// Authenticated reports whether the actor carries a user id
func (a Actor) Authenticated() bool {
	return a.UserID != ""
}

// Known reports whether the actor can be identified at all
func (a Actor) Known() bool {
	return a.UserID != "" || a.IPAddress != ""
}

// Matches reports whether the upvote was cast by this actor. Signed-in actors
// are matched by user id only, anonymous actors by IP only.
func (a Actor) Matches(u Upvote) bool {
	if a.UserID != "" {
		return u.UserID != nil && *u.UserID == a.UserID
	}
	if a.IPAddress != "" {
		return u.UserID == nil && u.IPAddress != nil && *u.IPAddress == a.IPAddress
	}
	return false
}

// NewUpvote builds the record this actor would store for the request
func (a Actor) NewUpvote(requestID uuid.UUID, now time.Time) Upvote {
	u := Upvote{
		ID:               uuid.New(),
		ServiceRequestID: requestID,
		CreatedAt:        now,
	}
	if a.UserID != "" {
		id := a.UserID
		u.UserID = &id
	} else {
		ip := a.IPAddress
		u.IPAddress = &ip
	}
	return u
}
