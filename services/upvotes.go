package services

import (
	"context"
	"errors"
	"fmt"

	"civicservice-be/models"

	"github.com/apex/log"
	"github.com/google/uuid"
)

// Upvote records the actor's vote. It returns false without changing
// anything when the request does not exist or the actor already voted.
// The existence check is only a fast path; the store's unique indexes
// decide races between concurrent votes.
func (s *RequestService) Upvote(ctx context.Context, requestID uuid.UUID, actor models.Actor) (bool, error) {
	if !actor.Known() {
		return false, nil
	}

	if _, err := s.store.FindRequest(ctx, requestID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find service request: %w", err)
	}

	if _, err := s.store.FindUpvote(ctx, requestID, actor); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("find upvote: %w", err)
	}

	upvote := actor.NewUpvote(requestID, s.clock())
	if err := s.store.InsertUpvote(ctx, &upvote); err != nil {
		if errors.Is(err, ErrDuplicateUpvote) {
			return false, nil
		}
		return false, fmt.Errorf("insert upvote: %w", err)
	}

	log.WithFields(log.Fields{
		"request_id":    requestID,
		"authenticated": actor.Authenticated(),
	}).Info("upvoted service request")
	return true, nil
}

// RemoveUpvote deletes the actor's vote, returning false when there is none
func (s *RequestService) RemoveUpvote(ctx context.Context, requestID uuid.UUID, actor models.Actor) (bool, error) {
	if !actor.Known() {
		return false, nil
	}

	upvote, err := s.store.FindUpvote(ctx, requestID, actor)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find upvote: %w", err)
	}

	if err := s.store.DeleteUpvote(ctx, upvote.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete upvote: %w", err)
	}

	log.WithField("request_id", requestID).Info("removed upvote")
	return true, nil
}
