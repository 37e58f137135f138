// Package notify delivers status change notifications to submitters.
package notify

import (
	"context"
	"errors"

	"civicservice-be/metrics"
	"civicservice-be/models"
	"civicservice-be/services"

	"github.com/apex/log"
)

// LogNotifier only logs. It is used when no delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyStatusChange(_ context.Context, change models.StatusChange) error {
	log.WithFields(log.Fields{
		"contact":    change.Contact,
		"request_id": change.RequestID,
		"old_status": change.OldStatus,
		"new_status": change.NewStatus,
	}).Warn("no notifier configured, skipping status update email")
	return nil
}

// Multi fans out to every notifier and joins their errors
type Multi []services.Notifier

func (m Multi) NotifyStatusChange(ctx context.Context, change models.StatusChange) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyStatusChange(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Instrumented counts deliveries by outcome
type Instrumented struct {
	Next services.Notifier
}

func (i Instrumented) NotifyStatusChange(ctx context.Context, change models.StatusChange) error {
	err := i.Next.NotifyStatusChange(ctx, change)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.NotificationsTotal.WithLabelValues("ok").Inc()
	return nil
}
