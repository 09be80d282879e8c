package services

import (
	"context"
	"log"

	"github.com/docuflow/backend/internal/domain/events"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/domain/ports"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
	"github.com/docuflow/backend/pkg/utils"
)

// NotificationService persists a durable notification row per engine event and
// hands the event to the bus. The flag flips that guard exactly-once semantics
// (alert flags, step transitions) happen only after Emit returns, so delivery
// is at-least-once and the durable row is written before any flag commits.
type NotificationService struct {
	notifications *persistence.NotificationRepository
	txManager     *persistence.TransactionManager
	publisher     ports.EventPublisher
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifications *persistence.NotificationRepository, txManager *persistence.TransactionManager, publisher ports.EventPublisher) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		txManager:     txManager,
		publisher:     publisher,
	}
}

// Emit writes the notification record and publishes the event. A publish
// failure is logged, not returned: the durable row is the source of truth and
// delivery collaborators can catch up from it.
func (s *NotificationService) Emit(ctx context.Context, event events.NotificationEvent) error {
	n := &models.Notification{
		ID:          utils.GenerateID(),
		RecipientID: event.RecipientID,
		Kind:        event.Kind.String(),
		SubjectID:   event.SubjectID,
		Title:       event.Title,
		Body:        event.Body,
	}

	exec := s.txManager.ExecutorFor(ctx)
	if err := s.notifications.Insert(ctx, exec, n); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, event.Kind, event); err != nil {
		log.Printf("⚠️ Event handoff failed for %s (subject %s): %v", event.Kind, event.SubjectID, err)
	}
	return nil
}

// ListForUser returns a user's notifications, optionally unread only
func (s *NotificationService) ListForUser(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.notifications.FindByRecipient(ctx, recipientID, unreadOnly, persistence.Page{Limit: limit})
}

// MarkRead marks a single notification as read for its recipient
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID string) (bool, error) {
	return s.notifications.MarkRead(ctx, s.txManager.ExecutorFor(ctx), id, recipientID)
}

// CountUnread returns the user's unread notification count
func (s *NotificationService) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	return s.notifications.CountUnread(ctx, recipientID)
}
