package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docuflow/backend/internal/domain/models"
)

// NotificationRepository handles database operations for notifications.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, recipient_id, kind, subject_id, title, body,
	is_read, read_at, created_at`

// Insert persists a new notification
func (r *NotificationRepository) Insert(ctx context.Context, exec Executor, n *models.Notification) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW())
	`, TableNotification, notificationColumns)

	_, err := exec.ExecContext(ctx, query,
		n.ID, n.RecipientID, n.Kind, n.SubjectID, n.Title, n.Body,
		n.IsRead, n.ReadAt)
	return err
}

// FindByRecipient returns a user's notifications, newest first
func (r *NotificationRepository) FindByRecipient(ctx context.Context, recipientID string, unreadOnly bool, page Page) ([]*models.Notification, error) {
	c := NewCriteria().Eq("recipient_id", recipientID)
	if unreadOnly {
		c.Eq("is_read", false)
	}

	where, args := c.Where()
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at DESC%s`,
		notificationColumns, TableNotification, where, page.Clause())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead flips is_read for a single notification. The recipient filter
// keeps one user from acknowledging another's alerts.
func (r *NotificationRepository) MarkRead(ctx context.Context, exec Executor, id, recipientID string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET is_read = true, read_at = NOW()
		WHERE id = ? AND recipient_id = ? AND is_read = false
	`, TableNotification)

	res, err := exec.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountUnread returns the number of unread notifications for a user
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE recipient_id = ? AND is_read = false`,
		TableNotification)
	var count int64
	err := r.db.QueryRowContext(ctx, query, recipientID).Scan(&count)
	return count, err
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var readAt sql.NullTime

	err := row.Scan(&n.ID, &n.RecipientID, &n.Kind, &n.SubjectID,
		&n.Title, &n.Body, &n.IsRead, &readAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}

	n.ReadAt = nullTime(readAt)
	return &n, nil
}
