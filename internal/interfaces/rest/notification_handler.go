package rest

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docuflow/backend/internal/domain/models"
	apperrors "github.com/docuflow/backend/pkg/errors"
)

// NotificationReader defines the interface for in-app notification queries
type NotificationReader interface {
	ListForUser(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) (bool, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}

// NotificationHandler handles notification API endpoints
type NotificationHandler struct {
	svc NotificationReader
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(svc NotificationReader) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	user := GetUserFromContext(c)

	unreadOnly := c.Query("unread") == "true"
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	HandleGetEnvelope(c, "notifications", func() (interface{}, error) {
		return h.svc.ListForUser(c.Request.Context(), user.ID, unreadOnly, limit)
	})
}

// MarkRead handles POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	user := GetUserFromContext(c)

	HandleUpdateEnvelope(c, "Notification marked read", func() error {
		ok, err := h.svc.MarkRead(c.Request.Context(), id, user.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewNotFoundError("notification", id)
		}
		return nil
	})
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	user := GetUserFromContext(c)

	HandleGetEnvelope(c, "count", func() (interface{}, error) {
		return h.svc.CountUnread(c.Request.Context(), user.ID)
	})
}
