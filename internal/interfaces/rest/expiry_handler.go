package rest

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuflow/backend/internal/application/services"
	"github.com/docuflow/backend/internal/domain/models"
)

// ExpiryTracker defines the interface for expiry tracking operations
type ExpiryTracker interface {
	Track(ctx context.Context, documentID, expiryType string, expiryDate time.Time, assignedTo, department string, notes *string) (*models.ExpiryTracking, error)
	Get(ctx context.Context, id string) (*models.ExpiryTracking, error)
	Renew(ctx context.Context, id string, newExpiryDate time.Time, renewedBy string) (*models.ExpiryTracking, error)
	MarkExpired(ctx context.Context, id string) error
	ListByDocument(ctx context.Context, documentID string) ([]*models.ExpiryTracking, error)
	Evaluate(ctx context.Context, now time.Time) (*services.EvaluationResult, error)
	Statistics(ctx context.Context) (map[string]int64, error)
}

// ExpiryHandler handles expiry tracking API endpoints
type ExpiryHandler struct {
	svc ExpiryTracker
}

// NewExpiryHandler creates a new ExpiryHandler
func NewExpiryHandler(svc ExpiryTracker) *ExpiryHandler {
	return &ExpiryHandler{svc: svc}
}

// TrackRequest represents a request to put a document under expiry tracking
type TrackRequest struct {
	DocumentID string    `json:"document_id" binding:"required"`
	ExpiryType string    `json:"expiry_type" binding:"required"`
	ExpiryDate time.Time `json:"expiry_date" binding:"required"`
	AssignedTo string    `json:"assigned_to" binding:"required"`
	Department string    `json:"department"`
	Notes      *string   `json:"notes"`
}

// RenewRequest represents a renewal of a tracked expiry
type RenewRequest struct {
	NewExpiryDate time.Time `json:"new_expiry_date" binding:"required"`
}

// Track handles POST /api/expiry
func (h *ExpiryHandler) Track(c *gin.Context) {
	var req TrackRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleCreateEnvelope(c, "expiry", "Expiry tracking created", func() (interface{}, error) {
		return h.svc.Track(c.Request.Context(), req.DocumentID, req.ExpiryType,
			req.ExpiryDate, req.AssignedTo, req.Department, req.Notes)
	})
}

// Get handles GET /api/expiry/:id
func (h *ExpiryHandler) Get(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "expiry", func() (interface{}, error) {
		return h.svc.Get(c.Request.Context(), id)
	})
}

// Renew handles POST /api/expiry/:id/renew
func (h *ExpiryHandler) Renew(c *gin.Context) {
	id := c.Param("id")
	user := GetUserFromContext(c)

	var req RenewRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleCreateEnvelope(c, "expiry", "Expiry renewed", func() (interface{}, error) {
		return h.svc.Renew(c.Request.Context(), id, req.NewExpiryDate, user.ID)
	})
}

// MarkExpired handles POST /api/expiry/:id/expire
func (h *ExpiryHandler) MarkExpired(c *gin.Context) {
	id := c.Param("id")
	HandleUpdateEnvelope(c, "Expiry marked expired", func() error {
		return h.svc.MarkExpired(c.Request.Context(), id)
	})
}

// ListByDocument handles GET /api/documents/:id/expiry
func (h *ExpiryHandler) ListByDocument(c *gin.Context) {
	documentID := c.Param("id")
	HandleGetEnvelope(c, "expiries", func() (interface{}, error) {
		return h.svc.ListByDocument(c.Request.Context(), documentID)
	})
}

// Summary handles GET /api/expiry/summary
func (h *ExpiryHandler) Summary(c *gin.Context) {
	HandleGetEnvelope(c, "summary", func() (interface{}, error) {
		return h.svc.Evaluate(c.Request.Context(), time.Now().UTC())
	})
}

// Statistics handles GET /api/expiry/statistics
func (h *ExpiryHandler) Statistics(c *gin.Context) {
	HandleGetEnvelope(c, "statistics", func() (interface{}, error) {
		return h.svc.Statistics(c.Request.Context())
	})
}
