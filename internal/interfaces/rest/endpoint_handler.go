package rest

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/docuflow/backend/internal/domain/models"
)

// EndpointRegistry defines the interface for webhook/integration management
type EndpointRegistry interface {
	CreateWebhook(ctx context.Context, wh *models.Webhook) (*models.Webhook, error)
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	SetWebhookEnabled(ctx context.Context, id string, enabled bool) error
	CreateIntegration(ctx context.Context, ic *models.IntegrationConfig) (*models.IntegrationConfig, error)
	GetIntegration(ctx context.Context, id string) (*models.IntegrationConfig, error)
	SetIntegrationEnabled(ctx context.Context, id string, enabled bool) error
}

// EndpointHandler handles webhook and integration endpoint API endpoints
type EndpointHandler struct {
	svc EndpointRegistry
}

// NewEndpointHandler creates a new EndpointHandler
func NewEndpointHandler(svc EndpointRegistry) *EndpointHandler {
	return &EndpointHandler{svc: svc}
}

// CreateWebhookRequest represents a webhook registration
type CreateWebhookRequest struct {
	Name      string            `json:"name" binding:"required"`
	URL       string            `json:"url" binding:"required"`
	EventType string            `json:"event_type" binding:"required"`
	SecretKey *string           `json:"secret_key"`
	Headers   map[string]string `json:"headers"`
}

// CreateIntegrationRequest represents an integration endpoint registration
type CreateIntegrationRequest struct {
	Name                string  `json:"name" binding:"required"`
	IntegrationType     string  `json:"integration_type" binding:"required"`
	EndpointURL         string  `json:"endpoint_url" binding:"required"`
	APIKey              *string `json:"api_key"`
	SyncIntervalMinutes int     `json:"sync_interval_minutes"`
}

// SetEnabledRequest represents an explicit enable/disable decision
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// CreateWebhook handles POST /api/webhooks
func (h *EndpointHandler) CreateWebhook(c *gin.Context) {
	user := GetUserFromContext(c)

	var req CreateWebhookRequest
	if !BindJSON(c, &req) {
		return
	}

	wh := &models.Webhook{
		Name:      req.Name,
		URL:       req.URL,
		EventType: req.EventType,
		SecretKey: req.SecretKey,
		Headers:   req.Headers,
		CreatedBy: user.ID,
	}

	HandleCreateEnvelope(c, "webhook", "Webhook created", func() (interface{}, error) {
		return h.svc.CreateWebhook(c.Request.Context(), wh)
	})
}

// GetWebhook handles GET /api/webhooks/:id
func (h *EndpointHandler) GetWebhook(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "webhook", func() (interface{}, error) {
		return h.svc.GetWebhook(c.Request.Context(), id)
	})
}

// SetWebhookEnabled handles PUT /api/webhooks/:id/enabled
func (h *EndpointHandler) SetWebhookEnabled(c *gin.Context) {
	id := c.Param("id")

	var req SetEnabledRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleUpdateEnvelope(c, "Webhook updated", func() error {
		return h.svc.SetWebhookEnabled(c.Request.Context(), id, *req.Enabled)
	})
}

// CreateIntegration handles POST /api/integrations
func (h *EndpointHandler) CreateIntegration(c *gin.Context) {
	user := GetUserFromContext(c)

	var req CreateIntegrationRequest
	if !BindJSON(c, &req) {
		return
	}

	ic := &models.IntegrationConfig{
		Name:                req.Name,
		IntegrationType:     req.IntegrationType,
		EndpointURL:         req.EndpointURL,
		APIKey:              req.APIKey,
		SyncIntervalMinutes: req.SyncIntervalMinutes,
		CreatedBy:           user.ID,
	}

	HandleCreateEnvelope(c, "integration", "Integration created", func() (interface{}, error) {
		return h.svc.CreateIntegration(c.Request.Context(), ic)
	})
}

// GetIntegration handles GET /api/integrations/:id
func (h *EndpointHandler) GetIntegration(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "integration", func() (interface{}, error) {
		return h.svc.GetIntegration(c.Request.Context(), id)
	})
}

// SetIntegrationEnabled handles PUT /api/integrations/:id/enabled
func (h *EndpointHandler) SetIntegrationEnabled(c *gin.Context) {
	id := c.Param("id")

	var req SetEnabledRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleUpdateEnvelope(c, "Integration updated", func() error {
		return h.svc.SetIntegrationEnabled(c.Request.Context(), id, *req.Enabled)
	})
}
