package services

import (
	"context"
	"strings"
	"time"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
	apperrors "github.com/docuflow/backend/pkg/errors"
	"github.com/docuflow/backend/pkg/utils"
)

// EndpointService manages webhook and integration endpoint registrations.
// Delivery and sync execution belong to the dispatcher and sync services; this
// one only covers the administrative surface.
type EndpointService struct {
	endpoints *persistence.EndpointRepository
	txManager *persistence.TransactionManager
	cfg       *config.Config
}

func NewEndpointService(endpoints *persistence.EndpointRepository, txManager *persistence.TransactionManager, cfg *config.Config) *EndpointService {
	return &EndpointService{
		endpoints: endpoints,
		txManager: txManager,
		cfg:       cfg,
	}
}

// CreateWebhook registers a new outbound webhook, enabled from the start.
func (s *EndpointService) CreateWebhook(ctx context.Context, wh *models.Webhook) (*models.Webhook, error) {
	if strings.TrimSpace(wh.Name) == "" {
		return nil, apperrors.NewValidationError("name", "webhook name is required")
	}
	if !strings.HasPrefix(wh.URL, "http://") && !strings.HasPrefix(wh.URL, "https://") {
		return nil, apperrors.NewValidationError("url", "webhook URL must be an absolute http(s) URL")
	}
	if wh.EventType == "" {
		return nil, apperrors.NewValidationError("event_type", "event type is required")
	}

	wh.ID = utils.GenerateID()
	wh.IsEnabled = true
	wh.SuccessCount = 0
	wh.FailureCount = 0

	exec := s.txManager.ExecutorFor(ctx)
	if err := s.endpoints.InsertWebhook(ctx, exec, wh); err != nil {
		return nil, apperrors.NewTransientStoreError("insert webhook", err)
	}
	return s.endpoints.GetWebhook(ctx, wh.ID)
}

func (s *EndpointService) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	return s.endpoints.GetWebhook(ctx, id)
}

// SetWebhookEnabled flips the enabled flag. Re-enabling does not touch the
// failure counter; only a successful dispatch resets it.
func (s *EndpointService) SetWebhookEnabled(ctx context.Context, id string, enabled bool) error {
	return s.endpoints.SetWebhookEnabled(ctx, s.txManager.ExecutorFor(ctx), id, enabled)
}

// CreateIntegration registers a new sync endpoint and schedules its first run
// one interval out.
func (s *EndpointService) CreateIntegration(ctx context.Context, ic *models.IntegrationConfig) (*models.IntegrationConfig, error) {
	if strings.TrimSpace(ic.Name) == "" {
		return nil, apperrors.NewValidationError("name", "integration name is required")
	}
	if !strings.HasPrefix(ic.EndpointURL, "http://") && !strings.HasPrefix(ic.EndpointURL, "https://") {
		return nil, apperrors.NewValidationError("endpoint_url", "endpoint URL must be an absolute http(s) URL")
	}
	switch ic.IntegrationType {
	case models.IntegrationTypeERP, models.IntegrationTypeLDAP,
		models.IntegrationTypeArchive, models.IntegrationTypeCustom:
	default:
		return nil, apperrors.NewValidationError("integration_type", "unknown integration type")
	}

	interval := time.Duration(ic.SyncIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = s.cfg.SyncBaseInterval
	}

	ic.ID = utils.GenerateID()
	ic.IsEnabled = true
	ic.SuccessCount = 0
	ic.FailureCount = 0
	next := time.Now().UTC().Add(interval)
	ic.NextSyncAt = &next

	exec := s.txManager.ExecutorFor(ctx)
	if err := s.endpoints.InsertIntegration(ctx, exec, ic); err != nil {
		return nil, apperrors.NewTransientStoreError("insert integration", err)
	}
	return s.endpoints.GetIntegration(ctx, ic.ID)
}

func (s *EndpointService) GetIntegration(ctx context.Context, id string) (*models.IntegrationConfig, error) {
	return s.endpoints.GetIntegration(ctx, id)
}

// SetIntegrationEnabled flips the enabled flag without touching counters.
func (s *EndpointService) SetIntegrationEnabled(ctx context.Context, id string, enabled bool) error {
	return s.endpoints.SetIntegrationEnabled(ctx, s.txManager.ExecutorFor(ctx), id, enabled)
}
