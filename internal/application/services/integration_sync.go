package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
)

// IntegrationSyncService pushes sync requests to due enterprise integration
// endpoints. Scheduling and backoff live in the CircuitGovernor; this service
// only performs the HTTP exchange and reports the outcome.
type IntegrationSyncService struct {
	endpoints *persistence.EndpointRepository
	governor  *CircuitGovernor
	txManager *persistence.TransactionManager
	client    *http.Client
	cfg       *config.Config
}

// NewIntegrationSyncService creates a new IntegrationSyncService
func NewIntegrationSyncService(endpoints *persistence.EndpointRepository, governor *CircuitGovernor, txManager *persistence.TransactionManager, cfg *config.Config) *IntegrationSyncService {
	return &IntegrationSyncService{
		endpoints: endpoints,
		governor:  governor,
		txManager: txManager,
		client:    &http.Client{Timeout: cfg.DispatchTimeout},
		cfg:       cfg,
	}
}

// SyncDue runs one sync pass over all due integrations. Per-endpoint
// failures are isolated; the governor decides when each endpoint runs next.
func (s *IntegrationSyncService) SyncDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.governor.DueForSync(ctx, now)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, ic := range due {
		if err := s.syncOne(ctx, ic); err != nil {
			s.recordFailure(ctx, ic, err)
			continue
		}
		if err := s.governor.RecordIntegrationSuccess(ctx, ic, time.Now().UTC()); err != nil {
			log.Printf("⚠️ Failed to record sync success for integration %s: %v", ic.ID, err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (s *IntegrationSyncService) syncOne(ctx context.Context, ic *models.IntegrationConfig) error {
	log.Printf("📤 Syncing integration %s (%s)", ic.Name, ic.IntegrationType)

	body, err := json.Marshal(map[string]interface{}{
		"integration_type": ic.IntegrationType,
		"requested_at":     time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ic.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if ic.APIKey != nil && *ic.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+*ic.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (s *IntegrationSyncService) recordFailure(ctx context.Context, ic *models.IntegrationConfig, cause error) {
	log.Printf("❌ Integration sync %s failed: %v", ic.Name, cause)

	disabled, err := s.governor.RecordIntegrationFailure(ctx, ic, time.Now().UTC(), cause.Error())
	if err != nil {
		log.Printf("⚠️ Failed to record sync failure for integration %s: %v", ic.ID, err)
		return
	}
	if disabled {
		if err := s.endpoints.SetIntegrationEnabled(ctx, s.txManager.ExecutorFor(ctx), ic.ID, false); err != nil {
			log.Printf("⚠️ Failed to disable integration %s: %v", ic.ID, err)
		} else {
			log.Printf("🚫 Integration %s disabled after repeated failures", ic.Name)
		}
	}
}
