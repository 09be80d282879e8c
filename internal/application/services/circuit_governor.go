package services

import (
	"context"
	"log"
	"time"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
)

// CircuitGovernor is the shared failure-counting and backoff policy for
// outbound endpoints (webhooks and integration configs). It signals when an
// endpoint crosses the failure threshold but never flips isEnabled itself;
// disablement stays an explicit, auditable act of the caller.
type CircuitGovernor struct {
	endpoints *persistence.EndpointRepository
	txManager *persistence.TransactionManager
	cfg       *config.Config
}

// NewCircuitGovernor creates a new CircuitGovernor
func NewCircuitGovernor(endpoints *persistence.EndpointRepository, txManager *persistence.TransactionManager, cfg *config.Config) *CircuitGovernor {
	return &CircuitGovernor{
		endpoints: endpoints,
		txManager: txManager,
		cfg:       cfg,
	}
}

// Backoff returns the delay before the next attempt after failureCount
// consecutive failures: base x 2^min(failureCount, cap). The cap bounds
// growth so an endpoint never backs off unboundedly.
func Backoff(base time.Duration, failureCount, capExponent int) time.Duration {
	exp := failureCount
	if exp > capExponent {
		exp = capExponent
	}
	return base * time.Duration(1<<uint(exp))
}

// RecordWebhookSuccess resets the webhook's failure counter
func (g *CircuitGovernor) RecordWebhookSuccess(ctx context.Context, id string, now time.Time) error {
	return g.endpoints.RecordWebhookSuccess(ctx, g.txManager.ExecutorFor(ctx), id, now)
}

// RecordWebhookFailure counts a failed dispatch. The returned flag tells the
// caller the endpoint is now past the threshold and eligible for disablement.
func (g *CircuitGovernor) RecordWebhookFailure(ctx context.Context, id string, now time.Time, cause string) (bool, error) {
	count, err := g.endpoints.RecordWebhookFailure(ctx, g.txManager.ExecutorFor(ctx), id, now, cause)
	if err != nil {
		return false, err
	}
	disabled := count >= g.cfg.FailureThreshold
	if disabled {
		log.Printf("⚠️ Webhook %s reached %d consecutive failures (threshold %d)", id, count, g.cfg.FailureThreshold)
	}
	return disabled, nil
}

// RecordIntegrationSuccess resets the counter and schedules the next sync one
// base interval out.
func (g *CircuitGovernor) RecordIntegrationSuccess(ctx context.Context, ic *models.IntegrationConfig, now time.Time) error {
	next := now.Add(g.baseInterval(ic))
	return g.endpoints.RecordIntegrationSuccess(ctx, g.txManager.ExecutorFor(ctx), ic.ID, now, next)
}

// RecordIntegrationFailure counts a failed sync and pushes nextSyncAt out by
// the exponential backoff. Returns the disablement signal.
func (g *CircuitGovernor) RecordIntegrationFailure(ctx context.Context, ic *models.IntegrationConfig, now time.Time, cause string) (bool, error) {
	// The backoff exponent uses the post-increment count, so the store write
	// and the delay stay in step.
	next := now.Add(Backoff(g.baseInterval(ic), ic.FailureCount+1, g.cfg.BackoffCapExponent))
	count, err := g.endpoints.RecordIntegrationFailure(ctx, g.txManager.ExecutorFor(ctx), ic.ID, now, next, cause)
	if err != nil {
		return false, err
	}
	disabled := count >= g.cfg.FailureThreshold
	if disabled {
		log.Printf("⚠️ Integration %s reached %d consecutive failures (threshold %d)", ic.ID, count, g.cfg.FailureThreshold)
	}
	return disabled, nil
}

// DueForSync returns enabled integrations whose nextSyncAt has passed,
// oldest-due first.
func (g *CircuitGovernor) DueForSync(ctx context.Context, now time.Time) ([]*models.IntegrationConfig, error) {
	return g.endpoints.FindDueIntegrations(ctx, now, persistence.Page{Limit: g.cfg.DiscoveryPageSize})
}

func (g *CircuitGovernor) baseInterval(ic *models.IntegrationConfig) time.Duration {
	if ic.SyncIntervalMinutes > 0 {
		return time.Duration(ic.SyncIntervalMinutes) * time.Minute
	}
	return g.cfg.SyncBaseInterval
}
