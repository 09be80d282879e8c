package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/events"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
	"github.com/docuflow/backend/pkg/utils"
)

// WebhookDispatcher delivers engine events to subscribed HTTP endpoints.
// Failures feed the CircuitGovernor; an endpoint past the threshold gets
// disabled here, which is the explicit disablement act the governor only
// signals.
type WebhookDispatcher struct {
	endpoints *persistence.EndpointRepository
	governor  *CircuitGovernor
	txManager *persistence.TransactionManager
	client    *http.Client
	cfg       *config.Config
}

// NewWebhookDispatcher creates a new WebhookDispatcher
func NewWebhookDispatcher(endpoints *persistence.EndpointRepository, governor *CircuitGovernor, txManager *persistence.TransactionManager, cfg *config.Config) *WebhookDispatcher {
	return &WebhookDispatcher{
		endpoints: endpoints,
		governor:  governor,
		txManager: txManager,
		client:    &http.Client{Timeout: cfg.DispatchTimeout},
		cfg:       cfg,
	}
}

// webhookEnvelope is the wire format POSTed to endpoints
type webhookEnvelope struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Register subscribes the dispatcher to every event kind on the bus
func (d *WebhookDispatcher) Register(bus *EventBus) {
	kinds := []events.EventType{
		events.Alert30Days, events.Alert15Days, events.Alert7Days,
		events.AlertExpired, events.ExpiryRenewed,
		events.StepAssigned, events.InstanceOverdue,
		events.InstanceApproved, events.InstanceRejected, events.InstanceCancelled,
		events.DocumentDeleted, events.DocumentArchived, events.VersionCreated,
	}
	for _, kind := range kinds {
		k := kind
		bus.Subscribe(k, func(ctx context.Context, payload interface{}) error {
			// Outbound HTTP must not fail the publishing transaction.
			go d.Dispatch(context.Background(), k, payload)
			return nil
		})
	}
}

// Dispatch delivers one event to every enabled webhook subscribed to it.
// Per-endpoint failures are isolated.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, eventType events.EventType, payload interface{}) {
	webhooks, err := d.endpoints.FindEnabledWebhooks(ctx, eventType.String())
	if err != nil {
		log.Printf("⚠️ Webhook lookup failed for %s: %v", eventType, err)
		return
	}

	for _, wh := range webhooks {
		if err := d.deliver(ctx, wh, eventType, payload); err != nil {
			d.recordFailure(ctx, wh, err)
		} else {
			if err := d.governor.RecordWebhookSuccess(ctx, wh.ID, time.Now().UTC()); err != nil {
				log.Printf("⚠️ Failed to record webhook success for %s: %v", wh.ID, err)
			}
		}
	}
}

func (d *WebhookDispatcher) deliver(ctx context.Context, wh *models.Webhook, eventType events.EventType, payload interface{}) error {
	body, err := json.Marshal(webhookEnvelope{
		ID:        utils.GenerateID(),
		Event:     eventType.String(),
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", eventType.String())
	if wh.SecretKey != nil && *wh.SecretKey != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, *wh.SecretKey))
	}
	for key, value := range wh.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *WebhookDispatcher) recordFailure(ctx context.Context, wh *models.Webhook, cause error) {
	log.Printf("❌ Webhook delivery to %s (%s) failed: %v", wh.Name, wh.URL, cause)

	disabled, err := d.governor.RecordWebhookFailure(ctx, wh.ID, time.Now().UTC(), cause.Error())
	if err != nil {
		log.Printf("⚠️ Failed to record webhook failure for %s: %v", wh.ID, err)
		return
	}
	if disabled {
		if err := d.endpoints.SetWebhookEnabled(ctx, d.txManager.ExecutorFor(ctx), wh.ID, false); err != nil {
			log.Printf("⚠️ Failed to disable webhook %s: %v", wh.ID, err)
		} else {
			log.Printf("🚫 Webhook %s disabled after repeated failures", wh.Name)
		}
	}
}

// Sign computes the hex HMAC-SHA256 signature of a payload under a secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
