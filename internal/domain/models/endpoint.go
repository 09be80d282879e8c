package models

import (
	"time"
)

// Webhook event type constants
const (
	WebhookEventDocumentUploaded  = "DOCUMENT_UPLOADED"
	WebhookEventDocumentDeleted   = "DOCUMENT_DELETED"
	WebhookEventWorkflowStarted   = "WORKFLOW_STARTED"
	WebhookEventWorkflowCompleted = "WORKFLOW_COMPLETED"
	WebhookEventWorkflowRejected  = "WORKFLOW_REJECTED"
	WebhookEventExpiryAlert       = "EXPIRY_ALERT"
)

// Integration type constants
const (
	IntegrationTypeERP     = "ERP"
	IntegrationTypeLDAP    = "LDAP"
	IntegrationTypeArchive = "ARCHIVE"
	IntegrationTypeCustom  = "CUSTOM"
)

// Webhook is an outbound HTTP endpoint notified on matching events.
// FailureCount resets to zero only on a successful dispatch; crossing the
// configured threshold makes the endpoint eligible for automatic disablement
// but the flip of IsEnabled stays an explicit caller decision.
type Webhook struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	EventType string            `json:"event_type"`
	SecretKey *string           `json:"secret_key,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	IsEnabled bool              `json:"is_enabled"`

	SuccessCount    int64      `json:"success_count"`
	FailureCount    int        `json:"failure_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastError       *string    `json:"last_error,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IntegrationConfig is an enterprise sync endpoint polled on its own
// schedule. NextSyncAt is advanced by the governor's backoff policy.
type IntegrationConfig struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	IntegrationType string  `json:"integration_type"`
	EndpointURL     string  `json:"endpoint_url"`
	APIKey          *string `json:"api_key,omitempty"`
	IsEnabled       bool    `json:"is_enabled"`

	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt          *time.Time `json:"next_sync_at,omitempty"`

	SuccessCount int64   `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	LastError    *string `json:"last_error,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
