package persistence

import (
	"context"
	"database/sql"
)

// Executor interface for db/tx flexibility
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Table names of the lifecycle store
const (
	TableDocument        = "documents"
	TableDocumentVersion = "document_versions"
	TableFolder          = "folders"
	TableWorkflow        = "workflows"
	TableInstance        = "workflow_instances"
	TableStep            = "workflow_steps"
	TableExpiryTracking  = "expiry_tracking"
	TableWebhook         = "webhooks"
	TableIntegration     = "integration_configs"
	TableNotification    = "notifications"
)
