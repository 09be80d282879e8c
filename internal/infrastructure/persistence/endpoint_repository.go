package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docuflow/backend/internal/domain/models"
	apperrors "github.com/docuflow/backend/pkg/errors"
)

// EndpointRepository handles database operations for the two kinds of
// outbound endpoints: event webhooks and scheduled integration configs.
// Both share the governor's failure-counter columns.
type EndpointRepository struct {
	db *sql.DB
}

// NewEndpointRepository creates a new EndpointRepository
func NewEndpointRepository(db *sql.DB) *EndpointRepository {
	return &EndpointRepository{db: db}
}

const webhookColumns = `id, name, url, event_type, secret_key, headers, is_enabled,
	success_count, failure_count, last_triggered_at, last_error,
	created_by, created_at, updated_at`

const integrationColumns = `id, name, integration_type, endpoint_url, api_key, is_enabled,
	sync_interval_minutes, last_sync_at, next_sync_at,
	success_count, failure_count, last_error,
	created_by, created_at, updated_at`

// GetWebhook fetches a webhook by ID
func (r *EndpointRepository) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, webhookColumns, TableWebhook)
	wh, err := scanWebhook(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("webhook", id)
	}
	return wh, err
}

// InsertWebhook persists a new webhook
func (r *EndpointRepository) InsertWebhook(ctx context.Context, exec Executor, wh *models.Webhook) error {
	headersJSON, err := json.Marshal(wh.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook headers: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, TableWebhook, webhookColumns)

	_, err = exec.ExecContext(ctx, query,
		wh.ID, wh.Name, wh.URL, wh.EventType, wh.SecretKey, headersJSON,
		wh.IsEnabled, wh.SuccessCount, wh.FailureCount, wh.LastTriggeredAt,
		wh.LastError, wh.CreatedBy)
	return err
}

// FindEnabledWebhooks returns enabled webhooks subscribed to an event type
func (r *EndpointRepository) FindEnabledWebhooks(ctx context.Context, eventType string) ([]*models.Webhook, error) {
	where, args := NewCriteria().
		Eq("event_type", eventType).
		Eq("is_enabled", true).
		Where()

	query := fmt.Sprintf(`SELECT %s FROM %s%s`, webhookColumns, TableWebhook, where)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, wh)
	}
	return webhooks, rows.Err()
}

// RecordWebhookSuccess resets the failure counter and stamps the trigger time
func (r *EndpointRepository) RecordWebhookSuccess(ctx context.Context, exec Executor, id string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET failure_count = 0, success_count = success_count + 1,
		    last_triggered_at = ?, last_error = NULL, updated_at = NOW()
		WHERE id = ?
	`, TableWebhook)
	_, err := exec.ExecContext(ctx, query, at, id)
	return err
}

// RecordWebhookFailure increments the failure counter and returns the new count
func (r *EndpointRepository) RecordWebhookFailure(ctx context.Context, exec Executor, id string, at time.Time, lastError string) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET failure_count = failure_count + 1, last_triggered_at = ?,
		    last_error = ?, updated_at = NOW()
		WHERE id = ?
	`, TableWebhook)
	if _, err := exec.ExecContext(ctx, query, at, lastError, id); err != nil {
		return 0, err
	}

	var count int
	countQuery := fmt.Sprintf(`SELECT failure_count FROM %s WHERE id = ?`, TableWebhook)
	if err := exec.QueryRowContext(ctx, countQuery, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetWebhookEnabled flips the enabled flag; kept separate from the failure
// counters so disablement stays an explicit caller decision.
func (r *EndpointRepository) SetWebhookEnabled(ctx context.Context, exec Executor, id string, enabled bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_enabled = ?, updated_at = NOW() WHERE id = ?`, TableWebhook)
	res, err := exec.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("webhook", id)
	}
	return nil
}

// GetIntegration fetches an integration config by ID
func (r *EndpointRepository) GetIntegration(ctx context.Context, id string) (*models.IntegrationConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, integrationColumns, TableIntegration)
	ic, err := scanIntegration(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("integration config", id)
	}
	return ic, err
}

// InsertIntegration persists a new integration config
func (r *EndpointRepository) InsertIntegration(ctx context.Context, exec Executor, ic *models.IntegrationConfig) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, TableIntegration, integrationColumns)

	_, err := exec.ExecContext(ctx, query,
		ic.ID, ic.Name, ic.IntegrationType, ic.EndpointURL, ic.APIKey,
		ic.IsEnabled, ic.SyncIntervalMinutes, ic.LastSyncAt, ic.NextSyncAt,
		ic.SuccessCount, ic.FailureCount, ic.LastError, ic.CreatedBy)
	return err
}

// FindDueIntegrations returns enabled integrations whose next_sync_at has
// passed, oldest-due first so partial batches never starve an endpoint.
func (r *EndpointRepository) FindDueIntegrations(ctx context.Context, now time.Time, page Page) ([]*models.IntegrationConfig, error) {
	where, args := NewCriteria().
		Eq("is_enabled", true).
		NotNull("next_sync_at").
		AtOrBefore("next_sync_at", now).
		Where()

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY next_sync_at ASC%s`,
		integrationColumns, TableIntegration, where, page.Clause())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due integrations: %w", err)
	}
	defer rows.Close()

	var configs []*models.IntegrationConfig
	for rows.Next() {
		ic, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, ic)
	}
	return configs, rows.Err()
}

// RecordIntegrationSuccess resets the failure counter and schedules the next sync
func (r *EndpointRepository) RecordIntegrationSuccess(ctx context.Context, exec Executor, id string, at, nextSync time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET failure_count = 0, success_count = success_count + 1,
		    last_sync_at = ?, next_sync_at = ?, last_error = NULL, updated_at = NOW()
		WHERE id = ?
	`, TableIntegration)
	_, err := exec.ExecContext(ctx, query, at, nextSync, id)
	return err
}

// RecordIntegrationFailure increments the failure counter, backs off the next
// sync and returns the new count.
func (r *EndpointRepository) RecordIntegrationFailure(ctx context.Context, exec Executor, id string, at, nextSync time.Time, lastError string) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET failure_count = failure_count + 1, last_sync_at = ?, next_sync_at = ?,
		    last_error = ?, updated_at = NOW()
		WHERE id = ?
	`, TableIntegration)
	if _, err := exec.ExecContext(ctx, query, at, nextSync, lastError, id); err != nil {
		return 0, err
	}

	var count int
	countQuery := fmt.Sprintf(`SELECT failure_count FROM %s WHERE id = ?`, TableIntegration)
	if err := exec.QueryRowContext(ctx, countQuery, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetIntegrationEnabled flips the enabled flag
func (r *EndpointRepository) SetIntegrationEnabled(ctx context.Context, exec Executor, id string, enabled bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_enabled = ?, updated_at = NOW() WHERE id = ?`, TableIntegration)
	res, err := exec.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("integration config", id)
	}
	return nil
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var wh models.Webhook
	var secretKey, lastError sql.NullString
	var lastTriggered sql.NullTime
	var headersJSON []byte

	err := row.Scan(&wh.ID, &wh.Name, &wh.URL, &wh.EventType, &secretKey,
		&headersJSON, &wh.IsEnabled, &wh.SuccessCount, &wh.FailureCount,
		&lastTriggered, &lastError, &wh.CreatedBy, &wh.CreatedAt, &wh.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &wh.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers for webhook %s: %w", wh.ID, err)
		}
	}

	wh.SecretKey = nullString(secretKey)
	wh.LastError = nullString(lastError)
	wh.LastTriggeredAt = nullTime(lastTriggered)
	return &wh, nil
}

func scanIntegration(row rowScanner) (*models.IntegrationConfig, error) {
	var ic models.IntegrationConfig
	var apiKey, lastError sql.NullString
	var lastSync, nextSync sql.NullTime

	err := row.Scan(&ic.ID, &ic.Name, &ic.IntegrationType, &ic.EndpointURL,
		&apiKey, &ic.IsEnabled, &ic.SyncIntervalMinutes, &lastSync, &nextSync,
		&ic.SuccessCount, &ic.FailureCount, &lastError, &ic.CreatedBy,
		&ic.CreatedAt, &ic.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ic.APIKey = nullString(apiKey)
	ic.LastError = nullString(lastError)
	ic.LastSyncAt = nullTime(lastSync)
	ic.NextSyncAt = nullTime(nextSync)
	return &ic, nil
}
