package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docuflow/backend/internal/domain/models"
	apperrors "github.com/docuflow/backend/pkg/errors"
)

// ExpiryRepository handles database operations for expiry tracking records.
type ExpiryRepository struct {
	db *sql.DB
}

// NewExpiryRepository creates a new ExpiryRepository
func NewExpiryRepository(db *sql.DB) *ExpiryRepository {
	return &ExpiryRepository{db: db}
}

const expiryColumns = `id, document_id, expiry_type, expiry_date, status,
	alert_30_days, alert_15_days, alert_7_days, alert_expired,
	assigned_to, department, renewed_from_id, renewal_date, notes,
	created_at, updated_at`

// alertColumn maps a tier to its flag column. Only called with the four
// known tiers; the column name never comes from user input.
func alertColumn(tier models.AlertTier) string {
	switch tier {
	case models.Tier30Days:
		return "alert_30_days"
	case models.Tier15Days:
		return "alert_15_days"
	case models.Tier7Days:
		return "alert_7_days"
	case models.TierExpired:
		return "alert_expired"
	}
	return ""
}

// Get fetches an expiry tracking record by ID
func (r *ExpiryRepository) Get(ctx context.Context, id string) (*models.ExpiryTracking, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, expiryColumns, TableExpiryTracking)
	rec, err := scanExpiry(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("expiry tracking", id)
	}
	return rec, err
}

// Insert persists a new expiry tracking record
func (r *ExpiryRepository) Insert(ctx context.Context, exec Executor, rec *models.ExpiryTracking) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, TableExpiryTracking, expiryColumns)

	_, err := exec.ExecContext(ctx, query,
		rec.ID, rec.DocumentID, rec.ExpiryType, rec.ExpiryDate, rec.Status,
		rec.Alert30Days, rec.Alert15Days, rec.Alert7Days, rec.AlertExpired,
		rec.AssignedTo, rec.Department, rec.RenewedFromID, rec.RenewalDate, rec.Notes)
	return err
}

// FindTierCandidates returns ACTIVE records whose alert for the given tier
// has not fired yet and whose expiry date falls in the tier's window
// (now..now+Nd for the day tiers, strictly before now for TierExpired).
// Pure read; flags are only flipped by MarkAlerted.
func (r *ExpiryRepository) FindTierCandidates(ctx context.Context, tier models.AlertTier, now time.Time, page Page) ([]*models.ExpiryTracking, error) {
	c := NewCriteria().
		Eq("status", models.ExpiryStatusActive).
		Eq(alertColumn(tier), false)

	if tier == models.TierExpired {
		c.Before("expiry_date", now)
	} else {
		c.Between("expiry_date", now, now.AddDate(0, 0, tier.Days()))
	}

	where, args := c.Where()
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY expiry_date ASC%s`,
		expiryColumns, TableExpiryTracking, where, page.Clause())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s tier candidates: %w", tier, err)
	}
	defer rows.Close()

	var records []*models.ExpiryTracking
	for rows.Next() {
		rec, err := scanExpiry(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkAlerted flips the tier's alert flag false -> true. The conditional
// WHERE makes the flip happen at most once across the record's lifetime;
// a false return means another tick already claimed it.
func (r *ExpiryRepository) MarkAlerted(ctx context.Context, exec Executor, id string, tier models.AlertTier) (bool, error) {
	col := alertColumn(tier)
	query := fmt.Sprintf(`
		UPDATE %s SET %s = true, updated_at = NOW()
		WHERE id = ? AND %s = false
	`, TableExpiryTracking, col, col)

	res, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkExpired transitions a record ACTIVE -> EXPIRED
func (r *ExpiryRepository) MarkExpired(ctx context.Context, exec Executor, id string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET status = ?, updated_at = NOW()
		WHERE id = ? AND status = ?
	`, TableExpiryTracking)

	res, err := exec.ExecContext(ctx, query, models.ExpiryStatusExpired, id, models.ExpiryStatusActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkRenewed transitions a record from ACTIVE or EXPIRED to RENEWED without
// touching its expiry date or alert flags; the superseding record carries the
// new date with fresh flags.
func (r *ExpiryRepository) MarkRenewed(ctx context.Context, exec Executor, id string, renewedAt time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET status = ?, renewal_date = ?, updated_at = NOW()
		WHERE id = ? AND status IN (?, ?)
	`, TableExpiryTracking)

	res, err := exec.ExecContext(ctx, query, models.ExpiryStatusRenewed, renewedAt,
		id, models.ExpiryStatusActive, models.ExpiryStatusExpired)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindByDocument returns all expiry records referencing a document
func (r *ExpiryRepository) FindByDocument(ctx context.Context, documentID string) ([]*models.ExpiryTracking, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE document_id = ? ORDER BY created_at DESC`,
		expiryColumns, TableExpiryTracking)

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiry records: %w", err)
	}
	defer rows.Close()

	var records []*models.ExpiryTracking
	for rows.Next() {
		rec, err := scanExpiry(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByStatus returns record counts grouped by status
func (r *ExpiryRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, TableExpiryTracking)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanExpiry(row rowScanner) (*models.ExpiryTracking, error) {
	var rec models.ExpiryTracking
	var renewedFrom, notes sql.NullString
	var renewalDate sql.NullTime

	err := row.Scan(&rec.ID, &rec.DocumentID, &rec.ExpiryType, &rec.ExpiryDate,
		&rec.Status, &rec.Alert30Days, &rec.Alert15Days, &rec.Alert7Days,
		&rec.AlertExpired, &rec.AssignedTo, &rec.Department,
		&renewedFrom, &renewalDate, &notes, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.RenewedFromID = nullString(renewedFrom)
	rec.RenewalDate = nullTime(renewalDate)
	rec.Notes = nullString(notes)
	return &rec, nil
}
