package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/database"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
	apperrors "github.com/docuflow/backend/pkg/errors"
)

func newExpiryServiceForTest(db *sql.DB) *ExpiryService {
	cfg := &config.Config{
		StoreRetryAttempts: 1,
		DiscoveryPageSize:  200,
	}
	txManager := persistence.NewTransactionManager(database.NewWithDB(db))
	notifications := NewNotificationService(persistence.NewNotificationRepository(db), txManager, NewEventBus())
	return NewExpiryService(
		persistence.NewExpiryRepository(db),
		persistence.NewDocumentRepository(db),
		txManager,
		notifications,
		cfg,
	)
}

var expiryCols = []string{"id", "document_id", "expiry_type", "expiry_date", "status",
	"alert_30_days", "alert_15_days", "alert_7_days", "alert_expired",
	"assigned_to", "department", "renewed_from_id", "renewal_date", "notes",
	"created_at", "updated_at"}

func expiryRow(status string, expiryDate, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(expiryCols).
		AddRow("exp-1", "doc-1", "CONTRACT", expiryDate, status,
			true, false, false, false, "user-1", "FINANCE", nil, nil, nil, now, now)
}

// Renewal supersedes the old record inside one transaction: old row to
// RENEWED, fresh ACTIVE successor with all alert flags false.
func TestRenew_CreatesSuccessorWithFreshFlags(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newExpiryServiceForTest(db)
	now := time.Now().UTC()
	newDate := now.AddDate(1, 0, 0)

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableExpiryTracking).
		WithArgs("exp-1").
		WillReturnRows(expiryRow(models.ExpiryStatusExpired, now.AddDate(0, 0, -3), now))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE " + persistence.TableExpiryTracking).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO " + persistence.TableExpiryTracking).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO " + persistence.TableNotification).
		WillReturnResult(sqlmock.NewResult(0, 1))

	successor, err := svc.Renew(context.Background(), "exp-1", newDate, "user-2")
	require.NoError(t, err)

	assert.Equal(t, models.ExpiryStatusActive, successor.Status)
	assert.Equal(t, newDate, successor.ExpiryDate)
	require.NotNil(t, successor.RenewedFromID)
	assert.Equal(t, "exp-1", *successor.RenewedFromID)
	assert.False(t, successor.Alert30Days)
	assert.False(t, successor.Alert15Days)
	assert.False(t, successor.Alert7Days)
	assert.False(t, successor.AlertExpired)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenew_RejectsSupersededRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newExpiryServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableExpiryTracking).
		WithArgs("exp-1").
		WillReturnRows(expiryRow(models.ExpiryStatusRenewed, now.AddDate(0, 1, 0), now))

	_, err = svc.Renew(context.Background(), "exp-1", now.AddDate(1, 0, 0), "user-2")
	assert.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A record cannot be forced to EXPIRED while its expiry date is still ahead.
func TestMarkExpired_RejectsFutureDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newExpiryServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableExpiryTracking).
		WithArgs("exp-1").
		WillReturnRows(expiryRow(models.ExpiryStatusActive, now.AddDate(0, 1, 0), now))

	err = svc.MarkExpired(context.Background(), "exp-1")
	assert.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkExpired_PastDateTransitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newExpiryServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableExpiryTracking).
		WithArgs("exp-1").
		WillReturnRows(expiryRow(models.ExpiryStatusActive, now.AddDate(0, 0, -2), now))
	mock.ExpectExec("UPDATE " + persistence.TableExpiryTracking).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = svc.MarkExpired(context.Background(), "exp-1")
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A candidate whose flag fired between discovery and processing is skipped
// without any write.
func TestProcessAlerts_SkipsAlreadyFired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newExpiryServiceForTest(db)
	now := time.Now().UTC()

	// Discovery returns one row already carrying alert_30_days = true
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableExpiryTracking).
		WillReturnRows(expiryRow(models.ExpiryStatusActive, now.AddDate(0, 0, 10), now))

	fired, err := svc.ProcessAlerts(context.Background(), models.Tier30Days, now)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// The expired tier flips the flag and transitions the record in the same
// transaction as the notification handoff.
func TestProcessAlerts_ExpiredTierAlsoTransitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newExpiryServiceForTest(db)
	now := time.Now().UTC()

	candidate := sqlmock.NewRows(expiryCols).
		AddRow("exp-1", "doc-1", "CONTRACT", now.AddDate(0, 0, -1), models.ExpiryStatusActive,
			true, true, true, false, "user-1", "FINANCE", nil, nil, nil, now, now)
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableExpiryTracking).
		WillReturnRows(candidate)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO " + persistence.TableNotification).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE " + persistence.TableExpiryTracking).
		WillReturnResult(sqlmock.NewResult(0, 1)) // alert_expired flag
	mock.ExpectExec("UPDATE " + persistence.TableExpiryTracking).
		WillReturnResult(sqlmock.NewResult(0, 1)) // ACTIVE -> EXPIRED
	mock.ExpectCommit()

	fired, err := svc.ProcessAlerts(context.Background(), models.TierExpired, now)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	assert.NoError(t, mock.ExpectationsWereMet())
}
