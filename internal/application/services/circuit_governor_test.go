package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/database"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
)

func governorConfig() *config.Config {
	return &config.Config{
		FailureThreshold:   3,
		SyncBaseInterval:   5 * time.Minute,
		BackoffCapExponent: 4,
		DiscoveryPageSize:  200,
	}
}

func TestBackoff(t *testing.T) {
	base := 5 * time.Minute

	tests := []struct {
		name         string
		failureCount int
		want         time.Duration
	}{
		{"first failure", 1, 10 * time.Minute},
		{"second failure", 2, 20 * time.Minute},
		{"third failure", 3, 40 * time.Minute},
		{"fourth failure", 4, 80 * time.Minute},
		{"capped at exponent", 9, 80 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(base, tt.failureCount, 4))
		})
	}
}

func TestBackoff_MonotoneUpToCap(t *testing.T) {
	base := 5 * time.Minute
	prev := time.Duration(0)
	for count := 0; count <= 10; count++ {
		d := Backoff(base, count, 4)
		assert.GreaterOrEqual(t, d, prev, "backoff must never shrink as failures accumulate")
		prev = d
	}
	assert.Equal(t, Backoff(base, 4, 4), Backoff(base, 100, 4))
}

// Third consecutive failure with threshold 3, base 5min, cap 4: the endpoint
// backs off to +40min and the governor raises the disablement signal.
func TestRecordIntegrationFailure_ThresholdAndBackoff(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := persistence.NewEndpointRepository(db)
	txManager := persistence.NewTransactionManager(database.NewWithDB(db))
	governor := NewCircuitGovernor(repo, txManager, governorConfig())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ic := &models.IntegrationConfig{
		ID:                  "int-1",
		Name:                "ERP",
		SyncIntervalMinutes: 5,
		FailureCount:        2, // this is the third failure
	}

	wantNext := now.Add(40 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+persistence.TableIntegration)).
		WithArgs(now, wantNext, "connection refused", ic.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT failure_count FROM " + persistence.TableIntegration).
		WithArgs(ic.ID).
		WillReturnRows(sqlmock.NewRows([]string{"failure_count"}).AddRow(3))

	disabled, err := governor.RecordIntegrationFailure(context.Background(), ic, now, "connection refused")
	assert.NoError(t, err)
	assert.True(t, disabled, "threshold reached, governor must signal disablement")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordIntegrationSuccess_ResetsToBaseInterval(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := persistence.NewEndpointRepository(db)
	txManager := persistence.NewTransactionManager(database.NewWithDB(db))
	governor := NewCircuitGovernor(repo, txManager, governorConfig())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ic := &models.IntegrationConfig{ID: "int-1", SyncIntervalMinutes: 5, FailureCount: 7}

	// Success schedules exactly one base interval out regardless of history
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+persistence.TableIntegration)).
		WithArgs(now, now.Add(5*time.Minute), ic.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = governor.RecordIntegrationSuccess(context.Background(), ic, now)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWebhookFailure_BelowThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := persistence.NewEndpointRepository(db)
	txManager := persistence.NewTransactionManager(database.NewWithDB(db))
	governor := NewCircuitGovernor(repo, txManager, governorConfig())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+persistence.TableWebhook)).
		WithArgs(now, "timeout", "wh-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT failure_count FROM " + persistence.TableWebhook).
		WithArgs("wh-1").
		WillReturnRows(sqlmock.NewRows([]string{"failure_count"}).AddRow(1))

	disabled, err := governor.RecordWebhookFailure(context.Background(), "wh-1", now, "timeout")
	assert.NoError(t, err)
	assert.False(t, disabled)

	assert.NoError(t, mock.ExpectationsWereMet())
}
