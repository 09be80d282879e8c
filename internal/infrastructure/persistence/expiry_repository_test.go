package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/docuflow/backend/internal/domain/models"
)

func TestMarkAlerted_FlipsAtMostOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewExpiryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableExpiryTracking)).
		WithArgs("exp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkAlerted(context.Background(), db, "exp-1", models.Tier30Days)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Flag already true: the conditional WHERE matches nothing
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableExpiryTracking)).
		WithArgs("exp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.MarkAlerted(context.Background(), db, "exp-1", models.Tier30Days)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTierCandidates_WindowBounds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewExpiryRepository(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Day tiers query a BETWEEN window of now..now+Nd
	mock.ExpectQuery("(?s)SELECT .+ FROM " + TableExpiryTracking).
		WithArgs(models.ExpiryStatusActive, false, now, now.AddDate(0, 0, 7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.FindTierCandidates(context.Background(), models.Tier7Days, now, Page{Limit: 200})
	assert.NoError(t, err)

	// The expired tier queries strictly before now
	mock.ExpectQuery("(?s)SELECT .+ FROM " + TableExpiryTracking).
		WithArgs(models.ExpiryStatusActive, false, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.FindTierCandidates(context.Background(), models.TierExpired, now, Page{Limit: 200})
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRenewed_PreservesFlagsOnOldRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewExpiryRepository(db)
	renewedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Only status and renewal_date change; expiry_date and the alert flags
	// stay untouched on the superseded record.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableExpiryTracking)).
		WithArgs(models.ExpiryStatusRenewed, renewedAt, "exp-1",
			models.ExpiryStatusActive, models.ExpiryStatusExpired).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkRenewed(context.Background(), db, "exp-1", renewedAt)
	assert.NoError(t, err)
	assert.True(t, ok)

	// A record already RENEWED or CANCELLED cannot be renewed again
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableExpiryTracking)).
		WithArgs(models.ExpiryStatusRenewed, renewedAt, "exp-1",
			models.ExpiryStatusActive, models.ExpiryStatusExpired).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.MarkRenewed(context.Background(), db, "exp-1", renewedAt)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkExpired_OnlyFromActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewExpiryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableExpiryTracking)).
		WithArgs(models.ExpiryStatusExpired, "exp-1", models.ExpiryStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkExpired(context.Background(), db, "exp-1")
	assert.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
