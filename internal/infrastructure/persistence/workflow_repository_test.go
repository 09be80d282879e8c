package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/docuflow/backend/internal/domain/models"
	apperrors "github.com/docuflow/backend/pkg/errors"
)

func TestTransitionInstance_FirstWriterWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewWorkflowRepository(db)

	// First writer matches the expected status and claims the row
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableInstance)).
		WithArgs(models.InstanceStatusInProgress, 1, nil, "inst-1", models.InstanceStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.TransitionInstance(context.Background(), db, "inst-1",
		models.InstanceStatusPending, models.InstanceStatusInProgress, 1, nil)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Second writer sees zero affected rows and backs off
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableInstance)).
		WithArgs(models.InstanceStatusInProgress, 1, nil, "inst-1", models.InstanceStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.TransitionInstance(context.Background(), db, "inst-1",
		models.InstanceStatusPending, models.InstanceStatusInProgress, 1, nil)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStep_ConditionalOnStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewWorkflowRepository(db)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	action := models.OutcomeApprove

	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableStep)).
		WithArgs(models.StepStatusCompleted, nil, now, action, nil, nil,
			"step-1", models.StepStatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.TransitionStep(context.Background(), db, "step-1",
		models.StepStatusInProgress, models.StepStatusCompleted,
		StepUpdate{CompletedAt: &now, ActionTaken: &action})
	assert.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSkipRemainingSteps(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewWorkflowRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+TableStep)).
		WithArgs(models.StepStatusSkipped, "inst-1",
			models.StepStatusPending, models.StepStatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 3))

	skipped, err := repo.SkipRemainingSteps(context.Background(), db, "inst-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), skipped)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInstance_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewWorkflowRepository(db)

	mock.ExpectQuery("(?s)SELECT .+ FROM " + TableInstance).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetInstance(context.Background(), "missing")
	assert.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFindOverdueInstances_FreshSnapshotEachCall(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewWorkflowRepository(db)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)

	cols := []string{"id", "workflow_id", "document_id", "initiated_by", "status",
		"current_step", "total_steps", "priority", "due_date", "started_at",
		"completed_at", "created_at", "updated_at"}

	// First call sees one overdue instance
	mock.ExpectQuery("(?s)SELECT .+ FROM " + TableInstance).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("inst-1", "wf-1", "doc-1", "user-1", models.InstanceStatusInProgress,
				1, 3, 1, due, now.Add(-48*time.Hour), nil, now, now))

	instances, err := repo.FindOverdueInstances(context.Background(), now, Page{Limit: 100})
	assert.NoError(t, err)
	assert.Len(t, instances, 1)
	assert.Equal(t, "inst-1", instances[0].ID)

	// Second call re-runs the query and the instance is gone
	mock.ExpectQuery("(?s)SELECT .+ FROM " + TableInstance).
		WillReturnRows(sqlmock.NewRows(cols))

	instances, err = repo.FindOverdueInstances(context.Background(), now, Page{Limit: 100})
	assert.NoError(t, err)
	assert.Empty(t, instances)

	assert.NoError(t, mock.ExpectationsWereMet())
}
