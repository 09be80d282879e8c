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

// roleEchoResolver stands in for the external role directory
type roleEchoResolver struct{}

func (roleEchoResolver) Resolve(_ context.Context, role string, _ *models.Document) (string, error) {
	return "user-" + role, nil
}

func newWorkflowServiceForTest(db *sql.DB) *WorkflowService {
	cfg := &config.Config{
		StoreRetryAttempts: 1,
		DefaultSLAHours:    48,
		DiscoveryPageSize:  200,
	}
	txManager := persistence.NewTransactionManager(database.NewWithDB(db))
	notifications := NewNotificationService(persistence.NewNotificationRepository(db), txManager, NewEventBus())
	return NewWorkflowService(
		persistence.NewWorkflowRepository(db),
		persistence.NewDocumentRepository(db),
		txManager,
		notifications,
		roleEchoResolver{},
		cfg,
	)
}

var workflowCols = []string{"id", "name", "description", "type", "status",
	"is_automatic", "is_public", "steps", "trigger_condition",
	"target_document_type", "schedule", "next_execution_at", "last_executed_at",
	"execution_count", "sla_hours", "created_by", "created_at", "updated_at"}

var documentCols = []string{"id", "name", "document_type", "department",
	"folder_id", "is_active", "is_archived", "deleted_at", "file_hash", "tags",
	"created_by", "created_at", "updated_at"}

var instanceCols = []string{"id", "workflow_id", "document_id", "initiated_by",
	"status", "current_step", "total_steps", "priority", "due_date",
	"started_at", "completed_at", "created_at", "updated_at"}

var stepCols = []string{"id", "instance_id", "step_number", "name", "type",
	"assigned_to", "status", "due_date", "started_at", "completed_at",
	"action_taken", "comments", "created_at", "updated_at"}

const threeStepTemplate = `[
	{"name":"Review","type":"REVIEW","assignee_role":"REVIEWER","sla_hours":24},
	{"name":"Approve","type":"APPROVAL","assignee_role":"MANAGER","sla_hours":24},
	{"name":"Sign off","type":"APPROVAL","assignee_role":"DIRECTOR","sla_hours":24}
]`

func activeWorkflowRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(workflowCols).
		AddRow("wf-1", "Contract approval", nil, "APPROVAL", models.WorkflowStatusActive,
			false, true, []byte(threeStepTemplate), nil, nil, nil, nil, nil,
			0, 72, "admin", now, now)
}

func activeDocumentRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(documentCols).
		AddRow("doc-1", "Supply contract", "CONTRACT", "FINANCE", nil,
			true, false, nil, "abc123", []byte(`["vendor"]`), "user-1", now, now)
}

// Starting an instance of a three-step workflow activates step 1, leaves the
// rest pending and moves the instance straight into IN_PROGRESS.
func TestStartInstance_ThreeStepWorkflow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableWorkflow).
		WithArgs("wf-1").WillReturnRows(activeWorkflowRow(now))
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableDocument).
		WithArgs("doc-1").WillReturnRows(activeDocumentRow(now))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO " + persistence.TableInstance).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO " + persistence.TableStep).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	// Step 1 PENDING -> IN_PROGRESS, instance PENDING -> IN_PROGRESS
	mock.ExpectExec("UPDATE " + persistence.TableStep).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE " + persistence.TableInstance).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Durable notification for the step assignment
	mock.ExpectExec("INSERT INTO " + persistence.TableNotification).
		WillReturnResult(sqlmock.NewResult(0, 1))

	instance, err := svc.StartInstance(context.Background(), "wf-1", "doc-1", "user-1", 1)
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, 1, instance.CurrentStep)
	assert.Equal(t, 3, instance.TotalSteps)
	assert.NotNil(t, instance.DueDate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartInstance_WorkflowNotActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)
	now := time.Now().UTC()

	draft := sqlmock.NewRows(workflowCols).
		AddRow("wf-1", "Contract approval", nil, "APPROVAL", models.WorkflowStatusDraft,
			false, true, []byte(threeStepTemplate), nil, nil, nil, nil, nil,
			0, 72, "admin", now, now)
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableWorkflow).
		WithArgs("wf-1").WillReturnRows(draft)

	_, err = svc.StartInstance(context.Background(), "wf-1", "doc-1", "user-1", 1)
	assert.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))
}

// A new automatic workflow carries its first next-execution time from the
// moment it is created, so the trigger loop can select it once active.
func TestCreateWorkflow_SeedsAutomaticSchedule(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)

	mock.ExpectExec("INSERT INTO " + persistence.TableWorkflow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	schedule := "*/5 * * * *"
	before := time.Now().UTC()
	wf, err := svc.CreateWorkflow(context.Background(), &models.Workflow{
		Name:        "Nightly contract review",
		Type:        "APPROVAL",
		IsAutomatic: true,
		Schedule:    &schedule,
		Steps: []models.StepTemplate{
			{Name: "Review", Type: "REVIEW", AssigneeRole: "REVIEWER", SLAHours: 24},
		},
		CreatedBy: "admin",
	})
	require.NoError(t, err)

	require.NotNil(t, wf.NextExecutionAt)
	assert.True(t, wf.NextExecutionAt.After(before))
	assert.True(t, wf.NextExecutionAt.Before(before.Add(6*time.Minute)),
		"a */5 schedule must come due within five minutes")

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Activating an automatic workflow that has no next-execution time seeds one;
// a workflow that already carries one is left alone.
func TestSetWorkflowStatus_ActivationBackfillsSchedule(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)
	now := time.Now().UTC()
	schedule := "0 2 * * *"

	unscheduled := sqlmock.NewRows(workflowCols).
		AddRow("wf-1", "Nightly contract review", nil, "APPROVAL", models.WorkflowStatusDraft,
			true, true, []byte(threeStepTemplate), nil, nil, schedule, nil, nil,
			0, 72, "admin", now, now)
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableWorkflow).
		WithArgs("wf-1").WillReturnRows(unscheduled)
	mock.ExpectExec("UPDATE " + persistence.TableWorkflow).
		WillReturnResult(sqlmock.NewResult(0, 1)) // status
	mock.ExpectExec("UPDATE " + persistence.TableWorkflow).
		WillReturnResult(sqlmock.NewResult(0, 1)) // seeded next_execution_at

	err = svc.SetWorkflowStatus(context.Background(), "wf-1", models.WorkflowStatusActive)
	require.NoError(t, err)

	next := now.Add(time.Hour)
	scheduled := sqlmock.NewRows(workflowCols).
		AddRow("wf-1", "Nightly contract review", nil, "APPROVAL", models.WorkflowStatusDraft,
			true, true, []byte(threeStepTemplate), nil, nil, schedule, next, nil,
			0, 72, "admin", now, now)
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableWorkflow).
		WithArgs("wf-1").WillReturnRows(scheduled)
	mock.ExpectExec("UPDATE " + persistence.TableWorkflow).
		WillReturnResult(sqlmock.NewResult(0, 1)) // status only

	err = svc.SetWorkflowStatus(context.Background(), "wf-1", models.WorkflowStatusActive)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Approving a non-final step completes it and moves the next step to
// IN_PROGRESS with a fresh due date, all in one transaction.
func TestAdvanceStep_ApproveActivatesNextStep(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableInstance).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows(instanceCols).
			AddRow("inst-1", "wf-1", "doc-1", "user-1", models.InstanceStatusInProgress,
				1, 3, 1, now.Add(72*time.Hour), now, nil, now, now))
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableStep).
		WithArgs("step-1").
		WillReturnRows(sqlmock.NewRows(stepCols).
			AddRow("step-1", "inst-1", 1, "Review", "REVIEW", "user-REVIEWER",
				models.StepStatusInProgress, now.Add(24*time.Hour), now, nil, nil, nil, now, now))

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableWorkflow).
		WithArgs("wf-1").WillReturnRows(activeWorkflowRow(now))
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableStep).
		WillReturnRows(sqlmock.NewRows(stepCols).
			AddRow("step-1", "inst-1", 1, "Review", "REVIEW", "user-REVIEWER",
				models.StepStatusInProgress, now.Add(24*time.Hour), now, nil, nil, nil, now, now).
			AddRow("step-2", "inst-1", 2, "Approve", "APPROVAL", "user-MANAGER",
				models.StepStatusPending, nil, nil, nil, nil, nil, now, now).
			AddRow("step-3", "inst-1", 3, "Sign off", "APPROVAL", "user-DIRECTOR",
				models.StepStatusPending, nil, nil, nil, nil, nil, now, now))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE " + persistence.TableStep).
		WillReturnResult(sqlmock.NewResult(0, 1)) // step 1 -> COMPLETED
	mock.ExpectExec("UPDATE " + persistence.TableStep).
		WillReturnResult(sqlmock.NewResult(0, 1)) // step 2 -> IN_PROGRESS
	mock.ExpectExec("UPDATE " + persistence.TableInstance).
		WillReturnResult(sqlmock.NewResult(0, 1)) // current_step -> 2
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO " + persistence.TableNotification).
		WillReturnResult(sqlmock.NewResult(0, 1))

	instance, err := svc.AdvanceStep(context.Background(), "inst-1", "step-1",
		models.OutcomeApprove, "user-REVIEWER", nil)
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, 2, instance.CurrentStep)
	assert.Nil(t, instance.CompletedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Rejecting the in-progress step closes the instance as REJECTED and skips
// every step still open, all in one transaction.
func TestAdvanceStep_RejectCascades(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableInstance).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows(instanceCols).
			AddRow("inst-1", "wf-1", "doc-1", "user-1", models.InstanceStatusInProgress,
				2, 3, 1, now.Add(72*time.Hour), now, nil, now, now))
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableStep).
		WithArgs("step-2").
		WillReturnRows(sqlmock.NewRows(stepCols).
			AddRow("step-2", "inst-1", 2, "Approve", "APPROVAL", "user-MANAGER",
				models.StepStatusInProgress, now.Add(24*time.Hour), now, nil, nil, nil, now, now))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE " + persistence.TableStep).
		WillReturnResult(sqlmock.NewResult(0, 1)) // step 2 -> REJECTED
	mock.ExpectExec("UPDATE " + persistence.TableStep).
		WillReturnResult(sqlmock.NewResult(0, 1)) // step 3 -> SKIPPED
	mock.ExpectExec("UPDATE " + persistence.TableInstance).
		WillReturnResult(sqlmock.NewResult(0, 1)) // instance -> REJECTED
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO " + persistence.TableNotification).
		WillReturnResult(sqlmock.NewResult(0, 1))

	instance, err := svc.AdvanceStep(context.Background(), "inst-1", "step-2",
		models.OutcomeReject, "user-MANAGER", nil)
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusRejected, instance.Status)
	assert.NotNil(t, instance.CompletedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceStep_RequiresInProgressStep(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableInstance).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows(instanceCols).
			AddRow("inst-1", "wf-1", "doc-1", "user-1", models.InstanceStatusInProgress,
				2, 3, 1, nil, now, nil, now, now))
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableStep).
		WithArgs("step-1").
		WillReturnRows(sqlmock.NewRows(stepCols).
			AddRow("step-1", "inst-1", 1, "Review", "REVIEW", "user-REVIEWER",
				models.StepStatusCompleted, nil, now, now, nil, nil, now, now))

	_, err = svc.AdvanceStep(context.Background(), "inst-1", "step-1",
		models.OutcomeApprove, "user-REVIEWER", nil)
	assert.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))
}

func TestAdvanceStep_StepMustBelongToInstance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableInstance).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows(instanceCols).
			AddRow("inst-1", "wf-1", "doc-1", "user-1", models.InstanceStatusInProgress,
				1, 3, 1, nil, now, nil, now, now))
	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableStep).
		WithArgs("step-9").
		WillReturnRows(sqlmock.NewRows(stepCols).
			AddRow("step-9", "other-instance", 1, "Review", "REVIEW", "user-REVIEWER",
				models.StepStatusInProgress, nil, now, nil, nil, nil, now, now))

	_, err = svc.AdvanceStep(context.Background(), "inst-1", "step-9",
		models.OutcomeApprove, "user-REVIEWER", nil)
	assert.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))
}

// Cancelling a terminal instance reports success without writing anything
func TestCancelInstance_IdempotentOnTerminal(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	svc := newWorkflowServiceForTest(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM " + persistence.TableInstance).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows(instanceCols).
			AddRow("inst-1", "wf-1", "doc-1", "user-1", models.InstanceStatusApproved,
				3, 3, 1, nil, now, now, now, now))

	instance, err := svc.CancelInstance(context.Background(), "inst-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, instance.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}
