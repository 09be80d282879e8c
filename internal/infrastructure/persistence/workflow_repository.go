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

// WorkflowRepository handles database operations for workflows, their
// instances and steps.
type WorkflowRepository struct {
	db *sql.DB
}

// NewWorkflowRepository creates a new WorkflowRepository
func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `id, name, description, type, status, is_automatic, is_public,
	steps, trigger_condition, target_document_type, schedule,
	next_execution_at, last_executed_at, execution_count, sla_hours,
	created_by, created_at, updated_at`

const instanceColumns = `id, workflow_id, document_id, initiated_by, status, current_step,
	total_steps, priority, due_date, started_at, completed_at, created_at, updated_at`

const stepColumns = `id, instance_id, step_number, name, type, assigned_to, status,
	due_date, started_at, completed_at, action_taken, comments, created_at, updated_at`

// GetWorkflow fetches a workflow definition by ID
func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, workflowColumns, TableWorkflow)
	wf, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("workflow", id)
	}
	return wf, err
}

// InsertWorkflow persists a new workflow definition
func (r *WorkflowRepository) InsertWorkflow(ctx context.Context, exec Executor, wf *models.Workflow) error {
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal step templates: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, TableWorkflow, workflowColumns)

	_, err = exec.ExecContext(ctx, query,
		wf.ID, wf.Name, wf.Description, wf.Type, wf.Status, wf.IsAutomatic, wf.IsPublic,
		stepsJSON, wf.TriggerCondition, wf.TargetDocumentType, wf.Schedule,
		wf.NextExecutionAt, wf.LastExecutedAt, wf.ExecutionCount, wf.SLAHours,
		wf.CreatedBy)
	return err
}

// UpdateWorkflowStatus changes a workflow's lifecycle status
func (r *WorkflowRepository) UpdateWorkflowStatus(ctx context.Context, exec Executor, id, status string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = ?, updated_at = NOW() WHERE id = ?`, TableWorkflow)
	res, err := exec.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("workflow", id)
	}
	return nil
}

// FindDueAutomaticWorkflows returns active automatic workflows whose
// next_execution_at has passed, oldest first.
func (r *WorkflowRepository) FindDueAutomaticWorkflows(ctx context.Context, now time.Time, page Page) ([]*models.Workflow, error) {
	where, args := NewCriteria().
		Eq("is_automatic", true).
		Eq("status", models.WorkflowStatusActive).
		NotNull("next_execution_at").
		AtOrBefore("next_execution_at", now).
		Where()

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY next_execution_at ASC%s`,
		workflowColumns, TableWorkflow, where, page.Clause())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// SetNextExecution seeds or repairs an automatic workflow's schedule without
// recording an execution.
func (r *WorkflowRepository) SetNextExecution(ctx context.Context, exec Executor, id string, next time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET next_execution_at = ?, updated_at = NOW() WHERE id = ?`, TableWorkflow)
	_, err := exec.ExecContext(ctx, query, next, id)
	return err
}

// AdvanceWorkflowSchedule records an automatic execution and sets the next one
func (r *WorkflowRepository) AdvanceWorkflowSchedule(ctx context.Context, exec Executor, id string, executedAt, nextExecution time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET last_executed_at = ?, next_execution_at = ?, execution_count = execution_count + 1, updated_at = NOW()
		WHERE id = ?
	`, TableWorkflow)
	_, err := exec.ExecContext(ctx, query, executedAt, nextExecution, id)
	return err
}

// GetInstance fetches a workflow instance by ID
func (r *WorkflowRepository) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, instanceColumns, TableInstance)
	inst, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("workflow instance", id)
	}
	return inst, err
}

// InsertInstance persists a new workflow instance
func (r *WorkflowRepository) InsertInstance(ctx context.Context, exec Executor, inst *models.WorkflowInstance) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, TableInstance, instanceColumns)

	_, err := exec.ExecContext(ctx, query,
		inst.ID, inst.WorkflowID, inst.DocumentID, inst.InitiatedBy, inst.Status,
		inst.CurrentStep, inst.TotalSteps, inst.Priority, inst.DueDate,
		inst.StartedAt, inst.CompletedAt)
	return err
}

// TransitionInstance updates an instance's status with a conditional check on
// the expected current status. Returns false when another worker got there
// first; the caller treats that as a serialization conflict, not an error.
func (r *WorkflowRepository) TransitionInstance(ctx context.Context, exec Executor, id, fromStatus, toStatus string, currentStep int, completedAt *time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, current_step = ?, completed_at = ?, updated_at = NOW()
		WHERE id = ? AND status = ?
	`, TableInstance)

	res, err := exec.ExecContext(ctx, query, toStatus, currentStep, completedAt, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindOverdueInstances returns non-terminal instances whose due date has
// passed. The query re-runs on every call, so repeated scheduler ticks see a
// fresh snapshot rather than a live cursor.
func (r *WorkflowRepository) FindOverdueInstances(ctx context.Context, now time.Time, page Page) ([]*models.WorkflowInstance, error) {
	where, args := NewCriteria().
		In("status", []string{models.InstanceStatusPending, models.InstanceStatusInProgress}).
		NotNull("due_date").
		Before("due_date", now).
		Where()

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY due_date ASC%s`,
		instanceColumns, TableInstance, where, page.Clause())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// FindInstancesByCriteria runs an optional-filter query over instances
func (r *WorkflowRepository) FindInstancesByCriteria(ctx context.Context, c *Criteria, page Page) ([]*models.WorkflowInstance, error) {
	where, args := c.Where()
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY started_at DESC%s`,
		instanceColumns, TableInstance, where, page.Clause())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// CountInstancesByStatus returns instance counts grouped by status
func (r *WorkflowRepository) CountInstancesByStatus(ctx context.Context) (map[string]int64, error) {
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, TableInstance)
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

// GetStep fetches a step by ID
func (r *WorkflowRepository) GetStep(ctx context.Context, id string) (*models.WorkflowStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, stepColumns, TableStep)
	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("workflow step", id)
	}
	return step, err
}

// ListSteps returns all steps of an instance ordered by step number
func (r *WorkflowRepository) ListSteps(ctx context.Context, instanceID string) ([]*models.WorkflowStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE instance_id = ? ORDER BY step_number ASC`,
		stepColumns, TableStep)

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.WorkflowStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// InsertStep persists a new workflow step
func (r *WorkflowRepository) InsertStep(ctx context.Context, exec Executor, step *models.WorkflowStep) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, TableStep, stepColumns)

	_, err := exec.ExecContext(ctx, query,
		step.ID, step.InstanceID, step.StepNumber, step.Name, step.Type,
		step.AssignedTo, step.Status, step.DueDate, step.StartedAt,
		step.CompletedAt, step.ActionTaken, step.Comments)
	return err
}

// TransitionStep updates a step's status with a conditional check on the
// expected current status, mirroring TransitionInstance.
func (r *WorkflowRepository) TransitionStep(ctx context.Context, exec Executor, id, fromStatus, toStatus string, update StepUpdate) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, started_at = COALESCE(?, started_at),
		    completed_at = COALESCE(?, completed_at),
		    action_taken = COALESCE(?, action_taken),
		    comments = COALESCE(?, comments),
		    due_date = COALESCE(?, due_date),
		    updated_at = NOW()
		WHERE id = ? AND status = ?
	`, TableStep)

	res, err := exec.ExecContext(ctx, query, toStatus,
		update.StartedAt, update.CompletedAt, update.ActionTaken,
		update.Comments, update.DueDate, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// StepUpdate carries the optional fields written alongside a step transition
type StepUpdate struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	DueDate     *time.Time
	ActionTaken *string
	Comments    *string
}

// SkipRemainingSteps moves every non-terminal step of an instance to SKIPPED
// and returns how many were skipped.
func (r *WorkflowRepository) SkipRemainingSteps(ctx context.Context, exec Executor, instanceID string) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, updated_at = NOW()
		WHERE instance_id = ? AND status IN (?, ?)
	`, TableStep)

	res, err := exec.ExecContext(ctx, query, models.StepStatusSkipped,
		instanceID, models.StepStatusPending, models.StepStatusInProgress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Row scanning helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var wf models.Workflow
	var description, triggerCondition, targetDocType, schedule sql.NullString
	var nextExecution, lastExecuted sql.NullTime
	var stepsJSON []byte

	err := row.Scan(&wf.ID, &wf.Name, &description, &wf.Type, &wf.Status,
		&wf.IsAutomatic, &wf.IsPublic, &stepsJSON, &triggerCondition,
		&targetDocType, &schedule, &nextExecution, &lastExecuted,
		&wf.ExecutionCount, &wf.SLAHours, &wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &wf.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step templates for workflow %s: %w", wf.ID, err)
		}
	}

	wf.Description = nullString(description)
	wf.TriggerCondition = nullString(triggerCondition)
	wf.TargetDocumentType = nullString(targetDocType)
	wf.Schedule = nullString(schedule)
	wf.NextExecutionAt = nullTime(nextExecution)
	wf.LastExecutedAt = nullTime(lastExecuted)
	return &wf, nil
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance
	var dueDate, completedAt sql.NullTime

	err := row.Scan(&inst.ID, &inst.WorkflowID, &inst.DocumentID, &inst.InitiatedBy,
		&inst.Status, &inst.CurrentStep, &inst.TotalSteps, &inst.Priority,
		&dueDate, &inst.StartedAt, &completedAt, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inst.DueDate = nullTime(dueDate)
	inst.CompletedAt = nullTime(completedAt)
	return &inst, nil
}

func scanStep(row rowScanner) (*models.WorkflowStep, error) {
	var step models.WorkflowStep
	var dueDate, startedAt, completedAt sql.NullTime
	var actionTaken, comments sql.NullString

	err := row.Scan(&step.ID, &step.InstanceID, &step.StepNumber, &step.Name,
		&step.Type, &step.AssignedTo, &step.Status, &dueDate, &startedAt,
		&completedAt, &actionTaken, &comments, &step.CreatedAt, &step.UpdatedAt)
	if err != nil {
		return nil, err
	}

	step.DueDate = nullTime(dueDate)
	step.StartedAt = nullTime(startedAt)
	step.CompletedAt = nullTime(completedAt)
	step.ActionTaken = nullString(actionTaken)
	step.Comments = nullString(comments)
	return &step, nil
}

func nullString(v sql.NullString) *string {
	if v.Valid {
		return &v.String
	}
	return nil
}

func nullTime(v sql.NullTime) *time.Time {
	if v.Valid {
		return &v.Time
	}
	return nil
}
