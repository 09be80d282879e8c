package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain"
	"github.com/docuflow/backend/internal/domain/events"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/domain/ports"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
	apperrors "github.com/docuflow/backend/pkg/errors"
	"github.com/docuflow/backend/pkg/expression"
	"github.com/docuflow/backend/pkg/utils"
)

// WorkflowService drives Workflow -> WorkflowInstance -> WorkflowStep
// transitions. Steps advance strictly sequentially; concurrent advancement of
// the same instance is serialized by conditional status updates in the store,
// so two racing workers can never both activate a step.
type WorkflowService struct {
	workflows     *persistence.WorkflowRepository
	documents     *persistence.DocumentRepository
	txManager     *persistence.TransactionManager
	notifications *NotificationService
	resolver      ports.AssigneeResolver
	stateMachine  *domain.InstanceStateMachine
	engine        *expression.Engine
	cfg           *config.Config
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(workflows *persistence.WorkflowRepository, documents *persistence.DocumentRepository, txManager *persistence.TransactionManager, notifications *NotificationService, resolver ports.AssigneeResolver, cfg *config.Config) *WorkflowService {
	return &WorkflowService{
		workflows:     workflows,
		documents:     documents,
		txManager:     txManager,
		notifications: notifications,
		resolver:      resolver,
		stateMachine:  domain.NewInstanceStateMachine(),
		engine:        expression.NewEngine(),
		cfg:           cfg,
	}
}

// CreateWorkflow persists a new workflow definition in DRAFT
func (s *WorkflowService) CreateWorkflow(ctx context.Context, wf *models.Workflow) (*models.Workflow, error) {
	if wf.Name == "" {
		return nil, apperrors.NewValidationError("name", "workflow name is required")
	}
	if len(wf.Steps) == 0 {
		return nil, apperrors.NewValidationError("steps", "workflow needs at least one step")
	}
	for i, tmpl := range wf.Steps {
		if tmpl.AssigneeRole == "" {
			return nil, apperrors.NewValidationError("steps", fmt.Sprintf("step %d has no assignee role", i+1))
		}
	}

	wf.ID = utils.GenerateID()
	wf.Status = models.WorkflowStatusDraft
	if wf.SLAHours <= 0 {
		wf.SLAHours = s.cfg.DefaultSLAHours
	}
	if wf.IsAutomatic {
		// Seed the schedule up front so the trigger loop can select the
		// workflow once it goes ACTIVE; AdvanceWorkflowSchedule takes over
		// after the first execution.
		next := s.nextExecution(wf, time.Now().UTC())
		wf.NextExecutionAt = &next
	}

	if err := s.workflows.InsertWorkflow(ctx, s.txManager.ExecutorFor(ctx), wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// SetWorkflowStatus activates, disables or re-drafts a workflow definition
func (s *WorkflowService) SetWorkflowStatus(ctx context.Context, id, status string) error {
	switch status {
	case models.WorkflowStatusDraft, models.WorkflowStatusActive, models.WorkflowStatusDisabled:
	default:
		return apperrors.NewValidationError("status", fmt.Sprintf("unknown workflow status %q", status))
	}

	wf, err := s.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if err := s.workflows.UpdateWorkflowStatus(ctx, s.txManager.ExecutorFor(ctx), id, status); err != nil {
		return err
	}

	// Automatic workflows that predate the seeded schedule get one on
	// activation, otherwise the trigger loop could never select them.
	if status == models.WorkflowStatusActive && wf.IsAutomatic && wf.NextExecutionAt == nil {
		next := s.nextExecution(wf, time.Now().UTC())
		return s.workflows.SetNextExecution(ctx, s.txManager.ExecutorFor(ctx), id, next)
	}
	return nil
}

// GetWorkflow returns a workflow definition by ID
func (s *WorkflowService) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return s.workflows.GetWorkflow(ctx, id)
}

// StartInstance creates a run of a workflow against one document. The
// instance's steps are materialized from the workflow's step template, step 1
// goes IN_PROGRESS immediately and the instance follows it out of PENDING.
func (s *WorkflowService) StartInstance(ctx context.Context, workflowID, documentID, initiator string, priority int) (*models.WorkflowInstance, error) {
	wf, err := s.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowStatusActive {
		return nil, apperrors.NewInvalidStateError("workflow", wf.Status, "start an instance of")
	}
	if len(wf.Steps) == 0 {
		return nil, apperrors.NewValidationError("steps", "workflow has no step template")
	}

	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Lifecycle != models.LifecycleActive {
		return nil, apperrors.NewInvalidStateError("document", string(doc.Lifecycle), "start a workflow on")
	}

	// Assignees are resolved before the transaction opens; the directory
	// lookup may be slow and must not hold store locks.
	assignees := make([]string, len(wf.Steps))
	for i, tmpl := range wf.Steps {
		assignee, err := s.resolver.Resolve(ctx, tmpl.AssigneeRole, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve assignee for step %d (%s): %w", i+1, tmpl.AssigneeRole, err)
		}
		assignees[i] = assignee
	}

	now := time.Now().UTC()
	dueDate := now.Add(time.Duration(wf.SLAHours) * time.Hour)

	instance := &models.WorkflowInstance{
		ID:          utils.GenerateID(),
		WorkflowID:  wf.ID,
		DocumentID:  doc.ID,
		InitiatedBy: initiator,
		Status:      models.InstanceStatusPending,
		CurrentStep: 0,
		TotalSteps:  len(wf.Steps),
		Priority:    priority,
		DueDate:     &dueDate,
		StartedAt:   now,
	}

	steps := make([]*models.WorkflowStep, len(wf.Steps))
	for i, tmpl := range wf.Steps {
		steps[i] = &models.WorkflowStep{
			ID:         utils.GenerateID(),
			InstanceID: instance.ID,
			StepNumber: i + 1,
			Name:       tmpl.Name,
			Type:       tmpl.Type,
			AssignedTo: assignees[i],
			Status:     models.StepStatusPending,
		}
	}

	err = s.txManager.WithRetry(func(tx *sql.Tx) error {
		if err := s.workflows.InsertInstance(ctx, tx, instance); err != nil {
			return err
		}
		for _, step := range steps {
			if err := s.workflows.InsertStep(ctx, tx, step); err != nil {
				return err
			}
		}
		return s.activateStep(ctx, tx, instance, steps[0], wf.Steps[0].SLAHours, now)
	}, s.cfg.StoreRetryAttempts)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatusInProgress
	instance.CurrentStep = 1

	s.notifyStepAssigned(ctx, instance, steps[0])
	return instance, nil
}

// activateStep moves a pending step to IN_PROGRESS and drags the instance
// along when it is still PENDING. Both updates are conditional so a racing
// worker loses cleanly.
func (s *WorkflowService) activateStep(ctx context.Context, tx *sql.Tx, instance *models.WorkflowInstance, step *models.WorkflowStep, slaHours int, now time.Time) error {
	if slaHours <= 0 {
		slaHours = s.cfg.DefaultSLAHours
	}
	stepDue := now.Add(time.Duration(slaHours) * time.Hour)

	ok, err := s.workflows.TransitionStep(ctx, tx, step.ID,
		models.StepStatusPending, models.StepStatusInProgress,
		persistence.StepUpdate{StartedAt: &now, DueDate: &stepDue})
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewIllegalTransitionError("step %d of instance %s is no longer pending", step.StepNumber, instance.ID)
	}

	fromStatus := instance.Status
	if fromStatus == models.InstanceStatusPending {
		if _, err := s.stateMachine.Transition(domain.InstanceState(fromStatus), domain.TransitionStartStep); err != nil {
			return apperrors.NewIllegalTransitionError("%v", err)
		}
	}
	ok, err = s.workflows.TransitionInstance(ctx, tx, instance.ID,
		fromStatus, models.InstanceStatusInProgress, step.StepNumber, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewIllegalTransitionError("instance %s left state %s during step activation", instance.ID, fromStatus)
	}
	return nil
}

// AdvanceStep records the outcome of the in-progress step. APPROVE completes
// the step and either closes the instance (last step) or activates the next
// one; REJECT closes the instance and skips everything still open. The whole
// advancement commits as one unit.
func (s *WorkflowService) AdvanceStep(ctx context.Context, instanceID, stepID, outcome, actedBy string, comments *string) (*models.WorkflowInstance, error) {
	instance, err := s.workflows.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	step, err := s.workflows.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	if step.InstanceID != instanceID {
		return nil, apperrors.NewIllegalTransitionError("step %s does not belong to instance %s", stepID, instanceID)
	}
	if step.Status != models.StepStatusInProgress {
		return nil, apperrors.NewIllegalTransitionError("step %d is %s, only an in-progress step can be advanced", step.StepNumber, step.Status)
	}

	switch outcome {
	case models.OutcomeApprove:
		return s.approveStep(ctx, instance, step, actedBy, comments)
	case models.OutcomeReject:
		return s.rejectStep(ctx, instance, step, actedBy, comments)
	default:
		return nil, apperrors.NewValidationError("outcome", fmt.Sprintf("unknown outcome %q", outcome))
	}
}

func (s *WorkflowService) approveStep(ctx context.Context, instance *models.WorkflowInstance, step *models.WorkflowStep, actedBy string, comments *string) (*models.WorkflowInstance, error) {
	if _, err := s.stateMachine.Transition(domain.InstanceState(instance.Status), domain.TransitionApprove); err != nil {
		return nil, apperrors.NewIllegalTransitionError("%v", err)
	}

	wf, err := s.workflows.GetWorkflow(ctx, instance.WorkflowID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	action := models.OutcomeApprove
	isLast := step.StepNumber >= instance.TotalSteps

	var nextStep *models.WorkflowStep
	if !isLast {
		steps, err := s.workflows.ListSteps(ctx, instance.ID)
		if err != nil {
			return nil, err
		}
		for _, candidate := range steps {
			if candidate.StepNumber == step.StepNumber+1 {
				nextStep = candidate
				break
			}
		}
		if nextStep == nil {
			return nil, apperrors.NewIllegalTransitionError("instance %s has no step %d", instance.ID, step.StepNumber+1)
		}
	}

	err = s.txManager.WithRetry(func(tx *sql.Tx) error {
		ok, err := s.workflows.TransitionStep(ctx, tx, step.ID,
			models.StepStatusInProgress, models.StepStatusCompleted,
			persistence.StepUpdate{CompletedAt: &now, ActionTaken: &action, Comments: comments})
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewIllegalTransitionError("step %d of instance %s was advanced concurrently", step.StepNumber, instance.ID)
		}

		if isLast {
			ok, err := s.workflows.TransitionInstance(ctx, tx, instance.ID,
				models.InstanceStatusInProgress, models.InstanceStatusApproved,
				step.StepNumber, &now)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.NewIllegalTransitionError("instance %s left IN_PROGRESS during approval", instance.ID)
			}
			return nil
		}

		slaHours := s.cfg.DefaultSLAHours
		if nextStep.StepNumber-1 < len(wf.Steps) {
			slaHours = wf.Steps[nextStep.StepNumber-1].SLAHours
		}
		return s.activateStep(ctx, tx, instance, nextStep, slaHours, now)
	}, s.cfg.StoreRetryAttempts)
	if err != nil {
		return nil, err
	}

	if isLast {
		instance.Status = models.InstanceStatusApproved
		instance.CompletedAt = &now
		s.notifyInstanceClosed(ctx, instance, events.InstanceApproved, actedBy)
	} else {
		instance.CurrentStep = nextStep.StepNumber
		s.notifyStepAssigned(ctx, instance, nextStep)
	}
	return instance, nil
}

func (s *WorkflowService) rejectStep(ctx context.Context, instance *models.WorkflowInstance, step *models.WorkflowStep, actedBy string, comments *string) (*models.WorkflowInstance, error) {
	if _, err := s.stateMachine.Transition(domain.InstanceState(instance.Status), domain.TransitionReject); err != nil {
		return nil, apperrors.NewIllegalTransitionError("%v", err)
	}

	now := time.Now().UTC()
	action := models.OutcomeReject

	err := s.txManager.WithRetry(func(tx *sql.Tx) error {
		ok, err := s.workflows.TransitionStep(ctx, tx, step.ID,
			models.StepStatusInProgress, models.StepStatusRejected,
			persistence.StepUpdate{CompletedAt: &now, ActionTaken: &action, Comments: comments})
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewIllegalTransitionError("step %d of instance %s was advanced concurrently", step.StepNumber, instance.ID)
		}

		if _, err := s.workflows.SkipRemainingSteps(ctx, tx, instance.ID); err != nil {
			return err
		}

		ok, err = s.workflows.TransitionInstance(ctx, tx, instance.ID,
			models.InstanceStatusInProgress, models.InstanceStatusRejected,
			step.StepNumber, &now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewIllegalTransitionError("instance %s left IN_PROGRESS during rejection", instance.ID)
		}
		return nil
	}, s.cfg.StoreRetryAttempts)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatusRejected
	instance.CompletedAt = &now
	s.notifyInstanceClosed(ctx, instance, events.InstanceRejected, actedBy)
	return instance, nil
}

// CancelInstance cancels a non-terminal instance and skips its open steps.
// Cancelling an already terminal instance is an idempotent no-op.
func (s *WorkflowService) CancelInstance(ctx context.Context, instanceID, cancelledBy string) (*models.WorkflowInstance, error) {
	instance, err := s.workflows.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.IsTerminal() {
		return instance, nil
	}

	if _, err := s.stateMachine.Transition(domain.InstanceState(instance.Status), domain.TransitionCancel); err != nil {
		return nil, apperrors.NewIllegalTransitionError("%v", err)
	}

	now := time.Now().UTC()
	fromStatus := instance.Status

	err = s.txManager.WithRetry(func(tx *sql.Tx) error {
		ok, err := s.workflows.TransitionInstance(ctx, tx, instance.ID,
			fromStatus, models.InstanceStatusCancelled, instance.CurrentStep, &now)
		if err != nil {
			return err
		}
		if !ok {
			// Someone else closed it first; the idempotency contract says
			// that is still success as long as the instance is terminal now.
			current, err := s.workflows.GetInstance(ctx, instance.ID)
			if err != nil {
				return err
			}
			if !current.IsTerminal() {
				return apperrors.NewIllegalTransitionError("instance %s changed state during cancellation", instance.ID)
			}
			return nil
		}
		_, err = s.workflows.SkipRemainingSteps(ctx, tx, instance.ID)
		return err
	}, s.cfg.StoreRetryAttempts)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatusCancelled
	instance.CompletedAt = &now
	s.notifyInstanceClosed(ctx, instance, events.InstanceCancelled, cancelledBy)
	return instance, nil
}

// GetInstance returns an instance by ID
func (s *WorkflowService) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return s.workflows.GetInstance(ctx, id)
}

// ListSteps returns the ordered steps of an instance
func (s *WorkflowService) ListSteps(ctx context.Context, instanceID string) ([]*models.WorkflowStep, error) {
	return s.workflows.ListSteps(ctx, instanceID)
}

// Statistics returns instance counts grouped by status
func (s *WorkflowService) Statistics(ctx context.Context) (map[string]int64, error) {
	return s.workflows.CountInstancesByStatus(ctx)
}

func (s *WorkflowService) notifyStepAssigned(ctx context.Context, instance *models.WorkflowInstance, step *models.WorkflowStep) {
	event := events.NotificationEvent{
		Kind:        events.StepAssigned,
		SubjectID:   step.ID,
		RecipientID: step.AssignedTo,
		Title:       fmt.Sprintf("Approval step assigned: %s", step.Name),
		Body:        fmt.Sprintf("Step %d of %d for document %s awaits your action", step.StepNumber, instance.TotalSteps, instance.DocumentID),
		Payload: map[string]interface{}{
			"instance_id": instance.ID,
			"document_id": instance.DocumentID,
			"step_number": step.StepNumber,
		},
	}
	if err := s.notifications.Emit(ctx, event); err != nil {
		log.Printf("⚠️ Step assignment notification failed for step %s: %v", step.ID, err)
	}
}

func (s *WorkflowService) notifyInstanceClosed(ctx context.Context, instance *models.WorkflowInstance, kind events.EventType, actedBy string) {
	event := events.NotificationEvent{
		Kind:        kind,
		SubjectID:   instance.ID,
		RecipientID: instance.InitiatedBy,
		Title:       fmt.Sprintf("Workflow %s", instance.Status),
		Body:        fmt.Sprintf("Workflow run on document %s is %s (by %s)", instance.DocumentID, instance.Status, actedBy),
		Payload: map[string]interface{}{
			"workflow_id": instance.WorkflowID,
			"document_id": instance.DocumentID,
		},
	}
	if err := s.notifications.Emit(ctx, event); err != nil {
		log.Printf("⚠️ Instance closure notification failed for instance %s: %v", instance.ID, err)
	}
}
