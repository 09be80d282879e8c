package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/docuflow/backend/internal/domain/events"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
)

// SystemInitiator is the fixed identity automatic executions run under
const SystemInitiator = "00000000-0000-0000-0000-000000000000"

// FindOverdue returns non-terminal instances whose due date has passed.
// Each call re-queries the store, so repeated ticks see a fresh snapshot.
func (s *WorkflowService) FindOverdue(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error) {
	return s.workflows.FindOverdueInstances(ctx, now, persistence.Page{Limit: s.cfg.DiscoveryPageSize})
}

// ProcessOverdue emits an overdue notification for every late instance,
// addressed to whoever holds the in-progress step. Per-instance failures are
// logged and do not block siblings.
func (s *WorkflowService) ProcessOverdue(ctx context.Context, now time.Time) (int, error) {
	instances, err := s.FindOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	notified := 0
	for _, instance := range instances {
		recipient := instance.InitiatedBy
		if step, err := s.currentStep(ctx, instance); err == nil && step != nil {
			recipient = step.AssignedTo
		}

		event := events.NotificationEvent{
			Kind:        events.InstanceOverdue,
			SubjectID:   instance.ID,
			RecipientID: recipient,
			Title:       "Workflow overdue",
			Body: fmt.Sprintf("Workflow run on document %s passed its due date %s",
				instance.DocumentID, instance.DueDate.Format("2006-01-02 15:04")),
			Payload: map[string]interface{}{
				"workflow_id":  instance.WorkflowID,
				"document_id":  instance.DocumentID,
				"current_step": instance.CurrentStep,
			},
		}
		if err := s.notifications.Emit(ctx, event); err != nil {
			log.Printf("⚠️ Overdue notification failed for instance %s: %v", instance.ID, err)
			continue
		}
		notified++
	}
	return notified, nil
}

func (s *WorkflowService) currentStep(ctx context.Context, instance *models.WorkflowInstance) (*models.WorkflowStep, error) {
	if instance.CurrentStep <= 0 {
		return nil, nil
	}
	steps, err := s.workflows.ListSteps(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		if step.StepNumber == instance.CurrentStep {
			return step, nil
		}
	}
	return nil, nil
}

// TriggerDueAutomaticWorkflows starts instances for every due automatic
// workflow. Target documents are selected by the workflow's document type and
// filtered through its trigger condition; each workflow is processed
// independently so one failure never blocks the rest of the batch.
func (s *WorkflowService) TriggerDueAutomaticWorkflows(ctx context.Context, now time.Time) (int, error) {
	due, err := s.workflows.FindDueAutomaticWorkflows(ctx, now, persistence.Page{Limit: s.cfg.DiscoveryPageSize})
	if err != nil {
		return 0, err
	}

	started := 0
	for _, wf := range due {
		n, err := s.executeAutomaticWorkflow(ctx, wf, now)
		if err != nil {
			log.Printf("❌ Automatic workflow %s (%s) failed: %v", wf.Name, wf.ID, err)
		} else {
			started += n
		}

		// Advance the schedule even after a failure so a broken workflow
		// does not retrigger on every tick.
		next := s.nextExecution(wf, now)
		if err := s.workflows.AdvanceWorkflowSchedule(ctx, s.txManager.ExecutorFor(ctx), wf.ID, now, next); err != nil {
			log.Printf("⚠️ Failed to advance schedule for workflow %s: %v", wf.ID, err)
		}
	}
	return started, nil
}

func (s *WorkflowService) executeAutomaticWorkflow(ctx context.Context, wf *models.Workflow, now time.Time) (int, error) {
	log.Printf("⏰ Executing automatic workflow: %s (%s)", wf.Name, wf.ID)

	docs, err := s.documents.FindByCriteria(ctx, nil, wf.TargetDocumentType, nil, false,
		persistence.Page{Limit: s.cfg.DiscoveryPageSize})
	if err != nil {
		return 0, err
	}

	started := 0
	for _, doc := range docs {
		if wf.TriggerCondition != nil && *wf.TriggerCondition != "" {
			match, err := s.engine.EvaluateBool(*wf.TriggerCondition, documentEnv(doc))
			if err != nil {
				log.Printf("⚠️ Trigger condition error on workflow %s for document %s: %v", wf.ID, doc.ID, err)
				continue
			}
			if !match {
				continue
			}
		}

		if _, err := s.StartInstance(ctx, wf.ID, doc.ID, SystemInitiator, 0); err != nil {
			log.Printf("⚠️ Failed to start instance of %s on document %s: %v", wf.Name, doc.ID, err)
			continue
		}
		started++
	}

	log.Printf("✅ Automatic workflow %s started %d instance(s)", wf.Name, started)
	return started, nil
}

// documentEnv is the attribute environment trigger conditions see
func documentEnv(doc *models.Document) map[string]interface{} {
	return map[string]interface{}{
		"name":          doc.Name,
		"document_type": doc.DocumentType,
		"department":    doc.Department,
		"tags":          doc.Tags,
		"created_at":    doc.CreatedAt,
	}
}

// nextExecution computes the workflow's next due time from its cron schedule,
// falling back to a daily cadence when no schedule parses.
func (s *WorkflowService) nextExecution(wf *models.Workflow, now time.Time) time.Time {
	if wf.Schedule == nil || *wf.Schedule == "" {
		return now.Add(24 * time.Hour)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(*wf.Schedule)
	if err != nil {
		log.Printf("⚠️ Invalid cron schedule %q on workflow %s, falling back to daily", *wf.Schedule, wf.ID)
		return now.Add(24 * time.Hour)
	}
	return schedule.Next(now).UTC()
}
