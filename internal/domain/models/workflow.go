package models

import (
	"time"
)

// Workflow status constants
const (
	WorkflowStatusDraft    = "DRAFT"
	WorkflowStatusActive   = "ACTIVE"
	WorkflowStatusDisabled = "DISABLED"
)

// WorkflowInstance status constants
const (
	InstanceStatusPending    = "PENDING"
	InstanceStatusInProgress = "IN_PROGRESS"
	InstanceStatusApproved   = "APPROVED"
	InstanceStatusRejected   = "REJECTED"
	InstanceStatusCancelled  = "CANCELLED"
)

// WorkflowStep status constants
const (
	StepStatusPending    = "PENDING"
	StepStatusInProgress = "IN_PROGRESS"
	StepStatusCompleted  = "COMPLETED"
	StepStatusRejected   = "REJECTED"
	StepStatusSkipped    = "SKIPPED"
)

// Step outcome constants for AdvanceStep
const (
	OutcomeApprove = "APPROVE"
	OutcomeReject  = "REJECT"
)

// Workflow is the definition of a repeatable approval process. Never
// hard-deleted while instances reference it; deactivation uses Status.
type Workflow struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Type        string  `json:"type"`
	Status      string  `json:"status"` // DRAFT, ACTIVE, DISABLED
	IsAutomatic bool    `json:"is_automatic"`
	IsPublic    bool    `json:"is_public"`

	// Steps is the ordered step template materialized into WorkflowStep rows
	// when an instance starts.
	Steps []StepTemplate `json:"steps"`

	// TriggerCondition is an optional boolean expression evaluated against
	// candidate document attributes when the automatic scheduler selects
	// target documents.
	TriggerCondition *string `json:"trigger_condition,omitempty"`

	// TargetDocumentType narrows the automatic target document set.
	TargetDocumentType *string `json:"target_document_type,omitempty"`

	// Schedule is a cron expression driving NextExecutionAt for automatic
	// workflows.
	Schedule        *string    `json:"schedule,omitempty"`
	NextExecutionAt *time.Time `json:"next_execution_at,omitempty"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	ExecutionCount  int64      `json:"execution_count"`

	// SLAHours is the offset applied to "now" for the instance due date.
	SLAHours int `json:"sla_hours"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepTemplate describes one step of a workflow definition. AssigneeRole is
// resolved to a concrete user by the role-resolution collaborator when an
// instance starts.
type StepTemplate struct {
	Name         string `json:"name"`
	Type         string `json:"type"` // REVIEW, APPROVAL
	AssigneeRole string `json:"assignee_role"`
	SLAHours     int    `json:"sla_hours"`
}

// WorkflowInstance is a single run of a Workflow against one Document.
// APPROVED, REJECTED and CANCELLED are terminal.
type WorkflowInstance struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	DocumentID  string     `json:"document_id"`
	InitiatedBy string     `json:"initiated_by"`
	Status      string     `json:"status"`
	CurrentStep int        `json:"current_step"`
	TotalSteps  int        `json:"total_steps"`
	Priority    int        `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the instance has reached a terminal status.
func (i *WorkflowInstance) IsTerminal() bool {
	switch i.Status {
	case InstanceStatusApproved, InstanceStatusRejected, InstanceStatusCancelled:
		return true
	}
	return false
}

// WorkflowStep is one sequential unit of approval work within an instance.
// StepNumber is strictly increasing and gapless within an instance; at most
// one step per instance is IN_PROGRESS at a time.
type WorkflowStep struct {
	ID          string     `json:"id"`
	InstanceID  string     `json:"instance_id"`
	StepNumber  int        `json:"step_number"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	AssignedTo  string     `json:"assigned_to"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ActionTaken *string    `json:"action_taken,omitempty"`
	Comments    *string    `json:"comments,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
