package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuflow/backend/internal/domain/models"
	apperrors "github.com/docuflow/backend/pkg/errors"
)

// WorkflowEngine defines the interface for workflow operations
type WorkflowEngine interface {
	CreateWorkflow(ctx context.Context, wf *models.Workflow) (*models.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	SetWorkflowStatus(ctx context.Context, id, status string) error
	StartInstance(ctx context.Context, workflowID, documentID, initiator string, priority int) (*models.WorkflowInstance, error)
	GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error)
	AdvanceStep(ctx context.Context, instanceID, stepID, outcome, actedBy string, comments *string) (*models.WorkflowInstance, error)
	CancelInstance(ctx context.Context, instanceID, cancelledBy string) (*models.WorkflowInstance, error)
	ListSteps(ctx context.Context, instanceID string) ([]*models.WorkflowStep, error)
	FindOverdue(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error)
	Statistics(ctx context.Context) (map[string]int64, error)
}

// WorkflowHandler handles workflow definition and instance API endpoints
type WorkflowHandler struct {
	svc WorkflowEngine
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(svc WorkflowEngine) *WorkflowHandler {
	return &WorkflowHandler{svc: svc}
}

// CreateWorkflowRequest represents a request to define a workflow
type CreateWorkflowRequest struct {
	Name               string                `json:"name" binding:"required"`
	Description        *string               `json:"description"`
	Type               string                `json:"type" binding:"required"`
	IsAutomatic        bool                  `json:"is_automatic"`
	IsPublic           bool                  `json:"is_public"`
	Steps              []models.StepTemplate `json:"steps" binding:"required"`
	TriggerCondition   *string               `json:"trigger_condition"`
	TargetDocumentType *string               `json:"target_document_type"`
	Schedule           *string               `json:"schedule"`
	SLAHours           int                   `json:"sla_hours"`
}

// SetStatusRequest represents a workflow status change
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// StartInstanceRequest represents a request to run a workflow against a document
type StartInstanceRequest struct {
	WorkflowID string `json:"workflow_id" binding:"required"`
	DocumentID string `json:"document_id" binding:"required"`
	Priority   int    `json:"priority"`
}

// StepActionRequest represents an approve/reject decision on a step
type StepActionRequest struct {
	Outcome  string  `json:"outcome" binding:"required"`
	Comments *string `json:"comments"`
}

// CreateWorkflow handles POST /api/workflows
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	user := GetUserFromContext(c)

	var req CreateWorkflowRequest
	if !BindJSON(c, &req) {
		return
	}

	wf := &models.Workflow{
		Name:               req.Name,
		Description:        req.Description,
		Type:               req.Type,
		IsAutomatic:        req.IsAutomatic,
		IsPublic:           req.IsPublic,
		Steps:              req.Steps,
		TriggerCondition:   req.TriggerCondition,
		TargetDocumentType: req.TargetDocumentType,
		Schedule:           req.Schedule,
		SLAHours:           req.SLAHours,
		CreatedBy:          user.ID,
	}

	HandleCreateEnvelope(c, "workflow", "Workflow created", func() (interface{}, error) {
		return h.svc.CreateWorkflow(c.Request.Context(), wf)
	})
}

// GetWorkflow handles GET /api/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "workflow", func() (interface{}, error) {
		return h.svc.GetWorkflow(c.Request.Context(), id)
	})
}

// SetWorkflowStatus handles PUT /api/workflows/:id/status
func (h *WorkflowHandler) SetWorkflowStatus(c *gin.Context) {
	id := c.Param("id")

	var req SetStatusRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleUpdateEnvelope(c, "Workflow status updated", func() error {
		return h.svc.SetWorkflowStatus(c.Request.Context(), id, req.Status)
	})
}

// StartInstance handles POST /api/instances
func (h *WorkflowHandler) StartInstance(c *gin.Context) {
	user := GetUserFromContext(c)

	var req StartInstanceRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleCreateEnvelope(c, "instance", "Workflow started", func() (interface{}, error) {
		return h.svc.StartInstance(c.Request.Context(), req.WorkflowID, req.DocumentID, user.ID, req.Priority)
	})
}

// GetInstance handles GET /api/instances/:id
func (h *WorkflowHandler) GetInstance(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "instance", func() (interface{}, error) {
		return h.svc.GetInstance(c.Request.Context(), id)
	})
}

// ListSteps handles GET /api/instances/:id/steps
func (h *WorkflowHandler) ListSteps(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "steps", func() (interface{}, error) {
		return h.svc.ListSteps(c.Request.Context(), id)
	})
}

// ActOnStep handles POST /api/instances/:id/steps/:stepId/action
func (h *WorkflowHandler) ActOnStep(c *gin.Context) {
	instanceID := c.Param("id")
	stepID := c.Param("stepId")
	user := GetUserFromContext(c)

	var req StepActionRequest
	if !BindJSON(c, &req) {
		return
	}

	if req.Outcome != models.OutcomeApprove && req.Outcome != models.OutcomeReject {
		RespondAppError(c, apperrors.NewValidationError("outcome", "outcome must be APPROVE or REJECT"))
		return
	}

	instance, err := h.svc.AdvanceStep(c.Request.Context(), instanceID, stepID, req.Outcome, user.ID, req.Comments)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Step recorded",
		"instance": instance,
	})
}

// CancelInstance handles POST /api/instances/:id/cancel
func (h *WorkflowHandler) CancelInstance(c *gin.Context) {
	instanceID := c.Param("id")
	user := GetUserFromContext(c)

	instance, err := h.svc.CancelInstance(c.Request.Context(), instanceID, user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Instance cancelled",
		"instance": instance,
	})
}

// ListOverdue handles GET /api/instances/overdue
func (h *WorkflowHandler) ListOverdue(c *gin.Context) {
	HandleGetEnvelope(c, "instances", func() (interface{}, error) {
		return h.svc.FindOverdue(c.Request.Context(), time.Now().UTC())
	})
}

// Statistics handles GET /api/instances/statistics
func (h *WorkflowHandler) Statistics(c *gin.Context) {
	HandleGetEnvelope(c, "statistics", func() (interface{}, error) {
		return h.svc.Statistics(c.Request.Context())
	})
}
