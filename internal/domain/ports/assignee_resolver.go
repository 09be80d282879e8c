package ports

import (
	"context"

	"github.com/docuflow/backend/internal/domain/models"
)

// AssigneeResolver maps a step template's assignee role to a concrete user
// for a given document. Role and permission management live outside the
// engine; this is the seam the workflow engine calls through when it
// materializes steps.
type AssigneeResolver interface {
	Resolve(ctx context.Context, role string, doc *models.Document) (string, error)
}
