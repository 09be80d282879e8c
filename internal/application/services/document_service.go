package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/events"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
	apperrors "github.com/docuflow/backend/pkg/errors"
	"github.com/docuflow/backend/pkg/utils"
)

// DocumentService manages document lifecycle (archive, soft delete, restore),
// versioning and the folder tree. The lifecycle is a single internal enum;
// the repository handles the projection to legacy columns.
type DocumentService struct {
	documents     *persistence.DocumentRepository
	txManager     *persistence.TransactionManager
	notifications *NotificationService
	cfg           *config.Config
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(documents *persistence.DocumentRepository, txManager *persistence.TransactionManager, notifications *NotificationService, cfg *config.Config) *DocumentService {
	return &DocumentService{
		documents:     documents,
		txManager:     txManager,
		notifications: notifications,
		cfg:           cfg,
	}
}

// Create persists a new ACTIVE document
func (s *DocumentService) Create(ctx context.Context, doc *models.Document) (*models.Document, error) {
	if doc.Name == "" {
		return nil, apperrors.NewValidationError("name", "document name is required")
	}
	if doc.FolderID != nil {
		if _, err := s.documents.GetFolder(ctx, *doc.FolderID); err != nil {
			return nil, err
		}
	}

	doc.ID = utils.GenerateID()
	doc.Lifecycle = models.LifecycleActive
	if err := s.documents.Insert(ctx, s.txManager.ExecutorFor(ctx), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get returns a document by ID
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.documents.Get(ctx, id)
}

// List returns documents matching the optional filters
func (s *DocumentService) List(ctx context.Context, department, documentType, folderID *string, page persistence.Page) ([]*models.Document, error) {
	return s.documents.FindByCriteria(ctx, department, documentType, folderID, false, page)
}

// Archive moves an ACTIVE document to ARCHIVED
func (s *DocumentService) Archive(ctx context.Context, id, actedBy string) error {
	if err := s.transition(ctx, id, models.LifecycleActive, models.LifecycleArchived, "archive"); err != nil {
		return err
	}
	s.notifyLifecycle(ctx, id, events.DocumentArchived, actedBy, "Document archived")
	return nil
}

// Unarchive moves an ARCHIVED document back to ACTIVE
func (s *DocumentService) Unarchive(ctx context.Context, id string) error {
	return s.transition(ctx, id, models.LifecycleArchived, models.LifecycleActive, "unarchive")
}

// SoftDelete marks a document DELETED without removing the row. Deleted
// documents drop out of all active queries and workflow assignment.
func (s *DocumentService) SoftDelete(ctx context.Context, id, actedBy string) error {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.IsDeleted() {
		return nil
	}

	if err := s.transition(ctx, id, doc.Lifecycle, models.LifecycleDeleted, "delete"); err != nil {
		return err
	}
	s.notifyLifecycle(ctx, id, events.DocumentDeleted, actedBy, "Document deleted")
	return nil
}

// Restore brings a soft-deleted document back to ACTIVE
func (s *DocumentService) Restore(ctx context.Context, id string) error {
	return s.transition(ctx, id, models.LifecycleDeleted, models.LifecycleActive, "restore")
}

func (s *DocumentService) transition(ctx context.Context, id string, from, to models.LifecycleState, action string) error {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Lifecycle != from {
		return apperrors.NewInvalidStateError("document", string(doc.Lifecycle), action)
	}

	ok, err := s.documents.TransitionLifecycle(ctx, s.txManager.ExecutorFor(ctx), id, from, to, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewInvalidStateError("document", string(doc.Lifecycle), action)
	}
	return nil
}

// CreateVersion appends a new current version. The previous current version
// is demoted inside the same transaction so exactly one version per document
// stays current.
func (s *DocumentService) CreateVersion(ctx context.Context, documentID, fileHash, comment, createdBy string) (*models.DocumentVersion, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted() {
		return nil, apperrors.NewInvalidStateError("document", string(doc.Lifecycle), "version")
	}

	version := &models.DocumentVersion{
		ID:         utils.GenerateID(),
		DocumentID: documentID,
		IsCurrent:  true,
		FileHash:   fileHash,
		Comment:    comment,
		CreatedBy:  createdBy,
	}

	err = s.txManager.WithRetry(func(tx *sql.Tx) error {
		number, err := s.documents.NextVersionNumber(ctx, tx, documentID)
		if err != nil {
			return err
		}
		version.VersionNumber = number
		return s.documents.InsertVersion(ctx, tx, version)
	}, s.cfg.StoreRetryAttempts)
	if err != nil {
		return nil, err
	}

	s.notifyLifecycle(ctx, documentID, events.VersionCreated, createdBy,
		fmt.Sprintf("Version %d created", version.VersionNumber))
	return version, nil
}

// ListVersions returns a document's versions, newest first
func (s *DocumentService) ListVersions(ctx context.Context, documentID string) ([]*models.DocumentVersion, error) {
	return s.documents.ListVersions(ctx, documentID)
}

// CreateFolder adds a folder under the given parent, maintaining the
// materialized path.
func (s *DocumentService) CreateFolder(ctx context.Context, name string, parentID *string) (*models.Folder, error) {
	if name == "" {
		return nil, apperrors.NewValidationError("name", "folder name is required")
	}

	path, err := s.documents.BuildFolderPath(ctx, parentID, name)
	if err != nil {
		return nil, err
	}

	folder := &models.Folder{
		ID:       utils.GenerateID(),
		Name:     name,
		ParentID: parentID,
		Path:     path,
		IsActive: true,
	}
	if err := s.documents.InsertFolder(ctx, s.txManager.ExecutorFor(ctx), folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// MoveFolder reparents a folder; cycles are rejected and the whole subtree's
// paths are rewritten atomically.
func (s *DocumentService) MoveFolder(ctx context.Context, id string, newParentID *string) error {
	return s.txManager.WithRetry(func(tx *sql.Tx) error {
		return s.documents.MoveFolder(ctx, tx, id, newParentID)
	}, s.cfg.StoreRetryAttempts)
}

// ListFolders returns the active children of a folder (roots when nil)
func (s *DocumentService) ListFolders(ctx context.Context, parentID *string) ([]*models.Folder, error) {
	return s.documents.ListChildFolders(ctx, parentID)
}

// Statistics returns document counts per lifecycle state
func (s *DocumentService) Statistics(ctx context.Context) (map[models.LifecycleState]int64, error) {
	return s.documents.CountByLifecycle(ctx)
}

func (s *DocumentService) notifyLifecycle(ctx context.Context, documentID string, kind events.EventType, actedBy, title string) {
	event := events.NotificationEvent{
		Kind:        kind,
		SubjectID:   documentID,
		RecipientID: actedBy,
		Title:       title,
		Body:        fmt.Sprintf("Document %s: %s", documentID, title),
	}
	if err := s.notifications.Emit(ctx, event); err != nil {
		log.Printf("⚠️ Lifecycle notification failed for document %s: %v", documentID, err)
	}
}
