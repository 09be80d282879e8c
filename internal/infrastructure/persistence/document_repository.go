package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docuflow/backend/internal/domain/models"
	apperrors "github.com/docuflow/backend/pkg/errors"
)

// DocumentRepository handles database operations for documents, their
// versions and the folder tree. The legacy schema keeps lifecycle as three
// columns (is_active, is_archived, deleted_at); the projection to and from
// models.LifecycleState happens entirely inside this file.
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, name, document_type, department, folder_id,
	is_active, is_archived, deleted_at, file_hash, tags,
	created_by, created_at, updated_at`

const versionColumns = `id, document_id, version_number, is_current,
	file_hash, comment, created_by, created_at`

const folderColumns = `id, name, parent_id, path, is_active, created_at, updated_at`

// lifecycleToColumns projects the single lifecycle axis onto the legacy
// boolean pair. DELETED additionally carries deleted_at, handled by callers.
func lifecycleToColumns(state models.LifecycleState) (isActive, isArchived bool) {
	switch state {
	case models.LifecycleArchived:
		return false, true
	case models.LifecycleDeleted:
		return false, false
	default:
		return true, false
	}
}

// columnsToLifecycle is the reverse projection. deleted_at wins over the
// booleans so a soft-deleted row can never surface as active.
func columnsToLifecycle(isActive, isArchived bool, deletedAt *time.Time) models.LifecycleState {
	if deletedAt != nil {
		return models.LifecycleDeleted
	}
	if isArchived {
		return models.LifecycleArchived
	}
	return models.LifecycleActive
}

// Get fetches a document by ID, including soft-deleted rows
func (r *DocumentRepository) Get(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, documentColumns, TableDocument)
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("document", id)
	}
	return doc, err
}

// Insert persists a new document
func (r *DocumentRepository) Insert(ctx context.Context, exec Executor, doc *models.Document) error {
	isActive, isArchived := lifecycleToColumns(doc.Lifecycle)
	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, TableDocument, documentColumns)

	_, err = exec.ExecContext(ctx, query,
		doc.ID, doc.Name, doc.DocumentType, doc.Department, doc.FolderID,
		isActive, isArchived, doc.DeletedAt, doc.FileHash, tagsJSON, doc.CreatedBy)
	return err
}

// UpdateMetadata updates the mutable descriptive fields of a document
func (r *DocumentRepository) UpdateMetadata(ctx context.Context, exec Executor, doc *models.Document) error {
	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET name = ?, document_type = ?, department = ?, folder_id = ?,
		    tags = ?, updated_at = NOW()
		WHERE id = ? AND deleted_at IS NULL
	`, TableDocument)

	res, err := exec.ExecContext(ctx, query,
		doc.Name, doc.DocumentType, doc.Department, doc.FolderID, tagsJSON, doc.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("document", doc.ID)
	}
	return nil
}

// TransitionLifecycle moves a document between lifecycle states using a
// conditional UPDATE. The from-state guard makes concurrent transitions
// first-writer-wins; a false return means the document was no longer in the
// expected state.
func (r *DocumentRepository) TransitionLifecycle(ctx context.Context, exec Executor, id string, from, to models.LifecycleState, at time.Time) (bool, error) {
	fromActive, fromArchived := lifecycleToColumns(from)
	toActive, toArchived := lifecycleToColumns(to)

	var deletedAt interface{}
	if to == models.LifecycleDeleted {
		deletedAt = at
	}

	deletedGuard := "deleted_at IS NULL"
	if from == models.LifecycleDeleted {
		deletedGuard = "deleted_at IS NOT NULL"
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET is_active = ?, is_archived = ?, deleted_at = ?, updated_at = NOW()
		WHERE id = ? AND is_active = ? AND is_archived = ? AND %s
	`, TableDocument, deletedGuard)

	res, err := exec.ExecContext(ctx, query,
		toActive, toArchived, deletedAt, id, fromActive, fromArchived)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindByCriteria returns documents matching the optional filters, newest
// first. Soft-deleted rows are excluded unless includeDeleted is set.
func (r *DocumentRepository) FindByCriteria(ctx context.Context, department, documentType, folderID *string, includeDeleted bool, page Page) ([]*models.Document, error) {
	c := NewCriteria().
		EqString("department", department).
		EqString("document_type", documentType).
		EqString("folder_id", folderID)
	if !includeDeleted {
		c.IsNull("deleted_at")
	}

	where, args := c.Where()
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at DESC%s`,
		documentColumns, TableDocument, where, page.Clause())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountByLifecycle returns document counts per lifecycle state
func (r *DocumentRepository) CountByLifecycle(ctx context.Context) (map[models.LifecycleState]int64, error) {
	query := fmt.Sprintf(`
		SELECT is_active, is_archived, deleted_at IS NOT NULL, COUNT(*)
		FROM %s
		GROUP BY is_active, is_archived, deleted_at IS NOT NULL
	`, TableDocument)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.LifecycleState]int64)
	for rows.Next() {
		var isActive, isArchived, isDeleted bool
		var n int64
		if err := rows.Scan(&isActive, &isArchived, &isDeleted, &n); err != nil {
			return nil, err
		}
		var deletedAt *time.Time
		if isDeleted {
			t := time.Time{}
			deletedAt = &t
		}
		counts[columnsToLifecycle(isActive, isArchived, deletedAt)] += n
	}
	return counts, rows.Err()
}

// GetCurrentVersion returns the version carrying is_current for a document
func (r *DocumentRepository) GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE document_id = ? AND is_current = true`,
		versionColumns, TableDocumentVersion)
	v, err := scanVersion(r.db.QueryRowContext(ctx, query, documentID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("current version for document", documentID)
	}
	return v, err
}

// ListVersions returns all versions of a document, newest number first
func (r *DocumentRepository) ListVersions(ctx context.Context, documentID string) ([]*models.DocumentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE document_id = ? ORDER BY version_number DESC`,
		versionColumns, TableDocumentVersion)

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// NextVersionNumber returns max(version_number)+1 for a document. Callers run
// it inside the same transaction as InsertVersion so two writers cannot claim
// the same number.
func (r *DocumentRepository) NextVersionNumber(ctx context.Context, exec Executor, documentID string) (int, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(version_number), 0) + 1 FROM %s WHERE document_id = ?`,
		TableDocumentVersion)
	var next int
	if err := exec.QueryRowContext(ctx, query, documentID).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// InsertVersion persists a new version. When v.IsCurrent is set, the previous
// current version is demoted in the same call; both statements must share a
// transaction so exactly one version stays current.
func (r *DocumentRepository) InsertVersion(ctx context.Context, exec Executor, v *models.DocumentVersion) error {
	if v.IsCurrent {
		demote := fmt.Sprintf(`UPDATE %s SET is_current = false WHERE document_id = ? AND is_current = true`,
			TableDocumentVersion)
		if _, err := exec.ExecContext(ctx, demote, v.DocumentID); err != nil {
			return err
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, NOW())
	`, TableDocumentVersion, versionColumns)

	_, err := exec.ExecContext(ctx, query,
		v.ID, v.DocumentID, v.VersionNumber, v.IsCurrent,
		v.FileHash, v.Comment, v.CreatedBy)
	return err
}

// GetFolder fetches a folder by ID
func (r *DocumentRepository) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, folderColumns, TableFolder)
	f, err := scanFolder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("folder", id)
	}
	return f, err
}

// InsertFolder persists a new folder. Path must already include the parent
// chain; BuildFolderPath computes it.
func (r *DocumentRepository) InsertFolder(ctx context.Context, exec Executor, f *models.Folder) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, NOW(), NOW())
	`, TableFolder, folderColumns)

	_, err := exec.ExecContext(ctx, query, f.ID, f.Name, f.ParentID, f.Path, f.IsActive)
	return err
}

// BuildFolderPath computes the materialized path for a folder name under the
// given parent. A nil parent yields "/name".
func (r *DocumentRepository) BuildFolderPath(ctx context.Context, parentID *string, name string) (string, error) {
	if parentID == nil {
		return "/" + name, nil
	}
	parent, err := r.GetFolder(ctx, *parentID)
	if err != nil {
		return "", err
	}
	return parent.Path + "/" + name, nil
}

// MoveFolder reparents a folder and rewrites the materialized paths of the
// whole subtree. Moving a folder under itself or any of its descendants is
// rejected; the path-prefix check catches both cases.
func (r *DocumentRepository) MoveFolder(ctx context.Context, exec Executor, id string, newParentID *string) error {
	f, err := r.GetFolder(ctx, id)
	if err != nil {
		return err
	}

	newPath := "/" + f.Name
	if newParentID != nil {
		if *newParentID == id {
			return apperrors.NewValidationError("parent_id", "folder cannot be moved under itself")
		}
		parent, err := r.GetFolder(ctx, *newParentID)
		if err != nil {
			return err
		}
		if parent.Path == f.Path || strings.HasPrefix(parent.Path, f.Path+"/") {
			return apperrors.NewValidationError("parent_id", "folder cannot be moved under its own descendant")
		}
		newPath = parent.Path + "/" + f.Name
	}

	update := fmt.Sprintf(`UPDATE %s SET parent_id = ?, path = ?, updated_at = NOW() WHERE id = ?`, TableFolder)
	if _, err := exec.ExecContext(ctx, update, newParentID, newPath, id); err != nil {
		return err
	}

	// Rewrite descendant paths by swapping the old prefix for the new one.
	rewrite := fmt.Sprintf(`
		UPDATE %s SET path = CONCAT(?, SUBSTRING(path, ?)), updated_at = NOW()
		WHERE path LIKE ?
	`, TableFolder)
	_, err = exec.ExecContext(ctx, rewrite, newPath, len(f.Path)+1, f.Path+"/%")
	return err
}

// ListChildFolders returns the active direct children of a folder; nil
// parentID lists the roots.
func (r *DocumentRepository) ListChildFolders(ctx context.Context, parentID *string) ([]*models.Folder, error) {
	c := NewCriteria().Eq("is_active", true)
	if parentID == nil {
		c.IsNull("parent_id")
	} else {
		c.Eq("parent_id", *parentID)
	}

	where, args := c.Where()
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY name ASC`, folderColumns, TableFolder, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var folderID, fileHash sql.NullString
	var deletedAt sql.NullTime
	var isActive, isArchived bool
	var tagsJSON []byte

	err := row.Scan(&doc.ID, &doc.Name, &doc.DocumentType, &doc.Department,
		&folderID, &isActive, &isArchived, &deletedAt, &fileHash, &tagsJSON,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags for document %s: %w", doc.ID, err)
		}
	}

	doc.FolderID = nullString(folderID)
	doc.DeletedAt = nullTime(deletedAt)
	doc.FileHash = fileHash.String
	doc.Lifecycle = columnsToLifecycle(isActive, isArchived, doc.DeletedAt)
	return &doc, nil
}

func scanVersion(row rowScanner) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	var comment sql.NullString

	err := row.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.IsCurrent,
		&v.FileHash, &comment, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	v.Comment = comment.String
	return &v, nil
}

func scanFolder(row rowScanner) (*models.Folder, error) {
	var f models.Folder
	var parentID sql.NullString

	err := row.Scan(&f.ID, &f.Name, &parentID, &f.Path, &f.IsActive,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	f.ParentID = nullString(parentID)
	return &f, nil
}
