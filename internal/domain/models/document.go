package models

import (
	"time"
)

// LifecycleState is the single internal lifecycle axis for documents.
// The storage layer projects it onto the legacy is_active/is_archived/deleted_at
// columns; nothing above the repository ever touches those booleans directly.
type LifecycleState string

const (
	LifecycleActive   LifecycleState = "ACTIVE"
	LifecycleArchived LifecycleState = "ARCHIVED"
	LifecycleDeleted  LifecycleState = "DELETED"
)

// Document represents an organizational document record.
// Binary content, OCR and search indexing live outside this engine; only the
// lifecycle-relevant attributes are modeled here.
type Document struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	DocumentType string         `json:"document_type"`
	Department   string         `json:"department"`
	FolderID     *string        `json:"folder_id,omitempty"`
	Lifecycle    LifecycleState `json:"lifecycle"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
	FileHash     string         `json:"file_hash,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsDeleted reports whether the document has been soft-deleted.
func (d *Document) IsDeleted() bool {
	return d.Lifecycle == LifecycleDeleted
}

// DocumentVersion represents one immutable version of a document's content.
// Exactly one version per document carries IsCurrent = true once any exists.
type DocumentVersion struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id"`
	VersionNumber int       `json:"version_number"`
	IsCurrent     bool      `json:"is_current"`
	FileHash      string    `json:"file_hash"`
	Comment       string    `json:"comment,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// Folder is a node in the self-referential folder tree. Path is the
// materialized path of ancestor names and must stay consistent with the
// parent chain; cycles are rejected on move.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Path      string    `json:"path"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
