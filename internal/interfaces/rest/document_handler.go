package rest

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
)

// DocumentLifecycle defines the interface for document lifecycle operations
type DocumentLifecycle interface {
	Create(ctx context.Context, doc *models.Document) (*models.Document, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, department, documentType, folderID *string, page persistence.Page) ([]*models.Document, error)
	Archive(ctx context.Context, id, actedBy string) error
	Unarchive(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id, actedBy string) error
	Restore(ctx context.Context, id string) error
	CreateVersion(ctx context.Context, documentID, fileHash, comment, createdBy string) (*models.DocumentVersion, error)
	ListVersions(ctx context.Context, documentID string) ([]*models.DocumentVersion, error)
	CreateFolder(ctx context.Context, name string, parentID *string) (*models.Folder, error)
	MoveFolder(ctx context.Context, id string, newParentID *string) error
	ListFolders(ctx context.Context, parentID *string) ([]*models.Folder, error)
	Statistics(ctx context.Context) (map[models.LifecycleState]int64, error)
}

// DocumentHandler handles document and folder API endpoints
type DocumentHandler struct {
	svc DocumentLifecycle
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(svc DocumentLifecycle) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// CreateDocumentRequest represents a request to register a document
type CreateDocumentRequest struct {
	Name         string   `json:"name" binding:"required"`
	DocumentType string   `json:"document_type" binding:"required"`
	Department   string   `json:"department"`
	FolderID     *string  `json:"folder_id"`
	FileHash     string   `json:"file_hash"`
	Tags         []string `json:"tags"`
}

// CreateVersionRequest represents a new content version of a document
type CreateVersionRequest struct {
	FileHash string `json:"file_hash" binding:"required"`
	Comment  string `json:"comment"`
}

// CreateFolderRequest represents a request to create a folder node
type CreateFolderRequest struct {
	Name     string  `json:"name" binding:"required"`
	ParentID *string `json:"parent_id"`
}

// MoveFolderRequest represents a request to reparent a folder
type MoveFolderRequest struct {
	NewParentID *string `json:"new_parent_id"`
}

// Create handles POST /api/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	user := GetUserFromContext(c)

	var req CreateDocumentRequest
	if !BindJSON(c, &req) {
		return
	}

	doc := &models.Document{
		Name:         req.Name,
		DocumentType: req.DocumentType,
		Department:   req.Department,
		FolderID:     req.FolderID,
		FileHash:     req.FileHash,
		Tags:         req.Tags,
		CreatedBy:    user.ID,
	}

	HandleCreateEnvelope(c, "document", "Document created", func() (interface{}, error) {
		return h.svc.Create(c.Request.Context(), doc)
	})
}

// Get handles GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "document", func() (interface{}, error) {
		return h.svc.Get(c.Request.Context(), id)
	})
}

// List handles GET /api/documents
func (h *DocumentHandler) List(c *gin.Context) {
	page := persistence.Page{Limit: 100}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		page.Offset = v
	}

	HandleGetEnvelope(c, "documents", func() (interface{}, error) {
		return h.svc.List(c.Request.Context(),
			optionalQuery(c, "department"),
			optionalQuery(c, "document_type"),
			optionalQuery(c, "folder_id"),
			page)
	})
}

// Archive handles POST /api/documents/:id/archive
func (h *DocumentHandler) Archive(c *gin.Context) {
	id := c.Param("id")
	user := GetUserFromContext(c)
	HandleUpdateEnvelope(c, "Document archived", func() error {
		return h.svc.Archive(c.Request.Context(), id, user.ID)
	})
}

// Unarchive handles POST /api/documents/:id/unarchive
func (h *DocumentHandler) Unarchive(c *gin.Context) {
	id := c.Param("id")
	HandleUpdateEnvelope(c, "Document restored to active", func() error {
		return h.svc.Unarchive(c.Request.Context(), id)
	})
}

// Delete handles DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	user := GetUserFromContext(c)
	HandleUpdateEnvelope(c, "Document deleted", func() error {
		return h.svc.SoftDelete(c.Request.Context(), id, user.ID)
	})
}

// Restore handles POST /api/documents/:id/restore
func (h *DocumentHandler) Restore(c *gin.Context) {
	id := c.Param("id")
	HandleUpdateEnvelope(c, "Document restored", func() error {
		return h.svc.Restore(c.Request.Context(), id)
	})
}

// CreateVersion handles POST /api/documents/:id/versions
func (h *DocumentHandler) CreateVersion(c *gin.Context) {
	id := c.Param("id")
	user := GetUserFromContext(c)

	var req CreateVersionRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleCreateEnvelope(c, "version", "Version created", func() (interface{}, error) {
		return h.svc.CreateVersion(c.Request.Context(), id, req.FileHash, req.Comment, user.ID)
	})
}

// ListVersions handles GET /api/documents/:id/versions
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "versions", func() (interface{}, error) {
		return h.svc.ListVersions(c.Request.Context(), id)
	})
}

// CreateFolder handles POST /api/folders
func (h *DocumentHandler) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleCreateEnvelope(c, "folder", "Folder created", func() (interface{}, error) {
		return h.svc.CreateFolder(c.Request.Context(), req.Name, req.ParentID)
	})
}

// MoveFolder handles PUT /api/folders/:id/parent
func (h *DocumentHandler) MoveFolder(c *gin.Context) {
	id := c.Param("id")

	var req MoveFolderRequest
	if !BindJSON(c, &req) {
		return
	}

	HandleUpdateEnvelope(c, "Folder moved", func() error {
		return h.svc.MoveFolder(c.Request.Context(), id, req.NewParentID)
	})
}

// ListFolders handles GET /api/folders
func (h *DocumentHandler) ListFolders(c *gin.Context) {
	HandleGetEnvelope(c, "folders", func() (interface{}, error) {
		return h.svc.ListFolders(c.Request.Context(), optionalQuery(c, "parent_id"))
	})
}

// Statistics handles GET /api/documents/statistics
func (h *DocumentHandler) Statistics(c *gin.Context) {
	HandleGetEnvelope(c, "statistics", func() (interface{}, error) {
		return h.svc.Statistics(c.Request.Context())
	})
}

func optionalQuery(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}
