package api

import (
	"github.com/tom-jordan23/cooking-mcp/internal/gitmirror"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
	"github.com/tom-jordan23/cooking-mcp/internal/resources"
	"github.com/tom-jordan23/cooking-mcp/internal/tools"
)

// EntryListResponse wraps paginated entry listings.
type EntryListResponse struct {
	Entries []*models.Entry `json:"entries" validate:"required"`
	Total   int             `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps entry search results.
type SearchResponse struct {
	Query   string          `json:"query" example:"brisket"`
	Results []*models.Entry `json:"results" validate:"required"`
	Total   int             `json:"total" example:"3" validate:"required"`
}

// ToolListResponse wraps the tool catalog.
type ToolListResponse struct {
	Tools []tools.Descriptor `json:"tools" validate:"required"`
}

// ResourceListResponse wraps the resource catalog.
type ResourceListResponse struct {
	Resources []resources.Descriptor `json:"resources" validate:"required"`
}

// AttachmentListResponse lists an entry's attachment filenames.
type AttachmentListResponse struct {
	EntryID     string   `json:"entry_id" example:"2024-03-10_brisket" validate:"required"`
	Attachments []string `json:"attachments" validate:"required"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	EntryID   string `json:"entry_id" example:"2024-03-10_brisket" validate:"required"`
	Filename  string `json:"filename" example:"crust.jpg" validate:"required"`
	Path      string `json:"path" example:"attachments/2024-03-10_brisket/crust.jpg" validate:"required"`
	Size      int64  `json:"size" example:"12345" validate:"required"`
	CommitSHA string `json:"commit_sha" example:"0ff7bc98c21f72a23e5bb0e06b2b669102b9f62a"`
}

// HistoryResponse wraps mirror commit history.
type HistoryResponse struct {
	Commits []gitmirror.CommitInfo `json:"commits" validate:"required"`
}

// StatusResponse mirrors the repository status report.
type StatusResponse = gitmirror.RepoStatus
