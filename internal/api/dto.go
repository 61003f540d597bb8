package api

import (
	"github.com/starford/trevanbox/internal/ledger"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/internal/noteservice"
)

// ProcessRequest is the request body for POST /api/process.
type ProcessRequest = noteservice.ProcessRequest

// PreviewRequest is the request body for POST /api/preview.
type PreviewRequest struct {
	Path string `json:"path" example:"readwise/book.md" validate:"required"`
}

// ProcessResponse wraps per-directory summaries.
type ProcessResponse struct {
	Directories []noteservice.DirectorySummary `json:"directories" validate:"required"`
}

// HistoryResponse wraps ledger entries.
type HistoryResponse struct {
	Entries []ledger.Entry `json:"entries" validate:"required"`
}

// DirectoriesResponse lists the configured import directories.
type DirectoriesResponse struct {
	Directories []models.DirectoryMapping `json:"directories" validate:"required"`
}
