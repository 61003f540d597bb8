package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/trevanbox/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Status handles GET /api/status.
//
//	@Summary		Inference service reachability and model presence
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	noteservice.StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Directories handles GET /api/directories.
//
//	@Summary		Configured import directories
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	DirectoriesResponse
//	@Security		BearerAuth
//	@Router			/directories [get]
func (h *Handler) Directories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DirectoriesResponse{Directories: h.svc.Directories()})
}

// Process handles POST /api/process.
//
//	@Summary		Process import directories
//	@Tags			process
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProcessRequest	true	"Directories and switches"
//	@Success		200		{object}	ProcessResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/process [post]
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	dirs, err := h.svc.Process(r.Context(), req)
	if err != nil {
		h.fail(w, "process failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessResponse{Directories: dirs})
}

// Preview handles POST /api/preview.
//
//	@Summary		Dry-run a single note
//	@Tags			process
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PreviewRequest	true	"Note path relative to the vault"
//	@Success		200		{object}	noteservice.Preview
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	p, err := h.svc.Preview(r.Context(), req.Path)
	if err != nil {
		h.fail(w, "preview failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// History handles GET /api/history.
//
//	@Summary		Recently processed files
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum entries"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.History(limit)
	if err != nil {
		h.fail(w, "history failed", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if noteservice.IsClientError(err) {
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorBody(err.Error()))
		return
	}
	slog.Error(msg, slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
