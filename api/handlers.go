package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"warptrace/core"
	"warptrace/service"
	"warptrace/storage"
)

// uploadStatusResponse is the wire shape for upload state replies.
type uploadStatusResponse struct {
	UploadID string            `json:"upload_id" example:"9f2c3b7a-1d4e-4f6a-9c0b-2e8d5a71f3c4"`
	Status   core.UploadStatus `json:"status" example:"processing"`
	Progress int               `json:"progress" example:"5"`
}

// uploadListItem is one row of the uploads listing.
type uploadListItem struct {
	ID         string            `json:"id" example:"9f2c3b7a-1d4e-4f6a-9c0b-2e8d5a71f3c4"`
	Filename   string            `json:"filename" example:"auth0-march.jsonl"`
	CreatedAt  time.Time         `json:"created_at" swaggertype:"string" example:"2023-10-31T12:00:00Z"`
	Status     core.UploadStatus `json:"status" example:"done"`
	Progress   int               `json:"progress" example:"100"`
	HasSummary bool              `json:"has_summary" example:"true"`
}

// analysisProgressResponse is the partial analysis document returned while
// the pipeline is still running.
type analysisProgressResponse struct {
	Upload   service.UploadRef `json:"upload"`
	Status   core.UploadStatus `json:"status" example:"processing"`
	Progress int               `json:"progress" example:"42"`
}

// coerceStatus maps a blank stored status to uploaded for responses.
func coerceStatus(status core.UploadStatus) core.UploadStatus {
	if status == "" {
		return core.UploadStatusUploaded
	}
	return status
}

// healthCheck godoc
//
//	@Summary		Health check
//	@Description	Reports service liveness and database readiness; always returns 200
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}
//	@Router			/api/health [get]
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	db := "ready"
	if a.db == nil {
		db = "not_ready"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.HealthCheck(ctx); err != nil {
			db = "not_ready"
		}
	}

	respondJSON(w, map[string]interface{}{"ok": true, "db": db}, http.StatusOK, a.logger)
}

// upload godoc
//
//	@Summary		Upload a log file
//	@Description	Accepts a multipart log file and stores it for analysis
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Log file (CSV, JSONL, MessagePack, or plain text)"
//	@Success		200		{object}	uploadStatusResponse
//	@Failure		400		{object}	map[string]string
//	@Failure		413		{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/api/upload [post]
func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > a.config.API.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil, a.logger)
		return
	}
	// MaxBytesReader still guards chunked bodies with no declared length.
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", err, a.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "no file", nil, a.logger)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", err, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read file", err, a.logger)
		return
	}

	u, err := a.analyzer.CreateUpload(header.Filename, string(content))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload", err, a.logger)
		return
	}

	a.logger.Infow("Upload stored", "upload_id", u.ID, "filename", u.Filename, "bytes", len(content))
	respondJSON(w, uploadStatusResponse{UploadID: u.ID, Status: u.Status, Progress: u.Progress}, http.StatusOK, a.logger)
}

// analyze godoc
//
//	@Summary		Start analysis
//	@Description	Queues the analysis pipeline for an upload; echoes current state when already running or done
//	@Tags			analysis
//	@Produce		json
//	@Param			id	path		string	true	"Upload ID"
//	@Success		200	{object}	uploadStatusResponse	"Already done"
//	@Success		202	{object}	uploadStatusResponse	"Queued or still running"
//	@Failure		404	{object}	map[string]string
//	@Failure		503	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/api/analyze/{id} [post]
func (a *API) analyze(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	u, _, err := a.analyzer.StartAnalysis(id)
	switch {
	case errors.Is(err, storage.ErrUploadNotFound):
		writeError(w, http.StatusNotFound, "not found", nil, a.logger)
		return
	case errors.Is(err, core.ErrWorkerPoolQueueFull), errors.Is(err, core.ErrWorkerPoolNotRunning):
		writeError(w, http.StatusServiceUnavailable, "analysis queue unavailable", err, a.logger)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to start analysis", err, a.logger)
		return
	}

	code := http.StatusAccepted
	if u.Status == core.UploadStatusDone {
		code = http.StatusOK
	}
	respondJSON(w, uploadStatusResponse{UploadID: u.ID, Status: u.Status, Progress: u.Progress}, code, a.logger)
}

// status godoc
//
//	@Summary		Upload status
//	@Description	Returns the current pipeline state of an upload
//	@Tags			analysis
//	@Produce		json
//	@Param			id	path		string	true	"Upload ID"
//	@Success		200	{object}	uploadStatusResponse
//	@Failure		404	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/api/status/{id} [get]
func (a *API) status(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	u, err := a.analyzer.Upload(id)
	if errors.Is(err, storage.ErrUploadNotFound) {
		writeError(w, http.StatusNotFound, "not found", nil, a.logger)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load upload", err, a.logger)
		return
	}

	respondJSON(w, uploadStatusResponse{
		UploadID: u.ID,
		Status:   coerceStatus(u.Status),
		Progress: u.Progress,
	}, http.StatusOK, a.logger)
}

// analysis godoc
//
//	@Summary		Analysis document
//	@Description	Returns the full analysis document once done; until then a progress document with 202
//	@Tags			analysis
//	@Produce		json
//	@Param			id	path		string	true	"Upload ID"
//	@Success		200	{object}	service.Analysis
//	@Success		202	{object}	analysisProgressResponse	"Still running"
//	@Failure		404	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/api/analysis/{id} [get]
func (a *API) analysis(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := a.analyzer.BuildAnalysis(r.Context(), id)
	if errors.Is(err, storage.ErrUploadNotFound) {
		writeError(w, http.StatusNotFound, "not found", nil, a.logger)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build analysis", err, a.logger)
		return
	}

	if !doc.Done() {
		respondJSON(w, analysisProgressResponse{
			Upload:   doc.Upload,
			Status:   doc.Status,
			Progress: doc.Progress,
		}, http.StatusAccepted, a.logger)
		return
	}

	respondJSON(w, doc, http.StatusOK, a.logger)
}

// listUploads godoc
//
//	@Summary		List uploads
//	@Description	Lists all uploads, newest first
//	@Tags			uploads
//	@Produce		json
//	@Success		200	{array}	uploadListItem
//	@Security		BearerAuth
//	@Router			/api/uploads [get]
func (a *API) listUploads(w http.ResponseWriter, r *http.Request) {
	ups, err := a.analyzer.Uploads()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list uploads", err, a.logger)
		return
	}

	items := make([]uploadListItem, 0, len(ups))
	for _, u := range ups {
		items = append(items, uploadListItem{
			ID:         u.ID,
			Filename:   u.Filename,
			CreatedAt:  u.CreatedAt,
			Status:     coerceStatus(u.Status),
			Progress:   u.Progress,
			HasSummary: u.AISummary != "",
		})
	}

	respondJSON(w, items, http.StatusOK, a.logger)
}
