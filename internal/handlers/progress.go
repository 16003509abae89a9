package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Saikowshik007/StreamingService/internal/auth"
	"github.com/Saikowshik007/StreamingService/internal/models"
	"github.com/Saikowshik007/StreamingService/internal/progress"
	"github.com/Saikowshik007/StreamingService/internal/storage"
)

// ProgressHandler exposes the progress write and read paths. All routes
// sit behind required-auth middleware.
type ProgressHandler struct {
	svc    *progress.Service
	logger *slog.Logger
}

// NewProgressHandler creates the progress handler.
func NewProgressHandler(svc *progress.Service, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "progress_handler")),
	}
}

// Update handles POST /progress. Durability is asynchronous by design:
// once the request is accepted the response is success, even when only
// the best-effort paths succeeded.
func (h *ProgressHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "update_progress")
	defer span.End()

	principal, ok := auth.FromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	var upd models.ProgressUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if upd.FileID == "" {
		writeError(w, http.StatusBadRequest, "file_id is required")
		return
	}

	span.SetAttributes(
		attribute.String("user_id", principal.UID),
		attribute.String("file_id", upd.FileID),
	)

	if err := h.svc.Update(ctx, principal.UID, upd); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to record progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetFile handles GET /progress/file/{file_id}; returns the cached or
// durable sample, or an empty default.
func (h *ProgressHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_file_progress")
	defer span.End()

	principal, ok := auth.FromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	fileID := mux.Vars(r)["file_id"]
	span.SetAttributes(
		attribute.String("user_id", principal.UID),
		attribute.String("file_id", fileID),
	)

	writeJSON(w, http.StatusOK, h.svc.Get(ctx, principal.UID, fileID))
}

// GetCourse handles GET /progress/course/{course_id}; returns the
// aggregate or a zero-value default.
func (h *ProgressHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_course_progress")
	defer span.End()

	principal, ok := auth.FromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	courseID := mux.Vars(r)["course_id"]
	writeJSON(w, http.StatusOK, h.svc.CourseProgress(ctx, principal.UID, courseID))
}
