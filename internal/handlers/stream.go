package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Saikowshik007/StreamingService/internal/auth"
	"github.com/Saikowshik007/StreamingService/internal/signer"
	"github.com/Saikowshik007/StreamingService/internal/storage"
	"github.com/Saikowshik007/StreamingService/internal/stream"
)

// MediaHandler serves video streams, signed stream URLs, and documents.
type MediaHandler struct {
	catalog  Catalog
	streamer *stream.Streamer
	signer   *signer.Signer
	logger   *slog.Logger
}

// NewMediaHandler creates the media handler.
func NewMediaHandler(catalog Catalog, streamer *stream.Streamer, sgn *signer.Signer, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		catalog:  catalog,
		streamer: streamer,
		signer:   sgn,
		logger:   logger.With(slog.String("component", "media_handler")),
	}
}

// SignedURLResponse is the body of GET /stream/signed-url/{file_id}.
type SignedURLResponse struct {
	FileID    string `json:"file_id"`
	Signature string `json:"signature"`
	Expires   int64  `json:"expires"`
	URL       string `json:"url"`
}

// Stream handles GET /stream/{file_id}. Access requires either a bearer
// principal (attached by the optional-auth middleware) or a valid signed
// capability in the query string.
func (h *MediaHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "stream_video",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	fileID := mux.Vars(r)["file_id"]
	span.SetAttributes(attribute.String("file_id", fileID))

	if !h.authorized(r, fileID) {
		writeError(w, http.StatusUnauthorized, "no valid credentials for stream")
		return
	}

	rec, err := h.catalog.GetFile(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "video not found")
		return
	} else if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve file")
		return
	}
	if !rec.IsVideo() {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}

	err = h.streamer.Stream(ctx, w, rec.FilePath, r.Header.Get("Range"), "video/mp4")
	switch {
	case errors.Is(err, stream.ErrNotOnDisk), errors.Is(err, stream.ErrPathEscapesRoot):
		h.logger.Warn("catalog entry has no file on disk",
			slog.String("file_id", fileID),
			slog.String("path", rec.FilePath),
		)
		writeError(w, http.StatusNotFound, "video file not found on disk")
	case errors.Is(err, stream.ErrRangeNotSatisfiable):
		writeError(w, http.StatusRequestedRangeNotSatisfiable, "requested range not satisfiable")
	case err != nil:
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "streaming failed")
	}
}

// SignedURL handles GET /stream/signed-url/{file_id} (bearer required).
// Capabilities are only issued for video files.
func (h *MediaHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "issue_signed_url")
	defer span.End()

	fileID := mux.Vars(r)["file_id"]
	span.SetAttributes(attribute.String("file_id", fileID))

	rec, err := h.catalog.GetFile(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "video not found")
		return
	} else if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve file")
		return
	}
	if !rec.IsVideo() {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}

	sig, expires := h.signer.Issue(fileID)
	writeJSON(w, http.StatusOK, SignedURLResponse{
		FileID:    fileID,
		Signature: sig,
		Expires:   expires,
		URL:       fmt.Sprintf("/stream/%s?signature=%s&expires=%d", fileID, sig, expires),
	})
}

// Document handles GET /document/{file_id} (bearer required). Whole-file
// delivery with a sniffed content type; no range support.
func (h *MediaHandler) Document(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "serve_document")
	defer span.End()

	fileID := mux.Vars(r)["file_id"]
	span.SetAttributes(attribute.String("file_id", fileID))

	rec, err := h.catalog.GetFile(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	} else if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve file")
		return
	}
	if !rec.IsDocument() {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	err = h.streamer.ServeDocument(ctx, w, rec.FilePath)
	if errors.Is(err, stream.ErrNotOnDisk) || errors.Is(err, stream.ErrPathEscapesRoot) {
		writeError(w, http.StatusNotFound, "document file not found on disk")
	} else if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to serve document")
	}
}

// authorized accepts a bearer principal or a valid signed capability.
// Expired and forged signatures are distinguished in logs but both come
// back to the client as Unauthorized.
func (h *MediaHandler) authorized(r *http.Request, fileID string) bool {
	if _, ok := auth.FromContext(r.Context()); ok {
		return true
	}

	q := r.URL.Query()
	sig := q.Get("signature")
	expStr := q.Get("expires")
	if sig == "" || expStr == "" {
		return false
	}

	expires, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		h.logger.Warn("invalid expires value on signed request",
			slog.String("file_id", fileID),
			slog.String("expires", expStr),
		)
		return false
	}

	if time.Now().Unix() > expires {
		h.logger.Warn("signed url expired",
			slog.String("file_id", fileID),
			slog.Int64("expires", expires),
		)
		return false
	}

	if !h.signer.Verify(fileID, sig, expires) {
		h.logger.Warn("invalid signature on signed request", slog.String("file_id", fileID))
		return false
	}
	return true
}
