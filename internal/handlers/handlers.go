// Package handlers exposes the HTTP surface: media streaming, signed URLs,
// documents, progress, and cached catalog reads.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/Saikowshik007/StreamingService/internal/models"
)

var tracer = otel.Tracer("streamingservice-handlers")

// Catalog is the read-only view of the course catalog the handlers need.
type Catalog interface {
	GetFile(ctx context.Context, fileID string) (*models.FileRecord, error)
	GetCourse(ctx context.Context, courseID string) (*models.Course, error)
	GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
