package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Saikowshik007/StreamingService/internal/auth"
	"github.com/Saikowshik007/StreamingService/internal/models"
	"github.com/Saikowshik007/StreamingService/internal/storage"
)

// anonUserID keys cached catalog views for unauthenticated requests.
const anonUserID = "default_user"

// CatalogHandler serves cached course and lesson reads. The catalog rows
// themselves are owned by the external scanner; this is a read-only view.
type CatalogHandler struct {
	catalog Catalog
	cache   *storage.Cache
	logger  *slog.Logger
}

// NewCatalogHandler creates the catalog handler.
func NewCatalogHandler(catalog Catalog, cache *storage.Cache, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		cache:   cache,
		logger:  logger.With(slog.String("component", "catalog_handler")),
	}
}

// ListCourses handles GET /api/courses.
func (h *CatalogHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_courses")
	defer span.End()

	key := storage.CoursesAllKey(requestUserID(r))

	var courses []models.Course
	if h.cache.GetJSON(ctx, key, &courses) {
		writeJSON(w, http.StatusOK, courses)
		return
	}

	courses, err := h.catalog.ListCourses(ctx)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}
	if courses == nil {
		courses = []models.Course{}
	}

	h.cache.Set(ctx, key, courses, storage.DefaultTTL)
	span.SetAttributes(attribute.Int("course_count", len(courses)))
	writeJSON(w, http.StatusOK, courses)
}

// GetCourse handles GET /api/courses/{course_id}.
func (h *CatalogHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_course")
	defer span.End()

	courseID := mux.Vars(r)["course_id"]
	span.SetAttributes(attribute.String("course_id", courseID))

	key := storage.CourseKey(courseID)
	var cached models.Course
	if h.cache.GetJSON(ctx, key, &cached) {
		writeJSON(w, http.StatusOK, &cached)
		return
	}

	course, err := h.catalog.GetCourse(ctx, courseID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "course not found")
		return
	} else if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to get course")
		return
	}

	h.cache.Set(ctx, key, course, storage.DefaultTTL)
	writeJSON(w, http.StatusOK, course)
}

// GetLesson handles GET /api/lessons/{lesson_id}.
func (h *CatalogHandler) GetLesson(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_lesson")
	defer span.End()

	lessonID := mux.Vars(r)["lesson_id"]
	span.SetAttributes(attribute.String("lesson_id", lessonID))

	key := storage.LessonKey(lessonID)
	var cached models.Lesson
	if h.cache.GetJSON(ctx, key, &cached) {
		writeJSON(w, http.StatusOK, &cached)
		return
	}

	lesson, err := h.catalog.GetLesson(ctx, lessonID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "lesson not found")
		return
	} else if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to get lesson")
		return
	}

	h.cache.Set(ctx, key, lesson, storage.DefaultTTL)
	writeJSON(w, http.StatusOK, lesson)
}

// CacheStats handles GET /api/cache/stats.
func (h *CatalogHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

func requestUserID(r *http.Request) string {
	if p, ok := auth.FromContext(r.Context()); ok {
		return p.UID
	}
	return anonUserID
}
