// Package progress implements the two-tier progress pipeline: a
// best-effort cache tier absorbing high-frequency player updates, and a
// durable system-of-record the sync worker flushes dirty entries into.
package progress

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Saikowshik007/StreamingService/internal/models"
	"github.com/Saikowshik007/StreamingService/internal/storage"
)

// Catalog resolves file records; it is consumed, not implemented, here.
type Catalog interface {
	GetFile(ctx context.Context, fileID string) (*models.FileRecord, error)
}

// Store is the durable system-of-record. UpsertFileProgress must be
// idempotent on (userID, fileID) so sync-worker retries are safe.
type Store interface {
	UpsertFileProgress(ctx context.Context, sample *models.ProgressSample) error
	GetFileProgress(ctx context.Context, userID, fileID string) (*models.ProgressSample, error)
	GetCourseProgress(ctx context.Context, userID, courseID string) (*models.CourseProgress, error)
}

// LegacyStore is the slow fallback read path for progress recorded before
// the durable store existed. Optional; may be nil.
type LegacyStore interface {
	GetFileProgress(ctx context.Context, userID, fileID string) (*models.ProgressSample, error)
}

// Cache is the fast tier. Every method is best-effort: failures read as
// misses or not-ok and the caller falls through to the durable path.
type Cache interface {
	Enabled() bool
	GetJSON(ctx context.Context, key string, v any) bool
	Set(ctx context.Context, key string, v any, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	DirtyKeys(ctx context.Context) ([]string, error)
	InvalidateUserProgress(ctx context.Context, userID, fileID, courseID string)
}

// Service composes the write and read paths over the cache and store tiers.
type Service struct {
	catalog Catalog
	store   Store
	legacy  LegacyStore
	cache   Cache
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the progress service. legacy may be nil.
func NewService(catalog Catalog, store Store, legacy LegacyStore, cache Cache, logger *slog.Logger) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		legacy:  legacy,
		cache:   cache,
		logger:  logger.With(slog.String("component", "progress")),
		now:     time.Now,
	}
}

// Update records a progress sample for userID. Lesson and course ids come
// from the catalog, not the client. The only error returned is a catalog
// miss; storage failures are absorbed so playback UI is never blocked on a
// storage hiccup.
func (s *Service) Update(ctx context.Context, userID string, upd models.ProgressUpdate) error {
	rec, err := s.catalog.GetFile(ctx, upd.FileID)
	if err != nil {
		return err
	}

	sample := &models.ProgressSample{
		UserID:             userID,
		FileID:             rec.ID,
		LessonID:           rec.LessonID,
		CourseID:           rec.CourseID,
		ProgressSeconds:    upd.ProgressSeconds,
		ProgressPercentage: upd.ProgressPercentage,
		Completed:          upd.Completed,
		LastUpdated:        s.now().Unix(),
	}

	// Durable write first, best effort. When the cache is disabled this is
	// the only durability mechanism for the request; when it is enabled
	// the dirty marker guarantees an eventual flush regardless.
	if err := s.store.UpsertFileProgress(ctx, sample); err != nil {
		s.logger.Error("durable progress write failed",
			slog.String("user_id", userID),
			slog.String("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.cache.Enabled() {
		// Derived views (course aggregates, per-user listings) are stale as
		// of this sample; drop them before caching the fresh sample.
		s.cache.InvalidateUserProgress(ctx, userID, rec.ID, rec.CourseID)
		s.cache.Set(ctx, storage.ProgressKey(userID, rec.ID), sample, storage.ProgressTTL)
		s.cache.Set(ctx, storage.DirtyKey(userID, rec.ID), 1, storage.ProgressTTL)
	}
	return nil
}

// Get returns the progress sample for (userID, fileID): cache first, then
// the durable store, then the legacy store, backfilling the cache with the
// winning result. Absence everywhere yields an empty default sample, never
// an error.
func (s *Service) Get(ctx context.Context, userID, fileID string) *models.ProgressSample {
	key := storage.ProgressKey(userID, fileID)

	var cached models.ProgressSample
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached
	}

	if sample, err := s.store.GetFileProgress(ctx, userID, fileID); err == nil {
		s.cache.Set(ctx, key, sample, storage.ProgressTTL)
		return sample
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("durable progress read failed",
			slog.String("user_id", userID),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}

	if s.legacy != nil {
		if sample, err := s.legacy.GetFileProgress(ctx, userID, fileID); err == nil && sample != nil {
			s.cache.Set(ctx, key, sample, storage.ProgressTTL)
			return sample
		}
	}

	return &models.ProgressSample{UserID: userID, FileID: fileID}
}

// CourseProgress returns the aggregate course progress for a user, cached,
// defaulting to a zero-value aggregate when no row exists.
func (s *Service) CourseProgress(ctx context.Context, userID, courseID string) *models.CourseProgress {
	key := storage.CourseProgressKey(userID, courseID)

	var cached models.CourseProgress
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached
	}

	if cp, err := s.store.GetCourseProgress(ctx, userID, courseID); err == nil {
		s.cache.Set(ctx, key, cp, storage.DefaultTTL)
		return cp
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("course progress read failed",
			slog.String("user_id", userID),
			slog.String("course_id", courseID),
			slog.String("error", err.Error()),
		)
	}

	return &models.CourseProgress{UserID: userID, CourseID: courseID}
}
