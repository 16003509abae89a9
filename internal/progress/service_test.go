package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Saikowshik007/StreamingService/internal/models"
	"github.com/Saikowshik007/StreamingService/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeCache is an in-memory Cache with the same best-effort contract as
// the Redis wrapper.
type fakeCache struct {
	mu       sync.Mutex
	enabled  bool
	data     map[string][]byte
	setCalls int
}

func newFakeCache() *fakeCache {
	return &fakeCache{enabled: true, data: make(map[string][]byte)}
}

func (c *fakeCache) Enabled() bool { return c.enabled }

func (c *fakeCache) GetJSON(_ context.Context, key string, v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return false
	}
	data, ok := c.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (c *fakeCache) Set(_ context.Context, key string, v any, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	c.data[key] = data
	c.setCalls++
	return true
}

func (c *fakeCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return false
	}
	delete(c.data, key)
	return true
}

func (c *fakeCache) InvalidateUserProgress(_ context.Context, userID, fileID, courseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	prefixes := []string{
		"course_progress:" + userID + ":" + courseID,
		"courses:all:" + userID,
		"progress:" + userID + ":" + fileID,
	}
	for k := range c.data {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				delete(c.data, k)
			}
		}
	}
}

func (c *fakeCache) DirtyKeys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil, nil
	}
	var keys []string
	for k := range c.data {
		if strings.HasPrefix(k, "progress:dirty:") {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// fakeStore is an in-memory durable store keyed (user, file), with
// injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]models.ProgressSample
	course  map[string]models.CourseProgress
	upserts int
	fail    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:   make(map[string]models.ProgressSample),
		course: make(map[string]models.CourseProgress),
	}
}

func rowKey(userID, fileID string) string { return userID + "\x00" + fileID }

func (s *fakeStore) UpsertFileProgress(_ context.Context, sample *models.ProgressSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("store unavailable")
	}
	s.upserts++
	s.rows[rowKey(sample.UserID, sample.FileID)] = *sample
	return nil
}

func (s *fakeStore) GetFileProgress(_ context.Context, userID, fileID string) (*models.ProgressSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("store unavailable")
	}
	row, ok := s.rows[rowKey(userID, fileID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &row, nil
}

func (s *fakeStore) GetCourseProgress(_ context.Context, userID, courseID string) (*models.CourseProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.course[rowKey(userID, courseID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cp, nil
}

func (s *fakeStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeStore) row(userID, fileID string) (models.ProgressSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[rowKey(userID, fileID)]
	return row, ok
}

// fakeCatalog resolves file records from a fixed map.
type fakeCatalog struct {
	files map[string]*models.FileRecord
}

func (c *fakeCatalog) GetFile(_ context.Context, fileID string) (*models.FileRecord, error) {
	f, ok := c.files[fileID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return f, nil
}

type fakeLegacy struct {
	rows map[string]*models.ProgressSample
}

func (l *fakeLegacy) GetFileProgress(_ context.Context, userID, fileID string) (*models.ProgressSample, error) {
	if row, ok := l.rows[rowKey(userID, fileID)]; ok {
		return row, nil
	}
	return nil, storage.ErrNotFound
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{files: map[string]*models.FileRecord{
		"f1": {ID: "f1", LessonID: "l1", CourseID: "c1", Filename: "intro.mp4", FilePath: "c1/l1/intro.mp4", FileType: models.FileTypeVideo},
	}}
}

func TestUpdateWritesCacheAndDurable(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	svc := NewService(testCatalog(), store, nil, cache, testLogger())

	err := svc.Update(context.Background(), "u1", models.ProgressUpdate{
		FileID:             "f1",
		ProgressSeconds:    120,
		ProgressPercentage: 40,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	row, ok := store.row("u1", "f1")
	if !ok {
		t.Fatal("no durable row written")
	}
	if row.LessonID != "l1" || row.CourseID != "c1" {
		t.Errorf("lesson/course not resolved from catalog: %+v", row)
	}
	if row.ProgressSeconds != 120 {
		t.Errorf("progress_seconds = %v, want 120", row.ProgressSeconds)
	}

	if !cache.has(storage.ProgressKey("u1", "f1")) {
		t.Error("sample not cached")
	}
	if !cache.has(storage.DirtyKey("u1", "f1")) {
		t.Error("dirty marker not set")
	}
}

func TestUpdateInvalidatesDerivedViews(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	svc := NewService(testCatalog(), store, nil, cache, testLogger())

	ctx := context.Background()
	cache.Set(ctx, storage.CourseProgressKey("u1", "c1"), &models.CourseProgress{UserID: "u1", CourseID: "c1"}, storage.DefaultTTL)
	cache.Set(ctx, storage.CoursesAllKey("u1"), []models.Course{}, storage.DefaultTTL)

	if err := svc.Update(ctx, "u1", models.ProgressUpdate{FileID: "f1", ProgressSeconds: 10}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if cache.has(storage.CourseProgressKey("u1", "c1")) {
		t.Error("stale course aggregate survived update")
	}
	if cache.has(storage.CoursesAllKey("u1")) {
		t.Error("stale course listing survived update")
	}
	if !cache.has(storage.ProgressKey("u1", "f1")) {
		t.Error("fresh sample not cached after invalidation")
	}
}

// A write must be readable from the cache tier immediately, without
// waiting for a sync cycle.
func TestUpdateThenImmediateRead(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	svc := NewService(testCatalog(), store, nil, cache, testLogger())

	if err := svc.Update(context.Background(), "u1", models.ProgressUpdate{FileID: "f1", ProgressSeconds: 120}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got := svc.Get(context.Background(), "u1", "f1")
	if got.ProgressSeconds != 120 {
		t.Errorf("ProgressSeconds = %v, want 120", got.ProgressSeconds)
	}
	if got.Completed {
		t.Error("Completed = true, want false")
	}
}

// With the cache disabled, the synchronous durable write is the only
// durability mechanism; no sync worker is needed.
func TestUpdateCacheDisabledFallsBackToDurable(t *testing.T) {
	cache := newFakeCache()
	cache.enabled = false
	store := newFakeStore()
	svc := NewService(testCatalog(), store, nil, cache, testLogger())

	if err := svc.Update(context.Background(), "u1", models.ProgressUpdate{FileID: "f1", ProgressSeconds: 60}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, ok := store.row("u1", "f1"); !ok {
		t.Fatal("durable row missing with cache disabled")
	}
	if cache.setCalls != 0 {
		t.Error("cache written while disabled")
	}
}

func TestUpdateUnknownFile(t *testing.T) {
	svc := NewService(testCatalog(), newFakeStore(), nil, newFakeCache(), testLogger())

	err := svc.Update(context.Background(), "u1", models.ProgressUpdate{FileID: "nope"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

// Durable-store failure on the write path must not fail the request; the
// dirty marker keeps the sample eligible for a later flush.
func TestUpdateAbsorbsDurableFailure(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	store.fail = true
	svc := NewService(testCatalog(), store, nil, cache, testLogger())

	if err := svc.Update(context.Background(), "u1", models.ProgressUpdate{FileID: "f1", ProgressSeconds: 30}); err != nil {
		t.Fatalf("Update returned error despite best-effort contract: %v", err)
	}
	if !cache.has(storage.DirtyKey("u1", "f1")) {
		t.Error("dirty marker missing after durable failure")
	}
}

func TestGetFallsThroughToDurableAndBackfills(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	store.rows[rowKey("u1", "f1")] = models.ProgressSample{
		UserID: "u1", FileID: "f1", ProgressSeconds: 300, Completed: true,
	}
	svc := NewService(testCatalog(), store, nil, cache, testLogger())

	got := svc.Get(context.Background(), "u1", "f1")
	if got.ProgressSeconds != 300 || !got.Completed {
		t.Fatalf("Get = %+v", got)
	}
	if !cache.has(storage.ProgressKey("u1", "f1")) {
		t.Error("durable hit not backfilled into cache")
	}
}

func TestGetLegacyFallback(t *testing.T) {
	cache := newFakeCache()
	legacy := &fakeLegacy{rows: map[string]*models.ProgressSample{
		rowKey("u1", "f1"): {UserID: "u1", FileID: "f1", ProgressSeconds: 42},
	}}
	svc := NewService(testCatalog(), newFakeStore(), legacy, cache, testLogger())

	got := svc.Get(context.Background(), "u1", "f1")
	if got.ProgressSeconds != 42 {
		t.Fatalf("Get = %+v, want legacy row", got)
	}
	if !cache.has(storage.ProgressKey("u1", "f1")) {
		t.Error("legacy hit not backfilled into cache")
	}
}

func TestGetAbsentEverywhereReturnsDefault(t *testing.T) {
	svc := NewService(testCatalog(), newFakeStore(), nil, newFakeCache(), testLogger())

	got := svc.Get(context.Background(), "u1", "f9")
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.UserID != "u1" || got.FileID != "f9" {
		t.Errorf("default sample ids = %q/%q", got.UserID, got.FileID)
	}
	if got.ProgressSeconds != 0 || got.Completed {
		t.Errorf("default sample not zero-valued: %+v", got)
	}
}

func TestCourseProgressDefault(t *testing.T) {
	svc := NewService(testCatalog(), newFakeStore(), nil, newFakeCache(), testLogger())

	got := svc.CourseProgress(context.Background(), "u1", "c1")
	if got.TotalFiles != 0 || got.ProgressPercentage != 0 {
		t.Errorf("default aggregate = %+v", got)
	}
}
