package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Saikowshik007/StreamingService/internal/models"
	"github.com/Saikowshik007/StreamingService/internal/storage"
)

var (
	syncSyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_sync_synced_total",
		Help: "Dirty progress entries durably flushed.",
	})

	syncFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_sync_failed_total",
		Help: "Dirty progress entries whose flush failed and was left for retry.",
	})

	syncCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_sync_cycles_total",
		Help: "Completed sync cycles.",
	})
)

// SyncWorker periodically drains dirty progress markers from the cache
// into the durable store. Delivery is at-least-once: a marker is cleared
// only after a confirmed flush, and failed entries stay marked for the
// next cycle.
type SyncWorker struct {
	cache    Cache
	store    Store
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSyncWorker creates a worker flushing every interval.
func NewSyncWorker(cache Cache, store Store, interval time.Duration, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		cache:    cache,
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "progress_sync")),
	}
}

// Start launches the background loop. A second Start while running is a
// no-op, as is starting against a disabled cache (nothing would ever be
// marked dirty).
func (w *SyncWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Warn("sync worker already running")
		return
	}
	if !w.cache.Enabled() {
		w.logger.Warn("cache unavailable, progress sync worker disabled")
		return
	}

	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run()

	w.logger.Info("progress sync worker started", slog.Duration("interval", w.interval))
}

// Stop halts the loop and performs one final synchronous flush so shutdown
// loses as little as possible. The wait for the loop to exit is bounded by
// ctx.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.logger.Info("stopping progress sync worker")
	close(w.stop)

	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Error("sync worker did not stop in time", slog.String("error", ctx.Err().Error()))
		return ctx.Err()
	}

	w.SyncOnce(ctx)
	w.logger.Info("progress sync worker stopped")
	return nil
}

func (w *SyncWorker) run() {
	defer close(w.done)

	for {
		w.SyncOnce(context.Background())

		// Sleep in one-second slices so Stop takes effect within about a
		// slice instead of a full interval.
		for elapsed := time.Duration(0); elapsed < w.interval; elapsed += time.Second {
			select {
			case <-w.stop:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// SyncOnce drains all current dirty markers. Individual entry failures are
// isolated; total cache unavailability degrades to a no-op cycle retried
// next period. Returns how many entries were flushed and how many failed.
func (w *SyncWorker) SyncOnce(ctx context.Context) (synced, failed int) {
	defer syncCyclesTotal.Inc()

	dirtyKeys, err := w.cache.DirtyKeys(ctx)
	if err != nil {
		w.logger.Error("dirty key scan failed, skipping cycle", slog.String("error", err.Error()))
		return 0, 0
	}
	if len(dirtyKeys) == 0 {
		return 0, 0
	}

	for _, dirtyKey := range dirtyKeys {
		userID, fileID, ok := storage.ParseDirtyKey(dirtyKey)
		if !ok {
			w.logger.Warn("invalid dirty key format", slog.String("key", dirtyKey))
			w.cache.Delete(ctx, dirtyKey)
			continue
		}

		var sample models.ProgressSample
		if !w.cache.GetJSON(ctx, storage.ProgressKey(userID, fileID), &sample) {
			// The sample's TTL raced past the marker. Recoverable; drop
			// the stale marker.
			w.logger.Warn("progress entry missing for dirty marker",
				slog.String("user_id", userID),
				slog.String("file_id", fileID),
			)
			w.cache.Delete(ctx, dirtyKey)
			continue
		}

		if err := w.store.UpsertFileProgress(ctx, &sample); err != nil {
			// Marker stays; next cycle retries.
			w.logger.Error("progress flush failed",
				slog.String("user_id", userID),
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}

		w.cache.Delete(ctx, dirtyKey)
		synced++
	}

	syncSyncedTotal.Add(float64(synced))
	syncFailedTotal.Add(float64(failed))

	if synced > 0 || failed > 0 {
		w.logger.Info("progress sync completed",
			slog.Int("synced", synced),
			slog.Int("failed", failed),
		)
	}
	return synced, failed
}
