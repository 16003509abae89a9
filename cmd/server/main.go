package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Saikowshik007/StreamingService/internal/auth"
	"github.com/Saikowshik007/StreamingService/internal/config"
	"github.com/Saikowshik007/StreamingService/internal/handlers"
	"github.com/Saikowshik007/StreamingService/internal/progress"
	"github.com/Saikowshik007/StreamingService/internal/signer"
	"github.com/Saikowshik007/StreamingService/internal/storage"
	"github.com/Saikowshik007/StreamingService/internal/stream"
	"github.com/Saikowshik007/StreamingService/internal/tracing"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("starting streaming service")

	// Load and validate configuration. A missing signing secret or an
	// unreadable media root is fatal at startup, never per-request.
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("service", cfg.ServiceName),
		slog.String("port", cfg.ServicePort),
		slog.String("media_path", cfg.MediaPath),
	)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error("error shutting down tracer", slog.String("error", err.Error()))
		}
	}()

	// Catalog and durable progress store
	store, err := storage.NewMySQLStore(cfg.GetDSN(), logger)
	if err != nil {
		logger.Error("failed to initialize mysql store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("mysql store initialized")

	// Progress cache. A down Redis is not fatal; the service runs on the
	// durable store alone.
	cache := storage.NewCache(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB, logger)
	defer cache.Close()

	urlSigner := signer.New(cfg.URLSigningSecret, time.Duration(cfg.URLExpirationSeconds)*time.Second)
	verifier := auth.NewJWTVerifier(cfg.AuthJWTSecret)
	streamer := stream.NewStreamer(cfg.MediaPath, logger)

	progressSvc := progress.NewService(store, store, nil, cache, logger)
	syncWorker := progress.NewSyncWorker(cache, store, time.Duration(cfg.SyncIntervalSeconds)*time.Second, logger)
	syncWorker.Start()

	mediaHandler := handlers.NewMediaHandler(store, streamer, urlSigner, logger)
	progressHandler := handlers.NewProgressHandler(progressSvc, logger)
	catalogHandler := handlers.NewCatalogHandler(store, cache, logger)

	required := auth.Required(verifier, logger)
	optional := auth.Optional(verifier, logger)

	// Setup HTTP router
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "ok",
			"service":    cfg.ServiceName,
			"media_path": cfg.MediaPath,
		})
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	route := func(name string, mw func(http.Handler) http.Handler, h http.HandlerFunc) http.Handler {
		return otelhttp.NewHandler(mw(h), name)
	}

	// Signed-url must be registered before the parameterized stream route.
	router.Handle("/stream/signed-url/{file_id}", route("GET /stream/signed-url/{file_id}", required, mediaHandler.SignedURL)).Methods("GET")
	router.Handle("/stream/{file_id}", route("GET /stream/{file_id}", optional, mediaHandler.Stream)).Methods("GET")
	router.Handle("/document/{file_id}", route("GET /document/{file_id}", required, mediaHandler.Document)).Methods("GET")

	router.Handle("/progress", route("POST /progress", required, progressHandler.Update)).Methods("POST")
	router.Handle("/progress/file/{file_id}", route("GET /progress/file/{file_id}", required, progressHandler.GetFile)).Methods("GET")
	router.Handle("/progress/course/{course_id}", route("GET /progress/course/{course_id}", required, progressHandler.GetCourse)).Methods("GET")

	router.Handle("/api/courses", route("GET /api/courses", optional, catalogHandler.ListCourses)).Methods("GET")
	router.Handle("/api/courses/{course_id}", route("GET /api/courses/{course_id}", optional, catalogHandler.GetCourse)).Methods("GET")
	router.Handle("/api/lessons/{lesson_id}", route("GET /api/lessons/{lesson_id}", optional, catalogHandler.GetLesson)).Methods("GET")
	router.Handle("/api/cache/stats", route("GET /api/cache/stats", required, catalogHandler.CacheStats)).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses may legitimately run for minutes
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", slog.String("port", cfg.ServicePort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	// Final progress flush; bounded so shutdown cannot hang on a dead
	// backend.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := syncWorker.Stop(stopCtx); err != nil {
		logger.Error("sync worker shutdown incomplete", slog.String("error", err.Error()))
	}

	logger.Info("server exited")
}
