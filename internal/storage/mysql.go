package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Saikowshik007/StreamingService/internal/models"
)

// ErrNotFound signals a catalog or progress row that does not exist.
var ErrNotFound = errors.New("not found")

// MySQLStore is the catalog gateway and durable system-of-record for
// progress. Progress upserts are idempotent on (user_id, file_id) so the
// sync worker can safely retry.
type MySQLStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMySQLStore opens and pings the database.
func NewMySQLStore(dsn string, logger *slog.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &MySQLStore{
		db:     db,
		logger: logger.With(slog.String("component", "mysql")),
	}, nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error { return s.db.Close() }

// GetFile retrieves one file record by ID.
func (s *MySQLStore) GetFile(ctx context.Context, fileID string) (*models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_file",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	query := `SELECT id, lesson_id, course_id, filename, file_path, file_type, duration, order_index
			  FROM files WHERE id = ?`

	var f models.FileRecord
	err := s.db.QueryRowContext(ctx, query, fileID).Scan(
		&f.ID, &f.LessonID, &f.CourseID, &f.Filename, &f.FilePath, &f.FileType, &f.Duration, &f.OrderIndex,
	)
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query file: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &f, nil
}

// ListCourses retrieves all courses, newest first.
func (s *MySQLStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	ctx, span := tracer.Start(ctx, "mysql.list_courses")
	defer span.End()

	query := `SELECT id, title, folder_path, description, instructor, total_files, created_at
			  FROM courses ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.FolderPath, &c.Description, &c.Instructor, &c.TotalFiles, &c.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating courses: %w", err)
	}

	span.SetAttributes(attribute.Int("course_count", len(courses)))
	return courses, nil
}

// GetCourse retrieves a course and its lessons ordered by order_index.
func (s *MySQLStore) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_course",
		trace.WithAttributes(attribute.String("course_id", courseID)),
	)
	defer span.End()

	query := `SELECT id, title, folder_path, description, instructor, total_files, created_at
			  FROM courses WHERE id = ?`

	var c models.Course
	err := s.db.QueryRowContext(ctx, query, courseID).Scan(
		&c.ID, &c.Title, &c.FolderPath, &c.Description, &c.Instructor, &c.TotalFiles, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query course: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, title, order_index FROM lessons WHERE course_id = ? ORDER BY order_index`,
		courseID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.OrderIndex); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		c.Lessons = append(c.Lessons, l)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating lessons: %w", err)
	}

	span.SetAttributes(attribute.Int("lesson_count", len(c.Lessons)))
	return &c, nil
}

// GetLesson retrieves a lesson and its files ordered by order_index.
func (s *MySQLStore) GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_lesson",
		trace.WithAttributes(attribute.String("lesson_id", lessonID)),
	)
	defer span.End()

	var l models.Lesson
	err := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, title, order_index FROM lessons WHERE id = ?`,
		lessonID,
	).Scan(&l.ID, &l.CourseID, &l.Title, &l.OrderIndex)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query lesson: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lesson_id, course_id, filename, file_path, file_type, duration, order_index
		 FROM files WHERE lesson_id = ? ORDER BY order_index, filename`,
		lessonID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.FileRecord
		if err := rows.Scan(&f.ID, &f.LessonID, &f.CourseID, &f.Filename, &f.FilePath, &f.FileType, &f.Duration, &f.OrderIndex); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		l.Files = append(l.Files, f)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	span.SetAttributes(attribute.Int("file_count", len(l.Files)))
	return &l, nil
}

// UpsertFileProgress writes a progress sample, keyed (user_id, file_id).
// Repeated flushes of the same sample are safe: the statement replaces the
// row in place. Lesson and course aggregates are recomputed afterwards;
// aggregate failures are logged, never propagated.
func (s *MySQLStore) UpsertFileProgress(ctx context.Context, sample *models.ProgressSample) error {
	ctx, span := tracer.Start(ctx, "mysql.upsert_file_progress",
		trace.WithAttributes(
			attribute.String("user_id", sample.UserID),
			attribute.String("file_id", sample.FileID),
		),
	)
	defer span.End()

	query := `INSERT INTO user_progress
				(user_id, file_id, lesson_id, course_id, progress_seconds, progress_percentage, completed, last_updated)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
				lesson_id = VALUES(lesson_id),
				course_id = VALUES(course_id),
				progress_seconds = VALUES(progress_seconds),
				progress_percentage = VALUES(progress_percentage),
				completed = VALUES(completed),
				last_updated = VALUES(last_updated)`

	_, err := s.db.ExecContext(ctx, query,
		sample.UserID, sample.FileID, sample.LessonID, sample.CourseID,
		sample.ProgressSeconds, sample.ProgressPercentage, sample.Completed, sample.LastUpdated,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert progress: %w", err)
	}

	if err := s.updateLessonAggregate(ctx, sample.UserID, sample.LessonID, sample.CourseID, sample.LastUpdated); err != nil {
		s.logger.Error("lesson aggregate update failed",
			slog.String("user_id", sample.UserID),
			slog.String("lesson_id", sample.LessonID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.updateCourseAggregate(ctx, sample.UserID, sample.CourseID, sample.LastUpdated); err != nil {
		s.logger.Error("course aggregate update failed",
			slog.String("user_id", sample.UserID),
			slog.String("course_id", sample.CourseID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// GetFileProgress retrieves the durable progress sample for (user, file).
func (s *MySQLStore) GetFileProgress(ctx context.Context, userID, fileID string) (*models.ProgressSample, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_file_progress",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	query := `SELECT user_id, file_id, lesson_id, course_id, progress_seconds, progress_percentage, completed, last_updated
			  FROM user_progress WHERE user_id = ? AND file_id = ?`

	var p models.ProgressSample
	err := s.db.QueryRowContext(ctx, query, userID, fileID).Scan(
		&p.UserID, &p.FileID, &p.LessonID, &p.CourseID,
		&p.ProgressSeconds, &p.ProgressPercentage, &p.Completed, &p.LastUpdated,
	)
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &p, nil
}

// GetCourseProgress retrieves the aggregate course progress for a user.
func (s *MySQLStore) GetCourseProgress(ctx context.Context, userID, courseID string) (*models.CourseProgress, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_course_progress",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("course_id", courseID),
		),
	)
	defer span.End()

	query := `SELECT user_id, course_id, total_files, completed_files, watched_seconds, progress_percentage, last_updated
			  FROM course_progress WHERE user_id = ? AND course_id = ?`

	var cp models.CourseProgress
	err := s.db.QueryRowContext(ctx, query, userID, courseID).Scan(
		&cp.UserID, &cp.CourseID, &cp.TotalFiles, &cp.CompletedFiles,
		&cp.WatchedSeconds, &cp.ProgressPercentage, &cp.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query course progress: %w", err)
	}
	return &cp, nil
}

func (s *MySQLStore) updateLessonAggregate(ctx context.Context, userID, lessonID, courseID string, now int64) error {
	if lessonID == "" {
		return nil
	}

	var total, completed int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(completed), 0)
		 FROM user_progress WHERE user_id = ? AND lesson_id = ?`,
		userID, lessonID,
	).Scan(&total, &completed)
	if err != nil {
		return fmt.Errorf("failed to aggregate lesson progress: %w", err)
	}

	var pct float64
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lesson_progress
			(user_id, lesson_id, course_id, total_files, completed_files, progress_percentage, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
			total_files = VALUES(total_files),
			completed_files = VALUES(completed_files),
			progress_percentage = VALUES(progress_percentage),
			last_updated = VALUES(last_updated)`,
		userID, lessonID, courseID, total, completed, pct, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lesson progress: %w", err)
	}
	return nil
}

func (s *MySQLStore) updateCourseAggregate(ctx context.Context, userID, courseID string, now int64) error {
	if courseID == "" {
		return nil
	}

	var total, completed int
	var watched float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(completed), 0), COALESCE(SUM(progress_seconds), 0)
		 FROM user_progress WHERE user_id = ? AND course_id = ?`,
		userID, courseID,
	).Scan(&total, &completed, &watched)
	if err != nil {
		return fmt.Errorf("failed to aggregate course progress: %w", err)
	}

	var pct float64
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO course_progress
			(user_id, course_id, total_files, completed_files, watched_seconds, progress_percentage, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
			total_files = VALUES(total_files),
			completed_files = VALUES(completed_files),
			watched_seconds = VALUES(watched_seconds),
			progress_percentage = VALUES(progress_percentage),
			last_updated = VALUES(last_updated)`,
		userID, courseID, total, completed, watched, pct, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert course progress: %w", err)
	}
	return nil
}
