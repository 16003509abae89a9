package models

import "time"

// File types recorded by the folder scanner.
const (
	FileTypeVideo    = "video"
	FileTypeDocument = "document"
)

// Course represents a course discovered under the media root.
type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	FolderPath  string    `json:"folder_path"`
	Description string    `json:"description,omitempty"`
	Instructor  string    `json:"instructor,omitempty"`
	TotalFiles  int       `json:"total_files"`
	CreatedAt   time.Time `json:"created_at"`
	Lessons     []Lesson  `json:"lessons,omitempty"`
}

// Lesson is a section of a course containing media files.
type Lesson struct {
	ID         string       `json:"id"`
	CourseID   string       `json:"course_id"`
	Title      string       `json:"title"`
	OrderIndex int          `json:"order_index"`
	Files      []FileRecord `json:"files,omitempty"`
}

// FileRecord is catalog metadata for one media file. FilePath is relative
// to the configured media root; byte size is read from disk at request
// time, never from the catalog.
type FileRecord struct {
	ID         string  `json:"id"`
	LessonID   string  `json:"lesson_id"`
	CourseID   string  `json:"course_id"`
	Filename   string  `json:"filename"`
	FilePath   string  `json:"file_path"`
	FileType   string  `json:"file_type"`
	Duration   float64 `json:"duration,omitempty"`
	OrderIndex int     `json:"order_index"`
}

// IsVideo reports whether the file is streamable video.
func (f *FileRecord) IsVideo() bool { return f.FileType == FileTypeVideo }

// IsDocument reports whether the file is a servable document.
func (f *FileRecord) IsDocument() bool { return f.FileType == FileTypeDocument }

// ProgressSample is the latest viewing position for one (user, file) pair.
// Last-write-wins on LastUpdated.
type ProgressSample struct {
	UserID             string  `json:"user_id"`
	FileID             string  `json:"file_id"`
	LessonID           string  `json:"lesson_id"`
	CourseID           string  `json:"course_id"`
	ProgressSeconds    float64 `json:"progress_seconds"`
	ProgressPercentage float64 `json:"progress_percentage"`
	Completed          bool    `json:"completed"`
	LastUpdated        int64   `json:"last_updated"`
}

// CourseProgress is the aggregated completion state of a course for a user,
// recomputed by the durable store after each file-progress upsert.
type CourseProgress struct {
	UserID             string  `json:"user_id"`
	CourseID           string  `json:"course_id"`
	TotalFiles         int     `json:"total_files"`
	CompletedFiles     int     `json:"completed_files"`
	WatchedSeconds     float64 `json:"watched_seconds"`
	ProgressPercentage float64 `json:"progress_percentage"`
	LastUpdated        int64   `json:"last_updated"`
}

// ProgressUpdate is the body of POST /progress. Lesson and course ids are
// resolved server-side from the file record.
type ProgressUpdate struct {
	FileID             string  `json:"file_id"`
	ProgressSeconds    float64 `json:"progress_seconds"`
	ProgressPercentage float64 `json:"progress_percentage"`
	Completed          bool    `json:"completed"`
}
