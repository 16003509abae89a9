package storage

import (
	"fmt"
	"strings"
)

// Cache key layout. The invalidation helpers below are the only place that
// knows how identifiers map to related cache keys, so the templates must
// stay exactly as persisted. Identifiers must not contain colons; the dirty
// key parser relies on a fixed field count.

// ProgressKey is the cache key for a user's progress sample on a file.
func ProgressKey(userID, fileID string) string {
	return fmt.Sprintf("progress:%s:%s", userID, fileID)
}

// DirtyKey marks a progress sample as pending durable flush.
func DirtyKey(userID, fileID string) string {
	return fmt.Sprintf("progress:dirty:%s:%s", userID, fileID)
}

// DirtyKeyPattern matches every dirty marker.
const DirtyKeyPattern = "progress:dirty:*"

// ParseDirtyKey extracts (userID, fileID) from a dirty marker key.
// Expects exactly "progress:dirty:{userID}:{fileID}".
func ParseDirtyKey(key string) (userID, fileID string, ok bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != "progress" || parts[1] != "dirty" || parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// CourseKey is the cache key for a single course with its lessons.
func CourseKey(courseID string) string {
	return fmt.Sprintf("course:%s", courseID)
}

// CoursesAllKey is the cache key for the course listing shown to a user.
func CoursesAllKey(userID string) string {
	return fmt.Sprintf("courses:all:%s", userID)
}

// LessonKey is the cache key for a single lesson with its files.
func LessonKey(lessonID string) string {
	return fmt.Sprintf("lesson:%s", lessonID)
}

// CourseProgressKey is the cache key for a user's aggregate course progress.
func CourseProgressKey(userID, courseID string) string {
	return fmt.Sprintf("course_progress:%s:%s", userID, courseID)
}

// coursePatterns returns every pattern touched by a course change.
func coursePatterns(courseID string) []string {
	return []string{
		fmt.Sprintf("course:%s", courseID),
		fmt.Sprintf("course:%s:*", courseID),
		fmt.Sprintf("lessons:course:%s", courseID),
		fmt.Sprintf("lessons:course:%s:*", courseID),
		"courses:all:*",
		"stats",
	}
}

// lessonPatterns returns every pattern touched by a lesson change.
func lessonPatterns(lessonID, courseID string) []string {
	patterns := []string{
		fmt.Sprintf("lesson:%s", lessonID),
		fmt.Sprintf("lesson:%s:*", lessonID),
		fmt.Sprintf("files:lesson:%s:*", lessonID),
	}
	if courseID != "" {
		patterns = append(patterns,
			fmt.Sprintf("lessons:course:%s:*", courseID),
			fmt.Sprintf("course:%s:*", courseID),
		)
	}
	return patterns
}

// filePatterns returns every pattern touched by a file change.
func filePatterns(fileID, lessonID string) []string {
	patterns := []string{
		fmt.Sprintf("file:%s:*", fileID),
	}
	if lessonID != "" {
		patterns = append(patterns,
			fmt.Sprintf("files:lesson:%s:*", lessonID),
			fmt.Sprintf("lesson:%s:*", lessonID),
		)
	}
	return patterns
}

// userProgressPatterns returns every pattern touched by a progress change.
func userProgressPatterns(userID, fileID, courseID string) []string {
	var patterns []string
	if fileID != "" {
		patterns = append(patterns,
			fmt.Sprintf("progress:%s:%s", userID, fileID),
			fmt.Sprintf("file:%s:%s", fileID, userID),
		)
	}
	if courseID != "" {
		patterns = append(patterns,
			fmt.Sprintf("course_progress:%s:%s", userID, courseID),
			fmt.Sprintf("course:%s:%s", courseID, userID),
			fmt.Sprintf("lessons:course:%s:%s", courseID, userID),
		)
	}
	patterns = append(patterns, fmt.Sprintf("courses:all:%s", userID))
	return patterns
}
