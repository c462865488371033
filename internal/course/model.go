package course

import (
	"context"
	"fmt"

	"github.com/pot-code/course-progress/internal/domain"
)

// LessonType content kind of a lesson
type LessonType string

// lesson types
const (
	LessonTypeVideo      LessonType = "video"
	LessonTypeReading    LessonType = "reading"
	LessonTypeAssessment LessonType = "assessment"
)

// ErrLessonNotFound unknown lesson reference
var ErrLessonNotFound = fmt.Errorf("lesson %w", domain.ErrNotFound)

// LessonModel read-only structural reference owned by the course catalog
type LessonModel struct {
	ID              string     `json:"id"`
	CourseID        string     `json:"course_id"`
	ModuleID        string     `json:"module_id"`
	Type            LessonType `json:"type"`
	Order           int        `json:"order"`
	DurationSeconds int        `json:"duration_seconds"`
}

// Catalog course structure lookups
type Catalog interface {
	GetLessonsForCourse(ctx context.Context, courseID string) ([]*LessonModel, error)
	GetLesson(ctx context.Context, lessonID string) (*LessonModel, error)
}

// Refresher implemented by catalogs that keep a copy of the course structure
type Refresher interface {
	Invalidate(ctx context.Context, courseID string) error
}

// FindLesson look a lesson up in a course's lesson list
func FindLesson(lessons []*LessonModel, lessonID string) *LessonModel {
	for _, l := range lessons {
		if l.ID == lessonID {
			return l
		}
	}
	return nil
}
