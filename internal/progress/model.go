package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/pot-code/course-progress/internal/domain"
)

var (
	ErrEnrollmentNotFound = fmt.Errorf("enrollment %w", domain.ErrNotFound)
	ErrCourseNotFound     = fmt.Errorf("course %w", domain.ErrNotFound)
	ErrLessonNotInCourse  = fmt.Errorf("%w: lesson does not belong to the enrollment's course", domain.ErrInvalidArgument)
	ErrEmptyPatch         = fmt.Errorf("%w: patch carries no field", domain.ErrInvalidArgument)
	ErrGradeNotAllowed    = fmt.Errorf("%w: grade is only accepted for assessment lessons", domain.ErrInvalidArgument)
)

// EnrollmentModel a learner's registration in one course
type EnrollmentModel struct {
	ID          string     `json:"id"`
	LearnerID   string     `json:"learner_id"`
	CourseID    string     `json:"course_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"-"`
	CreatedAt   *time.Time `json:"-"`
	Timestamp   int64      `json:"timestamp"`
}

// LessonProgressModel one per (enrollment, lesson)
type LessonProgressModel struct {
	EnrollmentID         string     `json:"-"`
	LessonID             string     `json:"lesson_id"`
	ModuleID             string     `json:"module_id"`
	Completed            bool       `json:"completed"`
	LastPlayedSeconds    int        `json:"last_played"`
	VideoDurationSeconds *int       `json:"video_duration,omitempty"`
	Grade                *float64   `json:"grade,omitempty"`
	CompletedAt          *time.Time `json:"-"`
	UpdatedAt            *time.Time `json:"-"`
	Timestamp            int64      `json:"timestamp"`
}

// ModuleProgressModel derived from the lessons of one module, never written by clients
type ModuleProgressModel struct {
	EnrollmentID string     `json:"-"`
	ModuleID     string     `json:"module_id"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"-"`
}

// ProgressSnapshot full lesson/module/course completion state of an enrollment
type ProgressSnapshot struct {
	EnrollmentID string                 `json:"enrollment_id"`
	Lessons      []*LessonProgressModel `json:"lessons"`
	Modules      []*ModuleProgressModel `json:"modules"`
	Completed    bool                   `json:"completed"`
}

// ProgressPatch partial report, a nil field was not observed by the caller
type ProgressPatch struct {
	LastPlayed    *int     `json:"lastPlayed,omitempty" validate:"omitempty,min=0,max=2147483647"`
	Completed     *bool    `json:"completed,omitempty"`
	VideoDuration *int     `json:"videoDuration,omitempty" validate:"omitempty,min=0,max=2147483647"`
	ForceComplete *bool    `json:"forceComplete,omitempty"`
	Grade         *float64 `json:"grade,omitempty" validate:"omitempty,min=0,max=100"`
}

// IsEmpty report whether no field was supplied
func (p *ProgressPatch) IsEmpty() bool {
	return p.LastPlayed == nil &&
		p.Completed == nil &&
		p.VideoDuration == nil &&
		p.ForceComplete == nil &&
		p.Grade == nil
}

// MergeFunc computes the next state from the locked current one
type MergeFunc func(current *LessonProgressModel) (*LessonProgressModel, error)

type ProgressRepository interface {
	GetEnrollment(ctx context.Context, enrollmentID string) (*EnrollmentModel, error)
	FindEnrollment(ctx context.Context, learnerID, courseID string) (*EnrollmentModel, error)
	CreateEnrollment(ctx context.Context, enrollment *EnrollmentModel) error
	ListLessonProgress(ctx context.Context, enrollmentID string) ([]*LessonProgressModel, error)
	ListModuleProgress(ctx context.Context, enrollmentID string) ([]*ModuleProgressModel, error)
	// UpsertLessonProgress read-modify-write of one (enrollment, lesson) row, serialized against other writers of the same row
	UpsertLessonProgress(ctx context.Context, enrollmentID, lessonID, moduleID string, merge MergeFunc) (*LessonProgressModel, error)
	// MarkModulesCompleted returns how many modules were not completed before
	MarkModulesCompleted(ctx context.Context, enrollmentID string, moduleIDs []string, at time.Time) (int, error)
	// MarkEnrollmentCompleted returns true only for the caller that flipped the flag
	MarkEnrollmentCompleted(ctx context.Context, enrollmentID string, at time.Time) (bool, error)
}

type ProgressUseCase interface {
	Enroll(ctx context.Context, learnerID, courseID string) (*EnrollmentModel, error)
	GetEnrollment(ctx context.Context, enrollmentID string) (*EnrollmentModel, error)
	GetProgress(ctx context.Context, enrollmentID string) (*ProgressSnapshot, error)
	GetLessonProgress(ctx context.Context, enrollmentID, lessonID string) (*LessonProgressModel, error)
	UpdateLessonProgress(ctx context.Context, enrollmentID, lessonID string, patch *ProgressPatch) (*ProgressSnapshot, error)
}

// CompletionListener is told once per enrollment when the course becomes complete
type CompletionListener interface {
	OnCourseCompleted(ctx context.Context, enrollmentID string) error
}
