package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pot-code/course-progress/internal/course"
	"github.com/pot-code/course-progress/internal/domain"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/infrastructure/uuid"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// ProgressUseCaseImpl ...
type ProgressUseCaseImpl struct {
	ProgressRepository ProgressRepository
	Catalog            course.Catalog
	Policy             *MergePolicy
	Listener           CompletionListener
	IDGenerator        uuid.Generator
	Validator          validate.Validator
	Metrics            *metrics.Registry
}

var _ ProgressUseCase = &ProgressUseCaseImpl{}

// NewProgressUseCase ...
func NewProgressUseCase(
	ProgressRepository ProgressRepository,
	Catalog course.Catalog,
	Policy *MergePolicy,
	Listener CompletionListener,
	IDGenerator uuid.Generator,
	Validator validate.Validator,
	Metrics *metrics.Registry,
) *ProgressUseCaseImpl {
	return &ProgressUseCaseImpl{
		ProgressRepository: ProgressRepository,
		Catalog:            Catalog,
		Policy:             Policy,
		Listener:           Listener,
		IDGenerator:        IDGenerator,
		Validator:          Validator,
		Metrics:            Metrics,
	}
}

// Enroll returns the existing enrollment when the learner is already enrolled
func (pu *ProgressUseCaseImpl) Enroll(ctx context.Context, learnerID, courseID string) (*EnrollmentModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "ProgressUseCaseImpl.Enroll", "service")
	defer apmSpan.End()

	lessons, err := pu.Catalog.GetLessonsForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(lessons) == 0 {
		return nil, ErrCourseNotFound
	}

	existing, err := pu.ProgressRepository.FindEnrollment(ctx, learnerID, courseID)
	if err == nil {
		return withEnrollmentTimestamp(existing), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	id, err := pu.IDGenerator.Generate()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	enrollment := &EnrollmentModel{
		ID:        id,
		LearnerID: learnerID,
		CourseID:  courseID,
		CreatedAt: &now,
	}
	if err := pu.ProgressRepository.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, err = pu.ProgressRepository.FindEnrollment(ctx, learnerID, courseID)
			if err != nil {
				return nil, err
			}
			return withEnrollmentTimestamp(existing), nil
		}
		return nil, err
	}
	return withEnrollmentTimestamp(enrollment), nil
}

func (pu *ProgressUseCaseImpl) GetEnrollment(ctx context.Context, enrollmentID string) (*EnrollmentModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "ProgressUseCaseImpl.GetEnrollment", "service")
	defer apmSpan.End()

	enrollment, err := pu.ProgressRepository.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return withEnrollmentTimestamp(enrollment), nil
}

// GetProgress lessons without a stored record are reported as untouched
func (pu *ProgressUseCaseImpl) GetProgress(ctx context.Context, enrollmentID string) (*ProgressSnapshot, error) {
	apmSpan, _ := apm.StartSpan(ctx, "ProgressUseCaseImpl.GetProgress", "service")
	defer apmSpan.End()

	enrollment, err := pu.ProgressRepository.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	lessons, err := pu.Catalog.GetLessonsForCourse(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	return pu.buildSnapshot(ctx, enrollment, lessons)
}

func (pu *ProgressUseCaseImpl) GetLessonProgress(ctx context.Context, enrollmentID, lessonID string) (*LessonProgressModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "ProgressUseCaseImpl.GetLessonProgress", "service")
	defer apmSpan.End()

	enrollment, err := pu.ProgressRepository.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	lessons, err := pu.Catalog.GetLessonsForCourse(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	lesson, lessons, err := pu.resolveLesson(ctx, enrollment.CourseID, lessons, lessonID)
	if err != nil {
		return nil, err
	}

	stored, err := pu.ProgressRepository.ListLessonProgress(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	for _, lp := range stored {
		if lp.LessonID == lessonID {
			return withLessonTimestamp(lp), nil
		}
	}
	return &LessonProgressModel{EnrollmentID: enrollmentID, LessonID: lesson.ID, ModuleID: lesson.ModuleID}, nil
}

// UpdateLessonProgress merge patch into the lesson record, a completion runs the cascade before returning
func (pu *ProgressUseCaseImpl) UpdateLessonProgress(ctx context.Context, enrollmentID, lessonID string, patch *ProgressPatch) (*ProgressSnapshot, error) {
	apmSpan, _ := apm.StartSpan(ctx, "ProgressUseCaseImpl.UpdateLessonProgress", "service")
	defer apmSpan.End()

	snapshot, err := pu.updateLessonProgress(ctx, enrollmentID, lessonID, patch)
	switch {
	case err == nil:
		pu.Metrics.ProgressReports.WithLabelValues(metrics.ResultApplied).Inc()
	case errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument):
		pu.Metrics.ProgressReports.WithLabelValues(metrics.ResultRejected).Inc()
	default:
		pu.Metrics.ProgressReports.WithLabelValues(metrics.ResultFailed).Inc()
	}
	return snapshot, err
}

func (pu *ProgressUseCaseImpl) updateLessonProgress(ctx context.Context, enrollmentID, lessonID string, patch *ProgressPatch) (*ProgressSnapshot, error) {
	if patch == nil || patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	// also reached by the websocket relay, which skips REST binding
	if ferrs := pu.Validator.Struct(patch); ferrs != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, ferrs)
	}

	enrollment, err := pu.ProgressRepository.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	lessons, err := pu.Catalog.GetLessonsForCourse(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	lesson, lessons, err := pu.resolveLesson(ctx, enrollment.CourseID, lessons, lessonID)
	if err != nil {
		return nil, err
	}
	if patch.Grade != nil && lesson.Type != course.LessonTypeAssessment {
		return nil, ErrGradeNotAllowed
	}

	now := time.Now()
	var merged *MergeResult
	_, err = pu.ProgressRepository.UpsertLessonProgress(ctx, enrollmentID, lessonID, lesson.ModuleID,
		func(current *LessonProgressModel) (*LessonProgressModel, error) {
			merged = pu.Policy.Merge(current, patch, lesson.Type, now)
			return merged.Next, nil
		})
	if err != nil {
		return nil, err
	}

	if merged.BecameComplete {
		pu.Metrics.LessonCompletions.WithLabelValues(string(lesson.Type)).Inc()
	}
	// a repeated completion report re-runs the cascade, which recovers one that failed half way
	if merged.Triggered {
		courseCompleted, err := pu.cascade(ctx, enrollment.ID, lessons, now)
		if err != nil {
			return nil, err
		}
		enrollment.Completed = enrollment.Completed || courseCompleted
	}
	return pu.buildSnapshot(ctx, enrollment, lessons)
}

// resolveLesson tells an unknown lesson apart from a lesson of another course. A lesson the catalog
// places in courseID but the cached structure lacks means the copy is stale, so it is refreshed once
// and the returned lesson list replaces the caller's.
func (pu *ProgressUseCaseImpl) resolveLesson(ctx context.Context, courseID string, lessons []*course.LessonModel, lessonID string) (*course.LessonModel, []*course.LessonModel, error) {
	if lesson := course.FindLesson(lessons, lessonID); lesson != nil {
		return lesson, lessons, nil
	}
	found, err := pu.Catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, nil, err
	}
	refresher, ok := pu.Catalog.(course.Refresher)
	if !ok || found.CourseID != courseID {
		return nil, nil, ErrLessonNotInCourse
	}

	logging.ExtractLoggerFromContext(ctx).Info("course structure cache is stale, refreshing",
		zap.String("course.id", courseID), zap.String("lesson.id", lessonID))
	if err := refresher.Invalidate(ctx, courseID); err != nil {
		return nil, nil, err
	}
	lessons, err = pu.Catalog.GetLessonsForCourse(ctx, courseID)
	if err != nil {
		return nil, nil, err
	}
	if lesson := course.FindLesson(lessons, lessonID); lesson != nil {
		return lesson, lessons, nil
	}
	return nil, nil, ErrLessonNotInCourse
}

// cascade recompute module and course completion from stored lesson state. Every write it
// issues is monotonic, so concurrent runs for the same enrollment converge.
func (pu *ProgressUseCaseImpl) cascade(ctx context.Context, enrollmentID string, lessons []*course.LessonModel, at time.Time) (bool, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.cascade", "service")
	defer apmSpan.End()

	stored, err := pu.ProgressRepository.ListLessonProgress(ctx, enrollmentID)
	if err != nil {
		return false, err
	}
	completed := make(map[string]bool, len(stored))
	for _, lp := range stored {
		completed[lp.LessonID] = lp.Completed
	}

	result := EvaluateCascade(lessons, completed)
	n, err := pu.ProgressRepository.MarkModulesCompleted(ctx, enrollmentID, result.CompletedModules(), at)
	if err != nil {
		return false, err
	}
	pu.Metrics.ModuleCompletions.Add(float64(n))
	if !result.CourseCompleted {
		return false, nil
	}

	transitioned, err := pu.ProgressRepository.MarkEnrollmentCompleted(ctx, enrollmentID, at)
	if err != nil {
		return false, err
	}
	if transitioned {
		pu.Metrics.CourseCompletions.Inc()
		if pu.Listener != nil {
			// the enrollment stays completed either way, the certificate sweeper retries
			if err := pu.Listener.OnCourseCompleted(ctx, enrollmentID); err != nil {
				logging.ExtractLoggerFromContext(ctx).Error("certificate gate failed after course completion",
					zap.String("enrollment.id", enrollmentID), zap.Error(err))
			}
		}
	}
	return true, nil
}

func (pu *ProgressUseCaseImpl) buildSnapshot(ctx context.Context, enrollment *EnrollmentModel, lessons []*course.LessonModel) (*ProgressSnapshot, error) {
	stored, err := pu.ProgressRepository.ListLessonProgress(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	modules, err := pu.ProgressRepository.ListModuleProgress(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}

	byLesson := make(map[string]*LessonProgressModel, len(stored))
	for _, lp := range stored {
		byLesson[lp.LessonID] = lp
	}
	byModule := make(map[string]bool, len(modules))
	for _, mp := range modules {
		byModule[mp.ModuleID] = mp.Completed
	}

	snapshot := &ProgressSnapshot{
		EnrollmentID: enrollment.ID,
		Lessons:      make([]*LessonProgressModel, 0, len(lessons)),
		Modules:      []*ModuleProgressModel{},
		Completed:    enrollment.Completed,
	}
	seen := make(map[string]bool)
	for _, l := range lessons {
		lp, ok := byLesson[l.ID]
		if !ok {
			lp = &LessonProgressModel{EnrollmentID: enrollment.ID, LessonID: l.ID, ModuleID: l.ModuleID}
		}
		snapshot.Lessons = append(snapshot.Lessons, withLessonTimestamp(lp))

		if !seen[l.ModuleID] {
			seen[l.ModuleID] = true
			snapshot.Modules = append(snapshot.Modules, &ModuleProgressModel{
				EnrollmentID: enrollment.ID,
				ModuleID:     l.ModuleID,
				Completed:    byModule[l.ModuleID],
			})
		}
	}
	return snapshot, nil
}

func withEnrollmentTimestamp(e *EnrollmentModel) *EnrollmentModel {
	if e.CreatedAt != nil {
		e.Timestamp = e.CreatedAt.UnixNano() / 1e6 // milliseconds
	}
	return e
}

func withLessonTimestamp(lp *LessonProgressModel) *LessonProgressModel {
	if lp.UpdatedAt != nil {
		lp.Timestamp = lp.UpdatedAt.UnixNano() / 1e6 // milliseconds
	}
	return lp
}
