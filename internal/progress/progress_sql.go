package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pot-code/course-progress/internal/domain"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
)

var errNoProgressRow = errors.New("lesson progress row does not exist")

type ProgressSQL struct {
	Conn driver.ITransactionalDB `dep:""`
}

var _ ProgressRepository = &ProgressSQL{}

func NewProgressRepository(Conn driver.ITransactionalDB) *ProgressSQL {
	return &ProgressSQL{
		Conn: Conn,
	}
}

func (repo *ProgressSQL) GetEnrollment(ctx context.Context, enrollmentID string) (*EnrollmentModel, error) {
	return repo.queryEnrollment(ctx, `
SELECT
    id, learner_id, course_id, completed, completed_at, created_at
FROM
    enrollment
WHERE
    id = $1
	`, enrollmentID)
}

func (repo *ProgressSQL) FindEnrollment(ctx context.Context, learnerID, courseID string) (*EnrollmentModel, error) {
	return repo.queryEnrollment(ctx, `
SELECT
    id, learner_id, course_id, completed, completed_at, created_at
FROM
    enrollment
WHERE
    learner_id = $1 AND course_id = $2
	`, learnerID, courseID)
}

func (repo *ProgressSQL) queryEnrollment(ctx context.Context, query string, args ...interface{}) (*EnrollmentModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	if rows.Next() {
		item := new(EnrollmentModel)
		if err := rows.Scan(&item.ID, &item.LearnerID, &item.CourseID, &item.Completed, &item.CompletedAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		return item, nil
	}
	if err := rows.Err(); err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	return nil, ErrEnrollmentNotFound
}

// CreateEnrollment a second enrollment of the same learner in the same course fails with domain.ErrConflict
func (repo *ProgressSQL) CreateEnrollment(ctx context.Context, enrollment *EnrollmentModel) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `
INSERT INTO enrollment (id, learner_id, course_id, completed, created_at)
VALUES ($1, $2, $3, FALSE, $4)
	`, enrollment.ID, enrollment.LearnerID, enrollment.CourseID, enrollment.CreatedAt)
	if driver.IsUniqueViolation(err) {
		return fmt.Errorf("%w: learner %s is already enrolled in course %s", domain.ErrConflict, enrollment.LearnerID, enrollment.CourseID)
	}
	return driver.WrapConnectionError(err)
}

func (repo *ProgressSQL) ListLessonProgress(ctx context.Context, enrollmentID string) ([]*LessonProgressModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    enrollment_id, lesson_id, module_id, completed, last_played_seconds,
    video_duration_seconds, grade, completed_at, updated_at
FROM
    lesson_progress
WHERE
    enrollment_id = $1
	`, enrollmentID)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	var result []*LessonProgressModel
	for rows.Next() {
		item, err := scanLessonProgress(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, driver.WrapConnectionError(rows.Err())
}

func (repo *ProgressSQL) ListModuleProgress(ctx context.Context, enrollmentID string) ([]*ModuleProgressModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    enrollment_id, module_id, completed, completed_at
FROM
    module_progress
WHERE
    enrollment_id = $1
	`, enrollmentID)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	var result []*ModuleProgressModel
	for rows.Next() {
		item := new(ModuleProgressModel)
		if err := rows.Scan(&item.EnrollmentID, &item.ModuleID, &item.Completed, &item.CompletedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, driver.WrapConnectionError(rows.Err())
}

// UpsertLessonProgress the row is created outside the locking transaction, a failed insert
// would otherwise abort a postgres transaction. A concurrent insert of the same row is harmless.
func (repo *ProgressSQL) UpsertLessonProgress(ctx context.Context, enrollmentID, lessonID, moduleID string, merge MergeFunc) (*LessonProgressModel, error) {
	for attempt := 0; attempt < 2; attempt++ {
		next, err := repo.mergeLocked(ctx, enrollmentID, lessonID, merge)
		if !errors.Is(err, errNoProgressRow) {
			return next, driver.WrapConnectionError(err)
		}
		if err := repo.insertEmptyProgress(ctx, enrollmentID, lessonID, moduleID); err != nil && !driver.IsUniqueViolation(err) {
			return nil, driver.WrapConnectionError(err)
		}
	}
	return nil, fmt.Errorf("upsert lesson progress %s/%s: %w", enrollmentID, lessonID, errNoProgressRow)
}

func (repo *ProgressSQL) insertEmptyProgress(ctx context.Context, enrollmentID, lessonID, moduleID string) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `
INSERT INTO lesson_progress (enrollment_id, lesson_id, module_id, completed, last_played_seconds, updated_at)
VALUES ($1, $2, $3, FALSE, 0, $4)
	`, enrollmentID, lessonID, moduleID, time.Now())
	return err
}

func (repo *ProgressSQL) mergeLocked(ctx context.Context, enrollmentID, lessonID string, merge MergeFunc) (next *LessonProgressModel, err error) {
	err = driver.WithTx(ctx, repo.Conn, nil, func(tx driver.ITransactionalDB) error {
		rows, err := tx.QueryContext(ctx, `
SELECT
    enrollment_id, lesson_id, module_id, completed, last_played_seconds,
    video_duration_seconds, grade, completed_at, updated_at
FROM
    lesson_progress
WHERE
    enrollment_id = $1 AND lesson_id = $2
FOR UPDATE
		`, enrollmentID, lessonID)
		if err != nil {
			return err
		}
		var current *LessonProgressModel
		if rows.Next() {
			current, err = scanLessonProgress(rows)
		}
		if err == nil {
			err = rows.Err()
		}
		rows.Close()
		if err != nil {
			return err
		}
		if current == nil {
			return errNoProgressRow
		}

		next, err = merge(current)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
UPDATE lesson_progress
SET
    completed = $1, last_played_seconds = $2, video_duration_seconds = $3,
    grade = $4, completed_at = $5, updated_at = $6
WHERE
    enrollment_id = $7 AND lesson_id = $8
		`, next.Completed, next.LastPlayedSeconds, next.VideoDurationSeconds,
			next.Grade, next.CompletedAt, next.UpdatedAt,
			enrollmentID, lessonID)
		return err
	})
	return
}

// MarkModulesCompleted module rows only exist once completed, so inserting is the whole transition
func (repo *ProgressSQL) MarkModulesCompleted(ctx context.Context, enrollmentID string, moduleIDs []string, at time.Time) (int, error) {
	if len(moduleIDs) == 0 {
		return 0, nil
	}
	existing, err := repo.ListModuleProgress(ctx, enrollmentID)
	if err != nil {
		return 0, err
	}
	done := make(map[string]bool, len(existing))
	for _, m := range existing {
		done[m.ModuleID] = m.Completed
	}

	conn := repo.Conn
	inserted := 0
	for _, moduleID := range moduleIDs {
		if done[moduleID] {
			continue
		}
		_, err := conn.ExecContext(ctx, `
INSERT INTO module_progress (enrollment_id, module_id, completed, completed_at)
VALUES ($1, $2, TRUE, $3)
		`, enrollmentID, moduleID, at)
		if driver.IsUniqueViolation(err) {
			// a concurrent cascade got there first
			continue
		}
		if err != nil {
			return inserted, driver.WrapConnectionError(err)
		}
		inserted++
	}
	return inserted, nil
}

func (repo *ProgressSQL) MarkEnrollmentCompleted(ctx context.Context, enrollmentID string, at time.Time) (bool, error) {
	conn := repo.Conn
	res, err := conn.ExecContext(ctx, `
UPDATE enrollment
SET
    completed = TRUE, completed_at = $1
WHERE
    id = $2 AND completed = FALSE
	`, at, enrollmentID)
	if err != nil {
		return false, driver.WrapConnectionError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetEligibility completion flag and best assessment grade, nil grade when nothing was graded
func (repo *ProgressSQL) GetEligibility(ctx context.Context, enrollmentID string) (bool, *float64, error) {
	enrollment, err := repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return false, nil, err
	}

	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    MAX(grade)
FROM
    lesson_progress
WHERE
    enrollment_id = $1 AND grade IS NOT NULL
	`, enrollmentID)
	if err != nil {
		return false, nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	var grade *float64
	if rows.Next() {
		if err := rows.Scan(&grade); err != nil {
			return false, nil, err
		}
	}
	return enrollment.Completed, grade, driver.WrapConnectionError(rows.Err())
}

func scanLessonProgress(rows driver.ISQLRows) (*LessonProgressModel, error) {
	item := new(LessonProgressModel)
	err := rows.Scan(&item.EnrollmentID, &item.LessonID, &item.ModuleID, &item.Completed, &item.LastPlayedSeconds,
		&item.VideoDurationSeconds, &item.Grade, &item.CompletedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}
