package course

import (
	"context"

	"github.com/pot-code/course-progress/internal/infrastructure/driver"
)

// CatalogSQL reads the catalog tables maintained by the course management service
type CatalogSQL struct {
	Conn driver.ITransactionalDB `dep:""`
}

var _ Catalog = &CatalogSQL{}

func NewCatalogRepository(Conn driver.ITransactionalDB) *CatalogSQL {
	return &CatalogSQL{
		Conn: Conn,
	}
}

func (repo *CatalogSQL) GetLessonsForCourse(ctx context.Context, courseID string) ([]*LessonModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    l.id, m.course_id, l.module_id, l.type, l."order", l.duration_seconds
FROM
    lesson l
        INNER JOIN
    module m ON (m.id = l.module_id)
WHERE
    m.course_id = $1
ORDER BY m."order", l."order"
	`, courseID)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	var result []*LessonModel
	for rows.Next() {
		item := new(LessonModel)
		if err := rows.Scan(&item.ID, &item.CourseID, &item.ModuleID, &item.Type, &item.Order, &item.DurationSeconds); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, driver.WrapConnectionError(rows.Err())
}

func (repo *CatalogSQL) GetLesson(ctx context.Context, lessonID string) (*LessonModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    l.id, m.course_id, l.module_id, l.type, l."order", l.duration_seconds
FROM
    lesson l
        INNER JOIN
    module m ON (m.id = l.module_id)
WHERE
    l.id = $1
	`, lessonID)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	if rows.Next() {
		item := new(LessonModel)
		if err := rows.Scan(&item.ID, &item.CourseID, &item.ModuleID, &item.Type, &item.Order, &item.DurationSeconds); err != nil {
			return nil, err
		}
		return item, nil
	}
	if err := rows.Err(); err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	return nil, ErrLessonNotFound
}
