package certificate

import (
	"context"
	"fmt"

	"github.com/pot-code/course-progress/internal/domain"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
)

type CertificateSQL struct {
	Conn driver.ITransactionalDB `dep:""`
}

var _ CertificateRepository = &CertificateSQL{}

func NewCertificateRepository(Conn driver.ITransactionalDB) *CertificateSQL {
	return &CertificateSQL{
		Conn: Conn,
	}
}

func (repo *CertificateSQL) Create(ctx context.Context, cert *CertificateModel) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `
INSERT INTO certificate (id, enrollment_id, verification_code, issued_at, grade)
VALUES ($1, $2, $3, $4, $5)
	`, cert.ID, cert.EnrollmentID, cert.VerificationCode, cert.IssuedAt, cert.Grade)
	if driver.IsUniqueViolation(err) {
		return fmt.Errorf("%w: certificate for enrollment %s", domain.ErrConflict, cert.EnrollmentID)
	}
	return driver.WrapConnectionError(err)
}

func (repo *CertificateSQL) FindByEnrollment(ctx context.Context, enrollmentID string) (*CertificateModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    id, enrollment_id, verification_code, issued_at, grade, image_url
FROM
    certificate
WHERE
    enrollment_id = $1
	`, enrollmentID)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	if rows.Next() {
		return scanCertificate(rows)
	}
	if err := rows.Err(); err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	return nil, ErrCertificateNotFound
}

// GetByVerificationCode learner and course names come from the tables of the auth and catalog services
func (repo *CertificateSQL) GetByVerificationCode(ctx context.Context, code string) (*VerificationModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    c.verification_code, l.display_name, co.title, c.grade, c.image_url, c.issued_at
FROM
    certificate c
        INNER JOIN
    enrollment e ON (e.id = c.enrollment_id)
        INNER JOIN
    learner l ON (l.id = e.learner_id)
        INNER JOIN
    course co ON (co.id = e.course_id)
WHERE
    c.verification_code = $1
	`, code)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	if rows.Next() {
		item := new(VerificationModel)
		if err := rows.Scan(&item.VerificationCode, &item.LearnerName, &item.CourseTitle, &item.Grade, &item.ImageURL, &item.IssuedAt); err != nil {
			return nil, err
		}
		return item, nil
	}
	if err := rows.Err(); err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	return nil, ErrCertificateNotFound
}

func (repo *CertificateSQL) SetImageURL(ctx context.Context, certificateID, imageURL string) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `
UPDATE certificate
SET
    image_url = $1
WHERE
    id = $2
	`, imageURL, certificateID)
	return driver.WrapConnectionError(err)
}

func (repo *CertificateSQL) ListPendingArtifacts(ctx context.Context, limit int) ([]*CertificateModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    id, enrollment_id, verification_code, issued_at, grade, image_url
FROM
    certificate
WHERE
    image_url IS NULL
ORDER BY issued_at
LIMIT $1
	`, limit)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	var result []*CertificateModel
	for rows.Next() {
		item, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, driver.WrapConnectionError(rows.Err())
}

// ListUncertifiedEnrollments completed enrollments whose gate call never went through
func (repo *CertificateSQL) ListUncertifiedEnrollments(ctx context.Context, limit int) ([]string, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    e.id
FROM
    enrollment e
        LEFT JOIN
    certificate c ON (c.enrollment_id = e.id)
WHERE
    e.completed = TRUE AND c.id IS NULL
ORDER BY e.completed_at
LIMIT $1
	`, limit)
	if err != nil {
		return nil, driver.WrapConnectionError(err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, driver.WrapConnectionError(rows.Err())
}

func scanCertificate(rows driver.ISQLRows) (*CertificateModel, error) {
	item := new(CertificateModel)
	if err := rows.Scan(&item.ID, &item.EnrollmentID, &item.VerificationCode, &item.IssuedAt, &item.Grade, &item.ImageURL); err != nil {
		return nil, err
	}
	return item, nil
}
