package certificate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/pot-code/course-progress/internal/domain"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var certificateColumns = []string{"id", "enrollment_id", "verification_code", "issued_at", "grade", "image_url"}

func newMockCertificateSQL(t *testing.T) (*CertificateSQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCertificateRepository(driver.NewSQLWrapper(db)), mock
}

func TestCertificateSQL_Create(t *testing.T) {
	repo, mock := newMockCertificateSQL(t)
	now := time.Now()
	grade := 91.0
	cert := &CertificateModel{ID: "cert-1", EnrollmentID: "e1", VerificationCode: "ABCDEFGHJKLMNPQRSTUV", IssuedAt: &now, Grade: &grade}

	insert := `INSERT INTO certificate \(id, enrollment_id, verification_code, issued_at, grade\)`
	mock.ExpectExec(insert).WithArgs("cert-1", "e1", "ABCDEFGHJKLMNPQRSTUV", sqlmock.AnyArg(), 91.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'e1'"})
	mock.ExpectExec(insert).WillReturnError(mysql.ErrInvalidConn)

	require.NoError(t, repo.Create(context.Background(), cert))

	err := repo.Create(context.Background(), cert)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	err = repo.Create(context.Background(), cert)
	assert.True(t, errors.Is(err, domain.ErrTransient))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateSQL_FindByEnrollment(t *testing.T) {
	repo, mock := newMockCertificateSQL(t)
	query := `FROM certificate WHERE enrollment_id = \?`
	mock.ExpectQuery(query).WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(certificateColumns).
			AddRow("cert-1", "e1", "ABCDEFGHJKLMNPQRSTUV", time.Now(), nil, "https://certs.example.com/a.png"))
	mock.ExpectQuery(query).WithArgs("e2").WillReturnRows(sqlmock.NewRows(certificateColumns))

	cert, err := repo.FindByEnrollment(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHJKLMNPQRSTUV", cert.VerificationCode)
	assert.Nil(t, cert.Grade)
	require.NotNil(t, cert.ImageURL)

	_, err = repo.FindByEnrollment(context.Background(), "e2")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateSQL_SweeperQueries(t *testing.T) {
	repo, mock := newMockCertificateSQL(t)
	mock.ExpectQuery(`FROM enrollment e LEFT JOIN certificate c .* WHERE e.completed = TRUE AND c.id IS NULL .* LIMIT \?`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1").AddRow("e2"))
	mock.ExpectQuery(`FROM certificate WHERE image_url IS NULL ORDER BY issued_at LIMIT \?`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(certificateColumns).AddRow("cert-1", "e1", "ABCDEFGHJKLMNPQRSTUV", time.Now(), 80.0, nil))
	mock.ExpectExec(`UPDATE certificate SET image_url = \? WHERE id = \?`).
		WithArgs("https://certs.example.com/a.png", "cert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ids, err := repo.ListUncertifiedEnrollments(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, ids)

	pending, err := repo.ListPendingArtifacts(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].ImageURL)

	require.NoError(t, repo.SetImageURL(context.Background(), "cert-1", "https://certs.example.com/a.png"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
