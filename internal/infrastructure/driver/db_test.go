package driver

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/pot-code/course-progress/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestGetDSN(t *testing.T) {
	cfg := &DBConfig{User: "lms", Password: "pw", Host: "db", Port: 3306, Schema: "progress", Protocol: "tcp", Query: "parseTime=true"}
	assert.Equal(t, "lms:pw@tcp(db:3306)/progress?parseTime=true", getDSN(cfg))

	cfg.Protocol = ""
	cfg.Query = ""
	cfg.Port = 5432
	assert.Equal(t, "lms:pw@db:5432/progress", getDSN(cfg))
}

func TestMySQLAdapter(t *testing.T) {
	query := `SELECT "index"
	FROM lesson
	WHERE id = $1 AND course_id = $2`
	assert.Equal(t, "SELECT `index` FROM lesson WHERE id = ? AND course_id = ?", mysqlAdapter(query))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&mysql.MySQLError{Number: 1213}))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
}

func TestPgTxOptionAdapter(t *testing.T) {
	opts := pgTxOptionAdapter(&TxOptions{Isolation: sql.LevelReadCommitted})
	assert.Equal(t, pgx.ReadCommitted, opts.IsoLevel)
	assert.Equal(t, pgx.ReadWrite, opts.AccessMode)

	assert.Equal(t, pgx.TxOptions{}, pgTxOptionAdapter(nil))
}

func TestWrapConnectionError(t *testing.T) {
	assert.Nil(t, WrapConnectionError(nil))

	plain := errors.New("syntax error")
	assert.Same(t, plain, WrapConnectionError(plain))

	wrapped := WrapConnectionError(fmt.Errorf("query: %w", mysql.ErrInvalidConn))
	assert.True(t, errors.Is(wrapped, domain.ErrTransient))
}
