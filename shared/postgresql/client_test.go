package postgresql

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFromDB(sqlx.NewDb(db, "postgres"), logger), mock
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     string
	}{
		{name: "plain", password: "secret", want: "host=db port=5432 user=agent password=secret dbname=agent_db sslmode=disable"},
		{name: "empty", password: "", want: "host=db port=5432 user=agent password='' dbname=agent_db sslmode=disable"},
		{name: "spaces and quotes", password: `a b'c`, want: `host=db port=5432 user=agent password='a b\'c' dbname=agent_db sslmode=disable`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Host: "db", Port: 5432, User: "agent", Password: tt.password, Database: "agent_db", SSLMode: "disable"}
			assert.Equal(t, tt.want, cfg.DSN())
		})
	}
}

func TestClient_Migrate(t *testing.T) {
	c, mock := newMockClient(t)

	fsys := fstest.MapFS{
		"002_index.sql": {Data: []byte("CREATE INDEX IF NOT EXISTS idx ON jobs (status)")},
		"001_jobs.sql":  {Data: []byte("CREATE TABLE IF NOT EXISTS jobs (job_id UUID)")},
		"README.md":     {Data: []byte("ignored")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, c.Migrate(context.Background(), fsys))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_Migrate_Failure(t *testing.T) {
	c, mock := newMockClient(t)

	fsys := fstest.MapFS{"001_jobs.sql": {Data: []byte("CREATE TABLE jobs ()")}}
	mock.ExpectExec("CREATE TABLE jobs").WillReturnError(errors.New("permission denied"))

	err := c.Migrate(context.Background(), fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_jobs.sql")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestClient_HealthCheck(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	require.NoError(t, c.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
