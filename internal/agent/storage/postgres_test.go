package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columnNames = []string{
	"job_id", "identifier_from_purchaser", "input_data", "input_hash", "blockchain_identifier",
	"seller_vkey", "unlock_time", "external_dispute_unlock_time", "submit_result_time", "pay_by_time",
	"amounts", "status", "payment_status", "result", "error_message", "worker_id", "retry_count", "max_retries",
	"created_at", "updated_at", "started_at", "completed_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresStore(sqlx.NewDb(db, "postgres"), logger), mock
}

func jobRow(id, status, paymentStatus string) *sqlmock.Rows {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(columnNames).AddRow(
		id, "buyer", `{"recipient_email":"a@b.c"}`, "hash", "block_1",
		"vkey", "1760000000000", "1760003600000", "1759996400000", "1759992800000",
		`[{"amount":"5000000","unit":""}]`, status, paymentStatus, "", "", "", 0, 3,
		now, now, nil, nil,
	)
}

func TestPostgresStore_CreateJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreateJob(context.Background(), &domain.Job{
		JobID:         "job-1",
		Status:        domain.JobStatusAwaitingPayment,
		PaymentStatus: domain.PaymentStatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateJob_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO jobs").WillReturnError(errors.New("duplicate key"))

	err := store.CreateJob(context.Background(), &domain.Job{JobID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create job")
}

func TestPostgresStore_GetJob(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM jobs WHERE job_id = \\$1").
					WithArgs("job-1").
					WillReturnRows(jobRow("job-1", domain.JobStatusAwaitingPayment, domain.PaymentStatusPending))
			},
		},
		{
			name: "not found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM jobs").
					WithArgs("job-1").
					WillReturnRows(sqlmock.NewRows(columnNames))
			},
			wantErr: domain.ErrJobNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setup(mock)

			job, err := store.GetJob(context.Background(), "job-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "job-1", job.JobID)
			assert.Equal(t, "block_1", job.BlockchainIdentifier)
			assert.Nil(t, job.StartedAt)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_ListAwaitingPayment(t *testing.T) {
	store, mock := newMockStore(t)

	rows := jobRow("job-1", domain.JobStatusAwaitingPayment, domain.PaymentStatusPending)
	mock.ExpectQuery("SELECT (.+) FROM jobs\\s+WHERE status = \\$1 ORDER BY created_at ASC, job_id ASC LIMIT \\$2").
		WithArgs(domain.JobStatusAwaitingPayment, 50).
		WillReturnRows(rows)

	jobs, err := store.ListAwaitingPayment(context.Background(), nil, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].JobID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAwaitingPayment_Cursor(t *testing.T) {
	store, mock := newMockStore(t)
	after := &JobCursor{CreatedAt: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC), JobID: "job-1"}

	rows := jobRow("job-2", domain.JobStatusAwaitingPayment, domain.PaymentStatusPending)
	mock.ExpectQuery("WHERE status = \\$1 AND \\(created_at, job_id\\) > \\(\\$2, \\$3\\) ORDER BY created_at ASC, job_id ASC LIMIT \\$4").
		WithArgs(domain.JobStatusAwaitingPayment, after.CreatedAt, after.JobID, 50).
		WillReturnRows(rows)

	jobs, err := store.ListAwaitingPayment(context.Background(), after, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-2", jobs[0].JobID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkPaymentLocked(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "first lock", affected: 1, want: true},
		{name: "already locked", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectExec("UPDATE jobs\\s+SET payment_status = \\$1").
				WithArgs(domain.PaymentStatusLocked, "job-1", domain.PaymentStatusPending).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := store.MarkPaymentLocked(context.Background(), "job-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_ClaimJob(t *testing.T) {
	t.Run("claimed", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("UPDATE jobs\\s+SET status = \\$1(.+)RETURNING").
			WithArgs(domain.JobStatusRunning, "worker-1", "job-1", domain.JobStatusAwaitingPayment, domain.PaymentStatusLocked).
			WillReturnRows(jobRow("job-1", domain.JobStatusRunning, domain.PaymentStatusLocked))

		job, err := store.ClaimJob(context.Background(), "job-1", "worker-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRunning, job.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already claimed", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("UPDATE jobs").WillReturnRows(sqlmock.NewRows(columnNames))

		_, err := store.ClaimJob(context.Background(), "job-1", "worker-1")
		assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	})

	t.Run("database error", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("UPDATE jobs").WillReturnError(errors.New("connection reset"))

		_, err := store.ClaimJob(context.Background(), "job-1", "worker-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrJobAlreadyClaimed)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestPostgresStore_Finish(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE jobs\\s+SET status = \\$1,\\s+result = \\$2").
		WithArgs(domain.JobStatusCompleted, "Email sent", "", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE jobs\\s+SET status = \\$1,\\s+result = \\$2").
		WithArgs(domain.JobStatusFailed, "", "brevo down", "job-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE jobs").
		WithArgs(domain.JobStatusFailed, "", "x", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.CompleteJob(context.Background(), "job-1", "Email sent"))
	require.NoError(t, store.FailJob(context.Background(), "job-2", "brevo down"))
	assert.ErrorIs(t, store.FailJob(context.Background(), "missing", "x"), domain.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReleaseAndSubmit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("retry_count = retry_count \\+ 1").
		WithArgs(domain.JobStatusAwaitingPayment, "timeout", "job-1", domain.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET payment_status = \\$1").
		WithArgs(domain.PaymentStatusResultSubmitted, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET last_heartbeat_at = NOW\\(\\)").
		WithArgs("job-1", domain.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.ReleaseJob(context.Background(), "job-1", "timeout"))
	require.NoError(t, store.MarkResultSubmitted(context.Background(), "job-1"))
	require.NoError(t, store.UpdateHeartbeat(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
