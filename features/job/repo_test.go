package job_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akbarharyadi/coding-test-3rd/features/job"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	j := &job.Job{DocumentID: 3, Handler: "document-worker", Payload: []byte(`{"document_id":3}`), Error: "boom"}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO failed_jobs (document_id, handler, payload, error)")).
		WithArgs(3, "document-worker", []byte(`{"document_id":3}`), "boom").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "retries"}).AddRow("job-1", now, 1))

	require.NoError(t, job.NewPostgresRepo(db).Save(context.Background(), j))

	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, 1, j.Retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)
	query := regexp.QuoteMeta("FROM failed_jobs WHERE id = $1")
	cols := []string{"id", "document_id", "handler", "payload", "error", "retries", "created_at"}

	mock.ExpectQuery(query).WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("job-1", 3, "document-worker", []byte(`{}`), "boom", 0, time.Now()))
	j, err := repo.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), j.DocumentID)
	assert.JSONEq(t, `{}`, string(j.Payload))

	mock.ExpectQuery(query).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, job.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)
	cols := []string{"id", "document_id", "handler", "payload", "error", "retries", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM failed_jobs ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("b", 4, "document-worker", []byte(`{}`), "x", 2, time.Now()).
			AddRow("a", 3, "document-worker", []byte(`{}`), "y", 0, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM failed_jobs WHERE id = $1")).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM failed_jobs WHERE document_id = $1")).WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM failed_jobs")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	jobs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 2, jobs[0].Retries)

	require.NoError(t, repo.Delete(context.Background(), "a"))
	require.NoError(t, repo.DeleteByDocument(context.Background(), 4))
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
