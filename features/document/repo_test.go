package document_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akbarharyadi/coding-test-3rd/features/document"
)

var docColumns = []string{"id", "fund_id", "file_name", "file_path", "parsing_status", "error_message", "upload_date"}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents (fund_id, file_name, file_path, content_hash, parsing_status)")).
		WithArgs(3, "q4.pdf", "/up/q4.pdf", "abc", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "upload_date"}).AddRow(7, now))

	d := &document.Document{FundID: 3, FileName: "q4.pdf", FilePath: "/up/q4.pdf", ContentHash: "abc", Status: document.StatusPending}
	require.NoError(t, document.NewPostgresRepo(db).Save(context.Background(), d))

	assert.Equal(t, int64(7), d.ID)
	assert.Equal(t, now, d.UploadDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	query := regexp.QuoteMeta("FROM documents WHERE id = $1")

	mock.ExpectQuery(query).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(docColumns).AddRow(7, 3, "q4.pdf", "/up/q4.pdf", "failed", "Document parsing failed: boom", time.Now()))
	d, err := repo.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "failed", d.Status)
	require.NotNil(t, d.ErrorMessage)
	assert.Equal(t, "Document parsing failed: boom", *d.ErrorMessage)

	mock.ExpectQuery(query).WithArgs(8).WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), 8)
	assert.ErrorIs(t, err, document.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fundID := int64(3)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE ($1::BIGINT IS NULL OR fund_id = $1)")).
		WithArgs(fundID).
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow(2, 3, "b.pdf", "/up/b.pdf", "completed", nil, time.Now()).
			AddRow(1, 3, "a.pdf", "/up/a.pdf", "pending", nil, time.Now()))

	docs, err := document.NewPostgresRepo(db).List(context.Background(), &fundID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Nil(t, docs[0].ErrorMessage)
	assert.Equal(t, "a.pdf", docs[1].FileName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	query := regexp.QuoteMeta("UPDATE documents SET parsing_status = $1, error_message = $2")

	mock.ExpectExec(query).WithArgs("completed", nil, 7).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), 7, "completed", ""))

	mock.ExpectExec(query).WithArgs("failed", "boom", 99).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), 99, "failed", "boom"), document.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_DocumentNames(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	query := regexp.QuoteMeta("FROM documents d LEFT JOIN funds f")

	mock.ExpectQuery(query).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"file_name", "name"}).AddRow("q4.pdf", "Alpha Fund"))
	title, fundName, err := repo.DocumentNames(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "q4.pdf", title)
	assert.Equal(t, "Alpha Fund", fundName)

	mock.ExpectQuery(query).WithArgs(8).WillReturnError(sql.ErrNoRows)
	title, fundName, err = repo.DocumentNames(context.Background(), 8)
	require.NoError(t, err)
	assert.Empty(t, title)
	assert.Empty(t, fundName)

	assert.NoError(t, mock.ExpectationsWereMet())
}
