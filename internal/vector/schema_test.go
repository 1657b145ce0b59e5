package vector_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akbarharyadi/coding-test-3rd/internal/vector"
)

func expectCreate(mock sqlmock.Sqlmock, dim string) {
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS document_embeddings") + ".*" + regexp.QuoteMeta("vector("+dim+")")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("USING ivfflat (embedding vector_cosine_ops)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("document_embeddings_fund_idx")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("document_embeddings_document_idx")).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestEnsureSchema(t *testing.T) {
	typmod := regexp.QuoteMeta("SELECT a.atttypmod FROM pg_attribute a")

	t.Run("Creates missing table", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(typmod).WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}))
		expectCreate(mock, "384")

		recreated, err := vector.EnsureSchema(context.Background(), db, 384)
		assert.NoError(t, err)
		assert.False(t, recreated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Keeps matching table", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(typmod).WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(768))

		recreated, err := vector.EnsureSchema(context.Background(), db, 768)
		assert.NoError(t, err)
		assert.False(t, recreated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Recreates on dimension change", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(typmod).WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(1536))
		mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS document_embeddings")).WillReturnResult(sqlmock.NewResult(0, 0))
		expectCreate(mock, "768")

		recreated, err := vector.EnsureSchema(context.Background(), db, 768)
		assert.NoError(t, err)
		assert.True(t, recreated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rejects invalid dimension", func(t *testing.T) {
		_, err := vector.EnsureSchema(context.Background(), nil, 0)
		assert.Error(t, err)
	})
}
