package document

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, d *Document) error {
	query := `INSERT INTO documents (fund_id, file_name, file_path, content_hash, parsing_status) VALUES ($1, $2, $3, $4, $5) RETURNING id, upload_date`
	return r.db.QueryRowContext(ctx, query, d.FundID, d.FileName, d.FilePath, d.ContentHash, d.Status).Scan(&d.ID, &d.UploadDate)
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, fundID int64, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE fund_id = $1 AND content_hash = $2)`
	err := r.db.QueryRowContext(ctx, query, fundID, hash).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*Document, error) {
	d := &Document{}
	query := `SELECT id, fund_id, file_name, file_path, parsing_status, error_message, upload_date FROM documents WHERE id = $1`
	var msg sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.FundID, &d.FileName, &d.FilePath, &d.Status, &msg, &d.UploadDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if msg.Valid {
		d.ErrorMessage = &msg.String
	}
	return d, nil
}

func (r *PostgresRepo) List(ctx context.Context, fundID *int64) ([]Document, error) {
	query := `SELECT id, fund_id, file_name, file_path, parsing_status, error_message, upload_date FROM documents WHERE ($1::BIGINT IS NULL OR fund_id = $1) ORDER BY upload_date DESC`
	rows, err := r.db.QueryContext(ctx, query, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d   Document
			msg sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.FundID, &d.FileName, &d.FilePath, &d.Status, &msg, &d.UploadDate); err != nil {
			return nil, err
		}
		if msg.Valid {
			d.ErrorMessage = &msg.String
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateStatus stores the lifecycle status; an empty message clears the error.
func (r *PostgresRepo) UpdateStatus(ctx context.Context, id int64, status, errorMessage string) error {
	query := `UPDATE documents SET parsing_status = $1, error_message = $2, updated_at = NOW() WHERE id = $3`
	msg := sql.NullString{String: errorMessage, Valid: errorMessage != ""}
	res, err := r.db.ExecContext(ctx, query, status, msg, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DocumentNames returns the file name and fund name; unknown ids give empty strings.
func (r *PostgresRepo) DocumentNames(ctx context.Context, id int64) (title, fundName string, err error) {
	query := `SELECT d.file_name, COALESCE(f.name, '') FROM documents d LEFT JOIN funds f ON f.id = d.fund_id WHERE d.id = $1`
	err = r.db.QueryRowContext(ctx, query, id).Scan(&title, &fundName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	return title, fundName, err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}
