package fund

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/akbarharyadi/coding-test-3rd/internal/extract"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, f *Fund) error {
	query := `INSERT INTO funds (name, gp_name, fund_type, vintage_year) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, f.Name, f.GPName, f.FundType, f.VintageYear).Scan(&f.ID, &f.CreatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*Fund, error) {
	query := `SELECT id, name, gp_name, fund_type, vintage_year, created_at FROM funds WHERE id = $1`
	f, err := scanFund(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Fund, error) {
	query := `SELECT id, name, gp_name, fund_type, vintage_year, created_at FROM funds ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funds []Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, err
		}
		funds = append(funds, *f)
	}
	return funds, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM funds`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFund(s scanner) (*Fund, error) {
	var (
		f       Fund
		gp, typ sql.NullString
		vintage sql.NullInt64
	)
	if err := s.Scan(&f.ID, &f.Name, &gp, &typ, &vintage, &f.CreatedAt); err != nil {
		return nil, err
	}
	if gp.Valid {
		f.GPName = &gp.String
	}
	if typ.Valid {
		f.FundType = &typ.String
	}
	if vintage.Valid {
		y := int(vintage.Int64)
		f.VintageYear = &y
	}
	return &f, nil
}

// FundNames returns empty names for an unknown fund.
func (r *PostgresRepo) FundNames(ctx context.Context, id int64) (name, gpName string, err error) {
	query := `SELECT name, COALESCE(gp_name, '') FROM funds WHERE id = $1`
	err = r.db.QueryRowContext(ctx, query, id).Scan(&name, &gpName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	return name, gpName, err
}

// FillHeader sets gp_name and vintage_year only where they are still empty.
func (r *PostgresRepo) FillHeader(ctx context.Context, fundID int64, info extract.FundInfo) error {
	gp := sql.NullString{String: info.GPName, Valid: info.GPName != ""}
	vintage := sql.NullInt64{Int64: int64(info.VintageYear), Valid: info.VintageYear > 0}
	if !gp.Valid && !vintage.Valid {
		return nil
	}
	query := `UPDATE funds SET gp_name = COALESCE(NULLIF(gp_name, ''), $2), vintage_year = COALESCE(vintage_year, $3) WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, fundID, gp, vintage)
	return err
}

const (
	insertCapitalCall  = `INSERT INTO capital_calls (fund_id, call_date, call_type, amount, description) VALUES ($1, $2, $3, $4, $5)`
	insertDistribution = `INSERT INTO distributions (fund_id, distribution_date, distribution_type, is_recallable, amount, description) VALUES ($1, $2, $3, $4, $5, $6)`
	insertAdjustment   = `INSERT INTO adjustments (fund_id, adjustment_date, adjustment_type, category, amount, is_contribution_adjustment, description) VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// ReplaceTransactions deletes every financial record of the fund and inserts
// records in one transaction.
func (r *PostgresRepo) ReplaceTransactions(ctx context.Context, fundID int64, records tables.Records) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"capital_calls", "distributions", "adjustments"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE fund_id = $1`, fundID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}

	if len(records.CapitalCalls) > 0 {
		err := insertAll(ctx, tx, insertCapitalCall, len(records.CapitalCalls), func(i int) []any {
			c := records.CapitalCalls[i]
			return []any{fundID, dateValue(c.CallDate), c.CallType, c.Amount, c.Description}
		})
		if err != nil {
			return fmt.Errorf("insert capital calls: %w", err)
		}
	}
	if len(records.Distributions) > 0 {
		err := insertAll(ctx, tx, insertDistribution, len(records.Distributions), func(i int) []any {
			d := records.Distributions[i]
			return []any{fundID, dateValue(d.DistributionDate), d.DistributionType, d.IsRecallable, d.Amount, d.Description}
		})
		if err != nil {
			return fmt.Errorf("insert distributions: %w", err)
		}
	}
	if len(records.Adjustments) > 0 {
		err := insertAll(ctx, tx, insertAdjustment, len(records.Adjustments), func(i int) []any {
			a := records.Adjustments[i]
			return []any{fundID, dateValue(a.AdjustmentDate), a.AdjustmentType, a.Category, a.Amount, a.IsContributionAdjustment, a.Description}
		})
		if err != nil {
			return fmt.Errorf("insert adjustments: %w", err)
		}
	}

	return tx.Commit()
}

func insertAll(ctx context.Context, tx *sql.Tx, query string, n int, args func(int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return nil
}

func dateValue(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// Transactions lists the fund's records ordered by date.
func (r *PostgresRepo) Transactions(ctx context.Context, fundID int64) (tables.Records, error) {
	var out tables.Records

	rows, err := r.db.QueryContext(ctx, `SELECT call_date, call_type, amount, description FROM capital_calls WHERE fund_id = $1 ORDER BY call_date, id`, fundID)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var (
			c         tables.CapitalCall
			d         time.Time
			typ, desc sql.NullString
		)
		if err := rows.Scan(&d, &typ, &c.Amount, &desc); err != nil {
			rows.Close()
			return out, err
		}
		c.CallDate, c.CallType, c.Description = civil.DateOf(d), nullable(typ), nullable(desc)
		out.CapitalCalls = append(out.CapitalCalls, c)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `SELECT distribution_date, distribution_type, is_recallable, amount, description FROM distributions WHERE fund_id = $1 ORDER BY distribution_date, id`, fundID)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var (
			dist      tables.Distribution
			d         time.Time
			typ, desc sql.NullString
		)
		if err := rows.Scan(&d, &typ, &dist.IsRecallable, &dist.Amount, &desc); err != nil {
			rows.Close()
			return out, err
		}
		dist.DistributionDate, dist.DistributionType, dist.Description = civil.DateOf(d), nullable(typ), nullable(desc)
		out.Distributions = append(out.Distributions, dist)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `SELECT adjustment_date, adjustment_type, category, amount, is_contribution_adjustment, description FROM adjustments WHERE fund_id = $1 ORDER BY adjustment_date, id`, fundID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a              tables.Adjustment
			d              time.Time
			typ, cat, desc sql.NullString
		)
		if err := rows.Scan(&d, &typ, &cat, &a.Amount, &a.IsContributionAdjustment, &desc); err != nil {
			return out, err
		}
		a.AdjustmentDate, a.AdjustmentType, a.Category, a.Description = civil.DateOf(d), nullable(typ), nullable(cat), nullable(desc)
		out.Adjustments = append(out.Adjustments, a)
	}
	return out, rows.Err()
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
