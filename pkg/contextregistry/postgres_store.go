package contextregistry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL, with the condition
// and override columns stored as their canonical JSON text form (TEXT,
// not JSONB), which the list filter and the dimension/default-config
// reference checks in pkg/dimension and pkg/defaultconfig match by
// substring.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS contexts (
	id             TEXT PRIMARY KEY,
	condition_text TEXT NOT NULL,
	priority       INT NOT NULL,
	override_id    TEXT NOT NULL,
	override_text  TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	created_by     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS contexts_created_at_idx ON contexts (created_at ASC);
`

func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgSchema)
	return err
}

// postgresTx wraps a *sql.Tx and translates pq unique-violation errors
// into the registry's driver-agnostic ErrUniqueViolation.
type postgresTx struct {
	tx *sql.Tx
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &postgresTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Row, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, condition_text, priority, override_id, override_text, created_at, created_by FROM contexts WHERE id = $1", id)
	return scanRow(row)
}

func (s *PostgresStore) List(ctx context.Context, filter string, page, size int) ([]Row, int, error) {
	offset := (page - 1) * size

	var total int
	countQuery := "SELECT COUNT(*) FROM contexts"
	countArgs := []any{}
	if filter != "" {
		countQuery += " WHERE condition_text LIKE '%' || $1 || '%'"
		countArgs = append(countArgs, filter)
	}
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contexts: %w", err)
	}

	query := "SELECT id, condition_text, priority, override_id, override_text, created_at, created_by FROM contexts"
	args := []any{}
	if filter != "" {
		query += " WHERE condition_text LIKE '%' || $1 || '%'"
		args = append(args, filter)
	}
	query += " ORDER BY created_at ASC LIMIT " + strconv.Itoa(size) + " OFFSET " + strconv.Itoa(offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contexts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]Row, 0)
	for rows.Next() {
		row, err := scanRows(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (t *postgresTx) Insert(ctx context.Context, row Row) error {
	query := `
		INSERT INTO contexts (id, condition_text, priority, override_id, override_text, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.ExecContext(ctx, query, row.ID, string(row.Condition), row.Priority, row.OverrideID, string(row.Override), row.CreatedAt, row.CreatedBy)
	if isUniqueViolation(err) {
		return ErrUniqueViolation
	}
	return err
}

func (t *postgresTx) Get(ctx context.Context, id string) (Row, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT id, condition_text, priority, override_id, override_text, created_at, created_by FROM contexts WHERE id = $1", id)
	return scanRow(row)
}

func (t *postgresTx) Update(ctx context.Context, row Row) error {
	query := `
		UPDATE contexts SET
			condition_text = $2, priority = $3, override_id = $4, override_text = $5, created_by = $6
		WHERE id = $1
	`
	_, err := t.tx.ExecContext(ctx, query, row.ID, string(row.Condition), row.Priority, row.OverrideID, string(row.Override), row.CreatedBy)
	return err
}

func (t *postgresTx) UpdateID(ctx context.Context, oldID string, row Row) (int64, error) {
	query := `
		UPDATE contexts SET
			id = $2, condition_text = $3, priority = $4, override_id = $5, override_text = $6, created_by = $7
		WHERE id = $1
	`
	res, err := t.tx.ExecContext(ctx, query, oldID, row.ID, string(row.Condition), row.Priority, row.OverrideID, string(row.Override), row.CreatedBy)
	if isUniqueViolation(err) {
		return 0, ErrUniqueViolation
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *postgresTx) Delete(ctx context.Context, id string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM contexts WHERE id = $1", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *postgresTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT "+pq.QuoteIdentifier(name))
	return err
}

func (t *postgresTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+pq.QuoteIdentifier(name))
	return err
}

func (t *postgresTx) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+pq.QuoteIdentifier(name))
	return err
}

// isUniqueViolation reports whether err is a PostgreSQL unique-violation
// (SQLSTATE 23505), the trigger for the insert-or-merge fallback.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(row *sql.Row) (Row, error) {
	return scanAny(row)
}

func scanRows(rows *sql.Rows) (Row, error) {
	return scanAny(rows)
}

func scanAny(s scanner) (Row, error) {
	var r Row
	var condition, override string
	var createdAt time.Time
	err := s.Scan(&r.ID, &condition, &r.Priority, &r.OverrideID, &override, &createdAt, &r.CreatedBy)
	if err != nil {
		return Row{}, err
	}
	r.Condition = []byte(condition)
	r.Override = []byte(override)
	r.CreatedAt = createdAt
	return r, nil
}
