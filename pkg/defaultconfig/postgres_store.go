package defaultconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/cacsvc/core/pkg/errs"
)

// PostgresStore implements Store using PostgreSQL, storing value/schema
// as JSONB columns.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS default_config (
	key         TEXT PRIMARY KEY,
	value_json  JSONB NOT NULL,
	schema_json JSONB NOT NULL
);
`

func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgSchema)
	return err
}

func (s *PostgresStore) Upsert(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO default_config (key, value_json, schema_json)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value_json = EXCLUDED.value_json,
			schema_json = EXCLUDED.schema_json
	`
	_, err := s.db.ExecContext(ctx, query, e.Key, []byte(e.Value), []byte(e.Schema))
	if err != nil {
		return fmt.Errorf("failed to persist default-config entry %q: %w", e.Key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT key, value_json, schema_json FROM default_config WHERE key = $1", key)

	var e Entry
	var value, schema []byte
	err := row.Scan(&e.Key, &value, &schema)
	if err == sql.ErrNoRows {
		return Entry{}, errs.NotFound("default-config entry", key)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get default-config entry %q: %w", key, err)
	}
	e.Value = json.RawMessage(value)
	e.Schema = json.RawMessage(schema)
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value_json, schema_json FROM default_config ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list default-config entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var value, schema []byte
		if err := rows.Scan(&e.Key, &value, &schema); err != nil {
			return nil, err
		}
		e.Value = json.RawMessage(value)
		e.Schema = json.RawMessage(schema)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM default_config WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("failed to delete default-config entry %q: %w", key, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errs.NotFound("default-config entry", key)
	}
	return nil
}

// ReferencedByAnyOverride checks the contexts table's canonicalized
// override text column for a mention of key as an override object key.
func (s *PostgresStore) ReferencedByAnyOverride(ctx context.Context, key string) (bool, error) {
	var exists bool
	needle := fmt.Sprintf(`"%s":`, key)
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM contexts WHERE override_text LIKE '%' || $1 || '%')",
		needle,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check default-config references for %q: %w", key, err)
	}
	return exists, nil
}
