package dimension

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS dimensions (
	name       TEXT PRIMARY KEY,
	priority   INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	created_by TEXT NOT NULL
);
`

func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgSchema)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, d Dimension) error {
	query := `
		INSERT INTO dimensions (name, priority, created_at, created_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			priority = EXCLUDED.priority
	`
	_, err := s.db.ExecContext(ctx, query, d.Name, d.Priority, d.CreatedAt, d.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to persist dimension %q: %w", d.Name, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, name string) (Dimension, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT name, priority, created_at, created_by FROM dimensions WHERE name = $1", name)

	var d Dimension
	err := row.Scan(&d.Name, &d.Priority, &d.CreatedAt, &d.CreatedBy)
	if err == sql.ErrNoRows {
		return Dimension{}, ErrNotFound
	}
	if err != nil {
		return Dimension{}, fmt.Errorf("failed to get dimension %q: %w", name, err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Dimension, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, priority, created_at, created_by FROM dimensions ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list dimensions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]Dimension, 0)
	for rows.Next() {
		var d Dimension
		if err := rows.Scan(&d.Name, &d.Priority, &d.CreatedAt, &d.CreatedBy); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM dimensions WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("failed to delete dimension %q: %w", name, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ReferencedByAnyContext checks the contexts table's canonicalized
// condition text column for a mention of the dimension's name as a
// "var" value. A JSONB containment query would be more precise, but the
// condition column is stored as canonical JSON text (see
// pkg/contextregistry), so a substring match on the quoted var-form
// mirrors the original's FK-less, JSON-column check.
func (s *PostgresStore) ReferencedByAnyContext(ctx context.Context, name string) (bool, error) {
	var exists bool
	needle := fmt.Sprintf(`"var":"%s"`, name)
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM contexts WHERE condition_text LIKE '%' || $1 || '%')",
		needle,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dimension references for %q: %w", name, err)
	}
	return exists, nil
}
