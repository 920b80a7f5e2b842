package dimension

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dimensions")).
		WithArgs("country", 2, sqlmock.AnyArg(), "admin@example.com").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Create(ctx, Dimension{
		Name:      "country",
		Priority:  2,
		CreatedAt: time.Now(),
		CreatedBy: "admin@example.com",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, priority, created_at, created_by FROM dimensions WHERE name = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"name", "priority", "created_at", "created_by"}))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Get_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"name", "priority", "created_at", "created_by"}).
		AddRow("tier", 5, now, "admin@example.com")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, priority, created_at, created_by FROM dimensions WHERE name = $1")).
		WithArgs("tier").
		WillReturnRows(rows)

	d, err := store.Get(ctx, "tier")
	require.NoError(t, err)
	assert.Equal(t, "tier", d.Name)
	assert.Equal(t, 5, d.Priority)
}

func TestPostgresStore_Delete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM dimensions WHERE name = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Delete(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_ReferencedByAnyContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(`"var":"country"`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	referenced, err := store.ReferencedByAnyContext(ctx, "country")
	require.NoError(t, err)
	assert.True(t, referenced)
}
