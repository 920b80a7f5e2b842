package contextregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cacsvc/core/pkg/defaultconfig"
	"github.com/cacsvc/core/pkg/errs"
)

// errTxAborted emulates Postgres's abort-until-rollback behavior
// (SQLSTATE 25P02): once a statement in memTx's transaction hits a
// unique-violation, every later statement fails with this error until
// RollbackTo clears it, the same as a real Postgres connection would
// reject commands against an aborted transaction.
var errTxAborted = errors.New("contextregistry: transaction is aborted, commands ignored until rollback")

// memStore is an in-memory Store+Tx used to exercise the registry's
// insert-or-merge, move, and bulk logic without a live Postgres.
type memStore struct {
	rows map[string]Row
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]Row{}}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	snapshot := map[string]Row{}
	for k, v := range m.rows {
		snapshot[k] = v
	}
	tx := &memTx{store: m}
	if err := fn(ctx, tx); err != nil {
		m.rows = snapshot
		return err
	}
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (Row, error) {
	r, ok := m.rows[id]
	if !ok {
		return Row{}, errs.NotFound("context", id)
	}
	return r, nil
}

func (m *memStore) List(ctx context.Context, filter string, page, size int) ([]Row, int, error) {
	all := make([]Row, 0, len(m.rows))
	for _, r := range m.rows {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	offset := (page - 1) * size
	if offset >= len(all) {
		return []Row{}, total, nil
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

type memTx struct {
	store      *memStore
	aborted    bool
	savepoints map[string]map[string]Row
}

func (t *memTx) checkAborted() error {
	if t.aborted {
		return errTxAborted
	}
	return nil
}

func (t *memTx) Insert(ctx context.Context, row Row) error {
	if err := t.checkAborted(); err != nil {
		return err
	}
	if _, exists := t.store.rows[row.ID]; exists {
		t.aborted = true
		return ErrUniqueViolation
	}
	t.store.rows[row.ID] = row
	return nil
}

func (t *memTx) Get(ctx context.Context, id string) (Row, error) {
	if err := t.checkAborted(); err != nil {
		return Row{}, err
	}
	r, ok := t.store.rows[id]
	if !ok {
		return Row{}, errors.New("not found")
	}
	return r, nil
}

func (t *memTx) UpdateID(ctx context.Context, oldID string, row Row) (int64, error) {
	if err := t.checkAborted(); err != nil {
		return 0, err
	}
	existing, ok := t.store.rows[oldID]
	if !ok {
		return 0, nil
	}
	if row.ID != oldID {
		if _, occupied := t.store.rows[row.ID]; occupied {
			t.aborted = true
			return 0, ErrUniqueViolation
		}
	}
	delete(t.store.rows, oldID)
	_ = existing
	t.store.rows[row.ID] = row
	return 1, nil
}

func (t *memTx) Update(ctx context.Context, row Row) error {
	if err := t.checkAborted(); err != nil {
		return err
	}
	if _, ok := t.store.rows[row.ID]; !ok {
		return errors.New("not found")
	}
	t.store.rows[row.ID] = row
	return nil
}

func (t *memTx) Delete(ctx context.Context, id string) (int64, error) {
	if err := t.checkAborted(); err != nil {
		return 0, err
	}
	if _, ok := t.store.rows[id]; !ok {
		return 0, nil
	}
	delete(t.store.rows, id)
	return 1, nil
}

// Savepoint, RollbackTo, and ReleaseSavepoint emulate enough of
// Postgres's nested-transaction semantics (not just no-ops) to catch
// savepoint-ordering bugs in the registry: SAVEPOINT and RELEASE
// SAVEPOINT both fail once the transaction is aborted, and only
// RollbackTo clears the abort.
func (t *memTx) Savepoint(ctx context.Context, name string) error {
	if err := t.checkAborted(); err != nil {
		return err
	}
	if t.savepoints == nil {
		t.savepoints = map[string]map[string]Row{}
	}
	snapshot := make(map[string]Row, len(t.store.rows))
	for k, v := range t.store.rows {
		snapshot[k] = v
	}
	t.savepoints[name] = snapshot
	return nil
}

func (t *memTx) RollbackTo(ctx context.Context, name string) error {
	snapshot, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("contextregistry: no such savepoint %q", name)
	}
	restored := make(map[string]Row, len(snapshot))
	for k, v := range snapshot {
		restored[k] = v
	}
	t.store.rows = restored
	t.aborted = false
	return nil
}

func (t *memTx) ReleaseSavepoint(ctx context.Context, name string) error {
	if err := t.checkAborted(); err != nil {
		return err
	}
	if _, ok := t.savepoints[name]; !ok {
		return fmt.Errorf("contextregistry: no such savepoint %q", name)
	}
	delete(t.savepoints, name)
	return nil
}

type fakeDimensions struct {
	priorities map[string]int
}

func (f fakeDimensions) Priority(_ context.Context, name string) (int, error) {
	p, ok := f.priorities[name]
	if !ok {
		return 0, errors.New("unknown dimension")
	}
	return p, nil
}

type fakeSchemas struct {
	schemas map[string]json.RawMessage
}

func (f fakeSchemas) Get(_ context.Context, key string) (defaultconfig.Entry, error) {
	s, ok := f.schemas[key]
	if !ok {
		return defaultconfig.Entry{}, errors.New("unknown key")
	}
	return defaultconfig.Entry{Key: key, Schema: s}, nil
}
