// Package contextregistry implements the context registry (spec §4.G):
// content-addressed storage of (condition, override) pairs with
// idempotent upsert, move, and bulk-transactional mutation. Rows are
// unique by condition hash (the row id); the override hash identifies
// override content and may be shared by several rows.
package contextregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cacsvc/core/pkg/canonicalize"
	"github.com/cacsvc/core/pkg/errs"
	"github.com/cacsvc/core/pkg/merge"
	"github.com/cacsvc/core/pkg/overridevalidator"
	"github.com/cacsvc/core/pkg/predicate"
	"github.com/cacsvc/core/pkg/priority"
)

// Row is one stored context: a condition, its derived priority, and the
// override applied when the condition matches a runtime context.
type Row struct {
	ID         string          `json:"id"`
	Condition  json.RawMessage `json:"condition"`
	Priority   int             `json:"priority"`
	OverrideID string          `json:"override_id"`
	Override   json.RawMessage `json:"override"`
	CreatedAt  time.Time       `json:"created_at"`
	CreatedBy  string          `json:"created_by"`
}

// PutResult is the response to PutContext and MoveContext.
type PutResult struct {
	ContextID  string `json:"context_id"`
	OverrideID string `json:"override_id"`
	Priority   int    `json:"priority"`
}

// ErrUniqueViolation is returned by Tx.Insert/Tx.UpdateID when the
// target id already exists. Store implementations translate their
// driver-specific conflict error into this sentinel so the registry's
// insert-or-merge logic stays driver-agnostic.
var ErrUniqueViolation = errors.New("unique violation")

// DimensionLookup and SchemaLookup are the collaborators the registry
// needs to compute priority (4.E) and validate overrides (4.F) before
// persisting. *dimension.Registry and *defaultconfig.Registry satisfy
// these in production wiring.
type DimensionLookup = priority.DimensionLookup
type SchemaLookup = overridevalidator.SchemaLookup

// Tx is one transactional unit of work against the context table,
// satisfied by a *sql.Tx-backed implementation. Savepoint/RollbackTo
// let the registry isolate the "insert, on conflict update-merge" idiom
// inside an outer BULK transaction without poisoning it (spec §4.G,
// §9 "Upsert-merge with savepoints").
type Tx interface {
	Insert(ctx context.Context, row Row) error
	Get(ctx context.Context, id string) (Row, error)
	// UpdateID rewrites the row currently at oldID to the fields and
	// primary key carried by row. Returns ErrUniqueViolation if row.ID
	// already names a different existing row; returns
	// sql.ErrNoRows-equivalent (translated to 0 rows) if oldID misses.
	UpdateID(ctx context.Context, oldID string, row Row) (rowsAffected int64, err error)
	Update(ctx context.Context, row Row) error
	Delete(ctx context.Context, id string) (rowsAffected int64, err error)
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
}

// Store opens transactions and serves read paths that don't need one.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id string) (Row, error)
	List(ctx context.Context, filter string, page, size int) ([]Row, int, error)
}

// Registry is the context registry's operation surface.
type Registry struct {
	store      Store
	dimensions DimensionLookup
	schemas    SchemaLookup
	now        func() time.Time
}

func New(store Store, dimensions DimensionLookup, schemas SchemaLookup) *Registry {
	return &Registry{store: store, dimensions: dimensions, schemas: schemas, now: time.Now}
}

// WithClock overrides the registry's clock, for deterministic tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// buildRow validates condition/override and computes the row's derived
// fields, but does not persist it. Shared by PUT and MOVE (spec §4.G
// MOVE step 1: "build the prospective new row").
func (r *Registry) buildRow(ctx context.Context, conditionRaw json.RawMessage, override map[string]json.RawMessage, createdBy string) (Row, error) {
	var conditionVal any
	if err := json.Unmarshal(conditionRaw, &conditionVal); err != nil {
		return Row{}, errs.MalformedPredicate(err)
	}
	node, err := predicate.Parse(conditionVal)
	if err != nil {
		return Row{}, err
	}

	prio, err := priority.Of(ctx, node, r.dimensions)
	if err != nil {
		return Row{}, err
	}

	if err := overridevalidator.Validate(ctx, override, r.schemas); err != nil {
		return Row{}, err
	}

	canonicalCondition, err := canonicalize.JCS(conditionVal)
	if err != nil {
		return Row{}, fmt.Errorf("failed to canonicalize condition: %w", err)
	}
	id := canonicalize.HashBytes(canonicalCondition)

	overrideVal := map[string]any{}
	for k, raw := range override {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return Row{}, errs.SchemaValidation(k, []string{err.Error()})
		}
		overrideVal[k] = v
	}
	canonicalOverride, err := canonicalize.JCS(overrideVal)
	if err != nil {
		return Row{}, fmt.Errorf("failed to canonicalize override: %w", err)
	}
	overrideID := canonicalize.HashBytes(canonicalOverride)

	return Row{
		ID:         id,
		Condition:  canonicalCondition,
		Priority:   prio,
		OverrideID: overrideID,
		Override:   canonicalOverride,
		CreatedAt:  r.now(),
		CreatedBy:  createdBy,
	}, nil
}

// PutContext implements spec §4.G PUT: insert, and on unique-violation
// of the condition hash, merge the new override atop the existing one
// (RFC 7396) and update.
func (r *Registry) PutContext(ctx context.Context, condition json.RawMessage, override map[string]json.RawMessage, createdBy string) (PutResult, error) {
	row, err := r.buildRow(ctx, condition, override, createdBy)
	if err != nil {
		return PutResult{}, err
	}

	var result PutResult
	err = r.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		merged, err := r.putInTx(ctx, tx, row, "put")
		if err != nil {
			return err
		}
		result = merged
		return nil
	})
	if err != nil {
		return PutResult{}, err
	}
	return result, nil
}

// putInTx performs the insert-or-merge for row inside tx. The insert
// attempt is always wrapped in savepointName: against a real Postgres
// backend, an uncaught unique-violation aborts the rest of the
// transaction (SQLSTATE 25P02), so the savepoint must be established
// before the risky Insert even for a standalone PUT, not only when
// called from Bulk (spec §4.G PUT step 3 and BULK).
func (r *Registry) putInTx(ctx context.Context, tx Tx, row Row, savepointName string) (PutResult, error) {
	if err := tx.Savepoint(ctx, savepointName); err != nil {
		return PutResult{}, errs.Store("savepoint", err)
	}

	err := tx.Insert(ctx, row)
	if err == nil {
		if err := tx.ReleaseSavepoint(ctx, savepointName); err != nil {
			return PutResult{}, errs.Store("release savepoint", err)
		}
		return PutResult{ContextID: row.ID, OverrideID: row.OverrideID, Priority: row.Priority}, nil
	}

	if !errors.Is(err, ErrUniqueViolation) {
		return PutResult{}, errs.Store("insert context", err)
	}

	if err := tx.RollbackTo(ctx, savepointName); err != nil {
		return PutResult{}, errs.Store("rollback to savepoint", err)
	}

	existing, err := tx.Get(ctx, row.ID)
	if err != nil {
		return PutResult{}, errs.Store("fetch existing context", err)
	}

	mergedOverride, err := merge.Patch(existing.Override, row.Override)
	if err != nil {
		return PutResult{}, errs.Store("merge override", err)
	}
	var mergedVal any
	if err := json.Unmarshal(mergedOverride, &mergedVal); err != nil {
		return PutResult{}, errs.Store("decode merged override", err)
	}
	canonicalMerged, err := canonicalize.JCS(mergedVal)
	if err != nil {
		return PutResult{}, errs.Store("canonicalize merged override", err)
	}
	existing.Override = canonicalMerged
	existing.OverrideID = canonicalize.HashBytes(canonicalMerged)

	if err := tx.Update(ctx, existing); err != nil {
		return PutResult{}, errs.Store("update merged context", err)
	}
	return PutResult{ContextID: existing.ID, OverrideID: existing.OverrideID, Priority: existing.Priority}, nil
}

// MoveContext implements spec §4.G MOVE: re-key oldID to a new
// condition/override. If the new id is already occupied, the old row
// is deleted and its override merged into the occupied row.
func (r *Registry) MoveContext(ctx context.Context, oldID string, condition json.RawMessage, override map[string]json.RawMessage, createdBy string) (PutResult, error) {
	row, err := r.buildRow(ctx, condition, override, createdBy)
	if err != nil {
		return PutResult{}, err
	}

	var result PutResult
	err = r.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		// UpdateID is the risky statement here, so the savepoint must
		// precede it: against real Postgres, a unique-violation aborts
		// the transaction, and a SAVEPOINT issued after the fact would
		// itself be rejected (mirrors Bulk's ActionMove below).
		if err := tx.Savepoint(ctx, "move_update"); err != nil {
			return errs.Store("savepoint", err)
		}
		rowsAffected, err := tx.UpdateID(ctx, oldID, row)
		if err == nil {
			if err := tx.ReleaseSavepoint(ctx, "move_update"); err != nil {
				return errs.Store("release savepoint", err)
			}
			if rowsAffected == 0 {
				return errs.NotFound("context", oldID)
			}
			result = PutResult{ContextID: row.ID, OverrideID: row.OverrideID, Priority: row.Priority}
			return nil
		}
		if !errors.Is(err, ErrUniqueViolation) {
			return errs.Store("move context", err)
		}

		// New id already occupied: roll back the failed UpdateID, delete
		// the old row, then merge the moved override into the occupied
		// row (spec §4.G MOVE step 3).
		if err := tx.RollbackTo(ctx, "move_update"); err != nil {
			return errs.Store("rollback to savepoint", err)
		}
		if _, err := tx.Delete(ctx, oldID); err != nil {
			return errs.Store("delete old context", err)
		}
		merged, err := r.putInTx(ctx, tx, row, "move_merge")
		if err != nil {
			return err
		}
		result = merged
		return nil
	})
	if err != nil {
		return PutResult{}, err
	}
	return result, nil
}

// DeleteContext implements spec §4.G DELETE.
func (r *Registry) DeleteContext(ctx context.Context, id string) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		rowsAffected, err := tx.Delete(ctx, id)
		if err != nil {
			return errs.Store("delete context", err)
		}
		if rowsAffected == 0 {
			return errs.NotFound("context", id)
		}
		return nil
	})
}

// GetContext implements spec §6.2 GetContext.
func (r *Registry) GetContext(ctx context.Context, id string) (Row, error) {
	row, err := r.store.Get(ctx, id)
	if err != nil {
		return Row{}, errs.NotFound("context", id)
	}
	return row, nil
}

// ListContexts implements spec §4.G LIST: ordered by created_at
// ascending, page >= 1, size >= 1, defaults (1, 20).
func (r *Registry) ListContexts(ctx context.Context, filter string, page, size int) ([]Row, int, error) {
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = 20
	}
	if page < 1 {
		return nil, 0, errs.BadPagination("page")
	}
	if size < 1 {
		return nil, 0, errs.BadPagination("size")
	}
	return r.store.List(ctx, filter, page, size)
}

// Action is one tagged BULK operation (spec §4.G BULK).
type Action struct {
	Kind      ActionKind
	Condition json.RawMessage
	Override  map[string]json.RawMessage
	CreatedBy string
	ID        string // DELETE target, or MOVE's old_id
}

type ActionKind string

const (
	ActionPut    ActionKind = "PUT"
	ActionDelete ActionKind = "DELETE"
	ActionMove   ActionKind = "MOVE"
)

// Bulk implements spec §4.G BULK: all actions execute inside one outer
// transaction, each PUT/MOVE additionally wrapped in its own savepoint.
// Any action error aborts the whole batch with no partial writes.
func (r *Registry) Bulk(ctx context.Context, actions []Action) ([]PutResult, error) {
	results := make([]PutResult, len(actions))

	err := r.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		for i, action := range actions {
			switch action.Kind {
			case ActionPut:
				row, err := r.buildRow(ctx, action.Condition, action.Override, action.CreatedBy)
				if err != nil {
					return err
				}
				res, err := r.putInTx(ctx, tx, row, fmt.Sprintf("bulk_%d", i))
				if err != nil {
					return err
				}
				results[i] = res

			case ActionDelete:
				rowsAffected, err := tx.Delete(ctx, action.ID)
				if err != nil {
					return errs.Store("bulk delete", err)
				}
				if rowsAffected == 0 {
					return errs.NotFound("context", action.ID)
				}
				results[i] = PutResult{ContextID: action.ID}

			case ActionMove:
				row, err := r.buildRow(ctx, action.Condition, action.Override, action.CreatedBy)
				if err != nil {
					return err
				}
				spName := fmt.Sprintf("bulk_%d", i)
				if err := tx.Savepoint(ctx, spName); err != nil {
					return errs.Store("savepoint", err)
				}
				rowsAffected, err := tx.UpdateID(ctx, action.ID, row)
				if err == nil {
					if err := tx.ReleaseSavepoint(ctx, spName); err != nil {
						return errs.Store("release savepoint", err)
					}
					if rowsAffected == 0 {
						return errs.NotFound("context", action.ID)
					}
					results[i] = PutResult{ContextID: row.ID, OverrideID: row.OverrideID, Priority: row.Priority}
					continue
				}
				if !errors.Is(err, ErrUniqueViolation) {
					return errs.Store("bulk move", err)
				}
				if err := tx.RollbackTo(ctx, spName); err != nil {
					return errs.Store("rollback to savepoint", err)
				}
				if _, err := tx.Delete(ctx, action.ID); err != nil {
					return errs.Store("bulk move delete", err)
				}
				merged, err := r.putInTx(ctx, tx, row, fmt.Sprintf("bulk_%d_merge", i))
				if err != nil {
					return err
				}
				results[i] = merged

			default:
				return fmt.Errorf("contextregistry: unknown bulk action kind %q", action.Kind)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
