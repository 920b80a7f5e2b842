// Package dimension implements the dimension registry (spec §4.B): the
// mapping from a named runtime variable to the positive integer priority
// it contributes to every condition that references it.
package dimension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cacsvc/core/pkg/errs"
)

// ErrNotFound is returned by Store implementations when a lookup misses.
var ErrNotFound = errors.New("dimension not found")

// Dimension is a named runtime variable with a positive priority weight.
type Dimension struct {
	Name      string    `json:"name"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// Store is the persistence contract the registry drives (spec §6.1's
// Store collaborator, specialized to Dimension).
type Store interface {
	Create(ctx context.Context, d Dimension) error
	Get(ctx context.Context, name string) (Dimension, error)
	List(ctx context.Context) ([]Dimension, error)
	Delete(ctx context.Context, name string) error
	// ReferencedByAnyContext reports whether any stored context's
	// condition mentions name, used to enforce delete/priority-change
	// protection (spec §3, §9 dimension-priority-immutability).
	ReferencedByAnyContext(ctx context.Context, name string) (bool, error)
}

// Registry is the dimension registry's operation surface.
type Registry struct {
	store Store
}

func New(store Store) *Registry {
	return &Registry{store: store}
}

// Create registers a dimension. Names are unique (the store keys rows by
// name); priority must be a positive integer, which is checked here, not
// by the store's schema. Creating a name that already exists updates its
// priority, and, as with SetPriority, a change of priority is rejected
// while any context references the dimension.
func (r *Registry) Create(ctx context.Context, d Dimension) error {
	if d.Priority <= 0 {
		return errNonPositivePriority(d.Name, d.Priority)
	}
	if existing, err := r.store.Get(ctx, d.Name); err == nil && existing.Priority != d.Priority {
		referenced, err := r.store.ReferencedByAnyContext(ctx, d.Name)
		if err != nil {
			return err
		}
		if referenced {
			return errs.KeyInUse("dimension priority", d.Name)
		}
	}
	return r.store.Create(ctx, d)
}

func (r *Registry) Get(ctx context.Context, name string) (Dimension, error) {
	return r.store.Get(ctx, name)
}

// Priority satisfies pkg/priority.DimensionLookup.
func (r *Registry) Priority(ctx context.Context, name string) (int, error) {
	d, err := r.store.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	return d.Priority, nil
}

func (r *Registry) List(ctx context.Context) ([]Dimension, error) {
	return r.store.List(ctx)
}

// Delete removes a dimension, failing if any context still references it.
func (r *Registry) Delete(ctx context.Context, name string) error {
	referenced, err := r.store.ReferencedByAnyContext(ctx, name)
	if err != nil {
		return err
	}
	if referenced {
		return errs.KeyInUse("dimension", name)
	}
	return r.store.Delete(ctx, name)
}

// SetPriority changes a dimension's priority. Forbidden once any context
// references the dimension (spec §9 open question, resolved: changing
// priority under reference would silently desync stored context
// priorities from the formula, so this is rejected rather than
// recomputed).
func (r *Registry) SetPriority(ctx context.Context, name string, priority int) error {
	if priority <= 0 {
		return errNonPositivePriority(name, priority)
	}
	referenced, err := r.store.ReferencedByAnyContext(ctx, name)
	if err != nil {
		return err
	}
	if referenced {
		return errs.KeyInUse("dimension priority", name)
	}
	d, err := r.store.Get(ctx, name)
	if err != nil {
		return err
	}
	d.Priority = priority
	return r.store.Create(ctx, d)
}

func errNonPositivePriority(name string, priority int) error {
	return fmt.Errorf("dimension %q: priority must be a positive integer, got %d", name, priority)
}
