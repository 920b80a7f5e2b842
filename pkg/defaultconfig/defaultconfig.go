// Package defaultconfig implements the default-configuration registry
// (spec §4.C): per-key base values plus the Draft-7 JSON Schema each
// value (and every override of that key) must validate against.
package defaultconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cacsvc/core/pkg/errs"
)

// Entry is one default-configuration row.
type Entry struct {
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value"`
	Schema json.RawMessage `json:"schema"`
}

// Store is the persistence contract driving the registry.
type Store interface {
	Upsert(ctx context.Context, e Entry) error
	Get(ctx context.Context, key string) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, key string) error
	// ReferencedByAnyOverride reports whether any stored context's
	// override map sets key, blocking delete while referenced.
	ReferencedByAnyOverride(ctx context.Context, key string) (bool, error)
}

// Registry is the default-config registry's operation surface.
type Registry struct {
	store Store
}

func New(store Store) *Registry {
	return &Registry{store: store}
}

// Compile compiles raw as a Draft-7 JSON Schema, identified internally
// by key so compiler error messages are traceable to their owning entry.
func Compile(key string, raw json.RawMessage) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	url := fmt.Sprintf("mem://defaultconfig/%s.schema.json", key)
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Upsert validates value against schema (compiling schema as Draft 7
// first) and persists the entry iff both succeed.
func (r *Registry) Upsert(ctx context.Context, e Entry) error {
	schema, err := Compile(e.Key, e.Schema)
	if err != nil {
		return errs.BadSchema(e.Key, err)
	}

	var v any
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return errs.BadSchema(e.Key, err)
	}
	if err := schema.Validate(v); err != nil {
		return errs.SchemaValidation(e.Key, []string{err.Error()})
	}

	return r.store.Upsert(ctx, e)
}

func (r *Registry) Get(ctx context.Context, key string) (Entry, error) {
	return r.store.Get(ctx, key)
}

func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	return r.store.List(ctx)
}

// Delete removes a default-config entry, failing if any context's
// override still references key.
func (r *Registry) Delete(ctx context.Context, key string) error {
	referenced, err := r.store.ReferencedByAnyOverride(ctx, key)
	if err != nil {
		return err
	}
	if referenced {
		return errs.KeyInUse("default-config entry", key)
	}
	return r.store.Delete(ctx, key)
}
