// Package overridevalidator implements the override schema validator
// (spec §4.F): for every key set by an override map, look up its
// registered Draft-7 schema and validate the value against it,
// all-or-nothing.
package overridevalidator

import (
	"context"
	"encoding/json"

	"github.com/cacsvc/core/pkg/defaultconfig"
	"github.com/cacsvc/core/pkg/errs"
)

// SchemaLookup resolves a default-config entry by key. Implemented by
// *defaultconfig.Registry in production wiring.
type SchemaLookup interface {
	Get(ctx context.Context, key string) (defaultconfig.Entry, error)
}

// Validate checks every key in override against its registered schema.
// It is all-or-nothing: the first failing key aborts the call with that
// key's error, none of the keys are treated as partially valid.
func Validate(ctx context.Context, override map[string]json.RawMessage, lookup SchemaLookup) error {
	for key, raw := range override {
		entry, err := lookup.Get(ctx, key)
		if err != nil {
			return errs.UnknownOverrideKey(key)
		}

		schema, err := defaultconfig.Compile(key, entry.Schema)
		if err != nil {
			return errs.BadSchema(key, err)
		}

		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return errs.SchemaValidation(key, []string{err.Error()})
		}
		if err := schema.Validate(v); err != nil {
			return errs.SchemaValidation(key, []string{err.Error()})
		}
	}
	return nil
}
