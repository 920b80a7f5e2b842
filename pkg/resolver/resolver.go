// Package resolver implements the configuration resolver (spec §4.H):
// given a runtime context, evaluate every stored predicate, select
// matches, order them by priority, and fold their overrides atop the
// default configuration.
package resolver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/cacsvc/core/pkg/contextregistry"
	"github.com/cacsvc/core/pkg/defaultconfig"
	"github.com/cacsvc/core/pkg/merge"
	"github.com/cacsvc/core/pkg/predicate"
)

// DefaultConfigLookup loads the full default configuration map.
type DefaultConfigLookup interface {
	List(ctx context.Context) ([]defaultconfig.Entry, error)
}

// ContextLister loads candidate context rows, optionally pre-filtered
// at the store by substring match over the serialized condition (spec
// §4.H.2). page/size of 0 requests the registry's defaults.
type ContextLister interface {
	ListContexts(ctx context.Context, filter string, page, size int) ([]contextregistry.Row, int, error)
}

// Selected describes one context row whose predicate matched.
type Selected struct {
	Condition  json.RawMessage `json:"condition"`
	OverrideID string          `json:"override_id"`
	Priority   int             `json:"priority"`
}

// Result is the resolver's output (spec §3 Resolved Configuration).
type Result struct {
	Config    map[string]any            `json:"config"`
	Contexts  []Selected                `json:"contexts"`
	Overrides map[string]map[string]any `json:"overrides"`
}

// Resolver folds matching context overrides atop the default
// configuration for a given runtime context.
type Resolver struct {
	defaults DefaultConfigLookup
	contexts ContextLister
	logger   *slog.Logger
}

func New(defaults DefaultConfigLookup, contexts ContextLister, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{defaults: defaults, contexts: contexts, logger: logger.With("component", "resolver")}
}

// allRows pages through every context row matching filter; the registry
// enforces its own page/size bounds, so this fetches until it has
// collected the reported total or an empty page signals the end.
func (r *Resolver) allRows(ctx context.Context, filter string) ([]contextregistry.Row, error) {
	const pageSize = 200
	var all []contextregistry.Row
	page := 1
	for {
		rows, total, err := r.contexts.ListContexts(ctx, filter, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(all) >= total || len(rows) == 0 {
			return all, nil
		}
		page++
	}
}

// Resolve implements spec §4.H's algorithm.
func (r *Resolver) Resolve(ctx context.Context, runtimeContext map[string]any, filter string) (Result, error) {
	entries, err := r.defaults.List(ctx)
	if err != nil {
		return Result{}, err
	}
	config := map[string]any{}
	configJSON := map[string]json.RawMessage{}
	for _, e := range entries {
		var v any
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return Result{}, err
		}
		config[e.Key] = v
		configJSON[e.Key] = e.Value
	}

	rows, err := r.allRows(ctx, filter)
	if err != nil {
		return Result{}, err
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Priority != rows[j].Priority {
			return rows[i].Priority < rows[j].Priority
		}
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})

	selected := make([]Selected, 0, len(rows))
	overrides := map[string]map[string]any{}

	configDoc, err := json.Marshal(config)
	if err != nil {
		return Result{}, err
	}

	for _, row := range rows {
		var conditionVal any
		if err := json.Unmarshal(row.Condition, &conditionVal); err != nil {
			r.logger.WarnContext(ctx, "skipping context with unparseable condition", "context_id", row.ID, "error", err)
			continue
		}
		node, err := predicate.Parse(conditionVal)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping context with malformed predicate", "context_id", row.ID, "error", err)
			continue
		}
		matched, err := predicate.Evaluate(node, runtimeContext)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping context: predicate evaluation failed", "context_id", row.ID, "error", err)
			continue
		}
		if !matched {
			continue
		}

		merged, err := merge.Patch(configDoc, row.Override)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping context: override merge failed", "context_id", row.ID, "error", err)
			continue
		}
		configDoc = merged

		var overrideVal map[string]any
		if err := json.Unmarshal(row.Override, &overrideVal); err != nil {
			return Result{}, err
		}
		overrides[row.OverrideID] = overrideVal

		selected = append(selected, Selected{
			Condition:  row.Condition,
			OverrideID: row.OverrideID,
			Priority:   row.Priority,
		})
	}

	var finalConfig map[string]any
	if err := json.Unmarshal(configDoc, &finalConfig); err != nil {
		return Result{}, err
	}

	return Result{Config: finalConfig, Contexts: selected, Overrides: overrides}, nil
}
