// Package priority implements the priority calculator (spec §4.E):
// summing the priority of every dimension a condition references,
// counting duplicates.
package priority

import (
	"context"

	"github.com/cacsvc/core/pkg/errs"
	"github.com/cacsvc/core/pkg/predicate"
)

// DimensionLookup resolves a dimension's priority by name, returning an
// error if no such dimension is registered. Implemented by
// *dimension.Registry in production wiring.
type DimensionLookup interface {
	Priority(ctx context.Context, name string) (int, error)
}

// Of computes Σ dim.priority over the multiset of {"var": d} occurrences
// in condition, per spec §4.E. Fails with UnknownDimension if condition
// mentions a dimension lookup does not recognize, and with
// NoDimensionInContext if the sum is zero (condition references no
// dimension at all).
func Of(ctx context.Context, condition predicate.Node, lookup DimensionLookup) (int, error) {
	dims := predicate.Dimensions(condition)

	total := 0
	for _, name := range dims {
		p, err := lookup.Priority(ctx, name)
		if err != nil {
			return 0, errs.UnknownDimension(name)
		}
		total += p
	}
	if total == 0 {
		return 0, errs.NoDimensionInContext()
	}
	return total, nil
}
