package resolver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacsvc/core/pkg/contextregistry"
	"github.com/cacsvc/core/pkg/defaultconfig"
)

type fakeDefaults struct {
	entries []defaultconfig.Entry
}

func (f fakeDefaults) List(_ context.Context) ([]defaultconfig.Entry, error) {
	return f.entries, nil
}

type fakeContexts struct {
	rows []contextregistry.Row
}

func (f fakeContexts) ListContexts(_ context.Context, filter string, page, size int) ([]contextregistry.Row, int, error) {
	if page > 1 {
		return nil, len(f.rows), nil
	}
	return f.rows, len(f.rows), nil
}

func TestResolve_PrioritySumAndMatch(t *testing.T) {
	defaults := fakeDefaults{entries: []defaultconfig.Entry{
		{Key: "fee", Value: json.RawMessage(`10`)},
	}}
	contexts := fakeContexts{rows: []contextregistry.Row{
		{
			ID:         "row-a",
			Condition:  json.RawMessage(`{"and":[{"==":[{"var":"country"},"IN"]},{"==":[{"var":"tier"},"gold"]}]}`),
			Priority:   7,
			OverrideID: "ov-a",
			Override:   json.RawMessage(`{"fee":0}`),
			CreatedAt:  time.Now(),
		},
	}}

	r := New(defaults, contexts, nil)
	result, err := r.Resolve(context.Background(), map[string]any{"country": "IN", "tier": "gold"}, "")
	require.NoError(t, err)
	assert.Equal(t, float64(0), result.Config["fee"])
	require.Len(t, result.Contexts, 1)
	assert.Equal(t, 7, result.Contexts[0].Priority)
}

func TestResolve_NonMatchKeepsDefault(t *testing.T) {
	defaults := fakeDefaults{entries: []defaultconfig.Entry{
		{Key: "fee", Value: json.RawMessage(`10`)},
	}}
	contexts := fakeContexts{rows: []contextregistry.Row{
		{
			ID:        "row-a",
			Condition: json.RawMessage(`{"and":[{"==":[{"var":"country"},"IN"]},{"==":[{"var":"tier"},"gold"]}]}`),
			Priority:  7,
			Override:  json.RawMessage(`{"fee":0}`),
			CreatedAt: time.Now(),
		},
	}}

	r := New(defaults, contexts, nil)
	result, err := r.Resolve(context.Background(), map[string]any{"country": "US", "tier": "gold"}, "")
	require.NoError(t, err)
	assert.Equal(t, float64(10), result.Config["fee"])
	assert.Empty(t, result.Contexts)
}

func TestResolve_OverlapOrderingHigherPriorityWins(t *testing.T) {
	defaults := fakeDefaults{entries: []defaultconfig.Entry{
		{Key: "fee", Value: json.RawMessage(`10`)},
	}}
	now := time.Now()
	contexts := fakeContexts{rows: []contextregistry.Row{
		{
			ID:        "row-b",
			Condition: json.RawMessage(`{"and":[{"==":[{"var":"country"},"IN"]},{"==":[{"var":"tier"},"gold"]}]}`),
			Priority:  7,
			Override:  json.RawMessage(`{"fee":0}`),
			CreatedAt: now.Add(time.Second),
		},
		{
			ID:        "row-a",
			Condition: json.RawMessage(`{"==":[{"var":"country"},"IN"]}`),
			Priority:  2,
			Override:  json.RawMessage(`{"fee":5}`),
			CreatedAt: now,
		},
	}}

	r := New(defaults, contexts, nil)
	result, err := r.Resolve(context.Background(), map[string]any{"country": "IN", "tier": "gold"}, "")
	require.NoError(t, err)
	assert.Equal(t, float64(0), result.Config["fee"])
	require.Len(t, result.Contexts, 2)
	assert.Equal(t, 2, result.Contexts[0].Priority)
	assert.Equal(t, 7, result.Contexts[1].Priority)
}

func TestResolve_SkipsUnparseablePredicateAndContinues(t *testing.T) {
	defaults := fakeDefaults{entries: []defaultconfig.Entry{
		{Key: "fee", Value: json.RawMessage(`10`)},
	}}
	contexts := fakeContexts{rows: []contextregistry.Row{
		{ID: "bad", Condition: json.RawMessage(`{"xor":[true,false]}`), Priority: 1, Override: json.RawMessage(`{}`), CreatedAt: time.Now()},
		{ID: "good", Condition: json.RawMessage(`{"==":[{"var":"country"},"IN"]}`), Priority: 2, Override: json.RawMessage(`{"fee":1}`), CreatedAt: time.Now()},
	}}

	r := New(defaults, contexts, nil)
	result, err := r.Resolve(context.Background(), map[string]any{"country": "IN"}, "")
	require.NoError(t, err)
	assert.Equal(t, float64(1), result.Config["fee"])
	assert.Len(t, result.Contexts, 1)
}
