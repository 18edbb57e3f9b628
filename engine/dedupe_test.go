package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warptrace/core"
)

func TestDedupe_CollapsesStructuralDuplicates(t *testing.T) {
	findings := []core.Finding{
		{Kind: "auth.blocked", Reason: "r", Score: 0.9, Meta: map[string]any{"status": 403, "event_ids": []int64{1}}},
		{Kind: "auth.blocked", Reason: "r", Score: 0.9, Meta: map[string]any{"event_ids": []int64{1}, "status": 403}},
	}

	unique := Dedupe(findings)
	require.Len(t, unique, 1)
	assert.Equal(t, findings[0], unique[0])
}

func TestDedupe_PreservesFirstOccurrenceOrder(t *testing.T) {
	a := core.Finding{Kind: "a.a", Reason: "one", Meta: map[string]any{}}
	b := core.Finding{Kind: "b.b", Reason: "two", Meta: map[string]any{}}
	c := core.Finding{Kind: "c.c", Reason: "three", Meta: map[string]any{}}

	unique := Dedupe([]core.Finding{a, b, a, c, b})
	require.Len(t, unique, 3)
	assert.Equal(t, "a.a", unique[0].Kind)
	assert.Equal(t, "b.b", unique[1].Kind)
	assert.Equal(t, "c.c", unique[2].Kind)
}

func TestDedupe_IDOrderDistinguishesFindings(t *testing.T) {
	findings := []core.Finding{
		{Kind: "k.k", Reason: "r", Meta: map[string]any{"event_ids": []int64{1, 2}}},
		{Kind: "k.k", Reason: "r", Meta: map[string]any{"event_ids": []int64{2, 1}}},
	}

	unique := Dedupe(findings)
	assert.Len(t, unique, 2)
}

func TestDedupe_NestedMetaCompared(t *testing.T) {
	findings := []core.Finding{
		{Kind: "k.k", Reason: "r", Meta: map[string]any{"inner": map[string]any{"x": 1, "y": "s"}}},
		{Kind: "k.k", Reason: "r", Meta: map[string]any{"inner": map[string]any{"y": "s", "x": 1}}},
		{Kind: "k.k", Reason: "r", Meta: map[string]any{"inner": map[string]any{"x": 2, "y": "s"}}},
	}

	unique := Dedupe(findings)
	assert.Len(t, unique, 2)
}

func TestDedupe_Idempotent(t *testing.T) {
	findings := []core.Finding{
		{Kind: "a.a", Reason: "one", Meta: map[string]any{"event_ids": []int64{1}}},
		{Kind: "a.a", Reason: "one", Meta: map[string]any{"event_ids": []int64{1}}},
		{Kind: "b.b", Reason: "two", Meta: map[string]any{}},
	}

	once := Dedupe(findings)
	twice := Dedupe(once)
	assert.Equal(t, once, twice)
}

func TestDedupe_EmptyInput(t *testing.T) {
	unique := Dedupe(nil)
	require.NotNil(t, unique)
	assert.Len(t, unique, 0)
}
