package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/cost"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/internal/store"
)

func newWorklistStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedWorklistEntity(t *testing.T, st *store.SQLiteStore, slug string) string {
	t.Helper()
	e := &model.Entity{Slug: slug, Name: slug, Area: "downtown"}
	require.NoError(t, st.CreateEntity(context.Background(), e))
	return e.ID
}

func completeAllSteps(t *testing.T, st *store.SQLiteStore, id string) {
	t.Helper()
	for _, step := range model.StepOrder {
		require.NoError(t, st.SetStepStatus(context.Background(), id, step,
			model.StepState{Status: model.StepCompleted, UpdatedAt: time.Now().UTC()}))
	}
}

func TestBuildWorklist_SkipsCompleted(t *testing.T) {
	st := newWorklistStore(t)
	pending := seedWorklistEntity(t, st, "pending-venue")
	done := seedWorklistEntity(t, st, "done-venue")
	completeAllSteps(t, st, done)

	ids, err := buildWorklist(context.Background(), st, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{pending}, ids)
}

func TestBuildWorklist_IncludesFailedAndInterrupted(t *testing.T) {
	st := newWorklistStore(t)
	ctx := context.Background()

	failed := seedWorklistEntity(t, st, "failed-venue")
	require.NoError(t, st.SetStepStatus(ctx, failed, model.StepCrawl,
		model.StepState{Status: model.StepFailed, UpdatedAt: time.Now().UTC(), Error: "boom"}))

	interrupted := seedWorklistEntity(t, st, "interrupted-venue")
	require.NoError(t, st.SetStepStatus(ctx, interrupted, model.StepFetchGeo,
		model.StepState{Status: model.StepRunning, UpdatedAt: time.Now().UTC()}))

	ids, err := buildWorklist(ctx, st, "", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{failed, interrupted}, ids)
}

func TestBuildWorklist_RespectsLimit(t *testing.T) {
	st := newWorklistStore(t)
	for _, slug := range []string{"a", "b", "c", "d"} {
		seedWorklistEntity(t, st, slug)
	}

	ids, err := buildWorklist(context.Background(), st, "", 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestBuildWorklist_FiltersByArea(t *testing.T) {
	st := newWorklistStore(t)
	in := seedWorklistEntity(t, st, "in-area")

	other := &model.Entity{Slug: "other-area", Name: "other", Area: "marina"}
	require.NoError(t, st.CreateEntity(context.Background(), other))

	ids, err := buildWorklist(context.Background(), st, "downtown", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{in}, ids)
}

func TestPrintProjection(t *testing.T) {
	calc := cost.NewCalculator(config.PricingConfig{
		FixedPerEntity: 0.01,
		PerStep: map[string]float64{
			"fetch_geo": 0.017,
			"crawl":     0.05,
			"enhance":   0.04,
			"images":    0.08,
			"finalize":  0.02,
		},
	})
	var buf bytes.Buffer

	printProjection(&buf, calc.Project(10))

	out := buf.String()
	assert.Contains(t, out, "10 entities")
	assert.Contains(t, out, "fetch_geo")
	assert.Contains(t, out, "finalize")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := confirm(strings.NewReader(tt.input), &out)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "[y/N]")
	}
}
