package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/gallery"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/internal/store"
)

type fixture struct {
	store   *store.SQLiteStore
	geo     *mockGeodata
	crawl   *mockCrawl
	enhance *mockEnhance
	images  *mockImages
	orch    *Orchestrator
	entity  *model.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	cfg := &config.Config{}
	cfg.Popularity.BusyThreshold = 60
	cfg.Popularity.QuietThreshold = 30
	cfg.Pipeline.LeaseTTLMinutes = 15
	cfg.Pipeline.StepTimeoutSecs = 10

	f := &fixture{
		store:   st,
		geo:     &mockGeodata{},
		crawl:   &mockCrawl{},
		enhance: &mockEnhance{},
		images:  &mockImages{},
	}
	f.orch = New(st, f.geo, f.crawl, f.enhance, f.images, cfg)

	f.entity = &model.Entity{Slug: "blue-door", Name: "The Blue Door", Area: "downtown"}
	require.NoError(t, st.CreateEntity(context.Background(), f.entity))
	return f
}

func geodataPayload() *model.GeodataPayload {
	return &model.GeodataPayload{
		Name:       "The Blue Door",
		Address:    "12 Harbor St",
		Phone:      "+971 4 555 0100",
		PriceLevel: "PRICE_LEVEL_MODERATE",
		Hours:      model.HoursPayload{List: []model.DayHours{{Day: "Monday", Hours: "9am-9pm"}}},
		PhotoURLs:  []string{"https://media/a.jpg"},
		Raw:        []byte(`{"places":[]}`),
	}
}

func (f *fixture) expectAllSteps() {
	f.geo.On("Fetch", mock.Anything, mock.Anything).Return(geodataPayload(), nil)
	f.crawl.On("Fetch", mock.Anything, mock.Anything).Return(&model.CrawlPayload{
		Sections: map[string][]model.CrawlResult{
			"general": {{URL: "https://bluedoor.example.com", Extracted: map[string]string{"website": "https://bluedoor.example.com"}}},
		},
	}, nil)
	f.enhance.On("Fetch", mock.Anything, mock.Anything).Return(&model.EnhancePayload{
		Description:      "A cozy harbor-side bistro.",
		ShortDescription: "Harbor-side bistro.",
	}, nil)
	f.images.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(&gallery.Result{Stored: 1}, nil)
}

func TestRun_AllStepsComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectAllSteps()

	outcome, err := f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err)

	assert.False(t, outcome.Failed())
	assert.False(t, outcome.Skipped)
	assert.Equal(t, model.StepOrder, outcome.CompletedSteps)

	p, err := f.store.GetProgress(ctx, f.entity.ID)
	require.NoError(t, err)
	for _, step := range model.StepOrder {
		assert.Equal(t, model.StepCompleted, p.StepFor(step).Status, step)
	}
	assert.Equal(t, model.EntityCompleted, model.OverallStatus(p, model.StepOrder))

	got, err := f.store.GetEntity(ctx, f.entity.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Phone)
	assert.Equal(t, "+971 4 555 0100", *got.Phone)
	require.NotNil(t, got.PriceTier)
	assert.Equal(t, 2, *got.PriceTier)
	assert.Equal(t, "9am-9pm", got.Hours["monday"])
	require.NotNil(t, got.Description)
	assert.Equal(t, "A cozy harbor-side bistro.", *got.Description)
	// finalize derived SEO fields from earlier steps.
	require.NotNil(t, got.SEOTitle)
	assert.Equal(t, "The Blue Door | Downtown", *got.SEOTitle)
	require.NotNil(t, got.SEODescription)
	assert.Equal(t, "Harbor-side bistro.", *got.SEODescription)
	// Raw payloads preserved for audit.
	assert.NotEmpty(t, got.RawGeodata)
	assert.NotEmpty(t, got.RawCrawl)
	assert.NotEmpty(t, got.RawEnhance)
}

func TestRun_ImagesCandidatesFromStoredGeodata(t *testing.T) {
	f := newFixture(t)
	f.expectAllSteps()

	var captured []gallery.Candidate
	f.images.ExpectedCalls = nil
	f.images.On("Process", mock.Anything, mock.Anything, mock.MatchedBy(func(c []gallery.Candidate) bool {
		captured = c
		return true
	})).Return(&gallery.Result{}, nil)

	_, err := f.orch.Run(context.Background(), f.entity.ID, Options{})
	require.NoError(t, err)
	require.Len(t, captured, 1)
	assert.Equal(t, "https://media/a.jpg", captured[0].SourceURL)
	assert.Equal(t, "The Blue Door", captured[0].AltText)
}

func TestRun_FailureHaltsAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.geo.On("Fetch", mock.Anything, mock.Anything).Return(geodataPayload(), nil)
	f.crawl.On("Fetch", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	outcome, err := f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err) // step failures are recorded, not thrown

	assert.True(t, outcome.Failed())
	assert.Equal(t, model.StepCrawl, outcome.FailedStep)
	assert.Equal(t, []string{model.StepFetchGeo}, outcome.CompletedSteps)

	p, err := f.store.GetProgress(ctx, f.entity.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepCompleted, p.StepFor(model.StepFetchGeo).Status)
	assert.Equal(t, model.StepFailed, p.StepFor(model.StepCrawl).Status)
	assert.NotEmpty(t, p.StepFor(model.StepCrawl).Error)
	// Later steps were never touched.
	assert.Equal(t, model.StepPending, p.StepFor(model.StepEnhance).Status)
	assert.Equal(t, model.StepPending, p.StepFor(model.StepImages).Status)

	f.enhance.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	f.images.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ResumesFromFailedStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// First run: geodata succeeds, crawl fails.
	f.geo.On("Fetch", mock.Anything, mock.Anything).Return(geodataPayload(), nil).Once()
	f.crawl.On("Fetch", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	outcome, err := f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err)
	require.True(t, outcome.Failed())

	// Second run resumes at crawl without re-fetching geodata.
	f.crawl.On("Fetch", mock.Anything, mock.Anything).Return(&model.CrawlPayload{}, nil).Once()
	f.enhance.On("Fetch", mock.Anything, mock.Anything).Return(&model.EnhancePayload{}, nil)
	f.images.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(&gallery.Result{}, nil)

	outcome, err = f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err)
	assert.False(t, outcome.Failed())
	assert.Equal(t, []string{model.StepCrawl, model.StepEnhance, model.StepImages, model.StepFinalize}, outcome.CompletedSteps)
	f.geo.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRun_CompletedEntityIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectAllSteps()

	_, err := f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err)

	outcome, err := f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Empty(t, outcome.CompletedSteps)
	// Cost-avoidance: adapters from the first run only.
	f.geo.AssertNumberOfCalls(t, "Fetch", 1)
	f.crawl.AssertNumberOfCalls(t, "Fetch", 1)
	f.enhance.AssertNumberOfCalls(t, "Fetch", 1)
	f.images.AssertNumberOfCalls(t, "Process", 1)
}

func TestRun_FromStepRerunsCompletedStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectAllSteps()

	_, err := f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err)

	outcome, err := f.orch.Run(ctx, f.entity.ID, Options{FromStep: model.StepEnhance})
	require.NoError(t, err)
	assert.Equal(t, []string{model.StepEnhance, model.StepImages, model.StepFinalize}, outcome.CompletedSteps)
	f.geo.AssertNumberOfCalls(t, "Fetch", 1)
	f.enhance.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestRun_FromStepRequiresCompletedPriors(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Run(context.Background(), f.entity.ID, Options{FromStep: model.StepEnhance})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prior step")
	f.enhance.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRun_UnknownFromStep(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Run(context.Background(), f.entity.ID, Options{FromStep: "teleport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestRun_ClaimConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.store.AcquireLease(ctx, f.entity.ID, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.orch.Run(ctx, f.entity.ID, Options{})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	f.geo.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRun_StaleRunningStepReattempted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Simulate a run killed mid-crawl: fetch_geo done, crawl left running,
	// claim expired.
	require.NoError(t, f.store.SetStepStatus(ctx, f.entity.ID, model.StepFetchGeo,
		model.StepState{Status: model.StepCompleted, UpdatedAt: time.Now().UTC()}))
	require.NoError(t, f.store.SetStepStatus(ctx, f.entity.ID, model.StepCrawl,
		model.StepState{Status: model.StepRunning, UpdatedAt: time.Now().UTC()}))

	f.crawl.On("Fetch", mock.Anything, mock.Anything).Return(&model.CrawlPayload{}, nil)
	f.enhance.On("Fetch", mock.Anything, mock.Anything).Return(&model.EnhancePayload{}, nil)
	f.images.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(&gallery.Result{}, nil)

	outcome, err := f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{model.StepCrawl, model.StepEnhance, model.StepImages, model.StepFinalize}, outcome.CompletedSteps)
	f.geo.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRun_HeroMirroredFromImagesStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.geo.On("Fetch", mock.Anything, mock.Anything).Return(geodataPayload(), nil)
	f.crawl.On("Fetch", mock.Anything, mock.Anything).Return(&model.CrawlPayload{}, nil)
	f.enhance.On("Fetch", mock.Anything, mock.Anything).Return(&model.EnhancePayload{}, nil)

	// Stand-in for the real pipeline: store an image, promote it to hero.
	hero := &model.GalleryImage{
		EntityID:  f.entity.ID,
		URL:       "https://cdn/hero.jpg",
		SourceURL: "https://media/a.jpg",
		AltText:   "The Blue Door",
	}
	f.images.On("Process", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, f.store.AddImage(ctx, hero))
			require.NoError(t, f.store.SetHero(ctx, f.entity.ID, hero.ID))
			hero.Hero = true
		}).
		Return(&gallery.Result{Stored: 1, Hero: hero}, nil)

	_, err := f.orch.Run(ctx, f.entity.ID, Options{})
	require.NoError(t, err)

	got, err := f.store.GetEntity(ctx, f.entity.ID)
	require.NoError(t, err)
	require.NotNil(t, got.HeroImageURL)
	assert.Equal(t, "https://cdn/hero.jpg", *got.HeroImageURL)
}
