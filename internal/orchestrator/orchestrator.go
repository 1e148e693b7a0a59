// Package orchestrator runs the per-entity extraction state machine:
// ordered steps, persisted progress after every transition, resume from
// the first incomplete step, and a claim guard against concurrent runs.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/gallery"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/internal/normalize"
	"github.com/venuedex/enrich-cli/internal/store"
)

// ErrAlreadyRunning is returned when another run holds the entity's claim.
var ErrAlreadyRunning = eris.New("orchestrator: entity already claimed by another run")

// GeodataProvider fetches place data for an entity.
type GeodataProvider interface {
	Fetch(ctx context.Context, entity *model.Entity) (*model.GeodataPayload, error)
}

// CrawlProvider fetches web search results for an entity.
type CrawlProvider interface {
	Fetch(ctx context.Context, entity *model.Entity) (*model.CrawlPayload, error)
}

// EnhanceProvider generates content for an entity.
type EnhanceProvider interface {
	Fetch(ctx context.Context, entity *model.Entity) (*model.EnhancePayload, error)
}

// ImageProcessor ingests candidate images into the entity's gallery.
type ImageProcessor interface {
	Process(ctx context.Context, entity *model.Entity, candidates []gallery.Candidate) (*gallery.Result, error)
}

// Options tunes a single run.
type Options struct {
	// FromStep forces re-execution starting at the named step even if it
	// completed before. All prior steps must be completed.
	FromStep string
}

// RunOutcome reports what one run did. Step failures land here, not in
// Run's error return: the caller decides whether a failed entity matters.
type RunOutcome struct {
	EntityID       string
	CompletedSteps []string
	FailedStep     string
	Err            string
	Skipped        bool // entity was already fully completed; nothing ran
	Conflicts      []normalize.Conflict
}

// Failed reports whether the run recorded a step failure.
func (o *RunOutcome) Failed() bool { return o.FailedStep != "" }

// Orchestrator executes extraction steps for one entity at a time.
type Orchestrator struct {
	store   store.Store
	geodata GeodataProvider
	crawl   CrawlProvider
	enhance EnhanceProvider
	images  ImageProcessor
	cfg     *config.Config

	thresholds normalize.Thresholds
}

// New creates an Orchestrator.
func New(st store.Store, geo GeodataProvider, crawl CrawlProvider, enh EnhanceProvider, img ImageProcessor, cfg *config.Config) *Orchestrator {
	th := normalize.Thresholds{
		Busy:  cfg.Popularity.BusyThreshold,
		Quiet: cfg.Popularity.QuietThreshold,
	}
	if th.Busy == 0 && th.Quiet == 0 {
		th = normalize.DefaultThresholds()
	}
	return &Orchestrator{
		store:      st,
		geodata:    geo,
		crawl:      crawl,
		enhance:    enh,
		images:     img,
		cfg:        cfg,
		thresholds: th,
	}
}

// Run claims the entity and executes steps from the first incomplete one
// (or opts.FromStep). A fully completed entity with no override is a
// no-op: no claim conflict is possible to create cost, and no adapter is
// called. The returned error covers infrastructure problems only; step
// failures are recorded in the outcome.
func (o *Orchestrator) Run(ctx context.Context, entityID string, opts Options) (*RunOutcome, error) {
	log := zap.L().With(zap.String("entity_id", entityID))
	outcome := &RunOutcome{EntityID: entityID}

	progress, err := o.store.GetProgress(ctx, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: load progress")
	}

	start, err := o.startIndex(progress, opts)
	if err != nil {
		return nil, err
	}
	if start >= len(model.StepOrder) {
		// Cost-avoidance guarantee: nothing to do, nothing is called.
		outcome.Skipped = true
		log.Info("entity already completed, skipping")
		return outcome, nil
	}

	ttl := time.Duration(o.cfg.Pipeline.LeaseTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	claimed, err := o.store.AcquireLease(ctx, entityID, ttl)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: claim entity")
	}
	if !claimed {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err := o.store.ReleaseLease(context.WithoutCancel(ctx), entityID); err != nil {
			log.Warn("release claim failed", zap.Error(err))
		}
	}()

	entity, err := o.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: load entity")
	}

	for _, step := range model.StepOrder[start:] {
		if err := o.setStep(ctx, entityID, step, model.StepRunning, ""); err != nil {
			return nil, err
		}

		stepStart := time.Now()
		conflicts, stepErr := o.execute(ctx, step, entity)
		duration := time.Since(stepStart)

		if stepErr != nil {
			log.Error("step failed",
				zap.String("step", step),
				zap.Duration("duration", duration),
				zap.Error(stepErr),
			)
			if err := o.setStep(ctx, entityID, step, model.StepFailed, stepErr.Error()); err != nil {
				return nil, err
			}
			// Later steps stay pending; this run is over.
			outcome.FailedStep = step
			outcome.Err = stepErr.Error()
			return outcome, nil
		}

		if err := o.store.UpdateEntity(ctx, entity); err != nil {
			return nil, eris.Wrapf(err, "orchestrator: persist entity after %s", step)
		}
		if err := o.setStep(ctx, entityID, step, model.StepCompleted, ""); err != nil {
			return nil, err
		}

		outcome.CompletedSteps = append(outcome.CompletedSteps, step)
		outcome.Conflicts = append(outcome.Conflicts, conflicts...)
		log.Info("step completed",
			zap.String("step", step),
			zap.Duration("duration", duration),
			zap.Int("conflicts", len(conflicts)),
		)
	}

	return outcome, nil
}

// startIndex picks the first step to execute. Steps left running by a
// killed run count as incomplete and are re-attempted.
func (o *Orchestrator) startIndex(p *model.Progress, opts Options) (int, error) {
	if opts.FromStep != "" {
		idx := -1
		for i, step := range model.StepOrder {
			if step == opts.FromStep {
				idx = i
				break
			}
		}
		if idx < 0 {
			return 0, eris.Errorf("orchestrator: unknown step %q (valid: %s)",
				opts.FromStep, strings.Join(model.StepOrder, ", "))
		}
		for _, step := range model.StepOrder[:idx] {
			if p.StepFor(step).Status != model.StepCompleted {
				return 0, eris.Errorf("orchestrator: cannot start from %q: prior step %q is not completed",
					opts.FromStep, step)
			}
		}
		return idx, nil
	}

	for i, step := range model.StepOrder {
		if p.StepFor(step).Status != model.StepCompleted {
			return i, nil
		}
	}
	return len(model.StepOrder), nil
}

func (o *Orchestrator) setStep(ctx context.Context, entityID, step string, status model.StepStatus, errText string) error {
	err := o.store.SetStepStatus(ctx, entityID, step, model.StepState{
		Status:    status,
		UpdatedAt: time.Now().UTC(),
		Error:     errText,
	})
	return eris.Wrapf(err, "orchestrator: persist %s=%s", step, status)
}

// execute runs one step against the in-memory entity. Mutations are only
// persisted by the caller after success.
func (o *Orchestrator) execute(ctx context.Context, step string, entity *model.Entity) ([]normalize.Conflict, error) {
	ctx, cancel := o.stepContext(ctx)
	defer cancel()

	switch step {
	case model.StepFetchGeo:
		payload, err := o.geodata.Fetch(ctx, entity)
		if err != nil {
			return nil, err
		}
		return o.merge(entity, *payload, &entity.RawGeodata, payload)

	case model.StepCrawl:
		payload, err := o.crawl.Fetch(ctx, entity)
		if err != nil {
			return nil, err
		}
		return o.merge(entity, *payload, &entity.RawCrawl, payload)

	case model.StepEnhance:
		payload, err := o.enhance.Fetch(ctx, entity)
		if err != nil {
			return nil, err
		}
		return o.merge(entity, *payload, &entity.RawEnhance, payload)

	case model.StepImages:
		candidates, err := imageCandidates(entity)
		if err != nil {
			return nil, err
		}
		result, err := o.images.Process(ctx, entity, candidates)
		if err != nil {
			return nil, err
		}
		if result.Hero != nil {
			entity.HeroImageURL = &result.Hero.URL
		}
		return nil, nil

	case model.StepFinalize:
		finalize(entity)
		return nil, nil
	}
	return nil, eris.Errorf("orchestrator: unknown step %q", step)
}

func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	secs := o.cfg.Pipeline.StepTimeoutSecs
	if secs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(secs)*time.Second)
}

// merge normalizes the payload into the entity and stashes the payload
// JSON (which carries the provider's verbatim response) on the raw slot.
func (o *Orchestrator) merge(entity *model.Entity, payload model.Payload, rawSlot *json.RawMessage, full any) ([]normalize.Conflict, error) {
	merged, conflicts := normalize.Normalize(payload, *entity, o.thresholds)
	*entity = merged

	raw, err := json.Marshal(full)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: marshal payload")
	}
	*rawSlot = raw
	return conflicts, nil
}

// imageCandidates recovers photo URLs from the persisted geodata payload,
// so the images step works on resumed runs too.
func imageCandidates(entity *model.Entity) ([]gallery.Candidate, error) {
	if len(entity.RawGeodata) == 0 {
		return nil, nil
	}
	var payload model.GeodataPayload
	if err := json.Unmarshal(entity.RawGeodata, &payload); err != nil {
		return nil, eris.Wrap(err, "orchestrator: decode stored geodata")
	}

	candidates := make([]gallery.Candidate, 0, len(payload.PhotoURLs))
	for _, url := range payload.PhotoURLs {
		candidates = append(candidates, gallery.Candidate{
			SourceURL: url,
			AltText:   entity.Name,
		})
	}
	return candidates, nil
}

// finalize fills derived summary fields that later consumers expect, never
// overwriting values earlier steps produced.
func finalize(e *model.Entity) {
	if e.SEOTitle == nil || *e.SEOTitle == "" {
		title := e.Name
		if e.Area != "" {
			title = fmt.Sprintf("%s | %s", e.Name, cases.Title(language.English).String(e.Area))
		}
		e.SEOTitle = &title
	}
	if (e.SEODescription == nil || *e.SEODescription == "") && e.ShortDescription != nil {
		desc := *e.ShortDescription
		e.SEODescription = &desc
	}
	if e.Rating == nil && len(e.SourceRatings) > 0 {
		sum := 0.0
		for _, score := range e.SourceRatings {
			sum += score
		}
		avg := sum / float64(len(e.SourceRatings))
		e.Rating = &avg
	}
	if e.Slug == "" {
		e.Slug = gallery.Sanitize(e.Name)
	}
}
