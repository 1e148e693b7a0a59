// Package gallery ingests candidate images for an entity: download, optional
// AI analysis, durable storage, and gallery bookkeeping with a single hero.
package gallery

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/venuedex/enrich-cli/internal/blob"
	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/pkg/anthropic"
)

// Store is the slice of the persistence layer the pipeline needs.
type Store interface {
	ListImages(ctx context.Context, entityID string) ([]model.GalleryImage, error)
	AddImage(ctx context.Context, img *model.GalleryImage) error
	SetHero(ctx context.Context, entityID, imageID string) error
}

// Candidate is one image proposed for an entity's gallery.
type Candidate struct {
	SourceURL string
	AltText   string
}

// Result summarizes one pipeline invocation.
type Result struct {
	Stored   int
	Skipped  int // already present by source URL
	Analyzed int
	Hero     *model.GalleryImage
}

// Pipeline processes image candidates for entities.
type Pipeline struct {
	store    Store
	uploader blob.Uploader
	ai       anthropic.Client
	fetcher  Fetcher
	cfg      *config.ImagesConfig
	aiCfg    *config.AnthropicConfig

	now func() time.Time
}

// NewPipeline creates an image pipeline.
func NewPipeline(st Store, up blob.Uploader, ai anthropic.Client, fetcher Fetcher, cfg *config.ImagesConfig, aiCfg *config.AnthropicConfig) *Pipeline {
	return &Pipeline{
		store:    st,
		uploader: up,
		ai:       ai,
		fetcher:  fetcher,
		cfg:      cfg,
		aiCfg:    aiCfg,
		now:      time.Now,
	}
}

// Process ingests candidates for the entity. Candidates whose source URL is
// already in the gallery are skipped, which makes re-running the step safe.
// Analysis runs synchronously only when the incoming batch is smaller than
// the configured threshold; larger batches are stored without AI metadata
// to bound latency and spend.
func (p *Pipeline) Process(ctx context.Context, entity *model.Entity, candidates []Candidate) (*Result, error) {
	log := zap.L().With(
		zap.String("step", model.StepImages),
		zap.String("entity_id", entity.ID),
	)

	existing, err := p.store.ListImages(ctx, entity.ID)
	if err != nil {
		return nil, eris.Wrap(err, "gallery: list existing")
	}
	seen := make(map[string]bool, len(existing))
	var currentHero *model.GalleryImage
	bestScore := 0.0
	for i := range existing {
		img := existing[i]
		if img.SourceURL != "" {
			seen[img.SourceURL] = true
		}
		if img.Hero {
			currentHero = &existing[i]
		}
		if img.QualityScore != nil && *img.QualityScore > bestScore {
			bestScore = *img.QualityScore
		}
	}

	fresh := make([]Candidate, 0, len(candidates))
	result := &Result{Hero: currentHero}
	for _, c := range candidates {
		if c.SourceURL == "" || seen[c.SourceURL] {
			result.Skipped++
			continue
		}
		seen[c.SourceURL] = true
		fresh = append(fresh, c)
	}

	if max := p.cfg.MaxPerEntity; max > 0 {
		room := max - len(existing)
		if room < 0 {
			room = 0
		}
		if len(fresh) > room {
			result.Skipped += len(fresh) - room
			fresh = fresh[:room]
		}
	}

	analyze := p.shouldAnalyze(len(fresh))

	for _, c := range fresh {
		img, analyzed, err := p.ingest(ctx, entity, c, analyze)
		if err != nil {
			// One bad image must not sink the rest of the batch.
			log.Warn("image ingest failed",
				zap.String("source_url", c.SourceURL),
				zap.Error(err),
			)
			continue
		}
		result.Stored++
		if analyzed {
			result.Analyzed++
		}

		if p.cfg.AutoHero && img.QualityScore != nil && result.Hero == nil && *img.QualityScore > bestScore {
			if err := p.store.SetHero(ctx, entity.ID, img.ID); err != nil {
				return nil, eris.Wrap(err, "gallery: auto hero")
			}
			img.Hero = true
			result.Hero = img
			bestScore = *img.QualityScore
		}
	}

	log.Info("gallery processed",
		zap.Int("stored", result.Stored),
		zap.Int("skipped", result.Skipped),
		zap.Int("analyzed", result.Analyzed),
	)
	return result, nil
}

// shouldAnalyze applies the hybrid latency/cost rule: small batches get
// synchronous analysis, large ones are stored bare.
func (p *Pipeline) shouldAnalyze(batch int) bool {
	threshold := p.cfg.AnalysisThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return batch > 0 && batch < threshold
}

func (p *Pipeline) ingest(ctx context.Context, entity *model.Entity, c Candidate, analyze bool) (*model.GalleryImage, bool, error) {
	data, contentType, err := p.fetcher.Fetch(ctx, c.SourceURL)
	if err != nil {
		return nil, false, eris.Wrap(err, "gallery: fetch source")
	}

	img := &model.GalleryImage{
		EntityID:  entity.ID,
		SourceURL: c.SourceURL,
		AltText:   c.AltText,
	}

	name := ""
	analyzed := false
	if analyze {
		analysis, err := p.ai.AnalyzeImage(ctx, anthropic.ImageRequest{
			Model:      p.aiCfg.VisionModel,
			MaxTokens:  1024,
			MediaType:  contentType,
			Data:       data,
			EntityName: entity.Name,
		})
		if err != nil {
			// Analysis is best-effort; the image is still stored.
			zap.L().Warn("image analysis failed",
				zap.String("entity_id", entity.ID),
				zap.Error(err),
			)
		} else {
			analysis.Usage.LogCost(p.aiCfg.VisionModel, model.StepImages)
			analyzed = true
			score := analysis.QualityScore
			img.QualityScore = &score
			img.Tags = analysis.Tags
			img.AIDescription = analysis.AltText
			img.Approved = true
			if img.AltText == "" {
				img.AltText = analysis.AltText
			}
			name = analysis.SuggestedName
		}
	}

	key := fmt.Sprintf("galleries/%s/%s%s", entity.ID, p.filename(name), extensionFor(contentType))
	url, err := p.uploader.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, false, eris.Wrap(err, "gallery: upload")
	}
	img.URL = url

	if err := p.store.AddImage(ctx, img); err != nil {
		return nil, false, eris.Wrap(err, "gallery: add image")
	}
	return img, analyzed, nil
}

// filename derives a storage name from the AI suggestion, falling back to
// a timestamp when no suggestion is available.
func (p *Pipeline) filename(suggested string) string {
	if s := Sanitize(suggested); s != "" {
		return s
	}
	return p.now().UTC().Format("20060102-150405.000")
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
