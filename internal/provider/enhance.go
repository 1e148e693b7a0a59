package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/internal/registry"
	"github.com/venuedex/enrich-cli/internal/resilience"
	"github.com/venuedex/enrich-cli/pkg/anthropic"
)

// EnhanceAdapter generates description and SEO content from the facts
// accumulated by earlier steps.
type EnhanceAdapter struct {
	client     anthropic.Client
	cfg        *config.AnthropicConfig
	categories *registry.Registry
	retry      resilience.RetryConfig
	breaker    *resilience.Breaker
}

// NewEnhanceAdapter creates an EnhanceAdapter. categories may be nil;
// labels then fall back to the raw category IDs.
func NewEnhanceAdapter(client anthropic.Client, cfg *config.AnthropicConfig, categories *registry.Registry) *EnhanceAdapter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("enhance", "generate_content")
	return &EnhanceAdapter{
		client:     client,
		cfg:        cfg,
		categories: categories,
		retry:      retry,
		breaker:    resilience.NewBreaker("enhance", resilience.BreakerConfig{}),
	}
}

// Fetch builds a fact sheet from the entity's canonical fields and asks
// the model for content. Facts stay key-value so the prompt is stable
// regardless of which earlier steps populated the entity.
func (a *EnhanceAdapter) Fetch(ctx context.Context, entity *model.Entity) (*model.EnhancePayload, error) {
	log := zap.L().With(
		zap.String("provider", "enhance"),
		zap.String("entity_id", entity.ID),
	)

	start := time.Now()
	resp, err := resilience.Guard(ctx, a.breaker, func(ctx context.Context) (*anthropic.ContentResponse, error) {
		return resilience.Do(ctx, a.retry, func(ctx context.Context) (*anthropic.ContentResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout(a.cfg.TimeoutSecs, 120))
			defer cancel()
			category := firstCategory(entity)
			facts := entityFacts(entity)
			if hints := a.categories.Keywords(category); len(hints) > 0 {
				facts["keyword_hints"] = strings.Join(hints, ", ")
			}
			resp, err := a.client.GenerateContent(ctx, anthropic.ContentRequest{
				Model:      a.cfg.Model,
				MaxTokens:  int64(a.cfg.MaxTokens),
				EntityName: entity.Name,
				Category:   a.categories.Label(category),
				Facts:      facts,
			})
			if err != nil {
				// SDK errors are wrapped without status; let the retry loop
				// take its three attempts on anything rate-limit shaped.
				return nil, &resilience.TransientError{Err: err}
			}
			return resp, nil
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "enhance: generate content for %s", entity.Name)
	}

	resp.Usage.LogCost(a.cfg.Model, model.StepEnhance)
	log.Info("enhance fetched",
		zap.Int("keywords", len(resp.SEOKeywords)),
		zap.Duration("duration", time.Since(start)),
	)

	return &model.EnhancePayload{
		Description:      resp.Description,
		ShortDescription: resp.ShortDescription,
		SEOTitle:         resp.SEOTitle,
		SEODescription:   resp.SEODescription,
		SEOKeywords:      resp.SEOKeywords,
		Raw:              resp.Raw,
	}, nil
}

func firstCategory(e *model.Entity) string {
	if len(e.CategoryIDs) > 0 {
		return e.CategoryIDs[0]
	}
	return ""
}

// entityFacts flattens enriched entity fields into prompt facts.
func entityFacts(e *model.Entity) map[string]string {
	facts := map[string]string{"name": e.Name}
	if e.Area != "" {
		facts["area"] = e.Area
	}
	if e.Address != "" {
		facts["address"] = e.Address
	}
	if e.Phone != nil {
		facts["phone"] = *e.Phone
	}
	if e.Website != nil {
		facts["website"] = *e.Website
	}
	if e.Rating != nil {
		facts["rating"] = fmt.Sprintf("%.1f", *e.Rating)
	}
	if e.ReviewCount != nil {
		facts["review_count"] = fmt.Sprintf("%d", *e.ReviewCount)
	}
	if tier, ok := e.PriceTierValue(); ok {
		facts["price_tier"] = fmt.Sprintf("%d of 4", tier)
	}
	if len(e.Hours) > 0 {
		facts["days_open"] = fmt.Sprintf("%d days a week", len(e.Hours))
	}
	return facts
}
