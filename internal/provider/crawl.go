package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/internal/resilience"
	"github.com/venuedex/enrich-cli/pkg/firecrawl"
)

// crawlSections are the sub-queries run per entity. Each feeds one section
// of the CrawlPayload.
var crawlSections = []struct {
	name  string
	query string
}{
	{"general", "%s %s contact hours"},
	{"social", "%s %s instagram facebook"},
	{"reviews", "%s %s reviews"},
}

// CrawlAdapter runs web search sub-queries through the crawl provider and
// extracts contact and social fields from the result snippets.
type CrawlAdapter struct {
	client  firecrawl.Client
	limiter *rate.Limiter
	cfg     *config.FirecrawlConfig
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewCrawlAdapter creates a CrawlAdapter.
func NewCrawlAdapter(client firecrawl.Client, cfg *config.FirecrawlConfig) *CrawlAdapter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("crawl", "search")
	return &CrawlAdapter{
		client:  client,
		limiter: newLimiter(cfg.RateLimit),
		cfg:     cfg,
		retry:   retry,
		breaker: resilience.NewBreaker("crawl", resilience.BreakerConfig{}),
	}
}

// Fetch runs every crawl section for the entity. A section that returns
// zero results is recorded as empty, not an error: sparse web presence is
// normal for small venues.
func (a *CrawlAdapter) Fetch(ctx context.Context, entity *model.Entity) (*model.CrawlPayload, error) {
	log := zap.L().With(
		zap.String("provider", "crawl"),
		zap.String("entity_id", entity.ID),
	)

	payload := &model.CrawlPayload{Sections: map[string][]model.CrawlResult{}}
	raws := map[string]json.RawMessage{}
	start := time.Now()

	for _, section := range crawlSections {
		query := strings.Join(strings.Fields(fmt.Sprintf(section.query, entity.Name, entity.Area)), " ")

		if err := a.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "crawl: rate limit wait")
		}

		resp, err := resilience.Guard(ctx, a.breaker, func(ctx context.Context) (*firecrawl.SearchResponse, error) {
			return resilience.Do(ctx, a.retry, func(ctx context.Context) (*firecrawl.SearchResponse, error) {
				ctx, cancel := context.WithTimeout(ctx, timeout(a.cfg.TimeoutSecs, 90))
				defer cancel()
				resp, err := a.client.Search(ctx, firecrawl.SearchRequest{
					Query: query,
					Limit: a.maxResults(),
				})
				return resp, classify(err)
			})
		})
		if err != nil {
			return nil, eris.Wrapf(err, "crawl: search section %s", section.name)
		}

		results := make([]model.CrawlResult, 0, len(resp.Data))
		for _, hit := range resp.Data {
			results = append(results, model.CrawlResult{
				URL:       hit.URL,
				Extracted: extractFields(section.name, hit),
			})
		}
		payload.Sections[section.name] = results
		raws[section.name] = resp.Raw
	}

	// The entity's own site is the most reliable source for contact
	// details, so scrape it when we know where it lives. A failed scrape
	// degrades to search-only results.
	if site := websiteURL(entity, payload); site != "" {
		if err := a.scrapeWebsite(ctx, site, payload, raws); err != nil {
			log.Warn("website scrape failed", zap.String("url", site), zap.Error(err))
		}
	}

	raw, err := json.Marshal(raws)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: marshal raw sections")
	}
	payload.Raw = raw

	log.Info("crawl fetched",
		zap.Int("sections", len(payload.Sections)),
		zap.Duration("duration", time.Since(start)),
	)
	return payload, nil
}

// websiteURL picks the page to scrape: the entity's known website when
// present, otherwise the first site the general section surfaced.
func websiteURL(entity *model.Entity, payload *model.CrawlPayload) string {
	if entity.Website != nil && *entity.Website != "" {
		return *entity.Website
	}
	for _, hit := range payload.Sections["general"] {
		if w := hit.Extracted["website"]; w != "" {
			return w
		}
	}
	return ""
}

// scrapeWebsite fetches the site as markdown and runs contact extraction
// over the page body, recording the result as the "website" section.
func (a *CrawlAdapter) scrapeWebsite(ctx context.Context, url string, payload *model.CrawlPayload, raws map[string]json.RawMessage) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "crawl: rate limit wait")
	}

	resp, err := resilience.Guard(ctx, a.breaker, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return resilience.Do(ctx, a.retry, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout(a.cfg.TimeoutSecs, 90))
			defer cancel()
			resp, err := a.client.Scrape(ctx, firecrawl.ScrapeRequest{
				URL:     url,
				Formats: []string{"markdown"},
			})
			return resp, classify(err)
		})
	})
	if err != nil {
		return eris.Wrapf(err, "crawl: scrape %s", url)
	}

	payload.Sections["website"] = []model.CrawlResult{{
		URL: url,
		Extracted: extractFields("website", firecrawl.SearchResult{
			URL:      resp.Data.URL,
			Title:    resp.Data.Title,
			Markdown: resp.Data.Markdown,
		}),
	}}
	raws["website"] = resp.Raw
	return nil
}

func (a *CrawlAdapter) maxResults() int {
	if a.cfg.MaxResults > 0 {
		return a.cfg.MaxResults
	}
	return 5
}

var (
	phoneRe = regexp.MustCompile(`\+?[\d][\d\s().-]{7,14}\d`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// extractFields pulls structured fields out of a search hit. The social
// section keys results by network name; other sections look for contact
// details in the snippet text.
func extractFields(section string, hit firecrawl.SearchResult) map[string]string {
	out := map[string]string{}
	text := hit.Title + " " + hit.Description + " " + hit.Markdown

	if section == "social" {
		for _, network := range []string{"instagram", "facebook", "tiktok", "x.com"} {
			if strings.Contains(hit.URL, network) {
				name := network
				if network == "x.com" {
					name = "x"
				}
				out[name] = hit.URL
			}
		}
		return out
	}

	if m := phoneRe.FindString(text); m != "" {
		out["phone"] = strings.TrimSpace(m)
	}
	if m := emailRe.FindString(text); m != "" {
		out["email"] = m
	}
	if section == "general" && hit.URL != "" && !isAggregator(hit.URL) {
		out["website"] = hit.URL
	}
	return out
}

// isAggregator filters out directory and review sites that would otherwise
// be mistaken for the entity's own website.
func isAggregator(url string) bool {
	for _, host := range []string{"yelp.", "tripadvisor.", "facebook.", "instagram.", "google.", "opentable."} {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}
