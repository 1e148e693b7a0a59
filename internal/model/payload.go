package model

import "encoding/json"

// Provider identifies the external capability a payload came from.
type Provider string

const (
	ProviderGeodata Provider = "geodata"
	ProviderCrawl   Provider = "crawl"
	ProviderEnhance Provider = "enhance"
)

// Payload is a tagged provider response. Each provider has exactly one
// shape; the normalizer is the only boundary that converts payloads into
// canonical entity fields, so raw shapes never leak past it.
type Payload interface {
	Provider() Provider
}

// HoursPayload carries operating hours in either of the two shapes
// upstream providers use: a day-keyed map or a list of {day, hours} pairs.
type HoursPayload struct {
	ByDay map[string]string `json:"by_day,omitempty"`
	List  []DayHours        `json:"list,omitempty"`
}

// DayHours is one {day, hours} pair from a list-shaped hours response.
type DayHours struct {
	Day   string `json:"day"`
	Hours string `json:"hours"`
}

// GeodataPayload is the mapped subset of a places/geodata lookup. Raw holds
// the untouched response for audit.
type GeodataPayload struct {
	Name        string           `json:"name,omitempty"`
	Address     string           `json:"address,omitempty"`
	Latitude    float64          `json:"latitude,omitempty"`
	Longitude   float64          `json:"longitude,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Website     string           `json:"website,omitempty"`
	Rating      float64          `json:"rating,omitempty"`
	ReviewCount int              `json:"review_count,omitempty"`
	PriceLevel  string           `json:"price_level,omitempty"` // symbolic, enum, or numeric text
	Hours       HoursPayload     `json:"hours,omitempty"`
	Popularity  map[string][]int `json:"popularity,omitempty"` // lowercase day -> hour-indexed occupancy
	PhotoURLs   []string         `json:"photo_urls,omitempty"`
	Raw         json.RawMessage  `json:"raw,omitempty"`
}

func (GeodataPayload) Provider() Provider { return ProviderGeodata }

// CrawlResult is one page/result snippet from the crawl provider.
type CrawlResult struct {
	URL       string            `json:"url"`
	Extracted map[string]string `json:"extracted,omitempty"`
}

// CrawlPayload groups crawl results per logical sub-query (general info,
// social discovery, review aggregators).
type CrawlPayload struct {
	Sections map[string][]CrawlResult `json:"sections,omitempty"`
	Raw      json.RawMessage          `json:"raw,omitempty"`
}

func (CrawlPayload) Provider() Provider { return ProviderCrawl }

// EnhancePayload is the AI text-generation result for an entity.
type EnhancePayload struct {
	Description      string          `json:"description,omitempty"`
	ShortDescription string          `json:"short_description,omitempty"`
	SEOTitle         string          `json:"seo_title,omitempty"`
	SEODescription   string          `json:"seo_description,omitempty"`
	SEOKeywords      []string        `json:"seo_keywords,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

func (EnhancePayload) Provider() Provider { return ProviderEnhance }
