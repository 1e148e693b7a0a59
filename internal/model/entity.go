package model

import (
	"encoding/json"
	"time"
)

// Entity is one directory item (restaurant, hotel, mall, attraction,
// school, fitness venue). Every optional scalar is a pointer: absent means
// nil, never a zero sentinel.
type Entity struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`

	// Location
	Address   string   `json:"address,omitempty"`
	Area      string   `json:"area,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Contact
	Phone   *string           `json:"phone,omitempty"`
	Website *string           `json:"website,omitempty"`
	Email   *string           `json:"email,omitempty"`
	Social  map[string]string `json:"social,omitempty"` // network -> handle/url

	// Commercial descriptors. PriceTier is 1-4 or nil; zero is never stored.
	PriceTier *int `json:"price_tier,omitempty"`

	// Ratings
	Rating        *float64           `json:"rating,omitempty"`
	ReviewCount   *int               `json:"review_count,omitempty"`
	SourceRatings map[string]float64 `json:"source_ratings,omitempty"` // provider -> score

	// Free-text content
	Description      *string  `json:"description,omitempty"`
	ShortDescription *string  `json:"short_description,omitempty"`
	SEOTitle         *string  `json:"seo_title,omitempty"`
	SEODescription   *string  `json:"seo_description,omitempty"`
	SEOKeywords      []string `json:"seo_keywords,omitempty"`

	// Structured extras
	Hours        map[string]string `json:"hours,omitempty"`         // lowercase day -> hours string
	BusyWindows  map[string]string `json:"busy_windows,omitempty"`  // lowercase day -> "start:00-end:00"
	QuietWindows map[string]string `json:"quiet_windows,omitempty"` // lowercase day -> "start:00-end:00"
	AmenityIDs   []string          `json:"amenity_ids,omitempty"`
	CategoryIDs  []string          `json:"category_ids,omitempty"`

	// Denormalized hero image URL, mirrored from the gallery item that
	// carries the hero flag. Maintained by the store, never set directly.
	HeroImageURL *string `json:"hero_image_url,omitempty"`

	// Raw provider payloads, preserved verbatim for audit and replay.
	RawGeodata json.RawMessage `json:"raw_geodata,omitempty"`
	RawCrawl   json.RawMessage `json:"raw_crawl,omitempty"`
	RawEnhance json.RawMessage `json:"raw_enhance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceTierValue returns the tier and whether one is set. Zero is treated
// as absent to defend against the historical zero-tier defect.
func (e *Entity) PriceTierValue() (int, bool) {
	if e.PriceTier == nil || *e.PriceTier <= 0 {
		return 0, false
	}
	return *e.PriceTier, true
}
