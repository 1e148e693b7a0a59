package model

import "time"

// GalleryImage belongs to exactly one entity. At most one image per entity
// carries the hero flag; the store enforces that invariant.
type GalleryImage struct {
	ID            string    `json:"id"`
	EntityID      string    `json:"entity_id"`
	URL           string    `json:"url"`        // public URL in durable storage
	SourceURL     string    `json:"source_url"` // where the image came from
	AltText       string    `json:"alt_text,omitempty"`
	Approved      bool      `json:"approved"`
	DisplayOrder  int       `json:"display_order"` // dense, starting at 1
	QualityScore  *float64  `json:"quality_score,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	AIDescription string    `json:"ai_description,omitempty"`
	Hero          bool      `json:"hero"`
	CreatedAt     time.Time `json:"created_at"`
}
