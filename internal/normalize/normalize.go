// Package normalize converts raw provider payloads into canonical entity
// fields. Everything here is pure and deterministic: no I/O, no clocks.
package normalize

import (
	"fmt"
	"strings"

	"github.com/venuedex/enrich-cli/internal/model"
)

// Fields is the canonical field set a single payload can contribute. Nil
// pointers and nil maps mean "this payload said nothing about the field".
type Fields struct {
	Name             *string
	Address          *string
	Latitude         *float64
	Longitude        *float64
	Phone            *string
	Website          *string
	Email            *string
	Social           map[string]string
	PriceTier        *int
	Rating           *float64
	ReviewCount      *int
	Description      *string
	ShortDescription *string
	SEOTitle         *string
	SEODescription   *string
	SEOKeywords      []string
	Hours            map[string]string
	BusyWindows      map[string]string
	QuietWindows     map[string]string
}

// Conflict records two providers disagreeing about a field. Conflicts are
// reported, never fatal, and never block the first writer's value.
type Conflict struct {
	Field    string `json:"field"`
	Source   string `json:"source"`
	Existing string `json:"existing"`
	Incoming string `json:"incoming"`
}

// Normalize extracts canonical fields from a provider payload and merges
// them into a copy of the current entity. Merge policy is first-writer-wins:
// a field that already holds a non-empty value is never overwritten, and a
// differing incoming value is recorded as a conflict instead.
func Normalize(payload model.Payload, current model.Entity, th Thresholds) (model.Entity, []Conflict) {
	return Apply(current, Extract(payload, th), string(payload.Provider()))
}

// Extract converts one payload variant into candidate fields.
func Extract(payload model.Payload, th Thresholds) Fields {
	switch p := payload.(type) {
	case model.GeodataPayload:
		return extractGeodata(p, th)
	case model.CrawlPayload:
		return extractCrawl(p)
	case model.EnhancePayload:
		return extractEnhance(p)
	default:
		return Fields{}
	}
}

func extractGeodata(p model.GeodataPayload, th Thresholds) Fields {
	f := Fields{
		Name:      optString(p.Name),
		Address:   optString(p.Address),
		Phone:     optString(p.Phone),
		Website:   optString(p.Website),
		PriceTier: PriceTier(p.PriceLevel),
		Hours:     Hours(p.Hours),
	}
	if p.Latitude != 0 || p.Longitude != 0 {
		lat, lng := p.Latitude, p.Longitude
		f.Latitude, f.Longitude = &lat, &lng
	}
	if p.Rating > 0 {
		r := p.Rating
		f.Rating = &r
	}
	if p.ReviewCount > 0 {
		n := p.ReviewCount
		f.ReviewCount = &n
	}
	f.BusyWindows, f.QuietWindows = Windows(p.Popularity, th)
	return f
}

// crawl snippet keys the adapter maps extracted fields under.
const (
	crawlKeyPhone   = "phone"
	crawlKeyWebsite = "website"
	crawlKeyEmail   = "email"
)

func extractCrawl(p model.CrawlPayload) Fields {
	var f Fields
	social := make(map[string]string)

	for section, results := range p.Sections {
		for _, r := range results {
			for key, val := range r.Extracted {
				val = strings.TrimSpace(val)
				if val == "" {
					continue
				}
				switch key {
				case crawlKeyPhone:
					if f.Phone == nil {
						f.Phone = &val
					}
				case crawlKeyWebsite:
					if f.Website == nil {
						f.Website = &val
					}
				case crawlKeyEmail:
					if f.Email == nil {
						f.Email = &val
					}
				default:
					if section == "social" {
						if _, seen := social[key]; !seen {
							social[key] = val
						}
					}
				}
			}
		}
	}

	if len(social) > 0 {
		f.Social = social
	}
	return f
}

func extractEnhance(p model.EnhancePayload) Fields {
	return Fields{
		Description:      optString(p.Description),
		ShortDescription: optString(p.ShortDescription),
		SEOTitle:         optString(p.SEOTitle),
		SEODescription:   optString(p.SEODescription),
		SEOKeywords:      p.SEOKeywords,
	}
}

// Apply merges fields into a copy of the entity, first writer wins.
func Apply(e model.Entity, f Fields, source string) (model.Entity, []Conflict) {
	var conflicts []Conflict

	record := func(field, existing, incoming string) {
		conflicts = append(conflicts, Conflict{
			Field:    field,
			Source:   source,
			Existing: existing,
			Incoming: incoming,
		})
	}

	setStr := func(field string, dst **string, src *string) {
		if src == nil || strings.TrimSpace(*src) == "" {
			return
		}
		if *dst == nil || strings.TrimSpace(**dst) == "" {
			v := *src
			*dst = &v
			return
		}
		if **dst != *src {
			record(field, **dst, *src)
		}
	}

	if f.Name != nil && *f.Name != "" {
		if e.Name == "" {
			e.Name = *f.Name
		} else if e.Name != *f.Name {
			record("name", e.Name, *f.Name)
		}
	}
	if f.Address != nil && *f.Address != "" {
		if e.Address == "" {
			e.Address = *f.Address
		} else if e.Address != *f.Address {
			record("address", e.Address, *f.Address)
		}
	}

	if f.Latitude != nil && f.Longitude != nil {
		if e.Latitude == nil || e.Longitude == nil {
			lat, lng := *f.Latitude, *f.Longitude
			e.Latitude, e.Longitude = &lat, &lng
		} else if *e.Latitude != *f.Latitude || *e.Longitude != *f.Longitude {
			record("coordinates",
				fmt.Sprintf("%v,%v", *e.Latitude, *e.Longitude),
				fmt.Sprintf("%v,%v", *f.Latitude, *f.Longitude))
		}
	}

	setStr("phone", &e.Phone, f.Phone)
	setStr("website", &e.Website, f.Website)
	setStr("email", &e.Email, f.Email)
	setStr("description", &e.Description, f.Description)
	setStr("short_description", &e.ShortDescription, f.ShortDescription)
	setStr("seo_title", &e.SEOTitle, f.SEOTitle)
	setStr("seo_description", &e.SEODescription, f.SEODescription)

	if f.PriceTier != nil && *f.PriceTier > 0 {
		if _, has := e.PriceTierValue(); !has {
			v := *f.PriceTier
			e.PriceTier = &v
		} else if *e.PriceTier != *f.PriceTier {
			record("price_tier",
				fmt.Sprintf("%d", *e.PriceTier),
				fmt.Sprintf("%d", *f.PriceTier))
		}
	}

	if f.Rating != nil {
		if e.Rating == nil {
			v := *f.Rating
			e.Rating = &v
		} else if *e.Rating != *f.Rating {
			record("rating",
				fmt.Sprintf("%v", *e.Rating),
				fmt.Sprintf("%v", *f.Rating))
		}
		if e.SourceRatings == nil {
			e.SourceRatings = make(map[string]float64)
		}
		e.SourceRatings[source] = *f.Rating
	}
	if f.ReviewCount != nil && e.ReviewCount == nil {
		v := *f.ReviewCount
		e.ReviewCount = &v
	}

	if len(f.Social) > 0 {
		if e.Social == nil {
			e.Social = make(map[string]string)
		}
		for network, handle := range f.Social {
			if existing, ok := e.Social[network]; ok {
				if existing != handle {
					record("social."+network, existing, handle)
				}
				continue
			}
			e.Social[network] = handle
		}
	}

	if len(f.Hours) > 0 && len(e.Hours) == 0 {
		e.Hours = f.Hours
	}
	if len(f.BusyWindows) > 0 && len(e.BusyWindows) == 0 {
		e.BusyWindows = f.BusyWindows
	}
	if len(f.QuietWindows) > 0 && len(e.QuietWindows) == 0 {
		e.QuietWindows = f.QuietWindows
	}
	if len(f.SEOKeywords) > 0 && len(e.SEOKeywords) == 0 {
		e.SEOKeywords = f.SEOKeywords
	}

	return e, conflicts
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
