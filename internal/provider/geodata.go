package provider

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/internal/resilience"
	"github.com/venuedex/enrich-cli/pkg/places"
)

// GeodataAdapter resolves an entity against the geodata provider and maps
// the best match into a GeodataPayload.
type GeodataAdapter struct {
	client  places.Client
	limiter *rate.Limiter
	cfg     *config.PlacesConfig
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewGeodataAdapter creates a GeodataAdapter with the provider's rate
// limit and retry policy applied.
func NewGeodataAdapter(client places.Client, cfg *config.PlacesConfig) *GeodataAdapter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("geodata", "text_search")
	return &GeodataAdapter{
		client:  client,
		limiter: newLimiter(cfg.RateLimit),
		cfg:     cfg,
		retry:   retry,
		breaker: resilience.NewBreaker("geodata", resilience.BreakerConfig{}),
	}
}

// Fetch looks up the entity by name and area. A lookup with zero matches
// is a permanent failure: retrying the same query cannot succeed.
func (a *GeodataAdapter) Fetch(ctx context.Context, entity *model.Entity) (*model.GeodataPayload, error) {
	log := zap.L().With(
		zap.String("provider", "geodata"),
		zap.String("entity_id", entity.ID),
	)

	query := entity.Name
	if entity.Area != "" {
		query += " " + entity.Area
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geodata: rate limit wait")
	}

	start := time.Now()
	resp, err := resilience.Guard(ctx, a.breaker, func(ctx context.Context) (*places.TextSearchResponse, error) {
		return resilience.Do(ctx, a.retry, func(ctx context.Context) (*places.TextSearchResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout(a.cfg.TimeoutSecs, 30))
			defer cancel()
			resp, err := a.client.TextSearch(ctx, places.TextSearchRequest{TextQuery: query, PageSize: 1})
			return resp, classify(err)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: text search %q", query)
	}
	if len(resp.Places) == 0 {
		return nil, resilience.NewPermanentError(eris.Errorf("geodata: no match for %q", query), 0)
	}

	place := resp.Places[0]
	payload := a.mapPlace(place)
	payload.Raw = resp.Raw

	log.Info("geodata fetched",
		zap.String("query", query),
		zap.Int("photos", len(payload.PhotoURLs)),
		zap.Duration("duration", time.Since(start)),
	)
	return payload, nil
}

func (a *GeodataAdapter) mapPlace(p places.Place) *model.GeodataPayload {
	payload := &model.GeodataPayload{
		Name:        p.DisplayName.Text,
		Address:     p.FormattedAddress,
		Latitude:    p.Location.Latitude,
		Longitude:   p.Location.Longitude,
		Phone:       p.NationalPhone,
		Website:     p.WebsiteURI,
		Rating:      p.Rating,
		ReviewCount: p.UserRatingCount,
		PriceLevel:  p.PriceLevel,
		Popularity:  p.PopularTimes,
	}

	for _, desc := range p.OpeningHours.WeekdayDescriptions {
		// "Monday: 9:00 AM – 9:00 PM"
		day, hours, ok := strings.Cut(desc, ": ")
		if !ok {
			continue
		}
		payload.Hours.List = append(payload.Hours.List, model.DayHours{Day: day, Hours: hours})
	}

	maxPhotos := a.cfg.MaxPhotos
	if maxPhotos <= 0 {
		maxPhotos = 10
	}
	for i, photo := range p.Photos {
		if i >= maxPhotos {
			break
		}
		payload.PhotoURLs = append(payload.PhotoURLs, a.client.PhotoURL(photo.Name, 1600))
	}
	return payload
}
