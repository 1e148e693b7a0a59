// Package places is a thin client for the geodata provider (Places API v1
// wire shape). It maps only the fields the normalizer consumes; callers
// keep the raw body for audit.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// Client performs geodata lookups.
type Client interface {
	// TextSearch looks up places by free-text query.
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
	// PhotoURL resolves a photo reference into a fetchable media URL.
	PhotoURL(ref string, maxWidth int) string
}

// TextSearchRequest is the body for POST /places:searchText.
type TextSearchRequest struct {
	TextQuery string `json:"textQuery"`
	PageSize  int    `json:"pageSize,omitempty"`
}

// TextSearchResponse is the mapped response plus the verbatim body.
type TextSearchResponse struct {
	Places []Place `json:"places"`

	// Raw is the untouched response body, preserved for audit.
	Raw json.RawMessage `json:"-"`
}

// Place is one result from the geodata provider.
type Place struct {
	ID               string        `json:"id"`
	DisplayName      LocalizedText `json:"displayName"`
	FormattedAddress string        `json:"formattedAddress"`
	Location         LatLng        `json:"location"`
	Rating           float64       `json:"rating"`
	UserRatingCount  int           `json:"userRatingCount"`
	PriceLevel       string        `json:"priceLevel"`
	NationalPhone    string        `json:"nationalPhoneNumber"`
	WebsiteURI       string        `json:"websiteUri"`
	OpeningHours     OpeningHours  `json:"regularOpeningHours"`
	Photos           []Photo       `json:"photos"`

	// PopularTimes maps a lowercase day name to a 24-slot hourly occupancy
	// curve (0-100). Populated by enrichment-tier geodata plans only.
	PopularTimes map[string][]int `json:"popularTimes,omitempty"`
}

// LocalizedText holds a display string.
type LocalizedText struct {
	Text string `json:"text"`
}

// LatLng is a geographic coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OpeningHours holds weekly hours descriptions.
type OpeningHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

// Photo is a photo reference attached to a place.
type Photo struct {
	Name string `json:"name"` // resource name, e.g. "places/{id}/photos/{ref}"
}

// APIError is returned on any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("places: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a geodata client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

const fieldMask = "places.id,places.displayName,places.formattedAddress," +
	"places.location,places.rating,places.userRatingCount,places.priceLevel," +
	"places.nationalPhoneNumber,places.websiteUri,places.regularOpeningHours," +
	"places.photos"

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}
	result.Raw = respBody

	return &result, nil
}

func (c *httpClient) PhotoURL(ref string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 1600
	}
	return fmt.Sprintf("%s/%s/media?maxWidthPx=%d&key=%s", c.baseURL, ref, maxWidth, c.apiKey)
}
