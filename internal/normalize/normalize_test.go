package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuedex/enrich-cli/internal/model"
)

func strp(s string) *string { return &s }

func TestNormalize_Geodata(t *testing.T) {
	payload := model.GeodataPayload{
		Name:        "Blue Harbor Bistro",
		Address:     "12 Marina Walk",
		Latitude:    25.2048,
		Longitude:   55.2708,
		Phone:       "+971 4 555 0100",
		Website:     "https://blueharbor.example",
		Rating:      4.5,
		ReviewCount: 812,
		PriceLevel:  "PRICE_LEVEL_MODERATE",
		Hours: model.HoursPayload{
			List: []model.DayHours{{Day: "Monday", Hours: "9am-9pm"}},
		},
		Popularity: map[string][]int{
			"monday": {10, 15, 70, 80, 75, 20, 5},
		},
	}

	got, conflicts := Normalize(payload, model.Entity{ID: "e1"}, DefaultThresholds())

	assert.Empty(t, conflicts)
	assert.Equal(t, "Blue Harbor Bistro", got.Name)
	assert.Equal(t, "12 Marina Walk", got.Address)
	require.NotNil(t, got.PriceTier)
	assert.Equal(t, 2, *got.PriceTier)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 4.5, *got.Rating)
	assert.Equal(t, 4.5, got.SourceRatings["geodata"])
	assert.Equal(t, map[string]string{"monday": "9am-9pm"}, got.Hours)
	assert.Equal(t, map[string]string{"monday": "2:00-5:00"}, got.BusyWindows)
	assert.Equal(t, map[string]string{"monday": "0:00-2:00"}, got.QuietWindows)
}

func TestNormalize_FirstWriterWins(t *testing.T) {
	current := model.Entity{
		ID:    "e1",
		Phone: strp("+971 4 555 0100"),
	}

	payload := model.CrawlPayload{
		Sections: map[string][]model.CrawlResult{
			"general": {
				{URL: "https://dir.example/blue-harbor", Extracted: map[string]string{
					"phone": "+971 4 999 9999",
					"email": "hello@blueharbor.example",
				}},
			},
		},
	}

	got, conflicts := Normalize(payload, current, DefaultThresholds())

	// Existing phone survives; the disagreement is recorded, not applied.
	require.NotNil(t, got.Phone)
	assert.Equal(t, "+971 4 555 0100", *got.Phone)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "phone", conflicts[0].Field)
	assert.Equal(t, "crawl", conflicts[0].Source)
	assert.Equal(t, "+971 4 999 9999", conflicts[0].Incoming)

	// Empty field still fills.
	require.NotNil(t, got.Email)
	assert.Equal(t, "hello@blueharbor.example", *got.Email)
}

func TestNormalize_AgreementIsNotAConflict(t *testing.T) {
	current := model.Entity{ID: "e1", Phone: strp("+1 555 0100")}
	payload := model.CrawlPayload{
		Sections: map[string][]model.CrawlResult{
			"general": {{URL: "u", Extracted: map[string]string{"phone": "+1 555 0100"}}},
		},
	}

	_, conflicts := Normalize(payload, current, DefaultThresholds())
	assert.Empty(t, conflicts)
}

func TestNormalize_CrawlSocialDiscovery(t *testing.T) {
	payload := model.CrawlPayload{
		Sections: map[string][]model.CrawlResult{
			"social": {
				{URL: "https://instagram.com/blueharbor", Extracted: map[string]string{
					"instagram": "https://instagram.com/blueharbor",
				}},
				{URL: "https://facebook.com/blueharbor", Extracted: map[string]string{
					"facebook": "https://facebook.com/blueharbor",
				}},
			},
		},
	}

	got, conflicts := Normalize(payload, model.Entity{ID: "e1"}, DefaultThresholds())

	assert.Empty(t, conflicts)
	assert.Equal(t, "https://instagram.com/blueharbor", got.Social["instagram"])
	assert.Equal(t, "https://facebook.com/blueharbor", got.Social["facebook"])
}

func TestNormalize_PriceTierNeverOverwritten(t *testing.T) {
	three := 3
	current := model.Entity{ID: "e1", PriceTier: &three}

	got, conflicts := Normalize(model.GeodataPayload{PriceLevel: "$$"}, current, DefaultThresholds())

	require.NotNil(t, got.PriceTier)
	assert.Equal(t, 3, *got.PriceTier)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "price_tier", conflicts[0].Field)
}

func TestNormalize_ZeroPriceTierTreatedAsAbsent(t *testing.T) {
	// A stored zero tier is the historical defect; an incoming value must
	// be allowed to replace it without a conflict.
	zero := 0
	current := model.Entity{ID: "e1", PriceTier: &zero}

	got, conflicts := Normalize(model.GeodataPayload{PriceLevel: "$$"}, current, DefaultThresholds())

	assert.Empty(t, conflicts)
	require.NotNil(t, got.PriceTier)
	assert.Equal(t, 2, *got.PriceTier)
}

func TestNormalize_Enhance(t *testing.T) {
	payload := model.EnhancePayload{
		Description:      "A relaxed waterfront bistro serving seasonal seafood.",
		ShortDescription: "Waterfront seafood bistro.",
		SEOTitle:         "Blue Harbor Bistro | Marina Walk",
		SEODescription:   "Seafood dining on Marina Walk.",
		SEOKeywords:      []string{"seafood", "bistro", "marina"},
	}

	got, conflicts := Normalize(payload, model.Entity{ID: "e1"}, DefaultThresholds())

	assert.Empty(t, conflicts)
	require.NotNil(t, got.Description)
	assert.Equal(t, "Waterfront seafood bistro.", *got.ShortDescription)
	assert.Equal(t, []string{"seafood", "bistro", "marina"}, got.SEOKeywords)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	current := model.Entity{ID: "e1"}
	_, _ = Normalize(model.GeodataPayload{Name: "X"}, current, DefaultThresholds())
	assert.Equal(t, "", current.Name)
}
