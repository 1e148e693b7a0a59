package normalize

import (
	"strconv"
	"strings"
)

// priceWords maps textual price descriptions to a tier.
var priceWords = map[string]int{
	"free":           1,
	"cheap":          1,
	"budget":         1,
	"inexpensive":    1,
	"moderate":       2,
	"mid-range":      2,
	"midrange":       2,
	"average":        2,
	"expensive":      3,
	"upscale":        3,
	"pricey":         3,
	"very expensive": 4,
	"luxury":         4,
	"fine dining":    4,
}

// priceLevels maps Places-style enum encodings to a tier.
var priceLevels = map[string]int{
	"PRICE_LEVEL_FREE":           1,
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

// PriceTier maps a provider price encoding to a tier 1-4. Any missing or
// unrecognized encoding maps to nil, never zero: the upstream system once
// persisted tier 0 for unknown prices and downstream filters treated it as
// a real tier.
func PriceTier(raw string) *int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if tier, ok := priceLevels[s]; ok {
		return &tier
	}

	// Symbolic tiers: "$" through "$$$$".
	if strings.Count(s, "$") == len(s) {
		n := len(s)
		if n >= 1 && n <= 4 {
			return &n
		}
		return nil
	}

	if tier, ok := priceWords[strings.ToLower(s)]; ok {
		return &tier
	}

	// Numeric text. Zero and out-of-range values are absent, not tiers.
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= 4 {
			return &n
		}
		return nil
	}

	return nil
}
