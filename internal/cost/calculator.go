// Package cost projects batch spend before a live run and prices token
// usage for attribution.
package cost

import (
	"sort"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/model"
)

// Calculator computes projected and actual costs for extraction work.
type Calculator struct {
	cfg config.PricingConfig
}

// NewCalculator creates a Calculator from pricing config.
func NewCalculator(cfg config.PricingConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Projection is the pre-run estimate surfaced to the operator.
type Projection struct {
	Entities     int
	PerEntity    float64
	Total        float64
	StepBreakout map[string]float64 // step -> marginal cost across all entities
}

// Project estimates spend for count entities that still need work:
// count × (fixed per-entity cost + sum of per-step marginal costs).
func (c *Calculator) Project(count int) Projection {
	perEntity := c.cfg.FixedPerEntity
	breakout := make(map[string]float64, len(model.StepOrder))
	for _, step := range model.StepOrder {
		rate := c.cfg.PerStep[step]
		perEntity += rate
		breakout[step] = rate * float64(count)
	}
	return Projection{
		Entities:     count,
		PerEntity:    perEntity,
		Total:        perEntity * float64(count),
		StepBreakout: breakout,
	}
}

// Steps lists the priced steps in execution order, for stable report
// rendering.
func (p Projection) Steps() []string {
	steps := make([]string, 0, len(p.StepBreakout))
	for step := range p.StepBreakout {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool {
		return stepIndex(steps[i]) < stepIndex(steps[j])
	})
	return steps
}

func stepIndex(step string) int {
	for i, s := range model.StepOrder {
		if s == step {
			return i
		}
	}
	return len(model.StepOrder)
}

// Tokens prices a model invocation (USD per million tokens).
func (c *Calculator) Tokens(modelName string, input, output int64) float64 {
	rate, ok := c.cfg.Anthropic[modelName]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}
