package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/model"
)

func testPricing() config.PricingConfig {
	return config.PricingConfig{
		FixedPerEntity: 0.01,
		PerStep: map[string]float64{
			"fetch_geo": 0.017,
			"crawl":     0.05,
			"enhance":   0.04,
			"images":    0.08,
			"finalize":  0.02,
		},
		Anthropic: map[string]config.ModelPricing{
			"claude-sonnet-4-5-20250929": {Input: 3.0, Output: 15.0},
		},
	}
}

func TestProject(t *testing.T) {
	c := NewCalculator(testPricing())
	p := c.Project(100)

	assert.Equal(t, 100, p.Entities)
	// 0.01 fixed + 0.207 across five steps.
	assert.InDelta(t, 0.217, p.PerEntity, 0.0001)
	assert.InDelta(t, 21.7, p.Total, 0.001)
	assert.InDelta(t, 5.0, p.StepBreakout["crawl"], 0.0001)
}

func TestProject_ZeroEntities(t *testing.T) {
	c := NewCalculator(testPricing())
	p := c.Project(0)
	assert.Zero(t, p.Total)
	assert.InDelta(t, 0.217, p.PerEntity, 0.0001)
}

func TestProject_MissingStepRateIsZero(t *testing.T) {
	cfg := testPricing()
	delete(cfg.PerStep, "finalize")
	c := NewCalculator(cfg)

	p := c.Project(10)
	assert.InDelta(t, 0.197, p.PerEntity, 0.0001)
	assert.Zero(t, p.StepBreakout["finalize"])
}

func TestProjectionSteps_ExecutionOrder(t *testing.T) {
	c := NewCalculator(testPricing())
	assert.Equal(t, model.StepOrder, c.Project(1).Steps())
}

func TestTokens(t *testing.T) {
	c := NewCalculator(testPricing())

	// 10k in at $3/M + 2k out at $15/M.
	got := c.Tokens("claude-sonnet-4-5-20250929", 10_000, 2_000)
	assert.InDelta(t, 0.06, got, 0.0001)

	assert.Zero(t, c.Tokens("unknown-model", 1_000_000, 1_000_000))
}
