package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testOrder = []string{"fetch_geo", "crawl", "enhance", "images", "finalize"}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name  string
		steps map[string]StepState
		want  EntityStatus
	}{
		{
			name:  "nothing ran yet",
			steps: nil,
			want:  EntityPending,
		},
		{
			name: "all completed",
			steps: map[string]StepState{
				"fetch_geo": {Status: StepCompleted},
				"crawl":     {Status: StepCompleted},
				"enhance":   {Status: StepCompleted},
				"images":    {Status: StepCompleted},
				"finalize":  {Status: StepCompleted},
			},
			want: EntityCompleted,
		},
		{
			name: "one failed",
			steps: map[string]StepState{
				"fetch_geo": {Status: StepCompleted},
				"crawl":     {Status: StepFailed, Error: "timeout"},
			},
			want: EntityFailed,
		},
		{
			name: "partially done",
			steps: map[string]StepState{
				"fetch_geo": {Status: StepCompleted},
				"crawl":     {Status: StepRunning},
			},
			want: EntityProcessing,
		},
		{
			name: "retry cleared earlier failure",
			steps: map[string]StepState{
				"fetch_geo": {Status: StepCompleted},
				"crawl":     {Status: StepCompleted},
			},
			want: EntityProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Progress{EntityID: "e1", Steps: tt.steps}
			assert.Equal(t, tt.want, OverallStatus(p, testOrder))
		})
	}
}

func TestOverallStatus_NilProgress(t *testing.T) {
	assert.Equal(t, EntityPending, OverallStatus(nil, testOrder))
}

func TestPriceTierValue_ZeroNeverValid(t *testing.T) {
	zero := 0
	two := 2

	e := Entity{}
	_, ok := e.PriceTierValue()
	assert.False(t, ok)

	e.PriceTier = &zero
	_, ok = e.PriceTierValue()
	assert.False(t, ok)

	e.PriceTier = &two
	v, ok := e.PriceTierValue()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
