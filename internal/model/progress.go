package model

import "time"

// StepStatus is the state of a single extraction step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// EntityStatus is the overall extraction state of an entity, derived from
// the step map.
type EntityStatus string

const (
	EntityPending    EntityStatus = "pending"
	EntityProcessing EntityStatus = "processing"
	EntityCompleted  EntityStatus = "completed"
	EntityFailed     EntityStatus = "failed"
)


// Canonical extraction step names, in execution order.
const (
	StepFetchGeo = "fetch_geo"
	StepCrawl    = "crawl"
	StepEnhance  = "enhance"
	StepImages   = "images"
	StepFinalize = "finalize"
)

// StepOrder is the fixed, total order steps execute in. A step may only
// run once every earlier step has completed.
var StepOrder = []string{StepFetchGeo, StepCrawl, StepEnhance, StepImages, StepFinalize}

// StepState records the status of one step, with timestamp and error text.
// The schema is intentionally self-describing: the admin queue UI polls it
// without any shared code.
type StepState struct {
	Status    StepStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
	Error     string     `json:"error,omitempty"`
}

// Progress is the durable per-entity extraction record: step name -> state.
type Progress struct {
	EntityID  string               `json:"entity_id"`
	Steps     map[string]StepState `json:"steps"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// StepFor returns the recorded state for a step, defaulting to pending.
func (p *Progress) StepFor(name string) StepState {
	if p == nil || p.Steps == nil {
		return StepState{Status: StepPending}
	}
	st, ok := p.Steps[name]
	if !ok {
		return StepState{Status: StepPending}
	}
	return st
}

// OverallStatus derives the entity status from the step map for the given
// step order: completed iff every step completed, failed iff any step is
// failed, pending if nothing ran yet, otherwise processing. A retried step
// overwrites its failed state, so a later success clears the failure.
func OverallStatus(p *Progress, order []string) EntityStatus {
	allCompleted := true
	anyFailed := false
	anyTouched := false

	for _, name := range order {
		st := p.StepFor(name)
		switch st.Status {
		case StepCompleted:
			anyTouched = true
		case StepFailed:
			anyFailed = true
			anyTouched = true
			allCompleted = false
		case StepRunning:
			anyTouched = true
			allCompleted = false
		default:
			allCompleted = false
		}
	}

	switch {
	case allCompleted && len(order) > 0:
		return EntityCompleted
	case anyFailed:
		return EntityFailed
	case anyTouched:
		return EntityProcessing
	default:
		return EntityPending
	}
}
