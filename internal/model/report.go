package model

// ItemFailure records one failed entity in a batch run.
type ItemFailure struct {
	EntityID string `json:"entity_id"`
	Error    string `json:"error"`
}

// BatchReport aggregates per-item outcomes of one batch run. It is
// ephemeral: surfaced to the operator, never persisted.
type BatchReport struct {
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Failures  []ItemFailure `json:"failures,omitempty"`
	DryRun    bool          `json:"dry_run,omitempty"`
}
