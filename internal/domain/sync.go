package domain

import "time"

// RecordStatus is the outcome of one record in a sync batch.
type RecordStatus string

const (
	StatusApplied  RecordStatus = "applied"
	StatusDeferred RecordStatus = "deferred"
	StatusFailed   RecordStatus = "failed"
)

// FailureKind classifies why a record failed.
type FailureKind string

const (
	FailureMissingIdentifier   FailureKind = "missing_identifier"
	FailurePersistenceConflict FailureKind = "persistence_conflict"
	FailurePersistence         FailureKind = "persistence"
	FailureFetch               FailureKind = "fetch"
)

// RecordOutcome is the report entry for the record at Index in the input.
type RecordOutcome struct {
	Index        int          `json:"index"`
	Label        string       `json:"label"`
	Status       RecordStatus `json:"status"`
	RestaurantID int64        `json:"restaurant_id,omitempty"`
	Kind         FailureKind  `json:"kind,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

// SyncReport summarizes a batch. Outcomes are in input order.
type SyncReport struct {
	RunID      string          `json:"run_id"`
	Service    string          `json:"service"`
	Month      string          `json:"month"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Applied    int             `json:"applied"`
	Deferred   int             `json:"deferred"`
	Failed     int             `json:"failed"`
	Outcomes   []RecordOutcome `json:"outcomes"`
}

// Failures returns the failed outcomes.
func (r SyncReport) Failures() []RecordOutcome {
	var out []RecordOutcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// DeferredIndexes returns the input positions of deferred records.
func (r SyncReport) DeferredIndexes() []int {
	var out []int
	for _, o := range r.Outcomes {
		if o.Status == StatusDeferred {
			out = append(out, o.Index)
		}
	}
	return out
}

// DeferredRecord is a record parked until budget is available again.
type DeferredRecord struct {
	Service    string         `json:"service"`
	Month      string         `json:"month"`
	DeferredAt time.Time      `json:"deferred_at"`
	Reason     string         `json:"reason,omitempty"`
	Record     ExternalRecord `json:"record"`
}
