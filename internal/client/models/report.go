package models

import "time"

// Side identifies which replica of a record won a conflict.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// ConflictResolution records one resolved concurrent edit for observability.
type ConflictResolution struct {
	ID     string `json:"id"`
	Winner Side   `json:"winner"`
	Reason string `json:"reason"`
}

// RecordFailure records a per-record error that was skipped during a batch
// reconciliation. The id is returned for retry on a later cycle.
type RecordFailure struct {
	ID    string `json:"id"`
	Cause string `json:"cause"`
}

// SyncReport summarizes one completed reconciliation cycle. Individual
// record failures never abort the cycle; they are collected in Failed.
type SyncReport struct {
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Pushed     int                  `json:"pushed"`
	Adopted    int                  `json:"adopted"`
	Purged     int                  `json:"purged"`
	Conflicts  []ConflictResolution `json:"conflicts,omitempty"`
	Failed     []RecordFailure      `json:"failed,omitempty"`
}
