package domain

import (
	"errors"
	"time"
)

// ErrFatalConfig marks errors that abort a run: malformed descriptors or an unwritable store.
var ErrFatalConfig = errors.New("fatal config error")

// State is a step of the orchestrator state machine.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateDiffing     State = "diffing"
	StateExtracting  State = "extracting"
	StatePersisting  State = "persisting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// RunSummary is the externally visible outcome of a run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	ProviderID string        `json:"provider_id"`
	Mode       RunMode       `json:"mode"`
	State      State         `json:"state"`
	Discovered int           `json:"discovered"`
	Skipped    int           `json:"skipped"`
	Fetched    int           `json:"fetched"`
	Extracted  int           `json:"extracted"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// FailureRate is failures over every record that either persisted or failed.
func (s RunSummary) FailureRate() float64 {
	total := s.Extracted + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(total)
}
