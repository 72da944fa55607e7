// Package task is the asynchronous job substrate: jobs are submitted by name,
// executed on a bounded worker pool, and their state is kept in a Backend.
package task

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrJobNotFound is returned by a Backend for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// State is the substrate state of a job.
type State string

const (
	// StatePending means the job is queued and not yet picked up.
	StatePending State = "pending"

	// StateRunning means a worker is executing the job.
	StateRunning State = "running"

	// StateSucceeded means the handler returned without error.
	StateSucceeded State = "succeeded"

	// StateFailed means the handler returned an error, panicked, or timed out.
	StateFailed State = "failed"
)

// IsTerminal reports whether no further transitions happen.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is the persisted state of one submitted unit of work.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	State       State           `json:"state"`
	Result      string          `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Payload != nil {
		out.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return errors.New("job has no payload")
	}
	return json.Unmarshal(j.Payload, v)
}
