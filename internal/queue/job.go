// Package queue defers work to background workers. Producers Push named jobs
// with a JSON payload; a Worker pops them from a Driver, runs the registered
// handler and acknowledges, retries with backoff or dead-letters the job.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

const DefaultQueue = "default"

// Job is the durable unit of work. Attempts counts executions so far.
type Job struct {
	ID          string          `json:"id"`
	Handler     string          `json:"handler"`
	Payload     json.RawMessage `json:"payload"`
	Queue       string          `json:"queue"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
	AvailableAt time.Time       `json:"available_at"`
	CreatedAt   time.Time       `json:"created_at"`
	LastError   string          `json:"last_error,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`

	// driver bookkeeping
	raw string
	tag uint64
	gen uint64
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("job %s: decode payload: %w", j.ID, err)
	}
	return nil
}

func encodeJob(j *Job) ([]byte, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("job %s: encode: %w", j.ID, err)
	}
	return b, nil
}

func decodeJob(b []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}
