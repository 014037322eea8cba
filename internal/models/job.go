package models

import (
	"errors"
	"time"
)

// QueueStatus is the queue-level lifecycle status of one execution
// attempt. Independent from EntityJobState: a JobRecord exists only while
// the registry retains it.
type QueueStatus string

const (
	QueueStatusQueued   QueueStatus = "queued"
	QueueStatusStarted  QueueStatus = "started"
	QueueStatusFinished QueueStatus = "finished"
	QueueStatusFailed   QueueStatus = "failed"
	QueueStatusCanceled QueueStatus = "canceled"
)

// Registry retention windows. Expiry is a storage policy, not a
// correctness guarantee.
const (
	FinishedRecordTTL = 24 * time.Hour
	FailedRecordTTL   = 7 * 24 * time.Hour
	CanceledRecordTTL = 24 * time.Hour
)

// ErrNoMessage is returned by queue receive when no work is available.
var ErrNoMessage = errors.New("no message available")

// QueueMessage is the durable task descriptor held in a queue lane.
type QueueMessage struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	EntityKey  string    `json:"entity_key"`
	Args       []string  `json:"args,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobRecord is the registry entry for one execution attempt, created at
// enqueue and finalized by the worker, cancel, or retry.
type JobRecord struct {
	JobID     string      `badgerhold:"key" json:"job_id"`
	Kind      JobKind     `json:"kind"`
	EntityKey string      `json:"entity_key"`
	Args      []string    `json:"args,omitempty"`
	Status    QueueStatus `badgerhold:"index" json:"status"`

	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	// Error is set only when Status is failed; Result only when finished.
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// ExpiresAt drives registry purging of terminal records.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// RetryOf links a re-enqueued record back to the failed attempt.
	RetryOf string `json:"retry_of,omitempty"`
}

// Terminal reports whether the record is in a final status.
func (r *JobRecord) Terminal() bool {
	switch r.Status {
	case QueueStatusFinished, QueueStatusFailed, QueueStatusCanceled:
		return true
	}
	return false
}

// QueueStats is the per-status census of one queue lane.
type QueueStats struct {
	Queued   int `json:"queued"`
	Started  int `json:"started"`
	Finished int `json:"finished"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}
