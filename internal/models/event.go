package models

import "time"

// EventType classifies job lifecycle events published on the internal bus
// and streamed to websocket clients.
type EventType string

const (
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobFinished  EventType = "job.finished"
	EventJobFailed    EventType = "job.failed"
	EventJobCanceled  EventType = "job.canceled"
	EventJobRetried   EventType = "job.retried"
	EventCrawlSummary EventType = "crawl.summary"
)

// Event is a job lifecycle notification. Data carries event-specific
// details (error text, crawl counts) and may be nil.
type Event struct {
	Type      EventType      `json:"type"`
	JobID     string         `json:"job_id,omitempty"`
	Kind      JobKind        `json:"kind,omitempty"`
	EntityKey string         `json:"entity_key,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
