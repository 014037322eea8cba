package models

import "time"

// ScheduledJobInfo is the monitor view of one scheduler entry, recurring
// or one-shot.
type ScheduledJobInfo struct {
	JobID     string     `json:"job_id"`
	Kind      JobKind    `json:"kind"`
	EntityKey string     `json:"entity_key,omitempty"`
	Recurring bool       `json:"recurring"`
	Schedule  string     `json:"schedule,omitempty"`
	RunAt     *time.Time `json:"run_at,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	Running   bool       `json:"running"`
	Enabled   bool       `json:"enabled"`
}
