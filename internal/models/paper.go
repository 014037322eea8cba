package models

import (
	"fmt"
	"time"
)

// JobKind identifies a category of background work performed on a paper.
type JobKind string

const (
	JobKindSummary JobKind = "summary"
	JobKindComic   JobKind = "comic"
	JobKindCrawl   JobKind = "crawl"
)

// IsValid reports whether the kind is one of the known job kinds.
func (k JobKind) IsValid() bool {
	switch k {
	case JobKindSummary, JobKindComic, JobKindCrawl:
		return true
	}
	return false
}

// EntityJobState is the durable, user-visible status of one enrichment
// kind on one paper. It survives process restarts, unlike the queue-level
// JobRecord status which is retained only for a bounded window.
type EntityJobState string

const (
	StatePending   EntityJobState = "pending"
	StateRunning   EntityJobState = "running"
	StateCompleted EntityJobState = "completed"
	StateFailed    EntityJobState = "failed"
)

// CanTransition reports whether moving from s to next is a legal
// transition. Forward-only: pending -> running -> completed|failed.
// Re-entry always goes through pending: failed -> pending via retry,
// completed -> pending only via forced regeneration (the caller passes
// force=true for that path).
func (s EntityJobState) CanTransition(next EntityJobState, force bool) bool {
	if force && next == StatePending {
		return true
	}
	switch s {
	case StatePending:
		return next == StateRunning
	case StateRunning:
		return next == StateCompleted || next == StateFailed
	case StateFailed:
		return next == StatePending
	case StateCompleted:
		return false
	case "":
		// Unset state on papers created before status tracking.
		return next == StatePending || next == StateRunning
	}
	return false
}

// Paper is the business entity being curated and enriched. The key is the
// normalized arXiv identifier (version suffix stripped).
type Paper struct {
	ID       string   `badgerhold:"key" json:"id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Authors  []string `json:"authors"`
	PDFURL   string   `json:"pdf_url"`
	Keywords []string `json:"keywords"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Source metadata as returned by the arXiv API.
	ArxivEntryID         string    `json:"arxiv_entry_id"`
	ArxivPublished       time.Time `json:"arxiv_published"`
	ArxivUpdated         time.Time `json:"arxiv_updated"`
	ArxivComment         string    `json:"arxiv_comment,omitempty"`
	ArxivJournalRef      string    `json:"arxiv_journal_ref,omitempty"`
	ArxivDOI             string    `json:"arxiv_doi,omitempty"`
	ArxivPrimaryCategory string    `json:"arxiv_primary_category"`
	ArxivCategories      []string  `json:"arxiv_categories"`
	ArxivLinks           []string  `json:"arxiv_links"`

	// Enrichment artifacts.
	AITitle    string `json:"ai_title,omitempty"`
	AIAbstract string `json:"ai_abstract,omitempty"`
	AISummary  string `json:"ai_summary,omitempty"`
	FullText   string `json:"full_text,omitempty"`
	ComicPath  string `json:"comic_path,omitempty"`

	// Per-kind enrichment status.
	SummaryStatus EntityJobState `json:"summary_job_status"`
	ComicStatus   EntityJobState `json:"comic_job_status"`
}

// JobState returns the entity-level state for the given kind.
func (p *Paper) JobState(kind JobKind) (EntityJobState, error) {
	switch kind {
	case JobKindSummary:
		return p.SummaryStatus, nil
	case JobKindComic:
		return p.ComicStatus, nil
	}
	return "", fmt.Errorf("job kind %q has no entity state", kind)
}

// SetJobState sets the entity-level state for the given kind.
func (p *Paper) SetJobState(kind JobKind, state EntityJobState) error {
	switch kind {
	case JobKindSummary:
		p.SummaryStatus = state
	case JobKindComic:
		p.ComicStatus = state
	default:
		return fmt.Errorf("job kind %q has no entity state", kind)
	}
	return nil
}

// BestContent returns the richest text available for prompting, in
// priority order: full text, AI summary, AI abstract, original abstract.
func (p *Paper) BestContent() string {
	switch {
	case p.FullText != "":
		return p.FullText
	case p.AISummary != "":
		return p.AISummary
	case p.AIAbstract != "":
		return p.AIAbstract
	}
	return p.Abstract
}
