package models

// FailureKind distinguishes failures that exhausted a retry budget from
// failures that abort a retry sequence outright.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

// FailureReason describes why a bounded-retry helper gave up.
type FailureReason struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// DownloadResult is the outcome of a PDF fetch. Callers branch on
// Failure instead of inspecting error types; Failure nil means Path
// points at a validated artifact.
type DownloadResult struct {
	Path     string         `json:"path,omitempty"`
	Attempts int            `json:"attempts"`
	Skipped  bool           `json:"skipped,omitempty"`
	Failure  *FailureReason `json:"failure,omitempty"`
}

// OK reports whether the artifact is present on disk.
func (r *DownloadResult) OK() bool {
	return r != nil && r.Failure == nil
}

// GenerateResult is the outcome of a bounded-retry image generation.
type GenerateResult struct {
	Data     []byte         `json:"-"`
	MIMEType string         `json:"mime_type,omitempty"`
	Attempts int            `json:"attempts"`
	Failure  *FailureReason `json:"failure,omitempty"`
}

// OK reports whether image bytes were produced.
func (r *GenerateResult) OK() bool {
	return r != nil && r.Failure == nil && len(r.Data) > 0
}
