// Package events defines the Kafka event schemas produced and consumed by the
// indexer.
package events

import "time"

// IndexRequest asks a serving indexer to rebuild its index over Roots. An
// empty Roots reuses the configured roots.
type IndexRequest struct {
	RequestID string   `json:"request_id"`
	Roots     []string `json:"roots"`
}

// ItemErrorEvent is published for every file or directory skipped during a
// run.
type ItemErrorEvent struct {
	RunID      string    `json:"run_id,omitempty"`
	Kind       string    `json:"kind"`
	Path       string    `json:"path"`
	Error      string    `json:"error"`
	ReportedAt time.Time `json:"reported_at"`
}

// IndexCompleteEvent is published when a run finishes, interrupted or not.
type IndexCompleteEvent struct {
	RunID       string    `json:"run_id"`
	Roots       []string  `json:"roots"`
	Files       int64     `json:"files"`
	Terms       int64     `json:"terms"`
	Occurrences int64     `json:"occurrences"`
	Failures    int64     `json:"failures"`
	Interrupted bool      `json:"interrupted"`
	DurationMs  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}
