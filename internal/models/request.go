// Package models holds the plain data types shared across the pipeline.
package models

import "time"

// Status is a Request's position in the lifecycle state graph.
type Status string

const (
	StatusPending            Status = "pending"
	StatusSearching          Status = "searching"
	StatusProcessingSearch   Status = "processing_search"
	StatusAnalyzing          Status = "analyzing"
	StatusProcessingAnalysis Status = "processing_analysis"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

// Terminal reports whether a Request in this status will never transition
// again — completed and failed are absorbing states (spec §4.1).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is the top-level lifecycle entity: one research topic, tracked
// end to end through search and analysis.
type Request struct {
	ID           string     `json:"request_id"`
	Topic        string     `json:"topic"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error,omitempty"`
}

// SearchResult is one crawled/extracted page backing a Request.
type SearchResult struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisResult is the final summary for a Request. At most one exists per
// Request, and only once the Request has reached StatusCompleted.
type AnalysisResult struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	Summary          string    `json:"summary"`
	InferenceTimeMs  int64     `json:"inference_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}
