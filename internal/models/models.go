// Package models defines the core data structures used throughout the application.
package models

import (
	"time"
)

// Mode selects how thoroughly the backend analyses a text.
type Mode string

const (
	ModeFast Mode = "fast"
	ModeDeep Mode = "deep"
)

// Valid reports whether m is a mode the backend accepts.
func (m Mode) Valid() bool {
	return m == ModeFast || m == ModeDeep
}

// Lang is the language hint sent with a check.
type Lang string

const (
	LangRU   Lang = "ru"
	LangEN   Lang = "en"
	LangKK   Lang = "kk"
	LangAuto Lang = "auto"
)

// Valid reports whether l is a known language hint.
func (l Lang) Valid() bool {
	switch l {
	case LangRU, LangEN, LangKK, LangAuto:
		return true
	}
	return false
}

// TaskStatus is the normalized status of a remote analysis task.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskReady   TaskStatus = "ready"
	TaskFailed  TaskStatus = "failed"
)

// ParseTaskStatus maps a backend status string onto a TaskStatus.
// An empty status is treated as ready because the backend omits it on finished results.
func ParseTaskStatus(s string) TaskStatus {
	switch s {
	case "pending", "queued":
		return TaskQueued
	case "processing", "running", "in_progress":
		return TaskRunning
	case "failed", "error":
		return TaskFailed
	default:
		return TaskReady
	}
}

// MatchType distinguishes how a match was detected.
type MatchType string

const (
	MatchLexical    MatchType = "lexical"
	MatchSemanticAI MatchType = "semantic_ai"
)

// CheckRequest is the body of a check submission.
type CheckRequest struct {
	Text                string `json:"text"`
	Mode                Mode   `json:"mode"`
	Lang                Lang   `json:"lang,omitempty"`
	ExcludeQuotes       bool   `json:"exclude_quotes"`
	ExcludeBibliography bool   `json:"exclude_bibliography"`
}

// SubmitResponse is returned by the backend when a check is accepted.
type SubmitResponse struct {
	TaskID               string  `json:"task_id"`
	Status               string  `json:"status"`
	EstimatedTimeSeconds float64 `json:"estimated_time_seconds"`
}

// CheckTask identifies one submitted analysis. It lives only as long as the lifecycle that owns it.
type CheckTask struct {
	TaskID               string     `json:"task_id"`
	Status               TaskStatus `json:"status"`
	SubmittedAt          time.Time  `json:"submitted_at"`
	EstimatedTimeSeconds float64    `json:"estimated_time_seconds"`
}

// Match is one flagged span of the submitted text. Offsets count runes.
type Match struct {
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Text       string    `json:"text"`
	SourceID   int       `json:"source_id"`
	Similarity float64   `json:"similarity"`
	Type       MatchType `json:"type"`
}

// Source is an external document the backend considers the origin of matches.
type Source struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Domain        string  `json:"domain"`
	MatchCount    int     `json:"match_count"`
	AvgSimilarity float64 `json:"avg_similarity"`
}

// CheckResult is the full report for a task.
type CheckResult struct {
	TaskID      string    `json:"task_id"`
	Status      string    `json:"status"`
	Originality float64   `json:"originality"`
	TotalWords  int       `json:"total_words"`
	TotalChars  int       `json:"total_chars"`
	Matches     []Match   `json:"matches"`
	Sources     []Source  `json:"sources"`
	AIPowered   bool      `json:"ai_powered"`
	CreatedAt   Timestamp `json:"created_at"`
}

// TaskStatus returns the normalized status of the result.
func (r *CheckResult) TaskStatus() TaskStatus {
	return ParseTaskStatus(r.Status)
}

// HistoryItem is the persisted summary of a completed check.
type HistoryItem struct {
	TaskID      string    `json:"task_id"`
	Originality float64   `json:"originality"`
	CreatedAt   Timestamp `json:"created_at"`
	Preview     string    `json:"preview"`
}

// CatalogSource is an entry of the backend's source catalog.
type CatalogSource struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// SourceCatalog is the response of the sources endpoint.
type SourceCatalog struct {
	Total   int             `json:"total"`
	Sources []CatalogSource `json:"sources"`
}

// HealthStatus is the response of the backend health endpoint.
type HealthStatus struct {
	Status         string    `json:"status"`
	Timestamp      Timestamp `json:"timestamp"`
	AIEnabled      bool      `json:"ai_enabled"`
	ChecksInMemory int       `json:"checks_in_memory"`
}
