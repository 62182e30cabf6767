package store

import "time"

// HistoryEntry is one processed question recorded for auditing: what was
// asked, what was generated, and which execution path answered it.
type HistoryEntry struct {
	ID           string    `json:"id"` // UUID
	StoreID      string    `json:"store_id"`
	Question     string    `json:"question"`
	Intent       string    `json:"intent"`
	Query        string    `json:"query"`
	Source       string    `json:"source"`
	FallbackUsed bool      `json:"fallback_used"`
	Answer       string    `json:"answer,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
