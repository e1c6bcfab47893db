// Package summary turns a call transcript into the structured fields of an
// issue record.
//
// The Summarizer contract is deliberately narrow: flattened transcript in,
// structured fields out, any failure reported as an error. The caller owns
// the timeout and the fallback record; a summarization failure must never
// lose a call.
package summary

import "context"

// Result holds the structured fields extracted from a transcript.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Name        string `json:"name,omitempty"`
	Company     string `json:"company,omitempty"`
	SystemInfo  string `json:"system_info,omitempty"`
}

// Summarizer extracts structured fields from a flattened call transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (*Result, error)
}

// Fallback field values used when summarization fails.
const (
	FallbackTitle       = "Uncategorized Call"
	FallbackDescription = "Failed AI Summarisation"
	FallbackPriority    = "unknown"
)

// FallbackResult returns the record fields for a failed summarization.
func FallbackResult() *Result {
	return &Result{
		Title:       FallbackTitle,
		Description: FallbackDescription,
		Priority:    FallbackPriority,
	}
}
