package events

import "time"

// Kind classifies an audit event
type Kind string

const (
	// KindBlock records a detector blocking a prompt or response
	KindBlock Kind = "BLOCK"

	// KindRedact records a PII redaction that changed text
	KindRedact Kind = "REDACT"

	// KindSuccess records a request that completed the pipeline
	KindSuccess Kind = "SUCCESS"

	// KindError records a degraded LLM invocation
	KindError Kind = "ERROR"
)

// ExcerptLength caps the prompt/response excerpts stored per event so
// one oversized payload cannot bloat the audit log.
const ExcerptLength = 200

// Event is one write-once audit record. Excerpts are capped at
// ExcerptLength; there is no update or delete path.
type Event struct {
	Timestamp       time.Time         `json:"ts"`
	Kind            Kind              `json:"event"`
	Detector        string            `json:"detector,omitempty"`
	Status          string            `json:"status,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	OriginalPrompt  string            `json:"original_prompt,omitempty"`
	ProcessedPrompt string            `json:"processed_prompt,omitempty"`
	ResponsePreview string            `json:"llm_response_preview,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Excerpt returns the first ExcerptLength characters of text without
// splitting a multi-byte character, appending an ellipsis when
// truncated.
func Excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= ExcerptLength {
		return text
	}
	return string(runes[:ExcerptLength]) + "…"
}
