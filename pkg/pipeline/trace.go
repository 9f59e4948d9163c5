package pipeline

// StepDecision is the per-step outcome recorded in a trace
type StepDecision string

const (
	// DecisionAllow means a blocking detector passed the text
	DecisionAllow StepDecision = "allow"

	// DecisionBlock means a blocking detector stopped the request
	DecisionBlock StepDecision = "block"

	// DecisionRedacted means a transformer changed the text
	DecisionRedacted StepDecision = "redacted"

	// DecisionUnchanged means a transformer left the text as is
	DecisionUnchanged StepDecision = "unchanged"

	// DecisionOK means the step completed normally
	DecisionOK StepDecision = "ok"

	// DecisionError means the step failed and was degraded
	DecisionError StepDecision = "error"
)

// TraceStep records one detector or generation step. Steps accumulate
// in order over a single request and are returned to the caller for
// transparency; they are not persisted beyond the audit log.
type TraceStep struct {
	Step     string                 `json:"step"`
	Strategy string                 `json:"strategy,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Decision StepDecision           `json:"decision"`
	Reason   string                 `json:"reason,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

// Status is the terminal outcome of a pipeline run
type Status string

const (
	// StatusSuccess means the prompt passed all checks and the model
	// produced a response
	StatusSuccess Status = "success"

	// StatusBlocked means a request-side detector stopped the prompt
	StatusBlocked Status = "blocked"

	// StatusBlockedResponse means response screening stopped the
	// model's output
	StatusBlockedResponse Status = "blocked_response"

	// StatusLLMError means generation failed and the response carries
	// degraded error content instead of model output
	StatusLLMError Status = "llm_error"
)

// Result is the complete outcome of one pipeline run
type Result struct {
	Status          Status      `json:"status"`
	Reason          string      `json:"reason,omitempty"`
	OriginalPrompt  string      `json:"original_prompt"`
	ProcessedPrompt string      `json:"processed_prompt,omitempty"`
	LLMResponse     string      `json:"llm_response,omitempty"`
	BlockedOutput   string      `json:"llm_output_blocked,omitempty"`
	Trace           []TraceStep `json:"trace"`
}

// Blocked reports whether the run terminated in a blocking state
func (r *Result) Blocked() bool {
	return r.Status == StatusBlocked || r.Status == StatusBlockedResponse
}
