package interfaces

import "context"

// Decision is the outcome of one blocking detector invocation. It is
// produced fresh per call and never mutated after return.
type Decision struct {
	// Blocked reports whether the detector wants the text stopped
	Blocked bool

	// Reason is a human-readable category, populated only when Blocked
	Reason string
}

// Detector is a guardrail step that inspects text and either blocks or
// passes it through. Implementations must be stateless across calls and
// must not mutate their input; an evaluation that cannot complete
// returns an error instead of guessing.
type Detector interface {
	// Name returns the detector's identifier as it appears in traces
	// and audit events (e.g. "harmful_content")
	Name() string

	// Evaluate inspects text and reports whether it should be blocked
	Evaluate(ctx context.Context, text string) (Decision, error)
}

// Transformer is a guardrail step that rewrites text instead of
// blocking it. It returns the processed text and whether anything
// changed. Transformations must be idempotent: applying one to its own
// output yields no further changes.
type Transformer interface {
	// Name returns the transformer's identifier
	Name() string

	// Transform rewrites text, reporting whether it changed
	Transform(ctx context.Context, text string) (string, bool, error)
}
