package policy

import (
	"fmt"
)

// Strategy identifies how a detector evaluates text. The set is closed:
// unknown strategies are rejected when the policy is loaded, never at
// request time.
type Strategy string

const (
	// StrategyML delegates to a scoring classifier
	StrategyML Strategy = "ml"

	// StrategyHeuristic uses built-in pattern rules
	StrategyHeuristic Strategy = "heuristic"
)

// ParseStrategy resolves a wire-format strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyML:
		return StrategyML, nil
	case StrategyHeuristic:
		return StrategyHeuristic, nil
	default:
		return "", fmt.Errorf("unknown detector strategy: %q", s)
	}
}

// HarmfulContent configures the harmful-content detector
type HarmfulContent struct {
	Enabled   bool     `json:"enabled"`
	Strategy  Strategy `json:"strategy"`
	Threshold float64  `json:"threshold"`
}

// PIIRedaction configures the PII redactor
type PIIRedaction struct {
	Enabled     bool     `json:"enabled"`
	Strategy    Strategy `json:"strategy"`
	EntityTypes []string `json:"entity_types"`
}

// PromptInjection configures the prompt-injection detector
type PromptInjection struct {
	Enabled  bool     `json:"enabled"`
	Strategy Strategy `json:"strategy"`
}

// DetectorSet holds the per-detector policies for one scope
type DetectorSet struct {
	HarmfulContent  HarmfulContent  `json:"harmful_content"`
	PIIRedaction    PIIRedaction    `json:"pii_redaction"`
	PromptInjection PromptInjection `json:"prompt_injection"`
}

// ResponseScreening controls the optional output-side pass
type ResponseScreening struct {
	Enabled        bool           `json:"enabled"`
	HarmfulContent HarmfulContent `json:"harmful_content"`
	PIIRedaction   PIIRedaction   `json:"pii_redaction"`
}

// Policy is the full guardrail configuration. It is parsed and validated
// once at startup and treated as immutable read-only state afterwards,
// so concurrent readers need no synchronization.
type Policy struct {
	Request  DetectorSet       `json:"enabled_detectors"`
	Response ResponseScreening `json:"response_screening"`
}

// DefaultEntityTypes are the entity types redacted when the policy does
// not name any.
var DefaultEntityTypes = []string{"person", "email", "phone", "ssn", "credit_card", "ip_address"}

// DefaultThreshold is the harmful-content score cutoff used when the
// policy omits one. Conservative: a missing entry must never weaken a
// check the caller expects.
const DefaultThreshold = 0.5

// Default returns the policy used when no policy document exists.
// Request-side detectors are on; response screening is off, matching
// the documented fallback for an absent configuration.
func Default() *Policy {
	return &Policy{
		Request: DetectorSet{
			HarmfulContent: HarmfulContent{
				Enabled:   true,
				Strategy:  StrategyML,
				Threshold: DefaultThreshold,
			},
			PIIRedaction: PIIRedaction{
				Enabled:     true,
				Strategy:    StrategyML,
				EntityTypes: DefaultEntityTypes,
			},
			PromptInjection: PromptInjection{
				Enabled:  true,
				Strategy: StrategyHeuristic,
			},
		},
		Response: ResponseScreening{
			Enabled: false,
			HarmfulContent: HarmfulContent{
				Enabled:   false,
				Strategy:  StrategyML,
				Threshold: DefaultThreshold,
			},
			PIIRedaction: PIIRedaction{
				Enabled:     false,
				Strategy:    StrategyML,
				EntityTypes: DefaultEntityTypes,
			},
		},
	}
}
