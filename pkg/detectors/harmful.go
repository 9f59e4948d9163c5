package detectors

import (
	"context"
	"fmt"

	"github.com/promptshield/promptshield/pkg/interfaces"
	"github.com/promptshield/promptshield/pkg/policy"
)

// HarmfulContent blocks text the configured classifier scores at or
// above the policy threshold. The classifier backend is chosen from the
// policy strategy when the detector is built, not per request.
type HarmfulContent struct {
	pol        policy.HarmfulContent
	classifier interfaces.Classifier
}

// NewHarmfulContent creates a harmful-content detector bound to a
// classifier backend
func NewHarmfulContent(pol policy.HarmfulContent, classifier interfaces.Classifier) *HarmfulContent {
	return &HarmfulContent{pol: pol, classifier: classifier}
}

// Name implements interfaces.Detector
func (h *HarmfulContent) Name() string {
	return "harmful_content"
}

// Enabled reports whether the policy enables this step
func (h *HarmfulContent) Enabled() bool {
	return h.pol.Enabled
}

// Strategy returns the policy strategy the detector was built with
func (h *HarmfulContent) Strategy() policy.Strategy {
	return h.pol.Strategy
}

// Evaluate scores text and blocks when score >= threshold. The
// comparison is inclusive: a score exactly at the threshold blocks,
// which keeps decisions deterministic at the boundary. A disabled
// policy always allows, with no reason and no classifier call.
func (h *HarmfulContent) Evaluate(ctx context.Context, text string) (interfaces.Decision, error) {
	if !h.pol.Enabled {
		return interfaces.Decision{}, nil
	}

	score, category, err := h.classifier.Score(ctx, text)
	if err != nil {
		return interfaces.Decision{}, fmt.Errorf("harmful content classification failed: %w", err)
	}

	if score >= h.pol.Threshold {
		if category == "" {
			category = "harmful content"
		}
		return interfaces.Decision{
			Blocked: true,
			Reason:  fmt.Sprintf("harmful content detected: %s", category),
		}, nil
	}

	return interfaces.Decision{}, nil
}
