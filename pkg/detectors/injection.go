package detectors

import (
	"context"
	"fmt"
	"regexp"

	"github.com/promptshield/promptshield/pkg/interfaces"
	"github.com/promptshield/promptshield/pkg/policy"
)

// injectionRule is a single named jailbreak/override pattern
type injectionRule struct {
	name    string
	pattern *regexp.Regexp
}

// Rules are checked in order; the first match wins and its name becomes
// the block reason.
var injectionRules = []injectionRule{
	{
		name: "instruction_override",
		pattern: regexp.MustCompile(
			`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|your)\s+(previous\s+)?(instructions?|rules?|guidelines?)`),
	},
	{
		name: "system_prompt_exfiltration",
		pattern: regexp.MustCompile(
			`(?i)(show|reveal|display|print|output|repeat)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?)`),
	},
	{
		name: "safety_override",
		pattern: regexp.MustCompile(
			`(?i)override\s+(all\s+)?(safety|security)\s+(rules?|protocols?|guidelines?)`),
	},
	{
		name: "persona_unlock",
		pattern: regexp.MustCompile(
			`(?i)you\s+are\s+now\s+(free|unrestricted|unfiltered|DAN)`),
	},
	{
		name: "role_reset",
		pattern: regexp.MustCompile(
			`(?i)(new\s+instructions?\s*:|system\s*:\s*(you\s+are|ignore|forget))`),
	},
	{
		name: "embedded_directive",
		pattern: regexp.MustCompile(
			`(?i)(\[INST\]|<\|im_start\|>system|BEGIN\s+HIDDEN\s+INSTRUCTIONS?)`),
	},
}

// PromptInjection flags jailbreak and instruction-override attempts
// using case-insensitive phrase heuristics.
type PromptInjection struct {
	pol   policy.PromptInjection
	rules []injectionRule
}

// NewPromptInjection creates a prompt-injection detector
func NewPromptInjection(pol policy.PromptInjection) *PromptInjection {
	return &PromptInjection{pol: pol, rules: injectionRules}
}

// Name implements interfaces.Detector
func (p *PromptInjection) Name() string {
	return "prompt_injection"
}

// Enabled reports whether the policy enables this step
func (p *PromptInjection) Enabled() bool {
	return p.pol.Enabled
}

// Strategy returns the policy strategy the detector was built with
func (p *PromptInjection) Strategy() policy.Strategy {
	return p.pol.Strategy
}

// Evaluate scans text against the rule list. First match wins; no match
// means the text passes. A disabled policy always passes.
func (p *PromptInjection) Evaluate(ctx context.Context, text string) (interfaces.Decision, error) {
	if !p.pol.Enabled {
		return interfaces.Decision{}, nil
	}

	for _, rule := range p.rules {
		if rule.pattern.MatchString(text) {
			return interfaces.Decision{
				Blocked: true,
				Reason:  fmt.Sprintf("prompt injection detected: %s", rule.name),
			}, nil
		}
	}

	return interfaces.Decision{}, nil
}
