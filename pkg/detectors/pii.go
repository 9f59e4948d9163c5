package detectors

import (
	"context"
	"regexp"
	"strings"

	"github.com/promptshield/promptshield/pkg/policy"
)

// entityPattern is a single PII entity matcher. Replacement defaults to
// the type-tagged placeholder; patterns that need to keep surrounding
// context supply their own template.
type entityPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// Patterns keyed by entity type name as used in policy documents. None
// of the placeholders re-match any pattern, so redaction is idempotent.
var entityPatterns = map[string][]entityPattern{
	"email": {
		{pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)},
	},
	"phone": {
		{pattern: regexp.MustCompile(`\b(\+\d{1,2}\s)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
	},
	"ssn": {
		{pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	},
	"credit_card": {
		{pattern: regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
	},
	"ip_address": {
		{pattern: regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
	},
	"person": {
		// Honorific followed by a capitalized name
		{pattern: regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`)},
		// Self-introductions: "my name is Jane Doe"
		{
			pattern:     regexp.MustCompile(`((?i:my name is|i am|i'm|this is)\s+)([A-Z][a-z]+(?: [A-Z][a-z]+)+)`),
			replacement: "${1}[REDACTED:PERSON]",
		},
	},
}

// PIIRedactor replaces sensitive entities of the configured types with
// type-tagged placeholders like [REDACTED:EMAIL].
type PIIRedactor struct {
	pol      policy.PIIRedaction
	patterns []namedEntity
}

type namedEntity struct {
	typeName string
	entityPattern
}

// NewPIIRedactor creates a redactor for the entity types the policy
// names. Unknown entity types are ignored.
func NewPIIRedactor(pol policy.PIIRedaction) *PIIRedactor {
	var patterns []namedEntity
	for _, typeName := range pol.EntityTypes {
		key := strings.ToLower(typeName)
		for _, ep := range entityPatterns[key] {
			patterns = append(patterns, namedEntity{typeName: key, entityPattern: ep})
		}
	}
	return &PIIRedactor{pol: pol, patterns: patterns}
}

// Name implements interfaces.Transformer
func (p *PIIRedactor) Name() string {
	return "pii_redaction"
}

// Enabled reports whether the policy enables this step
func (p *PIIRedactor) Enabled() bool {
	return p.pol.Enabled
}

// Strategy returns the policy strategy the redactor was built with
func (p *PIIRedactor) Strategy() policy.Strategy {
	return p.pol.Strategy
}

// EntityTypes returns the entity types the redactor was built with
func (p *PIIRedactor) EntityTypes() []string {
	return p.pol.EntityTypes
}

// Transform redacts configured entities, reporting whether anything was
// replaced. Disabled policy returns the input unchanged.
func (p *PIIRedactor) Transform(ctx context.Context, text string) (string, bool, error) {
	if !p.pol.Enabled {
		return text, false, nil
	}

	modified := text
	for _, ne := range p.patterns {
		if !ne.pattern.MatchString(modified) {
			continue
		}
		replacement := ne.replacement
		if replacement == "" {
			replacement = "[REDACTED:" + strings.ToUpper(ne.typeName) + "]"
		}
		modified = ne.pattern.ReplaceAllString(modified, replacement)
	}

	return modified, modified != text, nil
}
