package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Wire format of the external policy document. Pointer fields
// distinguish "absent" from explicit false/zero so that absence can
// fall back to the documented defaults.
type document struct {
	EnabledDetectors  *detectorsDoc `json:"enabled_detectors"`
	ResponseScreening *screeningDoc `json:"response_screening"`
}

type detectorsDoc struct {
	HarmfulContent  *harmfulDoc   `json:"harmful_content"`
	PIIRedaction    *piiDoc       `json:"pii_redaction"`
	PromptInjection *injectionDoc `json:"prompt_injection"`
}

type screeningDoc struct {
	Enabled   *bool         `json:"enabled"`
	Detectors *detectorsDoc `json:"detectors"`
}

type harmfulDoc struct {
	Enabled   *bool    `json:"enabled"`
	Strategy  *string  `json:"strategy"`
	Threshold *float64 `json:"threshold"`
}

type piiDoc struct {
	Enabled     *bool    `json:"enabled"`
	Strategy    *string  `json:"strategy"`
	EntityTypes []string `json:"entity_types"`
}

type injectionDoc struct {
	Enabled  *bool   `json:"enabled"`
	Strategy *string `json:"strategy"`
}

// Load reads and validates the policy document at path. A missing file
// is not an error: the documented defaults apply. A file that exists
// but cannot be parsed or validated is an error, surfaced at startup
// rather than on the first request.
func Load(path string) (*Policy, error) {
	if !isValidFilePath(path) {
		return Default(), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - Path is validated with isValidFilePath() before use
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return Parse(data)
}

// Parse builds a validated Policy from raw JSON
func Parse(data []byte) (*Policy, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}

	p := Default()

	if doc.EnabledDetectors != nil {
		if err := applyDetectors(&p.Request, doc.EnabledDetectors); err != nil {
			return nil, err
		}
	}

	if doc.ResponseScreening != nil {
		if doc.ResponseScreening.Enabled != nil {
			p.Response.Enabled = *doc.ResponseScreening.Enabled
		}
		// Response-side detectors default to disabled: screening is
		// opt-in per detector, unlike the request scope.
		if det := doc.ResponseScreening.Detectors; det != nil {
			scope := DetectorSet{
				HarmfulContent: p.Response.HarmfulContent,
				PIIRedaction:   p.Response.PIIRedaction,
			}
			if err := applyDetectors(&scope, det); err != nil {
				return nil, err
			}
			p.Response.HarmfulContent = scope.HarmfulContent
			p.Response.PIIRedaction = scope.PIIRedaction
		}
	}

	if err := validate(p); err != nil {
		return nil, err
	}

	return p, nil
}

func applyDetectors(set *DetectorSet, doc *detectorsDoc) error {
	if h := doc.HarmfulContent; h != nil {
		if h.Enabled != nil {
			set.HarmfulContent.Enabled = *h.Enabled
		}
		if h.Strategy != nil {
			s, err := ParseStrategy(*h.Strategy)
			if err != nil {
				return fmt.Errorf("harmful_content: %w", err)
			}
			set.HarmfulContent.Strategy = s
		}
		if h.Threshold != nil {
			set.HarmfulContent.Threshold = *h.Threshold
		}
	}

	if pd := doc.PIIRedaction; pd != nil {
		if pd.Enabled != nil {
			set.PIIRedaction.Enabled = *pd.Enabled
		}
		if pd.Strategy != nil {
			s, err := ParseStrategy(*pd.Strategy)
			if err != nil {
				return fmt.Errorf("pii_redaction: %w", err)
			}
			set.PIIRedaction.Strategy = s
		}
		if pd.EntityTypes != nil {
			set.PIIRedaction.EntityTypes = pd.EntityTypes
		}
	}

	if inj := doc.PromptInjection; inj != nil {
		if inj.Enabled != nil {
			set.PromptInjection.Enabled = *inj.Enabled
		}
		if inj.Strategy != nil {
			s, err := ParseStrategy(*inj.Strategy)
			if err != nil {
				return fmt.Errorf("prompt_injection: %w", err)
			}
			set.PromptInjection.Strategy = s
		}
	}

	return nil
}

func validate(p *Policy) error {
	for scope, threshold := range map[string]float64{
		"request":  p.Request.HarmfulContent.Threshold,
		"response": p.Response.HarmfulContent.Threshold,
	} {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%s harmful_content threshold %v outside [0,1]", scope, threshold)
		}
	}
	return nil
}

// isValidFilePath checks if a file path is valid and safe
func isValidFilePath(filePath string) bool {
	if filePath == "" {
		return false
	}

	cleanPath := filepath.Clean(filePath)

	// Reject path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return false
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return false
	}

	if strings.HasPrefix(absPath, "/proc") ||
		strings.HasPrefix(absPath, "/sys") ||
		strings.HasPrefix(absPath, "/dev") {
		return false
	}

	return true
}
