package guardrail

import (
	"fmt"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// secretScanner wraps a gitleaks detector to scrub credentials from
// generated text. The default ruleset covers API keys, tokens, and
// private key material for the major providers.
type secretScanner struct {
	detector *detect.Detector
}

// newSecretScanner compiles the default gitleaks ruleset. Compilation is
// expensive, so scanners are built once at evaluator construction.
func newSecretScanner() (*secretScanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	return &secretScanner{detector: detector}, nil
}

// scrub replaces every detected secret with the redaction placeholder
// and returns the rule ids that fired.
func (s *secretScanner) scrub(text string) (string, []string) {
	findings := s.detector.DetectString(text)
	if len(findings) == 0 {
		return text, nil
	}

	var rules []string
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, f.Secret, PlaceholderSecret)
		rules = appendUnique(rules, f.RuleID)
	}
	return text, rules
}
