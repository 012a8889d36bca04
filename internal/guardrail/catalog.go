package guardrail

import (
	"regexp"
)

// Pattern categories reported in verdicts. Verdicts carry category names
// only, never the matched text, so logs stay free of raw PII.
const (
	CategoryInjection = "prompt_injection"
	CategoryPII       = "pii"
	CategorySecret    = "secret"
)

// Redaction placeholders. They deliberately contain no digits or '@' so
// that redacting already-redacted text changes nothing.
const (
	PlaceholderEmail       = "[EMAIL_REDACTED]"
	PlaceholderPhone       = "[PHONE_REDACTED]"
	PlaceholderInstruction = "[INSTRUCTION_REMOVED]"
	PlaceholderSecret      = "[SECRET_REDACTED]"
)

// pattern is one named detection rule.
type pattern struct {
	name string
	re   *regexp.Regexp
}

// catalog is an immutable, versioned set of compiled patterns. Catalogs
// are built once at construction; evaluation never mutates them, so a
// single evaluator is safe for concurrent use.
type catalog struct {
	version  string
	patterns []pattern
}

func mustCatalog(version string, rules map[string]string, order []string) catalog {
	patterns := make([]pattern, 0, len(order))
	for _, name := range order {
		patterns = append(patterns, pattern{name: name, re: regexp.MustCompile(rules[name])})
	}
	return catalog{version: version, patterns: patterns}
}

// injectionCatalog matches attempts to override or leak the system
// instructions. All patterns are case-insensitive.
var injectionCatalog = mustCatalog("injection-v1", map[string]string{
	"ignore_instructions":    `(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`,
	"disregard_instructions": `(?i)disregard\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`,
	"forget_instructions":    `(?i)forget\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|prompts?|rules?)`,
	"role_override":          `(?i)you\s+are\s+now\s+an?\s*\w+`,
	"system_prompt":          `(?i)system\s*:\s*`,
	"system_tag":             `(?i)<\s*system\s*>`,
	"jailbreak":              `(?i)jailbreak`,
	"sudo_mode":              `(?i)sudo\s+mode`,
	"developer_mode":         `(?i)developer\s+mode`,
	"admin_mode":             `(?i)admin\s+mode`,
	"root_access":            `(?i)root\s+access`,
	"inst_token":             `(?i)\[INST\]|\[/INST\]`,
	"template_token":         `<\|[^|]*\|>`,
}, []string{
	"ignore_instructions",
	"disregard_instructions",
	"forget_instructions",
	"role_override",
	"system_prompt",
	"system_tag",
	"jailbreak",
	"sudo_mode",
	"developer_mode",
	"admin_mode",
	"root_access",
	"inst_token",
	"template_token",
})

// piiCatalog matches personally identifiable information that must not
// leave the pipeline. Phone patterns cover international, US, and UAE
// local formats.
var piiCatalog = mustCatalog("pii-v1", map[string]string{
	"email":      `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	"phone_intl": `\+\d{1,3}[-.\s]?\(?\d{1,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,6}`,
	"phone_us":   `\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`,
	"phone_uae":  `\b05\d[-.\s]?\d{3}[-.\s]?\d{4}\b`,
}, []string{
	"email",
	"phone_intl",
	"phone_us",
	"phone_uae",
})

// piiPlaceholder maps a PII pattern name to its redaction placeholder.
func piiPlaceholder(name string) string {
	if name == "email" {
		return PlaceholderEmail
	}
	return PlaceholderPhone
}
