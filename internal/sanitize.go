package internal

import (
	"fmt"
	"regexp"
)

type SanitizationError struct {
	Message string
	Details string
}

func (e *SanitizationError) Error() string {
	return e.Message + ": " + e.Details
}

var (
	// Node core modules that reach outside the sandboxed workspace.
	dangerousModules = compileAll(
		`require\(\s*['"](node:)?(fs|child_process|cluster|worker_threads|net|dgram|vm|os)['"]\s*\)`,
		`import\s+.*\s+from\s+['"](node:)?(fs|child_process|cluster|worker_threads|net|dgram|vm|os)['"]`,
		`import\(\s*['"](node:)?(fs|child_process|vm)['"]\s*\)`,
	)

	dangerousOps = compileAll(
		`process\.(exit|kill|abort|binding|dlopen)\s*\(`,
		`\beval\s*\(`,
		`new\s+Function\b`,
		`\bFunction\s*\(`,
		`process\.env\b`,
	)
)

// CheckLength rejects payloads longer than maxLength bytes.
func CheckLength(payload string, maxLength int) error {
	if len(payload) > maxLength {
		return &SanitizationError{
			Message: "Code length exceeds maximum limit",
			Details: fmt.Sprintf("Max length allowed is %d", maxLength),
		}
	}
	return nil
}

// SanitizeCode enforces the length limit and, when screen is set, rejects
// code that loads restricted Node modules or performs restricted operations.
func SanitizeCode(code string, maxCodeLength int, screen bool) error {
	if err := CheckLength(code, maxCodeLength); err != nil {
		return err
	}
	if !screen {
		return nil
	}

	if matchAny(dangerousModules, code) {
		return &SanitizationError{
			Message: "Prohibited JS module detected",
			Details: "Code attempts to import restricted system modules",
		}
	}

	if matchAny(dangerousOps, code) {
		return &SanitizationError{
			Message: "Prohibited JS operation detected",
			Details: "Code attempts to perform potentially unsafe operations",
		}
	}

	return nil
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, code string) bool {
	for _, re := range patterns {
		if re.MatchString(code) {
			return true
		}
	}
	return false
}
