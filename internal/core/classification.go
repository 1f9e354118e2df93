package core

import (
	"fmt"
	"strings"
)

// Classification is the closed vocabulary of request categories used by the
// legacy fallback selection tier.
type Classification string

const (
	ClassificationQuestion      Classification = "question"
	ClassificationDocumentation Classification = "documentation"
	ClassificationCodeChange    Classification = "code-change"
	ClassificationDebug         Classification = "debug-with-approval"
	ClassificationOrchestration Classification = "orchestration"
	ClassificationManualTest    Classification = "manual-test"
	ClassificationRelease       Classification = "release"
)

// DefaultClassification is the fallback when classification fails or the
// runner returns an unusable reply. A full code change is the safest
// assumption for an arbitrary work request.
const DefaultClassification = ClassificationCodeChange

// AllClassifications returns every valid classification in stable order.
func AllClassifications() []Classification {
	return []Classification{
		ClassificationQuestion,
		ClassificationDocumentation,
		ClassificationCodeChange,
		ClassificationDebug,
		ClassificationOrchestration,
		ClassificationManualTest,
		ClassificationRelease,
	}
}

// ClassificationTokens returns the reply vocabulary for classification calls.
func ClassificationTokens() []string {
	all := AllClassifications()
	tokens := make([]string, len(all))
	for i, c := range all {
		tokens[i] = string(c)
	}
	return tokens
}

// ParseClassification parses a string into a Classification. The input is
// normalized (trimmed, lowercased) before matching.
func ParseClassification(s string) (Classification, error) {
	normalized := Classification(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range AllClassifications() {
		if normalized == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid classification: %q", s)
}

// IsValid checks if the classification is a known value.
func (c Classification) IsValid() bool {
	for _, valid := range AllClassifications() {
		if c == valid {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (c Classification) String() string {
	return string(c)
}

// Description returns a human-readable description of the classification.
func (c Classification) Description() string {
	switch c {
	case ClassificationQuestion:
		return "A question to answer; no repository changes expected"
	case ClassificationDocumentation:
		return "Documentation needs to be written or updated"
	case ClassificationCodeChange:
		return "Code must be designed, implemented, and verified"
	case ClassificationDebug:
		return "A defect to diagnose; the fix requires human approval"
	case ClassificationOrchestration:
		return "Work that should be decomposed into smaller requests"
	case ClassificationManualTest:
		return "A manual test plan must be drafted and executed"
	case ClassificationRelease:
		return "A release must be prepared, tagged, and published"
	default:
		return "Unknown classification"
	}
}
