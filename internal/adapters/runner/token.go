package runner

import (
	"fmt"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// composeTokenPrompt builds the prompt for a closed-vocabulary query.
func composeTokenPrompt(q core.TokenQuery) string {
	var b strings.Builder
	b.WriteString(q.Instructions)
	b.WriteString("\n\n<work_request>\n")
	b.WriteString(q.Input)
	b.WriteString("\n</work_request>\n")
	return b.String()
}

// composeStepPrompt builds the prompt for a step execution from the
// resolved instructions and the request context.
func composeStepPrompt(instructions string, req core.StepRequest) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n<work_request>\n")
	b.WriteString(req.RequestText)
	b.WriteString("\n</work_request>\n")
	if req.PriorOutput != "" {
		b.WriteString("\n<prior_step_output>\n")
		b.WriteString(req.PriorOutput)
		b.WriteString("\n</prior_step_output>\n")
	}
	if req.Addendum != "" {
		b.WriteString("\n")
		b.WriteString(req.Addendum)
		b.WriteString("\n")
	}
	return b.String()
}

// matchToken maps a raw CLI reply onto the query vocabulary. Exact matches
// after trimming win; otherwise the reply must contain exactly one
// vocabulary token. Anything else is a BAD_TOKEN runner error.
func matchToken(reply string, vocabulary []string) (string, error) {
	cleaned := cleanReply(reply)

	for _, tok := range vocabulary {
		if strings.EqualFold(cleaned, tok) {
			return tok, nil
		}
	}

	lower := strings.ToLower(cleaned)
	var found string
	for _, tok := range vocabulary {
		if containsToken(lower, strings.ToLower(tok)) {
			if found != "" && found != tok {
				return "", core.ErrRunner(core.CodeBadToken,
					fmt.Sprintf("reply matches multiple tokens (%q, %q): %s", found, tok, truncate(cleaned, 120)))
			}
			found = tok
		}
	}
	if found == "" {
		return "", core.ErrRunner(core.CodeBadToken,
			fmt.Sprintf("reply matches no vocabulary token: %s", truncate(cleaned, 120)))
	}
	return found, nil
}

// cleanReply strips the wrapping agents put around single-token answers:
// whitespace, code fences, quotes, and trailing punctuation.
func cleanReply(reply string) string {
	s := strings.TrimSpace(reply)

	// Keep only the last non-empty line; CLIs often preface the answer.
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || line == "```" {
			continue
		}
		s = line
		break
	}

	s = strings.TrimPrefix(s, "```")
	s = strings.Trim(s, "`\"' ")
	s = strings.TrimRight(s, ".!,")
	return strings.TrimSpace(s)
}

// containsToken reports whether token occurs in s on its own, not as a
// substring of a larger word. Tokens may contain hyphens, so boundaries are
// anything that is not a letter, digit, or hyphen.
func containsToken(s, token string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], token)
		if i < 0 {
			return false
		}
		i += start
		before := i - 1
		after := i + len(token)
		leftOK := before < 0 || !isTokenChar(s[before])
		rightOK := after >= len(s) || !isTokenChar(s[after])
		if leftOK && rightOK {
			return true
		}
		start = i + 1
	}
}

func isTokenChar(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
