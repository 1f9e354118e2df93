package runner

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
)

func TestMatchToken(t *testing.T) {
	vocab := []string{"question", "documentation", "code-change", "debug-with-approval", "release"}

	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"exact", "code-change", "code-change"},
		{"case insensitive", "Code-Change", "code-change"},
		{"surrounding whitespace", "  release \n", "release"},
		{"trailing period", "question.", "question"},
		{"quoted", `"documentation"`, "documentation"},
		{"backticked", "`release`", "release"},
		{"code fence", "```\ncode-change\n```", "code-change"},
		{"inline fence", "```code-change```", "code-change"},
		{"preamble lines", "Let me think about this.\n\ncode-change", "code-change"},
		{"token inside sentence", "The best fit is release here", "release"},
		{"hyphenated token whole", "debug-with-approval", "debug-with-approval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchToken(tt.reply, vocab)
			if err != nil {
				t.Fatalf("matchToken(%q) error = %v", tt.reply, err)
			}
			if got != tt.want {
				t.Errorf("matchToken(%q) = %q, want %q", tt.reply, got, tt.want)
			}
		})
	}
}

func TestMatchTokenNoMatch(t *testing.T) {
	_, err := matchToken("I refuse to answer", []string{"question", "release"})
	if err == nil {
		t.Fatal("expected error for reply with no vocabulary token")
	}

	var domErr *core.DomainError
	if !errors.As(err, &domErr) {
		t.Fatalf("expected DomainError, got %T", err)
	}
	if domErr.Code != core.CodeBadToken {
		t.Errorf("Code = %q, want %q", domErr.Code, core.CodeBadToken)
	}
}

func TestMatchTokenAmbiguous(t *testing.T) {
	_, err := matchToken("either question or release works", []string{"question", "release"})
	if err == nil {
		t.Fatal("expected error for reply matching multiple tokens")
	}

	var domErr *core.DomainError
	if !errors.As(err, &domErr) {
		t.Fatalf("expected DomainError, got %T", err)
	}
	if domErr.Code != core.CodeBadToken {
		t.Errorf("Code = %q, want %q", domErr.Code, core.CodeBadToken)
	}
	if !strings.Contains(domErr.Message, "multiple") {
		t.Errorf("Message = %q, want mention of multiple matches", domErr.Message)
	}
}

func TestMatchTokenBoundaries(t *testing.T) {
	// "debug" must not match inside "debug-with-approval", and a token
	// followed by punctuation still counts.
	vocab := []string{"debug", "debug-with-approval"}

	got, err := matchToken("use debug-with-approval for this", vocab)
	if err != nil {
		t.Fatalf("matchToken error = %v", err)
	}
	if got != "debug-with-approval" {
		t.Errorf("matchToken = %q, want %q", got, "debug-with-approval")
	}

	got, err = matchToken("plain debug, nothing else", vocab)
	if err != nil {
		t.Fatalf("matchToken error = %v", err)
	}
	if got != "debug" {
		t.Errorf("matchToken = %q, want %q", got, "debug")
	}
}

func TestMatchTokenIgnoresSubstringWords(t *testing.T) {
	// "release" inside "released" is not a token occurrence.
	_, err := matchToken("it was released yesterday", []string{"release"})
	if err == nil {
		t.Fatal("expected no-match error for substring occurrence")
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"code-change", "code-change"},
		{"  code-change  ", "code-change"},
		{"answer:\ncode-change\n", "code-change"},
		{"```\nrelease\n```", "release"},
		{"\"question\"", "question"},
		{"release!", "release"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := cleanReply(tt.in); got != tt.want {
			t.Errorf("cleanReply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComposeTokenPrompt(t *testing.T) {
	prompt := composeTokenPrompt(core.TokenQuery{
		Instructions: "Pick one workflow.",
		Input:        "Fix the login crash",
		Vocabulary:   []string{"implement", "debug"},
	})

	if !strings.HasPrefix(prompt, "Pick one workflow.") {
		t.Errorf("prompt should start with instructions, got %q", prompt)
	}
	if !strings.Contains(prompt, "<work_request>\nFix the login crash\n</work_request>") {
		t.Errorf("prompt missing tagged request, got %q", prompt)
	}
}

func TestComposeStepPrompt(t *testing.T) {
	req := core.StepRequest{
		SessionID:   "sess-1",
		RequestText: "Add a retry flag",
		PriorOutput: "diff applied",
		Addendum:    "Address every failure.",
		Timeout:     time.Minute,
	}

	prompt := composeStepPrompt("Do the work.", req)

	for _, want := range []string{
		"Do the work.",
		"<work_request>\nAdd a retry flag\n</work_request>",
		"<prior_step_output>\ndiff applied\n</prior_step_output>",
		"Address every failure.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	if strings.Index(prompt, "<work_request>") > strings.Index(prompt, "<prior_step_output>") {
		t.Error("prior output should come after the work request")
	}
}

func TestComposeStepPromptOmitsEmptySections(t *testing.T) {
	prompt := composeStepPrompt("Do the work.", core.StepRequest{RequestText: "Add a flag"})

	if strings.Contains(prompt, "prior_step_output") {
		t.Errorf("empty prior output should not emit its tag:\n%s", prompt)
	}
}
