package issue

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// fakeBin writes a shell script standing in for gh/glab.
func fakeBin(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI scripts require a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	path := filepath.Join(t.TempDir(), "fake-tracker")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func recordedArgs(t *testing.T, argsFile string) string {
	t.Helper()
	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("fake CLI did not record args: %v", err)
	}
	return string(raw)
}

func TestGetIssueGitHub(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := fakeBin(t, fmt.Sprintf(`printf '%%s\n' "$@" > %q
cat <<'EOF'
{"number": 42, "title": "Login crashes", "body": "Steps to reproduce...", "url": "https://github.com/acme/app/issues/42", "state": "OPEN", "labels": [{"name": "bug"}, {"name": "frontend"}]}
EOF`, argsFile))

	c := NewClient(core.PlatformGitHub, Options{BinPath: bin, Repo: "acme/app"})

	issue, err := c.GetIssue(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetIssue() error = %v", err)
	}

	if issue.Number != 42 {
		t.Errorf("Number = %d, want 42", issue.Number)
	}
	if issue.Title != "Login crashes" {
		t.Errorf("Title = %q", issue.Title)
	}
	if issue.State != "open" {
		t.Errorf("State = %q, want lowercased open", issue.State)
	}
	if len(issue.Labels) != 2 || issue.Labels[0] != "bug" || issue.Labels[1] != "frontend" {
		t.Errorf("Labels = %v, want names extracted", issue.Labels)
	}

	args := recordedArgs(t, argsFile)
	for _, want := range []string{"issue", "view", "42", "--json", "--repo", "acme/app"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q:\n%s", want, args)
		}
	}
}

func TestGetIssueGitLab(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := fakeBin(t, fmt.Sprintf(`printf '%%s\n' "$@" > %q
cat <<'EOF'
{"iid": 7, "title": "Pipeline flaky", "description": "The deploy stage...", "labels": ["ci", "flaky"], "web_url": "https://gitlab.com/acme/app/-/issues/7", "state": "opened"}
EOF`, argsFile))

	c := NewClient(core.PlatformGitLab, Options{BinPath: bin})

	issue, err := c.GetIssue(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetIssue() error = %v", err)
	}

	if issue.Number != 7 {
		t.Errorf("Number = %d, want iid 7", issue.Number)
	}
	if issue.Body != "The deploy stage..." {
		t.Errorf("Body = %q, want description mapped", issue.Body)
	}
	if issue.State != "open" {
		t.Errorf("State = %q, want opened normalized to open", issue.State)
	}
	if len(issue.Labels) != 2 || issue.Labels[0] != "ci" {
		t.Errorf("Labels = %v", issue.Labels)
	}

	args := recordedArgs(t, argsFile)
	if !strings.Contains(args, "--output") || !strings.Contains(args, "json") {
		t.Errorf("glab should use --output json:\n%s", args)
	}
	if strings.Contains(args, "--repo") {
		t.Errorf("no repo configured, args should omit --repo:\n%s", args)
	}
}

func TestPostCommentGitHub(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := fakeBin(t, fmt.Sprintf(`printf '%%s\n' "$@" > %q`, argsFile))

	c := NewClient(core.PlatformGitHub, Options{BinPath: bin, Repo: "acme/app"})

	if err := c.PostComment(context.Background(), 42, "Step output here"); err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}

	args := recordedArgs(t, argsFile)
	for _, want := range []string{"issue", "comment", "42", "--body", "Step output here"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q:\n%s", want, args)
		}
	}
}

func TestPostCommentGitLab(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := fakeBin(t, fmt.Sprintf(`printf '%%s\n' "$@" > %q`, argsFile))

	c := NewClient(core.PlatformGitLab, Options{BinPath: bin})

	if err := c.PostComment(context.Background(), 7, "Done"); err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}

	args := recordedArgs(t, argsFile)
	for _, want := range []string{"issue", "note", "7", "--message", "Done"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q:\n%s", want, args)
		}
	}
}

func TestGetIssueNotFound(t *testing.T) {
	bin := fakeBin(t, `echo "GraphQL: Could not resolve to an Issue (repository.issue)" >&2; exit 1`)

	c := NewClient(core.PlatformGitHub, Options{BinPath: bin})

	_, err := c.GetIssue(context.Background(), 999)
	if err == nil {
		t.Fatal("expected error for missing issue")
	}
	if !core.IsCategory(err, core.ErrCatNotFound) {
		t.Errorf("expected not-found category, got %v", err)
	}
}

func TestGetIssueCLIFailure(t *testing.T) {
	bin := fakeBin(t, `echo "server error" >&2; exit 1`)

	c := NewClient(core.PlatformGitHub, Options{BinPath: bin})

	_, err := c.GetIssue(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "server error") {
		t.Errorf("error should carry stderr, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	bin := fakeBin(t, `exec sleep 5`)

	c := NewClient(core.PlatformGitHub, Options{BinPath: bin, Timeout: 150 * time.Millisecond})

	_, err := c.GetIssue(context.Background(), 1)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !core.IsCategory(err, core.ErrCatTimeout) {
		t.Errorf("expected timeout category, got %v", err)
	}
}

func TestVerifyAuthMissingCLI(t *testing.T) {
	c := NewClient(core.PlatformGitHub, Options{BinPath: "switchyard-no-such-cli"})

	err := c.VerifyAuth(context.Background())
	if err == nil {
		t.Fatal("expected error for missing CLI")
	}
	if !core.IsCategory(err, core.ErrCatNotFound) {
		t.Errorf("expected not-found category, got %v", err)
	}
}

func TestVerifyAuthUnauthenticated(t *testing.T) {
	bin := fakeBin(t, `echo "You are not logged in" >&2; exit 1`)

	c := NewClient(core.PlatformGitHub, Options{BinPath: bin})

	err := c.VerifyAuth(context.Background())
	if err == nil {
		t.Fatal("expected error for unauthenticated CLI")
	}
	if !core.IsCategory(err, core.ErrCatConfig) {
		t.Errorf("expected config category, got %v", err)
	}
	if !strings.Contains(err.Error(), "auth login") {
		t.Errorf("error should tell the user how to fix it, got %v", err)
	}
}

func TestParseGitHubIssueMalformed(t *testing.T) {
	_, err := parseGitHubIssue("not json at all")
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseGitLabIssueMalformed(t *testing.T) {
	_, err := parseGitLabIssue("<html>error</html>")
	if err == nil {
		t.Fatal("expected parse error")
	}
}
