// Package issue fetches work requests from the issue tracker and posts step
// output back. It shells out to the platform CLI (gh or glab) so the
// operator's existing authentication is reused.
package issue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// DefaultTimeout bounds one tracker CLI invocation.
const DefaultTimeout = 60 * time.Second

// Options configures the tracker client.
type Options struct {
	// Repo is the owner/name slug. Empty lets the CLI infer the repository
	// from the working directory's git remote.
	Repo    string
	Timeout time.Duration
	Logger  *logging.Logger
	// BinPath overrides the platform CLI binary.
	BinPath string
}

// Client talks to one platform's issue tracker through its CLI.
type Client struct {
	platform core.Platform
	repo     string
	bin      string
	timeout  time.Duration
	log      *logging.Logger
}

var (
	_ core.IssueClient = (*Client)(nil)
	_ core.IssuePoster = (*Client)(nil)
)

// NewClient creates a tracker client for the given platform.
func NewClient(platform core.Platform, opts Options) *Client {
	bin := opts.BinPath
	if bin == "" {
		if platform == core.PlatformGitLab {
			bin = "glab"
		} else {
			bin = "gh"
		}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		platform: platform,
		repo:     opts.Repo,
		bin:      bin,
		timeout:  timeout,
		log:      log.WithComponent("issue"),
	}
}

// GetIssue retrieves an issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*core.Issue, error) {
	var args []string
	if c.platform == core.PlatformGitLab {
		args = []string{"issue", "view", strconv.Itoa(number), "--output", "json"}
	} else {
		args = []string{"issue", "view", strconv.Itoa(number),
			"--json", "number,title,body,url,state,labels"}
	}
	args = c.withRepo(args)

	output, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("getting issue #%d: %w", number, err)
	}

	if c.platform == core.PlatformGitLab {
		return parseGitLabIssue(output)
	}
	return parseGitHubIssue(output)
}

// PostComment adds a comment to an issue.
func (c *Client) PostComment(ctx context.Context, number int, body string) error {
	var args []string
	if c.platform == core.PlatformGitLab {
		args = []string{"issue", "note", strconv.Itoa(number), "--message", body}
	} else {
		args = []string{"issue", "comment", strconv.Itoa(number), "--body", body}
	}
	args = c.withRepo(args)

	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("commenting on issue #%d: %w", number, err)
	}
	c.log.Info("posted issue comment", "issue", number, "body_length", len(body))
	return nil
}

// VerifyAuth checks that the CLI is installed and authenticated.
func (c *Client) VerifyAuth(ctx context.Context) error {
	if _, err := exec.LookPath(c.bin); err != nil {
		return core.ErrNotFound("tracker CLI", c.bin).WithCause(err)
	}
	if _, err := c.run(ctx, "auth", "status"); err != nil {
		return core.ErrConfig(
			fmt.Sprintf("%s is not authenticated, run '%s auth login'", c.bin, c.bin))
	}
	return nil
}

// Platform returns the platform this client targets.
func (c *Client) Platform() core.Platform {
	return c.platform
}

func (c *Client) withRepo(args []string) []string {
	if c.repo == "" {
		return args
	}
	return append(args, "--repo", c.repo)
}

// run executes one tracker CLI command.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// #nosec G204 -- binary and args are built from validated config
	cmd := exec.CommandContext(ctx, c.bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log.Debug("running tracker command", "bin", c.bin, "args", args)

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", core.ErrTimeout(
				fmt.Sprintf("%s %s timed out after %s", c.bin, args[0], c.timeout))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if isNotFoundMessage(msg) {
			return "", core.ErrNotFound("issue", msg)
		}
		return "", fmt.Errorf("%s %s: %s", c.bin, strings.Join(args, " "), msg)
	}

	return strings.TrimSpace(stdout.String()), nil
}

func isNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "no issues") ||
		strings.Contains(lower, "could not resolve")
}

// parseGitHubIssue parses gh's issue JSON, where labels are objects.
func parseGitHubIssue(output string) (*core.Issue, error) {
	var data struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		URL    string `json:"url"`
		State  string `json:"state"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := json.Unmarshal([]byte(output), &data); err != nil {
		return nil, fmt.Errorf("parsing issue JSON: %w", err)
	}

	labels := make([]string, len(data.Labels))
	for i, l := range data.Labels {
		labels[i] = l.Name
	}

	return &core.Issue{
		Number: data.Number,
		Title:  data.Title,
		Body:   data.Body,
		Labels: labels,
		URL:    data.URL,
		State:  strings.ToLower(data.State),
	}, nil
}

// parseGitLabIssue parses glab's issue JSON, which mirrors the GitLab API:
// the number is iid, the body is description, labels are plain strings.
func parseGitLabIssue(output string) (*core.Issue, error) {
	var data struct {
		IID         int      `json:"iid"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Labels      []string `json:"labels"`
		WebURL      string   `json:"web_url"`
		State       string   `json:"state"`
	}
	if err := json.Unmarshal([]byte(output), &data); err != nil {
		return nil, fmt.Errorf("parsing issue JSON: %w", err)
	}

	state := strings.ToLower(data.State)
	if state == "opened" {
		state = "open"
	}

	return &core.Issue{
		Number: data.IID,
		Title:  data.Title,
		Body:   data.Description,
		Labels: data.Labels,
		URL:    data.WebURL,
		State:  state,
	}, nil
}
