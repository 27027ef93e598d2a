// Package host provides GitHub operations via the gh CLI. Everything here
// runs on the host, not in sandbox containers: these are pure API calls
// and gh carries the authentication.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"codepilot/pkg/logx"
)

// DefaultBase is the default target branch for pull requests.
const DefaultBase = "main"

// runner executes a gh invocation; swapped out in tests.
type runner func(ctx context.Context, args ...string) ([]byte, error)

// Client provides GitHub API operations for one repository.
type Client struct {
	owner   string
	repo    string
	logger  *logx.Logger
	timeout time.Duration
	run     runner
}

// NewClient creates a client for the given repository.
func NewClient(owner, repo string) *Client {
	c := &Client{
		owner:   owner,
		repo:    repo,
		logger:  logx.NewLogger("host"),
		timeout: 30 * time.Second,
	}
	c.run = c.execGH
	return c
}

// NewClientFromRemote creates a client by parsing a git remote URL.
func NewClientFromRemote(remoteURL string) (*Client, error) {
	owner, repo, err := ParseGitHubURL(remoteURL)
	if err != nil {
		return nil, err
	}
	return NewClient(owner, repo), nil
}

// RepoPath returns the owner/repo path.
func (c *Client) RepoPath() string {
	return fmt.Sprintf("%s/%s", c.owner, c.repo)
}

func (c *Client) execGH(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("executing: gh %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "gh", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("gh command failed: %w\nOutput: %s", err, string(output))
	}
	return output, nil
}

func (c *Client) runJSON(ctx context.Context, result any, args ...string) error {
	output, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	if len(output) == 0 {
		return nil
	}
	if err := json.Unmarshal(output, result); err != nil {
		return fmt.Errorf("parse gh JSON response: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// ReadIssueBody returns the body of the numbered issue.
func (c *Client) ReadIssueBody(ctx context.Context, number int) (string, error) {
	var issue struct {
		Body string `json:"body"`
	}
	args := []string{
		"issue", "view", fmt.Sprintf("%d", number),
		"--repo", c.RepoPath(),
		"--json", "body",
	}
	if err := c.runJSON(ctx, &issue, args...); err != nil {
		return "", fmt.Errorf("read issue %d: %w", number, err)
	}
	return issue.Body, nil
}

// WriteIssueBody replaces the body of the numbered issue.
func (c *Client) WriteIssueBody(ctx context.Context, number int, body string) error {
	args := []string{
		"issue", "edit", fmt.Sprintf("%d", number),
		"--repo", c.RepoPath(),
		"--body", body,
	}
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("write issue %d: %w", number, err)
	}
	return nil
}

// PullRequest represents a GitHub pull request. Field names match gh CLI
// --json output.
type PullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	State       string `json:"state"`
	HeadRefName string `json:"headRefName"`
	BaseRefName string `json:"baseRefName"`
}

// PROptions describes the pull request to create or refresh.
type PROptions struct {
	Title string
	Body  string
	Head  string
	Base  string
	Draft bool
}

// CreateOrUpdatePR creates a pull request for opts.Head, or updates the
// title and body of the open one when it already exists.
func (c *Client) CreateOrUpdatePR(ctx context.Context, opts PROptions) (*PullRequest, error) {
	if opts.Base == "" {
		opts.Base = DefaultBase
	}

	var existing []PullRequest
	listArgs := []string{
		"pr", "list",
		"--repo", c.RepoPath(),
		"--head", opts.Head,
		"--state", "open",
		"--json", "number,url,title,state,headRefName,baseRefName",
	}
	if err := c.runJSON(ctx, &existing, listArgs...); err != nil {
		return nil, fmt.Errorf("list PRs for %s: %w", opts.Head, err)
	}

	if len(existing) > 0 {
		pr := existing[0]
		editArgs := []string{
			"pr", "edit", fmt.Sprintf("%d", pr.Number),
			"--repo", c.RepoPath(),
			"--title", opts.Title,
			"--body", opts.Body,
		}
		if _, err := c.run(ctx, editArgs...); err != nil {
			return nil, fmt.Errorf("update PR #%d: %w", pr.Number, err)
		}
		pr.Title = opts.Title
		return &pr, nil
	}

	createArgs := []string{
		"pr", "create",
		"--repo", c.RepoPath(),
		"--head", opts.Head,
		"--base", opts.Base,
		"--title", opts.Title,
		"--body", opts.Body,
	}
	if opts.Draft {
		createArgs = append(createArgs, "--draft")
	}
	if _, err := c.run(ctx, createArgs...); err != nil {
		return nil, fmt.Errorf("create PR for %s: %w", opts.Head, err)
	}

	var created []PullRequest
	if err := c.runJSON(ctx, &created, listArgs...); err != nil {
		return nil, fmt.Errorf("read back created PR for %s: %w", opts.Head, err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("PR for %s not found after creation", opts.Head)
	}
	return &created[0], nil
}

// CheckAuth verifies that the gh CLI is authenticated.
func CheckAuth(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gh auth check failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// ParseGitHubURL extracts owner and repo from SSH and HTTPS GitHub URLs.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	var path string
	switch {
	case strings.HasPrefix(url, "git@github.com:"):
		path = strings.TrimPrefix(url, "git@github.com:")
	case strings.HasPrefix(url, "https://github.com/"):
		path = strings.TrimPrefix(url, "https://github.com/")
	default:
		return "", "", fmt.Errorf("unsupported Git URL format: %s", url)
	}
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub URL format: %s", url)
	}
	return parts[0], parts[1], nil
}
