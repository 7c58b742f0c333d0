// Package pr opens pull requests for finished task branches through the
// GitHub CLI.
package pr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Options describes one pull request.
type Options struct {
	Title     string
	Body      string
	Branch    string
	Base      string
	Draft     bool
	Reviewers []string
	Labels    []string
	// Dir is the working tree gh runs in.
	Dir string
}

// Runner executes gh with args in dir and returns its combined output.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// Client creates pull requests.
type Client struct {
	run Runner
}

// NewClient returns a Client that shells out to gh.
func NewClient() *Client {
	return &Client{run: runGH}
}

// NewClientWithRunner returns a Client using run instead of gh.
func NewClientWithRunner(run Runner) *Client {
	return &Client{run: run}
}

func runGH(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// BuildArgs returns the gh arguments for opts.
func BuildArgs(opts Options) []string {
	args := []string{"pr", "create",
		"--title", opts.Title,
		"--body", opts.Body,
		"--head", opts.Branch,
	}
	if opts.Base != "" {
		args = append(args, "--base", opts.Base)
	}

	if opts.Draft {
		args = append(args, "--draft")
	}

	for _, reviewer := range opts.Reviewers {
		args = append(args, "--reviewer", reviewer)
	}

	for _, label := range opts.Labels {
		args = append(args, "--label", label)
	}

	return args
}

// Create opens the pull request and returns its URL.
func (c *Client) Create(ctx context.Context, opts Options) (string, error) {
	if opts.Branch == "" {
		return "", fmt.Errorf("pull request needs a head branch")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return "", fmt.Errorf("pull request needs a title")
	}

	output, err := c.run(ctx, opts.Dir, BuildArgs(opts)...)
	if err != nil {
		return "", fmt.Errorf("failed to create PR: %w\n%s", err, strings.TrimSpace(string(output)))
	}

	url := ParseURL(string(output))
	if url == "" {
		return "", fmt.Errorf("gh did not report a PR URL: %s", strings.TrimSpace(string(output)))
	}
	return url, nil
}

// ParseURL returns the last http(s) URL line in gh's output. gh prints
// progress lines before the URL when stdout is not a terminal.
func ParseURL(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "https://") || strings.HasPrefix(line, "http://") {
			return line
		}
	}
	return ""
}
