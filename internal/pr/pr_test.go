package pr

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestBuildArgs(t *testing.T) {
	got := BuildArgs(Options{
		Title:     "Add auth",
		Body:      "body",
		Branch:    "feat/auth",
		Base:      "main",
		Draft:     true,
		Reviewers: []string{"alice"},
		Labels:    []string{"agent", "auto"},
	})
	want := []string{
		"pr", "create",
		"--title", "Add auth",
		"--body", "body",
		"--head", "feat/auth",
		"--base", "main",
		"--draft",
		"--reviewer", "alice",
		"--label", "agent",
		"--label", "auto",
	}
	if !slices.Equal(got, want) {
		t.Errorf("BuildArgs() =\n%v\nwant\n%v", got, want)
	}

	minimal := BuildArgs(Options{Title: "t", Branch: "b"})
	if slices.Contains(minimal, "--base") || slices.Contains(minimal, "--draft") {
		t.Errorf("BuildArgs() = %v, want no --base or --draft", minimal)
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"https://github.com/o/r/pull/7\n", "https://github.com/o/r/pull/7"},
		{"Creating pull request for feat into main\n\nhttps://github.com/o/r/pull/8\n", "https://github.com/o/r/pull/8"},
		{"nothing useful", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseURL(tt.output); got != tt.want {
			t.Errorf("ParseURL(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}

func TestClient_Create(t *testing.T) {
	var gotDir string
	var gotArgs []string
	c := NewClientWithRunner(func(_ context.Context, dir string, args ...string) ([]byte, error) {
		gotDir, gotArgs = dir, args
		return []byte("https://github.com/o/r/pull/1\n"), nil
	})

	url, err := c.Create(context.Background(), Options{Title: "t", Branch: "feat/x", Base: "main", Dir: "/wt"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if url != "https://github.com/o/r/pull/1" {
		t.Errorf("Create() url = %q", url)
	}
	if gotDir != "/wt" {
		t.Errorf("runner dir = %q, want /wt", gotDir)
	}
	if !slices.Contains(gotArgs, "feat/x") {
		t.Errorf("runner args = %v, want head branch", gotArgs)
	}
}

func TestClient_CreateErrors(t *testing.T) {
	failing := NewClientWithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("a pull request already exists"), errors.New("exit status 1")
	})
	_, err := failing.Create(context.Background(), Options{Title: "t", Branch: "b"})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Create() error = %v, want gh output in error", err)
	}

	silent := NewClientWithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("ok"), nil
	})
	if _, err := silent.Create(context.Background(), Options{Title: "t", Branch: "b"}); err == nil {
		t.Error("Create() should fail without a URL in the output")
	}

	if _, err := silent.Create(context.Background(), Options{Title: "t"}); err == nil {
		t.Error("Create() should require a branch")
	}
	if _, err := silent.Create(context.Background(), Options{Branch: "b"}); err == nil {
		t.Error("Create() should require a title")
	}
}
