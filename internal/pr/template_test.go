package pr

import (
	"slices"
	"strings"
	"testing"
)

func TestExtractIssueReference(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"bare hash", "Fix the login bug #42", "#42"},
		{"fixes keyword in parens", "Fix the login bug (fixes #123)", "#123"},
		{"closes keyword", "Add new feature closes #456", "#456"},
		{"case insensitive", "RESOLVES #100", "#100"},
		{"keyword beats earlier bare hash", "Refs #1, closes #2", "#2"},
		{"no reference", "Just a regular task description", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractIssueReference(tt.text); got != tt.expected {
				t.Errorf("ExtractIssueReference(%q) = %q, want %q", tt.text, got, tt.expected)
			}
		})
	}
}

func TestResolveReviewers(t *testing.T) {
	tests := []struct {
		name             string
		changedFiles     []string
		defaultReviewers []string
		byPath           map[string][]string
		want             []string
	}{
		{
			name:             "default reviewers only",
			changedFiles:     []string{"main.go"},
			defaultReviewers: []string{"bob", "alice"},
			want:             []string{"alice", "bob"},
		},
		{
			name:         "path rule matches nested file",
			changedFiles: []string{"internal/api/handler.go"},
			byPath:       map[string][]string{"internal/api/**": {"api-team"}},
			want:         []string{"api-team"},
		},
		{
			name:         "single star does not cross directories",
			changedFiles: []string{"internal/api/handler.go"},
			byPath:       map[string][]string{"*.go": {"gophers"}},
			want:         []string{},
		},
		{
			name:             "strips @ and deduplicates",
			changedFiles:     []string{"docs/README.md"},
			defaultReviewers: []string{"@alice"},
			byPath:           map[string][]string{"docs/*": {"alice", "@docs"}},
			want:             []string{"alice", "docs"},
		},
		{
			name:         "invalid pattern skipped",
			changedFiles: []string{"a.go"},
			byPath:       map[string][]string{"[": {"nobody"}, "a.go": {"carol"}},
			want:         []string{"carol"},
		},
		{
			name: "empty inputs",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveReviewers(tt.changedFiles, tt.defaultReviewers, tt.byPath)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ResolveReviewers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     TemplateData
		contains []string
		excludes []string
		wantErr  bool
	}{
		{
			name:     "custom template",
			template: "## Task\n{{ .Title }} on {{ .Branch }}",
			data:     TemplateData{Title: "Add auth", Branch: "feat/auth"},
			contains: []string{"## Task", "Add auth on feat/auth"},
		},
		{
			name: "default template with everything",
			data: TemplateData{
				TaskID:       "01-auth",
				Title:        "Add auth",
				Description:  "Adds login and logout.",
				ChangedFiles: []string{"auth.go", "auth_test.go"},
				CommitLog:    "abc123 add auth",
				LinkedIssue:  "#42",
			},
			contains: []string{"## Summary", "Adds login and logout.", "`01-auth`", "- `auth.go`", "- `auth_test.go`", "## Commits", "abc123 add auth", "Closes #42"},
		},
		{
			name:     "default template falls back to title",
			data:     TemplateData{TaskID: "02-api", Title: "Build the API"},
			contains: []string{"Build the API"},
			excludes: []string{"## Changed files", "## Commits", "Closes"},
		},
		{
			name:     "unknown field",
			template: "{{ .Invalid }}",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := RenderTemplate(tt.template, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RenderTemplate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			for _, want := range tt.contains {
				if !strings.Contains(result, want) {
					t.Errorf("RenderTemplate() missing %q in:\n%s", want, result)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(result, unwanted) {
					t.Errorf("RenderTemplate() unexpectedly contains %q in:\n%s", unwanted, result)
				}
			}
			if !strings.HasSuffix(result, "\n") || strings.HasSuffix(result, "\n\n") {
				t.Errorf("RenderTemplate() should end with exactly one newline: %q", result)
			}
		})
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		taskTitle, branch, want string
	}{
		{"Add auth", "feat/auth", "Add auth"},
		{"  ", "feat/user-login_flow", "user login flow"},
		{"", "fix-typo", "fix typo"},
	}
	for _, tt := range tests {
		if got := Title(tt.taskTitle, tt.branch); got != tt.want {
			t.Errorf("Title(%q, %q) = %q, want %q", tt.taskTitle, tt.branch, got, tt.want)
		}
	}
}
