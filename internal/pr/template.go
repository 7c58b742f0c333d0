package pr

import (
	"bytes"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"github.com/gobwas/glob"
)

// TemplateData is available to PR body templates.
type TemplateData struct {
	// TaskID is the task directory name
	TaskID      string
	Title       string
	Description string
	Branch      string
	Base        string
	// ChangedFiles are paths relative to the worktree root
	ChangedFiles []string
	CommitLog    string
	// LinkedIssue is the first issue reference found in the task text ("#42")
	LinkedIssue string
}

// DefaultBodyTemplate is used when pr.template is not configured.
const DefaultBodyTemplate = `## Summary
{{if .Description}}{{.Description}}{{else}}{{.Title}}{{end}}

Task: ` + "`{{.TaskID}}`" + `
{{- if .ChangedFiles}}

## Changed files
{{range .ChangedFiles}}- ` + "`{{.}}`" + `
{{end}}{{end}}
{{- if .CommitLog}}
## Commits
{{.CommitLog}}
{{end}}
{{- if .LinkedIssue}}
Closes {{.LinkedIssue}}
{{end}}`

var issuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:fixes|fix|closes|close|resolves|resolve)\s*#(\d+)`),
	regexp.MustCompile(`#(\d+)`),
}

// RenderTemplate renders tmplStr with data. An empty tmplStr renders
// DefaultBodyTemplate.
func RenderTemplate(tmplStr string, data TemplateData) (string, error) {
	if tmplStr == "" {
		tmplStr = DefaultBodyTemplate
	}
	tmpl, err := template.New("pr-body").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return strings.TrimSpace(buf.String()) + "\n", nil
}

// Title picks the PR title: the task title, else the branch name made
// readable.
func Title(taskTitle, branch string) string {
	if t := strings.TrimSpace(taskTitle); t != "" {
		return t
	}
	name := branch
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.NewReplacer("-", " ", "_", " ").Replace(name)
}

// ExtractIssueReference returns the first issue reference in text.
// Keyword forms ("fixes #12") win over a bare "#12".
func ExtractIssueReference(text string) string {
	for _, re := range issuePatterns {
		if m := re.FindStringSubmatch(text); len(m) >= 2 {
			return "#" + m[1]
		}
	}
	return ""
}

// ResolveReviewers merges defaultReviewers with the reviewers of every
// byPath pattern matching a changed file. Invalid patterns are skipped. The
// result is sorted and free of duplicates and leading @.
func ResolveReviewers(changedFiles []string, defaultReviewers []string, byPath map[string][]string) []string {
	reviewerSet := make(map[string]bool)

	for _, r := range defaultReviewers {
		if r = normalizeReviewer(r); r != "" {
			reviewerSet[r] = true
		}
	}

	for pattern, reviewers := range byPath {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			continue
		}
		if !slices.ContainsFunc(changedFiles, g.Match) {
			continue
		}
		for _, r := range reviewers {
			if r = normalizeReviewer(r); r != "" {
				reviewerSet[r] = true
			}
		}
	}

	result := make([]string, 0, len(reviewerSet))
	for r := range reviewerSet {
		result = append(result, r)
	}
	slices.Sort(result)
	return result
}

func normalizeReviewer(reviewer string) string {
	return strings.TrimPrefix(strings.TrimSpace(reviewer), "@")
}
