package launcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"/a/b-c_d.e", "/a/b-c_d.e"},
		{"", "''"},
		{"two words", "'two words'"},
		{"it's", `'it'"'"'s'`},
		{"$HOME", "'$HOME'"},
		{"line\nbreak", "'line\nbreak'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shellQuote(tt.in), "shellQuote(%q)", tt.in)
	}
}

func TestRunnerScript(t *testing.T) {
	env := map[string]string{
		"HTTPS_PROXY": "http://proxy:3128",
		"no_proxy":    "localhost,127.0.0.1",
	}
	getenv := func(k string) string { return env[k] }

	script := runnerScript("/work tree", "/usr/bin/claude", []string{"-p", "fix it's bug"}, getenv)

	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\n"))
	assert.Contains(t, script, "export HTTPS_PROXY=http://proxy:3128\n")
	assert.Contains(t, script, "export no_proxy=localhost,127.0.0.1\n")
	assert.NotContains(t, script, "HTTP_PROXY=")
	assert.NotContains(t, script, "ALL_PROXY")
	assert.Contains(t, script, "cd '/work tree' || exit 1\n")
	assert.Contains(t, script, `exec /usr/bin/claude -p 'fix it'"'"'s bug'`)
}

func TestResumeCommand(t *testing.T) {
	assert.Equal(t, "cd /wt/feat && claude --resume abc", ResumeCommand("claude", "/wt/feat", "abc"))
	assert.Equal(t, "cd '/my wt' && codex resume abc", ResumeCommand("codex", "/my wt", "abc"))
	assert.Equal(t, "cd /wt && cursor-agent --resume abc", ResumeCommand("cursor", "/wt", "abc"))
	assert.Equal(t, "cd /wt && claude --resume abc", ResumeCommand("unknown", "/wt", "abc"))
}
