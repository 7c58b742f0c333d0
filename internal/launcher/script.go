package launcher

import (
	"os"
	"strings"
)

// proxyVars are re-exported by the runner script in both spellings.
var proxyVars = []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY"}

// runnerScript renders the sh script that starts a detached agent.
func runnerScript(workDir, binary string, args []string, getenv func(string) string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# Generated by pipewright. Safe to delete once the agent has exited.\n")

	for _, name := range proxyVars {
		for _, v := range []string{name, strings.ToLower(name)} {
			if val := getenv(v); val != "" {
				b.WriteString("export " + v + "=" + shellQuote(val) + "\n")
			}
		}
	}

	b.WriteString("cd " + shellQuote(workDir) + " || exit 1\n")
	b.WriteString("exec " + shellJoin(append([]string{binary}, args...)) + "\n")
	return b.String()
}

func writeRunnerScript(path, content string) error {
	return os.WriteFile(path, []byte(content), 0755)
}

// shellQuote wraps s in single quotes so sh treats it literally.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:@,+%", r)
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}
