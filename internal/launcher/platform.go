package launcher

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/pipewright/internal/errors"
)

// Platform describes one agent runtime. The set is closed; callers branch on
// capabilities such as SupportsMultiAgent rather than on concrete types.
type Platform interface {
	// Name is the identifier used in config and the registry.
	Name() string
	// Binary is the executable looked up on PATH.
	Binary() string
	// ConfigDir is the runtime's per-project configuration directory.
	ConfigDir() string
	// SupportsMultiAgent reports whether the runtime can run detached,
	// alongside other agents, without a terminal.
	SupportsMultiAgent() bool
	// Command returns the arguments for a run with the given prompt.
	Command(prompt, sessionID string, background bool) []string
	// ResumeArgs returns the arguments that reattach to sessionID.
	ResumeArgs(sessionID string) []string
}

const (
	PlatformClaude   = "claude"
	PlatformOpenCode = "opencode"
	PlatformCursor   = "cursor"
	PlatformCodex    = "codex"
)

var platforms = map[string]Platform{
	PlatformClaude:   claudePlatform{},
	PlatformOpenCode: openCodePlatform{},
	PlatformCursor:   cursorPlatform{},
	PlatformCodex:    codexPlatform{},
}

// Lookup returns the platform registered under name.
func Lookup(name string) (Platform, error) {
	p, ok := platforms[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported platform (want one of %s)", strings.Join(PlatformNames(), ", "))).
			WithField("platform").
			WithValue(name).
			WithCause(errors.ErrUnknownPlatform)
	}
	return p, nil
}

// PlatformNames lists the supported platform names in sorted order.
func PlatformNames() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type claudePlatform struct{}

func (claudePlatform) Name() string             { return PlatformClaude }
func (claudePlatform) Binary() string           { return "claude" }
func (claudePlatform) ConfigDir() string        { return ".claude" }
func (claudePlatform) SupportsMultiAgent() bool { return true }

func (claudePlatform) Command(prompt, sessionID string, background bool) []string {
	args := []string{"--session-id", sessionID}
	if background {
		return append(args, "--permission-mode", "acceptEdits", "-p", prompt)
	}
	if prompt != "" {
		args = append(args, prompt)
	}
	return args
}

func (claudePlatform) ResumeArgs(sessionID string) []string {
	return []string{"--resume", sessionID}
}

type openCodePlatform struct{}

func (openCodePlatform) Name() string             { return PlatformOpenCode }
func (openCodePlatform) Binary() string           { return "opencode" }
func (openCodePlatform) ConfigDir() string        { return ".opencode" }
func (openCodePlatform) SupportsMultiAgent() bool { return true }

func (openCodePlatform) Command(prompt, sessionID string, background bool) []string {
	if background {
		return []string{"run", prompt}
	}
	if prompt != "" {
		return []string{"--prompt", prompt}
	}
	return nil
}

func (openCodePlatform) ResumeArgs(sessionID string) []string {
	return []string{"--session", sessionID}
}

type cursorPlatform struct{}

func (cursorPlatform) Name() string             { return PlatformCursor }
func (cursorPlatform) Binary() string           { return "cursor-agent" }
func (cursorPlatform) ConfigDir() string        { return ".cursor" }
func (cursorPlatform) SupportsMultiAgent() bool { return false }

func (cursorPlatform) Command(prompt, sessionID string, background bool) []string {
	if prompt == "" {
		return nil
	}
	return []string{prompt}
}

func (cursorPlatform) ResumeArgs(sessionID string) []string {
	return []string{"--resume", sessionID}
}

type codexPlatform struct{}

func (codexPlatform) Name() string             { return PlatformCodex }
func (codexPlatform) Binary() string           { return "codex" }
func (codexPlatform) ConfigDir() string        { return ".codex" }
func (codexPlatform) SupportsMultiAgent() bool { return true }

func (codexPlatform) Command(prompt, sessionID string, background bool) []string {
	if background {
		return []string{"exec", "--full-auto", prompt}
	}
	if prompt == "" {
		return nil
	}
	return []string{prompt}
}

func (codexPlatform) ResumeArgs(sessionID string) []string {
	return []string{"resume", sessionID}
}
