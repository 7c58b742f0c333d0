package launcher

import (
	"testing"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"claude", "opencode", "cursor", "codex", " Claude "} {
		p, err := Lookup(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, p.Binary())
		assert.NotEmpty(t, p.ConfigDir())
	}

	_, err := Lookup("vim")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownPlatform)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "claude, codex, cursor, opencode")
}

func TestPlatformNames(t *testing.T) {
	assert.Equal(t, []string{"claude", "codex", "cursor", "opencode"}, PlatformNames())
}

func TestSupportsMultiAgent(t *testing.T) {
	tests := map[string]bool{
		PlatformClaude:   true,
		PlatformOpenCode: true,
		PlatformCodex:    true,
		PlatformCursor:   false,
	}
	for name, want := range tests {
		p, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, want, p.SupportsMultiAgent(), name)
	}
}

func TestClaudeCommand(t *testing.T) {
	p := claudePlatform{}

	bg := p.Command("do it", "sid", true)
	assert.Equal(t, []string{"--session-id", "sid", "--permission-mode", "acceptEdits", "-p", "do it"}, bg)

	fg := p.Command("", "sid", false)
	assert.Equal(t, []string{"--session-id", "sid"}, fg)

	assert.Equal(t, []string{"--resume", "sid"}, p.ResumeArgs("sid"))
}

func TestBackgroundCommandsCarryPrompt(t *testing.T) {
	for _, name := range []string{PlatformClaude, PlatformOpenCode, PlatformCodex} {
		p, err := Lookup(name)
		require.NoError(t, err)
		args := p.Command("implement the task", "sid", true)
		assert.Contains(t, args, "implement the task", name)
	}
}
