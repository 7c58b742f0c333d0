package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-repository worktree config, relative to the repo root.
const ConfigFileName = ".pipewright/worktree.yaml"

// Config describes how worktrees are laid out and bootstrapped.
type Config struct {
	// Dir is the base directory for worktrees. Relative paths are resolved
	// against the repository root and ~ is expanded.
	Dir string `yaml:"worktree_dir"`
	// Copy lists glob patterns, relative to the repository root, of untracked
	// files to copy into a new worktree (.env files and the like).
	Copy []string `yaml:"copy"`
	// PostCreate commands run inside a new worktree in order.
	PostCreate []string `yaml:"post_create"`
	// Verify commands gate pull request creation.
	Verify []string `yaml:"verify"`
}

// LoadConfig reads repoRoot/.pipewright/worktree.yaml. A missing file yields
// an empty Config.
func LoadConfig(repoRoot string) (*Config, error) {
	path := filepath.Join(repoRoot, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read worktree config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveDir returns the absolute worktree base directory.
// Defaults to <repoRoot>/.pipewright/worktrees.
func (c *Config) ResolveDir(repoRoot string) string {
	if c.Dir == "" {
		return filepath.Join(repoRoot, ".pipewright", "worktrees")
	}

	path := c.Dir
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}
	return filepath.Clean(path)
}
