package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete pipewright configuration
type Config struct {
	Developer string        `mapstructure:"developer"`
	Agent     AgentConfig   `mapstructure:"agent"`
	Branch    BranchConfig  `mapstructure:"branch"`
	Paths     PathsConfig   `mapstructure:"paths"`
	Status    StatusConfig  `mapstructure:"status"`
	PR        PRConfig      `mapstructure:"pr"`
	Logging   LoggingConfig `mapstructure:"logging"`
	Watch     WatchConfig   `mapstructure:"watch"`
}

// AgentConfig controls which agent runtime is launched and how it is stopped
type AgentConfig struct {
	// Platform is the agent runtime: "claude", "opencode", "cursor" or "codex"
	Platform string `mapstructure:"platform"`
	// StopTimeoutSeconds bounds how long stop waits for the process to exit
	StopTimeoutSeconds int `mapstructure:"stop_timeout_seconds"`
}

// BranchConfig controls base branch resolution
type BranchConfig struct {
	// DefaultBase is used when a task has no base_branch.
	// Empty means the branch currently checked out in the repository root.
	DefaultBase string `mapstructure:"default_base"`
}

// PathsConfig controls where task documents live
type PathsConfig struct {
	// TasksDir is relative to the repository root
	TasksDir string `mapstructure:"tasks_dir"`
	// ReadinessFile must exist inside a task directory before start
	ReadinessFile string `mapstructure:"readiness_file"`
}

// StatusConfig controls status output
type StatusConfig struct {
	// LogLines is how many trailing agent log lines status includes
	LogLines int `mapstructure:"log_lines"`
}

// PRConfig controls pull request creation
type PRConfig struct {
	Draft bool `mapstructure:"draft"`
	// Reviewers are always requested
	Reviewers []string `mapstructure:"reviewers"`
	// ReviewersByPath maps glob patterns to reviewers requested when a
	// changed file matches
	ReviewersByPath map[string][]string `mapstructure:"reviewers_by_path"`
	Labels          []string            `mapstructure:"labels"`
	// Template is a text/template for the PR body; empty uses the built-in one
	Template string `mapstructure:"template"`
}

// LoggingConfig controls the debug log
type LoggingConfig struct {
	// Enabled controls whether .pipewright/logs/debug.log is written (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// MaxSizeMB is the size at which debug.log is rotated
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated logs to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// WatchConfig controls the live dashboard
type WatchConfig struct {
	RefreshMs int `mapstructure:"refresh_ms"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Platform:           "claude",
			StopTimeoutSeconds: 5,
		},
		Paths: PathsConfig{
			TasksDir:      filepath.Join(".pipewright", "tasks"),
			ReadinessFile: "prd.md",
		},
		Status: StatusConfig{
			LogLines: 20,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Watch: WatchConfig{
			RefreshMs: 2000,
		},
	}
}

// StopTimeout returns the stop timeout as a time.Duration
func (c *AgentConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// RefreshInterval returns the dashboard refresh interval
func (c *WatchConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("developer", defaults.Developer)

	viper.SetDefault("agent.platform", defaults.Agent.Platform)
	viper.SetDefault("agent.stop_timeout_seconds", defaults.Agent.StopTimeoutSeconds)

	viper.SetDefault("branch.default_base", defaults.Branch.DefaultBase)

	viper.SetDefault("paths.tasks_dir", defaults.Paths.TasksDir)
	viper.SetDefault("paths.readiness_file", defaults.Paths.ReadinessFile)

	viper.SetDefault("status.log_lines", defaults.Status.LogLines)

	viper.SetDefault("pr.draft", defaults.PR.Draft)
	viper.SetDefault("pr.reviewers", []string{})
	viper.SetDefault("pr.labels", []string{})
	viper.SetDefault("pr.template", "")

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	viper.SetDefault("watch.refresh_ms", defaults.Watch.RefreshMs)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pipewright")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pipewright"
	}
	return filepath.Join(home, ".config", "pipewright")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir is the per-repository directory holding pipewright state.
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".pipewright")
}

// DeveloperFile is the file written by the external bootstrap step.
func DeveloperFile(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), ".developer")
}

// LogDir is where the debug log lives.
func LogDir(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "logs")
}

// ResolveDeveloper picks the developer name: the configured value, then
// .pipewright/.developer, then "default".
func (c *Config) ResolveDeveloper(repoRoot string) string {
	if name := strings.TrimSpace(c.Developer); name != "" {
		return name
	}
	if data, err := os.ReadFile(DeveloperFile(repoRoot)); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name
		}
	}
	return "default"
}

// ResolveTasksDir returns the absolute tasks directory for repoRoot.
func (p *PathsConfig) ResolveTasksDir(repoRoot string) string {
	dir := p.TasksDir
	if dir == "" {
		dir = Default().Paths.TasksDir
	}
	return resolvePath(dir, repoRoot)
}

// resolvePath expands ~ and resolves relative paths against baseDir.
func resolvePath(path, baseDir string) string {
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
		path = filepath.Join(baseDir, path)
	}
	return path
}
