// Package registry persists the per-developer list of running agents.
//
// The registry is a single JSON document, {agents, version}, under
// .pipewright/workspace/<developer>/.agents/registry.json. Every
// read-modify-write holds an exclusive advisory lock on a sibling
// registry.json.lock file and replaces the document by atomic rename, so
// readers never see a partial write and concurrent CLI invocations do not
// lose updates. The version counter increments on every successful write.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/pipewright/internal/config"
	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/logging"
	"github.com/Iron-Ham/pipewright/internal/util"
	"github.com/gofrs/flock"
)

// FileName is the registry document name.
const FileName = "registry.json"

// Status is the lifecycle state recorded for an agent.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// Agent is one launched agent process.
type Agent struct {
	ID           string    `json:"id"`
	WorktreePath string    `json:"worktree_path"`
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at"`
	TaskDir      string    `json:"task_dir"`
	Status       Status    `json:"status"`
	SessionID    string    `json:"session_id,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	LogFile      string    `json:"log_file,omitempty"`
}

// Registry is the on-disk document.
type Registry struct {
	Agents  []Agent `json:"agents"`
	Version int     `json:"version"`
}

// LivenessFunc reports whether a PID is still running.
type LivenessFunc func(pid int) bool

// Store reads and writes one registry file.
type Store struct {
	path   string
	lock   *flock.Flock
	alive  LivenessFunc
	logger *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLiveness sets the liveness check used by SyncStatuses.
func WithLiveness(fn LivenessFunc) Option {
	return func(s *Store) {
		s.alive = fn
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Path returns the registry location for developer in repoRoot.
func Path(repoRoot, developer string) string {
	return filepath.Join(config.StateDir(repoRoot), "workspace", developer, ".agents", FileName)
}

// Open returns the Store for developer in repoRoot, creating an empty
// registry file on first use.
func Open(repoRoot, developer string, opts ...Option) (*Store, error) {
	s := New(Path(repoRoot, developer), opts...)
	if err := s.ensure(); err != nil {
		return nil, err
	}
	return s, nil
}

// New returns a Store for the registry file at path. Nothing is touched
// until the first operation.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		alive:  func(int) bool { return false },
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) ensure() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.update(func(*Registry) bool { return false })
}

// Load returns the current document. A missing or corrupt file yields an
// empty registry.
func (s *Store) Load() *Registry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read registry", "path", s.path, "error", err)
		}
		return &Registry{Agents: []Agent{}}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Registry{Agents: []Agent{}}
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		s.logger.Warn("registry is corrupt; treating as empty", "path", s.path, "error", err)
		return &Registry{Agents: []Agent{}}
	}
	if reg.Agents == nil {
		reg.Agents = []Agent{}
	}
	return &reg
}

// update runs fn on the locked document and writes it back when fn reports
// a change. A missing file is created even when nothing changed.
func (s *Store) update(fn func(*Registry) bool) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock registry: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to unlock registry", "path", s.path, "error", err)
		}
	}()

	_, statErr := os.Stat(s.path)
	reg := s.Load()
	if fn(reg) {
		reg.Version++
	} else if statErr == nil {
		return nil
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	data = append(data, '\n')
	if err := util.AtomicWriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// Add records agent, replacing any entry with the same ID or task
// directory.
func (s *Store) Add(agent Agent) error {
	if agent.ID == "" {
		return errors.NewValidationError("agent id is required").WithField("id")
	}
	if agent.Status == "" {
		agent.Status = StatusRunning
	}
	err := s.update(func(reg *Registry) bool {
		reg.Agents = slices.DeleteFunc(reg.Agents, func(a Agent) bool {
			return a.ID == agent.ID || (agent.TaskDir != "" && a.TaskDir == agent.TaskDir)
		})
		reg.Agents = append(reg.Agents, agent)
		return true
	})
	if err == nil {
		s.logger.Info("agent registered", "agent_id", agent.ID, "pid", agent.PID, "task_dir", agent.TaskDir)
	}
	return err
}

// List returns all agents in insertion order.
func (s *Store) List() []Agent {
	return s.Load().Agents
}

// GetByID returns the agent with id.
func (s *Store) GetByID(id string) (*Agent, bool) {
	return s.find(func(a Agent) bool { return a.ID == id })
}

// GetByWorktreePath returns the agent running in path.
func (s *Store) GetByWorktreePath(path string) (*Agent, bool) {
	clean := filepath.Clean(path)
	return s.find(func(a Agent) bool {
		return a.WorktreePath != "" && filepath.Clean(a.WorktreePath) == clean
	})
}

// GetByTaskDir returns the agent working on taskDir.
func (s *Store) GetByTaskDir(taskDir string) (*Agent, bool) {
	clean := filepath.ToSlash(filepath.Clean(taskDir))
	return s.find(func(a Agent) bool {
		return a.TaskDir != "" && filepath.ToSlash(filepath.Clean(a.TaskDir)) == clean
	})
}

// Search matches term against agent IDs exactly, then against task
// directories as a substring. The first match wins.
func (s *Store) Search(term string) (*Agent, bool) {
	if term == "" {
		return nil, false
	}
	agents := s.List()
	for i := range agents {
		if agents[i].ID == term {
			return &agents[i], true
		}
	}
	for i := range agents {
		if strings.Contains(agents[i].TaskDir, term) {
			return &agents[i], true
		}
	}
	return nil, false
}

func (s *Store) find(match func(Agent) bool) (*Agent, bool) {
	agents := s.List()
	for i := range agents {
		if match(agents[i]) {
			return &agents[i], true
		}
	}
	return nil, false
}

// Remove deletes the agent with id. It reports whether an entry existed.
func (s *Store) Remove(id string) (bool, error) {
	removed := false
	err := s.update(func(reg *Registry) bool {
		before := len(reg.Agents)
		reg.Agents = slices.DeleteFunc(reg.Agents, func(a Agent) bool { return a.ID == id })
		removed = len(reg.Agents) != before
		return removed
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("agent removed", "agent_id", id)
	}
	return removed, nil
}

// UpdateStatus sets the status of the agent with id.
func (s *Store) UpdateStatus(id string, status Status) error {
	found := false
	err := s.update(func(reg *Registry) bool {
		for i := range reg.Agents {
			if reg.Agents[i].ID == id {
				found = true
				if reg.Agents[i].Status == status {
					return false
				}
				reg.Agents[i].Status = status
				return true
			}
		}
		return false
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.NewNotFoundError("agent", id).WithCause(errors.ErrAgentNotFound)
	}
	return nil
}

// SyncStatuses marks running agents whose process is gone as stopped and
// returns how many changed.
func (s *Store) SyncStatuses() (int, error) {
	changed := 0
	err := s.update(func(reg *Registry) bool {
		for i := range reg.Agents {
			a := &reg.Agents[i]
			if a.Status == StatusRunning && !s.alive(a.PID) {
				a.Status = StatusStopped
				changed++
				s.logger.Info("agent process gone", "agent_id", a.ID, "pid", a.PID)
			}
		}
		return changed > 0
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// IsRunning reports whether a is recorded as running and its process is alive.
func (s *Store) IsRunning(a *Agent) bool {
	return a != nil && a.Status == StatusRunning && s.alive(a.PID)
}
