package orchestrator

import (
	"github.com/Iron-Ham/pipewright/internal/launcher"
	"github.com/Iron-Ham/pipewright/internal/phase"
	"github.com/Iron-Ham/pipewright/internal/registry"
	"github.com/Iron-Ham/pipewright/internal/task"
	"github.com/Iron-Ham/pipewright/internal/util"
)

// Status is the merged view of one agent: registry entry, liveness, task
// document and the tail of its log.
type Status struct {
	Agent registry.Agent `json:"agent"`
	Alive bool           `json:"alive"`
	Task  *task.Task     `json:"task,omitempty"`
	// TaskSource is "worktree", "main" or empty when no copy is readable.
	TaskSource string   `json:"task_source"`
	Phase      string   `json:"phase,omitempty"`
	NextAction string   `json:"next_action,omitempty"`
	LogTail    []string `json:"log_tail"`
}

// GetStatus syncs liveness and returns the status of the agent matching term.
func (o *Orchestrator) GetStatus(term string) (*Status, error) {
	o.syncStatuses()
	a, err := o.findAgent(term)
	if err != nil {
		return nil, err
	}
	s := o.statusFor(*a)
	return &s, nil
}

// ListStatuses syncs liveness and returns every agent's status in registry
// order.
func (o *Orchestrator) ListStatuses() []Status {
	o.syncStatuses()
	agents := o.registry.List()
	statuses := make([]Status, 0, len(agents))
	for _, a := range agents {
		statuses = append(statuses, o.statusFor(a))
	}
	return statuses
}

func (o *Orchestrator) syncStatuses() {
	if n, err := o.registry.SyncStatuses(); err != nil {
		o.logger.Warn("failed to sync agent statuses", "error", err)
	} else if n > 0 {
		o.logger.Info("marked exited agents stopped", "count", n)
	}
}

func (o *Orchestrator) statusFor(a registry.Agent) Status {
	s := Status{
		Agent:   a,
		Alive:   a.Status == registry.StatusRunning && o.launcher.IsAlive(a.PID),
		LogTail: []string{},
	}

	if t, source := o.readTask(a.TaskDir, a.WorktreePath); t != nil {
		s.Task = t
		s.TaskSource = source
		s.Phase = phase.Describe(t)
		if action, ok := phase.ActionFor(t, t.CurrentPhase); ok {
			s.NextAction = action
		}
	}

	logFile := a.LogFile
	if logFile == "" && a.WorktreePath != "" {
		logFile = launcher.LogFilePath(a.WorktreePath)
	}
	if logFile != "" && o.cfg.Status.LogLines > 0 {
		lines, err := util.TailLines(logFile, o.cfg.Status.LogLines)
		if err != nil {
			o.logger.WithAgent(a.ID).Debug("failed to read agent log", "path", logFile, "error", err)
		} else if lines != nil {
			s.LogTail = lines
		}
	}
	return s
}
