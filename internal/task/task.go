package task

import (
	"encoding/json"
	"maps"
)

// Status is the lifecycle state recorded in a task document.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
	StatusRejected   Status = "rejected"
)

// Workflow action names.
const (
	ActionImplement = "implement"
	ActionCheck     = "check"
	ActionFinish    = "finish"
	ActionCreatePR  = "create-pr"
)

// Step is one entry of a task's ordered workflow.
type Step struct {
	Phase  int    `json:"phase" validate:"gt=0"`
	Action string `json:"action" validate:"required"`
}

// DefaultWorkflow is used when a task document has no next_action list.
func DefaultWorkflow() []Step {
	return []Step{
		{Phase: 1, Action: ActionImplement},
		{Phase: 2, Action: ActionCheck},
		{Phase: 3, Action: ActionFinish},
		{Phase: 4, Action: ActionCreatePR},
	}
}

// Task is the persistent descriptor of one unit of work.
type Task struct {
	ID           string `json:"id" validate:"required"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       Status `json:"status" validate:"omitempty,oneof=planning in_progress completed archived rejected"`
	DevType      string `json:"dev_type,omitempty"`
	Assignee     string `json:"assignee,omitempty"`
	Branch       string `json:"branch"`
	BaseBranch   string `json:"base_branch"`
	WorktreePath string `json:"worktree_path"`
	CurrentPhase int    `json:"current_phase" validate:"gte=0"`
	NextAction   []Step `json:"next_action" validate:"dive"`
	PRURL        string `json:"pr_url"`
	CreatedAt    string `json:"created_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`

	// extra holds fields written by other tools, keyed by JSON name.
	extra map[string]json.RawMessage
}

// taskFields are the JSON keys owned by Task.
var taskFields = []string{
	"id", "title", "description", "status", "dev_type", "assignee",
	"branch", "base_branch", "worktree_path", "current_phase",
	"next_action", "pr_url", "created_at", "completed_at",
}

// taskJSON strips the methods from Task so encoding/json does not recurse.
type taskJSON Task

// UnmarshalJSON decodes the known fields and keeps the rest verbatim.
func (t *Task) UnmarshalJSON(data []byte) error {
	var known taskJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range taskFields {
		delete(all, key)
	}

	*t = Task(known)
	if len(all) > 0 {
		t.extra = all
	}
	return nil
}

// MarshalJSON encodes the known fields merged with any preserved extras.
// An empty worktree_path is written as null.
func (t Task) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(taskJSON(t))
	if err != nil {
		return nil, err
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for key, value := range t.extra {
		if _, owned := out[key]; !owned {
			out[key] = value
		}
	}
	if t.WorktreePath == "" {
		out["worktree_path"] = json.RawMessage("null")
	}
	if t.NextAction == nil {
		delete(out, "next_action")
	}
	return json.Marshal(out)
}

// Extra returns the raw value of a field this package does not model.
func (t *Task) Extra(key string) (json.RawMessage, bool) {
	v, ok := t.extra[key]
	return v, ok
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	if t.NextAction != nil {
		c.NextAction = append([]Step(nil), t.NextAction...)
	}
	if t.extra != nil {
		c.extra = maps.Clone(t.extra)
	}
	return &c
}

// Workflow returns the task's steps, falling back to DefaultWorkflow.
func (t *Task) Workflow() []Step {
	if len(t.NextAction) == 0 {
		return DefaultWorkflow()
	}
	return t.NextAction
}

// IsTerminal reports whether the task can be archived.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusRejected
}
