// Package phase derives workflow position from a task's next_action list and
// current_phase. Every function is pure; callers persist the results.
package phase

import (
	"fmt"

	"github.com/Iron-Ham/pipewright/internal/task"
)

// Current returns the task's current phase, 0 when not started.
func Current(t *task.Task) int {
	return t.CurrentPhase
}

// Total returns the highest phase number in the workflow.
func Total(t *task.Task) int {
	steps := t.Workflow()
	if len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].Phase
}

// ActionFor returns the action declared for phase n.
func ActionFor(t *task.Task, n int) (string, bool) {
	for _, s := range t.Workflow() {
		if s.Phase == n {
			return s.Action, true
		}
	}
	return "", false
}

// PhaseFor returns the phase number of action, or 0 if the workflow has none.
func PhaseFor(t *task.Task, action string) int {
	for _, s := range t.Workflow() {
		if s.Action == action {
			return s.Phase
		}
	}
	return 0
}

// First returns the lowest declared phase.
func First(t *task.Task) int {
	steps := t.Workflow()
	if len(steps) == 0 {
		return 0
	}
	return steps[0].Phase
}

// Advance returns the phase that follows the current one. Gaps in the
// numbering are skipped, and at the final phase the current value is
// returned unchanged.
func Advance(t *task.Task) int {
	for _, s := range t.Workflow() {
		if s.Phase > t.CurrentPhase {
			return s.Phase
		}
	}
	return t.CurrentPhase
}

// Next reports the step Advance would move to.
func Next(t *task.Task) (int, string, bool) {
	n := Advance(t)
	if n == t.CurrentPhase {
		return 0, "", false
	}
	action, _ := ActionFor(t, n)
	return n, action, true
}

// IsCompleted reports whether phase n lies behind the current phase.
func IsCompleted(t *task.Task, n int) bool {
	return t.CurrentPhase > n
}

// IsCurrent reports whether action is the step being worked on.
func IsCurrent(t *task.Task, action string) bool {
	p := PhaseFor(t, action)
	return p != 0 && t.CurrentPhase == p
}

// IsFinal reports whether the task sits on its last phase.
func IsFinal(t *task.Task) bool {
	return t.CurrentPhase != 0 && t.CurrentPhase == Total(t)
}

// Describe renders the position as "2/4 (check)" or "0/4 (pending)".
func Describe(t *task.Task) string {
	total := Total(t)
	if t.CurrentPhase == 0 {
		return fmt.Sprintf("0/%d (pending)", total)
	}
	action, ok := ActionFor(t, t.CurrentPhase)
	if !ok {
		action = "unknown"
	}
	return fmt.Sprintf("%d/%d (%s)", t.CurrentPhase, total, action)
}
