package task

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(validateWorkflow, Task{})
}

// validateWorkflow enforces strictly increasing phase numbers and keeps
// current_phase on 0 or one of the declared phases.
func validateWorkflow(sl validator.StructLevel) {
	t := sl.Current().Interface().(Task)

	prev := 0
	for _, step := range t.NextAction {
		if step.Phase <= prev {
			sl.ReportError(t.NextAction, "next_action", "NextAction", "increasing", "")
			return
		}
		prev = step.Phase
	}

	if t.CurrentPhase == 0 {
		return
	}
	for _, step := range t.Workflow() {
		if step.Phase == t.CurrentPhase {
			return
		}
	}
	sl.ReportError(t.CurrentPhase, "current_phase", "CurrentPhase", "declared_phase", "")
}

// Validate checks t against the task document rules.
func Validate(t *Task) error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s' (value: '%v')", e.StructNamespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("invalid task: %s", strings.Join(msgs, "; "))
}
