package leverage

import "testing"

func TestStateMachineTransitions(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StepApprove {
		t.Fatalf("expected %s, got %s", StepApprove, sm.Current())
	}
	if step, changed := sm.Apply(EventExecuteConfirmed); step != StepApprove || changed {
		t.Fatalf("execute confirmation must not skip approval")
	}
	if step, _ := sm.Apply(EventApproveConfirmed); step != StepExecute {
		t.Fatalf("expected %s, got %s", StepExecute, step)
	}
	if step, _ := sm.Apply(EventExecuteConfirmed); step != StepDone {
		t.Fatalf("expected %s, got %s", StepDone, step)
	}
	if step, changed := sm.Apply(EventExecuteConfirmed); step != StepDone || changed {
		t.Fatalf("done must be terminal")
	}
	if step, _ := sm.Apply(EventCancel); step != StepDone {
		t.Fatalf("cancel after done must not change state")
	}
}
