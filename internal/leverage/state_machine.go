package leverage

import "sync"

type Step string

type Event string

const (
	StepApprove   Step = "APPROVE"
	StepExecute   Step = "EXECUTE"
	StepDone      Step = "DONE"
	StepCancelled Step = "CANCELLED"
)

const (
	EventApproveConfirmed Event = "APPROVE_CONFIRMED"
	EventExecuteConfirmed Event = "EXECUTE_CONFIRMED"
	EventCancel           Event = "CANCEL"
)

type StateMachine struct {
	mu   sync.Mutex
	step Step
}

func NewStateMachine() *StateMachine {
	return &StateMachine{step: StepApprove}
}

func (s *StateMachine) Current() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *StateMachine) Apply(event Event) (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := nextStep(s.step, event)
	changed := next != s.step
	s.step = next
	return next, changed
}

func nextStep(current Step, event Event) Step {
	switch current {
	case StepApprove:
		if event == EventApproveConfirmed {
			return StepExecute
		}
		if event == EventCancel {
			return StepCancelled
		}
	case StepExecute:
		if event == EventExecuteConfirmed {
			return StepDone
		}
		if event == EventCancel {
			return StepCancelled
		}
	}
	return current
}
