package workflow

import (
	"fmt"
	"slices"

	"github.com/JaimeStill/go-agents-orchestration/pkg/state"
)

// Phase is a Document Workflow state.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseEnhancing Phase = "enhancing"
	PhaseEnhanced  Phase = "enhanced"
	PhaseAuditing  Phase = "auditing"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

var transitions = map[Phase][]Phase{
	PhaseStarted:   {PhaseEnhancing, PhaseFailed},
	PhaseEnhancing: {PhaseEnhanced, PhaseFailed},
	PhaseEnhanced:  {PhaseAuditing, PhaseFailed},
	PhaseAuditing:  {PhaseSucceeded, PhaseFailed},
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// CanTransition reports whether the workflow may move from one phase to another.
func CanTransition(from, to Phase) bool {
	return slices.Contains(transitions[from], to)
}

func currentPhase(s state.State) Phase {
	val, ok := s.Get(KeyPhase)
	if !ok {
		return ""
	}
	p, _ := val.(Phase)
	return p
}

// advance moves the workflow to the next phase and notifies the job observer.
func advance(s state.State, job Job, to Phase) (state.State, error) {
	from := currentPhase(s)
	if !CanTransition(from, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	s = s.Set(KeyPhase, to)
	if job.Observe != nil {
		job.Observe(to)
	}
	return s, nil
}
