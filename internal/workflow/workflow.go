// Package workflow implements the Document Workflow: a replay-safe state
// graph that enhances and audits a single clinical document.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	gaoconfig "github.com/JaimeStill/go-agents-orchestration/pkg/config"
	"github.com/JaimeStill/go-agents-orchestration/pkg/state"
)

// Execute runs the workflow for one job and returns its terminal outcome.
// Stage failures produce a failed outcome, not an error. The only error is
// ErrInterrupted, returned when ctx ends before the workflow finishes; the
// checkpoints recorded up to that point let a later Execute resume it.
func Execute(ctx context.Context, rt *Runtime, job Job) (Outcome, error) {
	graph, err := buildGraph(rt)
	if err != nil {
		return internalFailure(job, fmt.Errorf("build graph: %w", err)), nil
	}

	initial := state.New(nil)
	initial = initial.Set(KeyJob, job)
	initial = initial.Set(KeyPhase, PhaseStarted)
	if job.Observe != nil {
		job.Observe(PhaseStarted)
	}

	final, err := graph.Execute(ctx, initial)
	if err != nil {
		if errors.Is(err, ErrInterrupted) {
			return Outcome{}, fmt.Errorf("document %s: %w", job.Document.ID, err)
		}
		if ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("%w: document %s: %w", ErrInterrupted, job.Document.ID, ctx.Err())
		}
		rt.Logger.ErrorContext(
			ctx, "workflow execution failed",
			"batch_id", job.BatchID,
			"document_id", job.Document.ID,
			"error", err,
		)
		return internalFailure(job, err), nil
	}

	return extractOutcome(final, job)
}

func buildGraph(rt *Runtime) (state.StateGraph, error) {
	cfg := gaoconfig.DefaultGraphConfig("emcode-document")
	cfg.Observer = "noop"

	graph, err := state.NewGraph(cfg)
	if err != nil {
		return nil, err
	}

	if err := graph.AddNode("enhance", EnhanceNode(rt)); err != nil {
		return nil, err
	}

	if err := graph.AddNode("audit", AuditNode(rt)); err != nil {
		return nil, err
	}

	if err := graph.AddNode("resolve", ResolveNode()); err != nil {
		return nil, err
	}

	// enhance → audit (enhancement produced a code)
	if err := graph.AddEdge("enhance", "audit", enhanced); err != nil {
		return nil, err
	}

	// enhance → resolve (enhancement failed)
	if err := graph.AddEdge("enhance", "resolve", state.Not(enhanced)); err != nil {
		return nil, err
	}

	if err := graph.AddEdge("audit", "resolve", nil); err != nil {
		return nil, err
	}

	if err := graph.SetEntryPoint("enhance"); err != nil {
		return nil, err
	}

	if err := graph.SetExitPoint("resolve"); err != nil {
		return nil, err
	}

	return graph, nil
}

// ResolveNode returns a state node that converts the terminal phase into an
// Outcome stored under KeyOutcome.
func ResolveNode() state.StateNode {
	return state.NewFunctionNode(func(ctx context.Context, s state.State) (state.State, error) {
		job, err := extractJob(s)
		if err != nil {
			return s, fmt.Errorf("resolve: %w", err)
		}

		outcome := Outcome{
			Position:   job.Position,
			DocumentID: job.Document.ID,
			Timing: StageTiming{
				EnhanceMS: elapsedMS(s, KeyEnhanceElapsed),
				AuditMS:   elapsedMS(s, KeyAuditElapsed),
			},
		}

		switch phase := currentPhase(s); phase {
		case PhaseSucceeded:
			val, ok := s.Get(KeyAudit)
			if !ok {
				return s, fmt.Errorf("resolve: %w: %s", ErrMissingState, KeyAudit)
			}
			result, ok := val.(AuditResult)
			if !ok {
				return s, fmt.Errorf("resolve: %w: %s is not AuditResult", ErrMissingState, KeyAudit)
			}
			outcome.Status = OutcomeSucceeded
			outcome.Result = &result
		case PhaseFailed:
			val, ok := s.Get(KeyFailure)
			if !ok {
				return s, fmt.Errorf("resolve: %w: %s", ErrMissingState, KeyFailure)
			}
			desc, ok := val.(ErrorDescriptor)
			if !ok {
				return s, fmt.Errorf("resolve: %w: %s is not ErrorDescriptor", ErrMissingState, KeyFailure)
			}
			outcome.Status = OutcomeFailed
			outcome.Error = &desc
		default:
			return s, fmt.Errorf("resolve: %w: %s is not terminal", ErrInvalidTransition, phase)
		}

		return s.Set(KeyOutcome, outcome), nil
	})
}

func extractJob(s state.State) (Job, error) {
	val, ok := s.Get(KeyJob)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrMissingState, KeyJob)
	}

	job, ok := val.(Job)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s is not Job", ErrMissingState, KeyJob)
	}
	return job, nil
}

func extractOutcome(s state.State, job Job) (Outcome, error) {
	val, ok := s.Get(KeyOutcome)
	if !ok {
		return internalFailure(job, fmt.Errorf("%w: %s", ErrMissingState, KeyOutcome)), nil
	}

	outcome, ok := val.(Outcome)
	if !ok {
		return internalFailure(job, fmt.Errorf("%w: %s is not Outcome", ErrMissingState, KeyOutcome)), nil
	}
	return outcome, nil
}

func elapsedMS(s state.State, key string) int64 {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}
	d, _ := val.(time.Duration)
	return d.Milliseconds()
}

// internalFailure describes a failure that no stage produced.
func internalFailure(job Job, err error) Outcome {
	return Outcome{
		Position:   job.Position,
		DocumentID: job.Document.ID,
		Status:     OutcomeFailed,
		Error:      Describe(err),
	}
}
