package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JaimeStill/go-agents-orchestration/pkg/state"

	"github.com/JaimeStill/emcode/internal/prompts"
	"github.com/JaimeStill/emcode/pkg/formatting"
)

type enhanceResponse struct {
	AssignedCode  string `json:"assigned_code"`
	Justification string `json:"justification"`
}

// Enhance issues the enhancement call for doc and returns the proposed code.
// Failures are *TimeoutError, *InferenceError, or ErrInterrupted when ctx
// is cancelled.
func Enhance(ctx context.Context, rt *Runtime, doc Document) (*EnhancementResult, error) {
	prompt, err := ComposePrompt(ctx, rt.Prompts, prompts.StageEnhance, enhanceRequest(doc))
	if err != nil {
		return nil, err
	}

	content, err := rt.invoke(ctx, prompts.StageEnhance, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := formatting.Parse[enhanceResponse](content)
	if err != nil {
		return nil, &InferenceError{Stage: prompts.StageEnhance, Err: err}
	}

	code := strings.TrimSpace(parsed.AssignedCode)
	if code == "" {
		return nil, &InferenceError{
			Stage: prompts.StageEnhance,
			Err:   fmt.Errorf("%w: missing assigned_code", ErrInvalidResponse),
		}
	}

	return &EnhancementResult{
		DocumentID:    doc.ID,
		AssignedCode:  code,
		Justification: strings.TrimSpace(parsed.Justification),
		IsNewPatient:  doc.IsNewPatient,
	}, nil
}

// EnhanceNode returns a state node that runs the enhancement stage as a
// checkpointed activity and records either its result or its failure.
func EnhanceNode(rt *Runtime) state.StateNode {
	return state.NewFunctionNode(func(ctx context.Context, s state.State) (state.State, error) {
		job, err := extractJob(s)
		if err != nil {
			return s, fmt.Errorf("enhance: %w", err)
		}

		if s, err = advance(s, job, PhaseEnhancing); err != nil {
			return s, fmt.Errorf("enhance: %w", err)
		}

		key := CheckpointKey{BatchID: job.BatchID, Position: job.Position, Stage: prompts.StageEnhance}
		result, elapsed, err := activity(ctx, rt, key, func(ctx context.Context) (*EnhancementResult, error) {
			return Enhance(ctx, rt, job.Document)
		})
		s = s.Set(KeyEnhanceElapsed, elapsed)

		if errors.Is(err, ErrInterrupted) {
			return s, err
		}
		if err != nil {
			return fail(ctx, rt, s, job, prompts.StageEnhance, err)
		}

		rt.Logger.InfoContext(
			ctx, "enhance node complete",
			"batch_id", job.BatchID,
			"document_id", job.Document.ID,
			"assigned_code", result.AssignedCode,
			"elapsed", elapsed,
		)

		s = s.Set(KeyEnhancement, *result)
		return advance(s, job, PhaseEnhanced)
	})
}

func fail(
	ctx context.Context,
	rt *Runtime,
	s state.State,
	job Job,
	stage prompts.Stage,
	err error,
) (state.State, error) {
	desc := Describe(err)
	if desc.Stage == "" {
		desc.Stage = stage
	}

	rt.Logger.WarnContext(
		ctx, "stage failed",
		"batch_id", job.BatchID,
		"document_id", job.Document.ID,
		"stage", stage,
		"kind", desc.Kind,
		"error", desc.Message,
	)

	s = s.Set(KeyFailure, *desc)
	return advance(s, job, PhaseFailed)
}

func enhanced(s state.State) bool {
	return currentPhase(s) == PhaseEnhanced
}
