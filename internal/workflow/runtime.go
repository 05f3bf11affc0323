package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/emcode/internal/inference"
	"github.com/JaimeStill/emcode/internal/prompts"
)

const (
	DefaultEnhanceTimeout = 15 * time.Second
	DefaultAuditTimeout   = 18 * time.Second
)

// Runtime bundles the dependencies that workflow nodes require. Model is
// shared by every concurrent workflow and never mutated.
type Runtime struct {
	Model          inference.Model
	Prompts        prompts.System
	Checkpoints    Checkpoints
	EnhanceTimeout time.Duration
	AuditTimeout   time.Duration
	Logger         *slog.Logger
}

func (rt *Runtime) deadline(stage prompts.Stage) time.Duration {
	switch stage {
	case prompts.StageEnhance:
		if rt.EnhanceTimeout > 0 {
			return rt.EnhanceTimeout
		}
		return DefaultEnhanceTimeout
	default:
		if rt.AuditTimeout > 0 {
			return rt.AuditTimeout
		}
		return DefaultAuditTimeout
	}
}

type reply struct {
	content string
	err     error
}

// invoke issues one model call under the stage deadline. The deadline holds
// even when the model ignores cancellation.
func (rt *Runtime) invoke(ctx context.Context, stage prompts.Stage, prompt string) (string, error) {
	timeout := rt.deadline(stage)

	callCtx, cancel := context.WithTimeout(inference.WithStage(ctx, string(stage)), timeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		content, err := rt.Model.Chat(callCtx, prompt)
		done <- reply{content, err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.content, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
		if errors.Is(r.err, context.DeadlineExceeded) {
			return "", &TimeoutError{Stage: stage, Deadline: timeout}
		}
		return "", &InferenceError{Stage: stage, Err: r.err}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
		return "", &TimeoutError{Stage: stage, Deadline: timeout}
	}
}
