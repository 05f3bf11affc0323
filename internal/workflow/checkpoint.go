package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/internal/prompts"
)

// CheckpointKey names one stage call of one document in one batch.
type CheckpointKey struct {
	BatchID  uuid.UUID
	Position int
	Stage    prompts.Stage
}

// Checkpoint is the recorded result of a stage call: either the result JSON
// or the failure it produced, with the time the call took.
type Checkpoint struct {
	Result    json.RawMessage  `json:"result,omitempty"`
	Failure   *ErrorDescriptor `json:"failure,omitempty"`
	ElapsedMS int64            `json:"elapsed_ms"`
}

// Checkpoints persists stage call results so a re-executed workflow replays
// them instead of calling the inference service again.
type Checkpoints interface {
	// LoadCheckpoint returns nil with no error when the call has not been recorded.
	LoadCheckpoint(ctx context.Context, key CheckpointKey) (*Checkpoint, error)
	// SaveCheckpoint records a call. The first save for a key wins.
	SaveCheckpoint(ctx context.Context, key CheckpointKey, cp Checkpoint) error
}

// activity runs fn as a named, checkpointed stage call. A recorded result is
// returned without invoking fn. Only results and typed stage failures are
// recorded; interruptions and internal errors are not.
func activity[T any](
	ctx context.Context,
	rt *Runtime,
	key CheckpointKey,
	fn func(context.Context) (T, error),
) (T, time.Duration, error) {
	var zero T

	cp, err := rt.Checkpoints.LoadCheckpoint(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return zero, 0, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
		return zero, 0, fmt.Errorf("%w: load: %w", ErrCheckpoint, err)
	}

	if cp != nil {
		elapsed := time.Duration(cp.ElapsedMS) * time.Millisecond
		rt.Logger.DebugContext(
			ctx, "stage replayed from checkpoint",
			"batch_id", key.BatchID,
			"position", key.Position,
			"stage", key.Stage,
		)

		if cp.Failure != nil {
			return zero, elapsed, cp.Failure.Err()
		}

		var result T
		if err := json.Unmarshal(cp.Result, &result); err != nil {
			return zero, 0, fmt.Errorf("%w: decode: %w", ErrCheckpoint, err)
		}
		return result, elapsed, nil
	}

	start := time.Now()
	result, callErr := fn(ctx)
	elapsed := time.Since(start)

	if errors.Is(callErr, ErrInterrupted) {
		return zero, elapsed, callErr
	}
	if callErr != nil && ctx.Err() != nil {
		return zero, elapsed, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}

	record := Checkpoint{ElapsedMS: elapsed.Milliseconds()}
	if callErr != nil {
		record.Failure = Describe(callErr)
		// internal failures happen before or around the model call and may
		// not recur; leave the stage unrecorded so a resume runs it again.
		if record.Failure.Kind == KindInternal {
			return zero, elapsed, callErr
		}
	} else {
		data, err := json.Marshal(result)
		if err != nil {
			return zero, elapsed, fmt.Errorf("%w: encode: %w", ErrCheckpoint, err)
		}
		record.Result = data
	}

	if err := rt.Checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), key, record); err != nil {
		rt.Logger.WarnContext(
			ctx, "checkpoint save failed",
			"batch_id", key.BatchID,
			"position", key.Position,
			"stage", key.Stage,
			"error", err,
		)
	}

	return result, elapsed, callErr
}
