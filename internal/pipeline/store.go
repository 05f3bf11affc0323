package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/internal/workflow"
	"github.com/JaimeStill/emcode/pkg/pagination"
)

// Store persists batches, their documents, and the stage checkpoints their
// workflows replay from.
type Store interface {
	workflow.Checkpoints

	Create(ctx context.Context, inst Instance, docs []workflow.Document) (*Instance, error)
	Find(ctx context.Context, id uuid.UUID) (*Instance, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Instance], error)

	// Documents returns the batch documents in submission order.
	Documents(ctx context.Context, id uuid.UUID) ([]workflow.Document, error)
	// SetCustomStatus updates the progress string of a running batch.
	SetCustomStatus(ctx context.Context, id uuid.UUID, status string) error
	// Complete freezes the report and marks the batch completed.
	Complete(ctx context.Context, id uuid.UUID, report BatchReport, customStatus string) error
	// Running returns every batch that has not completed, oldest first.
	Running(ctx context.Context) ([]Instance, error)
}
