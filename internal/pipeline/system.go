package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/internal/workflow"
	"github.com/JaimeStill/emcode/pkg/lifecycle"
	"github.com/JaimeStill/emcode/pkg/pagination"
)

// DefaultMaxConcurrency bounds the workflows a single batch runs at once.
const DefaultMaxConcurrency = 16

// Config holds the runtime settings of the coordinator.
type Config struct {
	MaxConcurrency int
	EnhanceTimeout time.Duration
	AuditTimeout   time.Duration
}

// System defines the public contract for batch operations.
type System interface {
	Handler(basePath string, maxBodySize int64) *Handler

	// Submit validates docs, persists a running batch, and starts it in the
	// background. Validation failures return ErrInvalidInput.
	Submit(ctx context.Context, docs []workflow.Document) (*Instance, error)

	Find(ctx context.Context, id uuid.UUID) (*Instance, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Instance], error)

	// Retry submits the failed documents of a completed batch as a new batch.
	Retry(ctx context.Context, id uuid.UUID) (*Instance, error)

	// Await blocks until the batch completes or ctx ends.
	Await(ctx context.Context, id uuid.UUID) (*Instance, error)

	// Start binds batch execution to the lifecycle context, resumes batches
	// left running by a previous process, and drains in-flight batches at
	// shutdown.
	Start(lc *lifecycle.Coordinator) error
}
