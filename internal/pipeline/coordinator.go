package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/emcode/internal/inference"
	"github.com/JaimeStill/emcode/internal/prompts"
	"github.com/JaimeStill/emcode/internal/workflow"
	"github.com/JaimeStill/emcode/pkg/lifecycle"
	"github.com/JaimeStill/emcode/pkg/pagination"
	"github.com/JaimeStill/emcode/pkg/storage"
)

const awaitPollInterval = 250 * time.Millisecond

type coordinator struct {
	store          Store
	blobs          storage.System
	rt             *workflow.Runtime
	maxConcurrency int
	logger         *slog.Logger
	pagination     pagination.Config

	mu     sync.Mutex
	ctx    context.Context
	active map[uuid.UUID]chan struct{}
	wg     sync.WaitGroup
}

// New creates the batch coordinator. It constructs the workflow runtime from
// the provided dependencies; store also serves as the checkpoint store. blobs
// may be nil when no blob storage is configured.
func New(
	store Store,
	model inference.Model,
	prompts prompts.System,
	blobs storage.System,
	cfg Config,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}

	rt := &workflow.Runtime{
		Model:          model,
		Prompts:        prompts,
		Checkpoints:    store,
		EnhanceTimeout: cfg.EnhanceTimeout,
		AuditTimeout:   cfg.AuditTimeout,
		Logger:         logger.With("workflow", "document"),
	}

	return &coordinator{
		store:          store,
		blobs:          blobs,
		rt:             rt,
		maxConcurrency: maxConcurrency,
		logger:         logger.With("system", "pipeline"),
		pagination:     pagination,
		ctx:            context.Background(),
		active:         make(map[uuid.UUID]chan struct{}),
	}
}

func (c *coordinator) Handler(basePath string, maxBodySize int64) *Handler {
	return NewHandler(c, c.logger, c.pagination, basePath, maxBodySize)
}

func (c *coordinator) Submit(ctx context.Context, docs []workflow.Document) (*Instance, error) {
	return c.submit(ctx, docs, nil)
}

func (c *coordinator) Find(ctx context.Context, id uuid.UUID) (*Instance, error) {
	return c.store.Find(ctx, id)
}

func (c *coordinator) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Instance], error) {
	return c.store.List(ctx, page, filters)
}

func (c *coordinator) Retry(ctx context.Context, id uuid.UUID) (*Instance, error) {
	inst, err := c.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	if inst.Status != StatusCompleted || inst.Report == nil {
		return nil, ErrNotCompleted
	}

	positions := inst.Report.FailedPositions()
	if len(positions) == 0 {
		return nil, ErrNothingToRetry
	}

	docs, err := c.store.Documents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load batch documents: %w", err)
	}

	failed := make([]workflow.Document, 0, len(positions))
	for _, pos := range positions {
		if pos < 0 || pos >= len(docs) {
			return nil, fmt.Errorf("outcome position %d outside batch of %d documents", pos, len(docs))
		}
		failed = append(failed, docs[pos])
	}

	retry, err := c.submit(ctx, failed, &id)
	if err != nil {
		return nil, err
	}

	c.logger.Info("batch retried", "id", retry.ID, "retry_of", id, "documents", len(failed))
	return retry, nil
}

func (c *coordinator) Await(ctx context.Context, id uuid.UUID) (*Instance, error) {
	for {
		inst, err := c.store.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst.Status == StatusCompleted {
			return inst, nil
		}

		// done is nil when the batch runs in another process; fall back to polling.
		c.mu.Lock()
		done := c.active[id]
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		case <-time.After(awaitPollInterval):
		}
	}
}

func (c *coordinator) Start(lc *lifecycle.Coordinator) error {
	c.logger.Info("starting pipeline coordinator", "max_concurrency", c.maxConcurrency)

	c.mu.Lock()
	c.ctx = lc.Context()
	c.mu.Unlock()

	lc.OnStartup(func() {
		c.resume(lc.Context())
	})

	lc.OnDrain(func() {
		c.logger.Info("draining in-flight batches")
		c.wg.Wait()
		c.logger.Info("pipeline coordinator stopped")
	})

	return nil
}

func (c *coordinator) resume(ctx context.Context) {
	running, err := c.store.Running(ctx)
	if err != nil {
		c.logger.Error("load running batches failed", "error", err)
		return
	}

	for _, inst := range running {
		docs, err := c.store.Documents(ctx, inst.ID)
		if err != nil {
			c.logger.Error("load batch documents failed", "id", inst.ID, "error", err)
			continue
		}

		c.logger.Info("resuming batch", "id", inst.ID, "documents", len(docs))
		c.launch(inst, docs)
	}
}

func (c *coordinator) submit(ctx context.Context, docs []workflow.Document, retryOf *uuid.UUID) (*Instance, error) {
	if err := Validate(docs); err != nil {
		return nil, err
	}

	resolved, err := resolveText(ctx, c.blobs, docs)
	if err != nil {
		return nil, err
	}

	// a batch accepted after shutdown begins would never be launched.
	c.mu.Lock()
	stopped := c.ctx.Err() != nil
	c.mu.Unlock()
	if stopped {
		return nil, ErrShuttingDown
	}

	inst := Instance{
		ID:            uuid.New(),
		Status:        StatusRunning,
		CustomStatus:  statusStarting,
		DocumentCount: len(resolved),
		RetryOf:       retryOf,
	}

	created, err := c.store.Create(ctx, inst, resolved)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	c.launch(*created, resolved)
	return created, nil
}

// launch runs the batch in the background unless it is already running in
// this process.
func (c *coordinator) launch(inst Instance, docs []workflow.Document) {
	c.mu.Lock()
	if _, ok := c.active[inst.ID]; ok {
		c.mu.Unlock()
		return
	}
	done := make(chan struct{})
	c.active[inst.ID] = done
	ctx := c.ctx
	c.mu.Unlock()

	c.wg.Go(func() {
		defer func() {
			c.mu.Lock()
			delete(c.active, inst.ID)
			c.mu.Unlock()
			close(done)
		}()

		if err := c.run(ctx, inst, docs); err != nil {
			if errors.Is(err, workflow.ErrInterrupted) {
				c.logger.Info("batch interrupted, left running for resume", "id", inst.ID)
				return
			}
			c.logger.Error("batch failed", "id", inst.ID, "error", err)
		}
	})
}

// run fans the batch out to one workflow per document and fans the outcomes
// back in by submission position.
func (c *coordinator) run(ctx context.Context, inst Instance, docs []workflow.Document) error {
	logger := c.logger.With("batch_id", inst.ID)
	logger.Info("batch started", "documents", len(docs))

	c.setStatus(ctx, inst.ID, statusStarting)

	outcomes := make([]workflow.Outcome, len(docs))
	progress := newProgress(len(docs), func(enhanced int) {
		c.setStatus(ctx, inst.ID, statusAuditing(enhanced))
	})

	c.setStatus(ctx, inst.ID, statusEnhancing(len(docs)))

	var interrupted atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(c.maxConcurrency)

	for i, doc := range docs {
		if ctx.Err() != nil {
			interrupted.Store(true)
			break
		}

		job := workflow.Job{
			BatchID:  inst.ID,
			Position: i,
			Document: doc,
			Observe:  progress.observer(),
		}

		g.Go(func() error {
			outcome, err := workflow.Execute(ctx, c.rt, job)
			if err != nil {
				interrupted.Store(true)
				return nil
			}
			outcomes[i] = outcome
			return nil
		})
	}

	g.Wait()

	if interrupted.Load() {
		return fmt.Errorf("batch %s: %w", inst.ID, workflow.ErrInterrupted)
	}

	report := NewReport(outcomes, inst.CreatedAt, time.Now().UTC())
	final := statusCompleted(report.Succeeded, report.Failed)

	if err := c.store.Complete(context.WithoutCancel(ctx), inst.ID, report, final); err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}

	logger.Info(
		"batch completed",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"wall_ms", report.Timing.WallMS,
	)
	return nil
}

func (c *coordinator) setStatus(ctx context.Context, id uuid.UUID, status string) {
	if err := c.store.SetCustomStatus(context.WithoutCancel(ctx), id, status); err != nil {
		c.logger.Warn("custom status update failed", "id", id, "status", status, "error", err)
	}
}

// progress derives the advisory batch status from workflow phase changes.
type progress struct {
	total    int32
	settled  atomic.Int32
	enhanced atomic.Int32
	notify   func(enhanced int)
}

func newProgress(total int, notify func(enhanced int)) *progress {
	return &progress{total: int32(total), notify: notify}
}

// observer returns a phase callback for one workflow. A workflow settles its
// enhancement when it reaches Enhanced or fails while Enhancing.
func (p *progress) observer() func(workflow.Phase) {
	var prev workflow.Phase
	return func(phase workflow.Phase) {
		switch {
		case phase == workflow.PhaseEnhanced:
			p.enhanced.Add(1)
			p.settle()
		case phase == workflow.PhaseFailed && prev == workflow.PhaseEnhancing:
			p.settle()
		}
		prev = phase
	}
}

func (p *progress) settle() {
	if p.settled.Add(1) == p.total {
		p.notify(int(p.enhanced.Load()))
	}
}
