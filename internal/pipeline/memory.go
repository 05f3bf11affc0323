package pipeline

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/internal/workflow"
	"github.com/JaimeStill/emcode/pkg/pagination"
	"github.com/JaimeStill/emcode/pkg/query"
)

type memoryBatch struct {
	instance Instance
	docs     []workflow.Document
}

type memory struct {
	mu          sync.RWMutex
	batches     map[uuid.UUID]*memoryBatch
	checkpoints map[workflow.CheckpointKey]workflow.Checkpoint
	pagination  pagination.Config
}

// NewMemoryStore returns a process-local Store. Batches do not survive a
// restart.
func NewMemoryStore(cfg pagination.Config) Store {
	return &memory{
		batches:     make(map[uuid.UUID]*memoryBatch),
		checkpoints: make(map[workflow.CheckpointKey]workflow.Checkpoint),
		pagination:  cfg,
	}
}

func (m *memory) Create(_ context.Context, inst Instance, docs []workflow.Document) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batches[inst.ID]; ok {
		return nil, ErrDuplicate
	}

	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	m.batches[inst.ID] = &memoryBatch{
		instance: inst,
		docs:     slices.Clone(docs),
	}
	return &inst, nil
}

func (m *memory) Find(_ context.Context, id uuid.UUID) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	inst := b.instance
	return &inst, nil
}

func (m *memory) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Instance], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	items := make([]Instance, 0, len(m.batches))
	for _, b := range m.batches {
		if !filters.matches(b.instance) {
			continue
		}
		if page.Search != nil && !strings.Contains(
			strings.ToLower(b.instance.CustomStatus),
			strings.ToLower(*page.Search),
		) {
			continue
		}
		items = append(items, b.instance)
	}
	m.mu.RUnlock()

	sortInstances(items, page.Sort)

	total := len(items)
	start := min(page.Offset(), total)
	end := min(start+page.PageSize, total)

	result := pagination.NewPageResult(items[start:end], total, page.Page, page.PageSize)
	return &result, nil
}

func (m *memory) Documents(_ context.Context, id uuid.UUID) ([]workflow.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(b.docs), nil
}

func (m *memory) SetCustomStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	if b.instance.Status != StatusRunning {
		return nil
	}
	b.instance.CustomStatus = status
	b.instance.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memory) Complete(_ context.Context, id uuid.UUID, report BatchReport, customStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}

	completed := report.CompletedAt
	b.instance.Status = StatusCompleted
	b.instance.CustomStatus = customStatus
	b.instance.Report = &report
	b.instance.CompletedAt = &completed
	b.instance.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memory) Running(context.Context) ([]Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	running := make([]Instance, 0)
	for _, b := range m.batches {
		if b.instance.Status == StatusRunning {
			running = append(running, b.instance)
		}
	}

	slices.SortFunc(running, func(a, b Instance) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return running, nil
}

func (m *memory) LoadCheckpoint(_ context.Context, key workflow.CheckpointKey) (*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[key]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (m *memory) SaveCheckpoint(_ context.Context, key workflow.CheckpointKey, cp workflow.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.checkpoints[key]; !ok {
		m.checkpoints[key] = cp
	}
	return nil
}

var instanceOrder = map[string]func(a, b Instance) int{
	"CreatedAt":     func(a, b Instance) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"UpdatedAt":     func(a, b Instance) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	"Status":        func(a, b Instance) int { return cmp.Compare(a.Status, b.Status) },
	"CustomStatus":  func(a, b Instance) int { return cmp.Compare(a.CustomStatus, b.CustomStatus) },
	"DocumentCount": func(a, b Instance) int { return cmp.Compare(a.DocumentCount, b.DocumentCount) },
}

// sortInstances orders items by the requested fields, falling back to the
// same newest-first default as the Postgres store. Unknown fields are ignored.
func sortInstances(items []Instance, fields []query.SortField) {
	if len(fields) == 0 {
		fields = []query.SortField{defaultSort}
	}

	slices.SortStableFunc(items, func(a, b Instance) int {
		for _, f := range fields {
			order, ok := instanceOrder[f.Field]
			if !ok {
				continue
			}
			c := order(a, b)
			if f.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}
