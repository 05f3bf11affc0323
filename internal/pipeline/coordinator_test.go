package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/internal/inference"
	"github.com/JaimeStill/emcode/internal/pipeline"
	"github.com/JaimeStill/emcode/internal/prompts"
	"github.com/JaimeStill/emcode/internal/workflow"
	"github.com/JaimeStill/emcode/pkg/lifecycle"
	"github.com/JaimeStill/emcode/pkg/pagination"
	"github.com/JaimeStill/emcode/pkg/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var pageConfig = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}

var documentIDPattern = regexp.MustCompile(`Document ID: (\S+)`)

// fakeModel answers both stages for every document. Documents listed in
// hang block the named stage until the call context ends.
type fakeModel struct {
	code  string
	delay func() time.Duration
	hang  map[string]prompts.Stage

	mu    sync.Mutex
	calls map[string]int
}

func newFakeModel(code string) *fakeModel {
	return &fakeModel{
		code:  code,
		hang:  make(map[string]prompts.Stage),
		calls: make(map[string]int),
	}
}

func (m *fakeModel) Chat(ctx context.Context, prompt string) (string, error) {
	stage := prompts.Stage(inference.StageFrom(ctx))

	docID := ""
	if match := documentIDPattern.FindStringSubmatch(prompt); match != nil {
		docID = match[1]
	}

	m.mu.Lock()
	m.calls[string(stage)+":"+docID]++
	m.mu.Unlock()

	if m.hang[docID] == stage {
		<-ctx.Done()
		return "", ctx.Err()
	}

	if m.delay != nil {
		select {
		case <-time.After(m.delay()):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	switch stage {
	case prompts.StageEnhance:
		return fmt.Sprintf(`{"assigned_code": %q, "justification": "moderate MDM"}`, m.code), nil
	case prompts.StageAudit:
		return fmt.Sprintf(`{
			"audit_flags": [],
			"final_assigned_code": %q,
			"final_justification": {"supported_by": "MDM", "documentation_summary": [], "mdm_considerations": []},
			"confidence": {"score": 80, "mdm_assignment_reason": [], "documentation_enhancement_opportunities": [], "score_deductions": []}
		}`, m.code), nil
	default:
		return "", errors.New("unknown stage")
	}
}

func (m *fakeModel) callCount(stage prompts.Stage, docID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[string(stage)+":"+docID]
}

func (m *fakeModel) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func boolPtr(b bool) *bool { return &b }

func documents(n int) []workflow.Document {
	docs := make([]workflow.Document, n)
	for i := range docs {
		docs[i] = workflow.Document{
			ID:           fmt.Sprintf("doc-%d", i+1),
			FullText:     "Established patient follow-up. Two stable chronic illnesses. Prescription renewed.",
			IsNewPatient: boolPtr(false),
		}
	}
	return docs
}

func newCoordinator(store pipeline.Store, model inference.Model, blobs storage.System, cfg pipeline.Config) pipeline.System {
	return pipeline.New(
		store,
		model,
		prompts.Defaults(discard()),
		blobs,
		cfg,
		discard(),
		pageConfig,
	)
}

func await(t *testing.T, sys pipeline.System, id uuid.UUID) *pipeline.Instance {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inst, err := sys.Await(ctx, id)
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	return inst
}

func TestSubmitCompletesBatch(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	model := newFakeModel("99214")
	sys := newCoordinator(store, model, nil, pipeline.Config{})

	submitted, err := sys.Submit(context.Background(), documents(3))
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if submitted.Status != pipeline.StatusRunning {
		t.Errorf("submitted status = %s, want running", submitted.Status)
	}
	if submitted.DocumentCount != 3 {
		t.Errorf("document count = %d, want 3", submitted.DocumentCount)
	}

	inst := await(t, sys, submitted.ID)

	if inst.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s, want completed", inst.Status)
	}
	if inst.CustomStatus != "Completed: 3 succeeded, 0 failed" {
		t.Errorf("custom status = %q", inst.CustomStatus)
	}
	if inst.CompletedAt == nil {
		t.Error("completed_at should be set")
	}

	report := inst.Report
	if report == nil {
		t.Fatal("report missing")
	}
	if report.Status != pipeline.StatusCompleted {
		t.Errorf("report status = %s, want completed", report.Status)
	}
	if report.Total != 3 || report.Succeeded != 3 || report.Failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/3/0", report.Total, report.Succeeded, report.Failed)
	}
	if report.CompletedAt.Before(report.StartedAt) {
		t.Error("completed_at precedes started_at")
	}
}

func TestBatchIsolatesTimeout(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	model := newFakeModel("99213")
	model.hang["doc-2"] = prompts.StageEnhance

	sys := newCoordinator(store, model, nil, pipeline.Config{
		EnhanceTimeout: 30 * time.Millisecond,
		AuditTimeout:   time.Second,
	})

	submitted, err := sys.Submit(context.Background(), documents(3))
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	report := await(t, sys, submitted.ID).Report

	if report.Failed != 1 || report.Succeeded != 2 {
		t.Fatalf("succeeded/failed = %d/%d, want 2/1", report.Succeeded, report.Failed)
	}

	second := report.Outcomes[1]
	if second.DocumentID != "doc-2" || second.Succeeded() {
		t.Fatalf("outcome[1] = %+v, want doc-2 failed", second)
	}
	if second.Error.Kind != workflow.KindTimeout {
		t.Errorf("kind = %s, want timeout", second.Error.Kind)
	}

	for _, i := range []int{0, 2} {
		if !report.Outcomes[i].Succeeded() {
			t.Errorf("outcome[%d] = %s, want succeeded", i, report.Outcomes[i].Status)
		}
	}

	if got := model.callCount(prompts.StageAudit, "doc-2"); got != 0 {
		t.Errorf("audit calls for doc-2 = %d, want 0", got)
	}
}

func TestBatchPreservesSubmissionOrder(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	model := newFakeModel("99215")
	model.delay = func() time.Duration {
		return time.Duration(rand.IntN(15)) * time.Millisecond
	}

	sys := newCoordinator(store, model, nil, pipeline.Config{MaxConcurrency: 4})

	docs := documents(12)
	submitted, err := sys.Submit(context.Background(), docs)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	report := await(t, sys, submitted.ID).Report

	if len(report.Outcomes) != len(docs) {
		t.Fatalf("outcomes = %d, want %d", len(report.Outcomes), len(docs))
	}
	for i, o := range report.Outcomes {
		if o.Position != i {
			t.Errorf("outcome[%d].position = %d", i, o.Position)
		}
		if o.DocumentID != docs[i].ID {
			t.Errorf("outcome[%d].document_id = %s, want %s", i, o.DocumentID, docs[i].ID)
		}
	}
	if report.Succeeded+report.Failed != report.Total {
		t.Error("succeeded + failed != total")
	}
}

func TestSubmitValidation(t *testing.T) {
	model := newFakeModel("99213")
	sys := newCoordinator(pipeline.NewMemoryStore(pageConfig), model, nil, pipeline.Config{})

	tests := []struct {
		name string
		docs []workflow.Document
	}{
		{"empty batch", nil},
		{"missing id", []workflow.Document{{FullText: "note"}}},
		{"duplicate id", []workflow.Document{{ID: "a", FullText: "x"}, {ID: "a", FullText: "y"}}},
		{"no text or key", []workflow.Document{{ID: "a"}}},
		{"storage key without storage", []workflow.Document{{ID: "a", StorageKey: "notes/a.txt"}}},
		{"nul in full text", []workflow.Document{{ID: "a", FullText: "chief complaint\x00 cough"}}},
		{"nul in provider", []workflow.Document{{ID: "a", FullText: "note", Provider: "Dr.\x00Lee"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sys.Submit(context.Background(), tt.docs)
			if !errors.Is(err, pipeline.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	if model.total() != 0 {
		t.Errorf("model calls = %d, want 0", model.total())
	}
}

type fakeBlobs struct {
	storage.System
	blobs map[string]string
}

func (f *fakeBlobs) Download(_ context.Context, key string) (io.ReadCloser, error) {
	text, ok := f.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewBufferString(text)), nil
}

func TestSubmitResolvesStorageKeys(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	blobs := &fakeBlobs{blobs: map[string]string{
		"notes/a.txt":      "Progress note from blob storage.",
		"notes/binary.txt": "scanned\x00page",
	}}
	sys := newCoordinator(store, newFakeModel("99213"), blobs, pipeline.Config{})

	t.Run("resolved text is persisted", func(t *testing.T) {
		inst, err := sys.Submit(context.Background(), []workflow.Document{
			{ID: "a", StorageKey: "notes/a.txt", IsNewPatient: boolPtr(false)},
		})
		if err != nil {
			t.Fatalf("Submit error: %v", err)
		}

		docs, err := store.Documents(context.Background(), inst.ID)
		if err != nil {
			t.Fatalf("Documents error: %v", err)
		}
		if docs[0].FullText != "Progress note from blob storage." {
			t.Errorf("full text = %q", docs[0].FullText)
		}

		await(t, sys, inst.ID)
	})

	t.Run("missing blob is a validation error", func(t *testing.T) {
		_, err := sys.Submit(context.Background(), []workflow.Document{
			{ID: "b", StorageKey: "notes/missing.txt"},
		})
		if !errors.Is(err, pipeline.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("blob with NUL is a validation error", func(t *testing.T) {
		_, err := sys.Submit(context.Background(), []workflow.Document{
			{ID: "c", StorageKey: "notes/binary.txt"},
		})
		if !errors.Is(err, pipeline.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})
}

func TestRetry(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	model := newFakeModel("99214")
	model.hang["doc-3"] = prompts.StageAudit

	sys := newCoordinator(store, model, nil, pipeline.Config{AuditTimeout: 30 * time.Millisecond})

	first, err := sys.Submit(context.Background(), documents(3))
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	await(t, sys, first.ID)

	retried, err := sys.Retry(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Retry error: %v", err)
	}

	if retried.RetryOf == nil || *retried.RetryOf != first.ID {
		t.Errorf("retry_of = %v, want %s", retried.RetryOf, first.ID)
	}
	if retried.DocumentCount != 1 {
		t.Errorf("document count = %d, want 1", retried.DocumentCount)
	}

	report := await(t, sys, retried.ID).Report
	if report.Outcomes[0].DocumentID != "doc-3" {
		t.Errorf("retried document = %s, want doc-3", report.Outcomes[0].DocumentID)
	}

	t.Run("nothing to retry", func(t *testing.T) {
		clean, err := sys.Submit(context.Background(), documents(1))
		if err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		await(t, sys, clean.ID)

		if _, err := sys.Retry(context.Background(), clean.ID); !errors.Is(err, pipeline.ErrNothingToRetry) {
			t.Errorf("err = %v, want ErrNothingToRetry", err)
		}
	})

	t.Run("unknown batch", func(t *testing.T) {
		if _, err := sys.Retry(context.Background(), uuid.New()); !errors.Is(err, pipeline.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestRetryRunningBatch(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	inst, err := store.Create(context.Background(), pipeline.Instance{
		ID:            uuid.New(),
		Status:        pipeline.StatusRunning,
		DocumentCount: 1,
	}, documents(1))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	sys := newCoordinator(store, newFakeModel("99213"), nil, pipeline.Config{})

	if _, err := sys.Retry(context.Background(), inst.ID); !errors.Is(err, pipeline.ErrNotCompleted) {
		t.Errorf("err = %v, want ErrNotCompleted", err)
	}
}

func TestStartResumesRunningBatches(t *testing.T) {
	ctx := context.Background()
	store := pipeline.NewMemoryStore(pageConfig)
	docs := documents(2)

	inst, err := store.Create(ctx, pipeline.Instance{
		ID:            uuid.New(),
		Status:        pipeline.StatusRunning,
		DocumentCount: len(docs),
	}, docs)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// The first document finished enhancement before the previous process stopped.
	err = store.SaveCheckpoint(ctx, workflow.CheckpointKey{
		BatchID:  inst.ID,
		Position: 0,
		Stage:    prompts.StageEnhance,
	}, workflow.Checkpoint{
		Result:    []byte(`{"document_id":"doc-1","assigned_code":"99214","justification":"recorded","is_new_patient":false}`),
		ElapsedMS: 40,
	})
	if err != nil {
		t.Fatalf("SaveCheckpoint error: %v", err)
	}

	model := newFakeModel("99214")
	sys := newCoordinator(store, model, nil, pipeline.Config{})

	lc := lifecycle.New()
	if err := sys.Start(lc); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	lc.WaitForStartup()

	resumed := await(t, sys, inst.ID)

	if resumed.Report.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", resumed.Report.Succeeded)
	}
	if got := model.callCount(prompts.StageEnhance, "doc-1"); got != 0 {
		t.Errorf("enhance calls for doc-1 = %d, want 0 (replayed)", got)
	}
	if got := model.callCount(prompts.StageEnhance, "doc-2"); got != 1 {
		t.Errorf("enhance calls for doc-2 = %d, want 1", got)
	}
	if resumed.Report.Outcomes[0].Timing.EnhanceMS != 40 {
		t.Errorf("replayed enhance ms = %d, want 40", resumed.Report.Outcomes[0].Timing.EnhanceMS)
	}

	if err := lc.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
}

func TestShutdownLeavesBatchRunning(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	model := newFakeModel("99214")
	model.hang["doc-1"] = prompts.StageEnhance

	sys := newCoordinator(store, model, nil, pipeline.Config{EnhanceTimeout: time.Minute})

	lc := lifecycle.New()
	if err := sys.Start(lc); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	lc.WaitForStartup()

	inst, err := sys.Submit(context.Background(), documents(1))
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for model.callCount(prompts.StageEnhance, "doc-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := lc.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	found, err := store.Find(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if found.Status != pipeline.StatusRunning {
		t.Errorf("status = %s, want running", found.Status)
	}

	cp, err := store.LoadCheckpoint(context.Background(), workflow.CheckpointKey{
		BatchID:  inst.ID,
		Position: 0,
		Stage:    prompts.StageEnhance,
	})
	if err != nil {
		t.Fatalf("LoadCheckpoint error: %v", err)
	}
	if cp != nil {
		t.Error("interrupted call should not be checkpointed")
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	model := newFakeModel("99214")
	sys := newCoordinator(store, model, nil, pipeline.Config{})

	lc := lifecycle.New()
	if err := sys.Start(lc); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	lc.WaitForStartup()

	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	inst, err := sys.Submit(context.Background(), documents(2))
	if !errors.Is(err, pipeline.ErrShuttingDown) {
		t.Fatalf("err = %v, want ErrShuttingDown", err)
	}
	if inst != nil {
		t.Errorf("instance = %+v, want nil", inst)
	}

	page, err := store.List(context.Background(), pagination.PageRequest{}, pipeline.Filters{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("stored batches = %d, want 0", page.Total)
	}
	if model.total() != 0 {
		t.Errorf("model calls = %d, want 0", model.total())
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)
	model := newFakeModel("99214")
	model.hang["doc-1"] = prompts.StageEnhance

	sys := newCoordinator(store, model, nil, pipeline.Config{EnhanceTimeout: 200 * time.Millisecond})

	inst, err := sys.Submit(context.Background(), documents(1))
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := sys.Await(ctx, inst.ID); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	await(t, sys, inst.ID)
}

func TestCustomStatusProgress(t *testing.T) {
	store := pipeline.NewMemoryStore(pageConfig)

	var (
		release = make(chan struct{})
		seen    atomic.Value
	)

	model := inference.ModelFunc(func(ctx context.Context, prompt string) (string, error) {
		if inference.StageFrom(ctx) == string(prompts.StageEnhance) {
			return `{"assigned_code": "99213", "justification": "low MDM"}`, nil
		}
		<-release
		return `{"audit_flags": [], "final_assigned_code": "99213",
			"final_justification": {"supported_by": "MDM"},
			"confidence": {"score": 60}}`, nil
	})

	sys := newCoordinator(store, model, nil, pipeline.Config{})

	inst, err := sys.Submit(context.Background(), documents(2))
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	want := "Enhancement phase complete, auditing 2 documents"
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		found, err := sys.Find(context.Background(), inst.ID)
		if err != nil {
			t.Fatalf("Find error: %v", err)
		}
		seen.Store(found.CustomStatus)
		if found.CustomStatus == want {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(release)

	if got, _ := seen.Load().(string); got != want {
		t.Errorf("custom status = %q, want %q", got, want)
	}

	await(t, sys, inst.ID)
}
