package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/internal/workflow"
	"github.com/JaimeStill/emcode/pkg/pagination"
	"github.com/JaimeStill/emcode/pkg/query"
	"github.com/JaimeStill/emcode/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// NewPostgresStore creates a Store backed by the batches, batch_documents,
// and stage_checkpoints tables.
func NewPostgresStore(db *sql.DB, logger *slog.Logger, pagination pagination.Config) Store {
	return &repo{
		db:         db,
		logger:     logger.With("store", "batches"),
		pagination: pagination,
	}
}

func (r *repo) Create(ctx context.Context, inst Instance, docs []workflow.Document) (*Instance, error) {
	insertBatch := `
		INSERT INTO batches(id, status, custom_status, document_count, retry_of)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, status, custom_status, document_count, retry_of, report,
				  created_at, updated_at, completed_at`

	batchArgs := []any{
		inst.ID,
		string(inst.Status),
		inst.CustomStatus,
		inst.DocumentCount,
		inst.RetryOf,
	}

	insertDocument := `
		INSERT INTO batch_documents(batch_id, position, document_id, document)
		VALUES ($1, $2, $3, $4)`

	var created Instance
	err := repository.InTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		created, err = repository.QueryOne(ctx, tx, insertBatch, batchArgs, scanInstance)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		for i, doc := range docs {
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document %d: %w", i, err)
			}
			if _, err := tx.ExecContext(ctx, insertDocument, created.ID, i, doc.ID, data); err != nil {
				return fmt.Errorf("insert document %d: %w", i, err)
			}
		}
		return nil
	})

	if err != nil {
		return nil, dbErrors.Map(err)
	}

	r.logger.Info("batch created", "id", created.ID, "documents", created.DocumentCount)
	return &created, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Instance, error) {
	q, args := query.NewBuilder(projection).Single("ID", id)

	inst, err := repository.QueryOne(ctx, r.db, q, args, scanInstance)
	if err != nil {
		return nil, dbErrors.Map(err)
	}
	return &inst, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Instance], error) {
	page.Normalize(r.pagination)

	qb := filters.Apply(query.NewBuilder(projection, defaultSort)).
		WhereSearch(page.Search, "CustomStatus").
		OrderBy(page.Sort)

	countSQL, countArgs := qb.Count()
	total, err := repository.Count(ctx, r.db, countSQL, countArgs)
	if err != nil {
		return nil, fmt.Errorf("count batches: %w", err)
	}

	pageSQL, pageArgs := qb.Page(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanInstance)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Documents(ctx context.Context, id uuid.UUID) ([]workflow.Document, error) {
	q := `
		SELECT document
		FROM batch_documents
		WHERE batch_id = $1
		ORDER BY position`

	docs, err := repository.QueryMany(ctx, r.db, q, []any{id}, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("query batch documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs, nil
}

func (r *repo) SetCustomStatus(ctx context.Context, id uuid.UUID, status string) error {
	q := `
		UPDATE batches
		SET custom_status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'running'`

	if _, err := r.db.ExecContext(ctx, q, id, status); err != nil {
		return fmt.Errorf("update custom status: %w", err)
	}
	return nil
}

func (r *repo) Complete(ctx context.Context, id uuid.UUID, report BatchReport, customStatus string) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	q := `
		UPDATE batches
		SET status = 'completed', custom_status = $2, report = $3,
			completed_at = $4, updated_at = NOW()
		WHERE id = $1`

	err = repository.ExecExpectOne(ctx, r.db, q, id, customStatus, data, report.CompletedAt)
	if err != nil {
		return dbErrors.Map(err)
	}

	r.logger.Info(
		"batch completed",
		"id", id,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return nil
}

func (r *repo) Running(ctx context.Context) ([]Instance, error) {
	running := string(StatusRunning)

	q, args := query.
		NewBuilder(projection, query.SortField{Field: "CreatedAt"}).
		WhereEquals("Status", &running).
		Select()

	items, err := repository.QueryMany(ctx, r.db, q, args, scanInstance)
	if err != nil {
		return nil, fmt.Errorf("query running batches: %w", err)
	}
	return items, nil
}

func (r *repo) LoadCheckpoint(ctx context.Context, key workflow.CheckpointKey) (*workflow.Checkpoint, error) {
	q := `
		SELECT result, failure, elapsed_ms
		FROM stage_checkpoints
		WHERE batch_id = $1 AND position = $2 AND stage = $3`

	args := []any{key.BatchID, key.Position, string(key.Stage)}

	cp, err := repository.QueryOne(ctx, r.db, q, args, scanCheckpoint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &cp, nil
}

func (r *repo) SaveCheckpoint(ctx context.Context, key workflow.CheckpointKey, cp workflow.Checkpoint) error {
	result, err := nullJSON(cp.Result)
	if err != nil {
		return fmt.Errorf("encode checkpoint result: %w", err)
	}

	failure, err := nullJSON(cp.Failure)
	if err != nil {
		return fmt.Errorf("encode checkpoint failure: %w", err)
	}

	q := `
		INSERT INTO stage_checkpoints(batch_id, position, stage, result, failure, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (batch_id, position, stage) DO NOTHING`

	args := []any{key.BatchID, key.Position, string(key.Stage), result, failure, cp.ElapsedMS}

	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
