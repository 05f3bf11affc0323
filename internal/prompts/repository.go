package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/emcode/pkg/query"
	"github.com/JaimeStill/emcode/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "prompt_overrides", "p").
	Project("stage", "Stage").
	Project("instructions", "Instructions").
	Project("updated_at", "UpdatedAt")

var dbErrors = repository.Errors{
	NotFound: ErrNotFound,
	Invalid:  ErrInvalidStage,
}

func scanOverride(s repository.Scanner) (override, error) {
	var o override
	err := s.Scan(&o.Stage, &o.Instructions, &o.UpdatedAt)
	return o, err
}

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a prompt system backed by the prompt_overrides table.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "prompts"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) List(ctx context.Context) ([]Prompt, error) {
	q, args := query.NewBuilder(projection).Select()
	overrides, err := repository.QueryMany(ctx, r.db, q, args, scanOverride)
	if err != nil {
		return nil, fmt.Errorf("query prompt overrides: %w", err)
	}

	byStage := make(map[Stage]*override, len(overrides))
	for i := range overrides {
		byStage[overrides[i].Stage] = &overrides[i]
	}

	stages := Stages()
	result := make([]Prompt, 0, len(stages))
	for _, stage := range stages {
		p, err := effective(stage, byStage[stage])
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (r *repo) Find(ctx context.Context, stage Stage) (*Prompt, error) {
	o, err := r.find(ctx, stage)
	if err != nil {
		return nil, err
	}

	p, err := effective(stage, o)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) Instructions(ctx context.Context, stage Stage) (string, error) {
	p, err := r.Find(ctx, stage)
	if err != nil {
		return "", err
	}
	return p.Instructions, nil
}

func (r *repo) Spec(_ context.Context, stage Stage) (string, error) {
	return Spec(stage)
}

func (r *repo) Override(ctx context.Context, stage Stage, cmd OverrideCommand) (*Prompt, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	upsertQ := `
		INSERT INTO prompt_overrides(stage, instructions)
		VALUES ($1, $2)
		ON CONFLICT (stage) DO UPDATE SET
			instructions = EXCLUDED.instructions,
			updated_at = NOW()
		RETURNING stage, instructions, updated_at`

	o, err := repository.QueryOne(ctx, r.db, upsertQ, []any{stage, cmd.Instructions}, scanOverride)
	if err != nil {
		return nil, fmt.Errorf("upsert prompt override: %w", dbErrors.Map(err))
	}

	p, err := effective(stage, &o)
	if err != nil {
		return nil, err
	}

	r.logger.Info("prompt overridden", "stage", stage)
	return &p, nil
}

func (r *repo) Reset(ctx context.Context, stage Stage) error {
	if _, err := ParseStage(string(stage)); err != nil {
		return err
	}

	err := repository.ExecExpectOne(ctx, r.db, "DELETE FROM prompt_overrides WHERE stage = $1", stage)
	if err != nil {
		return dbErrors.Map(err)
	}

	r.logger.Info("prompt override reset", "stage", stage)
	return nil
}

func (r *repo) find(ctx context.Context, stage Stage) (*override, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return nil, err
	}

	q, args := query.NewBuilder(projection).Single("Stage", stage)
	o, err := repository.QueryOne(ctx, r.db, q, args, scanOverride)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query prompt override: %w", err)
	}
	return &o, nil
}
