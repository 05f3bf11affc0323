package prompts

import (
	"context"
	"log/slog"
)

type defaults struct {
	logger *slog.Logger
}

// Defaults returns a read-only System serving the built-in prompts. It is
// used when the service runs without a database.
func Defaults(logger *slog.Logger) System {
	return &defaults{logger: logger.With("system", "prompts")}
}

func (d *defaults) Handler() *Handler {
	return NewHandler(d, d.logger)
}

func (d *defaults) List(context.Context) ([]Prompt, error) {
	stages := Stages()
	result := make([]Prompt, 0, len(stages))
	for _, stage := range stages {
		p, err := effective(stage, nil)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (d *defaults) Find(_ context.Context, stage Stage) (*Prompt, error) {
	p, err := effective(stage, nil)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *defaults) Instructions(_ context.Context, stage Stage) (string, error) {
	return Instructions(stage)
}

func (d *defaults) Spec(_ context.Context, stage Stage) (string, error) {
	return Spec(stage)
}

func (d *defaults) Override(context.Context, Stage, OverrideCommand) (*Prompt, error) {
	return nil, ErrReadOnly
}

func (d *defaults) Reset(context.Context, Stage) error {
	return ErrReadOnly
}
