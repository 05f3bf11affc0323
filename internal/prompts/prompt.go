// Package prompts supplies the instructions and response specifications sent
// to the inference service for each pipeline stage. Instructions may be
// overridden per stage; response specifications are fixed.
package prompts

import (
	"context"
	"strings"
	"time"
)

// Prompt is the effective prompt content for one stage.
type Prompt struct {
	Stage        Stage      `json:"stage"`
	Instructions string     `json:"instructions"`
	Spec         string     `json:"spec"`
	Overridden   bool       `json:"overridden"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// OverrideCommand replaces the instructions for a stage.
type OverrideCommand struct {
	Instructions string `json:"instructions"`
}

// Validate trims the instructions and rejects empty values.
func (c *OverrideCommand) Validate() error {
	c.Instructions = strings.TrimSpace(c.Instructions)
	if c.Instructions == "" {
		return ErrEmptyInstructions
	}
	return nil
}

// System defines the public contract for prompt operations.
type System interface {
	Handler() *Handler

	List(ctx context.Context) ([]Prompt, error)
	Find(ctx context.Context, stage Stage) (*Prompt, error)
	Instructions(ctx context.Context, stage Stage) (string, error)
	Spec(ctx context.Context, stage Stage) (string, error)
	Override(ctx context.Context, stage Stage, cmd OverrideCommand) (*Prompt, error)
	Reset(ctx context.Context, stage Stage) error
}

type override struct {
	Stage        Stage
	Instructions string
	UpdatedAt    time.Time
}

func effective(stage Stage, o *override) (Prompt, error) {
	spec, err := Spec(stage)
	if err != nil {
		return Prompt{}, err
	}

	if o != nil {
		updated := o.UpdatedAt
		return Prompt{
			Stage:        stage,
			Instructions: o.Instructions,
			Spec:         spec,
			Overridden:   true,
			UpdatedAt:    &updated,
		}, nil
	}

	text, err := Instructions(stage)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Stage: stage, Instructions: text, Spec: spec}, nil
}
