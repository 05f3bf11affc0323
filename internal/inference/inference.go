// Package inference is the boundary to the external structured-inference
// service. A Model is constructed once at process start and shared by every
// concurrent stage call.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/JaimeStill/go-agents/pkg/agent"
	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

// ErrEmptyResponse is returned when the service answers with no content.
var ErrEmptyResponse = errors.New("inference returned an empty response")

// Model performs a single request/response exchange with the inference service.
type Model interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

func (f ModelFunc) Chat(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type agentModel struct {
	agent agent.Agent
}

// NewAgentModel builds the go-agents client for cfg. The returned Model holds
// one agent for the life of the process.
func NewAgentModel(cfg gaconfig.AgentConfig) (Model, error) {
	a, err := agent.New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return &agentModel{agent: a}, nil
}

func (m *agentModel) Chat(ctx context.Context, prompt string) (string, error) {
	resp, err := m.agent.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}

	content := resp.Content()
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

type stageKey struct{}

// WithStage labels ctx with the pipeline stage issuing the call.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFrom returns the stage label carried by ctx, or "unknown".
func StageFrom(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey{}).(string); ok {
		return s
	}
	return "unknown"
}
