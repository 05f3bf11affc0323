package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/JaimeStill/emcode/internal/inference"

type instrumented struct {
	next     Model
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// Instrument wraps model with call, failure, and latency instruments. A nil
// meter uses the global meter provider.
func Instrument(model Model, meter metric.Meter) (Model, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	calls, err := meter.Int64Counter(
		"emcode.inference.calls",
		metric.WithDescription("Inference calls issued by pipeline stages"),
	)
	if err != nil {
		return nil, fmt.Errorf("create calls counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"emcode.inference.failures",
		metric.WithDescription("Inference calls that returned an error or timed out"),
	)
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"emcode.inference.duration",
		metric.WithDescription("Inference call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &instrumented{
		next:     model,
		calls:    calls,
		failures: failures,
		duration: duration,
	}, nil
}

func (m *instrumented) Chat(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	content, err := m.next.Chat(ctx, prompt)
	elapsed := float64(time.Since(start).Milliseconds())

	outcome := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}

	attrs := metric.WithAttributes(
		attribute.String("stage", StageFrom(ctx)),
		attribute.String("outcome", outcome),
	)

	// Recording uses a detached context so a cancelled call is still counted.
	rec := context.WithoutCancel(ctx)
	m.calls.Add(rec, 1, attrs)
	m.duration.Record(rec, elapsed, attrs)
	if err != nil {
		m.failures.Add(rec, 1, attrs)
	}

	return content, err
}
