package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics carries the deliberation counters. A nil *Metrics is valid
// and records nothing, so callers never need to branch.
type Metrics struct {
	deliberations metric.Int64Counter
	rounds        metric.Int64Counter
	invocations   metric.Int64Counter
	graphWrites   metric.Int64Counter
}

// NewMetrics registers the counters on the global meter provider. With
// telemetry disabled the global provider is a no-op and so are these.
func NewMetrics() (*Metrics, error) {
	meter := Meter("hyogi")

	var m Metrics
	var err error
	if m.deliberations, err = meter.Int64Counter("hyogi.deliberations",
		metric.WithDescription("Completed deliberations by mode and status")); err != nil {
		return nil, fmt.Errorf("telemetry: deliberations counter: %w", err)
	}
	if m.rounds, err = meter.Int64Counter("hyogi.rounds",
		metric.WithDescription("Deliberation rounds executed")); err != nil {
		return nil, fmt.Errorf("telemetry: rounds counter: %w", err)
	}
	if m.invocations, err = meter.Int64Counter("hyogi.invocations",
		metric.WithDescription("Backend invocations by backend and outcome")); err != nil {
		return nil, fmt.Errorf("telemetry: invocations counter: %w", err)
	}
	if m.graphWrites, err = meter.Int64Counter("hyogi.graph_writes",
		metric.WithDescription("Decision graph writes by outcome")); err != nil {
		return nil, fmt.Errorf("telemetry: graph writes counter: %w", err)
	}
	return &m, nil
}

// RecordDeliberation counts one finished deliberation.
func (m *Metrics) RecordDeliberation(ctx context.Context, mode, status string, rounds int) {
	if m == nil {
		return
	}
	m.deliberations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	))
	m.rounds.Add(ctx, int64(rounds))
}

// RecordInvocation counts one backend call.
func (m *Metrics) RecordInvocation(ctx context.Context, backend string, success bool) {
	if m == nil {
		return
	}
	m.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("success", success),
	))
}

// RecordGraphWrite counts one decision-graph persist attempt.
func (m *Metrics) RecordGraphWrite(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.graphWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}
