package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("turn-metrics")

// TurnMetrics provides metrics collection for conversation turns and
// render validation
type TurnMetrics struct {
	turnsStartedCounter       metric.Int64Counter
	turnsCompletedCounter     metric.Int64Counter
	turnsFailedCounter        metric.Int64Counter
	turnDurationHistogram     metric.Float64Histogram
	turnsActiveGauge          metric.Int64UpDownCounter
	componentsDroppedCounter  metric.Int64Counter
	validationDurationHistory metric.Float64Histogram
	editBatchesFlushedCounter metric.Int64Counter
}

// NewTurnMetrics creates a new turn metrics collector
func NewTurnMetrics() (*TurnMetrics, error) {
	turnsStartedCounter, err := meter.Int64Counter(
		"interface_orchestrator.turns.started",
		metric.WithDescription("Total number of conversation turns started"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	turnsCompletedCounter, err := meter.Int64Counter(
		"interface_orchestrator.turns.completed",
		metric.WithDescription("Total number of conversation turns completed successfully"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	turnsFailedCounter, err := meter.Int64Counter(
		"interface_orchestrator.turns.failed",
		metric.WithDescription("Total number of conversation turns that failed"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	turnDurationHistogram, err := meter.Float64Histogram(
		"interface_orchestrator.turn.duration",
		metric.WithDescription("Duration of conversation turns in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	turnsActiveGauge, err := meter.Int64UpDownCounter(
		"interface_orchestrator.turns.active",
		metric.WithDescription("Number of currently active conversation turns"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	componentsDroppedCounter, err := meter.Int64Counter(
		"interface_orchestrator.validation.components_dropped",
		metric.WithDescription("Total number of components dropped during render validation"),
		metric.WithUnit("{component}"),
	)
	if err != nil {
		return nil, err
	}

	validationDurationHistory, err := meter.Float64Histogram(
		"interface_orchestrator.validation.duration",
		metric.WithDescription("Duration of render validation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	editBatchesFlushedCounter, err := meter.Int64Counter(
		"interface_orchestrator.edits.batches_flushed",
		metric.WithDescription("Total number of interactive edit batches flushed"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}

	return &TurnMetrics{
		turnsStartedCounter:       turnsStartedCounter,
		turnsCompletedCounter:     turnsCompletedCounter,
		turnsFailedCounter:        turnsFailedCounter,
		turnDurationHistogram:     turnDurationHistogram,
		turnsActiveGauge:          turnsActiveGauge,
		componentsDroppedCounter:  componentsDroppedCounter,
		validationDurationHistory: validationDurationHistory,
		editBatchesFlushedCounter: editBatchesFlushedCounter,
	}, nil
}

// RecordTurnStarted records a new conversation turn
func (tm *TurnMetrics) RecordTurnStarted(ctx context.Context, threadID, mode string) {
	tm.turnsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("mode", mode),
		),
	)
	tm.turnsActiveGauge.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
		),
	)
}

// RecordTurnCompleted records a successful turn completion
func (tm *TurnMetrics) RecordTurnCompleted(ctx context.Context, threadID, mode string, steps int, duration time.Duration) {
	tm.turnsCompletedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("mode", mode),
			attribute.Int("steps", steps),
			attribute.String("status", "completed"),
		),
	)
	tm.turnDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", "completed"),
		),
	)
	tm.turnsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("mode", mode),
		),
	)
}

// RecordTurnFailed records a failed turn
func (tm *TurnMetrics) RecordTurnFailed(ctx context.Context, threadID, mode, errorType string, duration time.Duration) {
	tm.turnsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("mode", mode),
			attribute.String("status", "failed"),
			attribute.String("error.type", errorType),
		),
	)
	tm.turnDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", "failed"),
		),
	)
	tm.turnsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("mode", mode),
		),
	)
}

// RecordValidation records one render-validation pass and any drops it
// produced, attributed by drop reason
func (tm *TurnMetrics) RecordValidation(ctx context.Context, duration time.Duration, droppedByReason map[string]int) {
	tm.validationDurationHistory.Record(ctx, duration.Seconds())
	for reason, count := range droppedByReason {
		if count <= 0 {
			continue
		}
		tm.componentsDroppedCounter.Add(ctx, int64(count),
			metric.WithAttributes(
				attribute.String("reason", reason),
			),
		)
	}
}

// RecordEditBatchFlushed records a flushed interactive edit batch
func (tm *TurnMetrics) RecordEditBatchFlushed(ctx context.Context, actionCount int, succeeded bool) {
	tm.editBatchesFlushedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int("actions", actionCount),
			attribute.Bool("succeeded", succeeded),
		),
	)
}
