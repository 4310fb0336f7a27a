package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnMetrics_Creation(t *testing.T) {
	t.Run("successfully create turn metrics", func(t *testing.T) {
		metrics, err := NewTurnMetrics()
		require.NoError(t, err)
		assert.NotNil(t, metrics)
		assert.NotNil(t, metrics.turnsStartedCounter)
		assert.NotNil(t, metrics.turnsCompletedCounter)
		assert.NotNil(t, metrics.turnsFailedCounter)
		assert.NotNil(t, metrics.turnDurationHistogram)
		assert.NotNil(t, metrics.turnsActiveGauge)
		assert.NotNil(t, metrics.componentsDroppedCounter)
		assert.NotNil(t, metrics.validationDurationHistory)
		assert.NotNil(t, metrics.editBatchesFlushedCounter)
	})
}

func TestTurnMetrics_RecordTurnLifecycle(t *testing.T) {
	metrics, err := NewTurnMetrics()
	require.NoError(t, err)

	t.Run("record turn start and completion", func(t *testing.T) {
		ctx := context.Background()

		assert.NotPanics(t, func() {
			metrics.RecordTurnStarted(ctx, "thread-123", "plan")
			metrics.RecordTurnCompleted(ctx, "thread-123", "plan", 4, 5*time.Second)
		})
	})

	t.Run("record turn failure", func(t *testing.T) {
		ctx := context.Background()

		assert.NotPanics(t, func() {
			metrics.RecordTurnStarted(ctx, "thread-456", "edit")
			metrics.RecordTurnFailed(ctx, "thread-456", "edit", "tool_validation_error", 2*time.Second)
		})
	})

	t.Run("record completions with various durations", func(t *testing.T) {
		ctx := context.Background()
		durations := []time.Duration{
			100 * time.Millisecond,
			1 * time.Second,
			10 * time.Second,
			1 * time.Minute,
		}

		for i, duration := range durations {
			metrics.RecordTurnCompleted(ctx, "thread-789", "plan", i, duration)
		}
	})
}

func TestTurnMetrics_RecordValidation(t *testing.T) {
	metrics, err := NewTurnMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("record drops by reason", func(t *testing.T) {
		assert.NotPanics(t, func() {
			metrics.RecordValidation(ctx, 15*time.Millisecond, map[string]int{
				"unknown_type":  2,
				"invalid_shape": 1,
			})
		})
	})

	t.Run("clean validation records no drops", func(t *testing.T) {
		assert.NotPanics(t, func() {
			metrics.RecordValidation(ctx, 3*time.Millisecond, nil)
		})
	})

	t.Run("zero counts are skipped", func(t *testing.T) {
		assert.NotPanics(t, func() {
			metrics.RecordValidation(ctx, 3*time.Millisecond, map[string]int{
				"unknown_type": 0,
			})
		})
	})
}

func TestTurnMetrics_RecordEditBatchFlushed(t *testing.T) {
	metrics, err := NewTurnMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		metrics.RecordEditBatchFlushed(ctx, 3, true)
		metrics.RecordEditBatchFlushed(ctx, 1, false)
	})
}

func TestTurnMetrics_ConcurrentRecording(t *testing.T) {
	metrics, err := NewTurnMetrics()
	require.NoError(t, err)

	t.Run("handle concurrent metric recording", func(t *testing.T) {
		ctx := context.Background()
		done := make(chan bool)

		for i := 0; i < 10; i++ {
			go func(id int) {
				threadID := "concurrent-thread-" + string(rune('a'+id))

				metrics.RecordTurnStarted(ctx, threadID, "plan")

				duration := time.Duration(id) * 100 * time.Millisecond
				if id%2 == 0 {
					metrics.RecordTurnCompleted(ctx, threadID, "plan", id, duration)
				} else {
					metrics.RecordTurnFailed(ctx, threadID, "plan", "error", duration)
				}

				done <- true
			}(i)
		}

		for i := 0; i < 10; i++ {
			<-done
		}
	})
}
