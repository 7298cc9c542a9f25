package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeSink_CaptureException_FansOutWithJobContext(t *testing.T) {
	var captured JobFailurePayload
	dest := SinkFunc(func(ctx context.Context, payload JobFailurePayload) error {
		captured = payload
		return nil
	})

	sink := NewCompositeSink(slog.Default(), dest)
	sink.SetContext("job", map[string]any{
		"job_id":        "job-1",
		"job_type":      "send_message",
		"attempts":      2,
		"payload":       `{"text":"hi"}`,
		"scheduled_for": time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
	})

	sink.CaptureException(context.Background(), errors.New("boom"))

	assert.Equal(t, "job-1", captured.JobID)
	assert.Equal(t, "send_message", captured.JobType)
	assert.Equal(t, 2, captured.Attempts)
	assert.Equal(t, "boom", captured.Error)
	assert.True(t, captured.ScheduledFor.Equal(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)))
}

func TestCompositeSink_CaptureException_DestinationErrorDoesNotPropagate(t *testing.T) {
	dest := SinkFunc(func(ctx context.Context, payload JobFailurePayload) error {
		return errors.New("delivery failed")
	})

	sink := NewCompositeSink(slog.Default(), dest)
	require.NotPanics(t, func() {
		sink.CaptureException(context.Background(), errors.New("boom"))
	})
}
