package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/testutil"
)

func TestMetricsCollector_Counters(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	c := NewMetricsCollector(nil, time.Minute, logger)

	c.RecordEvaluation(true, 0)
	c.RecordEvaluation(false, 2)
	c.RecordAlertCreated()
	c.RecordReminderSent()
	c.RecordSweep(3)

	stats := c.Stats()
	require.Equal(t, int64(2), stats.Evaluations)
	require.Equal(t, int64(1), stats.Eligible)
	require.Equal(t, int64(1), stats.Ineligible)
	require.Equal(t, int64(1), stats.AlertsCreated)
	require.Equal(t, int64(1), stats.RemindersSent)
	require.Equal(t, int64(1), stats.SweepsCompleted)
	require.Equal(t, int64(3), stats.ActionsExecuted)
	require.Equal(t, int64(1), stats.EvaluationErrors)
}

func TestMetricsCollector_Publish(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     "METRICS",
		Subjects: []string{"metrics.*"},
		Storage:  nats.MemoryStorage,
	})
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	c := NewMetricsCollector(js, 50*time.Millisecond, logger)
	c.RecordEvaluation(true, 0)

	received := make(chan struct{}, 1)
	_, err = js.Subscribe("metrics.engine", func(msg *nats.Msg) {
		select {
		case received <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	select {
	case <-received:
	case <-time.After(10 * time.Second):
		t.Fatal("no metrics sample published")
	}
}
