package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/alerts"
	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/storage"
)

func newTestSweeper(t *testing.T, now time.Time) (*Sweeper, *storage.MemoryStore) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	store := storage.NewMemoryStore()
	manager := alerts.NewManager(logger, store, store,
		alerts.WithClock(func() time.Time { return now }))
	sweeper, err := NewSweeper(logger, manager, "", WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return sweeper, store
}

func TestSweeper_RejectsInvalidExpression(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := storage.NewMemoryStore()
	manager := alerts.NewManager(logger, store, store)

	_, err := NewSweeper(logger, manager, "not a cron expression")
	require.Error(t, err)
}

func TestSweeper_TickExecutesDueActions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	sweeper, store := newTestSweeper(t, now)

	alert := &model.Alert{
		ID:          "alert-1",
		SubjectID:   "subject-1",
		ConditionID: "cond-1",
		Category:    "auto",
		Status:      model.AlertStatusPending,
		Priority:    model.PriorityHigh,
		TriggerDate: now.AddDate(0, 0, -10),
		ScheduledActions: []model.ScheduledAction{
			{ID: "due", Type: model.ActionTypeReminder, ScheduledDate: now.AddDate(0, 0, -1)},
			{ID: "future", Type: model.ActionTypeReminder, ScheduledDate: now.AddDate(0, 0, 30)},
		},
		CreatedAt: now.AddDate(0, 0, -10),
		UpdatedAt: now.AddDate(0, 0, -10),
	}
	require.NoError(t, store.SaveAlert(ctx, alert))

	executed, err := sweeper.Tick(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, executed)

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.True(t, got.ScheduledActions[0].Executed)
	require.False(t, got.ScheduledActions[1].Executed)

	// An immediate second tick finds nothing new
	executed, err = sweeper.Tick(ctx, now)
	require.NoError(t, err)
	require.Zero(t, executed)
}

func TestSweeper_StartStop(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	sweeper, _ := newTestSweeper(t, now)

	sweeper.Start()
	sweeper.Stop()
}
