package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/storage"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	reminders []*model.Reminder
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, reminder *model.Reminder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reminders = append(d.reminders, reminder)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reminders)
}

func ageCondition() *model.EligibilityCondition {
	return &model.EligibilityCondition{
		ID:       "cond-age",
		Name:     "Minimum driver age",
		Type:     model.ConditionTypeAge,
		Priority: model.PriorityCritical,
		IsActive: true,
		Criteria: model.Criteria{Field: "driver.age", Operator: model.OperatorGTE, Value: 21},
		Temporal: model.TemporalSpec{IsTimeDependent: true, CheckFrequency: "daily"},
		Actions:  model.ConditionActions{CreateAlert: true, ScheduleReminder: true},
	}
}

func failingResult() model.ConditionResult {
	value := 20.0
	return model.ConditionResult{
		ConditionID:   "cond-age",
		ConditionName: "Minimum driver age",
		Type:          model.ConditionTypeAge,
		Status:        model.ConditionStatusFailed,
		CurrentValue:  &value,
		RequiredValue: 21,
		Gap:           1,
		Weight:        30,
		Impact:        -30,
	}
}

func newTestManager(t *testing.T, now time.Time) (*Manager, *storage.MemoryStore, *recordingDispatcher, *time.Time) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	store := storage.NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	clock := now
	manager := NewManager(logger, store, store,
		WithDispatcher(dispatcher),
		WithClock(func() time.Time { return clock }))
	return manager, store, dispatcher, &clock
}

func TestManager_CreateOrUpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	manager, store, _, _ := newTestManager(t, now)
	subject := &model.Subject{ID: "subject-1"}
	expected := now.AddDate(1, 0, 0)

	// Test case 1: first failure creates a pending alert with a scheduled
	// reminder and a recheck on the predicted date
	first, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusPending, first.Status)
	require.Len(t, first.ScheduledActions, 2)
	require.Equal(t, model.ActionTypeReminder, first.ScheduledActions[0].Type)
	require.Equal(t, model.ActionTypeRecheck, first.ScheduledActions[1].Type)
	require.Equal(t, expected, first.ScheduledActions[1].ScheduledDate)

	// Test case 2: an unchanged failing result updates in place - exactly
	// one live alert, no duplicate actions
	second, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, second.ScheduledActions, 2)

	all, err := store.ListAlerts(ctx, storage.AlertFilter{SubjectID: "subject-1"})
	require.NoError(t, err)
	require.Len(t, all, 1)

	// Test case 3: a changed gap is written through
	res := failingResult()
	newValue := 20.5
	res.CurrentValue = &newValue
	res.Gap = 0.5
	third, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", res, &expected)
	require.NoError(t, err)
	require.Equal(t, first.ID, third.ID)
	require.Equal(t, 0.5, third.Gap)
}

func TestManager_ResolvePassed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	manager, store, _, _ := newTestManager(t, now)
	subject := &model.Subject{ID: "subject-1"}
	expected := now.AddDate(1, 0, 0)

	alert, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)

	// Passing the condition resolves the matching alert
	require.NoError(t, manager.ResolvePassed(ctx, "subject-1", "cond-age"))
	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusResolved, got.Status)

	// No live alert remains and resolving again is a no-op
	require.NoError(t, manager.ResolvePassed(ctx, "subject-1", "cond-age"))

	// A fresh failure after resolution creates a new alert, never reopens
	fresh, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)
	require.NotEqual(t, alert.ID, fresh.ID)
	require.Equal(t, model.AlertStatusPending, fresh.Status)
}

func TestManager_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	manager, store, _, clock := newTestManager(t, now)
	subject := &model.Subject{ID: "subject-1"}
	expected := now.AddDate(0, 1, 0)

	alert, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)

	// Re-evaluation after the predicted date with the condition still
	// failing expires the old alert and opens a fresh one
	*clock = expected.AddDate(0, 0, 1)
	later := expected.AddDate(1, 0, 0)
	fresh, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &later)
	require.NoError(t, err)
	require.NotEqual(t, alert.ID, fresh.ID)

	old, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusExpired, old.Status)
	require.Equal(t, model.AlertStatusPending, fresh.Status)
}

func TestManager_CancelAlert(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	manager, _, _, _ := newTestManager(t, now)
	subject := &model.Subject{ID: "subject-1"}
	expected := now.AddDate(1, 0, 0)

	alert, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)

	require.NoError(t, manager.CancelAlert(ctx, alert.ID))

	// Terminal states admit no further transitions
	err = manager.CancelAlert(ctx, alert.ID)
	require.ErrorIs(t, err, ErrAlertTerminal)
}

func TestManager_ProcessScheduledActionsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	manager, store, dispatcher, clock := newTestManager(t, now)
	subject := &model.Subject{ID: "subject-1"}
	expected := now.AddDate(0, 1, 0)

	alert, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)

	// Test case 1: nothing is due yet
	executed, err := manager.ProcessScheduledActions(ctx, now)
	require.NoError(t, err)
	require.Zero(t, executed)
	require.Zero(t, dispatcher.count())

	// Test case 2: the due reminder and recheck fire once each and the
	// alert advances to in_progress
	due := expected
	*clock = due
	executed, err = manager.ProcessScheduledActions(ctx, due)
	require.NoError(t, err)
	require.Equal(t, 2, executed)
	require.Equal(t, 1, dispatcher.count())

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusInProgress, got.Status)
	require.True(t, got.ScheduledActions[0].Executed)
	require.Equal(t, 1, got.Attempts)

	reminders, err := store.ListByAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	require.Equal(t, 1, reminders[0].CurrentAttempts)

	// Test case 3: a second sweep with no time advancing is a no-op
	executed, err = manager.ProcessScheduledActions(ctx, due)
	require.NoError(t, err)
	require.Zero(t, executed)
	require.Equal(t, 1, dispatcher.count())

	reminders, err = store.ListByAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
}

func TestManager_LateActionExecutesOnceWithActualTime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	manager, store, _, clock := newTestManager(t, now)
	subject := &model.Subject{ID: "subject-1"}
	expected := now.AddDate(0, 0, 10)

	alert, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)

	// Service was down; the action is discovered long after its date.
	// executedDate reflects actual execution time, not the scheduled one.
	late := expected.AddDate(0, 0, 9)
	*clock = late
	executed, err := manager.ProcessScheduledActions(ctx, late)
	require.NoError(t, err)
	require.Equal(t, 2, executed)

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.True(t, got.ScheduledActions[0].Executed)
	require.Equal(t, late, got.ScheduledActions[0].ExecutedDate.UTC())
}

func TestManager_SweepExpiresOverdueAlerts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	manager, store, _, clock := newTestManager(t, now)
	subject := &model.Subject{ID: "subject-1"}
	expected := now.AddDate(0, 0, 5)

	alert, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)

	past := expected.AddDate(0, 0, 1)
	*clock = past
	_, err = manager.ProcessScheduledActions(ctx, past)
	require.NoError(t, err)

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusExpired, got.Status)
}

func TestManager_RecheckActionTriggersEvaluation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	manager, store, _, _ := newTestManager(t, now)

	var mu sync.Mutex
	var rechecked []string
	manager.SetRecheck(func(ctx context.Context, subjectID, category string) {
		mu.Lock()
		defer mu.Unlock()
		rechecked = append(rechecked, subjectID+"/"+category)
	})

	alert := &model.Alert{
		ID:          "alert-1",
		SubjectID:   "subject-1",
		ConditionID: "cond-age",
		Category:    "auto",
		Status:      model.AlertStatusPending,
		Priority:    model.PriorityHigh,
		TriggerDate: now,
		ScheduledActions: []model.ScheduledAction{{
			ID:            "action-1",
			Type:          model.ActionTypeRecheck,
			ScheduledDate: now.AddDate(0, 0, 1),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.SaveAlert(ctx, alert))

	executed, err := manager.ProcessScheduledActions(ctx, now.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Equal(t, 1, executed)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"subject-1/auto"}, rechecked)
}

type countingRecorder struct {
	mu        sync.Mutex
	alerts    int
	reminders int
}

func (r *countingRecorder) RecordAlertCreated() {
	r.mu.Lock()
	r.alerts++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordReminderSent() {
	r.mu.Lock()
	r.reminders++
	r.mu.Unlock()
}

func TestManager_RecordsLifecycleMetrics(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	logger, _ := zap.NewDevelopment()
	store := storage.NewMemoryStore()
	recorder := &countingRecorder{}
	clock := now
	manager := NewManager(logger, store, store,
		WithDispatcher(&recordingDispatcher{}),
		WithMetrics(recorder),
		WithClock(func() time.Time { return clock }))

	subject := &model.Subject{ID: "subject-1"}
	expected := now.AddDate(0, 1, 0)

	// Test case 1: alert creation is counted once, updates are not
	_, err := manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)
	_, err = manager.CreateOrUpdateAlert(ctx, ageCondition(), subject, "auto", failingResult(), &expected)
	require.NoError(t, err)
	require.Equal(t, 1, recorder.alerts)
	require.Zero(t, recorder.reminders)

	// Test case 2: a dispatched reminder is counted
	clock = expected.Add(time.Hour)
	_, err = manager.ProcessScheduledActions(ctx, clock)
	require.NoError(t, err)
	require.Equal(t, 1, recorder.reminders)
}
