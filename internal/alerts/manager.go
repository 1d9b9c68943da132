// Package alerts owns alert and reminder state. No other component writes
// alert records: the eligibility engine reports condition outcomes here and
// the manager drives the lifecycle
// (none -> pending -> in_progress -> resolved | expired | cancelled).
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/storage"
)

// Dispatcher hands a fired reminder to the external delivery channel
type Dispatcher interface {
	Dispatch(ctx context.Context, reminder *model.Reminder) error
}

// RecheckFunc triggers a fresh eligibility evaluation for a subject. Wired
// in at startup to avoid a dependency cycle with the engine.
type RecheckFunc func(ctx context.Context, subjectID, category string)

// MetricsRecorder counts alert lifecycle events for the metrics publisher
type MetricsRecorder interface {
	RecordAlertCreated()
	RecordReminderSent()
}

// defaultMaxAttempts bounds reminder delivery attempts when the condition
// does not specify otherwise.
const defaultMaxAttempts = 3

// redispatchInterval is the minimum spacing between delivery attempts of an
// active reminder. Keeps repeated sweeps free of side effects when time has
// not advanced.
const redispatchInterval = 24 * time.Hour

// Manager creates, updates and transitions alerts and their scheduled
// actions. Updates are serialized per (subject, condition) key to preserve
// the single-live-alert invariant.
type Manager struct {
	logger     *zap.Logger
	alerts     storage.AlertStore
	reminders  storage.ReminderStore
	dispatcher Dispatcher
	recheck    RecheckFunc
	metrics    MetricsRecorder
	keys       sync.Map
	sweepMu    sync.Mutex
	now        func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the manager's time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDispatcher sets the reminder delivery hand-off
func WithDispatcher(d Dispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

// WithMetrics sets the lifecycle event recorder
func WithMetrics(rec MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = rec }
}

// NewManager creates a new alert manager
func NewManager(logger *zap.Logger, alerts storage.AlertStore, reminders storage.ReminderStore, opts ...Option) *Manager {
	m := &Manager{
		logger:    logger.Named("alerts"),
		alerts:    alerts,
		reminders: reminders,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetRecheck wires the evaluation callback used by recheck actions
func (m *Manager) SetRecheck(fn RecheckFunc) {
	m.recheck = fn
}

// lockKey serializes mutation per (subject, condition) pair
func (m *Manager) lockKey(subjectID, conditionID string) func() {
	key := subjectID + "\x00" + conditionID
	muVal, _ := m.keys.LoadOrStore(key, &sync.Mutex{})
	mu := muVal.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateOrUpdateAlert records a condition failure. An existing live alert
// for the (subject, condition) pair is updated in place; calling twice with
// an unchanged failing result yields exactly one live alert and no duplicate
// scheduled action. A live alert whose expected resolution date has passed
// is expired first and a fresh alert takes its place.
func (m *Manager) CreateOrUpdateAlert(ctx context.Context, cond *model.EligibilityCondition, subject *model.Subject, category string, res model.ConditionResult, expected *time.Time) (*model.Alert, error) {
	unlock := m.lockKey(subject.ID, cond.ID)
	defer unlock()

	now := m.now()

	existing, err := m.alerts.FindLive(ctx, subject.ID, cond.ID)
	switch {
	case err == nil:
		if existing.ExpectedResolutionDate != nil && now.After(*existing.ExpectedResolutionDate) {
			// Lazy expiry: the predicted date passed and the condition
			// still fails. The old alert terminates; a fresh one below
			// carries the recomputed date.
			existing.Status = model.AlertStatusExpired
			existing.UpdatedAt = now
			if err := m.alerts.SaveAlert(ctx, existing); err != nil {
				return nil, fmt.Errorf("failed to expire alert: %w", err)
			}
			m.stopReminders(ctx, existing.ID, model.StopConditionMaxAttempts)
			m.logger.Info("Alert expired without resolution",
				zap.String("alert_id", existing.ID),
				zap.String("subject_id", subject.ID),
				zap.String("condition_id", cond.ID))
		} else {
			existing.CurrentValue = res.CurrentValue
			existing.Gap = res.Gap
			existing.UpdatedAt = now
			if err := m.alerts.SaveAlert(ctx, existing); err != nil {
				return nil, fmt.Errorf("failed to update alert: %w", err)
			}
			return existing, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to look up live alert: %w", err)
	}

	alert := &model.Alert{
		ID:                     uuid.New().String(),
		SubjectID:              subject.ID,
		ConditionID:            cond.ID,
		ConditionName:          cond.Name,
		Category:               category,
		Title:                  alertTitle(cond),
		Description:            res.Message,
		CurrentValue:           res.CurrentValue,
		RequiredValue:          res.RequiredValue,
		Gap:                    res.Gap,
		TriggerDate:            now,
		ExpectedResolutionDate: expected,
		Status:                 model.AlertStatusPending,
		Priority:               cond.Priority,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if expected != nil {
		if cond.Actions.ScheduleReminder {
			scheduled := *expected
			if days := cond.Temporal.AnticipationDays; days > 0 {
				anticipated := scheduled.AddDate(0, 0, -days)
				if anticipated.After(now) {
					scheduled = anticipated
				}
			}
			alert.ScheduledActions = append(alert.ScheduledActions, model.ScheduledAction{
				ID:            uuid.New().String(),
				Type:          model.ActionTypeReminder,
				ScheduledDate: scheduled,
			})
		}
		// A recheck on the predicted date lets the sweep confirm the
		// resolution (or expire the alert when it did not happen)
		alert.ScheduledActions = append(alert.ScheduledActions, model.ScheduledAction{
			ID:            uuid.New().String(),
			Type:          model.ActionTypeRecheck,
			ScheduledDate: *expected,
		})
	}

	if err := m.alerts.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	if m.metrics != nil {
		m.metrics.RecordAlertCreated()
	}

	m.logger.Info("Alert created",
		zap.String("alert_id", alert.ID),
		zap.String("subject_id", subject.ID),
		zap.String("condition_id", cond.ID),
		zap.String("priority", string(alert.Priority)),
		zap.Float64("gap", alert.Gap))

	return alert, nil
}

// ResolvePassed transitions the live alert for (subject, condition) to
// resolved after the condition passed. No-op when no live alert exists.
func (m *Manager) ResolvePassed(ctx context.Context, subjectID, conditionID string) error {
	unlock := m.lockKey(subjectID, conditionID)
	defer unlock()

	alert, err := m.alerts.FindLive(ctx, subjectID, conditionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up live alert: %w", err)
	}

	alert.Status = model.AlertStatusResolved
	alert.UpdatedAt = m.now()
	if err := m.alerts.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	m.stopReminders(ctx, alert.ID, model.StopConditionMet)

	m.logger.Info("Alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("subject_id", subjectID),
		zap.String("condition_id", conditionID))
	return nil
}

// CancelAlert transitions any non-terminal alert to cancelled (operator
// action)
func (m *Manager) CancelAlert(ctx context.Context, alertID string) error {
	alert, err := m.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}

	unlock := m.lockKey(alert.SubjectID, alert.ConditionID)
	defer unlock()

	// Re-read under the key lock so a concurrent transition is not lost
	alert, err = m.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrAlertTerminal, alert.Status)
	}

	alert.Status = model.AlertStatusCancelled
	alert.UpdatedAt = m.now()
	if err := m.alerts.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to cancel alert: %w", err)
	}
	m.stopReminders(ctx, alert.ID, model.StopConditionMet)

	m.logger.Info("Alert cancelled", zap.String("alert_id", alertID))
	return nil
}

// List returns alerts matching the filter
func (m *Manager) List(ctx context.Context, filter storage.AlertFilter) ([]*model.Alert, error) {
	return m.alerts.ListAlerts(ctx, filter)
}

// ProcessScheduledActions executes every scheduled action due at now,
// exactly once each. At most one sweep runs at a time; a concurrent call
// returns ErrSweepInProgress. Repeated calls with no time advancing are
// no-ops beyond the first. Returns the number of actions executed.
func (m *Manager) ProcessScheduledActions(ctx context.Context, now time.Time) (int, error) {
	if !m.sweepMu.TryLock() {
		return 0, ErrSweepInProgress
	}
	defer m.sweepMu.Unlock()

	live, err := m.alerts.ListAlerts(ctx, storage.AlertFilter{
		Status: []model.AlertStatus{model.AlertStatusPending, model.AlertStatusInProgress},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list live alerts: %w", err)
	}

	executed := 0
	var pending []recheckRequest
	for _, alert := range live {
		n, rechecks, err := m.sweepAlert(ctx, alert.ID, alert.SubjectID, alert.ConditionID, now)
		if err != nil {
			// One broken alert must not starve the rest of the sweep
			m.logger.Error("Failed to process alert actions",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
			continue
		}
		executed += n
		pending = append(pending, rechecks...)
	}

	// Rechecks re-enter the engine, which locks the same (subject,
	// condition) keys. They run only after every key lock is released.
	if m.recheck != nil {
		for _, req := range pending {
			m.recheck(ctx, req.subjectID, req.category)
		}
	}

	// Lazy expiry after the rechecks had their chance to resolve
	for _, alert := range live {
		m.expireOverdue(ctx, alert.ID, alert.SubjectID, alert.ConditionID, now)
	}

	m.redispatchActive(ctx, now)

	if executed > 0 {
		m.logger.Info("Scheduled action sweep completed",
			zap.Int("executed", executed),
			zap.Time("now", now))
	}
	return executed, nil
}

// redispatchActive re-sends reminders that have neither met a stop condition
// nor exhausted their attempts, at most once per redispatchInterval
func (m *Manager) redispatchActive(ctx context.Context, now time.Time) {
	active, err := m.reminders.ListActiveReminders(ctx)
	if err != nil {
		m.logger.Error("Failed to list active reminders", zap.Error(err))
		return
	}
	for _, reminder := range active {
		if reminder.CurrentAttempts == 0 {
			continue
		}
		last := reminder.Results[len(reminder.Results)-1].AttemptedAt
		if now.Sub(last) < redispatchInterval {
			continue
		}
		alert, err := m.alerts.GetAlert(ctx, reminder.AlertID)
		if err != nil {
			m.logger.Error("Failed to load alert for reminder",
				zap.String("reminder_id", reminder.ID),
				zap.Error(err))
			continue
		}
		if !alert.Status.Live() {
			m.stopReminders(ctx, alert.ID, model.StopConditionMet)
			continue
		}
		m.dispatchReminder(ctx, alert, reminder, now)
	}
}

// recheckRequest is a deferred re-evaluation collected during the sweep
type recheckRequest struct {
	subjectID string
	category  string
}

// sweepAlert executes the due actions of one alert under its key lock.
// Recheck actions are marked executed here but invoked by the caller after
// the lock is released.
func (m *Manager) sweepAlert(ctx context.Context, alertID, subjectID, conditionID string, now time.Time) (int, []recheckRequest, error) {
	unlock := m.lockKey(subjectID, conditionID)
	defer unlock()

	// Re-read inside the lock: another writer may have executed actions or
	// transitioned the alert since the listing.
	alert, err := m.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return 0, nil, err
	}
	if alert.Status.Terminal() {
		return 0, nil, nil
	}

	executed := 0
	var rechecks []recheckRequest
	for _, action := range alert.ScheduledActions {
		if action.Executed || action.ScheduledDate.After(now) {
			continue
		}

		var reminder *model.Reminder
		if action.Type == model.ActionTypeReminder {
			reminder = m.buildReminder(alert, action, now)
		}

		// The executed flag and the reminder row commit in one
		// transaction; executedDate reflects actual execution time even
		// when the action is discovered late.
		if err := m.alerts.MarkActionExecuted(ctx, alert.ID, action.ID, now, reminder); err != nil {
			return executed, rechecks, fmt.Errorf("failed to mark action executed: %w", err)
		}
		executed++

		if alert.Status == model.AlertStatusPending {
			alert.Status = model.AlertStatusInProgress
			alert.UpdatedAt = now
			if err := m.alerts.SaveAlert(ctx, alert); err != nil {
				return executed, rechecks, fmt.Errorf("failed to advance alert: %w", err)
			}
			m.logger.Info("Alert in progress",
				zap.String("alert_id", alert.ID),
				zap.String("action_type", string(action.Type)))
		}

		switch action.Type {
		case model.ActionTypeReminder:
			m.dispatchReminder(ctx, alert, reminder, now)
		case model.ActionTypeRecheck:
			rechecks = append(rechecks, recheckRequest{
				subjectID: alert.SubjectID,
				category:  alert.Category,
			})
		}
	}

	return executed, rechecks, nil
}

// expireOverdue terminates a live alert whose predicted resolution date has
// passed without the condition resolving
func (m *Manager) expireOverdue(ctx context.Context, alertID, subjectID, conditionID string, now time.Time) {
	unlock := m.lockKey(subjectID, conditionID)
	defer unlock()

	alert, err := m.alerts.GetAlert(ctx, alertID)
	if err != nil {
		m.logger.Error("Failed to load alert for expiry check",
			zap.String("alert_id", alertID),
			zap.Error(err))
		return
	}
	if !alert.Status.Live() || alert.ExpectedResolutionDate == nil || !now.After(*alert.ExpectedResolutionDate) {
		return
	}

	alert.Status = model.AlertStatusExpired
	alert.UpdatedAt = now
	if err := m.alerts.SaveAlert(ctx, alert); err != nil {
		m.logger.Error("Failed to expire alert",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
		return
	}
	m.stopReminders(ctx, alert.ID, model.StopConditionMaxAttempts)
	m.logger.Info("Alert expired on sweep", zap.String("alert_id", alert.ID))
}

// buildReminder materializes the reminder a due action emits
func (m *Manager) buildReminder(alert *model.Alert, action model.ScheduledAction, now time.Time) *model.Reminder {
	message := alert.Description
	if message == "" {
		message = fmt.Sprintf("Condition %q is still unmet (gap %.1f)", alert.ConditionName, alert.Gap)
	}
	return &model.Reminder{
		ID:            uuid.New().String(),
		AlertID:       alert.ID,
		SubjectID:     alert.SubjectID,
		Method:        model.ReminderMethodPush,
		Title:         alert.Title,
		Message:       message,
		ScheduledDate: action.ScheduledDate,
		MaxAttempts:   defaultMaxAttempts,
		StopConditions: []model.StopCondition{
			model.StopConditionMet,
			model.StopConditionMaxAttempts,
		},
		Status:    model.ReminderStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// dispatchReminder hands the committed reminder to the delivery channel and
// records the attempt
func (m *Manager) dispatchReminder(ctx context.Context, alert *model.Alert, reminder *model.Reminder, now time.Time) {
	dispatched := true
	detail := ""
	if m.dispatcher != nil {
		if err := m.dispatcher.Dispatch(ctx, reminder); err != nil {
			// Delivery hand-off is retried on the next attempt; the
			// action itself stays executed.
			dispatched = false
			detail = err.Error()
			m.logger.Error("Failed to dispatch reminder",
				zap.String("reminder_id", reminder.ID),
				zap.Error(err))
		}
	}

	if dispatched && m.metrics != nil {
		m.metrics.RecordReminderSent()
	}

	reminder.CurrentAttempts++
	reminder.Results = append(reminder.Results, model.ReminderResult{
		AttemptedAt: now,
		Dispatched:  dispatched,
		Detail:      detail,
	})
	reminder.UpdatedAt = now
	if reminder.CurrentAttempts >= reminder.MaxAttempts {
		reminder.Status = model.ReminderStatusStopped
		reminder.StoppedBy = model.StopConditionMaxAttempts
	}
	if err := m.reminders.SaveReminder(ctx, reminder); err != nil {
		m.logger.Error("Failed to record reminder attempt",
			zap.String("reminder_id", reminder.ID),
			zap.Error(err))
	}

	alert.Attempts++
	alert.UpdatedAt = now
	if err := m.alerts.SaveAlert(ctx, alert); err != nil {
		m.logger.Error("Failed to record alert attempt",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}
}

// stopReminders terminates the active reminders of an alert
func (m *Manager) stopReminders(ctx context.Context, alertID string, reason model.StopCondition) {
	reminders, err := m.reminders.ListByAlert(ctx, alertID)
	if err != nil {
		m.logger.Error("Failed to list reminders for alert",
			zap.String("alert_id", alertID),
			zap.Error(err))
		return
	}
	now := m.now()
	for _, reminder := range reminders {
		if reminder.Status != model.ReminderStatusActive {
			continue
		}
		if reason == model.StopConditionMet {
			reminder.Status = model.ReminderStatusCompleted
		} else {
			reminder.Status = model.ReminderStatusStopped
		}
		reminder.StoppedBy = reason
		reminder.UpdatedAt = now
		if err := m.reminders.SaveReminder(ctx, reminder); err != nil {
			m.logger.Error("Failed to stop reminder",
				zap.String("reminder_id", reminder.ID),
				zap.Error(err))
		}
	}
}

func alertTitle(cond *model.EligibilityCondition) string {
	if cond.Messages.Alert != "" {
		return cond.Messages.Alert
	}
	return fmt.Sprintf("Eligibility condition unmet: %s", cond.Name)
}
