package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/covergate/eligibility-engine/internal/model"
)

// MemoryStore implements all repositories in memory. Used in tests and as
// the default backend when no database path is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	conditions map[string]*model.EligibilityCondition
	alerts     map[string]*model.Alert
	reminders  map[string]*model.Reminder
	results    []*model.EligibilityResult
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conditions: make(map[string]*model.EligibilityCondition),
		alerts:     make(map[string]*model.Alert),
		reminders:  make(map[string]*model.Reminder),
	}
}

// SaveCondition implements ConditionStore.SaveCondition
func (s *MemoryStore) SaveCondition(ctx context.Context, cond *model.EligibilityCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cond
	s.conditions[cond.ID] = &c
	return nil
}

// GetCondition implements ConditionStore.GetCondition
func (s *MemoryStore) GetCondition(ctx context.Context, id string) (*model.EligibilityCondition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cond, ok := s.conditions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *cond
	return &c, nil
}

// ListConditions implements ConditionStore.ListConditions
func (s *MemoryStore) ListConditions(ctx context.Context) ([]*model.EligibilityCondition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.EligibilityCondition, 0, len(s.conditions))
	for _, cond := range s.conditions {
		c := *cond
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListActiveConditions implements ConditionStore.ListActiveConditions
func (s *MemoryStore) ListActiveConditions(ctx context.Context, category string) ([]*model.EligibilityCondition, error) {
	all, err := s.ListConditions(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.EligibilityCondition
	for _, cond := range all {
		if cond.IsActive && cond.AppliesTo(category) {
			out = append(out, cond)
		}
	}
	return out, nil
}

// SaveAlert implements AlertStore.SaveAlert. Stored action rows are
// authoritative: an executed flag committed by MarkActionExecuted survives a
// later save from a copy that has not observed it, and incoming actions only
// add rows the store has not seen yet.
func (s *MemoryStore) SaveAlert(ctx context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := cloneAlert(alert)
	if prev, ok := s.alerts[alert.ID]; ok {
		a.ScheduledActions = mergeActions(prev.ScheduledActions, a.ScheduledActions)
	}
	s.alerts[alert.ID] = a
	return nil
}

func mergeActions(stored, incoming []model.ScheduledAction) []model.ScheduledAction {
	out := append([]model.ScheduledAction(nil), stored...)
	seen := make(map[string]struct{}, len(stored))
	for _, action := range stored {
		seen[action.ID] = struct{}{}
	}
	for _, action := range incoming {
		if _, ok := seen[action.ID]; !ok {
			out = append(out, action)
		}
	}
	return out
}

// GetAlert implements AlertStore.GetAlert
func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAlert(alert), nil
}

// FindLive implements AlertStore.FindLive
func (s *MemoryStore) FindLive(ctx context.Context, subjectID, conditionID string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, alert := range s.alerts {
		if alert.SubjectID == subjectID && alert.ConditionID == conditionID && alert.Status.Live() {
			return cloneAlert(alert), nil
		}
	}
	return nil, ErrNotFound
}

// ListAlerts implements AlertStore.ListAlerts
func (s *MemoryStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Alert
	for _, alert := range s.alerts {
		if filter.SubjectID != "" && alert.SubjectID != filter.SubjectID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, alert.Status) {
			continue
		}
		if len(filter.Priority) > 0 && !containsPriority(filter.Priority, alert.Priority) {
			continue
		}
		out = append(out, cloneAlert(alert))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// MarkActionExecuted implements AlertStore.MarkActionExecuted
func (s *MemoryStore) MarkActionExecuted(ctx context.Context, alertID, actionID string, executedAt time.Time, reminder *model.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return ErrNotFound
	}
	for i := range alert.ScheduledActions {
		if alert.ScheduledActions[i].ID != actionID {
			continue
		}
		if alert.ScheduledActions[i].Executed {
			return nil
		}
		ts := executedAt
		alert.ScheduledActions[i].Executed = true
		alert.ScheduledActions[i].ExecutedDate = &ts
		alert.UpdatedAt = executedAt
		if reminder != nil {
			r := cloneReminder(reminder)
			s.reminders[reminder.ID] = r
		}
		return nil
	}
	return ErrActionNotFound
}

// SaveReminder implements ReminderStore.SaveReminder
func (s *MemoryStore) SaveReminder(ctx context.Context, reminder *model.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[reminder.ID] = cloneReminder(reminder)
	return nil
}

// GetReminder implements ReminderStore.GetReminder
func (s *MemoryStore) GetReminder(ctx context.Context, id string) (*model.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reminder, ok := s.reminders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneReminder(reminder), nil
}

// ListByAlert implements ReminderStore.ListByAlert
func (s *MemoryStore) ListByAlert(ctx context.Context, alertID string) ([]*model.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Reminder
	for _, reminder := range s.reminders {
		if reminder.AlertID == alertID {
			out = append(out, cloneReminder(reminder))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListActiveReminders implements ReminderStore.ListActiveReminders
func (s *MemoryStore) ListActiveReminders(ctx context.Context) ([]*model.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Reminder
	for _, reminder := range s.reminders {
		if reminder.Status == model.ReminderStatusActive {
			out = append(out, cloneReminder(reminder))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AppendResult implements ResultStore.AppendResult
func (s *MemoryStore) AppendResult(ctx context.Context, result *model.EligibilityResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *result
	s.results = append(s.results, &r)
	return nil
}

// ListResults implements ResultStore.ListResults
func (s *MemoryStore) ListResults(ctx context.Context, subjectID string, limit int) ([]*model.EligibilityResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.EligibilityResult
	for _, result := range s.results {
		if result.SubjectID == subjectID {
			r := *result
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvaluatedAt.After(out[j].EvaluatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneAlert(alert *model.Alert) *model.Alert {
	a := *alert
	a.ScheduledActions = append([]model.ScheduledAction(nil), alert.ScheduledActions...)
	return &a
}

func cloneReminder(reminder *model.Reminder) *model.Reminder {
	r := *reminder
	r.Results = append([]model.ReminderResult(nil), reminder.Results...)
	r.StopConditions = append([]model.StopCondition(nil), reminder.StopConditions...)
	return &r
}

func containsStatus(list []model.AlertStatus, s model.AlertStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []model.Priority, p model.Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
