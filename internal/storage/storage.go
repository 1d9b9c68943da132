// Package storage defines the repositories backing the eligibility engine
// and provides SQLite and in-memory implementations. The engine itself holds
// no hidden global state; everything durable goes through these interfaces.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/covergate/eligibility-engine/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrActionNotFound is returned when a scheduled action id does not
	// exist on the alert
	ErrActionNotFound = errors.New("scheduled action not found")
)

// AlertFilter narrows alert listings
type AlertFilter struct {
	SubjectID string
	Status    []model.AlertStatus
	Priority  []model.Priority
	Limit     int
	Offset    int
}

// ConditionStore persists eligibility conditions
type ConditionStore interface {
	// SaveCondition inserts or replaces a condition
	SaveCondition(ctx context.Context, cond *model.EligibilityCondition) error

	// GetCondition retrieves a condition by ID
	GetCondition(ctx context.Context, id string) (*model.EligibilityCondition, error)

	// ListConditions retrieves all conditions
	ListConditions(ctx context.Context) ([]*model.EligibilityCondition, error)

	// ListActiveConditions retrieves active conditions applicable to a category
	ListActiveConditions(ctx context.Context, category string) ([]*model.EligibilityCondition, error)
}

// AlertStore persists alerts and their scheduled actions
type AlertStore interface {
	// SaveAlert inserts or replaces an alert with its scheduled actions
	SaveAlert(ctx context.Context, alert *model.Alert) error

	// GetAlert retrieves an alert by ID
	GetAlert(ctx context.Context, id string) (*model.Alert, error)

	// FindLive retrieves the live (pending or in_progress) alert for a
	// (subject, condition) pair, or ErrNotFound
	FindLive(ctx context.Context, subjectID, conditionID string) (*model.Alert, error)

	// ListAlerts retrieves alerts matching the filter, newest first
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*model.Alert, error)

	// MarkActionExecuted marks one scheduled action executed and, when the
	// action emits a reminder, persists the reminder in the same
	// transaction so the flag and the effect commit together. Returns
	// ErrActionNotFound for an unknown action and ErrNotFound for an
	// unknown alert. Already-executed actions return no error and write
	// nothing.
	MarkActionExecuted(ctx context.Context, alertID, actionID string, executedAt time.Time, reminder *model.Reminder) error
}

// ReminderStore persists reminders emitted for external delivery
type ReminderStore interface {
	// SaveReminder inserts or replaces a reminder
	SaveReminder(ctx context.Context, reminder *model.Reminder) error

	// GetReminder retrieves a reminder by ID
	GetReminder(ctx context.Context, id string) (*model.Reminder, error)

	// ListByAlert retrieves all reminders attached to an alert
	ListByAlert(ctx context.Context, alertID string) ([]*model.Reminder, error)

	// ListActiveReminders retrieves reminders still awaiting a stop condition
	ListActiveReminders(ctx context.Context) ([]*model.Reminder, error)
}

// ResultStore keeps the append-only evaluation history
type ResultStore interface {
	// AppendResult stores one evaluation run. Runs are immutable; a new
	// run supersedes but never deletes prior runs.
	AppendResult(ctx context.Context, result *model.EligibilityResult) error

	// ListResults retrieves a subject's runs, newest first
	ListResults(ctx context.Context, subjectID string, limit int) ([]*model.EligibilityResult, error)
}
