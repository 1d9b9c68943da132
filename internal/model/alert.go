package model

import "time"

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusPending    AlertStatus = "pending"
	AlertStatusInProgress AlertStatus = "in_progress"
	AlertStatusResolved   AlertStatus = "resolved"
	AlertStatusExpired    AlertStatus = "expired"
	AlertStatusCancelled  AlertStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// A fresh failure after a terminal state creates a new alert.
func (s AlertStatus) Terminal() bool {
	switch s {
	case AlertStatusResolved, AlertStatusExpired, AlertStatusCancelled:
		return true
	}
	return false
}

// Live reports whether the alert still tracks an unresolved failure
func (s AlertStatus) Live() bool {
	return s == AlertStatusPending || s == AlertStatusInProgress
}

// ActionType represents the kind of scheduled follow-up
type ActionType string

const (
	ActionTypeReminder ActionType = "reminder"
	ActionTypeRecheck  ActionType = "recheck"
)

// ScheduledAction is a dated follow-up attached to an alert. Executed
// actions are never re-run.
type ScheduledAction struct {
	ID            string     `json:"id"`
	Type          ActionType `json:"type"`
	ScheduledDate time.Time  `json:"scheduled_date"`
	Executed      bool       `json:"executed"`
	ExecutedDate  *time.Time `json:"executed_date,omitempty"`
}

// Alert is the persistent record of one condition currently failing for one
// subject. At most one live alert exists per (subject, condition) pair.
type Alert struct {
	ID                     string            `json:"id"`
	SubjectID              string            `json:"subject_id"`
	ConditionID            string            `json:"condition_id"`
	ConditionName          string            `json:"condition_name"`
	Category               string            `json:"category"`
	Title                  string            `json:"title"`
	Description            string            `json:"description,omitempty"`
	CurrentValue           *float64          `json:"current_value,omitempty"`
	RequiredValue          float64           `json:"required_value"`
	Gap                    float64           `json:"gap"`
	TriggerDate            time.Time         `json:"trigger_date"`
	ExpectedResolutionDate *time.Time        `json:"expected_resolution_date,omitempty"`
	Status                 AlertStatus       `json:"status"`
	Priority               Priority          `json:"priority"`
	ScheduledActions       []ScheduledAction `json:"scheduled_actions,omitempty"`
	Attempts               int               `json:"attempts"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}
