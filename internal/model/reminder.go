package model

import "time"

// ReminderStatus represents the lifecycle state of a reminder
type ReminderStatus string

const (
	ReminderStatusActive    ReminderStatus = "active"
	ReminderStatusCompleted ReminderStatus = "completed"
	ReminderStatusStopped   ReminderStatus = "stopped"
)

// StopCondition terminates a reminder before delivery succeeds
type StopCondition string

const (
	StopConditionMet         StopCondition = "condition_met"
	StopConditionMaxAttempts StopCondition = "max_attempts"
)

// ReminderMethod is the delivery channel requested for a reminder. Delivery
// itself is performed by an external channel, never by this engine.
type ReminderMethod string

const (
	ReminderMethodPush  ReminderMethod = "push"
	ReminderMethodSMS   ReminderMethod = "sms"
	ReminderMethodEmail ReminderMethod = "email"
)

// ReminderResult records one delivery attempt outcome
type ReminderResult struct {
	AttemptedAt time.Time `json:"attempted_at"`
	Dispatched  bool      `json:"dispatched"`
	Detail      string    `json:"detail,omitempty"`
}

// Reminder is an outward-facing notification request produced when a
// reminder-type scheduled action fires
type Reminder struct {
	ID              string           `json:"id"`
	AlertID         string           `json:"alert_id"`
	SubjectID       string           `json:"subject_id"`
	Method          ReminderMethod   `json:"method"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
	ScheduledDate   time.Time        `json:"scheduled_date"`
	MaxAttempts     int              `json:"max_attempts"`
	CurrentAttempts int              `json:"current_attempts"`
	StopConditions  []StopCondition  `json:"stop_conditions,omitempty"`
	StoppedBy       StopCondition    `json:"stopped_by,omitempty"`
	Status          ReminderStatus   `json:"status"`
	Results         []ReminderResult `json:"results,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
