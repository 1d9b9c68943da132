package model

import "time"

// ConditionType represents the kind of fact an eligibility condition checks
type ConditionType string

const (
	ConditionTypeAge        ConditionType = "age"
	ConditionTypeExperience ConditionType = "experience"
	ConditionTypeClaims     ConditionType = "claims"
	ConditionTypeOther      ConditionType = "other"
)

// Operator represents the comparison applied to the subject's value
type Operator string

const (
	OperatorGTE     Operator = "gte"
	OperatorLTE     Operator = "lte"
	OperatorEQ      Operator = "eq"
	OperatorBetween Operator = "between"
)

// Priority represents how strongly a condition weighs on the score
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether the priority is one of the known levels
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Weight returns the scoring weight for the priority. Priority influences
// the numeric score only through this weight.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 30
	case PriorityHigh:
		return 20
	default:
		return 10
	}
}

// Criteria defines the comparison a condition applies to subject data
type Criteria struct {
	Field          string   `json:"field"`
	Operator       Operator `json:"operator"`
	Value          float64  `json:"value"`
	UpperValue     *float64 `json:"upper_value,omitempty"`
	LookbackMonths int      `json:"lookback_months,omitempty"`
	LookbackUnit   string   `json:"lookback_unit,omitempty"`
}

// TemporalSpec describes how a condition behaves over time
type TemporalSpec struct {
	IsTimeDependent  bool   `json:"is_time_dependent"`
	CheckFrequency   string `json:"check_frequency,omitempty"`
	AnticipationDays int    `json:"anticipation_days,omitempty"`
}

// ConditionActions lists the side effects of a failed condition
type ConditionActions struct {
	BlockQuote       bool `json:"block_quote"`
	BlockContract    bool `json:"block_contract"`
	RequireApproval  bool `json:"require_approval"`
	CreateAlert      bool `json:"create_alert"`
	ScheduleReminder bool `json:"schedule_reminder"`
}

// ConditionMessages holds the templates shown to users per outcome
type ConditionMessages struct {
	Failure  string `json:"failure,omitempty"`
	Alert    string `json:"alert,omitempty"`
	Reminder string `json:"reminder,omitempty"`
	Success  string `json:"success,omitempty"`
}

// EligibilityCondition is a declarative, time-aware eligibility rule
type EligibilityCondition struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Type           ConditionType     `json:"type"`
	Criteria       Criteria          `json:"criteria"`
	Temporal       TemporalSpec      `json:"temporal"`
	Actions        ConditionActions  `json:"actions"`
	Messages       ConditionMessages `json:"messages"`
	InsuranceTypes []string          `json:"insurance_types"`
	Priority       Priority          `json:"priority"`
	IsActive       bool              `json:"is_active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// AppliesTo reports whether the condition covers the given insurance
// category. An empty InsuranceTypes list is a wildcard: the condition applies
// to every category.
func (c *EligibilityCondition) AppliesTo(category string) bool {
	if len(c.InsuranceTypes) == 0 {
		return true
	}
	for _, t := range c.InsuranceTypes {
		if t == category {
			return true
		}
	}
	return false
}
