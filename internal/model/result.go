package model

import "time"

// RiskLevel classifies an eligibility score into operator-facing bands
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelVeryHigh RiskLevel = "very_high"
)

// RiskLevelForScore maps a 0-100 score onto a risk band
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskLevelLow
	case score >= 60:
		return RiskLevelMedium
	case score >= 40:
		return RiskLevelHigh
	default:
		return RiskLevelVeryHigh
	}
}

// ConditionStatus represents the outcome of evaluating one condition
type ConditionStatus string

const (
	ConditionStatusPassed ConditionStatus = "passed"
	ConditionStatusFailed ConditionStatus = "failed"
	// ConditionStatusSkipped marks conditions excluded for configuration
	// errors. Skipped conditions do not count toward the score denominator.
	ConditionStatusSkipped ConditionStatus = "skipped"
)

// ConditionResult is the outcome of evaluating one condition for a subject.
// CurrentValue is nil when the subject field was missing or unreadable; such
// conditions fail closed.
type ConditionResult struct {
	ConditionID   string          `json:"condition_id"`
	ConditionName string          `json:"condition_name"`
	Type          ConditionType   `json:"type"`
	Status        ConditionStatus `json:"status"`
	Passed        bool            `json:"passed"`
	CurrentValue  *float64        `json:"current_value,omitempty"`
	RequiredValue float64         `json:"required_value"`
	Gap           float64         `json:"gap"`
	Weight        int             `json:"weight"`
	Impact        int             `json:"impact"`
	Message       string          `json:"message,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// ConditionForecast is a per-condition resolution date contributed to the
// eligibility forecast
type ConditionForecast struct {
	ConditionID   string    `json:"condition_id"`
	ConditionName string    `json:"condition_name"`
	ResolvesOn    time.Time `json:"resolves_on"`
}

// EligibilityForecast predicts when a currently-ineligible subject will
// become eligible, based only on deterministic facts
type EligibilityForecast struct {
	WillBecomeEligible       bool                `json:"will_become_eligible"`
	EstimatedEligibilityDate *time.Time          `json:"estimated_eligibility_date,omitempty"`
	ConfidenceLevel          int                 `json:"confidence_level"`
	KeyFactors               []string            `json:"key_factors,omitempty"`
	Contributing             []ConditionForecast `json:"contributing,omitempty"`
}

// RecommendationType represents the kind of advisory action suggested
type RecommendationType string

const (
	RecommendationWait           RecommendationType = "wait"
	RecommendationScheduleReview RecommendationType = "schedule_review"
)

// Recommendation is an advisory next step. Recommendations never block or
// mutate state.
type Recommendation struct {
	Type     RecommendationType `json:"type"`
	Message  string             `json:"message"`
	Deadline *time.Time         `json:"deadline,omitempty"`
}

// EligibilityResult is one immutable evaluation run for a subject and
// insurance category. A new run supersedes but never deletes prior runs.
type EligibilityResult struct {
	ID              string               `json:"id"`
	SubjectID       string               `json:"subject_id"`
	Category        string               `json:"category"`
	EvaluatedAt     time.Time            `json:"evaluated_at"`
	IsEligible      bool                 `json:"is_eligible"`
	Score           int                  `json:"score"`
	RiskLevel       RiskLevel            `json:"risk_level"`
	Conditions      []ConditionResult    `json:"conditions"`
	Claims          *ClaimsAnalysis      `json:"claims,omitempty"`
	Forecast        *EligibilityForecast `json:"forecast,omitempty"`
	Recommendations []Recommendation     `json:"recommendations,omitempty"`
	Warnings        []string             `json:"warnings,omitempty"`
}
