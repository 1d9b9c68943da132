package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/model"
)

func ageCondition(threshold float64, priority model.Priority) *model.EligibilityCondition {
	return &model.EligibilityCondition{
		ID:       "cond-age",
		Name:     "Minimum driver age",
		Type:     model.ConditionTypeAge,
		Priority: priority,
		IsActive: true,
		Criteria: model.Criteria{
			Field:    "driver.age",
			Operator: model.OperatorGTE,
			Value:    threshold,
		},
		InsuranceTypes: []string{"auto"},
	}
}

func subjectWithAge(age int) *model.Subject {
	return &model.Subject{
		ID: "subject-1",
		Data: map[string]interface{}{
			"driver": map[string]interface{}{
				"age":       age,
				"birthDate": "2004-05-12",
			},
		},
	}
}

func TestEvaluator_GTE(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEvaluator(logger)

	// Test case 1: failing gte gives a positive gap
	res := e.Evaluate(ageCondition(21, model.PriorityCritical), subjectWithAge(20), nil)
	require.Equal(t, model.ConditionStatusFailed, res.Status)
	require.False(t, res.Passed)
	require.Equal(t, 1.0, res.Gap)
	require.Equal(t, 30, res.Weight)
	require.Equal(t, -30, res.Impact)
	require.NotNil(t, res.CurrentValue)
	require.Equal(t, 20.0, *res.CurrentValue)

	// Test case 2: passing gte gives gap 0 and impact 0
	res = e.Evaluate(ageCondition(21, model.PriorityCritical), subjectWithAge(25), nil)
	require.True(t, res.Passed)
	require.Equal(t, 0.0, res.Gap)
	require.Equal(t, 0, res.Impact)
}

func TestEvaluator_LTEAndEQ(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEvaluator(logger)

	cond := ageCondition(65, model.PriorityHigh)
	cond.Criteria.Operator = model.OperatorLTE
	res := e.Evaluate(cond, subjectWithAge(70), nil)
	require.False(t, res.Passed)
	require.Equal(t, 5.0, res.Gap)
	require.Equal(t, 20, res.Weight)

	cond.Criteria.Operator = model.OperatorEQ
	cond.Criteria.Value = 70
	res = e.Evaluate(cond, subjectWithAge(70), nil)
	require.True(t, res.Passed)
	require.Equal(t, 0.0, res.Gap)
}

func TestEvaluator_Between(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEvaluator(logger)

	upper := 65.0
	cond := ageCondition(18, model.PriorityMedium)
	cond.Criteria.Operator = model.OperatorBetween
	cond.Criteria.UpperValue = &upper

	require.True(t, e.Evaluate(cond, subjectWithAge(30), nil).Passed)

	res := e.Evaluate(cond, subjectWithAge(70), nil)
	require.False(t, res.Passed)
	require.Equal(t, 5.0, res.Gap)

	// Missing upper bound is a configuration error, not a failure
	cond.Criteria.UpperValue = nil
	res = e.Evaluate(cond, subjectWithAge(30), nil)
	require.Equal(t, model.ConditionStatusSkipped, res.Status)
}

func TestEvaluator_MissingFieldFailsClosed(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEvaluator(logger)

	subject := &model.Subject{ID: "subject-1", Data: map[string]interface{}{}}
	res := e.Evaluate(ageCondition(21, model.PriorityLow), subject, nil)
	require.Equal(t, model.ConditionStatusFailed, res.Status)
	require.False(t, res.Passed)
	require.Nil(t, res.CurrentValue)
	require.NotEmpty(t, res.Error)
	require.Greater(t, res.Gap, 0.0)
}

func TestEvaluator_ClaimsConditionUsesAnalysis(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEvaluator(logger)

	cond := &model.EligibilityCondition{
		ID:       "cond-claims",
		Name:     "Claims within limit",
		Type:     model.ConditionTypeClaims,
		Priority: model.PriorityCritical,
		Criteria: model.Criteria{
			Field:    "claims.activeCount",
			Operator: model.OperatorLTE,
			Value:    3,
		},
	}
	analysis := &model.ClaimsAnalysis{
		SubjectID:        "subject-1",
		Category:         "auto",
		ActiveClaims:     4,
		MaxClaimsAllowed: 3,
		ExceedsLimit:     true,
		AnalyzedAt:       time.Now(),
	}

	res := e.Evaluate(cond, subjectWithAge(40), analysis)
	require.False(t, res.Passed)
	require.Equal(t, 1.0, res.Gap)
	require.Equal(t, 4.0, *res.CurrentValue)

	// Without an analysis the condition is misconfigured (the category has
	// no claims profile) and is skipped rather than failed
	res = e.Evaluate(cond, subjectWithAge(40), nil)
	require.Equal(t, model.ConditionStatusSkipped, res.Status)
	require.Zero(t, res.Impact)
	require.NotEmpty(t, res.Error)
}

func TestEvaluator_UnknownOperatorSkipped(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEvaluator(logger)

	cond := ageCondition(21, model.PriorityLow)
	cond.Criteria.Operator = "regex"
	res := e.Evaluate(cond, subjectWithAge(20), nil)
	require.Equal(t, model.ConditionStatusSkipped, res.Status)
	require.Equal(t, 0, res.Impact)
}

func TestResolvePath(t *testing.T) {
	data := map[string]interface{}{
		"driver": map[string]interface{}{
			"experienceMonths": 18,
			"licenseDate":      "2024-01-15",
		},
	}

	v, ok := ResolvePath(data, "driver.experienceMonths")
	require.True(t, ok)
	require.Equal(t, 18, v)

	_, ok = ResolvePath(data, "driver.missing")
	require.False(t, ok)

	_, ok = ResolvePath(data, "driver.experienceMonths.deeper")
	require.False(t, ok)

	d, ok := ResolveDate(data, "driver.licenseDate")
	require.True(t, ok)
	require.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), d)
}
