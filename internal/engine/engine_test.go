package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/alerts"
	"github.com/covergate/eligibility-engine/internal/claims"
	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/rules"
	"github.com/covergate/eligibility-engine/internal/storage"
)

func newTestEngine(t *testing.T, now time.Time) (*Engine, *storage.MemoryStore, *time.Time) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	store := storage.NewMemoryStore()
	clock := now
	nowFn := func() time.Time { return clock }
	manager := alerts.NewManager(logger, store, store, alerts.WithClock(nowFn))
	eng := NewEngine(logger, store, store,
		claims.NewAnalyzer(logger, nil),
		rules.NewEvaluator(logger),
		manager,
		WithClock(nowFn))
	return eng, store, &clock
}

func seedDefaults(t *testing.T, store storage.ConditionStore, now time.Time) {
	t.Helper()
	ctx := context.Background()
	for _, cond := range DefaultConditions(now) {
		require.NoError(t, store.SaveCondition(ctx, cond))
	}
}

func conditionResult(t *testing.T, result *model.EligibilityResult, conditionID string) model.ConditionResult {
	t.Helper()
	for _, res := range result.Conditions {
		if res.ConditionID == conditionID {
			return res
		}
	}
	t.Fatalf("no result for condition %s", conditionID)
	return model.ConditionResult{}
}

func TestEngine_YoungDriverFailsAgeCondition(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	eng, store, _ := newTestEngine(t, now)
	seedDefaults(t, store, now)

	subject := &model.Subject{
		ID: "subject-a",
		Data: map[string]interface{}{
			"driver": map[string]interface{}{
				"age":              20,
				"birthDate":        "2005-09-15",
				"experienceMonths": 30,
			},
		},
		Claims: []model.Claim{
			{ID: "claim-1", SubjectID: "subject-a", Date: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), Type: "collision"},
		},
	}

	result := eng.Evaluate(ctx, subject, "auto")

	require.False(t, result.IsEligible)
	require.Len(t, result.Conditions, 3)

	// Age fails with a one-year gap; the other two conditions pass
	age := conditionResult(t, result, "default-driver-age")
	require.Equal(t, model.ConditionStatusFailed, age.Status)
	require.Equal(t, 1.0, age.Gap)
	require.NotNil(t, age.CurrentValue)
	require.Equal(t, 20.0, *age.CurrentValue)

	require.Equal(t, model.ConditionStatusPassed, conditionResult(t, result, "default-driver-experience").Status)
	claimsRes := conditionResult(t, result, "default-auto-claims")
	require.Equal(t, model.ConditionStatusPassed, claimsRes.Status)
	require.Zero(t, claimsRes.Gap)

	// passed weight 50 of 80 -> 63, medium risk
	require.Equal(t, 63, result.Score)
	require.Equal(t, model.RiskLevelMedium, result.RiskLevel)

	// The forecast pins eligibility to the 21st birthday
	require.NotNil(t, result.Forecast)
	require.True(t, result.Forecast.WillBecomeEligible)
	birthday := time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC)
	require.NotNil(t, result.Forecast.EstimatedEligibilityDate)
	require.Equal(t, birthday, *result.Forecast.EstimatedEligibilityDate)
	require.Equal(t, 70, result.Forecast.ConfidenceLevel)

	// One live alert carrying the predicted date, an anticipated reminder
	// and a recheck on the date itself
	live, err := store.FindLive(ctx, "subject-a", "default-driver-age")
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusPending, live.Status)
	require.NotNil(t, live.ExpectedResolutionDate)
	require.Equal(t, birthday, *live.ExpectedResolutionDate)
	require.Len(t, live.ScheduledActions, 2)
	require.Equal(t, model.ActionTypeReminder, live.ScheduledActions[0].Type)
	require.Equal(t, birthday.AddDate(0, 0, -7), live.ScheduledActions[0].ScheduledDate)
	require.Equal(t, model.ActionTypeRecheck, live.ScheduledActions[1].Type)
	require.Equal(t, birthday, live.ScheduledActions[1].ScheduledDate)
}

func TestEngine_TooManyClaims(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	eng, store, _ := newTestEngine(t, now)
	seedDefaults(t, store, now)

	dates := []time.Time{
		time.Date(2023, time.January, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.August, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.November, 30, 0, 0, 0, 0, time.UTC),
	}
	subject := &model.Subject{
		ID: "subject-b",
		Data: map[string]interface{}{
			"driver": map[string]interface{}{
				"age":              42,
				"birthDate":        "1983-03-10",
				"experienceMonths": 240,
			},
		},
	}
	for i, d := range dates {
		subject.Claims = append(subject.Claims, model.Claim{
			ID: "claim-" + string(rune('1'+i)), SubjectID: subject.ID, Date: d, Type: "collision",
		})
	}

	result := eng.Evaluate(ctx, subject, "auto")

	require.False(t, result.IsEligible)
	require.NotNil(t, result.Claims)
	require.Equal(t, 4, result.Claims.ActiveClaims)
	require.True(t, result.Claims.ExceedsLimit)

	// The oldest claim leaves the 36-month window first
	firstOut := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	require.NotNil(t, result.Claims.NextExpirationDate)
	require.Equal(t, firstOut, *result.Claims.NextExpirationDate)

	claimsRes := conditionResult(t, result, "default-auto-claims")
	require.Equal(t, model.ConditionStatusFailed, claimsRes.Status)
	require.Equal(t, 1.0, claimsRes.Gap)

	// Dropping to 3 active claims restores compliance, so the forecast and
	// the alert both point at the first expiration
	require.NotNil(t, result.Forecast)
	require.NotNil(t, result.Forecast.EstimatedEligibilityDate)
	require.Equal(t, firstOut, *result.Forecast.EstimatedEligibilityDate)

	live, err := store.FindLive(ctx, "subject-b", "default-auto-claims")
	require.NoError(t, err)
	require.NotNil(t, live.ExpectedResolutionDate)
	require.Equal(t, firstOut, *live.ExpectedResolutionDate)
}

func TestEngine_PassingRunResolvesAlert(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	eng, store, _ := newTestEngine(t, now)
	seedDefaults(t, store, now)

	subject := &model.Subject{
		ID: "subject-c",
		Data: map[string]interface{}{
			"driver": map[string]interface{}{
				"age":              20,
				"birthDate":        "2005-05-20",
				"experienceMonths": 36,
			},
		},
	}

	first := eng.Evaluate(ctx, subject, "auto")
	require.False(t, first.IsEligible)
	alert, err := store.FindLive(ctx, "subject-c", "default-driver-age")
	require.NoError(t, err)

	// The driver turned 21; the same run that passes resolves the alert
	subject.Data["driver"].(map[string]interface{})["age"] = 21
	second := eng.Evaluate(ctx, subject, "auto")

	require.True(t, second.IsEligible)
	require.Equal(t, 100, second.Score)
	require.Equal(t, model.RiskLevelLow, second.RiskLevel)

	resolved, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusResolved, resolved.Status)
	_, err = store.FindLive(ctx, "subject-c", "default-driver-age")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_EvaluationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	eng, store, clock := newTestEngine(t, now)
	seedDefaults(t, store, now)

	subject := &model.Subject{
		ID: "subject-a",
		Data: map[string]interface{}{
			"driver": map[string]interface{}{
				"age":              20,
				"birthDate":        "2005-09-15",
				"experienceMonths": 30,
			},
		},
	}

	first := eng.Evaluate(ctx, subject, "auto")
	*clock = now.Add(time.Hour)
	second := eng.Evaluate(ctx, subject, "auto")

	// Identical inputs produce identical outcomes and no duplicate alerts
	require.Equal(t, first.Score, second.Score)
	require.Equal(t, first.IsEligible, second.IsEligible)
	require.Equal(t, first.RiskLevel, second.RiskLevel)
	for i := range first.Conditions {
		require.Equal(t, first.Conditions[i].Status, second.Conditions[i].Status)
		require.Equal(t, first.Conditions[i].Gap, second.Conditions[i].Gap)
	}

	open, err := store.ListAlerts(ctx, storage.AlertFilter{SubjectID: "subject-a"})
	require.NoError(t, err)
	require.Len(t, open, 1)

	// Every run lands in history, newest first
	history, err := store.ListResults(ctx, "subject-a", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, second.ID, history[0].ID)
}

func TestEngine_SkippedConditionLeavesScoreIntact(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	eng, store, _ := newTestEngine(t, now)

	passing := &model.EligibilityCondition{
		ID:       "cond-age",
		Name:     "Minimum age",
		Type:     model.ConditionTypeAge,
		Priority: model.PriorityCritical,
		IsActive: true,
		Criteria: model.Criteria{Field: "driver.age", Operator: model.OperatorGTE, Value: 18},
	}
	broken := &model.EligibilityCondition{
		ID:       "cond-broken",
		Name:     "Misconfigured",
		Type:     model.ConditionTypeOther,
		Priority: model.PriorityMedium,
		IsActive: true,
		Criteria: model.Criteria{Field: "driver.age", Operator: "near", Value: 30},
	}
	require.NoError(t, store.SaveCondition(ctx, passing))
	require.NoError(t, store.SaveCondition(ctx, broken))

	subject := &model.Subject{
		ID:   "subject-s",
		Data: map[string]interface{}{"driver": map[string]interface{}{"age": 30}},
	}

	result := eng.Evaluate(ctx, subject, "auto")

	// The misconfigured condition is skipped, surfaces as a warning and
	// stays out of the denominator
	require.Equal(t, model.ConditionStatusSkipped, conditionResult(t, result, "cond-broken").Status)
	require.Equal(t, 100, result.Score)
	require.True(t, result.IsEligible)
	require.NotEmpty(t, result.Warnings)
}

func TestEngine_NoConditionsConfigured(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	eng, _, _ := newTestEngine(t, now)

	subject := &model.Subject{ID: "subject-e", Data: map[string]interface{}{}}
	result := eng.Evaluate(ctx, subject, "auto")

	// Nothing verified: score floor and the highest risk band
	require.Zero(t, result.Score)
	require.Equal(t, model.RiskLevelVeryHigh, result.RiskLevel)
	require.True(t, result.IsEligible)
}

func TestEngine_ScoreBands(t *testing.T) {
	tests := []struct {
		score int
		want  model.RiskLevel
	}{
		{100, model.RiskLevelLow},
		{80, model.RiskLevelLow},
		{79, model.RiskLevelMedium},
		{60, model.RiskLevelMedium},
		{59, model.RiskLevelHigh},
		{40, model.RiskLevelHigh},
		{39, model.RiskLevelVeryHigh},
		{0, model.RiskLevelVeryHigh},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, model.RiskLevelForScore(tt.score), "score %d", tt.score)
	}
}
