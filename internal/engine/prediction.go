package engine

import (
	"strings"
	"time"

	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/rules"
	"github.com/covergate/eligibility-engine/internal/temporal"
)

// forecastBaseConfidence and forecastStepConfidence shape the confidence
// level: 60 plus 10 per contributing condition, capped at 90. A forecast is
// never certain.
const (
	forecastBaseConfidence = 60
	forecastStepConfidence = 10
	forecastMaxConfidence  = 90
)

// forecast predicts when the failing time-dependent conditions resolve on
// their own. Only deterministic facts already on the subject contribute; a
// condition with no derivable date contributes nothing. Never fabricates a
// date.
func (e *Engine) forecast(subject *model.Subject, failing []*model.EligibilityCondition, analysis *model.ClaimsAnalysis, now time.Time) *model.EligibilityForecast {
	forecast := &model.EligibilityForecast{}
	for _, cond := range failing {
		if !cond.Temporal.IsTimeDependent {
			continue
		}
		date := e.resolutionDate(cond, subject, analysis, now)
		if date == nil {
			continue
		}
		forecast.Contributing = append(forecast.Contributing, model.ConditionForecast{
			ConditionID:   cond.ID,
			ConditionName: cond.Name,
			ResolvesOn:    *date,
		})
		forecast.KeyFactors = append(forecast.KeyFactors, cond.Name)
		if forecast.EstimatedEligibilityDate == nil || date.Before(*forecast.EstimatedEligibilityDate) {
			forecast.EstimatedEligibilityDate = date
		}
	}

	n := len(forecast.Contributing)
	forecast.WillBecomeEligible = n > 0
	if n > 0 {
		confidence := forecastBaseConfidence + forecastStepConfidence*n
		if confidence > forecastMaxConfidence {
			confidence = forecastMaxConfidence
		}
		forecast.ConfidenceLevel = confidence
	}
	return forecast
}

// resolutionDate derives the calendar date a failing condition is expected
// to satisfy itself, from deterministic subject facts only. Returns nil when
// no such date exists or the derived date is not in the future. The same
// date feeds both the forecast and an alert's expected resolution date.
func (e *Engine) resolutionDate(cond *model.EligibilityCondition, subject *model.Subject, analysis *model.ClaimsAnalysis, now time.Time) *time.Time {
	if cond.Criteria.Operator != model.OperatorGTE && cond.Type != model.ConditionTypeClaims {
		// Only lower-bound requirements resolve by waiting
		return nil
	}

	var date *time.Time
	switch cond.Type {
	case model.ConditionTypeAge:
		if birth, ok := rules.ResolveDate(subject.Data, anchorPath(cond.Criteria.Field, "birthDate")); ok {
			d := temporal.AddYears(birth, int(cond.Criteria.Value))
			date = &d
		}
	case model.ConditionTypeExperience:
		if license, ok := rules.ResolveDate(subject.Data, anchorPath(cond.Criteria.Field, "licenseDate")); ok {
			d := temporal.AddMonths(license, int(cond.Criteria.Value))
			date = &d
		}
	case model.ConditionTypeClaims:
		date = e.analyzer.ComplianceDate(analysis)
	}

	if date == nil || !date.After(now) {
		// A past date means the condition depends on something beyond
		// waiting; predicting it would be fabrication.
		return nil
	}
	return date
}

// anchorPath swaps the leaf of a dotted field path for the deterministic
// anchor fact next to it ("driver.age" resolves through "driver.birthDate")
func anchorPath(field, anchor string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		return field[:i+1] + anchor
	}
	return anchor
}
