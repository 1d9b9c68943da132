// Package rules evaluates declarative eligibility conditions against subject
// data. A missing or malformed subject field never aborts evaluation: the
// condition fails closed and carries the error in its result.
package rules

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/model"
)

// Evaluator evaluates single conditions
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates a new condition evaluator
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger.Named("rules")}
}

// Evaluate applies one condition to the subject. The claims analysis supplies
// the actual value for claims-type conditions; it may be nil for other types.
//
// Gap contract: gap is 0 when the condition passes and strictly positive when
// it fails on a readable value. Impact is -weight when failing, 0 otherwise.
func (e *Evaluator) Evaluate(cond *model.EligibilityCondition, subject *model.Subject, analysis *model.ClaimsAnalysis) model.ConditionResult {
	result := model.ConditionResult{
		ConditionID:   cond.ID,
		ConditionName: cond.Name,
		Type:          cond.Type,
		RequiredValue: cond.Criteria.Value,
		Weight:        cond.Priority.Weight(),
	}

	actual, err := e.actualValue(cond, subject, analysis)
	if err != nil {
		// ConfigError: the condition itself is unusable (bad operator,
		// missing bound, or a claims condition whose category has no
		// analysis). Skip it so it does not count toward the score
		// denominator.
		if errors.Is(err, ErrUnknownOperator) || errors.Is(err, ErrMissingBound) || errors.Is(err, ErrNoClaimsAnalysis) {
			result.Status = model.ConditionStatusSkipped
			result.Error = err.Error()
			e.logger.Warn("Skipping misconfigured condition",
				zap.String("condition_id", cond.ID),
				zap.Error(err))
			return result
		}
		// DataError: fail closed with an unknown gap.
		result.Status = model.ConditionStatusFailed
		result.Passed = false
		result.Gap = cond.Criteria.Value
		result.Impact = -result.Weight
		result.Error = err.Error()
		result.Message = failureMessage(cond, nil)
		e.logger.Debug("Condition failed closed on unreadable field",
			zap.String("condition_id", cond.ID),
			zap.String("field", cond.Criteria.Field),
			zap.Error(err))
		return result
	}

	passed, gap, err := compare(cond.Criteria, actual)
	if err != nil {
		result.Status = model.ConditionStatusSkipped
		result.Error = err.Error()
		e.logger.Warn("Skipping misconfigured condition",
			zap.String("condition_id", cond.ID),
			zap.Error(err))
		return result
	}

	result.CurrentValue = &actual
	result.Passed = passed
	result.Gap = gap
	if passed {
		result.Status = model.ConditionStatusPassed
		result.Message = cond.Messages.Success
	} else {
		result.Status = model.ConditionStatusFailed
		result.Impact = -result.Weight
		result.Message = failureMessage(cond, &actual)
	}
	return result
}

// actualValue resolves the value the condition compares against
func (e *Evaluator) actualValue(cond *model.EligibilityCondition, subject *model.Subject, analysis *model.ClaimsAnalysis) (float64, error) {
	if cond.Type == model.ConditionTypeClaims {
		if analysis == nil {
			return 0, ErrNoClaimsAnalysis
		}
		return float64(analysis.ActiveClaims), nil
	}
	return ResolveNumeric(subject.Data, cond.Criteria.Field)
}

// compare applies the operator. Gap is always >= 0, and 0 exactly when the
// comparison passes.
func compare(criteria model.Criteria, actual float64) (bool, float64, error) {
	threshold := criteria.Value
	switch criteria.Operator {
	case model.OperatorGTE:
		if actual >= threshold {
			return true, 0, nil
		}
		return false, threshold - actual, nil
	case model.OperatorLTE:
		if actual <= threshold {
			return true, 0, nil
		}
		return false, actual - threshold, nil
	case model.OperatorEQ:
		if actual == threshold {
			return true, 0, nil
		}
		return false, math.Abs(actual - threshold), nil
	case model.OperatorBetween:
		if criteria.UpperValue == nil {
			return false, 0, ErrMissingBound
		}
		upper := *criteria.UpperValue
		if actual < threshold {
			return false, threshold - actual, nil
		}
		if actual > upper {
			return false, actual - upper, nil
		}
		return true, 0, nil
	default:
		return false, 0, fmt.Errorf("%w: %s", ErrUnknownOperator, criteria.Operator)
	}
}

func failureMessage(cond *model.EligibilityCondition, actual *float64) string {
	if cond.Messages.Failure != "" {
		return cond.Messages.Failure
	}
	if actual == nil {
		return fmt.Sprintf("%s: value unavailable", cond.Name)
	}
	return fmt.Sprintf("%s: current %v, required %v %v", cond.Name, *actual, cond.Criteria.Operator, cond.Criteria.Value)
}
