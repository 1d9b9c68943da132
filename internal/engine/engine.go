// Package engine orchestrates eligibility evaluation: claims aging,
// condition evaluation, scoring, risk classification, prediction and the
// alert side effects of failed conditions.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/alerts"
	"github.com/covergate/eligibility-engine/internal/claims"
	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/rules"
	"github.com/covergate/eligibility-engine/internal/storage"
)

// Engine evaluates a subject against all active conditions for a category
type Engine struct {
	logger     *zap.Logger
	conditions storage.ConditionStore
	results    storage.ResultStore
	analyzer   *claims.Analyzer
	evaluator  *rules.Evaluator
	alerts     *alerts.Manager
	now        func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the engine's time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new eligibility engine
func NewEngine(logger *zap.Logger, conditions storage.ConditionStore, results storage.ResultStore,
	analyzer *claims.Analyzer, evaluator *rules.Evaluator, manager *alerts.Manager, opts ...Option) *Engine {
	e := &Engine{
		logger:     logger.Named("engine"),
		conditions: conditions,
		results:    results,
		analyzer:   analyzer,
		evaluator:  evaluator,
		alerts:     manager,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs one evaluation for the subject and insurance category. It
// always returns a result: data and configuration problems degrade single
// sections and surface in Warnings, never as a hard failure. Given
// identical inputs and condition set the result is reproducible.
func (e *Engine) Evaluate(ctx context.Context, subject *model.Subject, category string) *model.EligibilityResult {
	now := e.now()
	result := &model.EligibilityResult{
		ID:          uuid.New().String(),
		SubjectID:   subject.ID,
		Category:    category,
		EvaluatedAt: now,
	}

	// Claims aging first: claims-type conditions read its output. A subject
	// with no claim history still gets an analysis (zero active claims).
	analysis, err := e.analyzer.Analyze(subject.ID, category, subject.Claims, now)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("claims analysis unavailable: %v", err))
		e.logger.Warn("Claims analysis failed",
			zap.String("subject_id", subject.ID),
			zap.String("category", category),
			zap.Error(err))
	}
	result.Claims = analysis

	conditions, err := e.conditions.ListActiveConditions(ctx, category)
	if err != nil {
		// Fail closed: without the condition set nothing can be verified
		result.Warnings = append(result.Warnings, fmt.Sprintf("conditions unavailable: %v", err))
		result.RiskLevel = model.RiskLevelVeryHigh
		e.logger.Error("Failed to load conditions",
			zap.String("category", category),
			zap.Error(err))
		e.appendHistory(ctx, result)
		return result
	}

	totalWeight := 0
	passedWeight := 0
	var failing []*model.EligibilityCondition
	failed := 0

	for _, cond := range conditions {
		res := e.evaluator.Evaluate(cond, subject, analysis)
		result.Conditions = append(result.Conditions, res)

		if res.Status == model.ConditionStatusSkipped {
			// Configuration health: excluded from the score denominator
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("condition %s skipped: %s", cond.ID, res.Error))
			continue
		}

		totalWeight += res.Weight
		if res.Passed {
			passedWeight += res.Weight
			if err := e.alerts.ResolvePassed(ctx, subject.ID, cond.ID); err != nil {
				e.logger.Error("Failed to resolve alert",
					zap.String("subject_id", subject.ID),
					zap.String("condition_id", cond.ID),
					zap.Error(err))
			}
			continue
		}

		failed++
		failing = append(failing, cond)
		if cond.Actions.CreateAlert {
			expected := e.resolutionDate(cond, subject, analysis, now)
			if _, err := e.alerts.CreateOrUpdateAlert(ctx, cond, subject, category, res, expected); err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("alert for condition %s not recorded: %v", cond.ID, err))
				e.logger.Error("Failed to create or update alert",
					zap.String("subject_id", subject.ID),
					zap.String("condition_id", cond.ID),
					zap.Error(err))
			}
		}
	}

	if totalWeight > 0 {
		result.Score = int(math.Round(100 * float64(passedWeight) / float64(totalWeight)))
	}
	result.IsEligible = failed == 0
	result.RiskLevel = model.RiskLevelForScore(result.Score)
	result.Forecast = e.forecast(subject, failing, analysis, now)
	result.Recommendations = e.recommend(result)

	e.logger.Info("Evaluation completed",
		zap.String("subject_id", subject.ID),
		zap.String("category", category),
		zap.Bool("eligible", result.IsEligible),
		zap.Int("score", result.Score),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Int("conditions", len(result.Conditions)),
		zap.Int("failed", failed))

	e.appendHistory(ctx, result)
	return result
}

// Recheck re-evaluates a subject on behalf of a recheck action. The subject
// record is re-fetched through the provider so the evaluation sees current
// facts.
type SubjectProvider interface {
	GetSubject(ctx context.Context, subjectID string) (*model.Subject, error)
}

// RecheckFunc builds the callback the alert manager invokes for
// recheck-type scheduled actions
func (e *Engine) RecheckFunc(provider SubjectProvider) alerts.RecheckFunc {
	return func(ctx context.Context, subjectID, category string) {
		subject, err := provider.GetSubject(ctx, subjectID)
		if err != nil {
			e.logger.Error("Recheck could not load subject",
				zap.String("subject_id", subjectID),
				zap.Error(err))
			return
		}
		e.Evaluate(ctx, subject, category)
	}
}

// recommend derives advisory actions from the finished result. Advisory
// only: nothing here blocks or mutates state.
func (e *Engine) recommend(result *model.EligibilityResult) []model.Recommendation {
	var out []model.Recommendation
	if f := result.Forecast; f != nil && f.WillBecomeEligible && f.EstimatedEligibilityDate != nil {
		out = append(out, model.Recommendation{
			Type:     model.RecommendationWait,
			Message:  fmt.Sprintf("Subject is expected to become eligible on %s", f.EstimatedEligibilityDate.Format("2006-01-02")),
			Deadline: f.EstimatedEligibilityDate,
		})
	}
	if c := result.Claims; c != nil && c.NextExpirationDate != nil {
		out = append(out, model.Recommendation{
			Type:     model.RecommendationScheduleReview,
			Message:  fmt.Sprintf("Review eligibility after the next claim leaves the lookback window on %s", c.NextExpirationDate.Format("2006-01-02")),
			Deadline: c.NextExpirationDate,
		})
	}
	return out
}

// appendHistory stores the immutable run; history is append-only
func (e *Engine) appendHistory(ctx context.Context, result *model.EligibilityResult) {
	if err := e.results.AppendResult(ctx, result); err != nil {
		e.logger.Error("Failed to append evaluation result",
			zap.String("subject_id", result.SubjectID),
			zap.Error(err))
	}
}
