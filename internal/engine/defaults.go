package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/storage"
)

// DefaultConditions returns the conditions seeded on first run
func DefaultConditions(now time.Time) []*model.EligibilityCondition {
	return []*model.EligibilityCondition{
		{
			ID:          "default-driver-age",
			Name:        "Minimum driver age",
			Description: "Drivers must be at least 21 years old for auto coverage",
			Type:        model.ConditionTypeAge,
			Criteria:    model.Criteria{Field: "driver.age", Operator: model.OperatorGTE, Value: 21},
			Temporal:    model.TemporalSpec{IsTimeDependent: true, CheckFrequency: "daily", AnticipationDays: 7},
			Actions:     model.ConditionActions{BlockQuote: true, CreateAlert: true, ScheduleReminder: true},
			Messages: model.ConditionMessages{
				Failure:  "Driver is under the minimum age of 21",
				Reminder: "The driver will soon reach the minimum age; re-run the eligibility check",
			},
			InsuranceTypes: []string{"auto"},
			Priority:       model.PriorityCritical,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:          "default-driver-experience",
			Name:        "Minimum driving experience",
			Description: "Drivers must hold a license for at least 24 months",
			Type:        model.ConditionTypeExperience,
			Criteria:    model.Criteria{Field: "driver.experienceMonths", Operator: model.OperatorGTE, Value: 24},
			Temporal:    model.TemporalSpec{IsTimeDependent: true, CheckFrequency: "weekly", AnticipationDays: 14},
			Actions:     model.ConditionActions{RequireApproval: true, CreateAlert: true, ScheduleReminder: true},
			Messages: model.ConditionMessages{
				Failure: "Driver has less than 24 months of driving experience",
			},
			InsuranceTypes: []string{"auto"},
			Priority:       model.PriorityHigh,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:          "default-auto-claims",
			Name:        "Auto claims within limit",
			Description: "No more than 3 claims in the 36-month lookback window",
			Type:        model.ConditionTypeClaims,
			Criteria:    model.Criteria{Field: "claims.activeCount", Operator: model.OperatorLTE, Value: 3, LookbackMonths: 36, LookbackUnit: "months"},
			Temporal:    model.TemporalSpec{IsTimeDependent: true, CheckFrequency: "monthly", AnticipationDays: 30},
			Actions:     model.ConditionActions{BlockContract: true, CreateAlert: true, ScheduleReminder: true},
			Messages: model.ConditionMessages{
				Failure:  "Too many claims in the lookback window",
				Reminder: "A claim is about to leave the lookback window; re-run the eligibility check",
			},
			InsuranceTypes: []string{"auto"},
			Priority:       model.PriorityCritical,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:          "default-habitation-claims",
			Name:        "Habitation claims within limit",
			Description: "No more than 2 claims in the 60-month lookback window",
			Type:        model.ConditionTypeClaims,
			Criteria:    model.Criteria{Field: "claims.activeCount", Operator: model.OperatorLTE, Value: 2, LookbackMonths: 60, LookbackUnit: "months"},
			Temporal:    model.TemporalSpec{IsTimeDependent: true, CheckFrequency: "monthly", AnticipationDays: 30},
			Actions:     model.ConditionActions{BlockContract: true, CreateAlert: true, ScheduleReminder: true},
			InsuranceTypes: []string{"habitation"},
			Priority:       model.PriorityCritical,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:          "default-sante-claims",
			Name:        "Health claims within limit",
			Description: "No more than 5 claims in the 24-month lookback window",
			Type:        model.ConditionTypeClaims,
			Criteria:    model.Criteria{Field: "claims.activeCount", Operator: model.OperatorLTE, Value: 5, LookbackMonths: 24, LookbackUnit: "months"},
			Temporal:    model.TemporalSpec{IsTimeDependent: true, CheckFrequency: "monthly", AnticipationDays: 30},
			Actions:     model.ConditionActions{RequireApproval: true, CreateAlert: true},
			InsuranceTypes: []string{"sante"},
			Priority:       model.PriorityHigh,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
}

// SeedDefaults stores the default conditions when the store is empty.
// Idempotent: an already-populated store is left untouched.
func SeedDefaults(ctx context.Context, store storage.ConditionStore, logger *zap.Logger) error {
	existing, err := store.ListConditions(ctx)
	if err != nil {
		return fmt.Errorf("failed to check existing conditions: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := DefaultConditions(time.Now().UTC())
	for _, cond := range defaults {
		if err := store.SaveCondition(ctx, cond); err != nil {
			return fmt.Errorf("failed to seed condition %s: %w", cond.ID, err)
		}
	}
	logger.Info("Seeded default eligibility conditions", zap.Int("count", len(defaults)))
	return nil
}
