// Package claims classifies a subject's claim history against the lookback
// window of an insurance category and projects when active claims stop
// counting against eligibility.
package claims

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/temporal"
)

// expireSoonDays is the window for flagging claims about to leave the
// lookback period.
const expireSoonDays = 30

// CategoryConfig holds the per-category claim rules
type CategoryConfig struct {
	LookbackMonths   int `json:"lookback_months" mapstructure:"lookback_months"`
	MaxClaimsAllowed int `json:"max_claims_allowed" mapstructure:"max_claims_allowed"`
}

// DefaultCategories returns the built-in category configuration
func DefaultCategories() map[string]CategoryConfig {
	return map[string]CategoryConfig{
		"auto":       {LookbackMonths: 36, MaxClaimsAllowed: 3},
		"habitation": {LookbackMonths: 60, MaxClaimsAllowed: 2},
		"sante":      {LookbackMonths: 24, MaxClaimsAllowed: 5},
	}
}

// Analyzer partitions claim histories into active and expired claims
type Analyzer struct {
	logger     *zap.Logger
	categories map[string]CategoryConfig
}

// NewAnalyzer creates a new analyzer. Overrides replace or extend the
// default category table.
func NewAnalyzer(logger *zap.Logger, overrides map[string]CategoryConfig) *Analyzer {
	categories := DefaultCategories()
	for name, cfg := range overrides {
		categories[name] = cfg
	}
	return &Analyzer{
		logger:     logger.Named("claims"),
		categories: categories,
	}
}

// Category returns the configuration for an insurance category
func (a *Analyzer) Category(name string) (CategoryConfig, bool) {
	cfg, ok := a.categories[name]
	return cfg, ok
}

// Analyze classifies the subject's claims for one category as of now.
// A claim is active iff its age in whole months is strictly below the
// lookback window; a claim dated exactly lookbackMonths ago is expired.
func (a *Analyzer) Analyze(subjectID, category string, claimList []model.Claim, now time.Time) (*model.ClaimsAnalysis, error) {
	cfg, ok := a.categories[category]
	if !ok {
		return nil, fmt.Errorf("unknown insurance category: %s", category)
	}

	analysis := &model.ClaimsAnalysis{
		SubjectID:        subjectID,
		Category:         category,
		LookbackMonths:   cfg.LookbackMonths,
		MaxClaimsAllowed: cfg.MaxClaimsAllowed,
		TotalClaims:      len(claimList),
		AnalyzedAt:       now,
	}

	for _, claim := range claimList {
		aging := a.age(claim, cfg, now)
		if aging.IsActive {
			analysis.Active = append(analysis.Active, aging)
		} else {
			analysis.Expired = append(analysis.Expired, aging)
		}
	}

	analysis.ActiveClaims = len(analysis.Active)
	analysis.ExpiredClaims = len(analysis.Expired)
	analysis.ExceedsLimit = analysis.ActiveClaims > cfg.MaxClaimsAllowed

	sort.Slice(analysis.Active, func(i, j int) bool {
		return analysis.Active[i].ExpirationDate.Before(analysis.Active[j].ExpirationDate)
	})
	if len(analysis.Active) > 0 {
		next := analysis.Active[0].ExpirationDate
		analysis.NextExpirationDate = &next
	}

	return analysis, nil
}

// age computes the aging view for a single claim
func (a *Analyzer) age(claim model.Claim, cfg CategoryConfig, now time.Time) model.ClaimAging {
	ageMonths := temporal.MonthsBetween(claim.Date, now)
	ageDays := temporal.DaysBetween(claim.Date, now)
	if ageMonths < 0 || ageDays < 0 {
		// Future-dated claim: a data error upstream. Treated as active
		// with age clamped to zero rather than aborting the analysis.
		a.logger.Warn("Claim dated in the future, clamping age to zero",
			zap.String("claim_id", claim.ID),
			zap.String("subject_id", claim.SubjectID),
			zap.Time("claim_date", claim.Date),
			zap.Time("now", now))
		ageMonths, ageDays = 0, 0
	}

	expiration := temporal.AddMonths(claim.Date, cfg.LookbackMonths)
	daysUntil := temporal.DaysBetween(now, expiration)
	active := ageMonths < cfg.LookbackMonths

	return model.ClaimAging{
		ClaimID:             claim.ID,
		SubjectID:           claim.SubjectID,
		ClaimDate:           claim.Date,
		Type:                claim.Type,
		Amount:              claim.Amount,
		AgeMonths:           ageMonths,
		AgeDays:             ageDays,
		IsActive:            active,
		ExpirationDate:      expiration,
		DaysUntilExpiration: daysUntil,
		ImpactsEligibility:  active,
		WillExpireSoon:      active && daysUntil > 0 && daysUntil <= expireSoonDays,
	}
}

// ComplianceDate returns the first expiration date at which the remaining
// active-claim count no longer exceeds the category limit. Expiring the
// earliest claim is not always sufficient, so expirations are walked in
// order until the count fits. Returns nil when the subject is already
// within the limit or the analysis carries no active claims.
func (a *Analyzer) ComplianceDate(analysis *model.ClaimsAnalysis) *time.Time {
	if analysis == nil || !analysis.ExceedsLimit {
		return nil
	}
	remaining := analysis.ActiveClaims
	for _, aging := range analysis.Active { // sorted by expiration ascending
		remaining--
		if remaining <= analysis.MaxClaimsAllowed {
			d := aging.ExpirationDate
			return &d
		}
	}
	return nil
}
