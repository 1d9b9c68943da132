package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim represents one historical claim event reported for a subject
type Claim struct {
	ID          string          `json:"id"`
	SubjectID   string          `json:"subject_id"`
	Date        time.Time       `json:"date"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// ClaimAging is a derived view of one claim's age relative to the category
// lookback window. It is recomputed on every evaluation and never stored as
// authoritative state.
type ClaimAging struct {
	ClaimID             string          `json:"claim_id"`
	SubjectID           string          `json:"subject_id"`
	ClaimDate           time.Time       `json:"claim_date"`
	Type                string          `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	AgeMonths           int             `json:"age_months"`
	AgeDays             int             `json:"age_days"`
	IsActive            bool            `json:"is_active"`
	ExpirationDate      time.Time       `json:"expiration_date"`
	DaysUntilExpiration int             `json:"days_until_expiration"`
	ImpactsEligibility  bool            `json:"impacts_eligibility"`
	WillExpireSoon      bool            `json:"will_expire_soon"`
}

// ClaimsAnalysis summarizes a subject's claim history for one category
type ClaimsAnalysis struct {
	SubjectID          string       `json:"subject_id"`
	Category           string       `json:"category"`
	LookbackMonths     int          `json:"lookback_months"`
	MaxClaimsAllowed   int          `json:"max_claims_allowed"`
	TotalClaims        int          `json:"total_claims"`
	ActiveClaims       int          `json:"active_claims"`
	ExpiredClaims      int          `json:"expired_claims"`
	Active             []ClaimAging `json:"active,omitempty"`
	Expired            []ClaimAging `json:"expired,omitempty"`
	NextExpirationDate *time.Time   `json:"next_expiration_date,omitempty"`
	ExceedsLimit       bool         `json:"exceeds_limit"`
	AnalyzedAt         time.Time    `json:"analyzed_at"`
}
