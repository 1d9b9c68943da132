package rules

import "errors"

var (
	// ErrFieldNotFound is returned when a condition's field path does not
	// resolve against the subject data
	ErrFieldNotFound = errors.New("field not found in subject data")

	// ErrValueNotNumeric is returned when the resolved value cannot be
	// compared numerically
	ErrValueNotNumeric = errors.New("field value is not numeric")

	// ErrUnknownOperator is returned for an operator the evaluator does not
	// support
	ErrUnknownOperator = errors.New("unknown comparison operator")

	// ErrMissingBound is returned when a between condition lacks its upper
	// bound
	ErrMissingBound = errors.New("between condition missing upper bound")

	// ErrNoClaimsAnalysis is returned when a claims condition is evaluated
	// without a claims analysis
	ErrNoClaimsAnalysis = errors.New("claims analysis unavailable")
)
