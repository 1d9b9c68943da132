package api

import (
	"time"

	"github.com/covergate/eligibility-engine/internal/model"
	"github.com/covergate/eligibility-engine/internal/monitor"
)

// EvaluateRequest carries the subject facts pushed by the CRM for one
// evaluation run
type EvaluateRequest struct {
	Category string                 `json:"category"`
	Data     map[string]interface{} `json:"data"`
	Claims   []model.Claim          `json:"claims,omitempty"`
}

// TickResponse reports one manual sweep
type TickResponse struct {
	Executed int       `json:"executed"`
	RanAt    time.Time `json:"ran_at"`
}

// HealthResponse is the health endpoint payload
type HealthResponse struct {
	Status string               `json:"status"`
	Time   time.Time            `json:"time"`
	Engine *monitor.EngineStats `json:"engine,omitempty"`
}

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error string `json:"error"`
}
