package model

// Subject represents the applicant being evaluated. Data holds the nested
// profile record supplied by the subject-data provider; fields are reachable
// by dotted path (e.g. "driver.age").
type Subject struct {
	ID     string                 `json:"id"`
	Data   map[string]interface{} `json:"data"`
	Claims []Claim                `json:"claims,omitempty"`
}
