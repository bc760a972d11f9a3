package models

import "encoding/json"

// Error levels for a ReviewResult.
const (
	ErrLevelOK      = 0
	ErrLevelWarning = 1
	ErrLevelError   = 2
)

// ReviewResult is one per-statement record of a check or execution pass.
// JSON field names match the review payload stored by the check engines.
type ReviewResult struct {
	ID           int     `json:"id"`
	Stage        string  `json:"stage,omitempty"`
	ErrLevel     int     `json:"errlevel"`
	StageStatus  string  `json:"stagestatus"`
	ErrorMessage string  `json:"errormessage"`
	SQL          string  `json:"sql"`
	AffectedRows int64   `json:"affected_rows"`
	ExecuteTime  float64 `json:"execute_time"` // Seconds
}

// ReviewSet aggregates the per-statement results of one pass together with
// the full submitted SQL and convenience counts.
type ReviewSet struct {
	FullSQL      string         `json:"full_sql"`
	Rows         []ReviewResult `json:"rows"`
	WarningCount int            `json:"warning_count"`
	ErrorCount   int            `json:"error_count"`
}

// NewReviewSet builds an empty set for the given SQL.
func NewReviewSet(fullSQL string) *ReviewSet {
	return &ReviewSet{FullSQL: fullSQL, Rows: []ReviewResult{}}
}

// Append adds a result and updates the severity counts.
func (rs *ReviewSet) Append(r ReviewResult) {
	if r.ID == 0 {
		r.ID = len(rs.Rows) + 1
	}

	rs.Rows = append(rs.Rows, r)

	switch r.ErrLevel {
	case ErrLevelWarning:
		rs.WarningCount++
	case ErrLevelError:
		rs.ErrorCount++
	}
}

// JSON serializes the set for storage in WorkflowContent.
func (rs *ReviewSet) JSON() (string, error) {
	raw, err := json.Marshal(rs)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// ParseReviewSet deserializes a stored review payload.
func ParseReviewSet(raw string) (*ReviewSet, error) {
	var rs ReviewSet
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return nil, err
	}

	return &rs, nil
}
