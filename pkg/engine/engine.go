// Package engine defines the contract between the workflow core and the
// SQL-dialect-specific check/execution engines.
package engine

import (
	"context"

	"github.com/sqlcron/sqlcron/pkg/models"
)

// CheckResult is the outcome of a pre-submission check of a change order.
type CheckResult struct {
	WarningCount int               `json:"warning_count"`
	ErrorCount   int               `json:"error_count"`
	SyntaxType   models.SyntaxType `json:"syntax_type"`
	Review       *models.ReviewSet `json:"review,omitempty"`
}

// QueryCheckResult is the outcome of a pre-submission check of a query order.
type QueryCheckResult struct {
	BadQuery    bool   `json:"bad_query"`
	HasStar     bool   `json:"has_star"`
	FilteredSQL string `json:"filtered_sql"`
	Msg         string `json:"msg"`
}

// QueryResult is the outcome of running a query order's SQL.
type QueryResult struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	AffectedRows int64    `json:"affected_rows"`
	Error        string   `json:"error,omitempty"`
}

// ExecuteResult is the outcome of running a change order's SQL.
type ExecuteResult struct {
	AffectedRows int64  `json:"affected_rows"`
	Error        string `json:"error,omitempty"`
}

// Engine is implemented per SQL dialect. ExecuteCheck/QueryCheck run once
// at submission; Query/Execute run at each scheduled fire.
type Engine interface {
	ExecuteCheck(ctx context.Context, db, sql string) (*CheckResult, error)
	QueryCheck(ctx context.Context, db, sql string) (*QueryCheckResult, error)
	Query(ctx context.Context, db, sql string) (*QueryResult, error)
	Execute(ctx context.Context, db, sql string) (*ExecuteResult, error)

	// AutoBackup reports whether the engine can back up affected rows on
	// its own; policy may then force the order's backup flag.
	AutoBackup() bool
}

// Resolver maps a target instance name to its engine.
type Resolver interface {
	EngineFor(ctx context.Context, instanceName string) (Engine, error)
}
