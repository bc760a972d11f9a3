// Package mysql implements the engine contract for MySQL targets.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/sqlcron/sqlcron/pkg/engine"
	"github.com/sqlcron/sqlcron/pkg/models"
)

var (
	ddlPattern  = regexp.MustCompile(`(?is)^\s*(create|alter|drop|truncate|rename)\b`)
	dmlPattern  = regexp.MustCompile(`(?is)^\s*(insert|update|delete|replace)\b`)
	readPattern = regexp.MustCompile(`(?is)^\s*(select|show|explain|desc|describe)\b`)
	starPattern = regexp.MustCompile(`(?is)select\s+\*`)
)

// Engine runs checks and statements against one MySQL instance.
type Engine struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens a connection pool for the instance DSN. The DSN must omit the
// database name; statements select it per call.
func New(ctx context.Context, logger *slog.Logger, dsn string) (*Engine, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL instance: %w", err)
	}

	return &Engine{db: db, logger: logger.With("module", "mysql_engine")}, nil
}

// Close releases the connection pool.
func (e *Engine) Close() error {
	return e.db.Close()
}

// AutoBackup reports backup support. Row-image backup is not implemented
// for plain MySQL targets.
func (e *Engine) AutoBackup() bool {
	return false
}

// ExecuteCheck statically validates a change order's SQL: statement
// splitting, syntax classification and a read-only rejection.
func (e *Engine) ExecuteCheck(ctx context.Context, db, sqlText string) (*engine.CheckResult, error) {
	statements := SplitStatements(sqlText)
	if len(statements) == 0 {
		return nil, fmt.Errorf("no SQL statements found in submission")
	}

	result := &engine.CheckResult{
		SyntaxType: models.SyntaxUnknown,
		Review:     models.NewReviewSet(sqlText),
	}

	for _, stmt := range statements {
		row := models.ReviewResult{
			StageStatus:  "Audit completed",
			ErrorMessage: "None",
			SQL:          stmt,
		}

		switch {
		case ddlPattern.MatchString(stmt):
			result.SyntaxType = mergeSyntax(result.SyntaxType, models.SyntaxDDL)
		case dmlPattern.MatchString(stmt):
			result.SyntaxType = mergeSyntax(result.SyntaxType, models.SyntaxDML)
		case readPattern.MatchString(stmt):
			row.ErrLevel = models.ErrLevelError
			row.StageStatus = "Audit failed"
			row.ErrorMessage = "read-only statement is not allowed in a change order"
			result.ErrorCount++
		default:
			row.ErrLevel = models.ErrLevelWarning
			row.ErrorMessage = "statement type not recognized"
			result.WarningCount++
		}

		result.Review.Append(row)
	}

	return result, nil
}

// QueryCheck validates a query order's SQL: single read statement, comment
// stripping, wildcard detection.
func (e *Engine) QueryCheck(ctx context.Context, db, sqlText string) (*engine.QueryCheckResult, error) {
	statements := SplitStatements(sqlText)
	if len(statements) == 0 {
		return &engine.QueryCheckResult{BadQuery: true, Msg: "no SQL statement found"}, nil
	}

	if len(statements) > 1 {
		return &engine.QueryCheckResult{BadQuery: true, Msg: "only a single query statement is allowed"}, nil
	}

	stmt := statements[0]
	if !readPattern.MatchString(stmt) {
		return &engine.QueryCheckResult{BadQuery: true, Msg: "only read statements are allowed in a query order"}, nil
	}

	result := &engine.QueryCheckResult{FilteredSQL: stmt}
	if starPattern.MatchString(stmt) {
		result.HasStar = true
		result.Msg = "query selects all columns with *"
	}

	return result, nil
}

// Query runs a query order's SQL and collects the full result set.
func (e *Engine) Query(ctx context.Context, db, sqlText string) (*engine.QueryResult, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			e.logger.ErrorContext(ctx, "Failed to release connection", "error", closeErr)
		}
	}()

	if _, err := conn.ExecContext(ctx, "USE "+quoteIdentifier(db)); err != nil {
		return &engine.QueryResult{Error: err.Error()}, nil
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return &engine.QueryResult{Error: err.Error()}, nil
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			e.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return &engine.QueryResult{Error: err.Error()}, nil
	}

	result := &engine.QueryResult{Columns: columns, Rows: [][]any{}}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return &engine.QueryResult{Error: err.Error()}, nil
		}

		for i, v := range values {
			if raw, ok := v.([]byte); ok {
				values[i] = string(raw)
			}
		}

		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return &engine.QueryResult{Error: err.Error()}, nil
	}

	result.AffectedRows = int64(len(result.Rows))

	return result, nil
}

// Execute runs a change order's SQL statement by statement, accumulating
// affected rows. The first failing statement stops execution.
func (e *Engine) Execute(ctx context.Context, db, sqlText string) (*engine.ExecuteResult, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			e.logger.ErrorContext(ctx, "Failed to release connection", "error", closeErr)
		}
	}()

	if _, err := conn.ExecContext(ctx, "USE "+quoteIdentifier(db)); err != nil {
		return &engine.ExecuteResult{Error: err.Error()}, nil
	}

	result := &engine.ExecuteResult{}

	for _, stmt := range SplitStatements(sqlText) {
		res, err := conn.ExecContext(ctx, stmt)
		if err != nil {
			result.Error = err.Error()

			return result, nil
		}

		affected, err := res.RowsAffected()
		if err == nil {
			result.AffectedRows += affected
		}
	}

	return result, nil
}

// SplitStatements splits submitted SQL on semicolons, dropping comments and
// blank fragments. Semicolons inside string literals are respected.
func SplitStatements(sqlText string) []string {
	var (
		statements []string
		current    strings.Builder
		inSingle   bool
		inDouble   bool
	)

	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]

		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == ';' && !inSingle && !inDouble:
			appendStatement(&statements, current.String())
			current.Reset()

			continue
		}

		current.WriteByte(ch)
	}

	appendStatement(&statements, current.String())

	return statements
}

func appendStatement(statements *[]string, raw string) {
	var kept []string

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") || strings.HasPrefix(trimmed, "#") {
			continue
		}

		kept = append(kept, trimmed)
	}

	stmt := strings.TrimSpace(strings.Join(kept, "\n"))
	if stmt != "" {
		*statements = append(*statements, stmt)
	}
}

func mergeSyntax(current, next models.SyntaxType) models.SyntaxType {
	// DDL dominates: a mixed submission is treated as DDL for backup and
	// review purposes.
	if current == models.SyntaxDDL || next == models.SyntaxDDL {
		return models.SyntaxDDL
	}

	return next
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
