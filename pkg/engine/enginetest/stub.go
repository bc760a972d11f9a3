// Package enginetest provides a scriptable engine stub for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/sqlcron/sqlcron/pkg/engine"
	"github.com/sqlcron/sqlcron/pkg/models"
)

// Stub implements engine.Engine with preloaded responses. The zero value
// passes every check and returns empty results.
type Stub struct {
	mu sync.Mutex

	CheckResult      *engine.CheckResult
	CheckErr         error
	QueryCheckResult *engine.QueryCheckResult
	QueryCheckErr    error
	QueryResult      *engine.QueryResult
	QueryErr         error
	ExecResult       *engine.ExecuteResult
	ExecErr          error
	SupportsBackup   bool

	QueryCalls   int
	ExecuteCalls int
}

func (s *Stub) ExecuteCheck(_ context.Context, _, sqlText string) (*engine.CheckResult, error) {
	if s.CheckErr != nil {
		return nil, s.CheckErr
	}

	if s.CheckResult != nil {
		return s.CheckResult, nil
	}

	return &engine.CheckResult{SyntaxType: models.SyntaxDML, Review: models.NewReviewSet(sqlText)}, nil
}

func (s *Stub) QueryCheck(_ context.Context, _, sqlText string) (*engine.QueryCheckResult, error) {
	if s.QueryCheckErr != nil {
		return nil, s.QueryCheckErr
	}

	if s.QueryCheckResult != nil {
		return s.QueryCheckResult, nil
	}

	return &engine.QueryCheckResult{FilteredSQL: sqlText}, nil
}

func (s *Stub) Query(_ context.Context, _, _ string) (*engine.QueryResult, error) {
	s.mu.Lock()
	s.QueryCalls++
	s.mu.Unlock()

	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	if s.QueryResult != nil {
		return s.QueryResult, nil
	}

	return &engine.QueryResult{Columns: []string{}, Rows: [][]any{}}, nil
}

func (s *Stub) Execute(_ context.Context, _, _ string) (*engine.ExecuteResult, error) {
	s.mu.Lock()
	s.ExecuteCalls++
	s.mu.Unlock()

	if s.ExecErr != nil {
		return nil, s.ExecErr
	}

	if s.ExecResult != nil {
		return s.ExecResult, nil
	}

	return &engine.ExecuteResult{}, nil
}

func (s *Stub) AutoBackup() bool {
	return s.SupportsBackup
}

// Resolver returns the same stub for every instance, or an error when the
// instance is not in Known.
type Resolver struct {
	Engine *Stub
	Known  []string
}

func (r *Resolver) EngineFor(_ context.Context, instanceName string) (engine.Engine, error) {
	if len(r.Known) > 0 {
		for _, name := range r.Known {
			if name == instanceName {
				return r.Engine, nil
			}
		}

		return nil, errors.New("unknown instance: " + instanceName)
	}

	return r.Engine, nil
}
