package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlcron/sqlcron/pkg/models"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single statement without semicolon",
			input: "select 1",
			want:  []string{"select 1"},
		},
		{
			name:  "two statements",
			input: "update t set a = 1; delete from t where a = 2;",
			want:  []string{"update t set a = 1", "delete from t where a = 2"},
		},
		{
			name:  "semicolon inside string literal",
			input: "insert into t (name) values ('a;b'); select 1;",
			want:  []string{"insert into t (name) values ('a;b')", "select 1"},
		},
		{
			name:  "comment lines stripped",
			input: "-- setup\nupdate t set a = 1;\n# cleanup\ndelete from t;",
			want:  []string{"update t set a = 1", "delete from t"},
		},
		{
			name:  "blank fragments dropped",
			input: ";;  ;\nselect 1;",
			want:  []string{"select 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.input))
		})
	}
}

func TestExecuteCheckClassification(t *testing.T) {
	eng := &Engine{}

	result, err := eng.ExecuteCheck(t.Context(), "app", "update t set a = 1; insert into t values (2);")
	require.NoError(t, err)

	assert.Equal(t, models.SyntaxDML, result.SyntaxType)
	assert.Zero(t, result.ErrorCount)
	assert.Len(t, result.Review.Rows, 2)
}

func TestExecuteCheckDDLDominates(t *testing.T) {
	eng := &Engine{}

	result, err := eng.ExecuteCheck(t.Context(), "app", "update t set a = 1; alter table t add column b int;")
	require.NoError(t, err)

	assert.Equal(t, models.SyntaxDDL, result.SyntaxType)
}

func TestExecuteCheckRejectsReadStatements(t *testing.T) {
	eng := &Engine{}

	result, err := eng.ExecuteCheck(t.Context(), "app", "select * from t;")
	require.NoError(t, err)

	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, 1, result.Review.ErrorCount)
}

func TestExecuteCheckEmptySubmission(t *testing.T) {
	eng := &Engine{}

	_, err := eng.ExecuteCheck(t.Context(), "app", "-- nothing here\n")
	require.Error(t, err)
}

func TestQueryCheck(t *testing.T) {
	eng := &Engine{}

	t.Run("valid query", func(t *testing.T) {
		result, err := eng.QueryCheck(t.Context(), "app", "select id, name from t where id > 5")
		require.NoError(t, err)

		assert.False(t, result.BadQuery)
		assert.False(t, result.HasStar)
		assert.Equal(t, "select id, name from t where id > 5", result.FilteredSQL)
	})

	t.Run("star detected", func(t *testing.T) {
		result, err := eng.QueryCheck(t.Context(), "app", "select * from t")
		require.NoError(t, err)

		assert.False(t, result.BadQuery)
		assert.True(t, result.HasStar)
	})

	t.Run("write statement rejected", func(t *testing.T) {
		result, err := eng.QueryCheck(t.Context(), "app", "delete from t")
		require.NoError(t, err)

		assert.True(t, result.BadQuery)
	})

	t.Run("multiple statements rejected", func(t *testing.T) {
		result, err := eng.QueryCheck(t.Context(), "app", "select 1; select 2;")
		require.NoError(t, err)

		assert.True(t, result.BadQuery)
	})

	t.Run("empty submission rejected", func(t *testing.T) {
		result, err := eng.QueryCheck(t.Context(), "app", "   ")
		require.NoError(t, err)

		assert.True(t, result.BadQuery)
	})
}
