package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "QueryTaskabc-1700000000.csv", FileName("abc", at))
}

func TestWriteResult(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	at := time.Unix(1700000000, 0)
	path, err := writer.WriteResult("order-1", at,
		[]string{"id", "name", "active"},
		[][]any{
			{int64(1), "alice", true},
			{int64(2), []byte("bob"), false},
			{int64(3), nil, true},
		})
	require.NoError(t, err)

	assert.Equal(t, "QueryTaskorder-1-1700000000.csv", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t,
		"id,name,active\n1,alice,true\n2,bob,false\n3,,true\n",
		string(raw))
}

func TestWriteResultEmptyRows(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	path, err := writer.WriteResult("order-2", time.Now(), []string{"count"}, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "count\n", string(raw))
}
