// Package artifact writes query result files for finished query orders.
package artifact

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Writer stores query result sets as CSV files under a base directory.
type Writer struct {
	baseDir string
}

// NewWriter creates a writer rooted at baseDir, creating the directory if
// needed.
func NewWriter(baseDir string) (*Writer, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &Writer{baseDir: baseDir}, nil
}

// FileName derives the artifact name for one run of a query order,
// "QueryTask<orderID>-<unix timestamp>.csv".
func FileName(orderID string, at time.Time) string {
	return "QueryTask" + orderID + "-" + strconv.FormatInt(at.Unix(), 10) + ".csv"
}

// WriteResult writes the column header and rows to a new CSV file and
// returns its path. Non-string cells are rendered with their default
// formatting.
func (w *Writer) WriteResult(orderID string, at time.Time, columns []string, rows [][]any) (string, error) {
	path := filepath.Join(w.baseDir, FileName(orderID, at))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}

	writer := csv.NewWriter(file)

	if err := writer.Write(columns); err != nil {
		_ = file.Close()

		return "", fmt.Errorf("failed to write artifact header: %w", err)
	}

	record := make([]string, len(columns))

	for _, row := range rows {
		for i := range record {
			record[i] = ""

			if i < len(row) && row[i] != nil {
				record[i] = formatCell(row[i])
			}
		}

		if err := writer.Write(record); err != nil {
			_ = file.Close()

			return "", fmt.Errorf("failed to write artifact row: %w", err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		_ = file.Close()

		return "", fmt.Errorf("failed to flush artifact: %w", err)
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact file: %w", err)
	}

	return path, nil
}

func formatCell(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	case time.Time:
		return value.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", value)
	}
}
