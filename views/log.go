package views

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const FileName = "views_log.csv"

var header = []string{"UTC Timestamp", "View ID", "View Timestamp"}

// Log appends received views to the views CSV, one row per view: the UTC
// receive time, the feed's view id and the feed's own timestamp.
type Log struct {
	path string
}

// OpenLog ensures the log directory and file exist, writing the header row
// once on creation.
func OpenLog(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		file, createErr := os.Create(path)
		if createErr != nil {
			return nil, createErr
		}
		writer := csv.NewWriter(file)
		if writeErr := writer.Write(header); writeErr != nil {
			file.Close()
			return nil, writeErr
		}
		writer.Flush()
		if closeErr := file.Close(); closeErr != nil {
			return nil, closeErr
		}
	}

	return &Log{path: path}, nil
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one view row.
func (l *Log) Append(receivedAt time.Time, viewID int64, viewTimestamp float64) error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		receivedAt.UTC().Format(time.RFC3339),
		strconv.FormatInt(viewID, 10),
		strconv.FormatFloat(viewTimestamp, 'f', -1, 64),
	}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
