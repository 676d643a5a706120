// Package history keeps the append-only per-server record of player counts
// used by the trend graph. The format round-trips with the UI's CSV export:
// one header row on creation, then RFC 3339 UTC timestamp, count, map and
// the comma-joined player names (or "None").
package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	FileName = "player_log.csv"

	emptyRosterSentinel = "None"
)

var header = []string{"UTC Timestamp", "Player Count", "Map", "Players Online"}

// Row is one parsed history record.
type Row struct {
	Timestamp   time.Time `json:"timestamp"`
	PlayerCount int       `json:"player_count"`
	MapName     string    `json:"map_name"`
	Players     string    `json:"players"`
}

// Log appends to and reads back one server's history file.
type Log struct {
	path string
}

// Open ensures the log directory and file exist, writing the header row
// once on creation.
func Open(dir string) (*Log, error) {
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

// Append writes one record. Player names are comma-joined; an empty roster
// writes the sentinel instead.
func (l *Log) Append(timestamp time.Time, playerCount int, mapName string, playerNames []string) error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	players := emptyRosterSentinel
	if len(playerNames) > 0 {
		players = strings.Join(playerNames, ", ")
	}

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		timestamp.UTC().Format(time.RFC3339),
		strconv.Itoa(playerCount),
		mapName,
		players,
	}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// Window reads back every record newer than now minus the window. Rows that
// fail to parse are skipped, matching the tolerant reader the UI ships.
func (l *Log) Window(window time.Duration, now time.Time) ([]Row, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	cutoff := now.UTC().Add(-window)
	rows := make([]Row, 0, len(records))
	for i, record := range records {
		if i == 0 || len(record) < 4 {
			continue
		}
		timestamp, parseErr := parseTimestamp(record[0])
		if parseErr != nil {
			continue
		}
		count, parseErr := strconv.Atoi(record[1])
		if parseErr != nil {
			continue
		}
		if timestamp.Before(cutoff) {
			continue
		}
		rows = append(rows, Row{
			Timestamp:   timestamp,
			PlayerCount: count,
			MapName:     record[2],
			Players:     record[3],
		})
	}
	return rows, nil
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if timestamp, err := time.Parse(layout, value); err == nil {
			return timestamp, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
