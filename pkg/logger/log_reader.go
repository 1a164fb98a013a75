package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogEntry represents a parsed log entry
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Category  string                 `json:"category"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogReader reads categorised logs and tool transcripts back
type LogReader struct {
	logsDir string
}

// NewLogReader creates a new log reader
func NewLogReader(logsDir string) *LogReader {
	return &LogReader{
		logsDir: logsDir,
	}
}

// GetLogPath returns the path to a category log file for a specific date
func (lr *LogReader) GetLogPath(category LogCategory, date time.Time) string {
	return filepath.Join(lr.logsDir, fmt.Sprintf("%s-%s.log", category, date.Format("20060102")))
}

// ReadLogs returns the last limit entries of a JSON category log, filtered by
// id when it is not empty
func (lr *LogReader) ReadLogs(category LogCategory, date time.Time, id string, limit int) ([]LogEntry, error) {
	file, err := os.Open(lr.GetLogPath(category, date))
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	entries := []LogEntry{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry := parseEntry(line, category)
		if id != "" && entry.Fields["id"] != id {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func parseEntry(line string, category LogCategory) LogEntry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     "info",
			Message:   line,
			Category:  string(category),
		}
	}

	entry := LogEntry{Category: string(category), Fields: map[string]interface{}{}}
	for k, v := range raw {
		switch k {
		case "ts":
			entry.Timestamp = fmt.Sprint(v)
		case "level":
			entry.Level = fmt.Sprint(v)
		case "msg":
			entry.Message = fmt.Sprint(v)
		default:
			entry.Fields[k] = v
		}
	}
	return entry
}

// ReadTranscript returns every tool transcript block recorded for a
// correlation id on the given date, in attempt order
func (lr *LogReader) ReadTranscript(correlationID string, date time.Time) (string, error) {
	file, err := os.Open(lr.GetLogPath(CategoryTool, date))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer file.Close()

	marker := fmt.Sprintf("] Fetch: %s attempt ", correlationID)
	var out strings.Builder
	inBlock := false

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "=== [") && strings.Contains(line, marker) {
			inBlock = true
		}
		if !inBlock {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
		if line == transcriptEnd {
			inBlock = false
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return out.String(), nil
}
