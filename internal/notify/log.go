package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/talkform/voicenote-pipeline/internal/util"
)

// LogEntry is one line in the external notification log. This log is the
// collaborator-facing record, distinct from the pipeline's own event log.
type LogEntry struct {
	Timestamp       string `json:"timestamp"`
	Event           string `json:"event"`
	SessionID       string `json:"session_id,omitempty"`
	Platform        string `json:"platform,omitempty"`
	Filename        string `json:"filename,omitempty"`
	SizeBytes       int64  `json:"size_bytes,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Message         string `json:"message,omitempty"`
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &LogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
		Message:   "This is a test entry from " + AppName,
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *LogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
