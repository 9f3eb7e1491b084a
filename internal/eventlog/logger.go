// Package eventlog provides unified event logging for the pipeline.
// It captures session lifecycle events (started, paused, stopped,
// cancelled), delivery attempts and fallback storage activity in a single
// JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionStarted   EventType = "session_started"
	SessionPaused    EventType = "session_paused"
	SessionResumed   EventType = "session_resumed"
	SessionStopped   EventType = "session_stopped"
	SessionCancelled EventType = "session_cancelled"
)

// Delivery event types.
const (
	DeliveryStarted   EventType = "delivery_started"
	DeliverySucceeded EventType = "delivery_succeeded"
	DeliveryFailed    EventType = "delivery_failed"
)

// Fallback storage event types.
const (
	FallbackCreated  EventType = "fallback_created"
	UploadQueued     EventType = "upload_queued"
	UploadCompleted  EventType = "upload_completed"
	UploadFailed     EventType = "upload_failed"
	UploadAbandoned  EventType = "upload_abandoned"
	CleanupCompleted EventType = "cleanup_completed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SessionDetails contains capture-session event details.
type SessionDetails struct {
	Platform        string `json:"platform,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	Reason          string `json:"reason,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	SizeBytes       int64  `json:"size_bytes,omitempty"`
}

// DeliveryDetails contains delivery-attempt event details.
type DeliveryDetails struct {
	Platform   string `json:"platform,omitempty"`
	Filename   string `json:"filename,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	Reason     string `json:"reason,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// FallbackDetails contains fallback storage event details.
type FallbackDetails struct {
	Filename     string `json:"filename,omitempty"`
	S3Key        string `json:"s3_key,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	Error        string `json:"error,omitempty"`
	RetryCount   int    `json:"retry,omitempty"`
	FilesDeleted int    `json:"files_deleted,omitempty"`
	StorageType  string `json:"storage_type,omitempty"` // "local" or "s3" for cleanup
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		// %PROGRAMDATA% is typically C:\ProgramData
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "voicenote", "logs", fmt.Sprintf("%d", port), "pipeline.jsonl")
	default: // linux, darwin
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/voicenote", fmt.Sprintf("%d", port), "pipeline.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// Open file for appending
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogSession logs a capture-session lifecycle event.
func (l *Logger) LogSession(eventType EventType, sessionID string, details *SessionDetails) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		SessionID: sessionID,
		Details:   details,
	})
}

// LogDelivery logs a delivery-attempt event.
func (l *Logger) LogDelivery(eventType EventType, sessionID string, details *DeliveryDetails) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		SessionID: sessionID,
		Details:   details,
	})
}

// LogFallback logs a fallback storage event.
func (l *Logger) LogFallback(eventType EventType, details *FallbackDetails) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll      TypeFilter = ""
	FilterSession  TypeFilter = "session"
	FilterDelivery TypeFilter = "delivery"
	FilterFallback TypeFilter = "fallback"
)

// MaxReadLimit is the maximum number of events that can be read at once.
// This prevents denial-of-service via excessive memory allocation.
const MaxReadLimit = 500

// matchesFilter reports whether an event type belongs to the filter group.
func matchesFilter(t EventType, filter TypeFilter) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterSession:
		return IsSessionEvent(t)
	case FilterDelivery:
		return IsDeliveryEvent(t)
	case FilterFallback:
		return IsFallbackEvent(t)
	default:
		return false
	}
}

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type.
// Events are returned in reverse chronological order (newest first).
// The n parameter is capped at MaxReadLimit to prevent excessive memory allocation.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	// Cap n to prevent excessive memory allocation (defense in depth)
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	// Read all lines
	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	// Parse events in reverse order (newest first), applying filter
	events := make([]Event, 0, n)
	skipped := 0
	scanned := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !matchesFilter(event.Type, filter) {
			continue
		}
		scanned = len(lines) - i

		// Skip events until we reach the offset
		if skipped < offset {
			skipped++
			continue
		}

		events = append(events, event)

		// Stop if we have enough events
		if len(events) >= n {
			break
		}
	}

	// Check if there are more events available
	hasMore := false
	if len(events) == n {
		// Continue scanning to see if there's at least one more event
		for i := len(lines) - 1 - scanned; i >= 0; i-- {
			var event Event
			if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
				continue
			}
			if !matchesFilter(event.Type, filter) {
				continue
			}
			hasMore = true
			break
		}
	}

	return events, hasMore, nil
}

// IsSessionEvent returns true if the event type is a session event.
func IsSessionEvent(t EventType) bool {
	return t == SessionStarted || t == SessionPaused || t == SessionResumed ||
		t == SessionStopped || t == SessionCancelled
}

// IsDeliveryEvent returns true if the event type is a delivery event.
func IsDeliveryEvent(t EventType) bool {
	return t == DeliveryStarted || t == DeliverySucceeded || t == DeliveryFailed
}

// IsFallbackEvent returns true if the event type is a fallback storage event.
func IsFallbackEvent(t EventType) bool {
	return t == FallbackCreated || t == UploadQueued || t == UploadCompleted ||
		t == UploadFailed || t == UploadAbandoned || t == CleanupCompleted
}
