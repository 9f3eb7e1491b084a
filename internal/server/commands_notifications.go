package server

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/talkform/voicenote-pipeline/internal/eventlog"
	"github.com/talkform/voicenote-pipeline/internal/notify"
)

// wsTestResult is the response for notification test commands.
type wsTestResult struct {
	Type     string `json:"type"`
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// wsEventsResult is the response for events/view.
type wsEventsResult struct {
	Type    string           `json:"type"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
	Events  []eventlog.Event `json:"events,omitempty"`
	HasMore bool             `json:"has_more"`
	Path    string           `json:"path,omitempty"`
}

// runTest dispatches to the appropriate notification test.
func (h *CommandHandler) runTest(testType string) error {
	snap := h.cfg.Snapshot()
	switch testType {
	case "webhook":
		if snap.WebhookURL == "" {
			return fmt.Errorf("webhook URL not configured")
		}
		return notify.SendTestWebhook(snap.WebhookURL)
	case "log":
		if snap.LogPath == "" {
			return fmt.Errorf("log file path not configured")
		}
		return notify.WriteTestLog(snap.LogPath)
	case "email":
		graph := snap.Graph
		return notify.SendTestEmail(&graph)
	default:
		return fmt.Errorf("unknown test type: %s", testType)
	}
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_webhook").
func (h *CommandHandler) handleTest(send chan<- any, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "command", testCmd, "panic", r)
			}
		}()

		result := wsTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := h.runTest(testType); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		// Send via channel (non-blocking to prevent goroutine leak if channel is closed)
		select {
		case send <- result:
		default:
			slog.Warn("failed to send test response: channel full or closed", "command", testCmd)
		}
	}()
}

// eventsViewRequest is the request body for events/view.
type eventsViewRequest struct {
	Filter string `json:"filter" validate:"omitempty,oneof=all session delivery fallback"`
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
}

// handleEventsView reads a page of the pipeline event log, newest first.
func (h *CommandHandler) handleEventsView(cmd WSCommand, send chan<- any) {
	var req eventsViewRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}
	filter := eventlog.TypeFilter(req.Filter)
	if req.Filter == "all" {
		filter = eventlog.FilterAll
	}
	if req.Limit == 0 {
		req.Limit = MaxEventEntries
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in events view handler", "panic", r)
			}
		}()

		result := wsEventsResult{
			Type:    "events_result",
			Success: true,
		}

		events, hasMore, err := eventlog.ReadLast(h.eventLogPath, req.Limit, req.Offset, filter)
		if err != nil {
			result.Success = false
			result.Error = err.Error()
		} else {
			result.Events = events
			result.HasMore = hasMore
			result.Path = h.eventLogPath
		}

		select {
		case send <- result:
		default:
			slog.Warn("failed to send events response: channel full or closed")
		}
	}()
}
