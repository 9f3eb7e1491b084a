package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/talkform/voicenote-pipeline/internal/config"
	"github.com/talkform/voicenote-pipeline/internal/fallback"
	"github.com/talkform/voicenote-pipeline/internal/session"
)

// MaxEventEntries is the maximum event log entries returned per page.
const MaxEventEntries = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg             *config.Config
	manager         *session.Manager
	store           *fallback.Store
	sweeper         *fallback.Sweeper
	eventLogPath    string
	ffmpegAvailable bool
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, manager *session.Manager, store *fallback.Store, sweeper *fallback.Sweeper, eventLogPath string, ffmpegAvailable bool) *CommandHandler {
	return &CommandHandler{
		cfg:             cfg,
		manager:         manager,
		store:           store,
		sweeper:         sweeper,
		eventLogPath:    eventLogPath,
		ffmpegAvailable: ffmpegAvailable,
	}
}

// EventLogPath returns the path of the pipeline event log.
func (h *CommandHandler) EventLogPath() string {
	return h.eventLogPath
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "capture/start",
// "notifications/webhook/update")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "capture":
		h.handleCapture(action, cmd, send)
	case "audio":
		h.handleAudio(action, cmd, send)
	case "delivery":
		h.handleDelivery(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "fallback":
		h.handleFallback(action, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleCapture routes capture/* commands
func (h *CommandHandler) handleCapture(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		h.handleCaptureStart(cmd, send)
	case "pause":
		h.handleCaptureControl(cmd, send, (*session.Session).Pause)
	case "resume":
		h.handleCaptureControl(cmd, send, (*session.Session).Resume)
	case "stop":
		h.handleCaptureControl(cmd, send, (*session.Session).Stop)
	case "cancel":
		h.handleCaptureControl(cmd, send, (*session.Session).Cancel)
	case "confirm":
		h.handleCaptureConfirm(cmd, send)
	case "restart":
		h.handleCaptureRestart(cmd, send)
	case "get":
		h.handleCaptureGet(send)
	default:
		slog.Warn("unknown capture action", "action", action)
	}
}

// handleAudio routes audio/* commands
func (h *CommandHandler) handleAudio(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleAudioUpdate(cmd, send)
	case "get":
		h.handleAudioGet(send)
	default:
		slog.Warn("unknown audio action", "action", action)
	}
}

// handleDelivery routes delivery/* commands
func (h *CommandHandler) handleDelivery(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleDeliveryUpdate(cmd, send)
	case "get":
		h.handleDeliveryGet(send)
	case "regenerate-key":
		h.handleRegenerateAPIKey(send)
	default:
		slog.Warn("unknown delivery action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_webhook")
		case "get":
			h.handleWebhookGet(send)
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			h.handleLogUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_log")
		case "get":
			h.handleLogGet(send)
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	case "email":
		switch subaction {
		case "update":
			h.handleEmailUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_email")
		case "get":
			h.handleEmailGet(send)
		default:
			slog.Warn("unknown email action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleFallback routes fallback/* commands
func (h *CommandHandler) handleFallback(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "list":
		h.handleFallbackList(send)
	case "delete":
		h.handleFallbackDelete(cmd, send)
	case "sweep":
		h.handleFallbackSweep(cmd, send)
	case "test-s3":
		h.handleFallbackTestS3(cmd, send)
	default:
		slog.Warn("unknown fallback action", "action", action)
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "view":
		h.handleEventsView(cmd, send)
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
