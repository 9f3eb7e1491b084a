package notify

import (
	"log/slog"
	"sync"

	"github.com/talkform/voicenote-pipeline/internal/types"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// Settings are the live notification settings. A fresh value is read for
// every event so runtime configuration changes take effect immediately.
type Settings struct {
	WebhookURL string
	LogPath    string
	Graph      GraphConfig
}

// HasWebhook reports whether a webhook endpoint is configured.
func (s Settings) HasWebhook() bool { return util.IsConfigured(s.WebhookURL) }

// HasLogPath reports whether a notification log file is configured.
func (s Settings) HasLogPath() bool { return util.IsConfigured(s.LogPath) }

// HasGraph reports whether email alerts are configured.
func (s Settings) HasGraph() bool { return IsConfigured(&s.Graph) }

// Notifier fans pipeline events out to all configured channels. Channel
// sends run in their own goroutines; a slow webhook never delays the
// pipeline.
type Notifier struct {
	settings func() Settings

	// mu protects the cached Graph client
	mu          sync.Mutex
	graphClient *GraphClient
}

// NewNotifier returns a notifier reading live settings from the given
// source.
func NewNotifier(settings func() Settings) *Notifier {
	return &Notifier{settings: settings}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *Notifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *Notifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// SessionChanged announces a capture session transition.
func (n *Notifier) SessionChanged(event, sessionID string, durationSeconds int64, reason string) {
	cfg := n.settings()

	if cfg.HasWebhook() {
		go logNotifyResult(func() error {
			return sendWebhook(cfg.WebhookURL, &WebhookPayload{
				Event:           event,
				SessionID:       sessionID,
				DurationSeconds: durationSeconds,
				Reason:          reason,
				Timestamp:       timestampUTC(),
			})
		}, "Session webhook")
	}
	if cfg.HasLogPath() {
		go logNotifyResult(func() error {
			return appendLogEntry(cfg.LogPath, &LogEntry{
				Timestamp:       timestampUTC(),
				Event:           event,
				SessionID:       sessionID,
				DurationSeconds: durationSeconds,
				Reason:          reason,
			})
		}, "Session log")
	}
}

// DeliveryStarted announces the start of a delivery attempt.
func (n *Notifier) DeliveryStarted(artifact *types.Artifact) {
	slog.Debug("delivery attempt started",
		"platform", artifact.Platform, "size_bytes", artifact.SizeBytes)

	cfg := n.settings()

	if cfg.HasWebhook() {
		go logNotifyResult(func() error {
			return sendWebhook(cfg.WebhookURL, &WebhookPayload{
				Event:           "delivery_started",
				Platform:        artifact.Platform,
				SizeBytes:       artifact.SizeBytes,
				DurationSeconds: int64(artifact.DurationSeconds),
				Timestamp:       timestampUTC(),
			})
		}, "Delivery webhook")
	}
	if cfg.HasLogPath() {
		go logNotifyResult(func() error {
			return appendLogEntry(cfg.LogPath, &LogEntry{
				Timestamp: timestampUTC(),
				Event:     "delivery_started",
				Platform:  artifact.Platform,
				SizeBytes: artifact.SizeBytes,
			})
		}, "Delivery log")
	}
}

// DeliverySucceeded announces a successful delivery.
func (n *Notifier) DeliverySucceeded(artifact *types.Artifact, statusCode int) {
	cfg := n.settings()

	if cfg.HasWebhook() {
		go logNotifyResult(func() error {
			return sendWebhook(cfg.WebhookURL, &WebhookPayload{
				Event:           "delivery_succeeded",
				Platform:        artifact.Platform,
				SizeBytes:       artifact.SizeBytes,
				DurationSeconds: int64(artifact.DurationSeconds),
				Timestamp:       timestampUTC(),
			})
		}, "Delivery webhook")
	}
	if cfg.HasLogPath() {
		go logNotifyResult(func() error {
			return appendLogEntry(cfg.LogPath, &LogEntry{
				Timestamp: timestampUTC(),
				Event:     "delivery_succeeded",
				Platform:  artifact.Platform,
				SizeBytes: artifact.SizeBytes,
			})
		}, "Delivery log")
	}
}

// DeliveryFailed announces a failed delivery with its reason code.
func (n *Notifier) DeliveryFailed(artifact *types.Artifact, reason string) {
	cfg := n.settings()

	if cfg.HasWebhook() {
		go logNotifyResult(func() error {
			return sendWebhook(cfg.WebhookURL, &WebhookPayload{
				Event:           "delivery_failed",
				Platform:        artifact.Platform,
				SizeBytes:       artifact.SizeBytes,
				DurationSeconds: int64(artifact.DurationSeconds),
				Reason:          reason,
				Timestamp:       timestampUTC(),
			})
		}, "Failure webhook")
	}
	if cfg.HasLogPath() {
		go logNotifyResult(func() error {
			return appendLogEntry(cfg.LogPath, &LogEntry{
				Timestamp: timestampUTC(),
				Event:     "delivery_failed",
				Platform:  artifact.Platform,
				SizeBytes: artifact.SizeBytes,
				Reason:    reason,
			})
		}, "Failure log")
	}
	if cfg.HasGraph() {
		go n.sendDeliveryFailedEmail(cfg, artifact, reason)
	}
}

// FallbackCreated announces a locally persisted copy of an undelivered
// note, attaching the audio when it fits in an email.
func (n *Notifier) FallbackCreated(fb types.FallbackArtifact) {
	cfg := n.settings()

	if cfg.HasWebhook() {
		go logNotifyResult(func() error {
			return sendWebhook(cfg.WebhookURL, &WebhookPayload{
				Event:     "fallback_created",
				Filename:  fb.Filename,
				SizeBytes: fb.SizeBytes,
				Timestamp: timestampUTC(),
			})
		}, "Fallback webhook")
	}
	if cfg.HasLogPath() {
		go logNotifyResult(func() error {
			return appendLogEntry(cfg.LogPath, &LogEntry{
				Timestamp: timestampUTC(),
				Event:     "fallback_created",
				Filename:  fb.Filename,
				SizeBytes: fb.SizeBytes,
			})
		}, "Fallback log")
	}
	if cfg.HasGraph() {
		go n.sendFallbackEmail(cfg, fb)
	}
}
