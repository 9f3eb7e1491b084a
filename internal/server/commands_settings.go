package server

import (
	"log/slog"

	"github.com/talkform/voicenote-pipeline/internal/audio"
	"github.com/talkform/voicenote-pipeline/internal/config"
	"github.com/talkform/voicenote-pipeline/internal/notify"
)

// --- Audio handlers ---

// handleAudioUpdate processes an audio/update command. The new input takes
// effect for the next capture session; a running session keeps the device
// it acquired.
func (h *CommandHandler) handleAudioUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *AudioUpdateRequest) error {
		if req.Input == "" {
			return nil // No change requested
		}

		slog.Info("audio/update: changing audio input", "input", req.Input)
		return h.cfg.SetAudioInput(req.Input)
	})
}

// handleAudioGet sends the audio input setting and the available devices.
func (h *CommandHandler) handleAudioGet(send chan<- any) {
	SendSuccess(send, "audio/get", map[string]any{
		"input":   h.cfg.AudioInput(),
		"devices": audio.Devices(),
	})
}

// --- Delivery handlers ---

// handleDeliveryUpdate processes a delivery/update command.
func (h *CommandHandler) handleDeliveryUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *DeliveryUpdateRequest) error {
		if req.Endpoint != "" {
			if err := h.cfg.SetDeliveryEndpoint(req.Endpoint); err != nil {
				return err
			}
		}
		if req.TimeoutSeconds != nil {
			if err := h.cfg.SetDeliveryTimeout(*req.TimeoutSeconds); err != nil {
				return err
			}
		}
		if req.Signature != "" {
			if err := h.cfg.SetDeliverySignature(req.Signature); err != nil {
				return err
			}
		}
		return nil
	})
}

// handleDeliveryGet sends the delivery settings, secret omitted.
func (h *CommandHandler) handleDeliveryGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "delivery/get", map[string]any{
		"endpoint":        snap.DeliveryEndpoint,
		"timeout_seconds": int(snap.DeliveryTimeout.Seconds()),
		"has_signature":   snap.DeliverySignature != "",
	})
}

// handleRegenerateAPIKey processes a delivery/regenerate-key command.
func (h *CommandHandler) handleRegenerateAPIKey(send chan<- any) {
	HandleActionAsync(WSCommand{Type: "delivery/regenerate-key"}, send, func() (any, error) {
		newKey, err := config.GenerateAPIKey()
		if err != nil {
			return nil, err
		}

		if err := h.cfg.SetAPIKey(newKey); err != nil {
			return nil, err
		}

		slog.Info("API key regenerated")

		return map[string]string{"api_key": newKey}, nil
	})
}

// --- Notification handlers ---

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleWebhookGet sends the webhook notification settings.
func (h *CommandHandler) handleWebhookGet(send chan<- any) {
	SendSuccess(send, "notifications/webhook/get", map[string]string{
		"url": h.cfg.Snapshot().WebhookURL,
	})
}

// handleLogUpdate processes a notifications/log/update command.
func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *LogUpdateRequest) error {
		return h.cfg.SetLogPath(req.Path)
	})
}

// handleLogGet sends the notification log settings.
func (h *CommandHandler) handleLogGet(send chan<- any) {
	SendSuccess(send, "notifications/log/get", map[string]string{
		"path": h.cfg.Snapshot().LogPath,
	})
}

// handleEmailUpdate processes a notifications/email/update command.
func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *EmailUpdateRequest) error {
		return h.cfg.SetGraphConfig(notify.GraphConfig{
			TenantID:     req.TenantID,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			FromAddress:  req.FromAddress,
			Recipients:   req.Recipients,
		})
	})
}

// handleEmailGet sends the email notification settings, secret omitted.
func (h *CommandHandler) handleEmailGet(send chan<- any) {
	graph := h.cfg.GraphConfig()
	SendSuccess(send, "notifications/email/get", map[string]any{
		"tenant_id":    graph.TenantID,
		"client_id":    graph.ClientID,
		"has_secret":   graph.ClientSecret != "",
		"from_address": graph.FromAddress,
		"recipients":   graph.Recipients,
	})
}

// --- Config ---

// handleConfigGet sends a combined settings view for the control surface.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "config/get", map[string]any{
		"audio_input":     snap.AudioInput,
		"devices":         audio.Devices(),
		"endpoint":        snap.DeliveryEndpoint,
		"timeout_seconds": int(snap.DeliveryTimeout.Seconds()),
		"has_signature":   snap.DeliverySignature != "",
		"fallback_dir":    snap.FallbackDir,
		"retention_days":  snap.RetentionDays,
		"s3_configured":   snap.HasS3(),
		"webhook_url":     snap.WebhookURL,
		"log_path":        snap.LogPath,
		"email": map[string]any{
			"tenant_id":    snap.Graph.TenantID,
			"client_id":    snap.Graph.ClientID,
			"has_secret":   snap.Graph.ClientSecret != "",
			"from_address": snap.Graph.FromAddress,
			"recipients":   snap.Graph.Recipients,
		},
		"api_key": snap.APIKey,
	})
}
