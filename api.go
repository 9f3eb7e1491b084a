package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"runtime"
	"strconv"
	"strings"

	"github.com/talkform/voicenote-pipeline/internal/audio"
	"github.com/talkform/voicenote-pipeline/internal/eventlog"
	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/server"
	"github.com/talkform/voicenote-pipeline/internal/session"
	"github.com/talkform/voicenote-pipeline/internal/types"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// parseAndValidate reads, parses, and validates a JSON request body. An
// empty body is accepted and yields the zero value.
func parseAndValidate[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if r.Body != nil && r.ContentLength != 0 {
		if err := s.readJSON(r, &v); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
			return v, false
		}
	}
	if err := server.ValidateStruct(&v); err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr})
			return v, false
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return v, false
	}
	return v, true
}

// sessionErrorStatus maps a session error to an HTTP status code.
func sessionErrorStatus(err error) int {
	var capErr *session.CapabilityError
	switch {
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	case errors.As(err, &capErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleAPIStatus returns the full status snapshot.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleAPIConfig returns the control surface configuration view.
// GET /api/config
func (s *Server) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"audio_input":     cfg.AudioInput,
		"devices":         audio.Devices(),
		"host_platform":   runtime.GOOS,
		"endpoint":        cfg.DeliveryEndpoint,
		"timeout_seconds": int(cfg.DeliveryTimeout.Seconds()),
		"has_signature":   cfg.DeliverySignature != "",
		"fallback_dir":    cfg.FallbackDir,
		"retention_days":  cfg.RetentionDays,
		"s3_configured":   cfg.HasS3(),
		"webhook_url":     cfg.WebhookURL,
		"log_path":        cfg.LogPath,
		"email": map[string]any{
			"tenant_id":    cfg.Graph.TenantID,
			"client_id":    cfg.Graph.ClientID,
			"has_secret":   cfg.Graph.ClientSecret != "",
			"from_address": cfg.Graph.FromAddress,
			"recipients":   cfg.Graph.Recipients,
		},
		"api_key": cfg.APIKey,
	})
}

// handleAPIDevices returns available audio input devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"devices": audio.Devices()})
}

// handleAPIEvents returns a page of the pipeline event log, newest first.
// GET /api/events?filter=&limit=&offset=
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	limit := server.MaxEventEntries
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > eventlog.MaxReadLimit {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	var filter eventlog.TypeFilter
	switch q.Get("filter") {
	case "", "all":
		filter = eventlog.FilterAll
	case "session":
		filter = eventlog.FilterSession
	case "delivery":
		filter = eventlog.FilterDelivery
	case "fallback":
		filter = eventlog.FilterFallback
	default:
		s.writeError(w, http.StatusBadRequest, "invalid filter")
		return
	}

	events, hasMore, err := eventlog.ReadLast(s.commands.EventLogPath(), limit, offset, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"has_more": hasMore,
	})
}

// handleAPIFallback lists locally persisted fallback recordings.
// GET /api/fallback
func (s *Server) handleAPIFallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	artifacts, err := s.store.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

// handleAPIFallbackItem downloads or deletes one fallback recording.
// GET /api/fallback/{filename}
// DELETE /api/fallback/{filename}
func (s *Server) handleAPIFallbackItem(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/api/fallback/")
	if filename == "" || strings.Contains(filename, "/") {
		s.writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, err := s.store.Open(filename)
		if err != nil {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}

		contentType := mime.TypeByExtension(path.Ext(filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		if _, err := w.Write(data); err != nil {
			slog.Error("failed to write fallback download", "file", filename, "error", err)
		}
	case http.MethodDelete:
		if err := s.store.Remove(filename); err != nil {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": filename})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// --- Capture API (API key auth) ---

// handleCaptureAPI routes /api/capture/* requests from the embedding
// application.
func (s *Server) handleCaptureAPI(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/capture/")

	if action == "status" {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.captureStatusAPI(w)
		return
	}

	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch action {
	case "start":
		s.startCaptureAPI(w, r)
	case "pause":
		s.controlCaptureAPI(w, r, "paused", (*session.Session).Pause)
	case "resume":
		s.controlCaptureAPI(w, r, "recording", (*session.Session).Resume)
	case "stop":
		s.controlCaptureAPI(w, r, "stopping", (*session.Session).Stop)
	case "cancel":
		s.controlCaptureAPI(w, r, "cancelled", (*session.Session).Cancel)
	case "confirm":
		s.confirmCaptureAPI(w, r)
	case "restart":
		s.restartCaptureAPI(w, r)
	default:
		s.writeError(w, http.StatusNotFound, "unknown capture action")
	}
}

// captureStatusAPI returns the active session snapshot, or null when idle.
func (s *Server) captureStatusAPI(w http.ResponseWriter) {
	if active := s.manager.Active(); active != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"session": active.Status()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session": nil})
}

// startCaptureAPI profiles the declared environment and begins a session.
func (s *Server) startCaptureAPI(w http.ResponseWriter, r *http.Request) {
	if !s.ffmpegAvailable {
		s.writeError(w, http.StatusServiceUnavailable, "capture unavailable: FFmpeg not found")
		return
	}

	req, ok := parseAndValidate[server.CaptureStartRequest](s, w, r)
	if !ok {
		return
	}

	sig := platform.Signals{
		UserAgent:      req.UserAgent,
		HasTouch:       req.HasTouch,
		MaxTouchPoints: req.MaxTouchPoints,
		ViewportWidth:  req.ViewportWidth,
	}
	identity := types.Identity{
		UserID:    req.UserID,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Company:   req.Company,
	}

	sess, err := s.manager.Start(r.Context(), sig, identity)
	if err != nil {
		s.writeError(w, sessionErrorStatus(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"session": sess.Status()})
}

// resolveSession finds the session a control request targets.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) *session.Session {
	req, ok := parseAndValidate[server.CaptureControlRequest](s, w, r)
	if !ok {
		return nil
	}

	active := s.manager.Active()
	if active == nil {
		s.writeError(w, http.StatusConflict, "no active capture session")
		return nil
	}
	if req.SessionID != "" && req.SessionID != active.ID() {
		s.writeError(w, http.StatusConflict, "session_id does not match the active session")
		return nil
	}
	return active
}

// controlCaptureAPI applies a non-blocking transition to the active session.
func (s *Server) controlCaptureAPI(w http.ResponseWriter, r *http.Request, status string, op func(*session.Session) error) {
	sess := s.resolveSession(w, r)
	if sess == nil {
		return
	}

	if err := op(sess); err != nil {
		s.writeError(w, sessionErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status, "session_id": sess.ID()})
}

// confirmCaptureAPI hands the assembled artifact to delivery. The response
// is written after the single delivery attempt completes.
func (s *Server) confirmCaptureAPI(w http.ResponseWriter, r *http.Request) {
	sess := s.resolveSession(w, r)
	if sess == nil {
		return
	}

	delivered, reason, err := sess.ConfirmSend(r.Context())
	if err != nil {
		s.writeError(w, sessionErrorStatus(err), err.Error())
		return
	}

	if !delivered {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"delivered": false,
			"reason":    reason,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"delivered": true})
}

// restartCaptureAPI discards the current session and begins a fresh one
// with the same profile and identity.
func (s *Server) restartCaptureAPI(w http.ResponseWriter, r *http.Request) {
	if !s.ffmpegAvailable {
		s.writeError(w, http.StatusServiceUnavailable, "capture unavailable: FFmpeg not found")
		return
	}

	sess, err := s.manager.Restart(r.Context())
	if err != nil {
		s.writeError(w, sessionErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session": sess.Status()})
}
