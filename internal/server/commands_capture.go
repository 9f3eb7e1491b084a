package server

import (
	"context"
	"errors"

	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/session"
	"github.com/talkform/voicenote-pipeline/internal/types"
)

// errNoFFmpeg is returned for capture commands when FFmpeg was not found.
var errNoFFmpeg = errors.New("capture unavailable: FFmpeg not found")

// errNoActiveSession is returned for controls with no session to act on.
var errNoActiveSession = errors.New("no active capture session")

// errSessionMismatch is returned when a control names a stale session.
var errSessionMismatch = errors.New("session_id does not match the active session")

// handleCaptureStart processes a capture/start command. Device acquisition
// can block on the permission prompt, so the action runs asynchronously.
func (h *CommandHandler) handleCaptureStart(cmd WSCommand, send chan<- any) {
	var req CaptureStartRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		if !h.ffmpegAvailable {
			return nil, errNoFFmpeg
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

		s, err := h.manager.Start(context.Background(), sig, identity)
		if err != nil {
			return nil, err
		}
		return s.Status(), nil
	})
}

// activeSession resolves the session a control command targets.
func (h *CommandHandler) activeSession(req *CaptureControlRequest) (*session.Session, error) {
	s := h.manager.Active()
	if s == nil {
		return nil, errNoActiveSession
	}
	if req.SessionID != "" && req.SessionID != s.ID() {
		return nil, errSessionMismatch
	}
	return s, nil
}

// handleCaptureControl processes pause, resume, stop, and cancel commands.
// These transitions complete without blocking on I/O.
func (h *CommandHandler) handleCaptureControl(cmd WSCommand, send chan<- any, op func(*session.Session) error) {
	HandleCommand(cmd, send, func(req *CaptureControlRequest) error {
		s, err := h.activeSession(req)
		if err != nil {
			return err
		}
		return op(s)
	})
}

// handleCaptureConfirm processes a capture/confirm command. The delivery
// attempt is a network call, so it runs asynchronously; the result carries
// the outcome and, on failure, the reason code.
func (h *CommandHandler) handleCaptureConfirm(cmd WSCommand, send chan<- any) {
	var req CaptureControlRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		s, err := h.activeSession(&req)
		if err != nil {
			return nil, err
		}

		delivered, reason, err := s.ConfirmSend(context.Background())
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"delivered": delivered,
			"reason":    reason,
		}, nil
	})
}

// handleCaptureRestart processes a capture/restart command: the current
// session is discarded and a new one begins with the same profile.
func (h *CommandHandler) handleCaptureRestart(cmd WSCommand, send chan<- any) {
	var req CaptureControlRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		if !h.ffmpegAvailable {
			return nil, errNoFFmpeg
		}

		s, err := h.manager.Restart(context.Background())
		if err != nil {
			return nil, err
		}
		return s.Status(), nil
	})
}

// handleCaptureGet sends the active session snapshot, or null when idle.
func (h *CommandHandler) handleCaptureGet(send chan<- any) {
	if s := h.manager.Active(); s != nil {
		SendSuccess(send, "capture/get", s.Status())
		return
	}
	SendSuccess(send, "capture/get", nil)
}
