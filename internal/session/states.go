// Package session owns the lifecycle of one recording attempt: it acquires
// the input device, drives the encoder, accumulates chunks, and exposes
// pause/resume/stop/cancel. The session is the single writer of its own
// state; encoder callbacks are fed in as events.
package session

import "errors"

// State is the capture session lifecycle state.
type State string

// Session states.
const (
	// StateIdle indicates no capture attempt is underway.
	StateIdle State = "idle"
	// StateRequesting indicates device access is being acquired.
	StateRequesting State = "requesting"
	// StateRecording indicates audio is being captured and encoded.
	StateRecording State = "recording"
	// StatePaused indicates capture is suspended without releasing the device.
	StatePaused State = "paused"
	// StateStopped indicates the encoder is flushing and finalizing.
	StateStopped State = "stopped"
	// StateAwaitingConfirmation indicates an assembled artifact awaits the
	// user's decision to send, restart, or discard.
	StateAwaitingConfirmation State = "awaiting_confirmation"
	// StateSending indicates the artifact has been handed to delivery.
	StateSending State = "sending"
	// StateDelivered indicates the artifact reached the endpoint.
	StateDelivered State = "delivered"
	// StateDeliveryFailed indicates delivery failed; a fallback copy exists.
	StateDeliveryFailed State = "delivery_failed"
	// StateCancelled indicates the session was discarded before delivery.
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transitions are accepted.
func (s State) IsTerminal() bool {
	return s == StateDelivered || s == StateDeliveryFailed || s == StateCancelled
}

// Sentinel errors for session operations.
var (
	// ErrSessionActive is returned when starting a session while another is
	// active. Concurrent starts are rejected, not queued.
	ErrSessionActive = errors.New("a capture session is already active")

	// ErrInvalidState is returned for an operation the current state does
	// not accept.
	ErrInvalidState = errors.New("operation not valid in current session state")

	// ErrEmptyRecording is returned when finalize produced zero usable
	// chunks. The device and encoder behaved correctly but yielded no
	// content, so this is distinct from an encoding error.
	ErrEmptyRecording = errors.New("recording produced no audio data")
)

// CapabilityError wraps a device acquisition failure (permission denied,
// device unavailable). It is surfaced to the user immediately and the
// session returns to idle; no retry is attempted automatically.
type CapabilityError struct {
	Err error
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	return "audio input unavailable: " + e.Err.Error()
}

// Unwrap returns the underlying device error.
func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// EncodingError wraps an internal encoder fault. It is fatal to the current
// session: the session is discarded, the device released, and the user
// invited to restart.
type EncodingError struct {
	Err error
	// Diagnostic carries the encoder's diagnostic context, if any.
	Diagnostic string
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	if e.Diagnostic != "" {
		return "encoder fault: " + e.Err.Error() + " (" + e.Diagnostic + ")"
	}
	return "encoder fault: " + e.Err.Error()
}

// Unwrap returns the underlying encoder error.
func (e *EncodingError) Unwrap() error {
	return e.Err
}
