package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/codec"
	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/types"
)

// Event describes one state transition of a capture session.
type Event struct {
	SessionID      string `json:"session_id"`
	From           State  `json:"from"`
	To             State  `json:"to"`
	Reason         string `json:"reason,omitempty"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

// EventSink receives session transition events. Sinks are invoked outside
// the session lock and may call back into Status.
type EventSink func(Event)

// Session is the mutable aggregate for one recording attempt. All state is
// guarded by mu; transitions are serialized and re-entrant pause/resume
// calls are idempotent no-ops.
type Session struct {
	mu sync.Mutex

	id         string
	identity   types.Identity
	userAgent  string
	class      platform.Class
	captureCfg platform.CaptureConfig
	choice     codec.Choice
	original   string
	tuning     codec.Tuning

	state    State
	device   Device
	released bool
	encoder  Encoder
	asm      Assembler
	artifact *types.Artifact
	lastErr  string

	// Elapsed time bookkeeping: accumulated holds recorded time up to the
	// last pause; anchor marks the start of the current recording stretch.
	anchor      time.Time
	accumulated time.Duration
	startedAt   time.Time

	clock     func() time.Time
	factory   EncoderFactory
	deliverer Deliverer
	onEvent   EventSink
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Platform returns the immutable platform class profiled at session start.
func (s *Session) Platform() platform.Class {
	return s.class
}

// Codec returns the negotiated codec choice.
func (s *Session) Codec() codec.Choice {
	return s.choice
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status is a point-in-time snapshot for the control surface.
type Status struct {
	ID              string         `json:"id"`
	State           State          `json:"state"`
	Platform        platform.Class `json:"platform"`
	Codec           codec.Choice   `json:"codec"`
	ElapsedSeconds  int64          `json:"elapsed_seconds"`
	ChunkCount      int            `json:"chunk_count"`
	DroppedChunks   int            `json:"dropped_chunks"`
	BufferedBytes   int64          `json:"buffered_bytes"`
	Error           string         `json:"error,omitempty"`
	ArtifactSize    int64          `json:"artifact_size,omitempty"`
	ArtifactSeconds float64        `json:"artifact_seconds,omitempty"`
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:             s.id,
		State:          s.state,
		Platform:       s.class,
		Codec:          s.choice,
		ElapsedSeconds: int64(s.elapsedLocked() / time.Second),
		ChunkCount:     s.asm.ChunkCount(),
		DroppedChunks:  s.asm.DroppedCount(),
		BufferedBytes:  s.asm.TotalBytes(),
		Error:          s.lastErr,
	}
	if s.artifact != nil {
		st.ArtifactSize = s.artifact.SizeBytes
		st.ArtifactSeconds = s.artifact.DurationSeconds
	}
	return st
}

// Elapsed returns the recorded duration, excluding paused time.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

// elapsedLocked computes elapsed time. Caller must hold s.mu.
func (s *Session) elapsedLocked() time.Duration {
	if s.state == StateRecording {
		return s.accumulated + s.clock().Sub(s.anchor)
	}
	return s.accumulated
}

// Artifact returns the assembled artifact, or nil before finalization.
func (s *Session) Artifact() *types.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// transitionLocked moves the machine to a new state and prepares the
// transition event. Caller must hold s.mu and emit the returned event
// after unlocking.
func (s *Session) transitionLocked(to State, reason string) Event {
	from := s.state
	s.state = to
	return Event{
		SessionID:      s.id,
		From:           from,
		To:             to,
		Reason:         reason,
		ElapsedSeconds: int64(s.accumulated / time.Second),
	}
}

// emit delivers a transition event to the sink, if any.
func (s *Session) emit(ev Event) {
	slog.Debug("session transition", "id", ev.SessionID, "from", ev.From, "to", ev.To, "reason", ev.Reason)
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

// releaseDeviceLocked stops the device tracks exactly once. Caller must
// hold s.mu. Every exit path funnels through here.
func (s *Session) releaseDeviceLocked() {
	if s.device == nil || s.released {
		return
	}
	s.released = true
	if err := s.device.Release(); err != nil {
		slog.Warn("failed to release input device", "id", s.id, "error", err)
	}
}

// start drives Idle → Requesting → Recording. Called once by the manager.
// Device denial or encoder setup failure returns the session to Idle and
// surfaces a capability error.
func (s *Session) start(ctx context.Context, provider DeviceProvider) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrInvalidState
	}
	ev := s.transitionLocked(StateRequesting, "")
	s.mu.Unlock()
	s.emit(ev)

	dev, err := provider.Acquire(ctx, s.captureCfg)
	if err != nil {
		capErr := &CapabilityError{Err: err}
		s.mu.Lock()
		s.lastErr = capErr.Error()
		ev := s.transitionLocked(StateIdle, "device_denied")
		s.mu.Unlock()
		s.emit(ev)
		return capErr
	}

	s.mu.Lock()
	if s.state != StateRequesting {
		// Cancelled while the permission prompt was pending.
		s.mu.Unlock()
		if relErr := dev.Release(); relErr != nil {
			slog.Warn("failed to release device after cancel", "id", s.id, "error", relErr)
		}
		return context.Canceled
	}
	s.device = dev

	enc, err := s.factory.New(dev, s.choice, s.tuning, s)
	if err == nil {
		err = enc.Start(s.tuning.ChunkInterval)
	}
	if err != nil {
		s.lastErr = err.Error()
		s.releaseDeviceLocked()
		ev := s.transitionLocked(StateIdle, "encoder_start_failed")
		s.mu.Unlock()
		s.emit(ev)
		return &CapabilityError{Err: err}
	}

	s.encoder = enc
	now := s.clock()
	s.startedAt = now
	s.anchor = now
	ev = s.transitionLocked(StateRecording, "")
	s.mu.Unlock()
	s.emit(ev)
	return nil
}

// Pause suspends capture without releasing the device or resetting the
// elapsed counter. Pausing an already-paused session is a no-op.
func (s *Session) Pause() error {
	s.mu.Lock()
	switch s.state {
	case StatePaused:
		s.mu.Unlock()
		return nil
	case StateRecording:
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}

	s.accumulated += s.clock().Sub(s.anchor)
	enc := s.encoder
	ev := s.transitionLocked(StatePaused, "")
	s.mu.Unlock()

	if err := enc.Pause(); err != nil {
		slog.Warn("encoder pause failed", "id", s.id, "error", err)
	}
	s.emit(ev)
	return nil
}

// Resume continues a paused capture. The device was never released, so no
// new permission request happens. Resuming while recording is a no-op.
func (s *Session) Resume() error {
	s.mu.Lock()
	switch s.state {
	case StateRecording:
		s.mu.Unlock()
		return nil
	case StatePaused:
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}

	s.anchor = s.clock()
	enc := s.encoder
	ev := s.transitionLocked(StateRecording, "")
	s.mu.Unlock()

	if err := enc.Resume(); err != nil {
		slog.Warn("encoder resume failed", "id", s.id, "error", err)
	}
	s.emit(ev)
	return nil
}

// Stop signals the encoder to flush and finalize. The machine moves to
// AwaitingConfirmation only after the encoder confirms finalization via
// OnFinalize.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateRecording:
		s.accumulated += s.clock().Sub(s.anchor)
	case StatePaused:
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}

	enc := s.encoder
	ev := s.transitionLocked(StateStopped, "")
	s.mu.Unlock()
	s.emit(ev)

	return enc.Stop()
}

// OnChunk appends a time-sliced encoder buffer. Implements EncoderSink.
func (s *Session) OnChunk(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRecording, StatePaused, StateStopped:
		s.asm.Append(data)
	default:
		// Late chunk after cancel or error; the buffer is already discarded.
	}
}

// OnFinalize assembles the artifact and releases the device. Implements
// EncoderSink. This is the single mandatory teardown point of the happy
// path; a finalize arriving after cancel is ignored.
func (s *Session) OnFinalize() {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return
	}

	s.releaseDeviceLocked()

	artifact, err := s.asm.Assemble(s.choice, s.class, s.original, s.accumulated, s.clock())
	if err != nil {
		// Empty recording: correct device and encoder behavior, no content.
		s.lastErr = err.Error()
		ev := s.transitionLocked(StateCancelled, "empty_recording")
		s.mu.Unlock()
		s.emit(ev)
		return
	}

	s.artifact = artifact
	ev := s.transitionLocked(StateAwaitingConfirmation, "")
	s.mu.Unlock()
	s.emit(ev)
}

// OnError handles an internal encoder fault. Implements EncoderSink.
// Fatal to the session: chunks are discarded and the device released.
func (s *Session) OnError(err error, diagnostic string) {
	encErr := &EncodingError{Err: err, Diagnostic: diagnostic}
	slog.Error("encoder reported fault", "id", s.id, "error", err, "diagnostic", diagnostic)

	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.lastErr = encErr.Error()
	s.releaseDeviceLocked()
	s.asm.Reset()
	ev := s.transitionLocked(StateCancelled, "encoder_error")
	s.mu.Unlock()
	s.emit(ev)
}

// ConfirmSend hands the artifact to the delivery service. The session lock
// is not held across the network call; no other transition is valid while
// Sending, and a user cancel during Sending waits for the timeout.
func (s *Session) ConfirmSend(ctx context.Context) (bool, string, error) {
	s.mu.Lock()
	if s.state != StateAwaitingConfirmation {
		s.mu.Unlock()
		return false, "", ErrInvalidState
	}
	artifact := s.artifact
	ev := s.transitionLocked(StateSending, "")
	s.mu.Unlock()
	s.emit(ev)

	// The caller's context ends with its request; a client disconnect must
	// not abort the attempt. Only the delivery timeout bounds it.
	delivered, reason := s.deliverer.Deliver(context.WithoutCancel(ctx), artifact, s.identity, s.userAgent)

	s.mu.Lock()
	if delivered {
		ev = s.transitionLocked(StateDelivered, "")
	} else {
		s.lastErr = reason
		ev = s.transitionLocked(StateDeliveryFailed, reason)
	}
	s.mu.Unlock()
	s.emit(ev)

	return delivered, reason, nil
}

// Cancel discards the session from any non-terminal state except Sending.
// Buffered chunks and any assembled artifact are dropped, the device is
// released, and no network call is made.
func (s *Session) Cancel() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateSending:
		s.mu.Unlock()
		return ErrInvalidState
	case StateDelivered, StateDeliveryFailed, StateCancelled:
		s.mu.Unlock()
		return nil
	}

	if s.state == StateRecording {
		s.accumulated += s.clock().Sub(s.anchor)
	}

	enc := s.encoder
	s.releaseDeviceLocked()
	s.asm.Reset()
	s.artifact = nil
	ev := s.transitionLocked(StateCancelled, "cancelled")
	s.mu.Unlock()

	if enc != nil {
		// Finalize events arriving after this point are ignored.
		if err := enc.Stop(); err != nil {
			slog.Debug("encoder stop during cancel", "id", s.id, "error", err)
		}
	}
	s.emit(ev)
	return nil
}
