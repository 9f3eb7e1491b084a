package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talkform/voicenote-pipeline/internal/codec"
	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/types"
)

// Manager enforces the single-active-session invariant for one user
// interaction surface and wires new sessions to the pipeline components.
// Starting a session while one is active is rejected, not queued.
type Manager struct {
	provider  DeviceProvider
	factory   EncoderFactory
	checker   codec.SupportChecker
	deliverer Deliverer
	onEvent   EventSink
	clock     func() time.Time

	mu     sync.Mutex
	active *Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects a clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithEventSink registers a sink for session transition events.
func WithEventSink(sink EventSink) Option {
	return func(m *Manager) { m.onEvent = sink }
}

// NewManager creates a session manager.
func NewManager(provider DeviceProvider, factory EncoderFactory, checker codec.SupportChecker, deliverer Deliverer, opts ...Option) *Manager {
	m := &Manager{
		provider:  provider,
		factory:   factory,
		checker:   checker,
		deliverer: deliverer,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// newSession builds a session for an already-profiled platform class.
func (m *Manager) newSession(class platform.Class, userAgent string, identity types.Identity) *Session {
	return &Session{
		id:         uuid.NewString(),
		identity:   identity,
		userAgent:  userAgent,
		class:      class,
		captureCfg: platform.BuildConstraints(class),
		choice:     codec.Negotiate(class, m.checker),
		original:   codec.Candidates(class)[0].MimeType,
		tuning:     codec.TuningFor(class),
		state:      StateIdle,
		clock:      m.clock,
		factory:    m.factory,
		deliverer:  m.deliverer,
		onEvent:    m.onEvent,
	}
}

// begin installs the session as active and drives it to Recording. On any
// start failure the surface is freed again.
func (m *Manager) begin(ctx context.Context, s *Session) (*Session, error) {
	if err := s.start(ctx, m.provider); err != nil {
		m.mu.Lock()
		if m.active == s {
			m.active = nil
		}
		m.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// Start profiles the environment once, negotiates the codec, and begins a
// new capture session. The profile and codec choice are immutable for the
// session's lifetime; the environment is not re-probed mid-recording.
func (m *Manager) Start(ctx context.Context, sig platform.Signals, identity types.Identity) (*Session, error) {
	m.mu.Lock()
	if m.active != nil && !m.active.State().IsTerminal() {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}
	s := m.newSession(platform.Classify(sig), sig.UserAgent, identity)
	m.active = s
	m.mu.Unlock()

	return m.begin(ctx, s)
}

// Active returns the current non-terminal session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.State().IsTerminal() {
		return nil
	}
	return m.active
}

// Session returns the most recent session with the given ID, or nil.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.id == id {
		return m.active
	}
	return nil
}

// Restart discards the current artifact and chunk buffer and begins a new
// session with the same profile and identity.
func (m *Manager) Restart(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	current := m.active
	m.mu.Unlock()

	if current == nil {
		return nil, ErrInvalidState
	}
	if err := current.Cancel(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Reuse the already-profiled class rather than re-deriving it from a
	// partial signal set.
	s := m.newSession(current.class, current.userAgent, current.identity)
	m.active = s
	m.mu.Unlock()

	return m.begin(ctx, s)
}
