package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/codec"
	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/types"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// fakeDevice counts releases; the invariant is exactly one per session.
type fakeDevice struct {
	releases atomic.Int32
}

func (d *fakeDevice) Release() error {
	d.releases.Add(1)
	return nil
}

// fakeProvider hands out fakeDevices, or denies access.
type fakeProvider struct {
	deny    bool
	devices []*fakeDevice
}

func (p *fakeProvider) Acquire(_ context.Context, _ platform.CaptureConfig) (Device, error) {
	if p.deny {
		return nil, errors.New("permission denied")
	}
	d := &fakeDevice{}
	p.devices = append(p.devices, d)
	return d, nil
}

// fakeEncoder delivers chunks on demand and finalizes synchronously on Stop.
type fakeEncoder struct {
	sink      EncoderSink
	started   bool
	stopped   bool
	failFinal bool
}

func (e *fakeEncoder) Start(time.Duration) error { e.started = true; return nil }
func (e *fakeEncoder) Pause() error              { return nil }
func (e *fakeEncoder) Resume() error             { return nil }

func (e *fakeEncoder) Stop() error {
	if e.stopped {
		return nil
	}
	e.stopped = true
	if e.failFinal {
		e.sink.OnError(errors.New("muxer desync"), "EBML cluster truncated")
		return nil
	}
	e.sink.OnFinalize()
	return nil
}

type fakeFactory struct {
	encoders []*fakeEncoder
	failNext bool
}

func (f *fakeFactory) New(_ Device, _ codec.Choice, _ codec.Tuning, sink EncoderSink) (Encoder, error) {
	if f.failNext {
		return nil, errors.New("no encoder for container")
	}
	e := &fakeEncoder{sink: sink}
	f.encoders = append(f.encoders, e)
	return e, nil
}

func (f *fakeFactory) last() *fakeEncoder {
	return f.encoders[len(f.encoders)-1]
}

// fakeDeliverer records calls and returns a scripted outcome.
type fakeDeliverer struct {
	calls     int
	delivered bool
	reason    string
	got       *types.Artifact
	ctxErr    error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, a *types.Artifact, _ types.Identity, _ string) (bool, string) {
	d.calls++
	d.got = a
	d.ctxErr = ctx.Err()
	return d.delivered, d.reason
}

// gatedProvider blocks Acquire until the gate is closed, simulating a
// pending permission prompt.
type gatedProvider struct {
	gate    chan struct{}
	devices []*fakeDevice
}

func (p *gatedProvider) Acquire(_ context.Context, _ platform.CaptureConfig) (Device, error) {
	<-p.gate
	d := &fakeDevice{}
	p.devices = append(p.devices, d)
	return d, nil
}

// allSupported accepts every MIME type.
var allSupported = codec.SupportCheckerFunc(func(string) bool { return true })

type harness struct {
	clock     *fakeClock
	provider  *fakeProvider
	factory   *fakeFactory
	deliverer *fakeDeliverer
	manager   *Manager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:     newFakeClock(),
		provider:  &fakeProvider{},
		factory:   &fakeFactory{},
		deliverer: &fakeDeliverer{delivered: true},
	}
	opts = append([]Option{WithClock(h.clock.Now)}, opts...)
	h.manager = NewManager(h.provider, h.factory, allSupported, h.deliverer, opts...)
	return h
}

func (h *harness) startSession(t *testing.T) *Session {
	t.Helper()
	s, err := h.manager.Start(context.Background(), platform.Signals{UserAgent: "test-agent"}, types.Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if got := s.State(); got != StateRecording {
		t.Fatalf("state after start = %q, want recording", got)
	}
	return s
}

func TestStartRejectsSecondSession(t *testing.T) {
	h := newHarness(t)
	h.startSession(t)

	_, err := h.manager.Start(context.Background(), platform.Signals{}, types.Identity{})
	if !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start() err = %v, want ErrSessionActive", err)
	}
}

func TestStartDeviceDenied(t *testing.T) {
	h := newHarness(t)
	h.provider.deny = true

	_, err := h.manager.Start(context.Background(), platform.Signals{}, types.Identity{})
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want CapabilityError", err)
	}

	// The surface is free again after a denial.
	h.provider.deny = false
	h.startSession(t)
}

func TestPauseResumeIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)

	if err := s.Resume(); err != nil {
		t.Errorf("Resume() while recording = %v, want no-op nil", err)
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	elapsed := s.Elapsed()
	if err := s.Pause(); err != nil {
		t.Errorf("second Pause() = %v, want no-op nil", err)
	}
	if got := s.State(); got != StatePaused {
		t.Errorf("state = %q, want paused", got)
	}
	if s.Elapsed() != elapsed {
		t.Errorf("elapsed changed across re-entrant pause: %v != %v", s.Elapsed(), elapsed)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if got := s.State(); got != StateRecording {
		t.Errorf("state = %q, want recording", got)
	}
}

func TestElapsedExcludesPausedTime(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)

	h.clock.Advance(5 * time.Second)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	h.clock.Advance(4 * time.Second)

	s.OnChunk(make([]byte, 100))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// 5 s before pause + 4 s after resume; the 3 s pause does not count.
	if got := s.Status().ElapsedSeconds; got != 9 {
		t.Errorf("elapsed = %d s, want 9", got)
	}
	if got := s.Artifact().DurationSeconds; got != 9 {
		t.Errorf("artifact duration = %v s, want 9", got)
	}
}

func TestStopAssemblesArtifact(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)

	s.OnChunk(make([]byte, 1000))
	s.OnChunk(make([]byte, 1200))
	s.OnChunk([]byte{}) // dropped
	s.OnChunk(make([]byte, 900))

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if got := s.State(); got != StateAwaitingConfirmation {
		t.Fatalf("state = %q, want awaiting_confirmation", got)
	}

	a := s.Artifact()
	if a.SizeBytes != 3100 {
		t.Errorf("artifact size = %d, want 3100", a.SizeBytes)
	}
	if h.provider.devices[0].releases.Load() != 1 {
		t.Errorf("device releases = %d, want 1", h.provider.devices[0].releases.Load())
	}
}

func TestStopWithNoChunksIsEmptyRecording(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if got := s.State(); got != StateCancelled {
		t.Errorf("state = %q, want cancelled", got)
	}
	if s.Artifact() != nil {
		t.Error("no artifact should exist for an empty recording")
	}
	if h.deliverer.calls != 0 {
		t.Errorf("delivery attempts = %d, want 0", h.deliverer.calls)
	}
	if h.provider.devices[0].releases.Load() != 1 {
		t.Errorf("device releases = %d, want 1", h.provider.devices[0].releases.Load())
	}
}

func TestConfirmSendDelivered(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)
	s.OnChunk(make([]byte, 500))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	delivered, reason, err := s.ConfirmSend(context.Background())
	if err != nil {
		t.Fatalf("ConfirmSend() error: %v", err)
	}
	if !delivered || reason != "" {
		t.Errorf("outcome = (%v, %q), want delivered", delivered, reason)
	}
	if got := s.State(); got != StateDelivered {
		t.Errorf("state = %q, want delivered", got)
	}
	if h.deliverer.got.SizeBytes != 500 {
		t.Errorf("delivered artifact size = %d, want 500", h.deliverer.got.SizeBytes)
	}
}

func TestConfirmSendFailure(t *testing.T) {
	h := newHarness(t)
	h.deliverer.delivered = false
	h.deliverer.reason = "timeout"

	s := h.startSession(t)
	s.OnChunk(make([]byte, 10))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	delivered, reason, err := s.ConfirmSend(context.Background())
	if err != nil {
		t.Fatalf("ConfirmSend() error: %v", err)
	}
	if delivered || reason != "timeout" {
		t.Errorf("outcome = (%v, %q), want failed timeout", delivered, reason)
	}
	if got := s.State(); got != StateDeliveryFailed {
		t.Errorf("state = %q, want delivery_failed", got)
	}
}

func TestConfirmSendIgnoresCallerCancel(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)
	s.OnChunk(make([]byte, 200))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// A client that disconnects after confirming must not abort the
	// in-flight delivery.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered, reason, err := s.ConfirmSend(ctx)
	if err != nil {
		t.Fatalf("ConfirmSend() error: %v", err)
	}
	if !delivered || reason != "" {
		t.Errorf("outcome = (%v, %q), want delivered", delivered, reason)
	}
	if h.deliverer.ctxErr != nil {
		t.Errorf("deliverer saw cancelled context: %v", h.deliverer.ctxErr)
	}
}

func TestCancelDuringPermissionPromptReleasesLateDevice(t *testing.T) {
	provider := &gatedProvider{gate: make(chan struct{})}
	clock := newFakeClock()
	manager := NewManager(provider, &fakeFactory{}, allSupported, &fakeDeliverer{}, WithClock(clock.Now))

	startErr := make(chan error, 1)
	go func() {
		_, err := manager.Start(context.Background(), platform.Signals{}, types.Identity{})
		startErr <- err
	}()

	var s *Session
	for i := 0; ; i++ {
		if s = manager.Active(); s != nil && s.State() == StateRequesting {
			break
		}
		if i > 2000 {
			t.Fatal("session never reached requesting")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel() during requesting = %v", err)
	}
	if got := s.State(); got != StateCancelled {
		t.Fatalf("state = %q, want cancelled", got)
	}

	// The prompt is granted after the cancel; the late device must still
	// be released, exactly once.
	close(provider.gate)
	if err := <-startErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Start() err = %v, want context.Canceled", err)
	}
	if got := provider.devices[0].releases.Load(); got != 1 {
		t.Errorf("late-granted device releases = %d, want exactly 1", got)
	}
}

func TestCancelReleasesDeviceExactlyOnce(t *testing.T) {
	cancelFrom := []struct {
		name    string
		prepare func(t *testing.T, h *harness, s *Session)
	}{
		{name: "recording", prepare: func(*testing.T, *harness, *Session) {}},
		{name: "paused", prepare: func(t *testing.T, _ *harness, s *Session) {
			if err := s.Pause(); err != nil {
				t.Fatalf("Pause() error: %v", err)
			}
		}},
		{name: "awaiting confirmation", prepare: func(t *testing.T, _ *harness, s *Session) {
			s.OnChunk(make([]byte, 8))
			if err := s.Stop(); err != nil {
				t.Fatalf("Stop() error: %v", err)
			}
		}},
	}

	for _, tt := range cancelFrom {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			s := h.startSession(t)
			tt.prepare(t, h, s)

			if err := s.Cancel(); err != nil {
				t.Fatalf("Cancel() error: %v", err)
			}
			if got := s.State(); got != StateCancelled {
				t.Errorf("state = %q, want cancelled", got)
			}
			if got := h.provider.devices[0].releases.Load(); got != 1 {
				t.Errorf("device releases = %d, want exactly 1", got)
			}
			if h.deliverer.calls != 0 {
				t.Errorf("delivery attempts = %d, want 0", h.deliverer.calls)
			}

			// Repeated cancel stays a no-op.
			if err := s.Cancel(); err != nil {
				t.Errorf("second Cancel() = %v, want nil", err)
			}
			if got := h.provider.devices[0].releases.Load(); got != 1 {
				t.Errorf("device releases after double cancel = %d, want 1", got)
			}
		})
	}
}

func TestCancelFreesSurfaceForNewSession(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	h.startSession(t)
}

func TestEncoderErrorDiscardsSession(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)
	s.OnChunk(make([]byte, 64))

	h.factory.last().failFinal = true
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if got := s.State(); got != StateCancelled {
		t.Errorf("state = %q, want cancelled", got)
	}
	if got := s.Status(); got.BufferedBytes != 0 {
		t.Errorf("buffered bytes after encoder error = %d, want 0", got.BufferedBytes)
	}
	if h.provider.devices[0].releases.Load() != 1 {
		t.Errorf("device releases = %d, want 1", h.provider.devices[0].releases.Load())
	}
}

func TestChunksAfterCancelAreIgnored(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	s.OnChunk(make([]byte, 128))
	if got := s.Status().BufferedBytes; got != 0 {
		t.Errorf("buffered bytes = %d, want 0", got)
	}
}

func TestRestartBeginsFreshSession(t *testing.T) {
	h := newHarness(t)
	s := h.startSession(t)
	s.OnChunk(make([]byte, 77))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	fresh, err := h.manager.Restart(context.Background())
	if err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	if fresh.ID() == s.ID() {
		t.Error("restart must produce a new session id")
	}
	if fresh.Platform() != s.Platform() {
		t.Errorf("restart changed platform: %q -> %q", s.Platform(), fresh.Platform())
	}
	if got := fresh.State(); got != StateRecording {
		t.Errorf("state = %q, want recording", got)
	}
	if got := fresh.Status().BufferedBytes; got != 0 {
		t.Errorf("fresh session carries %d buffered bytes", got)
	}
}

func TestProfileIsImmutablePerSession(t *testing.T) {
	h := newHarness(t)
	s, err := h.manager.Start(context.Background(),
		platform.Signals{UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", HasTouch: true, ViewportWidth: 390},
		types.Identity{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if s.Platform() != platform.ClassIOS {
		t.Fatalf("platform = %q, want ios", s.Platform())
	}
	if s.Codec().MimeType != "audio/mp4" {
		t.Errorf("negotiated mime = %q, want audio/mp4 (first iOS candidate)", s.Codec().MimeType)
	}
}
