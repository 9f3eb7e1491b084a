package session

import (
	"context"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/codec"
	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/types"
)

// Device is an exclusively-held audio input. It must be released on every
// exit path; Release stops the underlying tracks and is idempotent at the
// session level (the session calls it exactly once).
type Device interface {
	Release() error
}

// DeviceProvider acquires the platform's audio input device. Acquire blocks
// until the device is granted, the user denies access, or ctx is cancelled.
type DeviceProvider interface {
	Acquire(ctx context.Context, cfg platform.CaptureConfig) (Device, error)
}

// EncoderSink receives encoder events. The capture session implements this;
// callbacks become events fed into the state machine so the session stays
// the single writer of its own state.
type EncoderSink interface {
	// OnChunk delivers one time-sliced unit of encoder output. Chunks
	// arrive in chronological order and are never reordered.
	OnChunk(data []byte)
	// OnFinalize signals that the encoder flushed all buffered audio.
	OnFinalize()
	// OnError reports an internal encoder fault with diagnostic context.
	OnError(err error, diagnostic string)
}

// Encoder is the host runtime's encoding primitive. Start begins producing
// chunk callbacks at the given interval; Stop flushes remaining audio and
// ends with exactly one OnFinalize or OnError.
type Encoder interface {
	Start(interval time.Duration) error
	Pause() error
	Resume() error
	Stop() error
}

// EncoderFactory builds an encoder bound to an acquired device and sink.
type EncoderFactory interface {
	New(dev Device, choice codec.Choice, tuning codec.Tuning, sink EncoderSink) (Encoder, error)
}

// Deliverer ships an assembled artifact to the remote endpoint. It returns
// whether delivery succeeded and, on failure, a reason code. Fallback
// persistence is the deliverer's responsibility, not the session's.
type Deliverer interface {
	Deliver(ctx context.Context, artifact *types.Artifact, identity types.Identity, userAgent string) (delivered bool, reason string)
}
