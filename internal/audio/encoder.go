package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/codec"
	"github.com/talkform/voicenote-pipeline/internal/session"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// encoderSpec maps a negotiated MIME type onto an FFmpeg encoder and
// container muxer.
type encoderSpec struct {
	codecName string
	format    string
	extraArgs []string
}

// encoderSpecs covers every candidate the negotiator can produce. MP4
// needs fragmented output because the muxer cannot seek on a pipe.
var encoderSpecs = map[string]encoderSpec{
	"audio/webm;codecs=opus": {codecName: "libopus", format: "webm"},
	"audio/webm":             {codecName: "libopus", format: "webm"},
	"audio/ogg;codecs=opus":  {codecName: "libopus", format: "ogg"},
	"audio/mp4": {
		codecName: "aac",
		format:    "mp4",
		extraArgs: []string{"-movflags", "frag_keyframe+empty_moov"},
	},
	"audio/aac": {codecName: "aac", format: "adts"},
}

// EncoderFactory builds chunked FFmpeg encoders bound to a capture device.
type EncoderFactory struct {
	ffmpegPath string
}

// NewEncoderFactory returns a factory using the given FFmpeg binary.
func NewEncoderFactory(ffmpegPath string) *EncoderFactory {
	return &EncoderFactory{ffmpegPath: ffmpegPath}
}

// New builds an encoder for the negotiated codec choice.
func (f *EncoderFactory) New(dev session.Device, choice codec.Choice, tuning codec.Tuning, sink session.EncoderSink) (session.Encoder, error) {
	capture, ok := dev.(*CaptureDevice)
	if !ok {
		return nil, errors.New("device is not a capture device")
	}
	spec, ok := encoderSpecs[choice.MimeType]
	if !ok {
		return nil, fmt.Errorf("no encoder mapping for %q", choice.MimeType)
	}
	return &chunkedEncoder{
		ffmpegPath: f.ffmpegPath,
		dev:        capture,
		spec:       spec,
		bitRate:    tuning.BitRate,
		sink:       sink,
	}, nil
}

// chunkedEncoder runs an FFmpeg subprocess over the device's PCM stream
// and delivers encoded output as time-sliced chunks in arrival order.
type chunkedEncoder struct {
	ffmpegPath string
	dev        *CaptureDevice
	spec       encoderSpec
	bitRate    int
	sink       session.EncoderSink

	cancel context.CancelFunc
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr bytes.Buffer
	waitCh chan error

	paused  atomic.Bool
	stopped atomic.Bool

	pendingMu sync.Mutex
	pending   bytes.Buffer

	collectDone chan struct{}
	sliceStop   chan struct{}
}

// Start launches the encoder process and the pump, collector and slicer
// goroutines. Chunks are emitted at the given interval.
func (e *chunkedEncoder) Start(interval time.Duration) error {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(e.dev.SampleRate()),
		"-ac", strconv.Itoa(e.dev.Channels()),
		"-i", "pipe:0",
		"-vn",
		"-c:a", e.spec.codecName,
		"-b:a", strconv.Itoa(e.bitRate),
	}
	args = append(args, e.spec.extraArgs...)
	args = append(args, "-f", e.spec.format, "pipe:1")

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return util.WrapError("create encoder stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return util.WrapError("create encoder stdout pipe", err)
	}
	cmd.Stderr = &e.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return util.WrapError("start encoder process", err)
	}

	e.cancel = cancel
	e.stdin = stdin
	e.stdout = stdout
	e.waitCh = make(chan error, 1)
	e.collectDone = make(chan struct{})
	e.sliceStop = make(chan struct{})

	go func() { e.waitCh <- cmd.Wait() }()
	go e.pump()
	go e.collect()
	go e.slice(interval)
	go e.finish()

	slog.Info("encoder started",
		"codec", e.spec.codecName, "format", e.spec.format, "bitrate", e.bitRate)
	return nil
}

// Pause stops feeding audio into the encoder. Samples captured while
// paused are discarded, so the finished note contains no silence gap.
func (e *chunkedEncoder) Pause() error {
	e.paused.Store(true)
	return nil
}

// Resume restarts feeding audio into the encoder.
func (e *chunkedEncoder) Resume() error {
	e.paused.Store(false)
	return nil
}

// Stop ends capture input and lets the encoder flush. The sink receives
// remaining chunks followed by exactly one finalize or error callback.
func (e *chunkedEncoder) Stop() error {
	if e.stopped.Swap(true) {
		return nil
	}
	// Closing stdin makes the encoder flush and exit on its own.
	return e.stdin.Close()
}

// pump copies PCM from the device into the encoder, discarding samples
// while paused.
func (e *chunkedEncoder) pump() {
	buf := make([]byte, 8192)
	for {
		n, err := e.dev.PCM().Read(buf)
		if n > 0 && !e.paused.Load() && !e.stopped.Load() {
			if _, werr := e.stdin.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			// Device stream ended; flush the encoder.
			_ = e.Stop()
			return
		}
		if e.stopped.Load() {
			return
		}
	}
}

// collect drains encoded output into the pending buffer.
func (e *chunkedEncoder) collect() {
	defer close(e.collectDone)
	buf := make([]byte, 4096)
	for {
		n, err := e.stdout.Read(buf)
		if n > 0 {
			e.pendingMu.Lock()
			e.pending.Write(buf[:n])
			e.pendingMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// slice emits the pending buffer as one chunk per interval.
func (e *chunkedEncoder) slice(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.flushPending()
		case <-e.sliceStop:
			return
		}
	}
}

func (e *chunkedEncoder) flushPending() {
	e.pendingMu.Lock()
	if e.pending.Len() == 0 {
		e.pendingMu.Unlock()
		return
	}
	chunk := make([]byte, e.pending.Len())
	copy(chunk, e.pending.Bytes())
	e.pending.Reset()
	e.pendingMu.Unlock()

	e.sink.OnChunk(chunk)
}

// finish waits for the encoder to exit, delivers the trailing chunk, and
// reports the terminal outcome.
func (e *chunkedEncoder) finish() {
	<-e.collectDone
	err := <-e.waitCh
	close(e.sliceStop)

	e.flushPending()

	if err != nil && !e.stopped.Load() {
		diagnostic := util.ExtractLastError(e.stderr.String())
		slog.Error("encoder process failed", "error", err, "diagnostic", diagnostic)
		e.sink.OnError(util.WrapError("encode audio", err), diagnostic)
		return
	}
	if err != nil {
		// Exit error after an explicit stop usually means the pipe was
		// torn down mid-flush; still report it as a fault.
		diagnostic := util.ExtractLastError(e.stderr.String())
		e.sink.OnError(util.WrapError("finalize encoding", err), diagnostic)
		return
	}
	e.sink.OnFinalize()
}
