package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/session"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// captureCommandConfig defines platform-specific audio capture.
type captureCommandConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform captures through FFmpeg.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments producing raw s16le PCM on
	// stdout at the requested rate and channel count.
	BuildArgs func(device string, sampleRate, channels int) []string
}

// buildCaptureCommand resolves the capture command for the current platform.
// If device is empty, it uses the platform default or auto-detects.
func buildCaptureCommand(device, ffmpegPath string, sampleRate, channels int) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	// Auto-detect if still empty (Windows has no safe default).
	if device == "" {
		devices := Devices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}

	return command, cfg.BuildArgs(device, sampleRate, channels), nil
}

// acquireGrace is how long a freshly started capture process is watched for
// an immediate exit. An instant exit means the device was denied or busy.
const acquireGrace = 200 * time.Millisecond

// CaptureDevice is an exclusively held audio input backed by a capture
// subprocess streaming raw PCM on stdout.
type CaptureDevice struct {
	id         string
	sampleRate int
	channels   int

	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *bytes.Buffer
	waitCh chan error

	releaseOnce sync.Once
}

// ID returns the device identifier used for the capture command.
func (d *CaptureDevice) ID() string { return d.id }

// SampleRate returns the PCM sample rate in Hz.
func (d *CaptureDevice) SampleRate() int { return d.sampleRate }

// Channels returns the PCM channel count.
func (d *CaptureDevice) Channels() int { return d.channels }

// PCM returns the raw s16le sample stream.
func (d *CaptureDevice) PCM() io.Reader { return d.stdout }

// Release stops the capture process and closes the PCM stream. Safe to
// call more than once; only the first call does work.
func (d *CaptureDevice) Release() error {
	d.releaseOnce.Do(func() {
		d.cancel()
		// Exit status after a kill is expected, not an error worth
		// propagating.
		<-d.waitCh
		slog.Debug("capture device released", "device", d.id)
	})
	return nil
}

// Provider acquires the local audio input device by spawning the
// platform's capture command.
type Provider struct {
	ffmpegPath string
	deviceID   string
}

// NewProvider returns a device provider. deviceID may be empty to use the
// platform default.
func NewProvider(ffmpegPath, deviceID string) *Provider {
	return &Provider{ffmpegPath: ffmpegPath, deviceID: deviceID}
}

// Acquire starts the capture process and verifies it survives startup.
// A process that exits within the grace window is treated as an access
// denial, which the capture session maps to a capability failure.
func (p *Provider) Acquire(ctx context.Context, cfg platform.CaptureConfig) (session.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rate := cfg.SampleRate.Ideal
	command, args, err := buildCaptureCommand(p.deviceID, p.ffmpegPath, rate, cfg.ChannelCount)
	if err != nil {
		return nil, err
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, util.WrapError("create capture stdout pipe", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, util.WrapError("start capture process", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	dev := &CaptureDevice{
		id:         p.deviceID,
		sampleRate: rate,
		channels:   cfg.ChannelCount,
		cancel:     cancel,
		stdout:     stdout,
		stderr:     stderr,
		waitCh:     waitCh,
	}

	select {
	case <-ctx.Done():
		_ = dev.Release()
		return nil, ctx.Err()
	case <-waitCh:
		// The wait channel must stay readable for Release.
		waitCh <- nil
		_ = dev.Release()
		reason := util.ExtractLastError(stderr.String())
		if reason == "" {
			reason = "capture process exited during startup"
		}
		return nil, fmt.Errorf("audio device %q unavailable: %s", dev.id, reason)
	case <-time.After(acquireGrace):
	}

	slog.Info("capture device acquired",
		"device", dev.id, "sample_rate", rate, "channels", cfg.ChannelCount)
	return dev, nil
}
