// Package main provides the voice-note capture and delivery pipeline: it
// records audio from a local input, negotiates the container per platform,
// and ships finished notes to the configured endpoint with local fallback.
//
// Usage:
//
//	voicenote-pipeline [-config path/to/config.json]
//
// If -config is not specified, the pipeline looks for config.json in the
// same directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/audio"
	"github.com/talkform/voicenote-pipeline/internal/config"
	"github.com/talkform/voicenote-pipeline/internal/delivery"
	"github.com/talkform/voicenote-pipeline/internal/eventlog"
	"github.com/talkform/voicenote-pipeline/internal/fallback"
	"github.com/talkform/voicenote-pipeline/internal/notify"
	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/session"
	"github.com/talkform/voicenote-pipeline/internal/types"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// Build-time variables, set via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// Check FFmpeg availability
	ffmpegPath := util.ResolveFFmpegPath(cfg.GetFFmpegPath())
	ffmpegAvailable := ffmpegPath != ""
	if !ffmpegAvailable {
		slog.Warn("FFmpeg not found - capture disabled",
			"configured_path", cfg.GetFFmpegPath())
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	// Pipeline event log
	eventLogPath := eventlog.DefaultLogPath(snap.WebPort)
	events, err := eventlog.NewLogger(eventLogPath)
	if err != nil {
		slog.Warn("event log unavailable", "path", eventLogPath, "error", err)
		events = nil
	}

	// S3 archival of fallback copies, when configured
	var archiver *fallback.Archiver
	if snap.HasS3() {
		archiver, err = fallback.NewArchiver(snap.S3, events)
		if err != nil {
			slog.Error("failed to create S3 archiver", "error", err)
			os.Exit(1)
		}
		archiver.Start()
	}

	storeOpts := []fallback.StoreOption{fallback.WithEventLog(events)}
	if archiver != nil {
		storeOpts = append(storeOpts, fallback.WithArchiver(archiver))
	}
	store, err := fallback.NewStore(snap.FallbackDir, storeOpts...)
	if err != nil {
		slog.Error("failed to open fallback store", "error", err)
		os.Exit(1)
	}

	sweeper := fallback.NewSweeper(store, archiver, snap.RetentionDays)
	sweeper.Start()

	// Notifications read live settings so config changes apply immediately
	notifier := notify.NewNotifier(func() notify.Settings {
		s := cfg.Snapshot()
		return s.NotifySettings()
	})

	manager := session.NewManager(
		&inputProvider{cfg: cfg, ffmpegPath: ffmpegPath},
		audio.NewEncoderFactory(ffmpegPath),
		audio.NewSupportChecker(ffmpegPath),
		&configDeliverer{cfg: cfg, store: store, notifier: &eventNotifier{notify: notifier, events: events}},
		session.WithEventSink(sessionEventSink(events, notifier)),
	)

	srv := NewServer(cfg, manager, store, sweeper, eventLogPath, ffmpegAvailable)

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Discard any in-flight capture so the device is released.
	if active := manager.Active(); active != nil {
		if err := active.Cancel(); err != nil {
			slog.Warn("failed to cancel active session", "error", err)
		}
	}

	sweeper.Stop()
	if archiver != nil {
		archiver.Stop()
	}
	if events != nil {
		if err := events.Close(); err != nil {
			slog.Warn("failed to close event log", "error", err)
		}
	}

	slog.Info("shutdown complete")
}

// inputProvider acquires the configured audio input at session start, so
// audio/update settings apply to the next capture without a restart.
type inputProvider struct {
	cfg        *config.Config
	ffmpegPath string
}

// Acquire implements session.DeviceProvider.
func (p *inputProvider) Acquire(ctx context.Context, captureCfg platform.CaptureConfig) (session.Device, error) {
	return audio.NewProvider(p.ffmpegPath, p.cfg.AudioInput()).Acquire(ctx, captureCfg)
}

// configDeliverer builds the delivery service from the current config for
// each attempt, so endpoint and timeout changes apply immediately.
type configDeliverer struct {
	cfg      *config.Config
	store    *fallback.Store
	notifier delivery.Notifier
}

// Deliver implements session.Deliverer.
func (d *configDeliverer) Deliver(ctx context.Context, artifact *types.Artifact, identity types.Identity, userAgent string) (bool, string) {
	snap := d.cfg.Snapshot()

	svc, err := delivery.NewService(snap.DeliveryEndpoint, d.store, d.notifier,
		delivery.WithTimeout(snap.DeliveryTimeout),
		delivery.WithSignature(snap.DeliverySignature))
	if err != nil {
		// Unconfigured or invalid endpoint; the fallback guarantee holds
		// either way.
		slog.Error("delivery endpoint unavailable", "error", err)
		if _, perr := d.store.Persist(artifact, identity); perr != nil {
			slog.Error("fallback persistence failed", "error", perr)
		}
		return false, "other:" + err.Error()
	}

	return svc.Deliver(ctx, artifact, identity, userAgent)
}

// eventNotifier fans delivery outcomes out to the notification channels and
// records them in the pipeline event log.
type eventNotifier struct {
	notify *notify.Notifier
	events *eventlog.Logger
}

func (n *eventNotifier) DeliveryStarted(artifact *types.Artifact) {
	n.notify.DeliveryStarted(artifact)
	n.logDelivery(eventlog.DeliveryStarted, artifact, "", 0)
}

func (n *eventNotifier) DeliverySucceeded(artifact *types.Artifact, statusCode int) {
	n.notify.DeliverySucceeded(artifact, statusCode)
	n.logDelivery(eventlog.DeliverySucceeded, artifact, "", statusCode)
}

func (n *eventNotifier) DeliveryFailed(artifact *types.Artifact, reason string) {
	n.notify.DeliveryFailed(artifact, reason)
	n.logDelivery(eventlog.DeliveryFailed, artifact, reason, 0)
}

func (n *eventNotifier) FallbackCreated(fb types.FallbackArtifact) {
	n.notify.FallbackCreated(fb)
}

func (n *eventNotifier) logDelivery(eventType eventlog.EventType, artifact *types.Artifact, reason string, statusCode int) {
	if n.events == nil {
		return
	}
	if err := n.events.LogDelivery(eventType, "", &eventlog.DeliveryDetails{
		Platform:   artifact.Platform,
		SizeBytes:  artifact.SizeBytes,
		Reason:     reason,
		StatusCode: statusCode,
	}); err != nil {
		slog.Warn("failed to log delivery event", "error", err)
	}
}

// sessionEventSink fans session transitions out to the event log and the
// notification channels.
func sessionEventSink(events *eventlog.Logger, notifier *notify.Notifier) session.EventSink {
	return func(ev session.Event) {
		var eventType eventlog.EventType
		switch {
		case ev.To == session.StateRecording && ev.From == session.StateRequesting:
			eventType = eventlog.SessionStarted
		case ev.To == session.StatePaused:
			eventType = eventlog.SessionPaused
		case ev.To == session.StateRecording && ev.From == session.StatePaused:
			eventType = eventlog.SessionResumed
		case ev.To == session.StateStopped:
			eventType = eventlog.SessionStopped
		case ev.To == session.StateCancelled:
			eventType = eventlog.SessionCancelled
		default:
			return
		}

		notifier.SessionChanged(string(eventType), ev.SessionID, ev.ElapsedSeconds, ev.Reason)

		if events == nil {
			return
		}
		if err := events.LogSession(eventType, ev.SessionID, &eventlog.SessionDetails{
			Reason:          ev.Reason,
			DurationSeconds: ev.ElapsedSeconds,
		}); err != nil {
			slog.Warn("failed to log session event", "error", err)
		}
	}
}
