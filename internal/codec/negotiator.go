// Package codec selects the audio container and codec for a capture session.
//
// Mobile operating systems' native encoders disagree on which container and
// codec pairs are efficient or even supported, so the preference order is
// encoded once per platform class here instead of scattered as conditionals.
package codec

import (
	"log/slog"

	"github.com/talkform/voicenote-pipeline/internal/platform"
)

// Choice is the negotiated container MIME type and file extension.
type Choice struct {
	MimeType  string `json:"mime_type"`
	Extension string `json:"extension"`
}

// DefaultChoice is the hard-coded fallback when no candidate is supported.
// This is a degraded-but-functional path, never a hard failure.
var DefaultChoice = Choice{MimeType: "audio/webm", Extension: "webm"}

// SupportChecker is the runtime capability-check primitive for codec support.
// Supported must be a pure boolean query with no side effects.
type SupportChecker interface {
	Supported(mimeType string) bool
}

// SupportCheckerFunc adapts a function to the SupportChecker interface.
type SupportCheckerFunc func(mimeType string) bool

// Supported calls the wrapped function.
func (f SupportCheckerFunc) Supported(mimeType string) bool {
	return f(mimeType)
}

// Candidate lists per platform class, ordered most- to least-preferred.
// The ordering is empirical platform knowledge: AAC-in-MP4 is the only pair
// iOS encodes reliably, Android's WebM/Opus encoder outperforms its MP4 path,
// and desktop builds prefer Opus with an Ogg fallback for older engines.
var (
	iosCandidates = []Choice{
		{MimeType: "audio/mp4", Extension: "m4a"},
		{MimeType: "audio/aac", Extension: "aac"},
		{MimeType: "audio/webm", Extension: "webm"},
	}

	androidCandidates = []Choice{
		{MimeType: "audio/webm;codecs=opus", Extension: "webm"},
		{MimeType: "audio/webm", Extension: "webm"},
		{MimeType: "audio/mp4", Extension: "m4a"},
		{MimeType: "audio/ogg;codecs=opus", Extension: "ogg"},
	}

	desktopCandidates = []Choice{
		{MimeType: "audio/webm;codecs=opus", Extension: "webm"},
		{MimeType: "audio/webm", Extension: "webm"},
		{MimeType: "audio/ogg;codecs=opus", Extension: "ogg"},
		{MimeType: "audio/mp4", Extension: "m4a"},
	}
)

// Candidates returns the ordered candidate list for a platform class.
// Callers must not mutate the returned slice.
func Candidates(class platform.Class) []Choice {
	switch class {
	case platform.ClassIOS:
		return iosCandidates
	case platform.ClassAndroid, platform.ClassGenericMobile:
		return androidCandidates
	default:
		return desktopCandidates
	}
}

// Negotiate probes the platform's candidate list in order and returns the
// first choice the checker reports supported. If none is supported it falls
// back to DefaultChoice and logs a warning.
func Negotiate(class platform.Class, checker SupportChecker) Choice {
	for _, candidate := range Candidates(class) {
		if checker.Supported(candidate.MimeType) {
			slog.Debug("codec negotiated", "platform", class, "mime_type", candidate.MimeType)
			return candidate
		}
	}

	slog.Warn("no supported codec candidate, using default",
		"platform", class, "mime_type", DefaultChoice.MimeType)
	return DefaultChoice
}
