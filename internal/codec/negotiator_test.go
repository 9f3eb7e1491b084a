package codec

import (
	"strings"
	"testing"

	"github.com/talkform/voicenote-pipeline/internal/platform"
)

// checkerFor simulates a runtime that supports exactly the given MIME types.
func checkerFor(supported ...string) SupportChecker {
	return SupportCheckerFunc(func(mimeType string) bool {
		for _, s := range supported {
			if s == mimeType {
				return true
			}
		}
		return false
	})
}

func TestNegotiateFirstSupportedWins(t *testing.T) {
	tests := []struct {
		name      string
		class     platform.Class
		supported []string
		want      Choice
	}{
		{
			name:      "ios prefers mp4",
			class:     platform.ClassIOS,
			supported: []string{"audio/mp4", "audio/webm"},
			want:      Choice{MimeType: "audio/mp4", Extension: "m4a"},
		},
		{
			name:      "ios falls through to aac",
			class:     platform.ClassIOS,
			supported: []string{"audio/aac"},
			want:      Choice{MimeType: "audio/aac", Extension: "aac"},
		},
		{
			name:      "android prefers opus in webm",
			class:     platform.ClassAndroid,
			supported: []string{"audio/mp4", "audio/webm;codecs=opus"},
			want:      Choice{MimeType: "audio/webm;codecs=opus", Extension: "webm"},
		},
		{
			name:      "desktop ogg fallback",
			class:     platform.ClassDesktop,
			supported: []string{"audio/ogg;codecs=opus"},
			want:      Choice{MimeType: "audio/ogg;codecs=opus", Extension: "ogg"},
		},
		{
			name:      "generic mobile uses android list",
			class:     platform.ClassGenericMobile,
			supported: []string{"audio/webm"},
			want:      Choice{MimeType: "audio/webm", Extension: "webm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Negotiate(tt.class, checkerFor(tt.supported...))
			if got != tt.want {
				t.Errorf("Negotiate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNegotiateReturnsSupportedOrDefault(t *testing.T) {
	classes := []platform.Class{
		platform.ClassIOS, platform.ClassAndroid, platform.ClassGenericMobile, platform.ClassDesktop,
	}
	checker := checkerFor("audio/webm", "audio/mp4")

	for _, class := range classes {
		got := Negotiate(class, checker)
		if !checker.Supported(got.MimeType) && got != DefaultChoice {
			t.Errorf("%s: Negotiate() = %+v, neither supported nor default", class, got)
		}
	}
}

func TestNegotiateDefaultWhenNothingSupported(t *testing.T) {
	got := Negotiate(platform.ClassIOS, checkerFor())
	if got != DefaultChoice {
		t.Errorf("Negotiate() = %+v, want default %+v", got, DefaultChoice)
	}
}

func TestCandidatesCarryExtensions(t *testing.T) {
	for _, class := range []platform.Class{platform.ClassIOS, platform.ClassAndroid, platform.ClassDesktop} {
		for _, c := range Candidates(class) {
			if c.MimeType == "" || c.Extension == "" {
				t.Errorf("%s: incomplete candidate %+v", class, c)
			}
			if strings.Contains(c.Extension, ".") {
				t.Errorf("%s: extension %q must not contain a dot", class, c.Extension)
			}
		}
	}
}

func TestTuningFor(t *testing.T) {
	ios := TuningFor(platform.ClassIOS)
	if ios.ChunkInterval != MobileChunkInterval || ios.BitRate != IOSBitRate {
		t.Errorf("iOS tuning = %+v", ios)
	}

	android := TuningFor(platform.ClassAndroid)
	if android.ChunkInterval != MobileChunkInterval || android.BitRate != MobileBitRate {
		t.Errorf("android tuning = %+v", android)
	}

	desktop := TuningFor(platform.ClassDesktop)
	if desktop.ChunkInterval != DesktopChunkInterval || desktop.BitRate != StandardBitRate {
		t.Errorf("desktop tuning = %+v", desktop)
	}

	if ios.BitRate >= desktop.BitRate {
		t.Error("iOS bit rate should be below desktop bit rate")
	}
	if android.ChunkInterval >= desktop.ChunkInterval {
		t.Error("mobile chunk interval should be tighter than desktop")
	}
}
