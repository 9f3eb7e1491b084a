package audio

import (
	"testing"

	"github.com/talkform/voicenote-pipeline/internal/codec"
	"github.com/talkform/voicenote-pipeline/internal/platform"
)

const sampleEncoderOutput = `Encoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libopus              libopus Opus
 A....D flac                 FLAC (Free Lossless Audio Codec)
 S..... srt                  SubRip subtitle
`

func TestParseEncoderList(t *testing.T) {
	encoders := parseEncoderList([]byte(sampleEncoderOutput))

	for _, name := range []string{"aac", "libopus", "flac"} {
		if !encoders[name] {
			t.Errorf("encoder %q missing", name)
		}
	}
	if encoders["libx264"] {
		t.Error("video encoder leaked into audio set")
	}
	if encoders["srt"] {
		t.Error("subtitle encoder leaked into audio set")
	}
}

func TestParseEncoderListEmpty(t *testing.T) {
	if got := parseEncoderList(nil); len(got) != 0 {
		t.Errorf("parseEncoderList(nil) = %v, want empty", got)
	}
}

// Every candidate the negotiator can produce must have an encoder mapping,
// otherwise a negotiated choice could not be encoded.
func TestEncoderSpecsCoverAllCandidates(t *testing.T) {
	classes := []platform.Class{
		platform.ClassIOS,
		platform.ClassAndroid,
		platform.ClassGenericMobile,
		platform.ClassDesktop,
	}
	seen := map[string]bool{codec.DefaultChoice.MimeType: true}
	for _, class := range classes {
		for _, candidate := range codec.Candidates(class) {
			seen[candidate.MimeType] = true
		}
	}
	for mimeType := range seen {
		if _, ok := encoderSpecs[mimeType]; !ok {
			t.Errorf("no encoder spec for candidate %q", mimeType)
		}
	}
}
