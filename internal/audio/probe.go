package audio

import (
	"bufio"
	"bytes"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/talkform/voicenote-pipeline/internal/codec"
)

// NewSupportChecker probes the local FFmpeg build once and returns a
// checker answering which negotiated MIME types it can encode. A failed
// probe yields a checker that supports nothing, which makes negotiation
// fall back to its default choice instead of failing hard.
func NewSupportChecker(ffmpegPath string) codec.SupportChecker {
	encoders := probeEncoders(ffmpegPath)
	return codec.SupportCheckerFunc(func(mimeType string) bool {
		spec, ok := encoderSpecs[mimeType]
		return ok && encoders[spec.codecName]
	})
}

// probeEncoders runs `ffmpeg -encoders` and returns the set of available
// audio encoder names.
func probeEncoders(ffmpegPath string) map[string]bool {
	cmd := exec.Command(ffmpegPath, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		slog.Warn("failed to probe ffmpeg encoders", "error", err)
		return nil
	}

	encoders := parseEncoderList(output)
	slog.Debug("probed ffmpeg encoders", "count", len(encoders))
	return encoders
}

// parseEncoderList extracts audio encoder names from `ffmpeg -encoders`
// output. Audio encoder lines look like " A..... libopus  Opus".
func parseEncoderList(output []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	inList := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "A") {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}
