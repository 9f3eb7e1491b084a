//go:build windows

package audio

import "strconv"

// buildFFmpegCaptureArgs constructs FFmpeg arguments for audio capture on
// Windows. -nostdin is NOT used here so the process can be shut down
// gracefully via the 'q' command.
func buildFFmpegCaptureArgs(inputFormat, device string, sampleRate, channels int) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}
}
