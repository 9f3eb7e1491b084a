package util

import "os/exec"

// ResolveFFmpegPath returns the path to the FFmpeg binary used for local
// capture and encoding. A custom path is validated; otherwise PATH is
// searched. Returns an empty string when FFmpeg is unavailable, in which
// case the pipeline runs with capture disabled.
func ResolveFFmpegPath(customPath string) string {
	if customPath != "" {
		if _, err := exec.LookPath(customPath); err == nil {
			return customPath
		}
		return ""
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return ""
	}
	return path
}
