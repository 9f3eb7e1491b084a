//go:build darwin

package audio

import "regexp"

func getPlatformConfig() captureCommandConfig {
	return captureCommandConfig{
		Command:       "ffmpeg",
		DefaultDevice: ":0",
		UsesFFmpeg:    true,
		BuildArgs:     buildDarwinArgs,
	}
}

func buildDarwinArgs(device string, sampleRate, channels int) []string {
	return buildFFmpegCaptureArgs("avfoundation", device, sampleRate, channels)
}

func (cfg *captureCommandConfig) Devices() []DeviceInfo {
	return parseDeviceList(deviceListConfig{
		Command:          []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		AudioStartMarker: "AVFoundation audio devices:",
		AudioStopMarker:  "AVFoundation video devices:",
		DevicePattern:    regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		ParseDevice: func(matches []string) *DeviceInfo {
			if len(matches) < 3 {
				return nil
			}
			return &DeviceInfo{
				ID:   ":" + matches[1],
				Name: matches[2],
			}
		},
		FallbackDevices: nil,
	})
}
