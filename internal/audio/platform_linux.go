//go:build linux

package audio

import (
	"regexp"
	"strconv"
)

func getPlatformConfig() captureCommandConfig {
	return captureCommandConfig{
		Command:       "arecord",
		DefaultDevice: "default",
		BuildArgs:     buildLinuxArgs,
	}
}

func buildLinuxArgs(device string, sampleRate, channels int) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(sampleRate),
		"-c", strconv.Itoa(channels),
		"-t", "raw",
		"-q",
		"-",
	}
}

func (cfg *captureCommandConfig) Devices() []DeviceInfo {
	return parseDeviceList(deviceListConfig{
		Command:          []string{"arecord", "-l"},
		AudioStartMarker: "", // No marker, parse all lines
		DevicePattern:    regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		ParseDevice: func(matches []string) *DeviceInfo {
			if len(matches) < 4 {
				return nil
			}
			return &DeviceInfo{
				ID:   "default:CARD=" + matches[2],
				Name: matches[3],
			}
		},
		FallbackDevices: []DeviceInfo{
			{ID: "default", Name: "Default capture device"},
		},
	})
}
