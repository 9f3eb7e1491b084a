// Package audio provides the host-side capture and encoding backend.
// It acquires the platform's audio input device, runs a chunked FFmpeg
// encoder over the raw PCM stream, and probes the local FFmpeg build for
// codec support.
package audio

import "errors"

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

// DeviceInfo describes an available audio input device.
type DeviceInfo struct {
	// ID is the device identifier usable in a capture command.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
}
