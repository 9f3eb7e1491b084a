package platform

// Sample rate constants for capture constraints.
const (
	// FullSampleRate is the full-fidelity capture rate in Hz.
	FullSampleRate = 48000
	// ReducedSampleRate favors recorder stability on fragile capture stacks.
	ReducedSampleRate = 44100
)

// SampleRange expresses a sample rate request. A fixed rate sets only Ideal;
// a range additionally sets Min for heterogeneous input devices.
type SampleRange struct {
	// Ideal is the preferred sample rate in Hz.
	Ideal int `json:"ideal"`
	// Min is the lowest acceptable rate in Hz. Zero means fixed-rate request.
	Min int `json:"min,omitempty"`
}

// IsRange reports whether the request carries a minimum bound.
func (s SampleRange) IsRange() bool {
	return s.Min > 0
}

// CaptureConfig is the concrete capture configuration for one platform class.
// It is a pure function of the class and carries no mutable state.
type CaptureConfig struct {
	EchoCancellation bool        `json:"echo_cancellation"`
	NoiseSuppression bool        `json:"noise_suppression"`
	AutoGainControl  bool        `json:"auto_gain_control"`
	SampleRate       SampleRange `json:"sample_rate"`
	ChannelCount     int         `json:"channel_count"`
}

// BuildConstraints returns the capture configuration for a platform class.
// Deterministic table lookup; there is no failure mode. Actual device
// negotiation failures surface from the capture session, not from here.
func BuildConstraints(class Class) CaptureConfig {
	switch class {
	case ClassIOS:
		// The iOS capture stack is known to drop recordings at full rate.
		return CaptureConfig{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			SampleRate:       SampleRange{Ideal: ReducedSampleRate},
			ChannelCount:     1,
		}
	case ClassAndroid:
		return CaptureConfig{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			SampleRate:       SampleRange{Ideal: FullSampleRate},
			ChannelCount:     1,
		}
	case ClassGenericMobile:
		return CaptureConfig{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			SampleRate:       SampleRange{Ideal: ReducedSampleRate},
			ChannelCount:     1,
		}
	default:
		// Desktop input devices are heterogeneous, so request a range
		// instead of a fixed value.
		return CaptureConfig{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  false,
			SampleRate:       SampleRange{Ideal: FullSampleRate, Min: ReducedSampleRate},
			ChannelCount:     2,
		}
	}
}
