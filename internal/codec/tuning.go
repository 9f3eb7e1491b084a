package codec

import (
	"time"

	"github.com/talkform/voicenote-pipeline/internal/platform"
)

// Encoder tuning constants per platform tier.
const (
	// MobileChunkInterval bounds memory per slice and keeps the UI responsive.
	MobileChunkInterval = 250 * time.Millisecond
	// DesktopChunkInterval is looser for encoder stability.
	DesktopChunkInterval = 1000 * time.Millisecond

	// StandardBitRate is the target encoder bit rate in bits per second.
	StandardBitRate = 128000
	// MobileBitRate trades fidelity for encoder headroom on mobile.
	MobileBitRate = 96000
	// IOSBitRate is the lowest tier, reducing encoder strain on iOS.
	IOSBitRate = 64000
)

// Tuning holds the platform-dependent encoder parameters consumed by the
// capture session: how often the encoder flushes a time slice, and the
// target bit rate.
type Tuning struct {
	ChunkInterval time.Duration `json:"chunk_interval"`
	BitRate       int           `json:"bit_rate"`
}

// TuningFor returns the encoder tuning for a platform class.
func TuningFor(class platform.Class) Tuning {
	switch class {
	case platform.ClassIOS:
		return Tuning{ChunkInterval: MobileChunkInterval, BitRate: IOSBitRate}
	case platform.ClassAndroid, platform.ClassGenericMobile:
		return Tuning{ChunkInterval: MobileChunkInterval, BitRate: MobileBitRate}
	default:
		return Tuning{ChunkInterval: DesktopChunkInterval, BitRate: StandardBitRate}
	}
}
