package session

import (
	"log/slog"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/codec"
	"github.com/talkform/voicenote-pipeline/internal/platform"
	"github.com/talkform/voicenote-pipeline/internal/types"
)

// Assembler merges time-sliced encoder output into one ordered buffer.
// Chunks are appended in arrival order, which the encoder guarantees to be
// chronological; no reordering or deduplication is performed. The session
// is the only writer, so no locking is needed here.
type Assembler struct {
	chunks  [][]byte
	total   int64
	dropped int
}

// Append retains a non-empty chunk and reports whether it was kept.
// Empty chunks are logged and dropped, never appended.
func (a *Assembler) Append(data []byte) bool {
	if len(data) == 0 {
		a.dropped++
		slog.Debug("dropped empty chunk", "dropped_so_far", a.dropped)
		return false
	}
	a.chunks = append(a.chunks, data)
	a.total += int64(len(data))
	return true
}

// ChunkCount returns the number of retained chunks.
func (a *Assembler) ChunkCount() int {
	return len(a.chunks)
}

// TotalBytes returns the sum of retained chunk sizes.
func (a *Assembler) TotalBytes() int64 {
	return a.total
}

// DroppedCount returns the number of empty chunks dropped.
func (a *Assembler) DroppedCount() int {
	return a.dropped
}

// Reset discards all buffered chunks.
func (a *Assembler) Reset() {
	a.chunks = nil
	a.total = 0
	a.dropped = 0
}

// Assemble concatenates all retained chunks into one artifact tagged with
// the negotiated choice. It fails with ErrEmptyRecording when no usable
// chunk was ever received: a zero-byte artifact would be silently sent and
// rejected far later, wasting a network round trip.
func (a *Assembler) Assemble(choice codec.Choice, class platform.Class, originalMime string, duration time.Duration, capturedAt time.Time) (*types.Artifact, error) {
	if len(a.chunks) == 0 {
		return nil, ErrEmptyRecording
	}

	buf := make([]byte, 0, a.total)
	for _, c := range a.chunks {
		buf = append(buf, c...)
	}

	return &types.Artifact{
		Buffer:          buf,
		MimeType:        choice.MimeType,
		Extension:       choice.Extension,
		SizeBytes:       a.total,
		DurationSeconds: duration.Seconds(),
		Platform:        class.String(),
		OriginalMime:    originalMime,
		CapturedAt:      capturedAt,
	}, nil
}
