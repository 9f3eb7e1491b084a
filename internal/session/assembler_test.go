package session

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/codec"
	"github.com/talkform/voicenote-pipeline/internal/platform"
)

var testChoice = codec.Choice{MimeType: "audio/webm", Extension: "webm"}

func TestAssemblerSizeInvariant(t *testing.T) {
	tests := []struct {
		name        string
		chunks      [][]byte
		wantSize    int64
		wantDropped int
	}{
		{
			name:     "three plain chunks",
			chunks:   [][]byte{make([]byte, 1000), make([]byte, 1200), make([]byte, 900)},
			wantSize: 3100,
		},
		{
			name:        "empty chunks are dropped and counted",
			chunks:      [][]byte{{}, make([]byte, 64), nil, make([]byte, 36), {}},
			wantSize:    100,
			wantDropped: 3,
		},
		{
			name:     "single chunk",
			chunks:   [][]byte{{0x1a, 0x45, 0xdf, 0xa3}},
			wantSize: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Assembler
			for _, c := range tt.chunks {
				a.Append(c)
			}

			artifact, err := a.Assemble(testChoice, platform.ClassDesktop, "audio/webm;codecs=opus", 5*time.Second, time.Now())
			if err != nil {
				t.Fatalf("Assemble() error: %v", err)
			}
			if artifact.SizeBytes != tt.wantSize {
				t.Errorf("SizeBytes = %d, want %d", artifact.SizeBytes, tt.wantSize)
			}
			if int64(len(artifact.Buffer)) != tt.wantSize {
				t.Errorf("len(Buffer) = %d, want %d", len(artifact.Buffer), tt.wantSize)
			}
			if a.DroppedCount() != tt.wantDropped {
				t.Errorf("DroppedCount() = %d, want %d", a.DroppedCount(), tt.wantDropped)
			}
		})
	}
}

func TestAssemblerPreservesArrivalOrder(t *testing.T) {
	var a Assembler
	a.Append([]byte{1, 1})
	a.Append([]byte{2})
	a.Append([]byte{3, 3, 3})

	artifact, err := a.Assemble(testChoice, platform.ClassAndroid, "audio/webm", time.Second, time.Now())
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	want := []byte{1, 1, 2, 3, 3, 3}
	if !bytes.Equal(artifact.Buffer, want) {
		t.Errorf("Buffer = %v, want %v", artifact.Buffer, want)
	}
}

func TestAssembleEmptyRecording(t *testing.T) {
	t.Run("no chunks at all", func(t *testing.T) {
		var a Assembler
		_, err := a.Assemble(testChoice, platform.ClassIOS, "audio/mp4", 0, time.Now())
		if !errors.Is(err, ErrEmptyRecording) {
			t.Errorf("err = %v, want ErrEmptyRecording", err)
		}
	})

	t.Run("only empty chunks", func(t *testing.T) {
		var a Assembler
		a.Append(nil)
		a.Append([]byte{})
		_, err := a.Assemble(testChoice, platform.ClassIOS, "audio/mp4", 0, time.Now())
		if !errors.Is(err, ErrEmptyRecording) {
			t.Errorf("err = %v, want ErrEmptyRecording", err)
		}
	})
}

func TestAssembleTagsArtifact(t *testing.T) {
	var a Assembler
	a.Append(make([]byte, 10))

	artifact, err := a.Assemble(
		codec.Choice{MimeType: "audio/mp4", Extension: "m4a"},
		platform.ClassIOS, "audio/mp4", 9*time.Second, time.Now(),
	)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if artifact.MimeType != "audio/mp4" || artifact.Extension != "m4a" {
		t.Errorf("artifact mistagged: %+v", artifact)
	}
	if artifact.Platform != "ios" {
		t.Errorf("Platform = %q, want ios", artifact.Platform)
	}
	if artifact.DurationSeconds != 9 {
		t.Errorf("DurationSeconds = %v, want 9", artifact.DurationSeconds)
	}
}
