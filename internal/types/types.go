// Package types provides shared type definitions used across the pipeline.
package types

import "time"

// UnknownField is substituted for absent identity fields at delivery time.
// Recordings may be sent from a not-fully-resolved identity context so no
// audio is lost to an identity race.
const UnknownField = "unknown"

// Identity is the caller identity supplied by the external collaborator.
// Any field may be empty; delivery substitutes UnknownField.
type Identity struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
}

// OrUnknown returns v, or UnknownField when v is empty.
func OrUnknown(v string) string {
	if v == "" {
		return UnknownField
	}
	return v
}

// Artifact is a finalized, assembled audio buffer ready for delivery or
// fallback persistence. It is derived once from a terminated session's
// chunks and is read-only afterwards.
type Artifact struct {
	// Buffer is the assembled audio data.
	Buffer []byte `json:"-"`
	// MimeType is the negotiated container MIME type.
	MimeType string `json:"mime_type"`
	// Extension is the negotiated file extension, without dot.
	Extension string `json:"extension"`
	// SizeBytes equals the sum of all non-empty chunk sizes.
	SizeBytes int64 `json:"size_bytes"`
	// DurationSeconds is the recorded duration excluding paused time.
	DurationSeconds float64 `json:"duration_seconds"`
	// Platform is the platform class string the session was profiled as.
	Platform string `json:"platform"`
	// OriginalMime is the most-preferred candidate before negotiation,
	// carried for server-side diagnostics.
	OriginalMime string `json:"original_mime"`
	// CapturedAt is when the recording was stopped.
	CapturedAt time.Time `json:"captured_at"`
}

// FallbackArtifact is a locally retrievable copy of an Artifact, created
// only after a failed delivery attempt. Its lifetime is user-controlled;
// the pipeline does not track it after creation.
type FallbackArtifact struct {
	// Path is the absolute path of the persisted file.
	Path string `json:"path"`
	// Filename is the base name of the persisted file.
	Filename string `json:"filename"`
	// SizeBytes is the persisted file size.
	SizeBytes int64 `json:"size_bytes"`
	// CreatedAt is when the file was written.
	CreatedAt time.Time `json:"created_at"`
}
