// Package fallback keeps undelivered voice-note artifacts retrievable.
// Artifacts are written to a local directory, optionally archived to S3,
// and swept by a daily retention job.
package fallback

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/eventlog"
	"github.com/talkform/voicenote-pipeline/internal/types"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// timestampLayout is a filesystem-safe RFC3339 variant; colons are not
// portable across filesystems.
const timestampLayout = "2006-01-02T15-04-05Z"

// filePrefix marks files this package owns inside the fallback directory.
const filePrefix = "recording_"

// Store persists artifacts whose delivery failed so they survive process
// restarts and can be handed back to the user later.
type Store struct {
	dir      string
	archiver *Archiver
	events   *eventlog.Logger
	now      func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithArchiver enables S3 archival of persisted artifacts.
func WithArchiver(a *Archiver) StoreOption {
	return func(s *Store) { s.archiver = a }
}

// WithEventLog records fallback events to the given logger.
func WithEventLog(l *eventlog.Logger) StoreOption {
	return func(s *Store) { s.events = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore validates the directory and returns a store. Writability is
// probed up front so delivery failures never discover a broken fallback
// path at the worst moment.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if err := util.ValidatePath("fallback directory", dir); err != nil {
		return nil, err
	}
	if err := util.CheckPathWritable(dir); err != nil {
		return nil, util.WrapError("fallback directory", err)
	}

	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the fallback directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Filename builds the artifact filename embedding platform, user and
// capture timestamp, so files remain attributable without a database.
func Filename(artifact *types.Artifact, identity types.Identity) string {
	ts := artifact.CapturedAt.UTC().Format(timestampLayout)
	return fmt.Sprintf("%s%s_%s_%s.%s",
		filePrefix, artifact.Platform, types.OrUnknown(identity.UserID), ts, artifact.Extension)
}

// Persist writes the artifact to the fallback directory and queues it for
// archival when an archiver is attached.
func (s *Store) Persist(artifact *types.Artifact, identity types.Identity) (types.FallbackArtifact, error) {
	filename := Filename(artifact, identity)
	path := filepath.Join(s.dir, filename)

	if err := os.WriteFile(path, artifact.Buffer, 0o644); err != nil {
		return types.FallbackArtifact{}, util.WrapError("write fallback artifact", err)
	}

	fb := types.FallbackArtifact{
		Path:      path,
		Filename:  filename,
		SizeBytes: artifact.SizeBytes,
		CreatedAt: s.now(),
	}

	slog.Info("fallback artifact persisted", "file", filename, "size_bytes", fb.SizeBytes)
	s.logEvent(eventlog.FallbackCreated, &eventlog.FallbackDetails{
		Filename:  filename,
		SizeBytes: fb.SizeBytes,
	})

	if s.archiver != nil {
		s.archiver.Enqueue(fb, artifact.MimeType)
	}
	return fb, nil
}

// List returns the persisted artifacts, newest first.
func (s *Store) List() ([]types.FallbackArtifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, util.WrapError("read fallback directory", err)
	}

	var artifacts []types.FallbackArtifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, types.FallbackArtifact{
			Path:      filepath.Join(s.dir, entry.Name()),
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	for i, j := 0, len(artifacts)-1; i < j; i, j = i+1, j-1 {
		artifacts[i], artifacts[j] = artifacts[j], artifacts[i]
	}
	return artifacts, nil
}

// Open returns the stored bytes of a persisted artifact.
func (s *Store) Open(filename string) ([]byte, error) {
	if filepath.Base(filename) != filename || !strings.HasPrefix(filename, filePrefix) {
		return nil, fmt.Errorf("invalid fallback filename: %q", filename)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, util.WrapError("read fallback artifact", err)
	}
	return data, nil
}

// Remove deletes a persisted artifact. The filename must be bare, never a
// path.
func (s *Store) Remove(filename string) error {
	if filepath.Base(filename) != filename || !strings.HasPrefix(filename, filePrefix) {
		return fmt.Errorf("invalid fallback filename: %q", filename)
	}
	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil {
		return util.WrapError("remove fallback artifact", err)
	}
	slog.Info("fallback artifact removed", "file", filename)
	return nil
}

// SweepLocal removes artifacts older than retentionDays. A retention of 0
// keeps everything.
func (s *Store) SweepLocal(retentionDays int) int {
	if retentionDays <= 0 {
		return 0
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("retention sweep: failed to read fallback directory", "path", s.dir, "error", err)
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	var deleted int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		fileDate, ok := util.ExtractDateFromFilename(entry.Name())
		if !ok || !fileDate.Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("retention sweep: failed to delete local file", "path", path, "error", err)
			continue
		}
		deleted++
		slog.Debug("retention sweep: deleted local file", "file", entry.Name())
	}

	if deleted > 0 {
		slog.Info("retention sweep: deleted local artifacts", "count", deleted)
		s.logEvent(eventlog.CleanupCompleted, &eventlog.FallbackDetails{
			FilesDeleted: deleted,
			StorageType:  "local",
		})
	}
	return deleted
}

func (s *Store) logEvent(eventType eventlog.EventType, details *eventlog.FallbackDetails) {
	if s.events == nil {
		return
	}
	if err := s.events.LogFallback(eventType, details); err != nil {
		slog.Warn("failed to log fallback event", "type", eventType, "error", err)
	}
}
