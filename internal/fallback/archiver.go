package fallback

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/talkform/voicenote-pipeline/internal/eventlog"
	"github.com/talkform/voicenote-pipeline/internal/types"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// archiveRequest represents a fallback file to be uploaded to S3.
type archiveRequest struct {
	localPath   string
	s3Key       string
	contentType string
	fileSize    int64
}

// pendingArchive tracks a failed upload for retry.
type pendingArchive struct {
	request      archiveRequest
	firstAttempt time.Time
	retryCount   int
	lastError    string
}

// MaxArchiveRetryAge is the maximum age for retrying uploads.
const MaxArchiveRetryAge = 24 * time.Hour

// archiveTimeout bounds a single S3 upload or listing pass.
const archiveTimeout = 5 * time.Minute

// archiveQueueSize bounds the upload backlog. Fallback artifacts are rare
// by construction, so a full queue indicates a persistent S3 outage.
const archiveQueueSize = 32

// Archiver copies persisted fallback artifacts to an S3-compatible bucket
// in the background, so a lost device does not mean a lost note.
type Archiver struct {
	cfg    S3Config
	client *s3.Client
	events *eventlog.Logger

	queue  chan archiveRequest
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	retry []pendingArchive
}

// NewArchiver returns an archiver for the given S3 configuration.
func NewArchiver(cfg S3Config, events *eventlog.Logger) (*Archiver, error) {
	if !cfg.IsConfigured() {
		return nil, errors.New("S3 archival is not configured")
	}
	return &Archiver{
		cfg:    cfg,
		client: createS3Client(&cfg),
		events: events,
		queue:  make(chan archiveRequest, archiveQueueSize),
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches the upload worker.
func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.worker()
}

// Stop signals the worker and waits for the queue to drain.
func (a *Archiver) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

// Enqueue queues a persisted artifact for upload.
func (a *Archiver) Enqueue(fb types.FallbackArtifact, contentType string) {
	req := archiveRequest{
		localPath:   fb.Path,
		s3Key:       a.keyFor(fb.Filename),
		contentType: contentType,
		fileSize:    fb.SizeBytes,
	}

	select {
	case a.queue <- req:
		slog.Info("queued fallback artifact for archival", "file", fb.Filename)
		a.logEvent(eventlog.UploadQueued, fb.Filename, req.s3Key, 0, "")
	default:
		slog.Warn("archive queue full", "file", fb.Filename)
	}
}

func (a *Archiver) keyFor(filename string) string {
	prefix := a.cfg.Prefix
	if prefix == "" {
		prefix = "fallback"
	}
	return prefix + "/" + filename
}

// worker processes the archive queue, draining remaining items on shutdown.
func (a *Archiver) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			// Drain remaining items before exiting
			for {
				select {
				case req := <-a.queue:
					a.archive(req)
				default:
					return
				}
			}
		case req := <-a.queue:
			a.archive(req)
		}
	}
}

// archive uploads one file, moving it to the retry queue on failure.
func (a *Archiver) archive(req archiveRequest) {
	if err := a.put(req); err != nil {
		slog.Error("archival failed", "s3_key", req.s3Key, "error", err)
		a.logEvent(eventlog.UploadFailed, filepath.Base(req.localPath), req.s3Key, 0, err.Error())
		a.addToRetryQueue(req, err.Error())
		return
	}

	slog.Info("archival completed", "s3_key", req.s3Key)
	a.logEvent(eventlog.UploadCompleted, filepath.Base(req.localPath), req.s3Key, 0, "")
}

// put performs the actual S3 upload with a bounded context.
func (a *Archiver) put(req archiveRequest) error {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		archiveTimeout,
		errors.New("s3 archival timeout"),
	)
	defer cancel()

	file, err := os.Open(req.localPath)
	if err != nil {
		return util.WrapError("open fallback file", err)
	}
	defer util.SafeCloseFunc(file, "fallback file")()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(req.s3Key),
		Body:          file,
		ContentLength: aws.Int64(req.fileSize),
		ContentType:   aws.String(req.contentType),
	})
	if err != nil {
		return util.WrapError("put object", err)
	}
	return nil
}

// addToRetryQueue adds a failed upload to the retry queue.
func (a *Archiver) addToRetryQueue(req archiveRequest, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Prevent duplicates
	for _, p := range a.retry {
		if p.request.localPath == req.localPath {
			return
		}
	}

	a.retry = append(a.retry, pendingArchive{
		request:      req,
		firstAttempt: time.Now(),
		lastError:    errMsg,
	})

	slog.Info("archival queued for retry", "file", filepath.Base(req.localPath))
}

// ProcessRetries attempts to upload all pending files. Called from the
// daily retention run.
func (a *Archiver) ProcessRetries() {
	a.mu.Lock()
	if len(a.retry) == 0 {
		a.mu.Unlock()
		return
	}

	// Copy and clear queue
	pending := make([]pendingArchive, len(a.retry))
	copy(pending, a.retry)
	a.retry = nil
	a.mu.Unlock()

	now := time.Now()

	for i := range pending {
		p := &pending[i]
		filename := filepath.Base(p.request.localPath)

		// Check 24-hour limit
		if now.Sub(p.firstAttempt) > MaxArchiveRetryAge {
			slog.Warn("archival abandoned after 24h",
				"file", filename, "attempts", p.retryCount+1)
			a.logEvent(eventlog.UploadAbandoned, filename, p.request.s3Key, p.retryCount, "exceeded 24h retry limit")
			continue
		}

		p.retryCount++
		slog.Info("retrying archival", "file", filename, "attempt", p.retryCount)

		if !a.retryArchive(p) {
			// Failed - re-add to queue
			a.mu.Lock()
			a.retry = append(a.retry, *p)
			a.mu.Unlock()
		}
	}
}

// retryArchive performs the upload and returns true on success, or when
// the source file no longer exists.
func (a *Archiver) retryArchive(p *pendingArchive) bool {
	filename := filepath.Base(p.request.localPath)

	if _, err := os.Stat(p.request.localPath); os.IsNotExist(err) {
		slog.Warn("retry file no longer exists", "path", p.request.localPath)
		return true
	}

	if err := a.put(p.request); err != nil {
		p.lastError = err.Error()
		slog.Error("retry archival failed", "s3_key", p.request.s3Key, "error", err)
		a.logEvent(eventlog.UploadFailed, filename, p.request.s3Key, p.retryCount, err.Error())
		return false
	}

	slog.Info("retry archival completed", "s3_key", p.request.s3Key)
	a.logEvent(eventlog.UploadCompleted, filename, p.request.s3Key, p.retryCount, "")
	return true
}

// SweepRemote removes archived objects older than retentionDays. A
// retention of 0 keeps everything.
func (a *Archiver) SweepRemote(retentionDays int) int {
	if retentionDays <= 0 {
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	prefix := a.keyFor("")

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		archiveTimeout,
		errors.New("s3 cleanup timeout"),
	)
	defer cancel()

	var deleted int
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(a.cfg.Bucket),
			Prefix: aws.String(prefix),
		}
		if continuationToken != nil {
			input.ContinuationToken = continuationToken
		}

		output, err := a.client.ListObjectsV2(ctx, input)
		if err != nil {
			slog.Warn("retention sweep: failed to list S3 objects", "bucket", a.cfg.Bucket, "error", err)
			return deleted
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			fileDate, ok := util.ExtractDateFromFilename(filepath.Base(key))
			if !ok || !fileDate.Before(cutoff) {
				continue
			}

			_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(a.cfg.Bucket),
				Key:    obj.Key,
			})
			if err != nil {
				slog.Warn("retention sweep: failed to delete S3 object", "key", key, "error", err)
				continue
			}
			deleted++
			slog.Debug("retention sweep: deleted S3 object", "key", key)
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	if deleted > 0 {
		slog.Info("retention sweep: deleted S3 objects", "count", deleted)
		a.logEvent(eventlog.CleanupCompleted, "", "", 0, "")
	}
	return deleted
}

func (a *Archiver) logEvent(eventType eventlog.EventType, filename, s3Key string, retryCount int, errMsg string) {
	if a.events == nil {
		return
	}
	err := a.events.LogFallback(eventType, &eventlog.FallbackDetails{
		Filename:    filename,
		S3Key:       s3Key,
		RetryCount:  retryCount,
		Error:       errMsg,
		StorageType: "s3",
	})
	if err != nil {
		slog.Warn("failed to log fallback event", "type", eventType, "error", err)
	}
}
