package server

import (
	"errors"

	"github.com/talkform/voicenote-pipeline/internal/fallback"
)

// handleFallbackList sends the locally persisted fallback recordings,
// newest first.
func (h *CommandHandler) handleFallbackList(send chan<- any) {
	HandleActionAsync(WSCommand{Type: "fallback/list"}, send, func() (any, error) {
		artifacts, err := h.store.List()
		if err != nil {
			return nil, err
		}
		return map[string]any{"artifacts": artifacts}, nil
	})
}

// handleFallbackDelete processes a fallback/delete command. Fallback copies
// are user-controlled; deleting one is final.
func (h *CommandHandler) handleFallbackDelete(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *FallbackDeleteRequest) error {
		return h.store.Remove(req.Filename)
	})
}

// handleFallbackSweep runs the retention sweep immediately instead of
// waiting for the nightly schedule.
func (h *CommandHandler) handleFallbackSweep(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		if h.sweeper == nil {
			return nil, errors.New("retention sweep not configured")
		}
		h.sweeper.Run()
		return nil, nil
	})
}

// handleFallbackTestS3 verifies S3 connectivity with the provided
// credentials by writing and removing a probe object.
func (h *CommandHandler) handleFallbackTestS3(cmd WSCommand, send chan<- any) {
	var req S3TestRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		cfg := fallback.S3Config{
			Endpoint:        req.Endpoint,
			Bucket:          req.Bucket,
			AccessKeyID:     req.AccessKey,
			SecretAccessKey: req.SecretKey,
		}
		if err := fallback.CheckS3Connection(&cfg); err != nil {
			return nil, err
		}
		return map[string]string{"message": "S3 connection verified"}, nil
	})
}
