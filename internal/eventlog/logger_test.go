package eventlog

import (
	"path/filepath"
	"testing"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.jsonl")
	logger, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestReadLastNewestFirst(t *testing.T) {
	logger := newTestLogger(t)
	ids := []string{"s1", "s2", "s3"}
	for _, id := range ids {
		if err := logger.LogSession(SessionStarted, id, &SessionDetails{Platform: "ios"}); err != nil {
			t.Fatalf("LogSession: %v", err)
		}
	}

	events, hasMore, err := ReadLast(logger.Path(), 10, 0, FilterAll)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if hasMore {
		t.Error("hasMore = true with all events returned")
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []string{"s3", "s2", "s1"} {
		if events[i].SessionID != want {
			t.Errorf("events[%d].SessionID = %q, want %q", i, events[i].SessionID, want)
		}
	}
}

func TestReadLastPagination(t *testing.T) {
	logger := newTestLogger(t)
	for range 5 {
		if err := logger.LogDelivery(DeliveryFailed, "s1", &DeliveryDetails{Reason: "timeout"}); err != nil {
			t.Fatalf("LogDelivery: %v", err)
		}
	}

	events, hasMore, err := ReadLast(logger.Path(), 2, 0, FilterAll)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(events) != 2 || !hasMore {
		t.Errorf("page 1: got %d events, hasMore=%v", len(events), hasMore)
	}

	events, hasMore, err = ReadLast(logger.Path(), 2, 4, FilterAll)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(events) != 1 || hasMore {
		t.Errorf("last page: got %d events, hasMore=%v", len(events), hasMore)
	}
}

func TestReadLastFilter(t *testing.T) {
	logger := newTestLogger(t)
	logger.LogSession(SessionStarted, "s1", nil)
	logger.LogDelivery(DeliveryStarted, "s1", nil)
	logger.LogFallback(FallbackCreated, &FallbackDetails{Filename: "a.webm"})
	logger.LogDelivery(DeliveryFailed, "s1", &DeliveryDetails{Reason: "network"})

	tests := []struct {
		filter TypeFilter
		want   int
	}{
		{FilterAll, 4},
		{FilterSession, 1},
		{FilterDelivery, 2},
		{FilterFallback, 1},
	}
	for _, tt := range tests {
		events, _, err := ReadLast(logger.Path(), 10, 0, tt.filter)
		if err != nil {
			t.Fatalf("ReadLast(%q): %v", tt.filter, err)
		}
		if len(events) != tt.want {
			t.Errorf("filter %q: got %d events, want %d", tt.filter, len(events), tt.want)
		}
	}
}

func TestReadLastMissingFile(t *testing.T) {
	events, hasMore, err := ReadLast(filepath.Join(t.TempDir(), "absent.jsonl"), 10, 0, FilterAll)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(events) != 0 || hasMore {
		t.Errorf("got %d events, hasMore=%v, want empty", len(events), hasMore)
	}
}
