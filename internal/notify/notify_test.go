package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/types"
)

func TestSendWebhookSkipsWhenUnconfigured(t *testing.T) {
	if err := sendWebhook("", &WebhookPayload{Event: "test"}); err != nil {
		t.Errorf("sendWebhook with empty URL = %v, want nil", err)
	}
}

func TestSendWebhookPostsJSON(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := sendWebhook(srv.URL, &WebhookPayload{
		Event:     "delivery_failed",
		Platform:  "ios",
		Reason:    "timeout",
		Timestamp: timestampUTC(),
	})
	if err != nil {
		t.Fatalf("sendWebhook: %v", err)
	}
	if got.Event != "delivery_failed" || got.Reason != "timeout" || got.Platform != "ios" {
		t.Errorf("payload = %+v", got)
	}
}

func TestSendWebhookRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := sendWebhook(srv.URL, &WebhookPayload{Event: "test"}); err == nil {
		t.Error("sendWebhook accepted 500 response")
	}
}

func TestSessionChangedReachesWebhook(t *testing.T) {
	got := make(chan WebhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(func() Settings { return Settings{WebhookURL: srv.URL} })
	n.SessionChanged("session_stopped", "sess-1", 12, "")

	select {
	case p := <-got:
		if p.Event != "session_stopped" || p.SessionID != "sess-1" || p.DurationSeconds != 12 {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never received the session event")
	}
}

func TestDeliveryStartedReachesWebhook(t *testing.T) {
	got := make(chan WebhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(func() Settings { return Settings{WebhookURL: srv.URL} })
	n.DeliveryStarted(&types.Artifact{Platform: "android", SizeBytes: 2048})

	select {
	case p := <-got:
		if p.Event != "delivery_started" || p.Platform != "android" || p.SizeBytes != 2048 {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never received the delivery event")
	}
}

func TestAppendLogEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.jsonl")
	entries := []*LogEntry{
		{Timestamp: timestampUTC(), Event: "delivery_failed", Reason: "network"},
		{Timestamp: timestampUTC(), Event: "fallback_created", Filename: "a.webm"},
	}
	for _, e := range entries {
		if err := appendLogEntry(path, e); err != nil {
			t.Fatalf("appendLogEntry: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("log has %d lines, want 2", lines)
	}
}

func TestParseRecipients(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a@x.com", []string{"a@x.com"}},
		{"a@x.com, b@y.com", []string{"a@x.com", "b@y.com"}},
		{" , a@x.com ,, ", []string{"a@x.com"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := ParseRecipients(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseRecipients(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateCredentials(t *testing.T) {
	valid := GraphConfig{
		TenantID:     "12345678-1234-1234-1234-123456789abc",
		ClientID:     "87654321-4321-4321-4321-cba987654321",
		ClientSecret: "secret",
	}
	if err := validateCredentials(&valid, true); err != nil {
		t.Errorf("strict validation rejected valid config: %v", err)
	}

	loose := GraphConfig{TenantID: "not-a-guid", ClientID: "also-not", ClientSecret: "s"}
	if err := validateCredentials(&loose, false); err != nil {
		t.Errorf("non-strict validation rejected present fields: %v", err)
	}
	if err := validateCredentials(&loose, true); err == nil {
		t.Error("strict validation accepted malformed GUIDs")
	}

	if err := validateCredentials(&GraphConfig{}, false); err == nil {
		t.Error("validation accepted empty config")
	}
}

func TestSettingsPredicates(t *testing.T) {
	var s Settings
	if s.HasWebhook() || s.HasLogPath() || s.HasGraph() {
		t.Error("empty settings reported a configured channel")
	}

	s.WebhookURL = "https://hooks.example/x"
	s.LogPath = "/tmp/notify.jsonl"
	if !s.HasWebhook() || !s.HasLogPath() {
		t.Error("configured webhook or log path not detected")
	}
}
