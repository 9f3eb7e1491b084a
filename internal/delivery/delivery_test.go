package delivery

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/types"
)

type stubPersister struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (p *stubPersister) Persist(artifact *types.Artifact, _ types.Identity) (types.FallbackArtifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return types.FallbackArtifact{}, io.ErrUnexpectedEOF
	}
	return types.FallbackArtifact{
		Path:      "/tmp/fallback/" + "note." + artifact.Extension,
		Filename:  "note." + artifact.Extension,
		SizeBytes: artifact.SizeBytes,
		CreatedAt: time.Now(),
	}, nil
}

func (p *stubPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []string
	reasons  []string
	fallback int
}

func (n *recordingNotifier) DeliveryStarted(*types.Artifact) {
	n.add("started")
}

func (n *recordingNotifier) DeliverySucceeded(*types.Artifact, int) {
	n.add("succeeded")
}

func (n *recordingNotifier) DeliveryFailed(_ *types.Artifact, reason string) {
	n.mu.Lock()
	n.reasons = append(n.reasons, reason)
	n.mu.Unlock()
	n.add("failed")
}

func (n *recordingNotifier) FallbackCreated(types.FallbackArtifact) {
	n.mu.Lock()
	n.fallback++
	n.mu.Unlock()
	n.add("fallback")
}

func (n *recordingNotifier) add(ev string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) sequence() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func testArtifact() *types.Artifact {
	return &types.Artifact{
		Buffer:          []byte("opus-bytes"),
		MimeType:        "audio/webm;codecs=opus",
		Extension:       "webm",
		SizeBytes:       10,
		DurationSeconds: 7,
		Platform:        "desktop",
		OriginalMime:    "audio/webm;codecs=opus",
		CapturedAt:      time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func testIdentity() types.Identity {
	return types.Identity{
		UserID: "u-42", Email: "u@example.com",
		FirstName: "Ada", LastName: "Lovelace", Company: "Analytical",
	}
}

func newTestService(t *testing.T, endpoint string, opts ...Option) (*Service, *stubPersister, *recordingNotifier) {
	t.Helper()
	persister := &stubPersister{}
	notifier := &recordingNotifier{}
	svc, err := NewService(endpoint, persister, notifier, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, persister, notifier
}

func TestNewServiceRejectsInvalidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"empty", ""},
		{"no scheme", "talkform.example/upload"},
		{"bad scheme", "ftp://talkform.example/upload"},
		{"no host", "https:///upload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.endpoint, &stubPersister{}, &recordingNotifier{}); err == nil {
				t.Fatalf("NewService(%q) accepted invalid endpoint", tt.endpoint)
			}
		})
	}
}

func TestSendSuccessWithUnparsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "<<not json>>")
	}))
	defer srv.Close()

	svc, persister, notifier := newTestService(t, srv.URL)
	res := svc.Send(context.Background(), testArtifact(), testIdentity(), "ua/1.0")

	if !res.Delivered {
		t.Fatalf("Send: delivered=false, reason=%q", res.Reason)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.StatusCode)
	}
	if got := persister.count(); got != 0 {
		t.Errorf("fallback persisted %d times on success", got)
	}
	want := []string{"started", "succeeded"}
	if got := notifier.sequence(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("notifications = %v, want %v", got, want)
	}
}

func TestSendMultipartFields(t *testing.T) {
	var (
		mu     sync.Mutex
		fields map[string]string
		audio  []byte
		fname  string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "multipart/form-data" {
			t.Errorf("content type %q: %v", r.Header.Get("Content-Type"), err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		got := make(map[string]string)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("NextPart: %v", err)
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "audio" {
				mu.Lock()
				audio = data
				fname = part.FileName()
				ctype = part.Header.Get("Content-Type")
				mu.Unlock()
				continue
			}
			got[part.FormName()] = string(data)
		}
		mu.Lock()
		fields = got
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	svc, _, _ := newTestService(t, srv.URL)
	artifact := testArtifact()
	res := svc.Send(context.Background(), artifact, testIdentity(), "ua/1.0")
	if !res.Delivered {
		t.Fatalf("Send: delivered=false, reason=%q", res.Reason)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(audio) != "opus-bytes" {
		t.Errorf("audio payload = %q", audio)
	}
	if ctype != artifact.MimeType {
		t.Errorf("audio part content type = %q, want %q", ctype, artifact.MimeType)
	}
	wantName := "recording_desktop_u-42_2025-03-14T09:26:53Z.webm"
	if fname != wantName {
		t.Errorf("filename = %q, want %q", fname, wantName)
	}
	want := map[string]string{
		"userId":        "u-42",
		"userEmail":     "u@example.com",
		"userFirstName": "Ada",
		"userLastName":  "Lovelace",
		"userCompany":   "Analytical",
		"timestamp":     "2025-03-14T09:26:53Z",
		"audioSize":     "10",
		"audioType":     "audio/webm;codecs=opus",
		"audioFormat":   "webm",
		"platform":      "desktop",
		"originalType":  "audio/webm;codecs=opus",
		"userAgent":     "ua/1.0",
	}
	for name, value := range want {
		if fields[name] != value {
			t.Errorf("field %s = %q, want %q", name, fields[name], value)
		}
	}
}

func TestSendUnknownIdentityDefaults(t *testing.T) {
	var fields map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		got := make(map[string]string)
		for name := range r.MultipartForm.Value {
			got[name] = r.FormValue(name)
		}
		fields = got
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, _, _ := newTestService(t, srv.URL)
	res := svc.Send(context.Background(), testArtifact(), types.Identity{}, "")
	if !res.Delivered {
		t.Fatalf("Send: delivered=false, reason=%q", res.Reason)
	}
	for _, name := range []string{"userId", "userEmail", "userFirstName", "userLastName", "userCompany"} {
		if fields[name] != types.UnknownField {
			t.Errorf("field %s = %q, want %q", name, fields[name], types.UnknownField)
		}
	}
}

func TestSendServerErrorReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"storage full"}`, http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	svc, persister, notifier := newTestService(t, srv.URL)
	res := svc.Send(context.Background(), testArtifact(), testIdentity(), "ua/1.0")

	if res.Delivered {
		t.Fatal("Send: delivered=true on 507")
	}
	if res.Reason != "server:507" {
		t.Errorf("reason = %q, want server:507", res.Reason)
	}
	if got := persister.count(); got != 1 {
		t.Errorf("fallback persisted %d times, want 1", got)
	}
	want := []string{"started", "fallback", "failed"}
	if got := notifier.sequence(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("notifications = %v, want %v", got, want)
	}
}

func TestSendTimeoutReason(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	svc, persister, notifier := newTestService(t, srv.URL, WithTimeout(50*time.Millisecond))
	res := svc.Send(context.Background(), testArtifact(), testIdentity(), "ua/1.0")

	if res.Delivered {
		t.Fatal("Send: delivered=true after timeout")
	}
	if res.Reason != ReasonTimeout {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonTimeout)
	}
	if got := persister.count(); got != 1 {
		t.Errorf("fallback persisted %d times, want 1", got)
	}
	if res.Fallback == nil {
		t.Error("result carries no fallback artifact")
	}
	if notifier.fallback != 1 {
		t.Errorf("fallback notifications = %d, want 1", notifier.fallback)
	}
}

func TestSendNetworkReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	svc, persister, _ := newTestService(t, srv.URL)
	res := svc.Send(context.Background(), testArtifact(), testIdentity(), "ua/1.0")

	if res.Delivered {
		t.Fatal("Send: delivered=true against closed server")
	}
	if res.Reason != ReasonNetwork {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonNetwork)
	}
	if got := persister.count(); got != 1 {
		t.Errorf("fallback persisted %d times, want 1", got)
	}
}

func TestSendFailureSurvivesFallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	persister := &stubPersister{fail: true}
	notifier := &recordingNotifier{}
	svc, err := NewService(srv.URL, persister, notifier)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	res := svc.Send(context.Background(), testArtifact(), testIdentity(), "ua/1.0")
	if res.Reason != "server:502" {
		t.Errorf("reason = %q, want server:502", res.Reason)
	}
	if res.Fallback != nil {
		t.Error("result carries fallback despite persist failure")
	}
	if notifier.fallback != 0 {
		t.Errorf("fallback notifications = %d, want 0", notifier.fallback)
	}
	// Failure is still reported even though the fallback copy was lost.
	seq := notifier.sequence()
	if len(seq) == 0 || seq[len(seq)-1] != "failed" {
		t.Errorf("notifications = %v, want trailing failed", seq)
	}
}

func TestDeliverAdapterContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	svc, _, _ := newTestService(t, srv.URL)
	delivered, reason := svc.Deliver(context.Background(), testArtifact(), testIdentity(), "ua/1.0")
	if !delivered || reason != "" {
		t.Errorf("Deliver = (%v, %q), want (true, \"\")", delivered, reason)
	}
}
