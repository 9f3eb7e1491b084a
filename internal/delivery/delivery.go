// Package delivery ships assembled voice-note artifacts to the remote
// analysis endpoint as one time-bounded multipart POST.
//
// There is no automatic retry: repeated attempts without user confirmation
// risk duplicate submissions of the same spoken content, so failure is
// surfaced immediately and the user re-invokes the send explicitly.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/types"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// Delivery failure reason codes. The notification surface uses these to be
// specific about what went wrong.
const (
	ReasonTimeout = "timeout"
	ReasonNetwork = "network"
	// Server failures are reported as "server:<status>", everything else
	// as "other:<message>".
	reasonServerPrefix = "server:"
	reasonOtherPrefix  = "other:"
)

// Timeout bounds for the delivery call.
const (
	// DefaultTimeout bounds the primary delivery path.
	DefaultTimeout = 30 * time.Second
	// MaxTimeout is the ceiling for long-form capture variants.
	MaxTimeout = 60 * time.Second
)

// maxDiagnosticsBytes caps how much response body is retained.
const maxDiagnosticsBytes = 4096

// Result is the outcome of one delivery attempt.
type Result struct {
	// Delivered is true for any 2xx response, regardless of body shape.
	Delivered bool `json:"delivered"`
	// Reason is the normalized failure reason; empty on success.
	Reason string `json:"reason,omitempty"`
	// StatusCode is the HTTP status, when a response was received.
	StatusCode int `json:"status_code,omitempty"`
	// Diagnostics is the best-effort parsed response body. It is never
	// contract-bearing and never affects Delivered.
	Diagnostics string `json:"diagnostics,omitempty"`
	// Fallback is the locally persisted copy, set only on failure when
	// fallback persistence succeeded.
	Fallback *types.FallbackArtifact `json:"fallback,omitempty"`
}

// Persister turns an undelivered artifact into a locally retrievable copy.
type Persister interface {
	Persist(artifact *types.Artifact, identity types.Identity) (types.FallbackArtifact, error)
}

// Notifier receives fire-and-forget delivery events for the external
// collaborator surface.
type Notifier interface {
	DeliveryStarted(artifact *types.Artifact)
	DeliverySucceeded(artifact *types.Artifact, statusCode int)
	DeliveryFailed(artifact *types.Artifact, reason string)
	FallbackCreated(fb types.FallbackArtifact)
}

// Service delivers artifacts to a fixed, pre-validated endpoint. The
// endpoint is validated once at construction and never re-compared against
// a literal at call time.
type Service struct {
	endpoint  string
	signature string
	timeout   time.Duration
	client    *http.Client
	fallback  Persister
	notifier  Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the delivery timeout, clamped to MaxTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d <= 0 {
			d = DefaultTimeout
		}
		if d > MaxTimeout {
			d = MaxTimeout
		}
		s.timeout = d
	}
}

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// WithSignature sets the client signature string sent with each delivery.
func WithSignature(sig string) Option {
	return func(s *Service) { s.signature = sig }
}

// NewService validates the endpoint once and returns a delivery service.
func NewService(endpoint string, fallback Persister, notifier Notifier, opts ...Option) (*Service, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, util.WrapError("parse delivery endpoint", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("delivery endpoint must be http(s), got %q", endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("delivery endpoint has no host: %q", endpoint)
	}

	s := &Service{
		endpoint: endpoint,
		timeout:  DefaultTimeout,
		client:   &http.Client{},
		fallback: fallback,
		notifier: notifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Endpoint returns the pinned delivery URL.
func (s *Service) Endpoint() string {
	return s.endpoint
}

// Filename generates the upload filename embedding platform, identity and
// capture timestamp.
func Filename(artifact *types.Artifact, identity types.Identity) string {
	ts := artifact.CapturedAt.UTC().Format(time.RFC3339)
	return fmt.Sprintf("recording_%s_%s_%s.%s",
		artifact.Platform, types.OrUnknown(identity.UserID), ts, artifact.Extension)
}

// Send performs one delivery attempt and normalizes every failure mode into
// a Result with a reason code. On failure the fallback persister runs
// before the failure notification, so the user is never told about a loss
// that was not already mitigated.
func (s *Service) Send(ctx context.Context, artifact *types.Artifact, identity types.Identity, userAgent string) Result {
	s.notifier.DeliveryStarted(artifact)

	res := s.post(ctx, artifact, identity, userAgent)
	if res.Delivered {
		slog.Info("delivery succeeded",
			"status", res.StatusCode, "size_bytes", artifact.SizeBytes, "platform", artifact.Platform)
		s.notifier.DeliverySucceeded(artifact, res.StatusCode)
		return res
	}

	slog.Error("delivery failed", "reason", res.Reason, "size_bytes", artifact.SizeBytes)

	// Loss avoidance first: best-effort, never escalated into a second
	// delivery error since the user is already being told about this one.
	fb, err := s.fallback.Persist(artifact, identity)
	if err != nil {
		slog.Error("fallback persistence failed", "error", err)
	} else {
		res.Fallback = &fb
		s.notifier.FallbackCreated(fb)
	}

	s.notifier.DeliveryFailed(artifact, res.Reason)
	return res
}

// Deliver implements the session's deliverer contract.
func (s *Service) Deliver(ctx context.Context, artifact *types.Artifact, identity types.Identity, userAgent string) (bool, string) {
	res := s.Send(ctx, artifact, identity, userAgent)
	return res.Delivered, res.Reason
}

// post builds the multipart body and performs the HTTP call with the
// cancellation token bound to the configured timeout. The token is scoped
// to this single attempt and never reused.
func (s *Service) post(ctx context.Context, artifact *types.Artifact, identity types.Identity, userAgent string) Result {
	body, contentType, err := buildBody(artifact, identity, userAgent, s.signature)
	if err != nil {
		return Result{Reason: reasonOtherPrefix + err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, body)
	if err != nil {
		return Result{Reason: reasonOtherPrefix + err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
			return Result{Reason: ReasonTimeout}
		case errors.Is(err, context.Canceled):
			return Result{Reason: reasonOtherPrefix + "cancelled"}
		default:
			return Result{Reason: ReasonNetwork}
		}
	}
	defer util.SafeCloseFunc(resp.Body, "delivery response body")()

	diagnostics := readDiagnostics(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Delivered: true, StatusCode: resp.StatusCode, Diagnostics: diagnostics}
	}
	return Result{
		Reason:      reasonServerPrefix + strconv.Itoa(resp.StatusCode),
		StatusCode:  resp.StatusCode,
		Diagnostics: diagnostics,
	}
}

// buildBody writes the multipart request body. Field names are part of the
// endpoint contract.
func buildBody(artifact *types.Artifact, identity types.Identity, userAgent, signature string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := createAudioPart(w, Filename(artifact, identity), artifact.MimeType)
	if err != nil {
		return nil, "", util.WrapError("create audio part", err)
	}
	if _, err := part.Write(artifact.Buffer); err != nil {
		return nil, "", util.WrapError("write audio part", err)
	}

	fields := map[string]string{
		"userId":        types.OrUnknown(identity.UserID),
		"userEmail":     types.OrUnknown(identity.Email),
		"userFirstName": types.OrUnknown(identity.FirstName),
		"userLastName":  types.OrUnknown(identity.LastName),
		"userCompany":   types.OrUnknown(identity.Company),
		"timestamp":     artifact.CapturedAt.UTC().Format(time.RFC3339),
		"audioSize":     strconv.FormatInt(artifact.SizeBytes, 10),
		"audioType":     artifact.MimeType,
		"audioFormat":   artifact.Extension,
		"platform":      artifact.Platform,
		"originalType":  artifact.OriginalMime,
		"userAgent":     userAgent,
	}
	if signature != "" {
		fields["clientSignature"] = signature
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", util.WrapError("write field "+name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", util.WrapError("close multipart writer", err)
	}
	return buf, w.FormDataContentType(), nil
}

// createAudioPart creates the binary file part with the artifact's MIME
// type instead of the default octet-stream.
func createAudioPart(w *multipart.Writer, filename, mimeType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="audio"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", mimeType)
	return w.CreatePart(h)
}

// escapeQuotes mirrors the escaping multipart.CreateFormFile applies.
func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}

// readDiagnostics parses the response body best-effort: JSON bodies are
// compacted, anything else is passed through truncated. The body shape
// never affects success or failure classification.
func readDiagnostics(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxDiagnosticsBytes))
	if err != nil || len(data) == 0 {
		return ""
	}

	var compact bytes.Buffer
	if json.Compact(&compact, data) == nil {
		return compact.String()
	}
	return strings.TrimSpace(string(data))
}
