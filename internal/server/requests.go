package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Capture control ---

// CaptureStartRequest is the request body for capture/start. It carries the
// client's environment signals and the caller identity; every field may be
// absent and defaults apply downstream.
type CaptureStartRequest struct {
	UserAgent      string `json:"user_agent" validate:"omitempty,max=1024"`
	HasTouch       bool   `json:"has_touch"`
	MaxTouchPoints int    `json:"max_touch_points" validate:"gte=0,lte=64"`
	ViewportWidth  int    `json:"viewport_width" validate:"gte=0,lte=16384"`

	UserID    string `json:"user_id" validate:"omitempty,max=128"`
	Email     string `json:"email" validate:"omitempty,max=254"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
	Company   string `json:"company" validate:"omitempty,max=200"`
}

// CaptureControlRequest is the request body for capture/pause, resume, stop,
// confirm, cancel, and restart. SessionID, when set, must match the active
// session; stale controls from a previous session are rejected.
type CaptureControlRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,uuid4"`
}

// --- Audio settings ---

// AudioUpdateRequest is the request body for audio/update.
type AudioUpdateRequest struct {
	Input string `json:"input" validate:"omitempty,max=256"`
}

// --- Delivery settings ---

// DeliveryUpdateRequest is the request body for delivery/update.
type DeliveryUpdateRequest struct {
	Endpoint       string `json:"endpoint" validate:"omitempty,http_url,max=2048"`
	TimeoutSeconds *int   `json:"timeout_seconds" validate:"omitempty,gte=1,lte=60"`
	Signature      string `json:"signature" validate:"omitempty,max=256"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailUpdateRequest is the request body for notifications/email/update.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// --- Fallback maintenance ---

// FallbackDeleteRequest is the request body for fallback/delete.
type FallbackDeleteRequest struct {
	Filename string `json:"filename" validate:"required,max=255"`
}

// --- S3 test ---

// S3TestRequest is the request body for fallback/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"s3_bucket" validate:"required,max=63"`
	AccessKey string `json:"s3_access_key_id" validate:"required,max=128"`
	SecretKey string `json:"s3_secret_access_key" validate:"required,max=256"`
}
