// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/talkform/voicenote-pipeline/internal/fallback"
	"github.com/talkform/voicenote-pipeline/internal/notify"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort                = 8080
	DefaultWebUsername            = "admin"
	DefaultWebPassword            = "voicenote"
	DefaultDeliveryTimeoutSeconds = 30
	MaxDeliveryTimeoutSeconds     = 60
	DefaultFallbackDir            = "fallback"
	DefaultRetentionDays          = 30
)

// validate holds the shared validator instance for config structs.
var validate = validator.New()

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port"`        // HTTP server port
	Username   string `json:"username"`    // Login username
	Password   string `json:"password"`    // Login password
	APIKey     string `json:"api_key"`     // API key for pipeline control endpoints
}

// AudioConfig holds audio input device settings.
type AudioConfig struct {
	Input string `json:"input"` // Audio input device identifier
}

// DeliveryConfig holds the remote endpoint settings. The endpoint is
// validated once at load time; no call-site literal comparison happens
// after that. An empty endpoint is valid so a freshly generated default
// config loads; delivery then persists fallback copies until an endpoint
// is configured.
type DeliveryConfig struct {
	Endpoint       string `json:"endpoint"        validate:"omitempty,http_url"` // Analysis endpoint URL
	TimeoutSeconds int    `json:"timeout_seconds" validate:"min=0,max=60"`      // Per-attempt timeout
	Signature      string `json:"signature"`                                    // Client signature string sent with uploads
}

// FallbackConfig holds local persistence and S3 archival settings.
type FallbackConfig struct {
	Dir           string            `json:"dir"`            // Directory for undelivered artifacts
	RetentionDays int               `json:"retention_days"` // 0 keeps artifacts forever
	S3            fallback.S3Config `json:"s3"`             // Optional S3 archival target
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,http_url"` // Webhook URL for pipeline events
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for pipeline events
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig      `json:"webhook"` // Webhook settings
	Log     LogConfig          `json:"log"`     // Log file settings
	Email   notify.GraphConfig `json:"email"`   // Graph email settings
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Audio         AudioConfig         `json:"audio"`
	Delivery      DeliveryConfig      `json:"delivery"`
	Fallback      FallbackConfig      `json:"fallback"`
	Notifications NotificationsConfig `json:"notifications"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Delivery: DeliveryConfig{
			TimeoutSeconds: DefaultDeliveryTimeoutSeconds,
		},
		Fallback: FallbackConfig{
			Dir:           DefaultFallbackDir,
			RetentionDays: DefaultRetentionDays,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validateLocked(); err != nil {
		return err
	}

	return nil
}

// validateLocked checks all configuration fields for correctness.
// Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid config field %s: failed %q validation", e.Namespace(), e.Tag())
		}
		return util.WrapError("validate config", err)
	}
	if err := util.ValidatePath("fallback.dir", c.Fallback.Dir); err != nil {
		return err
	}
	if c.Fallback.RetentionDays < 0 {
		return fmt.Errorf("invalid fallback.retention_days %d: must be >= 0", c.Fallback.RetentionDays)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	if c.Delivery.TimeoutSeconds == 0 {
		c.Delivery.TimeoutSeconds = DefaultDeliveryTimeoutSeconds
	}
	if c.Delivery.TimeoutSeconds > MaxDeliveryTimeoutSeconds {
		c.Delivery.TimeoutSeconds = MaxDeliveryTimeoutSeconds
	}
	if c.Fallback.Dir == "" {
		c.Fallback.Dir = DefaultFallbackDir
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// AudioInput returns the configured audio input device.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Input
}

// GetFFmpegPath returns the configured FFmpeg binary path.
func (c *Config) GetFFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFmpegPath
}

// DeliveryEndpoint returns the pinned delivery endpoint URL.
func (c *Config) DeliveryEndpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Delivery.Endpoint
}

// GetAPIKey returns the API key for pipeline control endpoints.
func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.APIKey
}

// GraphConfig returns a copy of the current Graph/Email configuration.
func (c *Config) GraphConfig() notify.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Email
}

// --- Setters for individual settings ---

// SetAudioInput updates the audio input device and saves the configuration.
func (c *Config) SetAudioInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Input = input
	return c.saveLocked()
}

// SetDeliveryEndpoint updates and re-validates the delivery endpoint.
func (c *Config) SetDeliveryEndpoint(endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.Delivery.Endpoint
	c.Delivery.Endpoint = endpoint
	if err := c.validateLocked(); err != nil {
		c.Delivery.Endpoint = previous
		return err
	}
	return c.saveLocked()
}

// SetDeliveryTimeout updates and re-validates the delivery timeout.
func (c *Config) SetDeliveryTimeout(seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.Delivery.TimeoutSeconds
	c.Delivery.TimeoutSeconds = seconds
	if err := c.validateLocked(); err != nil {
		c.Delivery.TimeoutSeconds = previous
		return err
	}
	return c.saveLocked()
}

// SetDeliverySignature updates the client signature and saves the configuration.
func (c *Config) SetDeliverySignature(sig string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Delivery.Signature = sig
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.Notifications.Webhook.URL
	c.Notifications.Webhook.URL = url
	if err := c.validateLocked(); err != nil {
		c.Notifications.Webhook.URL = previous
		return err
	}
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetGraphConfig updates all Microsoft Graph/Email configuration fields and saves.
func (c *Config) SetGraphConfig(graph notify.GraphConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email = graph
	return c.saveLocked()
}

// SetAPIKey updates the API key and saves the configuration.
func (c *Config) SetAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.System.APIKey = key
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	APIKey      string
	FFmpegPath  string

	// Audio
	AudioInput string

	// Delivery
	DeliveryEndpoint  string
	DeliveryTimeout   time.Duration
	DeliverySignature string

	// Fallback
	FallbackDir   string
	RetentionDays int
	S3            fallback.S3Config

	// Notifications
	WebhookURL string
	LogPath    string
	Graph      notify.GraphConfig
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		APIKey:      c.System.APIKey,
		FFmpegPath:  c.System.FFmpegPath,

		AudioInput: c.Audio.Input,

		DeliveryEndpoint:  c.Delivery.Endpoint,
		DeliveryTimeout:   time.Duration(cmp.Or(c.Delivery.TimeoutSeconds, DefaultDeliveryTimeoutSeconds)) * time.Second,
		DeliverySignature: c.Delivery.Signature,

		FallbackDir:   cmp.Or(c.Fallback.Dir, DefaultFallbackDir),
		RetentionDays: c.Fallback.RetentionDays,
		S3:            c.Fallback.S3,

		WebhookURL: c.Notifications.Webhook.URL,
		LogPath:    c.Notifications.Log.Path,
		Graph:      c.Notifications.Email,
	}
}

// NotifySettings converts the snapshot into live notifier settings.
func (s *Snapshot) NotifySettings() notify.Settings {
	return notify.Settings{
		WebhookURL: s.WebhookURL,
		LogPath:    s.LogPath,
		Graph:      s.Graph,
	}
}

// HasS3 reports whether S3 archival is configured.
func (s *Snapshot) HasS3() bool {
	return s.S3.IsConfigured()
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
