package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/talkform/voicenote-pipeline/internal/audio"
	"github.com/talkform/voicenote-pipeline/internal/config"
	"github.com/talkform/voicenote-pipeline/internal/fallback"
	"github.com/talkform/voicenote-pipeline/internal/server"
	"github.com/talkform/voicenote-pipeline/internal/session"
)

// statusInterval is how often each WebSocket client receives a status push.
const statusInterval = 1 * time.Second

// Server is the HTTP server for the pipeline control surface. It exposes a
// JSON API and a WebSocket for live session status.
type Server struct {
	config          *config.Config
	manager         *session.Manager
	store           *fallback.Store
	sessions        *server.SessionManager
	commands        *server.CommandHandler
	version         *VersionChecker
	ffmpegAvailable bool
}

// NewServer returns a new Server wired to the pipeline components.
func NewServer(cfg *config.Config, manager *session.Manager, store *fallback.Store, sweeper *fallback.Sweeper, eventLogPath string, ffmpegAvailable bool) *Server {
	return &Server{
		config:          cfg,
		manager:         manager,
		store:           store,
		sessions:        server.NewSessionManager(),
		commands:        server.NewCommandHandler(cfg, manager, store, sweeper, eventLogPath, ffmpegAvailable),
		version:         NewVersionChecker(),
		ffmpegAvailable: ffmpegAvailable,
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes a status snapshot on a fixed interval and
// immediately after every handled command. One second keeps the elapsed
// counter on the control surface honest without flooding the socket.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// wsStatus is the periodic status message pushed to WebSocket clients.
type wsStatus struct {
	Type            string             `json:"type"`
	FFmpegAvailable bool               `json:"ffmpeg_available"`
	Session         *session.Status    `json:"session"`
	Devices         []audio.DeviceInfo `json:"devices"`
	AudioInput      string             `json:"audio_input"`
	Endpoint        string             `json:"endpoint"`
	HostPlatform    string             `json:"host_platform"`
	Version         VersionInfo        `json:"version"`
}

// buildWSStatus returns the current WebSocket status message.
func (s *Server) buildWSStatus() wsStatus {
	cfg := s.config.Snapshot()

	var sessStatus *session.Status
	if active := s.manager.Active(); active != nil {
		st := active.Status()
		sessStatus = &st
	}

	return wsStatus{
		Type:            "status",
		FFmpegAvailable: s.ffmpegAvailable,
		Session:         sessStatus,
		Devices:         audio.Devices(),
		AudioInput:      cfg.AudioInput,
		Endpoint:        cfg.DeliveryEndpoint,
		HostPlatform:    runtime.GOOS,
		Version:         s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware()

	// Public routes (no auth required)
	mux.HandleFunc("/api/auth/csrf", s.handleCSRF)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/logout", s.handleLogout)

	// Capture API routes (API key auth, for the embedding application)
	mux.HandleFunc("/api/capture/", s.apiKeyAuth(s.handleCaptureAPI))

	// Protected routes
	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("/api/status", auth(s.handleAPIStatus))
	mux.HandleFunc("/api/config", auth(s.handleAPIConfig))
	mux.HandleFunc("/api/devices", auth(s.handleAPIDevices))
	mux.HandleFunc("/api/events", auth(s.handleAPIEvents))
	mux.HandleFunc("/api/fallback", auth(s.handleAPIFallback))
	mux.HandleFunc("/api/fallback/", auth(s.handleAPIFallbackItem))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// loginRequest is the JSON body for POST /api/auth/login.
type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	CSRFToken string `json:"csrf_token"`
}

// handleCSRF issues a single-use CSRF token for the login form.
func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	token := s.sessions.CreateCSRFToken()
	if token == "" {
		s.writeError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// handleLogin handles JSON credential login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[loginRequest](s, w, r)
	if !ok {
		return
	}

	if !s.sessions.ValidateCSRFToken(req.CSRFToken) {
		s.writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	cfg := s.config.Snapshot()
	if !s.sessions.Login(w, r, req.Username, req.Password, cfg.WebUser, cfg.WebPassword) {
		s.writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// handleLogout handles operator logout requests.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	s.writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

// apiKeyAuth returns middleware for API key authentication.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.GetAPIKey()
		if apiKey == "" {
			http.Error(w, "API key not configured", http.StatusServiceUnavailable)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
