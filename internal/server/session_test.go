package server

import (
	"net/http/httptest"
	"testing"
)

func TestSessionLifecycle(t *testing.T) {
	sm := NewSessionManager()

	token := sm.Create()
	if token == "" {
		t.Fatal("Create returned empty token")
	}
	if !sm.Validate(token) {
		t.Error("freshly created token should validate")
	}

	sm.Delete(token)
	if sm.Validate(token) {
		t.Error("deleted token should not validate")
	}

	if sm.Validate("") {
		t.Error("empty token should not validate")
	}
	if sm.Validate("nonexistent") {
		t.Error("unknown token should not validate")
	}
}

func TestCSRFTokenSingleUse(t *testing.T) {
	sm := NewSessionManager()

	token := sm.CreateCSRFToken()
	if token == "" {
		t.Fatal("CreateCSRFToken returned empty token")
	}

	if !sm.ValidateCSRFToken(token) {
		t.Error("first validation should succeed")
	}
	if sm.ValidateCSRFToken(token) {
		t.Error("second validation should fail: tokens are single use")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	sm := NewSessionManager()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/auth/login", nil)

	if sm.Login(w, r, "admin", "wrong", "admin", "secret") {
		t.Error("login with wrong password should fail")
	}
	if sm.Login(w, r, "other", "secret", "admin", "secret") {
		t.Error("login with wrong username should fail")
	}
	if !sm.Login(w, r, "admin", "secret", "admin", "secret") {
		t.Error("login with correct credentials should succeed")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin header", "", "example.com", true},
		{"localhost", "http://localhost:3000", "example.com", true},
		{"loopback v4", "http://127.0.0.1:8080", "example.com", true},
		{"same origin", "https://panel.example.com", "panel.example.com:443", true},
		{"private range", "http://192.168.1.20", "example.com", true},
		{"foreign origin", "https://evil.example.org", "panel.example.com", false},
		{"malformed origin", "://bad", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
