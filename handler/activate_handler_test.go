package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"main/config"
	"main/services"
)

func activateTestConfig() *config.Config {
	return &config.Config{
		DeviceCookieName:    "family_device",
		DeviceCookieValue:   "authorized",
		DeviceActivationKey: "household-key",
		DeviceCookieMaxAge:  3600,
	}
}

func activateTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *services.DeviceSessionManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions, err := services.NewDeviceSessionManager("test_secret_key", time.Hour, services.NewMemorySessionStore(), nil)
	if err != nil {
		t.Fatalf("Failed to create session manager: %v", err)
	}

	router := gin.New()
	router.POST("/api/device/activate", func(c *gin.Context) {
		ActivateDeviceHandler(c, cfg)
	})
	router.POST("/api/device/activate/mobile", func(c *gin.Context) {
		ActivateMobileDeviceHandler(c, cfg, sessions)
	})
	router.POST("/api/device/session/refresh", func(c *gin.Context) {
		RefreshDeviceSessionHandler(c, sessions)
	})
	router.POST("/api/device/session/revoke", func(c *gin.Context) {
		RevokeDeviceSessionHandler(c, sessions)
	})
	return router, sessions
}

func TestActivateDevice(t *testing.T) {
	cfg := activateTestConfig()
	router, _ := activateTestRouter(t, cfg)

	w := postJSON(router, "/api/device/activate", gin.H{"key": "household-key"})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	var found bool
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == cfg.DeviceCookieName && cookie.Value == cfg.DeviceCookieValue {
			found = true
		}
	}
	if !found {
		t.Error("Activation did not set the device cookie")
	}
}

func TestActivateDeviceFailures(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *config.Config
		body       interface{}
		wantStatus int
	}{
		{"unconfigured", &config.Config{}, gin.H{"key": "anything"}, http.StatusServiceUnavailable},
		{"missing key", activateTestConfig(), gin.H{}, http.StatusBadRequest},
		{"wrong key", activateTestConfig(), gin.H{"key": "wrong"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := activateTestRouter(t, tt.cfg)
			w := postJSON(router, "/api/device/activate", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if len(w.Result().Cookies()) != 0 {
				t.Error("Failed activation must not set a cookie")
			}
		})
	}
}

func TestActivateMobileDevice(t *testing.T) {
	router, sessions := activateTestRouter(t, activateTestConfig())

	w := postJSON(router, "/api/device/activate/mobile", gin.H{
		"key":        "household-key",
		"platform":   "ios",
		"deviceName": "Alex's iPhone",
		"appVersion": "1.2.0",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("Session response must not be cacheable")
	}

	var resp struct {
		Data struct {
			DeviceSessionToken string    `json:"deviceSessionToken"`
			SessionID          string    `json:"sessionId"`
			ExpiresAt          time.Time `json:"expiresAt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.DeviceSessionToken == "" || resp.Data.SessionID == "" {
		t.Fatal("Response missing token or session id")
	}
	if !resp.Data.ExpiresAt.After(time.Now()) {
		t.Error("Expiry should be in the future")
	}

	if sessionID, ok := sessions.Authenticate(resp.Data.DeviceSessionToken); !ok || sessionID != resp.Data.SessionID {
		t.Error("Issued token does not authenticate against the manager")
	}
}

func TestActivateMobileDeviceFailures(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{"missing key", gin.H{"platform": "ios"}, http.StatusBadRequest, "Activation key required"},
		{"android", gin.H{"key": "household-key", "platform": "android"}, http.StatusBadRequest, "Unsupported platform"},
		{"no platform", gin.H{"key": "household-key"}, http.StatusBadRequest, "Unsupported platform"},
		{"wrong key", gin.H{"key": "wrong", "platform": "ios"}, http.StatusForbidden, "Invalid activation key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := activateTestRouter(t, activateTestConfig())
			w := postJSON(router, "/api/device/activate/mobile", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantError) {
				t.Errorf("Body %q missing error %q", w.Body.String(), tt.wantError)
			}
		})
	}
}

func TestRefreshDeviceSession(t *testing.T) {
	router, sessions := activateTestRouter(t, activateTestConfig())

	issued, err := sessions.Issue(services.IssueParams{Platform: "ios"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/device/session/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			DeviceSessionToken string `json:"deviceSessionToken"`
			SessionID          string `json:"sessionId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.DeviceSessionToken == issued.Token {
		t.Error("Refresh returned the same token")
	}
	if resp.Data.SessionID != issued.SessionID {
		t.Error("Refresh changed the session id")
	}

	// The rotated-away token now fails with the uniform response.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Stale token refresh got %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Unauthorized Device") {
		t.Errorf("Body %q missing uniform error", w.Body.String())
	}
}

func TestRevokeDeviceSession(t *testing.T) {
	router, sessions := activateTestRouter(t, activateTestConfig())

	issued, err := sessions.Issue(services.IssueParams{Platform: "ios"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/device/session/revoke", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	if _, ok := sessions.Authenticate(issued.Token); ok {
		t.Error("Token still authenticates after revoke")
	}

	// Revoking again, or with no header at all, is the same 401.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Double revoke got %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/device/session/revoke", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Missing header revoke got %d, want 401", w.Code)
	}
}
