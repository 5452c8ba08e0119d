package services

import (
	"strings"
	"testing"
	"time"
)

func testSessionManager(t *testing.T, ttl time.Duration) *DeviceSessionManager {
	t.Helper()
	manager, err := NewDeviceSessionManager("test_secret_key", ttl, NewMemorySessionStore(), nil)
	if err != nil {
		t.Fatalf("Failed to create session manager: %v", err)
	}
	return manager
}

func TestDeviceSessionIssue(t *testing.T) {
	manager := testSessionManager(t, time.Hour)

	issued, err := manager.Issue(IssueParams{Platform: "ios", DeviceName: "Kitchen iPad", AppVersion: "1.2.0"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if issued.Token == "" || issued.SessionID == "" {
		t.Fatal("Issue returned empty token or session id")
	}
	if !issued.ExpiresAt.After(time.Now()) {
		t.Error("Expected expiry in the future")
	}

	sessionID, ok := manager.Authenticate(issued.Token)
	if !ok {
		t.Fatal("Freshly issued token failed to authenticate")
	}
	if sessionID != issued.SessionID {
		t.Errorf("Authenticated session %q, want %q", sessionID, issued.SessionID)
	}
}

func TestDeviceSessionRefreshRotatesToken(t *testing.T) {
	manager := testSessionManager(t, time.Hour)

	issued, err := manager.Issue(IssueParams{Platform: "ios"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	refreshed, err := manager.Refresh(issued.Token)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed.Token == issued.Token {
		t.Error("Refresh returned the same token string")
	}
	if refreshed.SessionID != issued.SessionID {
		t.Errorf("Refresh changed session id from %q to %q", issued.SessionID, refreshed.SessionID)
	}

	// The pre-refresh token must stop authenticating.
	if _, ok := manager.Authenticate(issued.Token); ok {
		t.Error("Rotated-away token still authenticates")
	}
	if _, ok := manager.Authenticate(refreshed.Token); !ok {
		t.Error("Refreshed token does not authenticate")
	}

	// Refreshing with the stale token fails uniformly.
	if _, err := manager.Refresh(issued.Token); err != ErrSessionUnauthorized {
		t.Errorf("Refresh with stale token: err = %v, want ErrSessionUnauthorized", err)
	}
}

func TestDeviceSessionRevoke(t *testing.T) {
	manager := testSessionManager(t, time.Hour)

	issued, err := manager.Issue(IssueParams{Platform: "ios"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := manager.Revoke(issued.Token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, ok := manager.Authenticate(issued.Token); ok {
		t.Error("Revoked token still authenticates")
	}
	if _, err := manager.Refresh(issued.Token); err != ErrSessionUnauthorized {
		t.Errorf("Refresh after revoke: err = %v, want ErrSessionUnauthorized", err)
	}
	if err := manager.Revoke(issued.Token); err != ErrSessionUnauthorized {
		t.Errorf("Double revoke: err = %v, want ErrSessionUnauthorized", err)
	}
}

func TestDeviceSessionUniformFailures(t *testing.T) {
	manager := testSessionManager(t, time.Hour)

	issued, err := manager.Issue(IssueParams{Platform: "ios"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tampered := issued.Token[:len(issued.Token)-2] + "xx"

	other, err := NewDeviceSessionManager("other_secret", time.Hour, NewMemorySessionStore(), nil)
	if err != nil {
		t.Fatalf("Failed to create second manager: %v", err)
	}
	foreign, err := other.Issue(IssueParams{Platform: "ios"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	for _, token := range []string{"", "garbage", tampered, foreign.Token} {
		if _, ok := manager.Authenticate(token); ok {
			t.Errorf("Token %q should not authenticate", token)
		}
		if _, err := manager.Refresh(token); err != ErrSessionUnauthorized {
			t.Errorf("Refresh(%q): err = %v, want ErrSessionUnauthorized", token, err)
		}
		if err := manager.Revoke(token); err != ErrSessionUnauthorized {
			t.Errorf("Revoke(%q): err = %v, want ErrSessionUnauthorized", token, err)
		}
	}
}

func TestDeviceSessionExpiry(t *testing.T) {
	manager := testSessionManager(t, 2*time.Second)

	issued, err := manager.Issue(IssueParams{Platform: "ios"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, ok := manager.Authenticate(issued.Token); !ok {
		t.Fatal("Token should authenticate before expiry")
	}

	// exp claims have one-second resolution, so wait well past the
	// boundary.
	time.Sleep(3100 * time.Millisecond)

	if _, ok := manager.Authenticate(issued.Token); ok {
		t.Error("Expired token still authenticates")
	}
}

func TestDeviceSessionTokenShape(t *testing.T) {
	manager := testSessionManager(t, time.Hour)

	issued, err := manager.Issue(IssueParams{Platform: "ios"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if parts := strings.Split(issued.Token, "."); len(parts) != 3 {
		t.Errorf("Expected a compact three-part token, got %d parts", len(parts))
	}
}
