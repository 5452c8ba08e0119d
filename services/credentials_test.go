package services

import "testing"

func TestHashPin(t *testing.T) {
	// Cross-environment contract: the web and mobile clients hash PINs
	// with the same function, so this vector must never change.
	const knownDigest = "03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4"

	digest := HashPin("1234")
	if digest != knownDigest {
		t.Errorf("HashPin(\"1234\") = %q, want %q", digest, knownDigest)
	}

	if len(digest) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(digest))
	}

	if HashPin("1234") != digest {
		t.Error("HashPin is not deterministic")
	}

	if HashPin("12345") == digest {
		t.Error("Different PINs produced the same digest")
	}

	empty := HashPin("")
	if len(empty) != 64 {
		t.Errorf("Empty PIN digest should still be 64 hex characters, got %d", len(empty))
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantOK    bool
	}{
		{"valid token", "Bearer abc123", "abc123", true},
		{"missing header", "", "", false},
		{"no prefix", "abc123", "", false},
		{"lowercase prefix", "bearer abc123", "", false},
		{"empty after prefix", "Bearer ", "", false},
		{"prefix only", "Bearer", "", false},
		{"basic auth", "Basic dXNlcjpwYXNz", "", false},
		{"token with spaces preserved", "Bearer a b c", "a b c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := ExtractBearerToken(tt.header)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}
