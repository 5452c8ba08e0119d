package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"main/model"
	"main/repository"
)

// ErrSessionUnauthorized is the single error surfaced for every token failure
// mode. Malformed, tampered, expired, rotated-away and revoked tokens are
// indistinguishable to a caller.
var ErrSessionUnauthorized = errors.New("unauthorized device session")

const deviceTokenIssuer = "familyhub"

// DeviceSessionManager issues, refreshes and revokes the signed bearer tokens
// that represent an activated mobile device. Signature and expiry are checked
// locally; rotation and revocation are checked against the state store.
type DeviceSessionManager struct {
	secret []byte
	ttl    time.Duration
	store  SessionStateStore
	repo   *repository.DeviceSessionRepo // optional, nil without Mongo
}

type IssueParams struct {
	Platform   string
	DeviceName string
	AppVersion string
	IPAddress  string
}

type IssuedSession struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

func NewDeviceSessionManager(secret string, ttl time.Duration, store SessionStateStore, repo *repository.DeviceSessionRepo) (*DeviceSessionManager, error) {
	if secret == "" {
		return nil, errors.New("device session secret must be set")
	}
	if ttl <= 0 {
		return nil, errors.New("device session TTL must be positive")
	}
	return &DeviceSessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		repo:   repo,
	}, nil
}

// Issue creates a fresh session and its first token. Platform validation
// happens in the activation handler; the manager signs whatever it is given.
func (m *DeviceSessionManager) Issue(params IssueParams) (IssuedSession, error) {
	sessionID := uuid.New().String()
	issued, err := m.mint(sessionID, params.Platform, params.DeviceName, params.AppVersion)
	if err != nil {
		return IssuedSession{}, err
	}

	if m.repo != nil {
		session := &model.DeviceSession{
			SessionID:      sessionID,
			Platform:       params.Platform,
			DeviceName:     params.DeviceName,
			AppVersion:     params.AppVersion,
			IPAddress:      params.IPAddress,
			CreatedAt:      time.Now(),
			ExpiresAt:      issued.ExpiresAt,
			LastActivityAt: time.Now(),
		}
		if err := m.repo.CreateSession(session); err != nil {
			log.Printf("Warning: failed to record device session: %v", err)
		}
	}

	return issued, nil
}

// Refresh rotates the token for an existing session. The presented token stops
// authenticating once the rotation lands in the state store.
func (m *DeviceSessionManager) Refresh(token string) (IssuedSession, error) {
	claims, err := m.verify(token)
	if err != nil {
		return IssuedSession{}, ErrSessionUnauthorized
	}

	issued, err := m.mint(claims.sessionID, claims.platform, claims.deviceName, claims.appVersion)
	if err != nil {
		return IssuedSession{}, err
	}

	if m.repo != nil {
		if err := m.repo.TouchSession(claims.sessionID, issued.ExpiresAt); err != nil {
			log.Printf("Warning: failed to touch device session %s: %v", claims.sessionID, err)
		}
	}

	return issued, nil
}

// Revoke invalidates the session behind the token; every copy of the token
// stops authenticating.
func (m *DeviceSessionManager) Revoke(token string) error {
	claims, err := m.verify(token)
	if err != nil {
		return ErrSessionUnauthorized
	}

	// Keep the tombstone until well after the token would have expired
	// anyway, so clock skew cannot resurrect it.
	if err := m.store.Revoke(claims.sessionID, m.ttl+time.Hour); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if m.repo != nil {
		if err := m.repo.MarkRevoked(claims.sessionID); err != nil {
			log.Printf("Warning: failed to mark session %s revoked: %v", claims.sessionID, err)
		}
	}

	return nil
}

// Authenticate is the gate-facing check: true only for a well-signed,
// unexpired, unrevoked, current token.
func (m *DeviceSessionManager) Authenticate(token string) (string, bool) {
	claims, err := m.verify(token)
	if err != nil {
		return "", false
	}
	return claims.sessionID, true
}

type sessionClaims struct {
	sessionID  string
	tokenID    string
	platform   string
	deviceName string
	appVersion string
	expiresAt  time.Time
}

func (m *DeviceSessionManager) mint(sessionID, platform, deviceName, appVersion string) (IssuedSession, error) {
	tokenID := uuid.New().String()
	now := time.Now()
	expiresAt := now.Add(m.ttl)

	claims := jwt.MapClaims{
		"iss":         deviceTokenIssuer,
		"sid":         sessionID,
		"jti":         tokenID,
		"platform":    platform,
		"device_name": deviceName,
		"app_version": appVersion,
		"iat":         now.Unix(),
		"exp":         expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("failed to sign device token: %w", err)
	}

	// Recording the new token ID is what invalidates the previous token.
	if err := m.store.SetCurrentToken(sessionID, tokenID, m.ttl); err != nil {
		return IssuedSession{}, fmt.Errorf("failed to store session state: %w", err)
	}

	return IssuedSession{Token: signed, SessionID: sessionID, ExpiresAt: expiresAt}, nil
}

func (m *DeviceSessionManager) verify(tokenString string) (*sessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrSessionUnauthorized
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrSessionUnauthorized
	}

	claims := &sessionClaims{}
	if claims.sessionID, ok = mapClaims["sid"].(string); !ok || claims.sessionID == "" {
		return nil, ErrSessionUnauthorized
	}
	if claims.tokenID, ok = mapClaims["jti"].(string); !ok || claims.tokenID == "" {
		return nil, ErrSessionUnauthorized
	}
	if iss, ok := mapClaims["iss"].(string); !ok || iss != deviceTokenIssuer {
		return nil, ErrSessionUnauthorized
	}
	claims.platform, _ = mapClaims["platform"].(string)
	claims.deviceName, _ = mapClaims["device_name"].(string)
	claims.appVersion, _ = mapClaims["app_version"].(string)

	exp, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrSessionUnauthorized
	}
	claims.expiresAt = time.Unix(int64(exp), 0)
	if time.Now().After(claims.expiresAt) {
		return nil, ErrSessionUnauthorized
	}

	revoked, err := m.store.IsRevoked(claims.sessionID)
	if err != nil {
		log.Printf("Warning: revocation check failed for %s: %v", claims.sessionID, err)
		return nil, ErrSessionUnauthorized
	}
	if revoked {
		return nil, ErrSessionUnauthorized
	}

	current, exists, err := m.store.CurrentToken(claims.sessionID)
	if err != nil {
		log.Printf("Warning: session state check failed for %s: %v", claims.sessionID, err)
		return nil, ErrSessionUnauthorized
	}
	if exists {
		if current != claims.tokenID {
			return nil, ErrSessionUnauthorized
		}
		return claims, nil
	}

	// State store lost the entry (process restart with the in-memory
	// store). The signature and expiry already passed, so adopt the token
	// as current rather than locking every device out.
	ttl := time.Until(claims.expiresAt)
	if err := m.store.SetCurrentToken(claims.sessionID, claims.tokenID, ttl); err != nil {
		log.Printf("Warning: failed to re-adopt session %s: %v", claims.sessionID, err)
	}
	return claims, nil
}
