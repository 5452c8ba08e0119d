package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStateStore tracks which token is current for each device session and
// which sessions have been revoked. The in-memory implementation is the
// default; Redis backs multi-instance deployments so revocation survives a
// process restart and is shared between replicas.
type SessionStateStore interface {
	SetCurrentToken(sessionID, tokenID string, ttl time.Duration) error
	CurrentToken(sessionID string) (string, bool, error)
	Revoke(sessionID string, ttl time.Duration) error
	IsRevoked(sessionID string) (bool, error)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemorySessionStore keeps session state in a process-local map.
type MemorySessionStore struct {
	mu      sync.Mutex
	current map[string]memoryEntry
	revoked map[string]memoryEntry
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		current: make(map[string]memoryEntry),
		revoked: make(map[string]memoryEntry),
	}
}

func (s *MemorySessionStore) SetCurrentToken(sessionID, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[sessionID] = memoryEntry{value: tokenID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) CurrentToken(sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.current[sessionID]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.current, sessionID)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemorySessionStore) Revoke(sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, sessionID)
	s.revoked[sessionID] = memoryEntry{value: "revoked", expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) IsRevoked(sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.revoked, sessionID)
		return false, nil
	}
	return true, nil
}

// RedisSessionStore is the shared-store implementation.
type RedisSessionStore struct {
	Client *redis.Client
}

func NewRedisSessionStore(redisURL string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSessionStore{Client: client}, nil
}

func currentKey(sessionID string) string {
	return "device_session:current:" + sessionID
}

func revokedKey(sessionID string) string {
	return "device_session:revoked:" + sessionID
}

func (s *RedisSessionStore) SetCurrentToken(sessionID, tokenID string, ttl time.Duration) error {
	ctx := context.Background()
	if err := s.Client.Set(ctx, currentKey(sessionID), tokenID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store current token: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) CurrentToken(sessionID string) (string, bool, error) {
	ctx := context.Background()
	value, err := s.Client.Get(ctx, currentKey(sessionID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read current token: %w", err)
	}
	return value, true, nil
}

func (s *RedisSessionStore) Revoke(sessionID string, ttl time.Duration) error {
	ctx := context.Background()
	pipe := s.Client.Pipeline()
	pipe.Del(ctx, currentKey(sessionID))
	pipe.Set(ctx, revokedKey(sessionID), "true", ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) IsRevoked(sessionID string) (bool, error) {
	ctx := context.Background()
	count, err := s.Client.Exists(ctx, revokedKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return count > 0, nil
}

func (s *RedisSessionStore) Close() error {
	return s.Client.Close()
}
