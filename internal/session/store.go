package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// ErrSessionNotFound is returned for unknown or expired tokens.
var ErrSessionNotFound = fmt.Errorf("session not found: %w", domain.ErrNotFound)

// Store issues and resolves session tokens.
type Store interface {
	Create(ctx context.Context, userID string, role domain.Role) (*Record, error)
	Resolve(ctx context.Context, token string) (*Record, error)
	Revoke(ctx context.Context, token string) error
	Close() error
}

const keyPrefix = "session:"

// RedisStore keeps sessions in Redis with a TTL, so sessions survive
// server restarts and are shared across instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

// NewRedisStore connects to Redis using the given URL
// (redis://host:port/db) and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration, logger *logrus.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, log: logger}, nil
}

// Create issues a new session token for the user.
func (s *RedisStore) Create(ctx context.Context, userID string, role domain.Role) (*Record, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role: %q", role)
	}

	now := time.Now().UTC()
	record := &Record{
		Token:     newToken(),
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+record.Token, data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"role":    role,
	}).Info("Session created")

	return record, nil
}

// Resolve looks up a token. Redis TTL handles expiry; a missing key means
// the session is gone.
func (s *RedisStore) Resolve(ctx context.Context, token string) (*Record, error) {
	data, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if record.Expired(time.Now().UTC()) {
		return nil, ErrSessionNotFound
	}
	return &record, nil
}

// Revoke deletes a session token.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore keeps sessions in process memory. Used in tests and when no
// Redis URL is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*Record
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*Record),
	}
}

// Create issues a new session token for the user.
func (s *MemoryStore) Create(ctx context.Context, userID string, role domain.Role) (*Record, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role: %q", role)
	}

	now := time.Now().UTC()
	record := &Record{
		Token:     newToken(),
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[record.Token] = record
	s.mu.Unlock()
	return record, nil
}

// Resolve looks up a token, dropping it when expired.
func (s *MemoryStore) Resolve(ctx context.Context, token string) (*Record, error) {
	s.mu.RLock()
	record, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if record.Expired(time.Now().UTC()) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return record, nil
}

// Revoke deletes a session token.
func (s *MemoryStore) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}
