package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionRecord is what a bearer token resolves to.
type SessionRecord struct {
	Role     string `json:"role"`
	Username string `json:"username"`
}

type SessionStore interface {
	Create(ctx context.Context, rec SessionRecord) (token string, err error)
	Get(ctx context.Context, token string) (SessionRecord, error)
	Delete(ctx context.Context, token string) error
}

type redisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore keeps sessions under session:<token>. Every lookup
// extends the expiry by ttl.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

func (s *redisSessionStore) Create(ctx context.Context, rec SessionRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	token := uuid.NewString()
	if err := s.client.Set(ctx, sessionKey(token), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *redisSessionStore) Get(ctx context.Context, token string) (SessionRecord, error) {
	data, err := s.client.GetEx(ctx, sessionKey(token), s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return SessionRecord{}, ErrSessionNotFound
		}
		return SessionRecord{}, fmt.Errorf("load session: %w", err)
	}

	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("decode session: %w", err)
	}
	return rec, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, token string) error {
	n, err := s.client.Del(ctx, sessionKey(token)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Sweeper is implemented by stores that keep expired sessions around until
// they are purged.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type memorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memorySession
}

type memorySession struct {
	rec       SessionRecord
	expiresAt time.Time
}

func NewMemorySessionStore(ttl time.Duration) SessionStore {
	return &memorySessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]memorySession{},
	}
}

func (s *memorySessionStore) Create(_ context.Context, rec SessionRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.sessions[token] = memorySession{rec: rec, expiresAt: s.now().Add(s.ttl)}
	return token, nil
}

func (s *memorySessionStore) Get(_ context.Context, token string) (SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return SessionRecord{}, ErrSessionNotFound
	}
	now := s.now()
	if now.After(sess.expiresAt) {
		delete(s.sessions, token)
		return SessionRecord{}, ErrSessionNotFound
	}

	sess.expiresAt = now.Add(s.ttl)
	s.sessions[token] = sess
	return sess.rec, nil
}

func (s *memorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, token)
	return nil
}

// Sweep drops every expired session and reports how many were removed.
func (s *memorySessionStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}
