package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "sessions:"

// ErrSessionNotFound indicates the session id resolves to nothing, either
// because it never existed or because it expired or was destroyed.
var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side record behind a session cookie.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

// SessionManager stores sessions in Redis keyed by an opaque id. The Redis
// TTL mirrors ExpiresAt so stale sessions vanish without a sweeper.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionManager builds a manager with the given session lifetime.
func NewSessionManager(client *redis.Client, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{client: client, ttl: ttl}
}

// Create establishes a new session for the user and returns it.
func (m *SessionManager) Create(ctx context.Context, userID int64) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(m.ttl).UTC(),
	}

	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(session.ID), map[string]interface{}{
		"user_id":    session.UserID,
		"expires_at": session.ExpiresAt.Unix(),
	})
	pipe.Expire(ctx, sessionKey(session.ID), m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Get resolves a session id to its record.
func (m *SessionManager) Get(ctx context.Context, sid string) (*Session, error) {
	if sid == "" {
		return nil, ErrSessionNotFound
	}

	values, err := m.client.HGetAll(ctx, sessionKey(sid)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrSessionNotFound
	}

	userID, err := strconv.ParseInt(values["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrSessionNotFound
	}
	expiresUnix, err := strconv.ParseInt(values["expires_at"], 10, 64)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	session := &Session{
		ID:        sid,
		UserID:    userID,
		ExpiresAt: time.Unix(expiresUnix, 0).UTC(),
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Destroy removes the session. Destroying an absent session is not an error.
func (m *SessionManager) Destroy(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return m.client.Del(ctx, sessionKey(sid)).Err()
}

// TTL returns the configured session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

func sessionKey(sid string) string {
	return sessionPrefix + sid
}
