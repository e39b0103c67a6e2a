package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidRefreshToken indicates the token is unknown, expired, or was
// already rotated away.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// RefreshTokenStore persists opaque refresh tokens. Tokens are single-use:
// RotateToken consumes the presented token and issues a replacement, so a
// replayed token fails with ErrInvalidRefreshToken.
type RefreshTokenStore interface {
	NewToken(userID string, ttl time.Duration) (string, error)
	RotateToken(token string, ttl time.Duration) (userID string, newToken string, err error)
	DeleteToken(token string) error
}

type refreshEntry struct {
	userID string
	expiry time.Time
}

// MemoryRefreshTokenStore keeps refresh tokens in memory.
type MemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]refreshEntry // sha256(token) -> entry
}

func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{tokens: make(map[string]refreshEntry)}
}

// NewToken issues and stores a fresh refresh token.
func (s *MemoryRefreshTokenStore) NewToken(userID string, ttl time.Duration) (string, error) {
	token, err := generateRefreshToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.tokens[refreshTokenHash(token)] = refreshEntry{
		userID: userID,
		expiry: time.Now().UTC().Add(ttl),
	}
	s.mu.Unlock()
	return token, nil
}

// RotateToken consumes the token and returns a replacement for the same user.
func (s *MemoryRefreshTokenStore) RotateToken(token string, ttl time.Duration) (string, string, error) {
	hash := refreshTokenHash(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[hash]
	if !ok {
		return "", "", ErrInvalidRefreshToken
	}
	delete(s.tokens, hash)
	if time.Now().UTC().After(entry.expiry) {
		return "", "", ErrInvalidRefreshToken
	}

	newToken, err := generateRefreshToken()
	if err != nil {
		return "", "", err
	}
	s.tokens[refreshTokenHash(newToken)] = refreshEntry{
		userID: entry.userID,
		expiry: time.Now().UTC().Add(ttl),
	}
	return entry.userID, newToken, nil
}

// DeleteToken invalidates the token if it exists.
func (s *MemoryRefreshTokenStore) DeleteToken(token string) error {
	s.mu.Lock()
	delete(s.tokens, refreshTokenHash(token))
	s.mu.Unlock()
	return nil
}

// RedisRefreshTokenStore stores refresh tokens in Redis with TTL.
type RedisRefreshTokenStore struct {
	client *redis.Client
}

func NewRedisRefreshTokenStore(addr, password string) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// NewToken issues and stores a fresh refresh token.
func (s *RedisRefreshTokenStore) NewToken(userID string, ttl time.Duration) (string, error) {
	token, err := generateRefreshToken()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, refreshTokenRedisKey(refreshTokenHash(token)), userID, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// RotateToken consumes the token and returns a replacement for the same user.
// GETDEL makes consumption atomic so two concurrent rotations of the same
// token cannot both succeed.
func (s *RedisRefreshTokenStore) RotateToken(token string, ttl time.Duration) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	userID, err := s.client.GetDel(ctx, refreshTokenRedisKey(refreshTokenHash(token))).Result()
	if err == redis.Nil {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", err
	}

	newToken, err := generateRefreshToken()
	if err != nil {
		return "", "", err
	}
	if err := s.client.Set(ctx, refreshTokenRedisKey(refreshTokenHash(newToken)), userID, ttl).Err(); err != nil {
		return "", "", err
	}
	return userID, newToken, nil
}

// DeleteToken invalidates the token if it exists.
func (s *RedisRefreshTokenStore) DeleteToken(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, refreshTokenRedisKey(refreshTokenHash(token))).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func refreshTokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func refreshTokenRedisKey(tokenHash string) string {
	return "carbonq:refresh:" + tokenHash
}
