package store

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

var (
	_ RefreshTokenStore = (*MemoryRefreshTokenStore)(nil)
	_ RefreshTokenStore = (*RedisRefreshTokenStore)(nil)
)

func TestMemoryRefreshTokenStoreRotate(t *testing.T) {
	s := NewMemoryRefreshTokenStore()

	token, err := s.NewToken("user-1", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	userID, nextToken, err := s.RotateToken(token, time.Minute)
	if err != nil {
		t.Fatalf("rotate token: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id: %q", userID)
	}
	if nextToken == "" || nextToken == token {
		t.Fatalf("expected rotated token")
	}
}

func TestMemoryRefreshTokenStoreReplayFails(t *testing.T) {
	s := NewMemoryRefreshTokenStore()

	token, err := s.NewToken("user-2", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if _, _, err := s.RotateToken(token, time.Minute); err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token on replay, got: %v", err)
	}
}

func TestMemoryRefreshTokenStoreExpiry(t *testing.T) {
	s := NewMemoryRefreshTokenStore()

	token, err := s.NewToken("user-3", -time.Second)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token after expiry, got: %v", err)
	}
}

func TestRedisRefreshTokenStoreRotateAndDelete(t *testing.T) {
	redis := miniredis.RunT(t)
	s := NewRedisRefreshTokenStore(redis.Addr(), "")

	token, err := s.NewToken("user-1", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	userID, nextToken, err := s.RotateToken(token, time.Minute)
	if err != nil {
		t.Fatalf("rotate token: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id: %q", userID)
	}
	if nextToken == "" || nextToken == token {
		t.Fatalf("expected rotated token")
	}

	if err := s.DeleteToken(nextToken); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if _, _, err := s.RotateToken(nextToken, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token after delete, got: %v", err)
	}
}

func TestRedisRefreshTokenStoreReplayFails(t *testing.T) {
	redis := miniredis.RunT(t)
	s := NewRedisRefreshTokenStore(redis.Addr(), "")

	token, err := s.NewToken("user-2", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if _, _, err := s.RotateToken(token, time.Minute); err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token on replay, got: %v", err)
	}
}

func TestRedisRefreshTokenStoreExpiry(t *testing.T) {
	redis := miniredis.RunT(t)
	s := NewRedisRefreshTokenStore(redis.Addr(), "")

	token, err := s.NewToken("user-3", time.Second)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	redis.FastForward(2 * time.Second)
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token after expiry, got: %v", err)
	}
}
