// Package blacklist records revoked access tokens and per-user logout
// watermarks in a shared key-value store. Entries are TTL-bounded: a revoked
// token entry lives no longer than the token itself would have, and a
// watermark entry lives as long as the longest access-token lifetime, after
// which every token it could invalidate has expired anyway.
package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "blacklist:token:"
	userKeyPrefix  = "blacklist:user:"
)

// Store is the revocation registry consulted by the guards. Lookups return
// an error when the backing store is unreachable; callers must treat that as
// "cannot prove the token is valid" and reject (fail closed).
type Store interface {
	RevokeToken(ctx context.Context, token string, ttl time.Duration) error
	RevokeAllForUser(ctx context.Context, userID string, watermark time.Time) error
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

type RedisStore struct {
	client       redis.UniversalClient
	watermarkTTL time.Duration
}

// NewRedisStore builds a Store on the shared Redis client. watermarkTTL
// should be at least the configured access-token TTL.
func NewRedisStore(client redis.UniversalClient, watermarkTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, watermarkTTL: watermarkTTL}
}

func (s *RedisStore) RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return nil
	}
	if ttl <= 0 {
		// Token already expired; nothing left to invalidate.
		return nil
	}
	if err := s.client.Set(ctx, tokenKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string, watermark time.Time) error {
	if userID == "" {
		return nil
	}
	value := strconv.FormatInt(watermark.UTC().Unix(), 10)
	if err := s.client.Set(ctx, userKeyPrefix+userID, value, s.watermarkTTL).Err(); err != nil {
		return fmt.Errorf("revoke all for user: %w", err)
	}
	return nil
}

func (s *RedisStore) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	_, err := s.get(ctx, tokenKey(token))
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("token revocation lookup: %w", err)
	}
	return true, nil
}

func (s *RedisStore) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	if userID == "" {
		return false, nil
	}
	raw, err := s.get(ctx, userKeyPrefix+userID)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("watermark lookup: %w", err)
	}
	watermark, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse watermark: %w", err)
	}
	return issuedAt.UTC().Unix() <= watermark, nil
}

// get retries a failed read once. Lookups are idempotent, so a single bounded
// retry smooths transient connection errors without masking an outage.
func (s *RedisStore) get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == nil || errors.Is(err, redis.Nil) || ctx.Err() != nil {
		return value, err
	}
	return s.client.Get(ctx, key).Result()
}

// tokenKey hashes the raw token so arbitrarily long JWTs become fixed-size
// keys and the store never holds usable credentials.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return tokenKeyPrefix + hex.EncodeToString(sum[:])
}
