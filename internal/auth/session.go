// Package auth resolves bearer tokens into identity callers.
//
// Credential checks and token issuance UX live outside this service; the
// store only maps opaque tokens to principals for the configured TTL.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

const keyPrefix = "session:"

// ErrSessionNotFound is returned for unknown, expired or revoked tokens.
var ErrSessionNotFound = fmt.Errorf("%w: session not found", shared.ErrUnauthorized)

// Principal is the persisted form of an authenticated caller.
type Principal struct {
	Kind      identity.Kind `json:"kind"`
	ID        string        `json:"id"`
	CompanyID string        `json:"company_id,omitempty"`
}

// Caller converts the principal into a validated identity.Caller.
func (p Principal) Caller() (identity.Caller, error) {
	return identity.Parse(string(p.Kind), p.ID, p.CompanyID)
}

// PrincipalOf captures a caller for storage.
func PrincipalOf(c identity.Caller) Principal {
	p := Principal{Kind: c.Kind(), ID: c.ID()}
	if c.Kind() == identity.KindCompanyUser {
		p.CompanyID = c.CompanyID()
	}
	return p
}

// SessionStore keeps bearer sessions in Redis. Only a digest of each token is
// used as the key so a leaked keyspace cannot be replayed.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Save issues a new token for p.
func (s *SessionStore) Save(ctx context.Context, p Principal) (string, error) {
	if _, err := p.Caller(); err != nil {
		return "", err
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, redisKey(token), payload, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve loads the caller bound to token.
func (s *SessionStore) Resolve(ctx context.Context, token string) (identity.Caller, error) {
	if token == "" {
		return identity.Caller{}, ErrSessionNotFound
	}
	payload, err := s.client.Get(ctx, redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return identity.Caller{}, ErrSessionNotFound
		}
		return identity.Caller{}, err
	}
	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return identity.Caller{}, fmt.Errorf("auth: decode session: %w", err)
	}
	caller, err := p.Caller()
	if err != nil {
		return identity.Caller{}, ErrSessionNotFound
	}
	return caller, nil
}

// Revoke deletes the session bound to token. Unknown tokens are ignored.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func redisKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
