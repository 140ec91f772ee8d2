// Package credential keeps per-permission OAuth tokens issued by regional
// data providers. Tokens are dropped once a permission request ends.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gridshare/platform/internal/cache"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned when no token is stored for a permission.
var ErrNoToken = errors.New("credential: no token stored")

const keyPrefix = "credential:"

// TokenStore persists OAuth tokens per permission id.
type TokenStore struct {
	cache cache.Store
	ttl   time.Duration
}

// NewTokenStore creates a token store. ttl bounds how long a token is kept
// when the token itself carries no expiry; zero keeps it until deleted.
func NewTokenStore(c cache.Store, ttl time.Duration) *TokenStore {
	return &TokenStore{cache: c, ttl: ttl}
}

func key(permissionID string) string { return keyPrefix + permissionID }

// Put stores tok for the permission. Tokens with an expiry live until the
// expiry passes, or ttl when that is shorter.
func (s *TokenStore) Put(ctx context.Context, permissionID string, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("credential: empty token for %s", permissionID)
	}
	ttl := s.ttl
	if !tok.Expiry.IsZero() && tok.RefreshToken == "" {
		remaining := time.Until(tok.Expiry)
		if remaining <= 0 {
			return fmt.Errorf("credential: token for %s already expired", permissionID)
		}
		if ttl == 0 || remaining < ttl {
			ttl = remaining
		}
	}
	return cache.SetJSON(ctx, s.cache, key(permissionID), tok, ttl)
}

// Get returns the stored token or ErrNoToken.
func (s *TokenStore) Get(ctx context.Context, permissionID string) (*oauth2.Token, error) {
	var tok oauth2.Token
	err := cache.GetJSON(ctx, s.cache, key(permissionID), &tok)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// DeleteByPermissionID removes the token of a finished permission request.
// Deleting a missing token is not an error.
func (s *TokenStore) DeleteByPermissionID(ctx context.Context, permissionID string) error {
	return s.cache.Delete(ctx, key(permissionID))
}

// TokenSource returns a source that refreshes the stored token through cfg
// and writes every new token back to the store.
func (s *TokenStore) TokenSource(ctx context.Context, permissionID string, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	tok, err := s.Get(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	return &persistingSource{
		ctx:          ctx,
		store:        s,
		permissionID: permissionID,
		last:         tok,
		src:          cfg.TokenSource(ctx, tok),
	}, nil
}

type persistingSource struct {
	ctx          context.Context
	store        *TokenStore
	permissionID string

	mu   sync.Mutex
	last *oauth2.Token
	src  oauth2.TokenSource
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil || tok.AccessToken != p.last.AccessToken {
		if err := p.store.Put(p.ctx, p.permissionID, tok); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
		p.last = tok
	}
	return tok, nil
}
