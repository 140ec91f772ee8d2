package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gridshare/platform/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenStore_PutGetDelete(t *testing.T) {
	store := NewTokenStore(cache.NewInMemoryStore(), time.Hour)
	ctx := context.Background()

	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: time.Now().Add(time.Minute)}
	require.NoError(t, store.Put(ctx, "pid-1", tok))

	got, err := store.Get(ctx, "pid-1")
	require.NoError(t, err)
	assert.Equal(t, "at", got.AccessToken)
	assert.Equal(t, "rt", got.RefreshToken)

	require.NoError(t, store.DeleteByPermissionID(ctx, "pid-1"))
	_, err = store.Get(ctx, "pid-1")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTokenStore_DeleteMissingIsNoop(t *testing.T) {
	store := NewTokenStore(cache.NewInMemoryStore(), 0)
	assert.NoError(t, store.DeleteByPermissionID(context.Background(), "unknown"))
}

func TestTokenStore_RejectsUnusableTokens(t *testing.T) {
	store := NewTokenStore(cache.NewInMemoryStore(), 0)
	ctx := context.Background()

	assert.Error(t, store.Put(ctx, "pid", nil))
	assert.Error(t, store.Put(ctx, "pid", &oauth2.Token{}))
	assert.Error(t, store.Put(ctx, "pid", &oauth2.Token{AccessToken: "at", Expiry: time.Now().Add(-time.Minute)}))
}

func TestTokenStore_TokensAreScopedByPermission(t *testing.T) {
	store := NewTokenStore(cache.NewInMemoryStore(), 0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", &oauth2.Token{AccessToken: "token-a"}))
	require.NoError(t, store.Put(ctx, "b", &oauth2.Token{AccessToken: "token-b"}))
	require.NoError(t, store.DeleteByPermissionID(ctx, "a"))

	got, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "token-b", got.AccessToken)
}

func TestTokenSource_PersistsRefreshedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh",
			"refresh_token": "rt-2",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	cfg := &oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}
	store := NewTokenStore(cache.NewInMemoryStore(), 0)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "pid", &oauth2.Token{AccessToken: "stale", RefreshToken: "rt-1", Expiry: time.Now().Add(-time.Hour)}))

	src, err := store.TokenSource(ctx, "pid", cfg)
	require.NoError(t, err)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	stored, err := store.Get(ctx, "pid")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, "rt-2", stored.RefreshToken)
}

func TestTokenSource_NoStoredToken(t *testing.T) {
	store := NewTokenStore(cache.NewInMemoryStore(), 0)
	_, err := store.TokenSource(context.Background(), "pid", &oauth2.Config{})
	assert.ErrorIs(t, err, ErrNoToken)
}
