package tokenstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the get/set/clear contract every backend must honour.
func runStoreContract(t *testing.T, s tokenstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing value", func(t *testing.T) {
		_, err := s.Get(ctx, tokenstore.AccessToken)
		require.ErrorIs(t, err, tokenstore.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, tokenstore.AccessToken, "access-1"))
		v, err := s.Get(ctx, tokenstore.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "access-1", v)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, tokenstore.AccessToken, "access-2"))
		v, err := s.Get(ctx, tokenstore.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "access-2", v)
	})

	t.Run("pair helpers leave preferences alone", func(t *testing.T) {
		require.NoError(t, tokenstore.SavePair(ctx, s, tokenstore.Pair{AccessToken: "a", RefreshToken: "r"}))
		require.NoError(t, s.Set(ctx, tokenstore.Theme, "dark"))

		pair, err := tokenstore.LoadPair(ctx, s)
		require.NoError(t, err)
		require.True(t, pair.Complete())
		require.Equal(t, "a", pair.AccessToken)
		require.Equal(t, "r", pair.RefreshToken)

		require.NoError(t, tokenstore.ClearPair(ctx, s))
		pair, err = tokenstore.LoadPair(ctx, s)
		require.NoError(t, err)
		require.True(t, pair.Empty())

		theme, err := s.Get(ctx, tokenstore.Theme)
		require.NoError(t, err)
		require.Equal(t, "dark", theme)
	})

	t.Run("clear missing is not an error", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx, tokenstore.UserPreferences))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, tokenstore.NewMemoryStore())
}

func TestMemoryProvider_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	p := tokenstore.NewMemoryProvider()

	require.NoError(t, p.For("browser-a").Set(ctx, tokenstore.AccessToken, "a-token"))

	_, err := p.For("browser-b").Get(ctx, tokenstore.AccessToken)
	require.ErrorIs(t, err, tokenstore.ErrNotFound)
	require.Equal(t, 1, p.Namespaces())

	require.NoError(t, p.For("browser-a").Clear(ctx, tokenstore.AccessToken))
	require.Equal(t, 0, p.Namespaces())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	runStoreContract(t, tokenstore.NewFileStore(path))
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	require.NoError(t, tokenstore.SavePair(ctx, tokenstore.NewFileStore(path), tokenstore.Pair{AccessToken: "a", RefreshToken: "r"}))

	reopened := tokenstore.NewFileStore(path)
	pair, err := tokenstore.LoadPair(ctx, reopened)
	require.NoError(t, err)
	require.Equal(t, "r", pair.RefreshToken)
}

func newMiniredisProvider(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *tokenstore.RedisProvider) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, tokenstore.NewRedisProvider(client, ttl)
}

func TestRedisStore(t *testing.T) {
	_, p := newMiniredisProvider(t, 0)
	runStoreContract(t, p.For("browser-1"))
}

func TestRedisStore_TTLRefreshedOnWrite(t *testing.T) {
	ctx := context.Background()
	mr, p := newMiniredisProvider(t, time.Hour)

	require.NoError(t, p.For("b").Set(ctx, tokenstore.AccessToken, "x"))
	require.Equal(t, time.Hour, mr.TTL("console:storage:b"))

	mr.FastForward(2 * time.Hour)
	_, err := p.For("b").Get(ctx, tokenstore.AccessToken)
	require.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestSealedStore(t *testing.T) {
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	runStoreContract(t, tokenstore.NewSealedStore(tokenstore.NewMemoryStore(), key))
}

func TestSealedProvider_BackendNeverSeesPlaintext(t *testing.T) {
	ctx := context.Background()
	key, err := tokenstore.ParseKey("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)

	inner := tokenstore.NewMemoryProvider()
	sealed := tokenstore.NewSealedProvider(inner, key)

	require.NoError(t, sealed.For("b").Set(ctx, tokenstore.RefreshToken, "super-secret"))

	raw, err := inner.For("b").Get(ctx, tokenstore.RefreshToken)
	require.NoError(t, err)
	require.NotContains(t, raw, "super-secret")

	v, err := sealed.For("b").Get(ctx, tokenstore.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "super-secret", v)

	var otherKey [32]byte
	_, err = tokenstore.NewSealedProvider(inner, otherKey).For("b").Get(ctx, tokenstore.RefreshToken)
	require.ErrorIs(t, err, tokenstore.ErrUnsealable)
}

func TestParseKey_RejectsWrongLength(t *testing.T) {
	_, err := tokenstore.ParseKey("abcd")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be 32 bytes")
}
