package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/omar16100/atlassian-cli/pkg/config"
)

func TestStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStoreWithKeyring(NewMemoryKeyring())

	_, ok, err := store.Get(ctx, "work")
	require.NoError(t, err)
	assert.False(t, ok, "missing entry should not be an error")

	require.NoError(t, store.Set(ctx, "work", "secret"))

	token, ok, err := store.Get(ctx, "work")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "secret", token)

	require.NoError(t, store.Delete(ctx, "work"))
	require.NoError(t, store.Delete(ctx, "work"), "deleting a missing entry is not an error")

	_, ok, err = store.Get(ctx, "work")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveTokenOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("profile env var wins over everything", func(t *testing.T) {
		t.Setenv("ATLASSIAN_CLI_TOKEN_WORK", "from-profile-env")
		t.Setenv(EnvToken, "from-global-env")

		store := NewStoreWithKeyring(NewMemoryKeyring())
		require.NoError(t, store.Set(ctx, "work", "from-keyring"))

		token, err := store.ResolveToken(ctx, "work", config.Profile{APIToken: "from-file"})
		require.NoError(t, err)
		assert.Equal(t, "from-profile-env", token)
	})

	t.Run("dashes in profile names map to underscores", func(t *testing.T) {
		t.Setenv("ATLASSIAN_CLI_TOKEN_MY_SITE", "dashed")

		store := NewStoreWithKeyring(NewMemoryKeyring())
		token, err := store.ResolveToken(ctx, "my-site", config.Profile{})
		require.NoError(t, err)
		assert.Equal(t, "dashed", token)
	})

	t.Run("global env var wins over keyring", func(t *testing.T) {
		t.Setenv(EnvToken, "from-global-env")

		store := NewStoreWithKeyring(NewMemoryKeyring())
		require.NoError(t, store.Set(ctx, "work", "from-keyring"))

		token, err := store.ResolveToken(ctx, "work", config.Profile{})
		require.NoError(t, err)
		assert.Equal(t, "from-global-env", token)
	})

	t.Run("keyring wins over config file", func(t *testing.T) {
		t.Setenv(EnvToken, "")
		store := NewStoreWithKeyring(NewMemoryKeyring())
		require.NoError(t, store.Set(ctx, "work", "from-keyring"))

		token, err := store.ResolveToken(ctx, "work", config.Profile{APIToken: "from-file"})
		require.NoError(t, err)
		assert.Equal(t, "from-keyring", token)
	})

	t.Run("config file is the last resort", func(t *testing.T) {
		t.Setenv(EnvToken, "")
		store := NewStoreWithKeyring(NewMemoryKeyring())

		token, err := store.ResolveToken(ctx, "work", config.Profile{APIToken: "from-file"})
		require.NoError(t, err)
		assert.Equal(t, "from-file", token)
	})

	t.Run("no source yields ErrNoToken", func(t *testing.T) {
		t.Setenv(EnvToken, "")
		store := NewStoreWithKeyring(NewMemoryKeyring())

		_, err := store.ResolveToken(ctx, "work", config.Profile{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoToken))
		assert.Contains(t, err.Error(), "auth login", "error should point at the fix")
	})
}
