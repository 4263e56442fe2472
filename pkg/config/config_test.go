package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestResolveProfile(t *testing.T) {
	cfg := &Config{
		DefaultProfile: "work",
		Profiles: map[string]Profile{
			"work":     {BaseURL: "https://example.atlassian.net"},
			"personal": {BaseURL: "https://me.atlassian.net"},
		},
	}

	t.Run("explicit request wins", func(t *testing.T) {
		name, p, err := cfg.ResolveProfile("personal")
		require.NoError(t, err)
		assert.Equal(t, "personal", name)
		assert.Equal(t, "https://me.atlassian.net", p.BaseURL)
	})

	t.Run("unknown request is an error", func(t *testing.T) {
		_, _, err := cfg.ResolveProfile("staging")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoProfile))
		assert.Contains(t, err.Error(), "staging")
	})

	t.Run("falls back to default", func(t *testing.T) {
		name, p, err := cfg.ResolveProfile("")
		require.NoError(t, err)
		assert.Equal(t, "work", name)
		assert.Equal(t, "https://example.atlassian.net", p.BaseURL)
	})

	t.Run("falls back to first by name when no default", func(t *testing.T) {
		noDefault := &Config{Profiles: map[string]Profile{
			"zz": {}, "aa": {BaseURL: "https://aa.atlassian.net"},
		}}
		name, p, err := noDefault.ResolveProfile("")
		require.NoError(t, err)
		assert.Equal(t, "aa", name)
		assert.Equal(t, "https://aa.atlassian.net", p.BaseURL)
	})

	t.Run("empty config is an error", func(t *testing.T) {
		_, _, err := (&Config{}).ResolveProfile("")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoProfile))
	})

	t.Run("dangling default falls back to first", func(t *testing.T) {
		dangling := &Config{
			DefaultProfile: "gone",
			Profiles:       map[string]Profile{"work": {}},
		}
		name, _, err := dangling.ResolveProfile("")
		require.NoError(t, err)
		assert.Equal(t, "work", name)
	})
}

func TestSetProfileInitialisesMap(t *testing.T) {
	cfg := &Config{}
	cfg.SetProfile("work", Profile{Email: "me@example.com"})

	p, ok := cfg.Profile("work")
	require.True(t, ok)
	assert.Equal(t, "me@example.com", p.Email)
}
