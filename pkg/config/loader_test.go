package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/pkg/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(logging.Discard(), "no-such-config-file")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 60*time.Second, cfg.Transport.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, 1, cfg.Transport.MaxMissedPings)
	assert.NotEmpty(t, cfg.Chat.GuestNames)
	assert.Equal(t, []string{"message", "room", "media", "poll"}, cfg.Chat.EnabledPlugins)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("PARLEY_SERVER_ADDRESS", ":9999")
	t.Setenv("PARLEY_AUTH_TOKENSECRET", "from-env")

	cfg, err := Load(logging.Discard(), "no-such-config-file")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "from-env", cfg.Auth.TokenSecret)
}

func TestIsOP(t *testing.T) {
	cfg := ChatConfig{Operators: []string{"alice"}}
	assert.True(t, cfg.IsOP("alice"))
	assert.False(t, cfg.IsOP("bob"))
}
