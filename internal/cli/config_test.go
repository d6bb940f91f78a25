package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8900/sync", cfg.Server.URL)
	assert.Equal(t, "syncview.db", cfg.Cache.Path)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SYNCVIEW_SERVER_URL", "ws://sync.example.com/ws")
	t.Setenv("SYNCVIEW_CACHE_PATH", "/tmp/other.db")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "ws://sync.example.com/ws", cfg.Server.URL)
	assert.Equal(t, "/tmp/other.db", cfg.Cache.Path)
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("SYNCVIEW_SERVER_URL", "ws://env.example.com/ws")

	cfg, err := LoadConfig(map[string]string{
		"server.url": "ws://flag.example.com/ws",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://flag.example.com/ws", cfg.Server.URL)
}

func TestLoadConfig_EmptyOverrideIgnored(t *testing.T) {
	cfg, err := LoadConfig(map[string]string{
		"server.url": "",
		"cache.path": "",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8900/sync", cfg.Server.URL)
	assert.Equal(t, "syncview.db", cfg.Cache.Path)
}
