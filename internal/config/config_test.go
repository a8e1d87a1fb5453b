package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "/ws", cfg.Server.WebSocketPath)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 1024, cfg.Relay.MaxConnections)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Client.URL)
	assert.Equal(t, 5*time.Second, cfg.Client.ReconnectDelay)
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingPeriod())
	assert.Less(t, cfg.WebSocket.PingPeriod(), cfg.WebSocket.PongWait())
	assert.Zero(t, cfg.Relay.FrameRate, "frame rate limiting is opt-in")
	assert.Equal(t, 1<<20, cfg.WebSocket.MaxMessageSizeBytes)
	assert.Equal(t, int64(1<<20), cfg.Client.MaxMessageSize)
	// 客户端读超时必须大于中继的 ping 周期
	assert.Greater(t, cfg.Client.ReadTimeout, cfg.WebSocket.PingPeriod())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CLIENT_URL", "wss://chat.example.org/ws")
	t.Setenv("CLIENT_RECONNECT_DELAY", "2s")
	t.Setenv("RELAY_MAX_CONNECTIONS", "7")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "wss://chat.example.org/ws", cfg.Client.URL)
	assert.Equal(t, 2*time.Second, cfg.Client.ReconnectDelay)
	assert.Equal(t, 7, cfg.Relay.MaxConnections)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	yaml := "server:\n  port: \"9100\"\nrelay:\n  max_connections: 3\n  frame_rate: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Relay.MaxConnections)
	assert.Equal(t, 5.0, cfg.Relay.FrameRate)
	// 未在文件中出现的键仍使用默认值
	assert.Equal(t, "/ws", cfg.Server.WebSocketPath)
}

func TestLoadConfigFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "9999"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	// 未设置的 flag 不覆盖默认值
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.ListenAddr())
}

func TestWebSocketDurationsFallBack(t *testing.T) {
	var w WebSocketConfig
	assert.Equal(t, 10*time.Second, w.WriteWait())
	assert.Equal(t, 60*time.Second, w.PongWait())
	assert.Equal(t, 54*time.Second, w.PingPeriod())
}
