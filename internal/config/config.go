package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the relay and the terminal client.
// The values are read by viper from a config file, environment variables or flags.
type Config struct {
	AppName    string          `mapstructure:"APP_NAME"`
	AppVersion string          `mapstructure:"APP_VERSION"`
	LogLevel   string          `mapstructure:"LOG_LEVEL"`
	LogPretty  bool            `mapstructure:"LOG_PRETTY"`
	Server     ServerConfig    `mapstructure:"SERVER"` // 中继服务器 (chatrelay) 的配置
	WebSocket  WebSocketConfig `mapstructure:"WEBSOCKET"`
	Relay      RelayConfig     `mapstructure:"RELAY"`
	Client     ClientConfig    `mapstructure:"CLIENT"` // 终端客户端 (chatclient) 的配置
}

// ServerConfig holds configuration for the relay HTTP server.
type ServerConfig struct {
	Host           string        `mapstructure:"HOST"`
	Port           string        `mapstructure:"PORT"`
	WebSocketPath  string        `mapstructure:"WEBSOCKET_PATH"`
	ReadTimeout    time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `mapstructure:"WRITE_TIMEOUT"`
	MaxHeaderBytes int           `mapstructure:"MAX_HEADER_BYTES"`
	AllowedOrigins []string      `mapstructure:"ALLOWED_ORIGINS"` // websocket Origin 校验，"*" 表示不限制
	CORS           CORSConfig    `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS on the HTTP routes (/healthz, /metrics).
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders []string `mapstructure:"ALLOWED_HEADERS"`
	MaxAge         int      `mapstructure:"MAX_AGE"`
}

// WebSocketConfig holds configuration for relay-side WebSocket connections.
type WebSocketConfig struct {
	WriteWaitSeconds    int `mapstructure:"WRITE_WAIT_SECONDS"`
	PongWaitSeconds     int `mapstructure:"PONG_WAIT_SECONDS"`
	PingPeriodSeconds   int `mapstructure:"PING_PERIOD_SECONDS"`
	MaxMessageSizeBytes int `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
	SendBufferSize      int `mapstructure:"SEND_BUFFER_SIZE"` // 每个连接出站缓冲的帧数
}

// RelayConfig holds the fan-out limits of the relay.
type RelayConfig struct {
	// MaxConnections 为同时打开的连接数上限，0 表示不限制。
	MaxConnections int `mapstructure:"MAX_CONNECTIONS"`
	// FrameRate/FrameBurst 限制单个连接的入站帧速率，FrameRate 为 0 时不限速。
	FrameRate  float64 `mapstructure:"FRAME_RATE"`
	FrameBurst int     `mapstructure:"FRAME_BURST"`
}

// ClientConfig holds configuration for the reconnecting client.
type ClientConfig struct {
	URL              string        `mapstructure:"URL"`
	ReconnectDelay   time.Duration `mapstructure:"RECONNECT_DELAY"`
	HandshakeTimeout time.Duration `mapstructure:"HANDSHAKE_TIMEOUT"`
	WriteWait        time.Duration `mapstructure:"WRITE_WAIT"`
	// ReadTimeout 内没有收到任何帧（包括中继的 ping）即视为连接失效，0 表示不检测。
	ReadTimeout    time.Duration `mapstructure:"READ_TIMEOUT"`
	MaxMessageSize int64         `mapstructure:"MAX_MESSAGE_SIZE"`
}

// flagKeys maps command line flag names to viper keys. Only flags present in the
// FlagSet handed to LoadConfig are bound.
var flagKeys = map[string]string{
	"host":      "SERVER.HOST",
	"port":      "SERVER.PORT",
	"log-level": "LOG_LEVEL",
	"url":       "CLIENT.URL",
}

// Default returns the configuration with only defaults applied.
func Default() Config {
	cfg, _ := load(newViper(), "", nil, false)
	return cfg
}

// LoadConfig reads configuration from file, environment variables and flags.
// flags may be nil.
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	return load(newViper(), path, flags, true)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("APP_NAME", "timebank-chat")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	// Server Defaults (chatrelay)
	v.SetDefault("SERVER.HOST", "0.0.0.0")
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.WEBSOCKET_PATH", "/ws")
	v.SetDefault("SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER.MAX_HEADER_BYTES", 1<<20) // 1 MB
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("SERVER.CORS.ALLOWED_METHODS", []string{"GET", "OPTIONS"})
	v.SetDefault("SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Content-Type"})
	v.SetDefault("SERVER.CORS.MAX_AGE", 300)

	// WebSocket Defaults
	v.SetDefault("WEBSOCKET.WRITE_WAIT_SECONDS", 10)
	v.SetDefault("WEBSOCKET.PONG_WAIT_SECONDS", 60)
	v.SetDefault("WEBSOCKET.PING_PERIOD_SECONDS", 54)       // (60 * 9) / 10
	v.SetDefault("WEBSOCKET.MAX_MESSAGE_SIZE_BYTES", 1<<20) // 超长帧被丢弃，连接不断开
	v.SetDefault("WEBSOCKET.SEND_BUFFER_SIZE", 256)

	// Relay Defaults
	v.SetDefault("RELAY.MAX_CONNECTIONS", 1024)
	v.SetDefault("RELAY.FRAME_RATE", 0.0) // 默认不限速
	v.SetDefault("RELAY.FRAME_BURST", 40)

	// Client Defaults: 本地开发地址，生产环境通过 CLIENT_URL 覆盖
	v.SetDefault("CLIENT.URL", "ws://localhost:8080/ws")
	v.SetDefault("CLIENT.RECONNECT_DELAY", 5*time.Second)
	v.SetDefault("CLIENT.HANDSHAKE_TIMEOUT", 10*time.Second)
	v.SetDefault("CLIENT.WRITE_WAIT", 10*time.Second)
	v.SetDefault("CLIENT.READ_TIMEOUT", 60*time.Second)
	v.SetDefault("CLIENT.MAX_MESSAGE_SIZE", int64(1<<20))

	return v
}

func load(v *viper.Viper, path string, flags *pflag.FlagSet, external bool) (config Config, err error) {
	if external {
		if path != "" {
			v.SetConfigFile(path)
		} else {
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}

		// SERVER.PORT 对应环境变量 SERVER_PORT，CLIENT.URL 对应 CLIENT_URL
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		if flags != nil {
			for name, key := range flagKeys {
				if f := flags.Lookup(name); f != nil {
					if err = v.BindPFlag(key, f); err != nil {
						return
					}
				}
			}
		}

		if err = v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				// Config file was found but another error was produced
				return
			}
			// 没有配置文件时使用默认值
			err = nil
		}
	}

	err = v.Unmarshal(&config)
	return
}

// ListenAddr returns host:port of the relay server.
func (s ServerConfig) ListenAddr() string {
	return s.Host + ":" + s.Port
}

// WriteWait returns the write deadline for relay connections.
func (w WebSocketConfig) WriteWait() time.Duration {
	if w.WriteWaitSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.WriteWaitSeconds) * time.Second
}

// PongWait returns how long the relay waits for the next pong.
func (w WebSocketConfig) PongWait() time.Duration {
	if w.PongWaitSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(w.PongWaitSeconds) * time.Second
}

// PingPeriod returns the ping interval. Must be less than PongWait.
func (w WebSocketConfig) PingPeriod() time.Duration {
	if w.PingPeriodSeconds <= 0 {
		return (w.PongWait() * 9) / 10
	}
	return time.Duration(w.PingPeriodSeconds) * time.Second
}
