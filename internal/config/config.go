package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"voiceorb/internal/transport"
)

const (
	BackendDevice = "device"
	BackendFFMPEG = "ffmpeg"
)

// Config stores runtime configuration for the voice client.
type Config struct {
	Transport    TransportConfig    `yaml:"transport"`
	Audio        AudioConfig        `yaml:"audio"`
	Playback     PlaybackConfig     `yaml:"playback"`
	Conversation ConversationConfig `yaml:"conversation"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

type TransportConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

type AudioConfig struct {
	// Backend selects microphone capture: "device" (native) or "ffmpeg".
	Backend       string `yaml:"backend"`
	FFMPEGCommand string `yaml:"ffmpeg_command"`
	InputFormat   string `yaml:"input_format"`
	InputDevice   string `yaml:"input_device"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	BlockSize     int    `yaml:"block_size"`
	QueueSize     int    `yaml:"queue_size"`
}

type PlaybackConfig struct {
	SampleRate int `yaml:"sample_rate"`
}

type ConversationConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Transport: TransportConfig{
			Endpoint:          transport.DefaultURL,
			ReconnectAttempts: 5,
			ReconnectDelay:    3000 * time.Millisecond,
			HandshakeTimeout:  10 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Audio: AudioConfig{
			Backend:       BackendDevice,
			FFMPEGCommand: "ffmpeg",
			InputFormat:   "pulse",
			InputDevice:   "default",
			SampleRate:    16000,
			Channels:      1,
			BlockSize:     128,
			QueueSize:     64,
		},
		Playback: PlaybackConfig{SampleRate: 24000},
		Conversation: ConversationConfig{
			SettleDelay: 2000 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:    "localhost",
			Port:    3001,
			TLSCert: "certs/localhost.crt",
			TLSKey:  "certs/localhost.key",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load resolves configuration from defaults, an optional YAML file named by
// VOICEORB_CONFIG and environment variables, in increasing priority. A .env
// file in the working directory is loaded first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("VOICEORB_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Transport.Endpoint, _ = transport.NormalizeURL(cfg.Transport.Endpoint)
	return cfg, nil
}

// Validate reports configuration that cannot be repaired with defaults.
func (c Config) Validate() error {
	if _, err := transport.NormalizeURL(c.Transport.Endpoint); err != nil {
		return fmt.Errorf("transport.endpoint: %w", err)
	}
	switch c.Audio.Backend {
	case BackendDevice, BackendFFMPEG:
	default:
		return fmt.Errorf("audio.backend: unsupported value %q", c.Audio.Backend)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	t := &cfg.Transport
	t.Endpoint = envOrDefault("VOICEORB_ENDPOINT", t.Endpoint)
	t.ReconnectAttempts = envOrDefaultInt("VOICEORB_RECONNECT_ATTEMPTS", t.ReconnectAttempts)
	t.ReconnectDelay = envOrDefaultMillis("VOICEORB_RECONNECT_DELAY_MS", t.ReconnectDelay)
	t.HandshakeTimeout = envOrDefaultMillis("VOICEORB_HANDSHAKE_TIMEOUT_MS", t.HandshakeTimeout)
	t.WriteTimeout = envOrDefaultMillis("VOICEORB_WRITE_TIMEOUT_MS", t.WriteTimeout)

	a := &cfg.Audio
	a.Backend = strings.ToLower(envOrDefault("VOICEORB_AUDIO_BACKEND", a.Backend))
	a.FFMPEGCommand = envOrDefault("VOICEORB_FFMPEG_COMMAND", a.FFMPEGCommand)
	a.InputFormat = envOrDefault("VOICEORB_AUDIO_INPUT_FORMAT", a.InputFormat)
	a.InputDevice = envOrDefault("VOICEORB_AUDIO_INPUT_DEVICE", a.InputDevice)
	a.SampleRate = envOrDefaultInt("VOICEORB_SAMPLE_RATE", a.SampleRate)
	a.BlockSize = envOrDefaultInt("VOICEORB_BLOCK_SIZE", a.BlockSize)
	a.QueueSize = envOrDefaultInt("VOICEORB_QUEUE_SIZE", a.QueueSize)

	cfg.Playback.SampleRate = envOrDefaultInt("VOICEORB_PLAYBACK_SAMPLE_RATE", cfg.Playback.SampleRate)
	cfg.Conversation.SettleDelay = envOrDefaultMillis("VOICEORB_SETTLE_DELAY_MS", cfg.Conversation.SettleDelay)

	s := &cfg.Server
	s.Host = envOrDefault("VOICEORB_SERVER_HOST", s.Host)
	s.Port = envOrDefaultInt("VOICEORB_SERVER_PORT", s.Port)
	s.TLSCert = envOrDefault("VOICEORB_TLS_CERT", s.TLSCert)
	s.TLSKey = envOrDefault("VOICEORB_TLS_KEY", s.TLSKey)

	cfg.Log.Level = envOrDefault("VOICEORB_LOG_LEVEL", cfg.Log.Level)
}

func normalize(cfg *Config) {
	def := Defaults()

	if cfg.Transport.ReconnectAttempts <= 0 {
		cfg.Transport.ReconnectAttempts = def.Transport.ReconnectAttempts
	}
	if cfg.Transport.ReconnectDelay <= 0 {
		cfg.Transport.ReconnectDelay = def.Transport.ReconnectDelay
	}
	if cfg.Transport.HandshakeTimeout <= 0 {
		cfg.Transport.HandshakeTimeout = def.Transport.HandshakeTimeout
	}
	if cfg.Transport.WriteTimeout <= 0 {
		cfg.Transport.WriteTimeout = def.Transport.WriteTimeout
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = def.Audio.SampleRate
	}
	// the voice service consumes mono only
	cfg.Audio.Channels = 1
	if cfg.Audio.BlockSize <= 0 {
		cfg.Audio.BlockSize = def.Audio.BlockSize
	}
	if cfg.Audio.QueueSize <= 0 {
		cfg.Audio.QueueSize = def.Audio.QueueSize
	}
	if cfg.Playback.SampleRate <= 0 {
		cfg.Playback.SampleRate = def.Playback.SampleRate
	}
	if cfg.Conversation.SettleDelay <= 0 {
		cfg.Conversation.SettleDelay = def.Conversation.SettleDelay
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = def.Audio.Backend
	}
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
