// Package config loads gateway settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultLanguages is the built-in tutoring language allow-list.
var DefaultLanguages = []string{
	"spanish", "french", "german", "italian", "portuguese",
	"japanese", "korean", "mandarin",
}

type Config struct {
	Addr string

	// Provider credentials and tuning.
	GeminiAPIKey string
	GeminiModel  string
	GeminiVoice  string

	// If true, client identity may be derived from proxy headers like
	// X-Forwarded-For. Enable only behind a trusted proxy or LB.
	TrustProxyHeaders bool

	// Languages holds lower-cased allowed language names.
	Languages map[string]bool

	// CORS; empty means disabled.
	CORSAllowedOrigins map[string]struct{}

	// Session bounds.
	MaxSessionDuration   time.Duration
	MaxConcurrentPerIP   int
	MaxSessionsPerIPHour int
	MaxPendingFrames     int

	// Websocket tuning.
	WSReadLimit      int64
	WSReadTimeout    time.Duration
	WSWriteTimeout   time.Duration
	WSPingInterval   time.Duration
	HandshakeTimeout time.Duration
	// InitTimeout bounds how long a connected client may take to send a
	// valid init frame.
	InitTimeout    time.Duration
	ConnectTimeout time.Duration

	// Optional Redis address for session bookkeeping; empty disables it.
	RedisAddr string

	MetricsEnabled bool

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("PARLEO_ADDR", ":8080"),
		GeminiAPIKey:         strings.TrimSpace(os.Getenv("PARLEO_GEMINI_API_KEY")),
		GeminiModel:          envOr("PARLEO_GEMINI_MODEL", ""),
		GeminiVoice:          envOr("PARLEO_GEMINI_VOICE", ""),
		TrustProxyHeaders:    envBoolOr("PARLEO_TRUST_PROXY_HEADERS", false),
		Languages:            make(map[string]bool),
		CORSAllowedOrigins:   make(map[string]struct{}),
		MaxSessionDuration:   envDurationOr("PARLEO_MAX_SESSION_DURATION", 10*time.Minute),
		MaxConcurrentPerIP:   envIntOr("PARLEO_MAX_CONCURRENT_PER_IP", 2),
		MaxSessionsPerIPHour: envIntOr("PARLEO_MAX_SESSIONS_PER_IP_HOUR", 10),
		MaxPendingFrames:     envIntOr("PARLEO_MAX_PENDING_FRAMES", 256),
		WSReadLimit:          envInt64Or("PARLEO_WS_READ_LIMIT_BYTES", 1<<20),
		WSReadTimeout:        envDurationOr("PARLEO_WS_READ_TIMEOUT", 60*time.Second),
		WSWriteTimeout:       envDurationOr("PARLEO_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:       envDurationOr("PARLEO_WS_PING_INTERVAL", 20*time.Second),
		HandshakeTimeout:     envDurationOr("PARLEO_HANDSHAKE_TIMEOUT", 5*time.Second),
		InitTimeout:          envDurationOr("PARLEO_INIT_TIMEOUT", 10*time.Second),
		ConnectTimeout:       envDurationOr("PARLEO_UPSTREAM_CONNECT_TIMEOUT", 15*time.Second),
		RedisAddr:            envOr("PARLEO_REDIS_ADDR", ""),
		MetricsEnabled:       envBoolOr("PARLEO_METRICS_ENABLED", true),
		ReadHeaderTimeout:    envDurationOr("PARLEO_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:  envDurationOr("PARLEO_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	languages := splitCSV(os.Getenv("PARLEO_LANGUAGES"))
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	for _, lang := range languages {
		cfg.Languages[strings.ToLower(lang)] = true
	}

	for _, origin := range splitCSV(os.Getenv("PARLEO_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("PARLEO_GEMINI_API_KEY must be set")
	}
	if cfg.MaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("PARLEO_MAX_SESSION_DURATION must be > 0")
	}
	if cfg.MaxConcurrentPerIP <= 0 {
		return Config{}, fmt.Errorf("PARLEO_MAX_CONCURRENT_PER_IP must be > 0")
	}
	if cfg.MaxSessionsPerIPHour <= 0 {
		return Config{}, fmt.Errorf("PARLEO_MAX_SESSIONS_PER_IP_HOUR must be > 0")
	}
	if cfg.MaxPendingFrames <= 0 {
		return Config{}, fmt.Errorf("PARLEO_MAX_PENDING_FRAMES must be > 0")
	}
	if cfg.WSReadLimit <= 0 {
		return Config{}, fmt.Errorf("PARLEO_WS_READ_LIMIT_BYTES must be > 0")
	}
	if cfg.WSReadTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEO_WS_READ_TIMEOUT must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEO_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("PARLEO_WS_PING_INTERVAL must be > 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEO_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.InitTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEO_INIT_TIMEOUT must be > 0")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEO_UPSTREAM_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEO_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("PARLEO_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
