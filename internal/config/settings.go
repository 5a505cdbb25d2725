package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Transport constants
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Auth type constants
const (
	AuthTypeHeader = "header"
	AuthTypeJWT    = "jwt"
)

// History store constants
const (
	HistoryStoreMemory = "memory"
	HistoryStoreRedis  = "redis"
)

// Log format constants
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// AuthSettings configuration for caller identity
type AuthSettings struct {
	Type   string             `mapstructure:"type"` // AuthTypeHeader or AuthTypeJWT
	JWT    JWTAuthSettings    `mapstructure:"jwt"`
	Header HeaderAuthSettings `mapstructure:"header"`
}

// JWTAuthSettings configuration for HS256 bearer tokens
type JWTAuthSettings struct {
	Secret    string `mapstructure:"secret"`
	RoleClaim string `mapstructure:"role_claim"`
}

// HeaderAuthSettings names the headers set by a trusted gateway
type HeaderAuthSettings struct {
	Subject string `mapstructure:"subject"`
	Role    string `mapstructure:"role"`
}

// IndexSettings configuration for the corpus and its compiled index
type IndexSettings struct {
	CorpusDir string `mapstructure:"corpus_dir"`
	Dir       string `mapstructure:"dir"`
	Watch     bool   `mapstructure:"watch"`
}

// RetrievalSettings configuration for ranking
type RetrievalSettings struct {
	TopK           int     `mapstructure:"top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
}

// BackendSettings configuration for the generation backend
type BackendSettings struct {
	URL           string        `mapstructure:"url"`
	Model         string        `mapstructure:"model"`
	ContextWindow int           `mapstructure:"context_window"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// HistorySettings configuration for conversation history
type HistorySettings struct {
	Store    string        `mapstructure:"store"` // HistoryStoreMemory or HistoryStoreRedis
	RedisURL string        `mapstructure:"redis_url"`
	MaxTurns int           `mapstructure:"max_turns"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ChatSettings configuration for the chat endpoint
type ChatSettings struct {
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second per subject, 0 disables
	Burst     int     `mapstructure:"burst"`
}

// LogSettings configuration for the process logger
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Settings application settings
type Settings struct {
	Transport string            `mapstructure:"transport"`
	Host      string            `mapstructure:"host"`
	Port      int               `mapstructure:"port"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Index     IndexSettings     `mapstructure:"index"`
	Retrieval RetrievalSettings `mapstructure:"retrieval"`
	Backend   BackendSettings   `mapstructure:"backend"`
	History   HistorySettings   `mapstructure:"history"`
	Chat      ChatSettings      `mapstructure:"chat"`
	Log       LogSettings       `mapstructure:"log"`
}

// flagKeys maps CLI flag names to settings keys.
var flagKeys = map[string]string{
	"transport":              "transport",
	"host":                   "host",
	"port":                   "port",
	"auth-type":              "auth.type",
	"auth-jwt-secret":        "auth.jwt.secret",
	"auth-jwt-role-claim":    "auth.jwt.role_claim",
	"auth-header-subject":    "auth.header.subject",
	"auth-header-role":       "auth.header.role",
	"corpus-dir":             "index.corpus_dir",
	"index-dir":              "index.dir",
	"index-watch":            "index.watch",
	"top-k":                  "retrieval.top_k",
	"score-threshold":        "retrieval.score_threshold",
	"backend-url":            "backend.url",
	"backend-model":          "backend.model",
	"backend-context-window": "backend.context_window",
	"backend-timeout":        "backend.timeout",
	"history-store":          "history.store",
	"history-redis-url":      "history.redis_url",
	"history-max-turns":      "history.max_turns",
	"history-ttl":            "history.ttl",
	"chat-rate-limit":        "chat.rate_limit",
	"chat-burst":             "chat.burst",
	"log-level":              "log.level",
	"log-format":             "log.format",
	"log-file":               "log.file",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("transport", TransportSSE)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)

	v.SetDefault("auth.type", AuthTypeHeader)
	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.role_claim", "role")
	v.SetDefault("auth.header.subject", "X-Auth-Subject")
	v.SetDefault("auth.header.role", "X-Auth-Role")

	v.SetDefault("index.corpus_dir", "./data")
	v.SetDefault("index.dir", "./page_index")
	v.SetDefault("index.watch", true)

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.score_threshold", 0.5)

	v.SetDefault("backend.url", "http://localhost:11434/api/generate")
	v.SetDefault("backend.model", "llama3")
	v.SetDefault("backend.context_window", 8192)
	v.SetDefault("backend.timeout", 120*time.Second)

	v.SetDefault("history.store", HistoryStoreMemory)
	v.SetDefault("history.redis_url", "redis://localhost:6379/0")
	v.SetDefault("history.max_turns", 10)
	v.SetDefault("history.ttl", time.Duration(0))

	v.SetDefault("chat.rate_limit", 0.0)
	v.SetDefault("chat.burst", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", LogFormatText)
	v.SetDefault("log.file", "")

	// Environment variables; every key has a default, so AutomaticEnv sees them all.
	v.SetEnvPrefix("RELIC_RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Transport = strings.ToLower(strings.TrimSpace(settings.Transport))
	settings.Auth.Type = strings.ToLower(strings.TrimSpace(settings.Auth.Type))
	settings.History.Store = strings.ToLower(strings.TrimSpace(settings.History.Store))
	settings.Log.Format = strings.ToLower(strings.TrimSpace(settings.Log.Format))

	settings.Index.CorpusDir = expandHomeDir(settings.Index.CorpusDir)
	settings.Index.Dir = expandHomeDir(settings.Index.Dir)
	settings.Log.File = expandHomeDir(settings.Log.File)

	return &settings, nil
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for invalid or incomplete configuration.
func ValidateSettings(s *Settings) error {
	switch s.Transport {
	case TransportStdio, TransportSSE:
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if err := validateAuthSettings(&s.Auth); err != nil {
		return err
	}

	if s.Index.CorpusDir == "" {
		return errors.New("corpus-dir cannot be empty")
	}
	if s.Index.Dir == "" {
		return errors.New("index-dir cannot be empty")
	}

	if s.Retrieval.TopK <= 0 {
		return errors.New("top-k must be positive")
	}
	if s.Retrieval.ScoreThreshold < 0 {
		return errors.New("score-threshold cannot be negative")
	}

	if s.Backend.URL == "" {
		return errors.New("backend-url cannot be empty")
	}
	if s.Backend.Model == "" {
		return errors.New("backend-model cannot be empty")
	}
	if s.Backend.ContextWindow <= 0 {
		return errors.New("backend-context-window must be positive")
	}
	if s.Backend.Timeout < 0 {
		return errors.New("backend-timeout cannot be negative")
	}

	if err := validateHistorySettings(&s.History); err != nil {
		return err
	}

	if s.Chat.RateLimit < 0 {
		return errors.New("chat-rate-limit cannot be negative")
	}
	if s.Chat.RateLimit > 0 && s.Chat.Burst <= 0 {
		return errors.New("chat-burst must be positive when chat-rate-limit is set")
	}

	switch s.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		return errors.New("log-format must be 'text' or 'json', got: " + s.Log.Format)
	}
	if _, err := ParseLevel(s.Log.Level); err != nil {
		return err
	}

	return nil
}

func validateAuthSettings(a *AuthSettings) error {
	switch a.Type {
	case AuthTypeHeader:
		if a.Header.Subject == "" || a.Header.Role == "" {
			return errors.New("auth-type 'header' requires both subject and role header names")
		}
	case AuthTypeJWT:
		if a.JWT.Secret == "" {
			return errors.New("auth-type 'jwt' requires auth-jwt-secret")
		}
		if a.JWT.RoleClaim == "" {
			return errors.New("auth-jwt-role-claim cannot be empty")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}

func validateHistorySettings(h *HistorySettings) error {
	switch h.Store {
	case HistoryStoreMemory:
	case HistoryStoreRedis:
		if h.RedisURL == "" {
			return errors.New("history-store 'redis' requires history-redis-url")
		}
	default:
		return fmt.Errorf("unknown history-store: %s", h.Store)
	}

	if h.MaxTurns <= 0 {
		return errors.New("history-max-turns must be positive")
	}
	if h.TTL < 0 {
		return errors.New("history-ttl cannot be negative")
	}
	return nil
}
