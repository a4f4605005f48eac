// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Transport modes.
const (
	ModePush    = "push"    // persistent duplex channel
	ModeRequest = "request" // one HTTP exchange per turn
)

// Config holds all client configuration.
type Config struct {
	ServerURL       string
	Mode            string
	UserID          string
	Depth           int
	DeepSearch      bool
	DownloadDir     string
	Port            string // agentd listen port
	ConversationLog ConversationLogConfig
}

// ConversationLogConfig controls NDJSON conversation event logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CHAT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		ServerURL:   getEnv("CHAT_SERVER_URL", "http://localhost:5000"),
		Mode:        getEnv("CHAT_MODE", ModePush),
		UserID:      getEnv("CHAT_USER_ID", "user123"),
		Depth:       getEnvInt("CHAT_DEPTH", 1),
		DeepSearch:  getEnvBool("CHAT_DEEPSEARCH", false),
		DownloadDir: getEnv("CHAT_DOWNLOAD_DIR", "./downloads"),
		Port:        getEnv("PORT", "5000"),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CHAT_LOG_ENABLED", true),
			Dir:       getEnv("CHAT_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("CHAT_SERVER_URL cannot be empty")
	}
	if c.Mode != ModePush && c.Mode != ModeRequest {
		return fmt.Errorf("CHAT_MODE must be %q or %q, got %q", ModePush, ModeRequest, c.Mode)
	}
	if c.UserID == "" {
		return fmt.Errorf("CHAT_USER_ID cannot be empty")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("CHAT_DOWNLOAD_DIR cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CHAT_LOG_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if the client targets a local server.
func (c *Config) IsDevelopment() bool {
	return strings.Contains(c.ServerURL, "localhost") ||
		strings.Contains(c.ServerURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
