// Package config provides environment configuration for the API server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
)

// FallbackSystemPrompt is used when SYSTEM_PROMPT is not set.
const FallbackSystemPrompt = "You are a helpful assistant."

// DefaultOpenRouterBaseURL is the OpenRouter OpenAI-compatible endpoint.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSAllowedOrigins []string

	// Credential vault
	EncryptionSecretKey string
	CookieSecure        bool

	// Chat settings
	SystemPrompt          string
	rawSystemPrompt       string
	RequestTimeout        time.Duration
	MaxSteps              int
	OpenRouterBaseURL     string
	AnthropicToolsEnabled bool

	// Companion endpoints
	OpenAIAPIKey string
	TitleModel   string
	MemoryModel  string

	// NATS settings. An empty URL disables the event sink.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings. An empty secret disables bearer auth.
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 90*time.Second),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),

		// Vault
		EncryptionSecretKey: getEnv("ENCRYPTION_SECRET_KEY", ""),
		CookieSecure:        getBoolEnv("COOKIE_SECURE", true),

		// Chat
		rawSystemPrompt:       os.Getenv("SYSTEM_PROMPT"),
		RequestTimeout:        getDurationEnv("REQUEST_TIMEOUT", 60*time.Second),
		MaxSteps:              getIntEnv("MAX_STEPS", 10),
		OpenRouterBaseURL:     getEnv("OPENROUTER_BASE_URL", DefaultOpenRouterBaseURL),
		AnthropicToolsEnabled: getBoolEnv("ANTHROPIC_TOOLS_ENABLED", false),

		// Companion
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		TitleModel:   getEnv("TITLE_MODEL", "gpt-3.5-turbo"),
		MemoryModel:  getEnv("MEMORY_MODEL", "gpt-4o-mini"),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks the settings the server cannot start without and resolves
// the default system prompt.
func (c *Config) Validate() error {
	if c.EncryptionSecretKey == "" {
		return chaterr.New(chaterr.KindConfiguration, chaterr.MsgSecretNotConfigured)
	}

	prompt, err := ParseSystemPrompt(c.rawSystemPrompt)
	if err != nil {
		return err
	}
	c.SystemPrompt = prompt

	if c.MaxSteps < 1 {
		return chaterr.New(chaterr.KindConfiguration, "MAX_STEPS must be at least 1")
	}
	if c.RequestTimeout <= 0 {
		return chaterr.New(chaterr.KindConfiguration, "REQUEST_TIMEOUT must be positive")
	}
	if c.ServerWriteTimeout > 0 && c.ServerWriteTimeout <= c.RequestTimeout {
		return chaterr.New(chaterr.KindConfiguration, "SERVER_WRITE_TIMEOUT must exceed REQUEST_TIMEOUT")
	}

	return nil
}

// ParseSystemPrompt resolves the SYSTEM_PROMPT variable. It accepts a JSON
// object {"SYSTEM_PROMPT": "..."} or a JSON string. An unset value yields
// FallbackSystemPrompt; anything else that does not parse is an error.
func ParseSystemPrompt(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FallbackSystemPrompt, nil
	}

	var wrapped struct {
		SystemPrompt string `json:"SYSTEM_PROMPT"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil {
		if strings.TrimSpace(wrapped.SystemPrompt) == "" {
			return "", chaterr.New(chaterr.KindConfiguration, "SYSTEM_PROMPT has no SYSTEM_PROMPT field")
		}
		return wrapped.SystemPrompt, nil
	}

	var plain string
	if err := json.Unmarshal([]byte(raw), &plain); err == nil && strings.TrimSpace(plain) != "" {
		return plain, nil
	}

	return "", chaterr.Wrap(chaterr.KindConfiguration,
		fmt.Errorf("SYSTEM_PROMPT is not valid JSON"), "invalid SYSTEM_PROMPT")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
