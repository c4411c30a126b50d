// Package config provides the configuration schema and loader for the voice
// assistant server.
package config

import (
	"fmt"
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the slog level, defaulting to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration, typically loaded from a YAML file via
// [Load] or [LoadFromReader] and then overlaid with [ApplyEnv].
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	STT        STTConfig       `yaml:"stt"`
	TTS        TTSConfig       `yaml:"tts"`
	LLM        LLMConfig       `yaml:"llm"`
	Agent      AgentConfig     `yaml:"agent"`
	Session    SessionConfig   `yaml:"session"`
	Knowledge  KnowledgeConfig `yaml:"knowledge"`
	Tools      []string        `yaml:"tools"`
	MCPServers []MCPServer     `yaml:"mcp_servers"`
}

// ServerConfig holds network, logging and static-asset settings.
type ServerConfig struct {
	// Host is the bind address. Empty means localhost in development and
	// all interfaces in production.
	Host string `yaml:"host"`

	// Port is the TCP port. Zero means 8000.
	Port int `yaml:"port"`

	// StaticDir is a directory of client assets served at /. Empty disables
	// static serving.
	StaticDir string `yaml:"static_dir"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// STTConfig configures the streaming speech-to-text provider.
type STTConfig struct {
	// APIKey authenticates against the streaming API.
	APIKey string `yaml:"api_key"`

	// SampleRate of the client microphone audio in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Model is the speech model id.
	Model string `yaml:"model"`

	// Keywords are boosted terms corrected in final transcripts.
	Keywords []string `yaml:"keywords"`

	// MinEndOfTurnSilenceMs and MaxTurnSilenceMs tune turn detection.
	MinEndOfTurnSilenceMs int `yaml:"min_end_of_turn_silence_ms"`
	MaxTurnSilenceMs      int `yaml:"max_turn_silence_ms"`
}

// TTSConfig configures speech synthesis. An empty APIKey disables audio
// output; sessions still answer in text.
type TTSConfig struct {
	APIKey     string `yaml:"api_key"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
}

// LLMConfig configures the agent's language model.
type LLMConfig struct {
	// Provider routes through the managed gateway when empty.
	Provider string `yaml:"provider"`

	// APIKey for the provider or gateway. Falls back to the STT key for the
	// gateway, which shares credentials.
	APIKey string `yaml:"api_key"`

	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AgentConfig tunes the conversational agent.
type AgentConfig struct {
	// Instructions overrides the default system prompt when non-empty.
	Instructions string `yaml:"instructions"`

	// Greeting overrides the default opening line. The explicit empty
	// string in YAML still yields the default; disable with "none".
	Greeting string `yaml:"greeting"`

	// MaxSteps bounds tool-use reasoning steps per turn. Zero means 3.
	MaxSteps int `yaml:"max_steps"`
}

// SessionConfig tunes the session registry.
type SessionConfig struct {
	// TTLSeconds is the inactivity expiry. Zero means 3600; negative
	// disables expiry.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// KnowledgeConfig configures the pgvector knowledge base. An empty DSN
// disables the knowledge_base tool and the indexer.
type KnowledgeConfig struct {
	PostgresDSN         string `yaml:"postgres_dsn"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	EmbeddingAPIKey     string `yaml:"embedding_api_key"`
}

// MCPServer describes one external MCP tool server.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// Defaults used when fields are zero.
const (
	DefaultPort                  = 8000
	DefaultSTTSampleRate         = 16000
	DefaultTTSSampleRate         = 24000
	DefaultSessionTTL            = time.Hour
	DefaultMaxSteps              = 3
	DefaultEmbeddingDimensions   = 1536
	DefaultMinEndOfTurnSilenceMs = 400
	DefaultMaxTurnSilenceMs      = 1200
)

// SessionTTL resolves the configured TTL. Negative config disables expiry.
func (c *Config) SessionTTL() time.Duration {
	switch {
	case c.Session.TTLSeconds < 0:
		return 0
	case c.Session.TTLSeconds == 0:
		return DefaultSessionTTL
	}
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// Addr resolves the listen address. Development binds localhost; production
// platforms need all interfaces.
func (c *Config) Addr(production bool) string {
	host := c.Server.Host
	if host == "" {
		host = "127.0.0.1"
		if production {
			host = "0.0.0.0"
		}
	}
	port := c.Server.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}
