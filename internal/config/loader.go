package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/alexkroman/aai-agent/internal/tools"
)

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown YAML fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns a joined error listing every
// failure found. Tool names are resolved against the known tool kinds here,
// so a typo fails at startup rather than mid-conversation.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", cfg.Server.Port))
	}
	if cfg.STT.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("stt.sample_rate %d must not be negative", cfg.STT.SampleRate))
	}
	if cfg.TTS.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("tts.sample_rate %d must not be negative", cfg.TTS.SampleRate))
	}
	if cfg.Agent.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("agent.max_steps %d must not be negative", cfg.Agent.MaxSteps))
	}
	if cfg.Knowledge.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("knowledge.embedding_dimensions %d must not be negative", cfg.Knowledge.EmbeddingDimensions))
	}

	for _, name := range cfg.Tools {
		if _, err := tools.ParseKind(name); err != nil {
			errs = append(errs, err)
		}
	}

	serverNames := make(map[string]int, len(cfg.MCPServers))
	for i, srv := range cfg.MCPServers {
		prefix := fmt.Sprintf("mcp_servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, dup := serverNames[srv.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name %q duplicates mcp_servers[%d]", prefix, srv.Name, prev))
		} else {
			serverNames[srv.Name] = i
		}
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s: stdio transport requires command", prefix))
			}
		case "http":
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s: http transport requires url", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, http", prefix, srv.Transport))
		}
	}

	return errors.Join(errs...)
}

// ApplyEnv overlays environment variables onto cfg. Environment wins over
// file values so deployments can inject credentials without editing YAML.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("ASSEMBLYAI_API_KEY"); v != "" {
		cfg.STT.APIKey = v
	}
	if v := os.Getenv("ASSEMBLYAI_TTS_API_KEY"); v != "" {
		cfg.TTS.APIKey = v
	}
	if v := os.Getenv("VOICE"); v != "" {
		cfg.TTS.Voice = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Knowledge.EmbeddingAPIKey == "" {
		cfg.Knowledge.EmbeddingAPIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Knowledge.PostgresDSN == "" {
		cfg.Knowledge.PostgresDSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	// The gateway shares the streaming credential.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = cfg.STT.APIKey
	}
}

// IsProduction reports whether a deployment platform is detected. Used only
// to pick bind-address defaults.
func IsProduction() bool {
	return os.Getenv("FLY_APP_NAME") != "" || os.Getenv("RAILWAY_ENVIRONMENT") != ""
}
