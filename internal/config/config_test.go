package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  port: 9000
  log_level: debug
stt:
  api_key: aai-key
  keywords: ["AssemblyAI"]
tts:
  voice: tara
llm:
  model: some-model
tools: ["get_weather", "visit_url"]
session:
  ttl_seconds: 120
mcp_servers:
  - name: local
    transport: stdio
    command: /usr/bin/mcp-server
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.STT.APIKey != "aai-key" {
		t.Errorf("STT.APIKey = %q", cfg.STT.APIKey)
	}
	if len(cfg.Tools) != 2 {
		t.Errorf("Tools = %v", cfg.Tools)
	}
	if got := cfg.SessionTTL(); got != 2*time.Minute {
		t.Errorf("SessionTTL() = %v, want 2m", got)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("serverz:\n  port: 1\n")); err == nil {
		t.Error("LoadFromReader() error = nil, want unknown-field error")
	}
}

func TestLoadFromReaderEmpty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty) error = %v", err)
	}
	if got := cfg.SessionTTL(); got != DefaultSessionTTL {
		t.Errorf("SessionTTL() = %v, want default", got)
	}
}

func TestValidateUnknownTool(t *testing.T) {
	cfg := &Config{Tools: []string{"get_weather", "frobnicate"}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want unknown-tool error")
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("Validate() error = %v, want it to name the tool", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: -1, LogLevel: "loud"},
		Tools:  []string{"nope"},
		MCPServers: []MCPServer{
			{Name: "", Transport: "carrier-pigeon"},
		},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"port", "log_level", "nope", "name is required", "transport"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q: %v", want, err)
		}
	}
}

func TestValidateMCPServers(t *testing.T) {
	cfg := &Config{MCPServers: []MCPServer{
		{Name: "a", Transport: "stdio"},
		{Name: "a", Transport: "http", URL: "http://x"},
	}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.Contains(err.Error(), "requires command") {
		t.Errorf("missing stdio command error: %v", err)
	}
	if !strings.Contains(err.Error(), "duplicates") {
		t.Errorf("missing duplicate name error: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "env-stt-key")
	t.Setenv("ASSEMBLYAI_TTS_API_KEY", "env-tts-key")
	t.Setenv("VOICE", "leo")
	t.Setenv("PORT", "3001")

	cfg := &Config{STT: STTConfig{APIKey: "file-key"}}
	ApplyEnv(cfg)

	if cfg.STT.APIKey != "env-stt-key" {
		t.Errorf("STT.APIKey = %q, want env override", cfg.STT.APIKey)
	}
	if cfg.TTS.APIKey != "env-tts-key" {
		t.Errorf("TTS.APIKey = %q", cfg.TTS.APIKey)
	}
	if cfg.TTS.Voice != "leo" {
		t.Errorf("TTS.Voice = %q", cfg.TTS.Voice)
	}
	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "env-stt-key" {
		t.Errorf("LLM.APIKey = %q, want gateway fallback to stt key", cfg.LLM.APIKey)
	}
}

func TestIsProduction(t *testing.T) {
	t.Setenv("FLY_APP_NAME", "")
	t.Setenv("RAILWAY_ENVIRONMENT", "")
	if IsProduction() {
		t.Error("IsProduction() = true with no platform vars")
	}
	t.Setenv("FLY_APP_NAME", "my-app")
	if !IsProduction() {
		t.Error("IsProduction() = false with FLY_APP_NAME set")
	}
}

func TestAddr(t *testing.T) {
	cfg := &Config{}
	if got := cfg.Addr(false); got != "127.0.0.1:8000" {
		t.Errorf("Addr(false) = %q", got)
	}
	if got := cfg.Addr(true); got != "0.0.0.0:8000" {
		t.Errorf("Addr(true) = %q", got)
	}
	cfg.Server.Host = "10.0.0.5"
	cfg.Server.Port = 9090
	if got := cfg.Addr(true); got != "10.0.0.5:9090" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestSessionTTLDisabled(t *testing.T) {
	cfg := &Config{Session: SessionConfig{TTLSeconds: -1}}
	if got := cfg.SessionTTL(); got != 0 {
		t.Errorf("SessionTTL() = %v, want 0 (disabled)", got)
	}
}
