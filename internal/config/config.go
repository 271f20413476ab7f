package config

import (
	"fmt"
	"strings"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2025-03-26"

// Transport modes.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the immutable runtime configuration, built once at startup.
type Config struct {
	Transport string `toml:"transport"`

	HTTPHost         string `toml:"http_host"`
	HTTPPort         int    `toml:"http_port"`
	MCPPath          string `toml:"mcp_path"`
	StatelessHTTP    bool   `toml:"http_stateless"`
	EnableLegacySSE  bool   `toml:"http_enable_sse"`
	HTTPJSONResponse bool   `toml:"http_json_response"`
	MaxSessions      int    `toml:"max_sessions"`

	// AuthToken, when non-empty, gates every HTTP request behind an exact
	// bearer match. Empty means the gate is a no-op.
	AuthToken string `toml:"-"`

	// RateLimitRPS/RateLimitBurst shape the per-IP token bucket applied to
	// non-loopback HTTP clients. Zero disables the limiter.
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`

	// AllowedOrigins extends the browser-origin allowlist; requests with
	// no Origin header and localhost origins always pass.
	AllowedOrigins []string `toml:"allowed_origins"`

	ElevenLabsAPIKey  string `toml:"-"`
	ElevenLabsBaseURL string `toml:"elevenlabs_base_url"`
	DefaultVoiceID    string `toml:"default_voice_id"`

	MomentAPIBaseURL string `toml:"moment_api_base_url"`

	OutputDir  string `toml:"output_dir"`
	StateDir   string `toml:"state_dir"`
	SchemaPath string `toml:"schema_path"`
}

// Default returns the baseline configuration before file/env/flag overlays.
func Default() Config {
	return Config{
		Transport:        TransportStdio,
		HTTPHost:         "127.0.0.1",
		HTTPPort:         8080,
		MCPPath:          "/mcp",
		StatelessHTTP:    false,
		EnableLegacySSE:  false,
		HTTPJSONResponse: true,
		MaxSessions:      128,
		RateLimitRPS:     10,
		RateLimitBurst:   30,
		OutputDir:        "output",
	}
}

// ListenAddr renders host:port for the HTTP listener.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures. Errors are prefixed CONFIG_INVALID for exit-code
// mapping in the CLI.
func Validate(c *Config) error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("CONFIG_INVALID: transport must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Transport)
	}
	if !strings.HasPrefix(c.MCPPath, "/") {
		return fmt.Errorf("CONFIG_INVALID: mcp path must begin with '/', got %q", c.MCPPath)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("CONFIG_INVALID: http port out of range: %d", c.HTTPPort)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("CONFIG_INVALID: max sessions must be positive, got %d", c.MaxSessions)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("CONFIG_INVALID: rate limit values must not be negative")
	}
	if c.StatelessHTTP && c.EnableLegacySSE {
		return fmt.Errorf("CONFIG_INVALID: legacy SSE transport requires stateful sessions")
	}
	return nil
}
