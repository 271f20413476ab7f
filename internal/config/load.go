package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Options control Load. ConfigPath points at an optional momentmcp.toml.
// Overrides apply last (flags > env > file > defaults).
type Options struct {
	ConfigPath string
	Overrides  *Overrides
}

// Overrides holds CLI flag values. Only non-nil fields are applied.
type Overrides struct {
	Transport  *string
	ListenHost *string
	ListenPort *int
	MCPPath    *string
	Stateless  *bool
	EnableSSE  *bool
	OutputDir  *string
}

// Load builds config with precedence: defaults -> momentmcp.toml -> env
// vars -> CLI overrides. Local .env files are read first so development
// credentials behave like real environment variables.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	// Explicit env always wins over dotenv contents.
	loadDotEnvFiles(".env.local", ".env")

	configPath := strings.TrimSpace(opts.ConfigPath)
	if configPath != "" {
		if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("CONFIG_INVALID: cannot read config file %s: %w", configPath, err)
			}
		}
	}

	applyEnv(&cfg)

	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// godotenv.Load never overwrites variables already present.
		_ = godotenv.Load(path)
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Transport, "MCP_TRANSPORT")
	setString(&cfg.HTTPHost, "MCP_HTTP_HOST")
	setInt(&cfg.HTTPPort, "MCP_HTTP_PORT")
	setString(&cfg.MCPPath, "MCP_HTTP_PATH")
	setBool(&cfg.StatelessHTTP, "MCP_HTTP_STATELESS")
	setBool(&cfg.EnableLegacySSE, "MCP_HTTP_ENABLE_SSE")
	setBool(&cfg.HTTPJSONResponse, "MCP_HTTP_JSON_RESPONSE")
	setString(&cfg.AuthToken, "MCP_AUTH_TOKEN")
	setInt(&cfg.MaxSessions, "MOMENTMCP_MAX_SESSIONS")
	setFloat(&cfg.RateLimitRPS, "MOMENTMCP_RATE_LIMIT_RPS")
	setInt(&cfg.RateLimitBurst, "MOMENTMCP_RATE_LIMIT_BURST")
	setStringList(&cfg.AllowedOrigins, "MOMENTMCP_ALLOWED_ORIGINS")

	setString(&cfg.ElevenLabsAPIKey, "ELEVENLABS_API_KEY")
	setString(&cfg.ElevenLabsBaseURL, "ELEVENLABS_BASE_URL")
	setString(&cfg.DefaultVoiceID, "ELEVENLABS_DEFAULT_VOICE_ID")

	setString(&cfg.MomentAPIBaseURL, "MOMENT_API_BASE_URL")

	setString(&cfg.OutputDir, "MOMENTMCP_OUTPUT_DIR")
	setString(&cfg.StateDir, "MOMENTMCP_STATE_DIR")
	setString(&cfg.SchemaPath, "MOMENTMCP_SCHEMA_PATH")
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.ListenHost != nil {
		cfg.HTTPHost = *o.ListenHost
	}
	if o.ListenPort != nil {
		cfg.HTTPPort = *o.ListenPort
	}
	if o.MCPPath != nil {
		cfg.MCPPath = *o.MCPPath
	}
	if o.Stateless != nil {
		cfg.StatelessHTTP = *o.Stateless
	}
	if o.EnableSSE != nil {
		cfg.EnableLegacySSE = *o.EnableSSE
	}
	if o.OutputDir != nil {
		cfg.OutputDir = *o.OutputDir
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		*dst = parsed
	}
}

func setFloat(dst *float64, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		*dst = parsed
	}
}

func setStringList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	var values []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) > 0 {
		*dst = values
	}
}

func setBool(dst *bool, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}
