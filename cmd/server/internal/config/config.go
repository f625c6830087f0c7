// Package config loads and validates the service configuration. Values come
// from an optional YAML file (CONFIG_FILE) overridden by environment
// variables, so container deployments can ship a base file and tune single
// knobs through the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Security      SecurityConfig      `yaml:"security"`
	Whisper       WhisperConfig       `yaml:"whisper"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Upload        UploadConfig        `yaml:"upload"`
	Log           LogConfig           `yaml:"log"`
	Audit         AuditConfig         `yaml:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Env  string `yaml:"env"`  // dev, staging, production
	Port string `yaml:"port"`
}

// SecurityConfig holds the API key allow-set and CORS policy.
type SecurityConfig struct {
	APIKeys            []string `yaml:"api_keys"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// WhisperConfig selects and parameterizes the inference engine.
type WhisperConfig struct {
	Model       string        `yaml:"model"`        // tiny, base, small, medium, large-v3
	Mode        string        `yaml:"mode"`         // server, cli, mock
	ServerURL   string        `yaml:"server_url"`   // whisper-server base URL (mode=server)
	ProgramPath string        `yaml:"program_path"` // whisper binary (mode=cli)
	ModelDir    string        `yaml:"model_dir"`    // directory holding GGML model files
	Device      string        `yaml:"device"`       // auto, cpu, cuda
	LoadTimeout time.Duration `yaml:"load_timeout"` // bound on WaitUntilReady
}

// TranscriptionConfig holds default decoding parameters applied when the
// request leaves them unset.
type TranscriptionConfig struct {
	DefaultLanguage    string  `yaml:"default_language"`
	DefaultTemperature float64 `yaml:"default_temperature"`
	DefaultBeamSize    int     `yaml:"default_beam_size"`
	EnableVADFilter    bool    `yaml:"enable_vad_filter"`
	MaxConcurrent      int     `yaml:"max_concurrent"` // concurrent engine invocations
}

// UploadConfig bounds and classifies incoming files.
type UploadConfig struct {
	MaxFileSizeMB  int      `yaml:"max_file_size_mb"`
	AllowedFormats []string `yaml:"allowed_formats"`
	TempDir        string   `yaml:"temp_dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// AuditConfig holds the request audit log settings.
type AuditConfig struct {
	LogPath string `yaml:"log_path"` // empty disables the audit log
}

// MaxFileSizeBytes returns the upload ceiling in bytes.
func (c *UploadConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// ServerAddr returns the listen address for the HTTP server.
func (c *Config) ServerAddr() string {
	return ":" + c.Server.Port
}

// Load builds the configuration from the optional CONFIG_FILE and the
// environment. Environment variables always win over file values.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Env:  "dev",
			Port: "8080",
		},
		Security: SecurityConfig{
			APIKeys:            []string{},
			CORSAllowedOrigins: []string{"http://localhost:3000"},
		},
		Whisper: WhisperConfig{
			Model:       "small",
			Mode:        "cli",
			ServerURL:   "http://whisper:80",
			ProgramPath: "/usr/local/bin/whisper",
			ModelDir:    "/models/whisper",
			Device:      "auto",
			LoadTimeout: 2 * time.Minute,
		},
		Transcription: TranscriptionConfig{
			DefaultLanguage:    "it",
			DefaultTemperature: 0.0,
			DefaultBeamSize:    5,
			EnableVADFilter:    true,
			MaxConcurrent:      1,
		},
		Upload: UploadConfig{
			MaxFileSizeMB:  25,
			AllowedFormats: []string{"mp3", "wav", "m4a", "ogg", "flac", "webm"},
			TempDir:        os.TempDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Audit: AuditConfig{
			LogPath: "",
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Env, "ENV")
	setString(&cfg.Server.Port, "PORT")
	setList(&cfg.Security.APIKeys, "API_KEYS")
	setList(&cfg.Security.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	setString(&cfg.Whisper.Model, "WHISPER_MODEL")
	setString(&cfg.Whisper.Mode, "WHISPER_MODE")
	setString(&cfg.Whisper.ServerURL, "WHISPER_SERVER_URL")
	setString(&cfg.Whisper.ProgramPath, "WHISPER_PROGRAM_PATH")
	setString(&cfg.Whisper.ModelDir, "WHISPER_MODEL_DIR")
	setString(&cfg.Whisper.Device, "WHISPER_DEVICE")
	setDuration(&cfg.Whisper.LoadTimeout, "MODEL_LOAD_TIMEOUT")
	setString(&cfg.Transcription.DefaultLanguage, "DEFAULT_LANGUAGE")
	setFloat(&cfg.Transcription.DefaultTemperature, "DEFAULT_TEMPERATURE")
	setInt(&cfg.Transcription.DefaultBeamSize, "DEFAULT_BEAM_SIZE")
	setBool(&cfg.Transcription.EnableVADFilter, "ENABLE_VAD_FILTER")
	setInt(&cfg.Transcription.MaxConcurrent, "MAX_CONCURRENT_INFERENCE")
	setInt(&cfg.Upload.MaxFileSizeMB, "MAX_UPLOAD_MB")
	setList(&cfg.Upload.AllowedFormats, "ALLOWED_FORMATS")
	setString(&cfg.Upload.TempDir, "TEMP_DIR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Audit.LogPath, "AUDIT_LOG_PATH")
}

// Validate checks the configuration and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errs = append(errs, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	if cfg.IsProduction() && len(cfg.Security.APIKeys) == 0 {
		errs = append(errs, "API_KEYS is required in production environment")
	}

	validModes := map[string]bool{"server": true, "cli": true, "mock": true}
	if !validModes[cfg.Whisper.Mode] {
		errs = append(errs, fmt.Sprintf("invalid WHISPER_MODE: %s (must be: server, cli, mock)", cfg.Whisper.Mode))
	}
	if cfg.Whisper.Mode == "server" && cfg.Whisper.ServerURL == "" {
		errs = append(errs, "WHISPER_SERVER_URL is required when WHISPER_MODE=server")
	}
	if cfg.Whisper.Mode == "cli" && cfg.Whisper.ProgramPath == "" {
		errs = append(errs, "WHISPER_PROGRAM_PATH is required when WHISPER_MODE=cli")
	}
	if cfg.Whisper.LoadTimeout <= 0 {
		errs = append(errs, "MODEL_LOAD_TIMEOUT must be positive")
	}

	if cfg.Transcription.DefaultTemperature < 0 || cfg.Transcription.DefaultTemperature > 1 {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_TEMPERATURE: %g (must be in [0,1])", cfg.Transcription.DefaultTemperature))
	}
	if cfg.Transcription.DefaultBeamSize < 1 || cfg.Transcription.DefaultBeamSize > 10 {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_BEAM_SIZE: %d (must be 1-10)", cfg.Transcription.DefaultBeamSize))
	}
	if cfg.Transcription.MaxConcurrent < 1 {
		errs = append(errs, "MAX_CONCURRENT_INFERENCE must be at least 1")
	}

	if cfg.Upload.MaxFileSizeMB < 1 {
		errs = append(errs, fmt.Sprintf("invalid MAX_UPLOAD_MB: %d (must be at least 1)", cfg.Upload.MaxFileSizeMB))
	}
	if len(cfg.Upload.AllowedFormats) == 0 {
		errs = append(errs, "ALLOWED_FORMATS cannot be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Print returns a loggable summary of the configuration with secrets masked.
func (c *Config) Print() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Whisper:
    - Model: %s
    - Mode: %s
    - Device: %s
    - Load Timeout: %s
  Transcription Defaults:
    - Language: %s
    - Temperature: %g
    - Beam Size: %d
    - VAD Filter: %t
  Upload:
    - Max Size: %d MB
    - Allowed Formats: %v
    - Temp Dir: %s
  Security:
    - API Keys: %s
    - CORS Origins: %v
  Logging:
    - Level: %s
  Audit:
    - Log Path: %s`,
		c.Server.Env,
		c.Server.Port,
		c.Whisper.Model,
		c.Whisper.Mode,
		c.Whisper.Device,
		c.Whisper.LoadTimeout,
		c.Transcription.DefaultLanguage,
		c.Transcription.DefaultTemperature,
		c.Transcription.DefaultBeamSize,
		c.Transcription.EnableVADFilter,
		c.Upload.MaxFileSizeMB,
		c.Upload.AllowedFormats,
		c.Upload.TempDir,
		maskKeys(c.Security.APIKeys),
		c.Security.CORSAllowedOrigins,
		c.Log.Level,
		orUnset(c.Audit.LogPath),
	)
}

// Helpers.

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = parseStringList(v)
	}
}

func parseStringList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func maskKeys(keys []string) string {
	if len(keys) == 0 {
		return "<not set>"
	}
	masked := make([]string, len(keys))
	for i, k := range keys {
		masked[i] = maskSecret(k)
	}
	return strings.Join(masked, ", ")
}

func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func orUnset(s string) string {
	if s == "" {
		return "<disabled>"
	}
	return s
}
