package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Pipeline PipelineConfig `json:"pipeline"`
	Backend  BackendConfig  `json:"backend"`
	Gemini   GeminiConfig   `json:"gemini"`
	Output   OutputConfig   `json:"output"`
	HTTP     HTTPConfig     `json:"http"`
	Log      LogConfig      `json:"log"`
}

// PipelineConfig holds configuration for the compositing stages
type PipelineConfig struct {
	Dimension              int     `json:"dimension"`
	Quality                int     `json:"quality"`
	MarkerRadiusRatio      float64 `json:"marker_radius_ratio"`
	MarkerMinRadius        float64 `json:"marker_min_radius"`
	DescribeTimeoutSeconds int     `json:"describe_timeout_seconds"`
	ComposeTimeoutSeconds  int     `json:"compose_timeout_seconds"`
	FallbackDescription    string  `json:"fallback_description"`
	// DescriptionPrompt replaces the built-in location description instruction when set.
	DescriptionPrompt   string `json:"description_prompt,omitempty"`
	RestoreOriginalSize bool   `json:"restore_original_size"`
	RescaleSquare       bool   `json:"rescale_square"`
}

// BackendConfig selects the location description backend
type BackendConfig struct {
	// Describer is gemini, ollama, llamacpp or none.
	Describer string `json:"describer"`
	URL       string `json:"url,omitempty"`
	Model     string `json:"model,omitempty"`
}

// GeminiConfig holds the Gemini API settings
type GeminiConfig struct {
	APIKey           string `json:"api_key,omitempty"`
	BaseURL          string `json:"base_url"`
	APIVersion       string `json:"api_version"`
	DescriptionModel string `json:"description_model"`
	CompositionModel string `json:"composition_model"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	Lossless  bool   `json:"lossless"`
	OutputDir string `json:"output_dir"`
}

// HTTPConfig holds outbound client and web server settings
type HTTPConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds"`
	PreferIPv4     bool   `json:"prefer_ipv4"`
	WebAddr        string `json:"web_addr"`
	MaxUploadMB    int    `json:"max_upload_mb"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Dimension:              1024,
			Quality:                95,
			MarkerRadiusRatio:      0.015,
			MarkerMinRadius:        2,
			DescribeTimeoutSeconds: 60,
			ComposeTimeoutSeconds:  240,
			FallbackDescription:    "at the specified location.",
		},
		Backend: BackendConfig{
			Describer: "gemini",
		},
		Gemini: GeminiConfig{
			BaseURL:          "https://generativelanguage.googleapis.com",
			APIVersion:       "v1beta",
			DescriptionModel: "gemini-2.5-flash",
			CompositionModel: "gemini-2.5-flash-image",
		},
		Output: OutputConfig{
			Format:    "jpg",
			Quality:   95,
			OutputDir: "./output",
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 300,
			PreferIPv4:     true,
			WebAddr:        ":8080",
			MaxUploadMB:    25,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional JSON file and the environment
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		loaded, err := LoadFromFile(filename)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv() {
	c.Gemini.APIKey = getEnv("GEMINI_API_KEY", c.Gemini.APIKey)
	c.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", c.Gemini.BaseURL)
	c.Gemini.APIVersion = getEnv("GEMINI_API_VERSION", c.Gemini.APIVersion)
	c.Gemini.DescriptionModel = getEnv("GEMINI_DESCRIPTION_MODEL", c.Gemini.DescriptionModel)
	c.Gemini.CompositionModel = getEnv("GEMINI_COMPOSITION_MODEL", c.Gemini.CompositionModel)

	c.Backend.Describer = strings.ToLower(getEnv("DESCRIBER", c.Backend.Describer))
	c.Backend.URL = getEnv("DESCRIBER_URL", c.Backend.URL)
	c.Backend.Model = getEnv("DESCRIBER_MODEL", c.Backend.Model)

	c.Pipeline.Dimension = getEnvInt("TARGET_DIMENSION", c.Pipeline.Dimension)
	c.Pipeline.DescribeTimeoutSeconds = getEnvInt("DESCRIBE_TIMEOUT_SECONDS", c.Pipeline.DescribeTimeoutSeconds)
	c.Pipeline.ComposeTimeoutSeconds = getEnvInt("COMPOSE_TIMEOUT_SECONDS", c.Pipeline.ComposeTimeoutSeconds)
	c.Pipeline.DescriptionPrompt = getEnv("DESCRIPTION_PROMPT", c.Pipeline.DescriptionPrompt)
	c.Pipeline.RestoreOriginalSize = getEnvBool("RESTORE_ORIGINAL_SIZE", c.Pipeline.RestoreOriginalSize)

	c.Output.Format = strings.ToLower(getEnv("OUTPUT_FORMAT", c.Output.Format))
	c.Output.Quality = getEnvInt("OUTPUT_QUALITY", c.Output.Quality)
	c.Output.OutputDir = getEnv("OUTPUT_DIR", c.Output.OutputDir)

	c.HTTP.TimeoutSeconds = getEnvInt("HTTP_TIMEOUT_SECONDS", c.HTTP.TimeoutSeconds)
	c.HTTP.PreferIPv4 = getEnvBool("PREFER_IPV4", c.HTTP.PreferIPv4)
	c.HTTP.WebAddr = getEnv("WEB_ADDR", c.HTTP.WebAddr)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Pipeline.Dimension < 64 || c.Pipeline.Dimension > 4096 {
		return fmt.Errorf("pipeline.dimension must be between 64 and 4096")
	}

	if c.Pipeline.Quality < 1 || c.Pipeline.Quality > 100 {
		return fmt.Errorf("pipeline.quality must be between 1 and 100")
	}

	if c.Pipeline.MarkerRadiusRatio <= 0 || c.Pipeline.MarkerRadiusRatio > 0.5 {
		return fmt.Errorf("pipeline.marker_radius_ratio must be in (0, 0.5]")
	}

	if c.Pipeline.MarkerMinRadius < 0 {
		return fmt.Errorf("pipeline.marker_min_radius cannot be negative")
	}

	if c.Pipeline.DescribeTimeoutSeconds < 0 || c.Pipeline.ComposeTimeoutSeconds < 0 {
		return fmt.Errorf("pipeline timeouts cannot be negative")
	}

	switch c.Backend.Describer {
	case "gemini", "ollama", "llamacpp", "none":
	default:
		return fmt.Errorf("backend.describer must be gemini, ollama, llamacpp or none")
	}

	switch c.Output.Format {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.format must be jpg, png or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.HTTP.TimeoutSeconds < 1 {
		return fmt.Errorf("http.timeout_seconds must be positive")
	}

	if c.HTTP.MaxUploadMB < 1 {
		return fmt.Errorf("http.max_upload_mb must be positive")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// DescribeTimeout returns the describe stage timeout, zero when disabled
func (c PipelineConfig) DescribeTimeout() time.Duration {
	return time.Duration(c.DescribeTimeoutSeconds) * time.Second
}

// ComposeTimeout returns the compose stage timeout, zero when disabled
func (c PipelineConfig) ComposeTimeout() time.Duration {
	return time.Duration(c.ComposeTimeoutSeconds) * time.Second
}

// Timeout returns the outbound request timeout
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SlogLevel returns the configured level, info when unknown
func (c LogConfig) SlogLevel() slog.Level {
	level, err := parseLevel(c.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q must be debug, info, warn or error", level)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-fusion", "config.json")
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
