// Package config loads the assistant configuration from, in order of
// precedence, environment variables, .env files, an optional YAML config
// file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Mode is the resolver mode of every session in the process.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var ErrInvalidConfig = errors.New("invalid config")

// ValidationError reports a bad configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidConfig }

type Config struct {
	Mode        Mode    `mapstructure:"mode"`
	Provider    string  `mapstructure:"provider"`
	Endpoint    string  `mapstructure:"endpoint"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`

	MaxContextMessages int           `mapstructure:"max_context_messages"`
	RemoteTimeout      time.Duration `mapstructure:"remote_timeout"`
	LocalDelay         time.Duration `mapstructure:"local_delay"`

	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`

	LogLevel string `mapstructure:"log_level"`
}

var placeholderKeys = map[string]bool{
	"your_openai_api_key_here": true,
	"your_gemini_api_key_here": true,
	"changeme":                 true,
}

var keyPatterns = map[string]*regexp.Regexp{
	ProviderOpenAI: regexp.MustCompile(`^sk-`),
	ProviderGemini: regexp.MustCompile(`^AIza`),
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeAuto))
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("endpoint", "")
	v.SetDefault("api_key", "")
	v.SetDefault("model", "")
	v.SetDefault("max_tokens", 500)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_context_messages", 20)
	v.SetDefault("remote_timeout", 20*time.Second)
	v.SetDefault("local_delay", 500*time.Millisecond)
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("session_ttl", 30*time.Minute)
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("rate_burst", 5)
	v.SetDefault("log_level", "info")
}

// Load reads .env files, the environment (KPA_ prefix) and configFile when
// it is not empty.
func Load(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("KPA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "PORT"} {
		if err := v.BindEnv(strings.ToLower(key), key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case ProviderOpenAI:
			cfg.APIKey = v.GetString("openai_api_key")
		case ProviderGemini:
			cfg.APIKey = v.GetString("gemini_api_key")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAuto, ModeRemote, ModeLocal:
	default:
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
	if _, ok := keyPatterns[c.Provider]; !ok {
		return &ValidationError{Field: "provider", Message: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if c.MaxContextMessages <= 0 {
		return &ValidationError{Field: "max_context_messages", Message: "must be positive"}
	}
	if c.MaxTokens <= 0 {
		return &ValidationError{Field: "max_tokens", Message: "must be positive"}
	}
	if c.RemoteTimeout <= 0 {
		return &ValidationError{Field: "remote_timeout", Message: "must be positive"}
	}
	if c.LocalDelay < 0 {
		return &ValidationError{Field: "local_delay", Message: "must not be negative"}
	}
	if c.Mode == ModeRemote && !UsableKey(c.Provider, c.APIKey) {
		return &ValidationError{Field: "api_key", Message: "remote mode needs a valid " + c.Provider + " key"}
	}
	return nil
}

// UsableKey reports whether key is present, not a placeholder and shaped
// like a key of provider.
func UsableKey(provider, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || placeholderKeys[strings.ToLower(key)] {
		return false
	}
	re, ok := keyPatterns[provider]
	return ok && re.MatchString(key)
}

// ResolveMode decides, once, whether sessions use the remote resolver.
func (c *Config) ResolveMode() Mode {
	switch c.Mode {
	case ModeLocal:
		return ModeLocal
	case ModeRemote:
		return ModeRemote
	}
	if UsableKey(c.Provider, c.APIKey) {
		return ModeRemote
	}
	return ModeLocal
}

func loadEnvFiles() {
	// .env.local wins over .env; godotenv never overrides variables already set
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}
}
