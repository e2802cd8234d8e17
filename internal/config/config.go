package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "MINDVAULT"
	defaultHTTPAddress       = "127.0.0.1:8080"
	defaultDatabasePath      = "mindvault.db"
	defaultLegacyPath        = "localstorage.json"
	defaultLogLevel          = "info"
	defaultQuietPeriod       = 1500 * time.Millisecond
	defaultGenAIModel        = "gemini-2.5-flash"
	defaultGenAITimeout      = 60 * time.Second
	defaultTokenTTLMinutes   = 60 * 24
	defaultAttachmentMaxSize = 20 * 1024 * 1024
)

// AppConfig captures runtime configuration for the CLI and API server.
type AppConfig struct {
	HTTPAddress        string
	AllowedOrigins     []string
	DatabasePath       string
	LegacyPath         string
	LogLevel           string
	EditorQuietPeriod  time.Duration
	OrganizeDelay      time.Duration
	GenAIAPIKey        string
	GenAIModel         string
	GenAITimeout       time.Duration
	AuthSigningSecret  string
	AuthTokenTTL       time.Duration
	AttachmentMaxBytes int64
}

// AuthEnabled reports whether the HTTP API requires bearer tokens.
func (c AppConfig) AuthEnabled() bool {
	return strings.TrimSpace(c.AuthSigningSecret) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("legacy.path", defaultLegacyPath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("editor.quiet_period", defaultQuietPeriod)
	configViper.SetDefault("organize.delay", time.Duration(0))
	configViper.SetDefault("genai.api_key", "")
	configViper.SetDefault("genai.model", defaultGenAIModel)
	configViper.SetDefault("genai.timeout", defaultGenAITimeout)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("attachments.max_bytes", defaultAttachmentMaxSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		AllowedOrigins:     configViper.GetStringSlice("http.allowed_origins"),
		DatabasePath:       configViper.GetString("database.path"),
		LegacyPath:         configViper.GetString("legacy.path"),
		LogLevel:           configViper.GetString("log.level"),
		EditorQuietPeriod:  configViper.GetDuration("editor.quiet_period"),
		OrganizeDelay:      configViper.GetDuration("organize.delay"),
		GenAIAPIKey:        configViper.GetString("genai.api_key"),
		GenAIModel:         configViper.GetString("genai.model"),
		GenAITimeout:       configViper.GetDuration("genai.timeout"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthTokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		AttachmentMaxBytes: configViper.GetInt64("attachments.max_bytes"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.EditorQuietPeriod <= 0 {
		return fmt.Errorf("editor.quiet_period must be positive")
	}
	if c.OrganizeDelay < 0 {
		return fmt.Errorf("organize.delay must not be negative")
	}
	if c.AttachmentMaxBytes <= 0 || c.AttachmentMaxBytes > defaultAttachmentMaxSize {
		return fmt.Errorf("attachments.max_bytes must be between 1 and %d", defaultAttachmentMaxSize)
	}
	if c.AuthEnabled() && c.AuthTokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}
