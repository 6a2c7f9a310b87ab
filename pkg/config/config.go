// Package config provides configuration loading for members-db.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Repository backend names.
const (
	RepositoryBackendMemory    = "memory"
	RepositoryBackendFirestore = "firestore"
)

// Config is the main configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Discord       DiscordConfig       `yaml:"discord"`
	Repository    RepositoryConfig    `yaml:"repository"`
	Directory     DirectoryConfig     `yaml:"directory"`
	RateLimits    RateLimitConfig     `yaml:"rate_limits"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// DiscordConfig holds Discord OAuth2 and bot API configuration.
type DiscordConfig struct {
	// ClientID and ClientSecret identify the OAuth2 application.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// RedirectURL is the registered OAuth2 callback URL.
	RedirectURL string `yaml:"redirect_url"`

	// BotToken is the application-level credential used for guild queries.
	BotToken string `yaml:"bot_token"`

	// GuildID is the community guild whose roles are resolved.
	GuildID string `yaml:"guild_id"`
}

// RepositoryConfig holds credential repository configuration.
type RepositoryConfig struct {
	// Backend selects the store implementation: "memory" or "firestore".
	Backend string `yaml:"backend"`

	// ProjectID is the GCP project for the firestore backend.
	ProjectID string `yaml:"project_id,omitempty"`

	// PendingAuthCollection holds in-flight OAuth2 state documents.
	PendingAuthCollection string `yaml:"pending_auth_collection,omitempty"`

	// MembersCollection holds linked member credential documents.
	MembersCollection string `yaml:"members_collection,omitempty"`
}

// DirectoryConfig holds member directory aggregation configuration.
type DirectoryConfig struct {
	// ResolveConcurrency caps how many member rows are resolved in parallel.
	ResolveConcurrency int `yaml:"resolve_concurrency"`
}

// RateLimitConfig holds rate limiting configuration for the OAuth endpoints.
type RateLimitConfig struct {
	RequestsPerHour int `yaml:"requests_per_hour"`
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`
}

// envVarPattern matches ${VAR_NAME} patterns for environment variable substitution.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load loads configuration from a YAML file with environment variable substitution.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "config.yaml"
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	// Substitute environment variables
	substituted, err := substituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("substituting env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Lines that are comments (starting with #) are skipped to allow commented optional sections
// in config files without requiring their environment variables to be set.
func substituteEnvVars(content string) (string, error) {
	var missing []string

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		lines[i] = envVarPattern.ReplaceAllStringFunc(line, func(match string) string {
			name := envVarPattern.FindStringSubmatch(match)[1]

			value, ok := os.LookupEnv(name)
			if !ok {
				missing = append(missing, name)

				return match
			}

			return value
		})
	}

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	return strings.Join(lines, "\n"), nil
}

// applyDefaults fills in default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if cfg.Repository.Backend == "" {
		cfg.Repository.Backend = RepositoryBackendMemory
	}

	if cfg.Repository.PendingAuthCollection == "" {
		cfg.Repository.PendingAuthCollection = "oauth2"
	}

	if cfg.Repository.MembersCollection == "" {
		cfg.Repository.MembersCollection = "members"
	}

	if cfg.Directory.ResolveConcurrency == 0 {
		cfg.Directory.ResolveConcurrency = 8
	}

	if cfg.RateLimits.RequestsPerHour == 0 {
		cfg.RateLimits.RequestsPerHour = 100
	}

	if cfg.Observability.MetricsPort == 0 {
		cfg.Observability.MetricsPort = 9090
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Discord.ClientID == "" {
		errs = append(errs, "discord.client_id is required")
	}

	if c.Discord.ClientSecret == "" {
		errs = append(errs, "discord.client_secret is required")
	}

	if c.Discord.RedirectURL == "" {
		errs = append(errs, "discord.redirect_url is required")
	}

	if c.Discord.BotToken == "" {
		errs = append(errs, "discord.bot_token is required")
	}

	if c.Discord.GuildID == "" {
		errs = append(errs, "discord.guild_id is required")
	}

	switch c.Repository.Backend {
	case RepositoryBackendMemory:
	case RepositoryBackendFirestore:
		if c.Repository.ProjectID == "" {
			errs = append(errs, "repository.project_id is required for the firestore backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("repository.backend %q is not supported", c.Repository.Backend))
	}

	if c.Directory.ResolveConcurrency < 1 {
		errs = append(errs, "directory.resolve_concurrency must be at least 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}
