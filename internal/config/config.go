package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/schaermu/ghsync/internal/github"
	"github.com/schaermu/ghsync/internal/match"
	"gopkg.in/yaml.v3"
)

// Config represents the complete ghsync configuration
type Config struct {
	Repo  RepoConfig   `yaml:"repo"`
	Files []match.Rule `yaml:"files"`
	Paths PathsConfig  `yaml:"paths"`
	Sync  SyncConfig   `yaml:"sync"`
	Auth  AuthConfig   `yaml:"auth"`
	Serve ServeConfig  `yaml:"serve"`
}

// RepoConfig configures the remote repository and API endpoint
type RepoConfig struct {
	APIURL  string        `yaml:"api_url"`
	Owner   string        `yaml:"owner"`
	Name    string        `yaml:"name"`
	Accept  string        `yaml:"accept"`
	Timeout time.Duration `yaml:"timeout"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	DestDir string `yaml:"dest_dir"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	// ContinueOnError keeps fetching after a failed file and reports all failures at the end
	ContinueOnError bool `yaml:"continue_on_error"`
}

// AuthConfig configures API authentication for non-interactive runs
type AuthConfig struct {
	TokenFile string `yaml:"token_file"`
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
	AllowedRefs             []string `yaml:"allowed_refs"`
}

// Default returns the configuration of the reference deployment
func Default() *Config {
	cfg := &Config{
		Repo: RepoConfig{
			Owner: "nytimes",
			Name:  "covid-19-data",
		},
		Files: match.DefaultRules(),
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML on top of the defaults so omitted sections keep them
	cfg := Default()
	cfg.Files = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Files == nil {
		cfg.Files = match.DefaultRules()
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(os.ExpandEnv(path)); errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Repo.APIURL = os.ExpandEnv(c.Repo.APIURL)
	c.Repo.Owner = os.ExpandEnv(c.Repo.Owner)
	c.Repo.Name = os.ExpandEnv(c.Repo.Name)
	c.Paths.DestDir = os.ExpandEnv(c.Paths.DestDir)
	c.Auth.TokenFile = os.ExpandEnv(c.Auth.TokenFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.APIURL == "" {
		c.Repo.APIURL = github.DefaultBaseURL
	}
	if c.Repo.Accept == "" {
		c.Repo.Accept = github.RawAccept
	}
	if c.Paths.DestDir == "" {
		c.Paths.DestDir = "."
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = "127.0.0.1:8787"
	}
	if c.Serve.AllowedEventTypes == nil {
		c.Serve.AllowedEventTypes = []string{"push"}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate repo config
	if c.Repo.APIURL == "" {
		return fmt.Errorf("repo.api_url is required")
	}
	u, err := url.Parse(c.Repo.APIURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("repo.api_url must be an http(s) URL: %s", c.Repo.APIURL)
	}
	if c.Repo.Owner == "" {
		return fmt.Errorf("repo.owner is required")
	}
	if c.Repo.Name == "" {
		return fmt.Errorf("repo.name is required")
	}
	if c.Repo.Timeout < 0 {
		return fmt.Errorf("repo.timeout must not be negative: %s", c.Repo.Timeout)
	}

	// Validate file rules
	if _, err := match.Compile(c.Files); err != nil {
		return fmt.Errorf("files: %w", err)
	}

	// Validate paths
	if c.Paths.DestDir == "" {
		return fmt.Errorf("paths.dest_dir is required")
	}

	// Validate serve config if enabled
	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
		if c.Serve.GitHubWebhookSecretFile == "" {
			return fmt.Errorf("serve.github_webhook_secret_file is required when serve is enabled")
		}
	}

	return nil
}

// FullName returns the repository as owner/name
func (c *Config) FullName() string {
	return c.Repo.Owner + "/" + c.Repo.Name
}

// ReadToken reads the API token from auth.token_file
func (c *Config) ReadToken() (string, error) {
	if c.Auth.TokenFile == "" {
		return "", fmt.Errorf("auth.token_file is not configured")
	}
	data, err := os.ReadFile(c.Auth.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.Auth.TokenFile)
	}
	return token, nil
}
