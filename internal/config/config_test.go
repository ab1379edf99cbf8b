package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/schaermu/ghsync/internal/github"
	"github.com/schaermu/ghsync/internal/match"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
repo:
  api_url: "https://github.example.com/api/v3/repos"
  owner: "acme"
  name: "datasets"
  timeout: "30s"

files:
  - exact: "prices.csv"
  - template: "prices-{year}.csv"
  - glob: "regions-*.csv"

paths:
  dest_dir: "/srv/data"

sync:
  continue_on_error: true

auth:
  token_file: "/run/secrets/gh-token"

serve:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify loaded values
	if cfg.Repo.APIURL != "https://github.example.com/api/v3/repos" {
		t.Errorf("unexpected api_url %s", cfg.Repo.APIURL)
	}
	if cfg.FullName() != "acme/datasets" {
		t.Errorf("expected full name acme/datasets, got %s", cfg.FullName())
	}
	if cfg.Repo.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %s", cfg.Repo.Timeout)
	}
	if cfg.Repo.Accept != github.RawAccept {
		t.Errorf("expected default accept header, got %s", cfg.Repo.Accept)
	}
	if len(cfg.Files) != 3 || cfg.Files[2].Glob != "regions-*.csv" {
		t.Errorf("unexpected file rules: %+v", cfg.Files)
	}
	if cfg.Paths.DestDir != "/srv/data" {
		t.Errorf("expected dest_dir /srv/data, got %s", cfg.Paths.DestDir)
	}
	if !cfg.Sync.ContinueOnError {
		t.Error("expected continue_on_error to be true")
	}
}

func TestLoad_MinimalUsesDefaults(t *testing.T) {
	path := writeConfig(t, `
sync:
  continue_on_error: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Repo.APIURL != github.DefaultBaseURL {
		t.Errorf("expected default api_url, got %s", cfg.Repo.APIURL)
	}
	if cfg.FullName() != "nytimes/covid-19-data" {
		t.Errorf("expected default repository, got %s", cfg.FullName())
	}
	if len(cfg.Files) != len(match.DefaultRules()) {
		t.Errorf("expected default file rules, got %+v", cfg.Files)
	}
	if cfg.Paths.DestDir != "." {
		t.Errorf("expected dest_dir '.', got %s", cfg.Paths.DestDir)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "repo: [unterminated"},
		{name: "empty file rules", content: "files: []\n"},
		{name: "rule with two kinds", content: "files:\n  - exact: a.csv\n    glob: '*.csv'\n"},
		{name: "unknown placeholder", content: "files:\n  - template: 'x-{week}.csv'\n"},
		{name: "bad timeout", content: "repo:\n  timeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.FullName() != "nytimes/covid-19-data" {
		t.Errorf("expected default config, got %s", cfg.FullName())
	}

	path := writeConfig(t, "repo:\n  owner: acme\n  name: data\n")
	cfg, err = LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.FullName() != "acme/data" {
		t.Errorf("expected acme/data, got %s", cfg.FullName())
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing api url",
			mutate:  func(c *Config) { c.Repo.APIURL = "" },
			wantErr: true,
		},
		{
			name:    "non http api url",
			mutate:  func(c *Config) { c.Repo.APIURL = "ftp://example.com/repos" },
			wantErr: true,
		},
		{
			name:    "missing owner",
			mutate:  func(c *Config) { c.Repo.Owner = "" },
			wantErr: true,
		},
		{
			name:    "missing name",
			mutate:  func(c *Config) { c.Repo.Name = "" },
			wantErr: true,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Repo.Timeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "no file rules",
			mutate:  func(c *Config) { c.Files = nil },
			wantErr: true,
		},
		{
			name:    "missing dest dir",
			mutate:  func(c *Config) { c.Paths.DestDir = "" },
			wantErr: true,
		},
		{
			name: "serve without secret",
			mutate: func(c *Config) {
				c.Serve.Enabled = true
				c.Serve.GitHubWebhookSecretFile = ""
			},
			wantErr: true,
		},
		{
			name: "serve without listen addr",
			mutate: func(c *Config) {
				c.Serve.Enabled = true
				c.Serve.ListenAddr = ""
				c.Serve.GitHubWebhookSecretFile = "/secret"
			},
			wantErr: true,
		},
		{
			name: "serve fully configured",
			mutate: func(c *Config) {
				c.Serve.Enabled = true
				c.Serve.GitHubWebhookSecretFile = "/secret"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadToken(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenPath, []byte("  ghp_abc123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	emptyPath := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyPath, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()

	if _, err := cfg.ReadToken(); err == nil {
		t.Error("expected error when token_file is not configured")
	}

	cfg.Auth.TokenFile = tokenPath
	token, err := cfg.ReadToken()
	if err != nil {
		t.Fatalf("ReadToken failed: %v", err)
	}
	if token != "ghp_abc123" {
		t.Errorf("expected trimmed token, got %q", token)
	}

	cfg.Auth.TokenFile = emptyPath
	if _, err := cfg.ReadToken(); err == nil {
		t.Error("expected error for empty token file")
	}

	cfg.Auth.TokenFile = filepath.Join(dir, "missing")
	if _, err := cfg.ReadToken(); err == nil {
		t.Error("expected error for missing token file")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("GHSYNC_TEST_HOME", "/home/testuser")

	cfg := Config{
		Repo: RepoConfig{
			APIURL: "https://${GHSYNC_TEST_HOME}/repos",
			Owner:  "${GHSYNC_TEST_HOME}",
			Name:   "${GHSYNC_TEST_HOME}-data",
		},
		Paths: PathsConfig{
			DestDir: "${GHSYNC_TEST_HOME}/data",
		},
		Auth: AuthConfig{
			TokenFile: "${GHSYNC_TEST_HOME}/token",
		},
		Serve: ServeConfig{
			ListenAddr:              "${GHSYNC_TEST_HOME}:8080",
			GitHubWebhookSecretFile: "${GHSYNC_TEST_HOME}/secret",
		},
	}

	cfg.expandEnv()

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Repo.APIURL", cfg.Repo.APIURL, "https:///home/testuser/repos"},
		{"Repo.Owner", cfg.Repo.Owner, "/home/testuser"},
		{"Repo.Name", cfg.Repo.Name, "/home/testuser-data"},
		{"Paths.DestDir", cfg.Paths.DestDir, "/home/testuser/data"},
		{"Auth.TokenFile", cfg.Auth.TokenFile, "/home/testuser/token"},
		{"Serve.ListenAddr", cfg.Serve.ListenAddr, "/home/testuser:8080"},
		{"Serve.GitHubWebhookSecretFile", cfg.Serve.GitHubWebhookSecretFile, "/home/testuser/secret"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expandEnv() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
}
