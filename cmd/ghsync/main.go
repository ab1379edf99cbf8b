package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/schaermu/ghsync/internal/config"
	"github.com/schaermu/ghsync/internal/github"
	"github.com/schaermu/ghsync/internal/sync"
	"github.com/schaermu/ghsync/internal/webhook"
	"github.com/spf13/cobra"
)

// tokenEnv names the environment variable read by serve when auth.token_file is unset
const tokenEnv = "GHSYNC_TOKEN"

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ghsync",
	Short: "Keep local copies of GitHub-hosted data files up to date",
	Long: `ghsync mirrors a selected set of files from a GitHub repository into a local
directory. Files are only downloaded when their git blob identity differs from
the local copy, so repeated runs against an unchanged repository transfer nothing.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync <token>",
	Short: "Download new or changed files once",
	Long: `Sync lists the repository contents, hashes the matching local files and
downloads every file that is missing locally or differs from the remote copy.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync on every GitHub push webhook",
	Long: `Serve performs an initial sync and then listens for GitHub push webhooks,
syncing again whenever the configured repository is updated.

The API token is read from auth.token_file or the ` + tokenEnv + ` environment variable.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ghsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ghsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be fetched without writing files")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fsys, err := destFS(cfg)
	if err != nil {
		return err
	}

	engine, err := sync.NewEngine(cfg, newClient(cfg, args[0]), fsys, logger, dryRun)
	if err != nil {
		return err
	}

	// The engine logs the failure itself
	return engine.Run(ctx)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Serve.GitHubWebhookSecretFile == "" {
		return fmt.Errorf("serve.github_webhook_secret_file is required for serve")
	}

	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}

	fsys, err := destFS(cfg)
	if err != nil {
		return err
	}

	server, err := webhook.NewServer(cfg, newClient(cfg, token), fsys, logger)
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		logger.Error("webhook server failed", "error", err)
		return err
	}
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// loadConfig loads --config, or the default path when it exists, or the
// built-in defaults.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if cfgFile != "" {
		logger.Debug("loading configuration", "path", cfgFile)
		cfg, err = config.Load(cfgFile)
	} else {
		path := defaultConfigPath()
		logger.Debug("loading configuration if present", "path", path)
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"api_url", cfg.Repo.APIURL,
		"repo", cfg.FullName(),
		"dest_dir", cfg.Paths.DestDir,
		"rules", len(cfg.Files))

	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ghsync", "config.yaml")
}

// resolveToken returns the token for non-interactive runs
func resolveToken(cfg *config.Config) (string, error) {
	if cfg.Auth.TokenFile != "" {
		return cfg.ReadToken()
	}
	if token := os.Getenv(tokenEnv); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("no API token: set auth.token_file or %s", tokenEnv)
}

func newClient(cfg *config.Config, token string) *github.HTTPClient {
	return github.NewHTTPClient(cfg.Repo.APIURL, cfg.Repo.Owner, cfg.Repo.Name, token,
		github.WithAccept(cfg.Repo.Accept),
		github.WithTimeout(cfg.Repo.Timeout))
}

// destFS opens the destination directory, creating it unless it is the working directory
func destFS(cfg *config.Config) (billy.Filesystem, error) {
	dir := cfg.Paths.DestDir
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create destination directory: %w", err)
		}
	}
	return osfs.New(dir), nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
