package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/schaermu/ghsync/internal/catalog"
	"github.com/schaermu/ghsync/internal/config"
	"github.com/schaermu/ghsync/internal/github"
	"github.com/schaermu/ghsync/internal/inventory"
	"github.com/schaermu/ghsync/internal/match"
)

const (
	// fileMode is applied to every written file
	fileMode = 0o644
	// tempPrefix marks in-progress writes in the destination directory
	tempPrefix = ".ghsync-tmp-"
)

// Engine orchestrates the sync process
type Engine struct {
	cfg      *config.Config
	client   github.Client
	fs       billy.Filesystem
	rules    *match.Set
	logger   *slog.Logger
	observer Observer
	dryRun   bool
}

// NewEngine creates a new sync engine writing into fsys
func NewEngine(cfg *config.Config, client github.Client, fsys billy.Filesystem, logger *slog.Logger, dryRun bool) (*Engine, error) {
	rules, err := match.Compile(cfg.Files)
	if err != nil {
		return nil, fmt.Errorf("invalid file rules: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		client:   client,
		fs:       fsys,
		rules:    rules,
		logger:   logger,
		observer: LogObserver{Logger: logger},
		dryRun:   dryRun,
	}, nil
}

// SetObserver replaces the default logging observer
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// Run executes the complete sync process
func (e *Engine) Run(ctx context.Context) error {
	if err := e.run(ctx); err != nil {
		e.observer.Observe(Event{State: StateError, Err: err})
		return err
	}
	return nil
}

func (e *Engine) run(ctx context.Context) error {
	e.observer.Observe(Event{State: StateStart})
	e.logger.Debug("listing remote contents",
		"repo", e.cfg.FullName(),
		"dry_run", e.dryRun)

	remote, err := catalog.ListMatching(ctx, e.client, e.rules)
	if err != nil {
		return err
	}
	e.observer.Observe(Event{State: StateListed, Total: remote.Len()})

	local, err := inventory.Scan(e.fs, remote.Names())
	if err != nil {
		return fmt.Errorf("failed to scan local files: %w", err)
	}

	fetch := PlanFetch(remote, local)
	e.observer.Observe(Event{State: StatePlanned, Total: len(fetch)})

	// check for dry-run mode
	if e.dryRun {
		e.logPlanDetails(remote, local, fetch)
		e.logger.Info("dry-run complete, no changes applied")
		e.observer.Observe(Event{State: StateDone, Total: len(fetch)})
		return nil
	}

	if err := e.fetchAll(ctx, fetch); err != nil {
		return err
	}

	e.observer.Observe(Event{State: StateDone, Total: len(fetch)})
	return nil
}

// fetchAll downloads and stores every file of the fetch set in order
func (e *Engine) fetchAll(ctx context.Context, fetch []string) error {
	var failed []FileError

	for i, name := range fetch {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync interrupted before %s: %w", name, err)
		}

		e.observer.Observe(Event{State: StateFetching, File: name, Index: i, Total: len(fetch)})

		if err := e.fetchFile(ctx, name); err != nil {
			if !e.cfg.Sync.ContinueOnError {
				return err
			}
			e.logger.Warn("fetch failed, continuing", "file", name, "error", err)
			failed = append(failed, FileError{Name: name, Err: err})
		}
	}

	if len(failed) > 0 {
		return &FetchErrors{Failed: failed, Attempted: len(fetch)}
	}
	return nil
}

func (e *Engine) fetchFile(ctx context.Context, name string) error {
	data, err := e.client.FetchFile(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", name, err)
	}

	if err := e.writeFile(name, data); err != nil {
		return &WriteError{Name: name, Err: err}
	}

	e.logger.Debug("file written", "file", name, "bytes", len(data))
	return nil
}

// writeFile replaces name with data through a temp file and atomic rename
func (e *Engine) writeFile(name string, data []byte) error {
	// Create temp file next to the destination
	tmpFile, err := e.fs.TempFile(".", tempPrefix)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = e.fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	// Close temp file
	if err := tmpFile.Close(); err != nil {
		return err
	}

	// Temp files are created owner-only
	if ch, ok := e.fs.(billy.Change); ok {
		if err := ch.Chmod(tmpPath, fileMode); err != nil {
			return err
		}
	}

	// Atomic rename
	return e.fs.Rename(tmpPath, name)
}

// logPlanDetails logs every listed file and whether it would be fetched
func (e *Engine) logPlanDetails(remote *catalog.ShaMap, local inventory.ShaMap, fetch []string) {
	planned := make(map[string]bool, len(fetch))
	for _, name := range fetch {
		planned[name] = true
	}

	for _, name := range remote.Names() {
		sha, _ := remote.Get(name)
		localSHA, exists := local[name]
		switch {
		case !exists:
			e.logger.Info("would fetch (missing locally)", "file", name, "sha", sha)
		case planned[name]:
			e.logger.Info("would fetch (changed)", "file", name, "sha", sha, "local_sha", localSHA)
		default:
			e.logger.Debug("up to date", "file", name, "sha", sha)
		}
	}
}
