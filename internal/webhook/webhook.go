// Package webhook runs a sync whenever GitHub reports a push to the
// configured repository.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/schaermu/ghsync/internal/activation"
	"github.com/schaermu/ghsync/internal/config"
	"github.com/schaermu/ghsync/internal/github"
	ghsync "github.com/schaermu/ghsync/internal/sync"
)

const (
	maxPayload    = 1 << 20 // 1 MB
	debounceDelay = 2 * time.Second
)

// PushEvent holds the fields of a GitHub push payload used for filtering
type PushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Server receives webhooks and triggers syncs
type Server struct {
	cfg    *config.Config
	client github.Client
	fs     billy.Filesystem
	logger *slog.Logger
	secret []byte

	mu      sync.Mutex // guards running and pending
	running bool       // a sync is in progress
	pending bool       // another sync was requested while running

	debounce *debouncer
}

// NewServer creates a new webhook server syncing into fsys
func NewServer(cfg *config.Config, client github.Client, fsys billy.Filesystem, logger *slog.Logger) (*Server, error) {
	secret, err := os.ReadFile(cfg.Serve.GitHubWebhookSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}
	secret = []byte(strings.TrimSpace(string(secret)))
	if len(secret) == 0 {
		return nil, fmt.Errorf("webhook secret file %s is empty", cfg.Serve.GitHubWebhookSecretFile)
	}

	return &Server{
		cfg:      cfg,
		client:   client,
		fs:       fsys,
		logger:   logger,
		secret:   secret,
		debounce: &debouncer{delay: debounceDelay},
	}, nil
}

// Start serves on the systemd-activated socket if there is one, otherwise on
// serve.listen_addr, until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, activated, err := activation.Listen(s.cfg.Serve.ListenAddr)
	if err != nil {
		return err
	}
	if activated {
		s.logger.Info("using systemd socket activation", "addr", ln.Addr().String())
	}
	return s.Serve(ctx, ln)
}

// Serve performs an initial sync and then handles webhooks on ln until ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("performing initial sync before accepting webhooks")
	s.performSync(ctx)

	server := &http.Server{
		Handler:           s,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server starting", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down webhook server")
		s.debounce.stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ServeHTTP validates a GitHub delivery and schedules a sync for accepted pushes
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		s.logger.Warn("rejecting request with invalid content type", "content_type", ct)
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	defer func() {
		_ = r.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}

	if !s.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		s.logger.Warn("rejecting request with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	s.logger.Info("received webhook", "event", eventType)

	var event PushEvent
	if eventType == "push" || eventType == "" {
		if err := json.Unmarshal(body, &event); err != nil {
			s.logger.Error("failed to parse webhook payload", "error", err)
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
	}

	if reason := s.skipReason(eventType, event); reason != "" {
		s.logger.Info("ignoring webhook", "reason", reason,
			"event", eventType,
			"ref", event.Ref,
			"repo", event.Repository.FullName)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "%s not configured for sync\n", reason)
		return
	}

	s.logger.Info("webhook accepted",
		"event", eventType,
		"ref", event.Ref,
		"commit", event.After,
		"repo", event.Repository.FullName)

	s.debounce.trigger(func() {
		s.performSync(context.Background())
	})

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Sync triggered\n")
}

// skipReason returns why a delivery does not trigger a sync, or "" if it does
func (s *Server) skipReason(eventType string, event PushEvent) string {
	serve := s.cfg.Serve
	switch {
	case len(serve.AllowedEventTypes) > 0 && !slices.Contains(serve.AllowedEventTypes, eventType):
		return "Event type"
	case !strings.EqualFold(event.Repository.FullName, s.cfg.FullName()):
		return "Repository"
	case len(serve.AllowedRefs) > 0 && !slices.Contains(serve.AllowedRefs, event.Ref):
		return "Ref"
	default:
		return ""
	}
}

// verifySignature checks a "sha256=<hex>" HMAC of body in constant time
func (s *Server) verifySignature(body []byte, signature string) bool {
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(sig), []byte(expected))
}

// performSync runs one sync at a time. A request arriving while a sync runs
// queues at most one re-run; further requests collapse into it.
func (s *Server) performSync(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.pending = true
		s.mu.Unlock()
		s.logger.Info("sync already in progress, queuing pending re-run")
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		s.runOnce(ctx)

		s.mu.Lock()
		if !s.pending {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()

		s.logger.Info("re-running sync due to pending request")
	}
}

func (s *Server) runOnce(ctx context.Context) {
	engine, err := ghsync.NewEngine(s.cfg, s.client, s.fs, s.logger, false)
	if err != nil {
		s.logger.Error("failed to create sync engine", "error", err)
		return
	}
	if err := engine.Run(ctx); err != nil {
		// the engine already reported the failure
		return
	}
	s.logger.Info("sync completed successfully")
}

// debouncer runs only the last callback of a burst, delay after the burst ends
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, callback)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
}
