//go:build integration

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/schaermu/ghsync/internal/testutil"
)

const (
	testOwner      = "acme"
	testRepo       = "datasets"
	testToken      = "integration-token"
	defaultTimeout = 2 * time.Minute
)

// Harness builds the ghsync binary and runs it against a fake contents API
type Harness struct {
	t      *testing.T
	binary string
	api    *FakeAPI
	dir    string
}

// NewHarness creates a new test harness with an empty working directory
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	api := NewFakeAPI(t)
	t.Cleanup(api.Close)
	return &Harness{
		t:   t,
		api: api,
		dir: t.TempDir(),
	}
}

// Build compiles cmd/ghsync into a temp directory
func (h *Harness) Build(ctx context.Context) error {
	h.t.Helper()

	binary, err := testutil.BuildBinary(ctx, "cmd/ghsync", h.t.TempDir(), func(out string) {
		_, _ = (&testWriter{t: h.t, prefix: "[build] "}).Write([]byte(out))
	})
	if err != nil {
		return err
	}
	h.binary = binary

	h.t.Logf("Binary built at %s", h.binary)
	return nil
}

// WriteConfig writes a config pointing at the fake API and returns its path
func (h *Harness) WriteConfig(extra string) string {
	h.t.Helper()
	content := fmt.Sprintf(`repo:
  api_url: %q
  owner: %q
  name: %q
files:
  - exact: "us-states.csv"
  - template: "us-counties-{year}.csv"
%s`, h.api.URL(), testOwner, testRepo, extra)

	path := filepath.Join(h.t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		h.t.Fatalf("write config: %v", err)
	}
	return path
}

// Run executes ghsync in the working directory
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()
	if h.binary == "" {
		return "", "", 0, fmt.Errorf("binary not built")
	}

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Dir = h.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", "", 0, fmt.Errorf("run ghsync: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun executes ghsync and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, code, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatal(err)
	}
	if code != 0 {
		h.t.Fatalf("ghsync %v exited %d\nstdout: %s\nstderr: %s", args, code, stdout, stderr)
	}
	return stdout
}

// ReadFile reads a file from the working directory
func (h *Harness) ReadFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	return string(data), err
}

// WriteFile writes a file into the working directory
func (h *Harness) WriteFile(name, content string) {
	h.t.Helper()
	if err := os.WriteFile(filepath.Join(h.dir, name), []byte(content), 0o644); err != nil {
		h.t.Fatalf("write %s: %v", name, err)
	}
}

// FakeAPI serves a repository listing and raw file contents
type FakeAPI struct {
	t      *testing.T
	server *httptest.Server

	mu      sync.Mutex
	files   map[string]string
	order   []string
	fetched []string
	auth    []string
}

// NewFakeAPI starts a fake contents API with no files
func NewFakeAPI(t *testing.T) *FakeAPI {
	f := &FakeAPI{t: t, files: make(map[string]string)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL returns the base URL to use as repo.api_url
func (f *FakeAPI) URL() string { return f.server.URL }

// Close stops the server
func (f *FakeAPI) Close() { f.server.Close() }

// Put adds or replaces a file in the fake repository
func (f *FakeAPI) Put(name, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[name]; !ok {
		f.order = append(f.order, name)
	}
	f.files[name] = content
}

// Fetched returns and clears the names fetched since the last call
func (f *FakeAPI) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.fetched
	f.fetched = nil
	return out
}

// AuthHeaders returns every Authorization header received
func (f *FakeAPI) AuthHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...)
}

func (f *FakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.auth = append(f.auth, r.Header.Get("Authorization"))

	prefix := "/" + testOwner + "/" + testRepo + "/contents"
	rest, ok := strings.CutPrefix(r.URL.Path, prefix)
	if !ok {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}

	if rest == "" {
		type entry struct {
			Name string `json:"name"`
			Path string `json:"path"`
			SHA  string `json:"sha"`
			Size int    `json:"size"`
			Type string `json:"type"`
		}
		entries := make([]entry, 0, len(f.order))
		for _, name := range f.order {
			content := f.files[name]
			entries = append(entries, entry{
				Name: name,
				Path: name,
				SHA:  plumbing.ComputeHash(plumbing.BlobObject, []byte(content)).String(),
				Size: len(content),
				Type: "file",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			f.t.Logf("encode listing: %v", err)
		}
		return
	}

	name := strings.TrimPrefix(rest, "/")
	content, ok := f.files[name]
	if !ok {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}
	f.fetched = append(f.fetched, name)
	_, _ = io.WriteString(w, content)
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
