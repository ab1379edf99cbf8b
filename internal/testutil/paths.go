// Package testutil holds helpers shared by the integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// FindProjectRoot returns the nearest directory above the caller's source
// file that contains go.mod.
func FindProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}
	return rootFrom(filepath.Dir(filename))
}

func rootFrom(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
}

// BuildBinary compiles the main package pkg (relative to the project root)
// into outDir and returns the binary path. Build output goes to log.
func BuildBinary(ctx context.Context, pkg, outDir string, log func(string)) (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", fmt.Errorf("get project root: %w", err)
	}

	binary := filepath.Join(outDir, filepath.Base(pkg))
	cmd := exec.CommandContext(ctx, "go", "build", "-o", binary, "./"+filepath.ToSlash(pkg))
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	if len(out) > 0 && log != nil {
		log(string(out))
	}
	if err != nil {
		return "", fmt.Errorf("go build %s: %w", pkg, err)
	}
	return binary, nil
}
