// Package catalog builds the set of remote files selected for synchronization.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/schaermu/ghsync/internal/github"
	"github.com/schaermu/ghsync/internal/match"
)

// Lister lists the entries of the remote directory
type Lister interface {
	ListContents(ctx context.Context) ([]github.Entry, error)
}

// ShaMap maps file names to remote blob identities and iterates in
// first-seen order.
type ShaMap struct {
	names []string
	shas  map[string]string
}

// NewShaMap returns an empty map
func NewShaMap() *ShaMap {
	return &ShaMap{shas: make(map[string]string)}
}

// Set records sha for name. Re-setting a name keeps its original position.
func (m *ShaMap) Set(name, sha string) {
	if _, ok := m.shas[name]; !ok {
		m.names = append(m.names, name)
	}
	m.shas[name] = sha
}

// Get returns the identity recorded for name
func (m *ShaMap) Get(name string) (string, bool) {
	sha, ok := m.shas[name]
	return sha, ok
}

// Names returns the file names in first-seen order
func (m *ShaMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len returns the number of names
func (m *ShaMap) Len() int {
	return len(m.names)
}

// ListMatching lists the remote directory and keeps the regular files whose
// names are selected by rules.
func ListMatching(ctx context.Context, lister Lister, rules *match.Set) (*ShaMap, error) {
	entries, err := lister.ListContents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote contents: %w", err)
	}

	shas := NewShaMap()
	for _, e := range entries {
		if e.Type != "" && e.Type != "file" {
			continue
		}
		if !isPlainName(e.Name) {
			continue
		}
		if !rules.Match(e.Name) {
			continue
		}
		shas.Set(e.Name, e.SHA)
	}

	return shas, nil
}

// isPlainName reports whether name can be used as a file name in the
// destination directory without escaping it.
func isPlainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
