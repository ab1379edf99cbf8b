// Package inventory computes blob identities for files already present in
// the destination directory.
package inventory

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"
	"github.com/schaermu/ghsync/internal/blobid"
)

// ShaMap maps file names to locally computed blob identities. A name missing
// from the map is not present locally.
type ShaMap map[string]string

// LocalIOError reports a file that exists but could not be read
type LocalIOError struct {
	Name string
	Op   string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

// Scan hashes every name that exists as a regular file in fsys.
// Missing files, including files removed while scanning, are omitted.
func Scan(fsys billy.Filesystem, names []string) (ShaMap, error) {
	shas := make(ShaMap, len(names))

	for _, name := range names {
		sha, ok, err := hashFile(fsys, name)
		if err != nil {
			return nil, err
		}
		if ok {
			shas[name] = sha
		}
	}

	return shas, nil
}

func hashFile(fsys billy.Filesystem, name string) (string, bool, error) {
	info, err := fsys.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, &LocalIOError{Name: name, Op: "stat", Err: err}
	}
	if !info.Mode().IsRegular() {
		return "", false, nil
	}

	f, err := fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, &LocalIOError{Name: name, Op: "open", Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	content, err := io.ReadAll(f)
	if err != nil {
		return "", false, &LocalIOError{Name: name, Op: "read", Err: err}
	}

	return blobid.Compute(content), true, nil
}
