// Package blobid computes git blob object identities for file content.
//
// The identity is the hex SHA-1 of "blob <len>\x00<content>", which is the
// value the GitHub contents API reports in the "sha" field of each entry.
package blobid

import (
	"github.com/go-git/go-git/v5/plumbing"
)

// Compute returns the git blob identity of content
func Compute(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}
