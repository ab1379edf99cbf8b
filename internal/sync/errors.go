package sync

import (
	"fmt"
	"strings"
)

// WriteError reports a fetched file that could not be stored locally
type WriteError struct {
	Name string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Name, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FileError is the failure of a single file in a run that continues on error
type FileError struct {
	Name string
	Err  error
}

// FetchErrors collects every failed file of a run with continue_on_error set
type FetchErrors struct {
	Failed    []FileError
	Attempted int
}

func (e *FetchErrors) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("%d of %d files failed: %s", len(e.Failed), e.Attempted, strings.Join(names, ", "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As
func (e *FetchErrors) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}
