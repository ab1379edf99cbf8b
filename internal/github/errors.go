package github

import (
	"fmt"
)

// TransportError reports a request that never produced an HTTP response
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-success HTTP status from the API
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	// Message is the "message" field of a JSON error body, if any
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request %s: unexpected status %s: %s", e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("request %s: unexpected status %s", e.URL, e.Status)
}

// MalformedResponseError reports a listing body that could not be decoded
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
