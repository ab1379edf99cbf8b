package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listing = `[
  {"name": "README.md", "path": "README.md", "sha": "aaa", "size": 10, "type": "file"},
  {"name": "us-states.csv", "path": "us-states.csv", "sha": "bbb", "size": 20, "type": "file"},
  {"name": "live", "path": "live", "sha": "ccc", "size": 0, "type": "dir"}
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestListContents(t *testing.T) {
	var gotPath, gotAuth, gotAccept string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(listing))
	})

	c := NewHTTPClient(srv.URL+"/repos", "nytimes", "covid-19-data", "secret")
	entries, err := c.ListContents(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/repos/nytimes/covid-19-data/contents", gotPath)
	assert.Equal(t, "token secret", gotAuth)
	assert.Equal(t, RawAccept, gotAccept)

	require.Len(t, entries, 3)
	assert.Equal(t, Entry{Name: "us-states.csv", Path: "us-states.csv", SHA: "bbb", Size: 20, Type: "file"}, entries[1])
	assert.Equal(t, "dir", entries[2].Type)
}

func TestFetchFile(t *testing.T) {
	var gotPath, gotAccept string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("date,state\n"))
	})

	c := NewHTTPClient(srv.URL+"/repos/", "nytimes", "covid-19-data", "secret", WithAccept("application/vnd.github.raw"))
	data, err := c.FetchFile(context.Background(), "us-states.csv")
	require.NoError(t, err)

	assert.Equal(t, "date,state\n", string(data))
	assert.Equal(t, "/repos/nytimes/covid-19-data/contents/us-states.csv", gotPath)
	assert.Equal(t, "application/vnd.github.raw", gotAccept)
}

func TestNoTokenOmitsAuthorization(t *testing.T) {
	var hasAuth bool
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte("[]"))
	})

	c := NewHTTPClient(srv.URL, "o", "r", "")
	_, err := c.ListContents(context.Background())
	require.NoError(t, err)
	assert.False(t, hasAuth)
}

func TestStatusError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "Bad credentials"}`))
	})

	c := NewHTTPClient(srv.URL, "o", "r", "bad")

	_, err := c.ListContents(context.Background())
	var serr *StatusError
	require.True(t, errors.As(err, &serr), "expected StatusError, got %T", err)
	assert.Equal(t, http.StatusUnauthorized, serr.StatusCode)
	assert.Equal(t, "Bad credentials", serr.Message)
	assert.Contains(t, serr.Error(), "Bad credentials")

	_, err = c.FetchFile(context.Background(), "us-states.csv")
	assert.True(t, errors.As(err, &serr))
}

func TestStatusError_NonJSONBody(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	c := NewHTTPClient(srv.URL, "o", "r", "t")
	_, err := c.FetchFile(context.Background(), "x.csv")

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Empty(t, serr.Message)
}

func TestMalformedListing(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>"},
		{name: "object instead of array", body: `{"name": "us-states.csv", "sha": "x"}`},
		{name: "missing sha", body: `[{"name": "us-states.csv"}]`},
		{name: "missing name", body: `[{"sha": "abc"}]`},
		{name: "null listing", body: `null`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})

			c := NewHTTPClient(srv.URL, "o", "r", "t")
			_, err := c.ListContents(context.Background())

			var merr *MalformedResponseError
			assert.True(t, errors.As(err, &merr), "expected MalformedResponseError, got %v", err)
		})
	}
}

func TestEmptyListing(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	c := NewHTTPClient(srv.URL, "o", "r", "t")
	entries, err := c.ListContents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, "o", "r", "t")
	_, err := c.ListContents(context.Background())

	var terr *TransportError
	require.True(t, errors.As(err, &terr), "expected TransportError, got %v", err)
	assert.NotNil(t, terr.Unwrap())
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c := NewHTTPClient(srv.URL, "o", "r", "t", WithTimeout(50*time.Millisecond))
	_, err := c.FetchFile(context.Background(), "slow.csv")

	var terr *TransportError
	assert.True(t, errors.As(err, &terr), "expected TransportError, got %v", err)
}

func TestContextCancelled(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPClient(srv.URL, "o", "r", "t")
	_, err := c.ListContents(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
