package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSuccess(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("zip bytes"))
	}))
	defer server.Close()

	f := NewHTTPFetcherWithClient(server.Client(), "zipfetch-test")
	data, err := f.Fetch(context.Background(), server.URL+"/a.zip")
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(data))
	assert.Equal(t, "zipfetch-test", gotUA)
}

func TestFetchStatusErrors(t *testing.T) {
	tests := map[string]int{
		"not found":    http.StatusNotFound,
		"forbidden":    http.StatusForbidden,
		"server error": http.StatusInternalServerError,
	}

	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", code)
			}))
			defer server.Close()

			_, err := NewHTTPFetcher(DefaultOptions()).Fetch(context.Background(), server.URL+"/a.zip")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, code, statusErr.StatusCode)
			assert.Contains(t, statusErr.Body, "nope")
		})
	}
}

func TestFetchConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/a.zip"
	server.Close()

	_, err := NewHTTPFetcher(DefaultOptions()).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestFetchCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPFetcher(DefaultOptions()).Fetch(ctx, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchBadURL(t *testing.T) {
	_, err := NewHTTPFetcher(DefaultOptions()).Fetch(context.Background(), "http://[::1")
	assert.ErrorIs(t, err, ErrTransport)
}
