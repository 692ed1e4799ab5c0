package heartbeat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBeatSendsServiceAndTTL(t *testing.T) {
	var gotService, gotTTL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotService = r.URL.Query().Get("service")
		gotTTL = r.URL.Query().Get("ttl")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Beat(context.Background(), "tallier", 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, "tallier", gotService)
	require.Equal(t, "30", gotTTL)
}

func TestBeatReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Beat(context.Background(), "tallier", 30*time.Second)
	require.Error(t, err)
}

func TestBeatReturnsErrorOnUnreachableCollector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := c.Beat(ctx, "tallier", 30*time.Second)
	require.Error(t, err)
}
