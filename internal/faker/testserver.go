package faker

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// TestServer is a fake feed bound to an httptest server, for package tests.
type TestServer struct {
	*httptest.Server
	Feed *Server
}

// NewTestServer starts a fake feed that is torn down with the test.
func NewTestServer(t testing.TB, market *Market, opts Options) *TestServer {
	t.Helper()

	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	feed := NewServer(market, opts, logger)
	go feed.Run(ctx)

	ts := httptest.NewServer(NewRouter(feed, logger))
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})

	return &TestServer{Server: ts, Feed: feed}
}

// FeedURL returns the websocket URL of the realtime endpoint.
func (ts *TestServer) FeedURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime"
}
