package connection_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reddit/searchbp.go/connection"
)

func mustParseURL(tb testing.TB, s string) *url.URL {
	tb.Helper()
	u, err := url.Parse(s)
	if err != nil {
		tb.Fatalf("url.Parse(%q): %v", s, err)
	}
	return u
}

func newConnection(tb testing.TB, cfg connection.Config) *connection.Connection {
	tb.Helper()
	c, err := connection.New(cfg)
	if err != nil {
		tb.Fatalf("connection.New: %v", err)
	}
	return c
}

// blockingServer holds every request until release is called, or the client
// goes away.
type blockingServer struct {
	*httptest.Server

	arrived  chan struct{}
	release  chan struct{}
	once     sync.Once
	requests atomic.Int32
}

func newBlockingServer(tb testing.TB) *blockingServer {
	tb.Helper()
	s := &blockingServer{
		arrived: make(chan struct{}, 100),
		release: make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.arrived <- struct{}{}
		select {
		case <-s.release:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok":true}`))
		case <-r.Context().Done():
		}
	}))
	tb.Cleanup(s.Close)
	// Cleanups run last in first out, handlers are released before Close
	// waits for them.
	tb.Cleanup(s.Release)
	return s
}

func (s *blockingServer) Release() {
	s.once.Do(func() { close(s.release) })
}

func (s *blockingServer) waitArrived(tb testing.TB) {
	tb.Helper()
	select {
	case <-s.arrived:
	case <-time.After(5 * time.Second):
		tb.Fatal("request never reached the server")
	}
}

// countingAgent wraps http.Transport to count CloseIdleConnections calls.
type countingAgent struct {
	*http.Transport

	closed atomic.Int32
}

func (a *countingAgent) CloseIdleConnections() {
	a.closed.Add(1)
	a.Transport.CloseIdleConnections()
}

func waitFor(tb testing.TB, what string, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustJSON(tb testing.TB, v interface{}) string {
	tb.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("json.Marshal: %v", err)
	}
	return string(b)
}
