package connpool_test

import (
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reddit/searchbp.go/connection"
	"github.com/reddit/searchbp.go/connpool"
)

func mustParseURL(tb testing.TB, s string) *url.URL {
	tb.Helper()
	u, err := url.Parse(s)
	if err != nil {
		tb.Fatalf("url.Parse(%q): %v", s, err)
	}
	return u
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

// agents records the agent created for every connection, by URL.
type agents struct {
	mu     sync.Mutex
	byURL  map[string]*countingAgent
	config []connection.Config
}

func newAgents() *agents {
	return &agents{byURL: make(map[string]*countingAgent)}
}

func (a *agents) factory(cfg connection.Config) (connection.Agent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	agent := &countingAgent{Transport: &http.Transport{}}
	a.byURL[cfg.URL.String()] = agent
	a.config = append(a.config, cfg)
	return agent, nil
}

func (a *agents) get(tb testing.TB, rawURL string) *countingAgent {
	tb.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	agent, ok := a.byURL[rawURL]
	if !ok {
		tb.Fatalf("no agent created for %q", rawURL)
	}
	return agent
}

func (a *agents) created() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byURL)
}

func newPool(tb testing.TB, cfg connpool.Config, policy connpool.Policy) *connpool.Pool {
	tb.Helper()
	if policy == nil {
		policy = connpool.Basic{}
	}
	p, err := connpool.New(cfg, policy)
	if err != nil {
		tb.Fatalf("connpool.New: %v", err)
	}
	tb.Cleanup(func() {
		if err := p.Close(); err != nil {
			tb.Errorf("Pool.Close: %v", err)
		}
	})
	return p
}

func newConnection(tb testing.TB, cfg connection.Config) *connection.Connection {
	tb.Helper()
	c, err := connection.New(cfg)
	if err != nil {
		tb.Fatalf("connection.New: %v", err)
	}
	return c
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

func ids(conns []*connection.Connection) []string {
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID())
	}
	return ids
}
