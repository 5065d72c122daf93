package connection

import (
	"context"
	"net"
	"net/http"

	"golang.org/x/net/http2"
)

func newAgent(cfg Config) (Agent, error) {
	if cfg.AgentFactory != nil {
		return cfg.AgentFactory(cfg)
	}

	agentCfg := cfg.Agent.withDefaults()
	if cfg.DisableAgent {
		// Without an agent every request gets a fresh socket that is closed
		// once the response is read.
		agentCfg.DisableKeepAlives = true
		agentCfg.HTTP2 = false
	}
	t, err := NewKeepAliveAgent(agentCfg, cfg)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NewKeepAliveAgent builds the default agent of a connection.
//
// Sockets are kept alive with TCP keep-alive probes every
// KeepAliveInterval, have Nagle's algorithm disabled, and are reused most
// recently used first. At most MaxSockets sockets are open to the node and at
// most MaxFreeSockets of them are kept idle.
//
// The TLS, Proxy and URL fields of cfg are used, the Agent field is ignored
// in favor of agentCfg.
func NewKeepAliveAgent(agentCfg AgentConfig, cfg Config) (*http.Transport, error) {
	agentCfg = (&agentCfg).withDefaults()
	dialer := &net.Dialer{
		Timeout:   agentCfg.DialTimeout,
		KeepAlive: agentCfg.KeepAliveInterval,
	}
	if agentCfg.DisableKeepAlives {
		dialer.KeepAlive = -1
	}

	t := &http.Transport{
		DialContext:         noDelayDialContext(dialer),
		TLSClientConfig:     cfg.TLS,
		MaxConnsPerHost:     agentCfg.MaxSockets,
		MaxIdleConns:        agentCfg.MaxFreeSockets,
		MaxIdleConnsPerHost: agentCfg.MaxFreeSockets,
		IdleConnTimeout:     agentCfg.IdleTimeout,
		DisableKeepAlives:   agentCfg.DisableKeepAlives,
	}
	if cfg.Proxy != nil {
		t.Proxy = http.ProxyURL(cfg.Proxy)
	}
	if agentCfg.HTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func noDelayDialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				conn.Close()
				return nil, err
			}
		}
		return conn, nil
	}
}
