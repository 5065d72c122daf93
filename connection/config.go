package connection

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/reddit/searchbp.go/breakerbp"
)

// Defaults of the keep-alive agent and of Close.
const (
	DefaultKeepAliveInterval  = time.Second
	DefaultMaxSockets         = 256
	DefaultMaxFreeSockets     = 256
	DefaultDialTimeout        = 30 * time.Second
	DefaultCloseRetryInterval = time.Second
)

// Auth holds the credentials used to build the Authorization header.
//
// APIKey takes precedence over Username/Password. When APIKeyID is set too,
// the header value is the base64 encoding of "APIKeyID:APIKey".
type Auth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"apiKey"`
	APIKeyID string `yaml:"apiKeyID"`
}

// AgentConfig tunes the default keep-alive agent.
//
// All fields are optional, zero values fall back to the Default* constants.
type AgentConfig struct {
	// KeepAliveInterval is the TCP keep-alive probe interval.
	KeepAliveInterval time.Duration `yaml:"keepAliveInterval"`

	// MaxSockets caps the number of connections per node, idle or not.
	MaxSockets int `yaml:"maxSockets"`

	// MaxFreeSockets caps the number of idle connections kept per node.
	MaxFreeSockets int `yaml:"maxFreeSockets"`

	// IdleTimeout closes idle connections after the given duration, 0 means
	// never.
	IdleTimeout time.Duration `yaml:"idleTimeout"`

	// DialTimeout bounds the time to establish a new socket.
	DialTimeout time.Duration `yaml:"dialTimeout"`

	// DisableKeepAlives opens a new socket per request.
	DisableKeepAlives bool `yaml:"disableKeepAlives"`

	// HTTP2 enables HTTP/2 on https nodes.
	HTTP2 bool `yaml:"http2"`
}

// Agent is what a connection sends its requests through.
//
// *http.Transport implements it.
type Agent interface {
	http.RoundTripper

	// CloseIdleConnections is called exactly once by Close, after every
	// request sent through the agent has finished.
	CloseIdleConnections()
}

// AgentFactory builds a custom agent for the connection being created.
type AgentFactory func(cfg Config) (Agent, error)

// Config is the configuration of a single connection.
type Config struct {
	// URL of the node. Required, the scheme must be http or https.
	//
	// Credentials embedded in the URL are used as Auth when Auth is nil, and
	// are never sent as part of the URL itself.
	URL *url.URL `yaml:"-"`

	// ID defaults to the URL with credentials stripped.
	ID string `yaml:"id"`

	// Headers sent with every request. Per-request headers override them.
	Headers http.Header `yaml:"headers"`

	Auth *Auth `yaml:"auth"`

	TLS *tls.Config `yaml:"-"`

	// Agent tunes the default keep-alive agent.
	Agent *AgentConfig `yaml:"agent"`

	// AgentFactory replaces the default agent.
	AgentFactory AgentFactory `yaml:"-"`

	// DisableAgent uses a bare agent without connection reuse: every request
	// opens and closes its own socket.
	DisableAgent bool `yaml:"disableAgent"`

	// Proxy tunnels every request through the given proxy.
	Proxy *url.URL `yaml:"-"`

	// Roles overrides the default role flags (data and ingest enabled).
	Roles map[string]bool `yaml:"roles"`

	// Status is the initial status, StatusAlive when empty.
	Status Status `yaml:"status"`

	// CircuitBreaker wraps the agent in a breakerbp.FailureRatioBreaker.
	CircuitBreaker *breakerbp.Config `yaml:"circuitBreaker"`

	// RateLimit caps the number of requests per second dispatched through the
	// connection, 0 means unlimited. RateBurst defaults to 1.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`

	// CloseRetryInterval is how often Close checks whether in-flight
	// requests have drained. Defaults to DefaultCloseRetryInterval.
	CloseRetryInterval time.Duration `yaml:"closeRetryInterval"`

	// Name of the client the connection belongs to, used in metrics and
	// span names. Defaults to "searchbp".
	Name string `yaml:"name"`

	// Logger is the logger to use, the global one from package log when nil.
	Logger *zap.SugaredLogger `yaml:"-"`
}

func (a *AgentConfig) withDefaults() AgentConfig {
	var cfg AgentConfig
	if a != nil {
		cfg = *a
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.MaxSockets <= 0 {
		cfg.MaxSockets = DefaultMaxSockets
	}
	if cfg.MaxFreeSockets <= 0 {
		cfg.MaxFreeSockets = DefaultMaxFreeSockets
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return cfg
}
