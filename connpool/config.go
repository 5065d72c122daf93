package connpool

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/reddit/searchbp.go/breakerbp"
	"github.com/reddit/searchbp.go/configbp"
	"github.com/reddit/searchbp.go/connection"
	"github.com/reddit/searchbp.go/errorsbp"
	"github.com/reddit/searchbp.go/searcherr"
)

// Config is the configuration of a Pool.
//
// Every field but Nodes is a default applied to the connections the pool
// creates.
//
// Can be deserialized from YAML:
//
//	name: search
//	nodes:
//	  - https://node-1:9200
//	  - https://node-2:9200
//	auth:
//	  username: elastic
//	  password: $SEARCH_PASSWORD
//	agent:
//	  maxSockets: 64
//	circuitBreaker:
//	  minRequestsToTrip: 10
//	  failureThreshold: 0.5
type Config struct {
	// Name of the pool, used in metrics labels and span names.
	// Defaults to connection.DefaultName.
	Name string `yaml:"name"`

	// Nodes are the URLs of the initial connections.
	Nodes []string `yaml:"nodes"`

	// Auth takes precedence over credentials embedded in node URLs.
	Auth *connection.Auth `yaml:"auth"`

	Headers http.Header `yaml:"headers"`

	Agent        *connection.AgentConfig `yaml:"agent"`
	DisableAgent bool                    `yaml:"disableAgent"`

	// Proxy is the URL of a proxy to tunnel requests through.
	Proxy string `yaml:"proxy"`

	TLS          *tls.Config             `yaml:"-"`
	AgentFactory connection.AgentFactory `yaml:"-"`

	CircuitBreaker *breakerbp.Config `yaml:"circuitBreaker"`

	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`

	CloseRetryInterval time.Duration `yaml:"closeRetryInterval"`

	Logger *zap.SugaredLogger `yaml:"-"`
}

// Validate checks the config, returning the problems found as an
// errorsbp.Batch of *searcherr.ConfigurationError.
func (c Config) Validate() error {
	var batch errorsbp.Batch
	for _, node := range c.Nodes {
		u, err := url.Parse(node)
		if err != nil {
			batch.Add(searcherr.Configurationf("Invalid node URL %q: %v", node, err))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			batch.Add(searcherr.Configurationf("Invalid protocol: '%s:'", u.Scheme))
		}
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			batch.Add(searcherr.Configurationf("Invalid proxy URL %q: %v", c.Proxy, err))
		}
	}
	if c.RateLimit < 0 {
		batch.Add(searcherr.Configurationf("rateLimit must be >= 0, got %v", c.RateLimit))
	}
	if c.CircuitBreaker != nil {
		if t := c.CircuitBreaker.FailureThreshold; t < 0 || t > 1 {
			batch.Add(searcherr.Configurationf("circuitBreaker.failureThreshold must be in [0, 1], got %v", t))
		}
	}
	return batch.Compile()
}

// LoadConfig reads a YAML Config from path, see configbp.ParseStrictFile.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := configbp.ParseStrictFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) connectionConfig(host Host) (connection.Config, error) {
	cfg := connection.Config{
		URL:                host.URL,
		ID:                 host.ID,
		Headers:            mergeHeaders(c.Headers, host.Headers),
		Auth:               c.Auth,
		TLS:                c.TLS,
		Agent:              c.Agent,
		AgentFactory:       c.AgentFactory,
		DisableAgent:       c.DisableAgent,
		Proxy:              host.Proxy,
		Roles:              host.Roles,
		CircuitBreaker:     c.CircuitBreaker,
		RateLimit:          c.RateLimit,
		RateBurst:          c.RateBurst,
		CloseRetryInterval: c.CloseRetryInterval,
		Name:               c.Name,
		Logger:             c.Logger,
	}
	if host.Auth != nil {
		cfg.Auth = host.Auth
	}
	if host.TLS != nil {
		cfg.TLS = host.TLS
	}
	if host.Agent != nil {
		cfg.Agent = host.Agent
	}
	if host.AgentFactory != nil {
		cfg.AgentFactory = host.AgentFactory
	}
	if cfg.Proxy == nil && c.Proxy != "" {
		proxy, err := url.Parse(c.Proxy)
		if err != nil {
			return connection.Config{}, searcherr.Configurationf("Invalid proxy URL %q: %v", c.Proxy, err)
		}
		cfg.Proxy = proxy
	}
	return cfg, nil
}

func mergeHeaders(base, overlay http.Header) http.Header {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := base.Clone()
	if merged == nil {
		merged = make(http.Header, len(overlay))
	}
	for k, v := range overlay {
		merged[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	return merged
}
