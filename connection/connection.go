package connection

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/reddit/searchbp.go/breakerbp"
	"github.com/reddit/searchbp.go/internal/prometheusbpint"
	"github.com/reddit/searchbp.go/log"
	"github.com/reddit/searchbp.go/searcherr"
	"github.com/reddit/searchbp.go/transport"
)

// DefaultName is the client name used when Config.Name is empty.
const DefaultName = "searchbp"

// Status is the health status of a connection.
type Status string

// Valid statuses.
const (
	StatusAlive Status = "alive"
	StatusDead  Status = "dead"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusAlive || s == StatusDead
}

// Roles a node can have in the cluster.
const (
	RoleClusterManager = "cluster_manager"
	RoleData           = "data"
	RoleIngest         = "ingest"
)

// ValidRoles are the roles SetRole accepts.
var ValidRoles = []string{RoleClusterManager, RoleData, RoleIngest}

func validRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// DefaultRoles returns the roles of a connection created without any.
func DefaultRoles() map[string]bool {
	return map[string]bool{
		RoleData:   true,
		RoleIngest: true,
	}
}

// Health is the health state of a connection.
//
// It's owned by the health policy of the pool, the connection only stores it.
type Health struct {
	Status Status
	// DeadCount is the number of consecutive failures.
	DeadCount int
	// ResurrectTimeout is the earliest time a dead connection is eligible
	// again, zero when not scheduled.
	ResurrectTimeout time.Time
}

// Connection is a single cluster node connection.
//
// It's safe for concurrent use.
type Connection struct {
	url     *url.URL
	headers http.Header
	name    string
	logger  *zap.SugaredLogger

	agent      Agent
	transport  http.RoundTripper
	limiter    *rate.Limiter
	closeRetry time.Duration

	openRequests prometheusbpint.HighWatermarkValue
	closeAgent   sync.Once

	mu     sync.RWMutex
	id     string
	health Health
	roles  map[string]bool
}

var _ transport.Node = (*Connection)(nil)

// New creates a connection from cfg.
//
// It returns a *searcherr.ConfigurationError when the URL is missing, the
// scheme is neither http nor https, or the initial status is invalid.
func New(cfg Config) (*Connection, error) {
	if cfg.URL == nil {
		return nil, searcherr.Configurationf("connection: URL is required")
	}
	if cfg.URL.Scheme != "http" && cfg.URL.Scheme != "https" {
		return nil, searcherr.Configurationf("Invalid protocol: '%s:'", cfg.URL.Scheme)
	}

	u := cloneURL(cfg.URL)
	auth := cfg.Auth
	if auth == nil && u.User != nil {
		password, _ := u.User.Password()
		auth = &Auth{
			Username: u.User.Username(),
			Password: password,
		}
	}

	status := cfg.Status
	if status == "" {
		status = StatusAlive
	}
	if !status.Valid() {
		return nil, searcherr.Configurationf("Unsupported status: '%s'", status)
	}

	roles := DefaultRoles()
	for role, enabled := range cfg.Roles {
		roles[role] = enabled
	}

	id := cfg.ID
	if id == "" {
		id = StripAuth(u)
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	closeRetry := cfg.CloseRetryInterval
	if closeRetry <= 0 {
		closeRetry = DefaultCloseRetryInterval
	}

	c := &Connection{
		url:        u,
		headers:    prepareHeaders(cfg.Headers, auth),
		name:       name,
		logger:     cfg.Logger,
		closeRetry: closeRetry,
		id:         id,
		health:     Health{Status: status},
		roles:      roles,
	}

	agent, err := newAgent(cfg)
	if err != nil {
		return nil, err
	}
	c.agent = agent
	c.transport = agent
	if cfg.CircuitBreaker != nil {
		bc := *cfg.CircuitBreaker
		if bc.Name == "" {
			bc.Name = id
		}
		c.transport = breakerbp.NewFailureRatioBreaker(bc).RoundTripper(agent)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c.log().Debugw("Creating connection", "connection", c)
	return c, nil
}

func (c *Connection) log() *zap.SugaredLogger {
	return log.Or(c.logger)
}

// ID returns the identity of the connection within its pool.
func (c *Connection) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// SetID changes the identity of the connection.
//
// Only the pool owning the connection should call it, while reconciling
// nodes that were first known by URL only.
func (c *Connection) SetID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

// URL returns a copy of the node URL, credentials included.
func (c *Connection) URL() *url.URL {
	return cloneURL(c.url)
}

// Headers returns a copy of the default headers.
func (c *Connection) Headers() http.Header {
	return c.headers.Clone()
}

// Name returns the client name the connection reports metrics and spans
// under.
func (c *Connection) Name() string {
	return c.name
}

// OpenRequests returns the number of in-flight requests.
func (c *Connection) OpenRequests() int64 {
	return c.openRequests.Get()
}

// Status returns the health status.
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health.Status
}

// SetStatus changes the health status.
//
// It panics on an unknown status.
func (c *Connection) SetStatus(status Status) {
	if !status.Valid() {
		panic(fmt.Sprintf("connection: unsupported status: %q", status))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.Status = status
}

// Health returns the full health state.
func (c *Connection) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// SetHealth replaces the full health state at once.
//
// It panics on an unknown status.
func (c *Connection) SetHealth(h Health) {
	if !h.Status.Valid() {
		panic(fmt.Sprintf("connection: unsupported status: %q", h.Status))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = h
}

// DeadCount returns the number of consecutive failures.
func (c *Connection) DeadCount() int {
	return c.Health().DeadCount
}

// ResurrectTimeout returns the earliest time a dead connection is eligible
// again.
func (c *Connection) ResurrectTimeout() time.Time {
	return c.Health().ResurrectTimeout
}

// SetRole enables or disables role on the connection.
//
// It returns a *searcherr.ConfigurationError for roles outside of
// ValidRoles.
func (c *Connection) SetRole(role string, enabled bool) error {
	if !validRole(role) {
		return searcherr.Configurationf("Unsupported role: '%s'", role)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[role] = enabled
	return nil
}

// HasRole reports whether role is enabled on the connection.
func (c *Connection) HasRole(role string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roles[role]
}

// Roles returns a copy of the role flags.
func (c *Connection) Roles() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	roles := make(map[string]bool, len(c.roles))
	for k, v := range c.roles {
		roles[k] = v
	}
	return roles
}

// StripAuth returns u as a string without its credentials.
func StripAuth(u *url.URL) string {
	if u == nil {
		return ""
	}
	stripped := *u
	stripped.User = nil
	return stripped.String()
}

func cloneURL(u *url.URL) *url.URL {
	clone := *u
	return &clone
}

func prepareHeaders(headers http.Header, auth *Auth) http.Header {
	h := headers.Clone()
	if h == nil {
		h = make(http.Header)
	}
	if auth == nil || h.Get(transport.HeaderAuthorization) != "" {
		return h
	}
	switch {
	case auth.APIKey != "" && auth.APIKeyID != "":
		h.Set(transport.HeaderAuthorization, "ApiKey "+base64.StdEncoding.EncodeToString(
			[]byte(auth.APIKeyID+":"+auth.APIKey),
		))
	case auth.APIKey != "":
		h.Set(transport.HeaderAuthorization, "ApiKey "+auth.APIKey)
	case auth.Username != "" && auth.Password != "":
		h.Set(transport.HeaderAuthorization, "Basic "+base64.StdEncoding.EncodeToString(
			[]byte(auth.Username+":"+auth.Password),
		))
	}
	return h
}
