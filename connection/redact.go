package connection

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/reddit/searchbp.go/transport"
)

// Redacted is the view of a connection that is safe to log or print: the
// URL has no credentials and the Authorization header is removed.
type Redacted struct {
	ID               string          `json:"id"`
	URL              string          `json:"url"`
	Headers          http.Header     `json:"headers"`
	Status           Status          `json:"status"`
	DeadCount        int             `json:"deadCount"`
	ResurrectTimeout time.Time       `json:"resurrectTimeout"`
	OpenRequests     int64           `json:"openRequests"`
	Roles            map[string]bool `json:"roles"`
}

// Redacted returns the redacted view of the connection.
func (c *Connection) Redacted() Redacted {
	headers := c.headers.Clone()
	headers.Del(transport.HeaderAuthorization)

	c.mu.RLock()
	defer c.mu.RUnlock()
	roles := make(map[string]bool, len(c.roles))
	for k, v := range c.roles {
		roles[k] = v
	}
	return Redacted{
		ID:               c.id,
		URL:              StripAuth(c.url),
		Headers:          headers,
		Status:           c.health.Status,
		DeadCount:        c.health.DeadCount,
		ResurrectTimeout: c.health.ResurrectTimeout,
		OpenRequests:     c.openRequests.Get(),
		Roles:            roles,
	}
}

// MarshalJSON implements json.Marshaler with the redacted view.
func (c *Connection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Redacted())
}

// String implements fmt.Stringer with the JSON of the redacted view.
func (c *Connection) String() string {
	b, err := json.Marshal(c.Redacted())
	if err != nil {
		return c.ID()
	}
	return string(b)
}

// MarshalLogObject implements zapcore.ObjectMarshaler with the redacted
// view.
func (c *Connection) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	r := c.Redacted()
	enc.AddString("id", r.ID)
	enc.AddString("url", r.URL)
	enc.AddString("status", string(r.Status))
	enc.AddInt("deadCount", r.DeadCount)
	if !r.ResurrectTimeout.IsZero() {
		enc.AddTime("resurrectTimeout", r.ResurrectTimeout)
	}
	enc.AddInt64("openRequests", r.OpenRequests)
	if err := enc.AddReflected("roles", r.Roles); err != nil {
		return err
	}
	return enc.AddReflected("headers", r.Headers)
}

var (
	_ json.Marshaler          = (*Connection)(nil)
	_ zapcore.ObjectMarshaler = (*Connection)(nil)
)
