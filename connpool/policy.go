package connpool

import (
	"time"

	"github.com/reddit/searchbp.go/connection"
	"github.com/reddit/searchbp.go/randbp"
	"github.com/reddit/searchbp.go/retrybp"
)

// Filter reports whether a connection may serve a request.
type Filter func(conn *connection.Connection) bool

// Selector picks one connection among non-empty candidates.
type Selector func(candidates []*connection.Connection) *connection.Connection

// GetOptions are the options of a connection lookup.
type GetOptions struct {
	// Filter excludes connections, nil allows all.
	Filter Filter

	// Selector picks among the candidates, the policy default when nil.
	Selector Selector

	// RequestID of the request the connection is for, for logging.
	RequestID string
}

// Policy is the selection and health strategy of a pool.
//
// Implementations must be safe for concurrent use.
type Policy interface {
	// GetConnection returns a connection among conns matching opts, or nil
	// when none qualifies.
	GetConnection(conns []*connection.Connection, opts GetOptions) *connection.Connection

	// MarkAlive is called after a successful attempt on conn. It must reset
	// the dead count to 0 and clear the resurrect timeout.
	MarkAlive(conn *connection.Connection)

	// MarkDead is called after a failed attempt on conn. It must increment
	// the dead count and keep conn out of selection until its resurrect
	// timeout passes.
	MarkDead(conn *connection.Connection)
}

// DefaultResurrectTimeout is the time Basic keeps a dead connection out of
// selection when no Backoff is set.
const DefaultResurrectTimeout = 60 * time.Second

// Basic is a minimal Policy.
//
// Candidates are the alive connections plus the dead ones whose resurrect
// timeout passed. When there are none, every connection passing the filter
// is a candidate, so a request is still attempted somewhere.
type Basic struct {
	// Backoff returns how long a connection that failed deadCount times in a
	// row stays out of selection. DefaultResurrectTimeout when nil.
	Backoff func(deadCount int) time.Duration

	// Selector is used when GetOptions carries none, RandomSelector when nil.
	Selector Selector
}

// GetConnection implements Policy.
func (b Basic) GetConnection(conns []*connection.Connection, opts GetOptions) *connection.Connection {
	now := time.Now()
	var usable, filtered []*connection.Connection
	for _, conn := range conns {
		if opts.Filter != nil && !opts.Filter(conn) {
			continue
		}
		filtered = append(filtered, conn)
		h := conn.Health()
		if h.Status == connection.StatusAlive || !h.ResurrectTimeout.After(now) {
			usable = append(usable, conn)
		}
	}
	if len(usable) == 0 {
		usable = filtered
	}
	if len(usable) == 0 {
		return nil
	}

	selector := opts.Selector
	if selector == nil {
		selector = b.Selector
	}
	if selector == nil {
		selector = RandomSelector
	}
	return selector(usable)
}

// MarkAlive implements Policy.
func (b Basic) MarkAlive(conn *connection.Connection) {
	conn.SetHealth(connection.Health{Status: connection.StatusAlive})
}

// MarkDead implements Policy.
func (b Basic) MarkDead(conn *connection.Connection) {
	h := conn.Health()
	deadCount := h.DeadCount + 1
	backoff := DefaultResurrectTimeout
	if b.Backoff != nil {
		backoff = b.Backoff(deadCount)
	}
	conn.SetHealth(connection.Health{
		Status:           connection.StatusDead,
		DeadCount:        deadCount,
		ResurrectTimeout: time.Now().Add(backoff),
	})
}

// CappedExponentialBackoff returns a Basic.Backoff doubling base with every
// consecutive failure, up to base*2^cutoff, with +/- jitter ratio applied
// (see randbp.JitterDuration).
func CappedExponentialBackoff(base time.Duration, cutoff int, jitter float64) func(deadCount int) time.Duration {
	args := retrybp.CappedExponentialBackoffArgs{
		InitialDelay: base,
		MaxExponent:  cutoff,
	}
	if cutoff <= 0 {
		args.MaxDelay = base
	}
	delay := retrybp.CappedExponentialBackoffFunc(args)
	return func(deadCount int) time.Duration {
		n := deadCount - 1
		if n < 0 {
			n = 0
		}
		return randbp.JitterDuration(delay(uint(n), nil, nil), jitter)
	}
}

var _ Policy = Basic{}
