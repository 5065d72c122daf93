package connpool

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/reddit/searchbp.go/connection"
	"github.com/reddit/searchbp.go/errorsbp"
	"github.com/reddit/searchbp.go/log"
	"github.com/reddit/searchbp.go/searcherr"
	"github.com/reddit/searchbp.go/set"
)

// Pool owns the connections to the nodes of a cluster.
//
// It's safe for concurrent use. Membership changes (AddConnection,
// RemoveConnection, Update, Empty) are serialized.
type Pool struct {
	cfg    Config
	policy Policy

	// updateMu serializes membership changes, mu guards conns.
	updateMu sync.Mutex
	mu       sync.RWMutex
	conns    []*connection.Connection

	closing sync.WaitGroup
}

// New creates a pool with a connection for every node of cfg.Nodes.
//
// policy selects connections and tracks their health, it's required.
func New(cfg Config, policy Policy) (*Pool, error) {
	if policy == nil {
		return nil, searcherr.Configurationf("connpool: a Policy is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = connection.DefaultName
	}

	p := &Pool{
		cfg:    cfg,
		policy: policy,
	}
	if _, err := p.AddConnection(cfg.Nodes); err != nil {
		var batch errorsbp.Batch
		batch.Add(err, p.Empty())
		return nil, batch.Compile()
	}
	poolConnections.WithLabelValues(cfg.Name).Set(float64(p.Size()))
	openPools.add(p)
	return p, nil
}

func (p *Pool) log() *zap.SugaredLogger {
	return log.Or(p.cfg.Logger)
}

// Name returns the name of the pool.
func (p *Pool) Name() string {
	return p.cfg.Name
}

// Size returns the number of connections in the pool.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Connections returns a snapshot of the connections in the pool.
func (p *Pool) Connections() []*connection.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*connection.Connection(nil), p.conns...)
}

// Get returns the connection with the given id, or nil.
func (p *Pool) Get(id string) *connection.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, conn := range p.conns {
		if conn.ID() == id {
			return conn
		}
	}
	return nil
}

// GetConnection returns a connection chosen by the policy, or nil when no
// connection qualifies.
func (p *Pool) GetConnection(opts GetOptions) *connection.Connection {
	conn := p.policy.GetConnection(p.Connections(), opts)
	if conn == nil {
		p.log().Debugw(
			"No connection qualifies",
			"pool", p.cfg.Name,
			"requestID", opts.RequestID,
		)
	}
	return conn
}

// MarkAlive reports a successful attempt on conn to the policy.
func (p *Pool) MarkAlive(conn *connection.Connection) {
	p.markHealth(conn, p.policy.MarkAlive)
}

// MarkDead reports a failed attempt on conn to the policy.
func (p *Pool) MarkDead(conn *connection.Connection) {
	p.markHealth(conn, p.policy.MarkDead)
}

func (p *Pool) markHealth(conn *connection.Connection, mark func(*connection.Connection)) {
	before := conn.Status()
	mark(conn)
	h := conn.Health()
	if h.Status != before {
		healthTransitions.WithLabelValues(p.cfg.Name, string(h.Status)).Inc()
	}
	p.log().Debugw(
		"Marked connection",
		"pool", p.cfg.Name,
		"connection", conn.ID(),
		"status", h.Status,
		"deadCount", h.DeadCount,
		"resurrectTimeout", h.ResurrectTimeout,
	)
}

// CreateConnection builds a connection to node with the pool defaults,
// without adding it to the pool.
//
// node is a URL string, a *url.URL, a Host or a *Host. Passing a
// *connection.Connection is a *searcherr.ConfigurationError. Pool auth takes
// precedence over credentials embedded in the URL.
//
// It fails with a plain error when the id of the connection is already
// used in the pool.
func (p *Pool) CreateConnection(node interface{}) (*connection.Connection, error) {
	host, err := toHost(node)
	if err != nil {
		return nil, err
	}
	taken := set.String{}
	for _, conn := range p.Connections() {
		taken.Add(conn.ID())
	}
	return p.createConnection(host, taken)
}

func (p *Pool) createConnection(host Host, taken set.String) (*connection.Connection, error) {
	if host.URL == nil {
		return nil, searcherr.Configurationf("connpool: node %q has no URL", host.ID)
	}
	if id := host.id(); taken.Contains(id) {
		return nil, fmt.Errorf("connpool: connection with id %q already exists", id)
	}
	cfg, err := p.cfg.connectionConfig(host)
	if err != nil {
		return nil, err
	}
	return connection.New(cfg)
}

func toHost(node interface{}) (Host, error) {
	switch n := node.(type) {
	case string:
		return URLToHost(n)
	case *url.URL:
		return Host{URL: n}, nil
	case Host:
		return n, nil
	case *Host:
		if n == nil {
			return Host{}, searcherr.Configurationf("connpool: nil host")
		}
		return *n, nil
	case *connection.Connection:
		return Host{}, searcherr.Configurationf("The argument provided is already a Connection instance.")
	default:
		return Host{}, searcherr.Configurationf("connpool: unsupported node type %T", node)
	}
}

func hostOf(conn *connection.Connection) Host {
	return Host{
		URL:   conn.URL(),
		ID:    conn.ID(),
		Roles: conn.Roles(),
	}
}

// AddConnection adds a connection to node and returns it.
//
// node is anything CreateConnection accepts, or a []string or []Host whose
// elements are added one by one, in which case the returned connection is
// nil.
//
// It returns a *searcherr.ConfigurationError when a connection with the
// same id or URL is already in the pool, leaving the pool unchanged.
func (p *Pool) AddConnection(node interface{}) (*connection.Connection, error) {
	switch nodes := node.(type) {
	case []string:
		for _, n := range nodes {
			if _, err := p.AddConnection(n); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case []Host:
		for _, n := range nodes {
			if _, err := p.AddConnection(n); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	host, err := toHost(node)
	if err != nil {
		return nil, err
	}
	if host.URL == nil {
		return nil, searcherr.Configurationf("connpool: node %q has no URL", host.ID)
	}

	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	id := host.id()
	strippedURL := connection.StripAuth(host.URL)
	current := p.Connections()
	hosts := make([]Host, 0, len(current)+1)
	for _, conn := range current {
		if conn.ID() == id {
			return nil, searcherr.Configurationf("Connection with id '%s' is already present", id)
		}
		if connection.StripAuth(conn.URL()) == strippedURL {
			return nil, searcherr.Configurationf("Connection with url '%s' is already present", strippedURL)
		}
		hosts = append(hosts, hostOf(conn))
	}
	hosts = append(hosts, host)

	if err := p.update(hosts); err != nil {
		return nil, err
	}
	p.log().Debugw("Added connection", "pool", p.cfg.Name, "connection", id)
	return p.Get(id), nil
}

// RemoveConnection removes conn, matched by id, from the pool and closes it
// once its in-flight requests finish.
func (p *Pool) RemoveConnection(conn *connection.Connection) error {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	id := conn.ID()
	current := p.Connections()
	hosts := make([]Host, 0, len(current))
	for _, c := range current {
		if c.ID() != id {
			hosts = append(hosts, hostOf(c))
		}
	}
	p.log().Debugw("Removing connection", "pool", p.cfg.Name, "connection", id)
	return p.update(hosts)
}

// Update reconciles the pool with hosts, usually the nodes reported by the
// cluster (see NodesToHost).
//
// Each host is looked up among the existing connections by id first, then
// by URL. A connection found by id is marked alive and kept. A connection
// found only by URL adopts the id of the host, is marked alive and kept.
// Any other host gets a new connection. Connections not kept are removed
// and closed in the background once their in-flight requests finish.
//
// When several hosts resolve to the same id or the same existing
// connection, the first one wins and the others are ignored.
//
// On error the pool is left unchanged.
func (p *Pool) Update(hosts []Host) error {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()
	return p.update(hosts)
}

type reconciled struct {
	conn    *connection.Connection
	adoptID string
	host    Host
}

func (p *Pool) update(hosts []Host) error {
	current := p.Connections()
	byID := make(map[string]*connection.Connection, len(current))
	byURL := make(map[string]*connection.Connection, len(current))
	for _, conn := range current {
		byID[conn.ID()] = conn
		u := connection.StripAuth(conn.URL())
		if _, ok := byURL[u]; !ok {
			byURL[u] = conn
		}
	}

	claimed := make(map[*connection.Connection]bool, len(current))
	targetIDs := set.String{}
	plan := make([]reconciled, 0, len(hosts))
	for _, host := range hosts {
		id := host.id()
		if targetIDs.Contains(id) {
			continue
		}

		conn, found := byID[id]
		if found && claimed[conn] {
			// an earlier target took this connection over under another id
			found = false
		}
		if !found && host.URL != nil {
			conn, found = byURL[connection.StripAuth(host.URL)]
		}
		if found {
			if claimed[conn] {
				continue
			}
			claimed[conn] = true
		} else {
			conn = nil
		}
		targetIDs.Add(id)

		entry := reconciled{conn: conn, host: host}
		if found && conn.ID() != id {
			entry.adoptID = id
		}
		plan = append(plan, entry)
	}

	created := make([]*connection.Connection, 0, len(plan)-len(claimed))
	next := make([]*connection.Connection, 0, len(plan))
	for _, entry := range plan {
		if entry.conn != nil {
			next = append(next, entry.conn)
			continue
		}
		conn, err := p.createConnection(entry.host, nil)
		if err != nil {
			for _, c := range created {
				p.closeAsync(c)
			}
			return err
		}
		created = append(created, conn)
		next = append(next, conn)
	}

	for _, entry := range plan {
		if entry.conn == nil {
			continue
		}
		if entry.adoptID != "" {
			entry.conn.SetID(entry.adoptID)
		}
		p.policy.MarkAlive(entry.conn)
	}

	p.mu.Lock()
	p.conns = next
	p.mu.Unlock()
	poolConnections.WithLabelValues(p.cfg.Name).Set(float64(len(next)))

	var removed int
	for _, conn := range current {
		if !claimed[conn] {
			removed++
			p.closeAsync(conn)
		}
	}
	p.log().Debugw(
		"Updated connections",
		"pool", p.cfg.Name,
		"kept", len(claimed),
		"created", len(created),
		"removed", removed,
	)
	return nil
}

func (p *Pool) closeAsync(conn *connection.Connection) {
	p.closing.Add(1)
	go func() {
		defer p.closing.Done()
		if err := conn.Close(); err != nil {
			log.ErrorWithSentry(
				context.Background(),
				"Failed to close removed connection",
				err,
				"pool", p.cfg.Name,
				"connection", conn.ID(),
			)
		}
	}()
}

// Empty closes every connection in parallel, waiting for all of them to
// finish their in-flight requests, then clears the pool.
func (p *Pool) Empty() error {
	return p.EmptyContext(context.Background())
}

// EmptyContext is Empty giving up waiting for in-flight requests once ctx is
// done.
//
// The pool is cleared in any case. Connections that could not close in time
// keep their agent, and their errors are returned prefixed with the pool
// name.
func (p *Pool) EmptyContext(ctx context.Context) error {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	conns := p.Connections()
	p.log().Debugw("Emptying pool", "pool", p.cfg.Name, "connections", len(conns))

	errs := make([]error, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = conn.CloseContext(ctx)
		}()
	}
	wg.Wait()

	p.mu.Lock()
	p.conns = nil
	p.mu.Unlock()
	poolConnections.WithLabelValues(p.cfg.Name).Set(0)

	var batch errorsbp.Batch
	batch.AddPrefix(p.cfg.Name, errs...)
	err := batch.Compile()
	if err != nil {
		p.log().Warnw(
			"Connections failed to close",
			"pool", p.cfg.Name,
			"failed", errorsbp.BatchSize(err),
			"err", err,
		)
	}
	return err
}

// Close empties the pool and waits for the connections removed by earlier
// updates to close.
//
// The pool must not be used after Close.
func (p *Pool) Close() error {
	err := p.Empty()
	p.closing.Wait()
	openPools.remove(p)
	poolConnections.DeleteLabelValues(p.cfg.Name)
	return err
}
