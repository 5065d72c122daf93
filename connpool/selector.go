package connpool

import (
	"sync/atomic"

	"github.com/reddit/searchbp.go/connection"
	"github.com/reddit/searchbp.go/randbp"
)

// RoundRobinSelector returns a Selector cycling through the candidates.
//
// The returned Selector is safe for concurrent use.
func RoundRobinSelector() Selector {
	var next atomic.Uint64
	return func(candidates []*connection.Connection) *connection.Connection {
		i := next.Add(1) - 1
		return candidates[i%uint64(len(candidates))]
	}
}

// RandomSelector picks a random candidate.
func RandomSelector(candidates []*connection.Connection) *connection.Connection {
	return candidates[randbp.Int63n(int64(len(candidates)))]
}

// DefaultNodeFilter excludes cluster-manager-only nodes, which shouldn't
// serve regular requests.
func DefaultNodeFilter(conn *connection.Connection) bool {
	roles := conn.Roles()
	managerOnly := roles[connection.RoleClusterManager] &&
		!roles[connection.RoleData] &&
		!roles[connection.RoleIngest]
	return !managerOnly
}

var (
	_ Selector = RandomSelector
	_ Filter   = DefaultNodeFilter
)
