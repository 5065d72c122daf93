// Package connection implements a single cluster node connection.
//
// A Connection owns the transport agent (an *http.Transport unless a custom
// AgentFactory is given) of one node, its default headers, role flags and
// health state, and executes requests against that node with precise
// terminal outcomes: every request ends in exactly one of a response, a
// *searcherr.TimeoutError, a *searcherr.ConnectionError or a
// *searcherr.RequestAbortedError.
//
// Health state (Status, DeadCount, ResurrectTimeout) is stored on the
// connection but only mutated by the health policy of the pool that owns it.
//
// Close waits for in-flight requests to drain before tearing the agent down,
// so a pool can drop a connection without abandoning requests running on it.
package connection
