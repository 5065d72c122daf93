// Package connpool owns the membership of the connections to a cluster.
//
// A Pool reconciles its connections with the node lists produced by
// topology discovery (Update), so long-lived connections survive a refresh
// while departed nodes are drained and closed in the background.
//
// Selecting a connection for a request and tracking connection health are
// delegated to a Policy. Basic is a minimal reference policy, more elaborate
// strategies (weighted, sniffing-aware) implement the same interface.
package connpool
