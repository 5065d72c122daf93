package connpool

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/reddit/searchbp.go/connection"
	"github.com/reddit/searchbp.go/searcherr"
)

// Host describes a node the cluster reports.
//
// It's only used to reconcile the membership of a pool and is never stored
// by it.
type Host struct {
	URL *url.URL

	// ID defaults to the URL without credentials.
	ID string

	// Roles overlays connection.DefaultRoles.
	Roles map[string]bool

	// Headers are merged over the pool headers.
	Headers http.Header

	// The following override the pool settings of the same name when set.
	Auth         *connection.Auth
	TLS          *tls.Config
	Agent        *connection.AgentConfig
	AgentFactory connection.AgentFactory
	Proxy        *url.URL
}

func (h Host) id() string {
	if h.ID != "" {
		return h.ID
	}
	if h.URL == nil {
		return ""
	}
	return connection.StripAuth(h.URL)
}

// NodeInfo is the part of a node descriptor returned by the cluster nodes
// API that NodesToHost reads.
type NodeInfo struct {
	HTTP  NodeHTTP `json:"http"`
	Roles []string `json:"roles"`
}

// NodeHTTP is the http section of NodeInfo.
type NodeHTTP struct {
	// PublishAddress is either "ip:port" or "hostname/ip:port", optionally
	// with a scheme.
	PublishAddress string `json:"publish_address"`
}

var portRegexp = regexp.MustCompile(`:([0-9]+)$`)

// NodesToHost translates the nodes reported by the cluster, keyed by node id,
// into host descriptors.
//
// protocol is the scheme used for addresses without one, e.g. "https:".
// Nodes without a publish address are skipped. The result is sorted by id.
func NodesToHost(nodes map[string]NodeInfo, protocol string) ([]Host, error) {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	scheme := strings.TrimSuffix(protocol, ":")
	hosts := make([]Host, 0, len(ids))
	for _, id := range ids {
		node := nodes[id]
		address := node.HTTP.PublishAddress
		if address == "" {
			continue
		}

		if !strings.Contains(address, "://") {
			if hostname, _, ok := strings.Cut(address, "/"); ok {
				// prefer the hostname, keep the published port
				address = hostname
				if m := portRegexp.FindStringSubmatch(node.HTTP.PublishAddress); m != nil {
					address = hostname + ":" + m[1]
				}
			}
			address = scheme + "://" + address
		}

		u, err := url.Parse(address)
		if err != nil {
			return nil, searcherr.Configurationf("Invalid publish address %q of node %q: %v", node.HTTP.PublishAddress, id, err)
		}
		if u.Hostname() == "" {
			return nil, searcherr.Configurationf("Invalid publish address %q of node %q: no host", node.HTTP.PublishAddress, id)
		}

		roles := make(map[string]bool, len(node.Roles)+2)
		for _, role := range node.Roles {
			roles[role] = true
		}
		for _, role := range []string{connection.RoleData, connection.RoleIngest} {
			if _, ok := roles[role]; !ok {
				roles[role] = false
			}
		}

		hosts = append(hosts, Host{
			URL:   u,
			ID:    id,
			Roles: roles,
		})
	}
	return hosts, nil
}

// URLToHost wraps a bare URL into a minimal Host.
func URLToHost(raw string) (Host, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Host{}, searcherr.Configurationf("Invalid URL %q: %v", raw, err)
	}
	return Host{URL: u}, nil
}
