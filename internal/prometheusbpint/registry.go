// Package prometheusbpint holds the metrics plumbing shared by the client
// packages.
package prometheusbpint

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GlobalRegistry is the registerer every package-level metric is created in.
//
// It defaults to prometheus.DefaultRegisterer.
var GlobalRegistry prometheus.Registerer = prometheus.DefaultRegisterer
