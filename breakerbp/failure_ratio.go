package breakerbp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/reddit/searchbp.go/internal/prometheusbpint"
	"github.com/reddit/searchbp.go/log"
	"github.com/reddit/searchbp.go/randbp"
)

const (
	nameLabel = "breaker"
)

var (
	breakerLabels = []string{
		nameLabel,
	}

	breakerClosed = promauto.With(prometheusbpint.GlobalRegistry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "searchbp_breaker_closed",
		Help: "0 means the breaker is currently tripped, 1 otherwise (closed)",
	}, breakerLabels)
)

// FailureRatioBreaker is a circuit breaker based on gobreaker that uses a low-water-mark and
// % failure threshold to trip.
type FailureRatioBreaker struct {
	goBreaker *gobreaker.CircuitBreaker

	name              string
	minRequestsToTrip int
	failureThreshold  float64
	logContext        context.Context
}

// Config represents the configuration for a FailureRatioBreaker.
type Config struct {
	// Minimum requests that need to be sent during a time period before the breaker is eligible to transition from closed to open.
	MinRequestsToTrip int `yaml:"minRequestsToTrip"`

	// Percentage of requests that need to fail during a time period for the breaker to transition from closed to open.
	// Represented as a float in [0,1], where .05 means >=5% failures will trip the breaker.
	FailureThreshold float64 `yaml:"failureThreshold"`

	// Name for this circuit breaker, mostly used as a prefix to disambiguate logs when multiple cb are used.
	//
	// Connections fill it with their id when left empty.
	Name string `yaml:"name"`

	// LogContext is the context used to pick the logger (see log.C) when the
	// breaker changes states.
	//
	// Optional, if not set, the global logger will be used.
	LogContext context.Context `yaml:"-"`

	// MaxRequestsHalfOpen represents he Maximum amount of requests that will be allowed through while the breaker
	// is in half-open state. If left unset (or set to 0), exactly 1 request will be allowed through while half-open.
	MaxRequestsHalfOpen uint32 `yaml:"maxRequestsHalfOpen"`

	// Interval represents the cyclical period of the 'Closed' state.
	// If 0, internal counts do not get reset while the breaker remains in the Closed state.
	Interval time.Duration `yaml:"interval"`

	// Timeout is the duration of the 'Open' state. After an 'Open' timeout duration has passed, the breaker enters 'half-open' state.
	Timeout time.Duration `yaml:"timeout"`

	// TimeoutJitterRatio is the jitter ratio to be applied to Timeout.
	//
	// Optional, default is 0.5, means the actual timeout used can be Timeout+-50%.
	TimeoutJitterRatio *float64 `yaml:"timeoutJitterRatio"`
}

// NewFailureRatioBreaker creates a new FailureRatioBreaker with the provided configuration.
func NewFailureRatioBreaker(config Config) FailureRatioBreaker {
	failureBreaker := FailureRatioBreaker{
		name:              config.Name,
		minRequestsToTrip: config.MinRequestsToTrip,
		failureThreshold:  config.FailureThreshold,
		logContext:        config.LogContext,
	}
	if failureBreaker.logContext == nil {
		failureBreaker.logContext = context.Background()
	}
	jitterRatio := 0.5
	if config.TimeoutJitterRatio != nil {
		jitterRatio = *config.TimeoutJitterRatio
	}
	timeout := randbp.JitterDuration(config.Timeout, jitterRatio)
	log.C(failureBreaker.logContext).Debugw(
		"breakerbp jittered timeout",
		"name", config.Name,
		"timeout", timeout,
		"origin", config.Timeout,
		"jitterRatio", jitterRatio,
	)
	settings := gobreaker.Settings{
		Name:          config.Name,
		Interval:      config.Interval,
		Timeout:       timeout,
		MaxRequests:   config.MaxRequestsHalfOpen,
		ReadyToTrip:   failureBreaker.shouldTrip,
		OnStateChange: failureBreaker.stateChanged,
	}

	failureBreaker.goBreaker = gobreaker.NewCircuitBreaker(settings)

	breakerClosed.With(prometheus.Labels{
		nameLabel: config.Name,
	}).Set(1)

	return failureBreaker
}

// Execute wraps the given function call in circuit breaker logic and returns
// the result.
func (cb FailureRatioBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.goBreaker.Execute(fn)
}

// State returns the current state of the breaker.
func (cb FailureRatioBreaker) State() gobreaker.State {
	return cb.goBreaker.State()
}

// RoundTripper wraps next so every round trip goes through the breaker.
//
// Transport errors and 5xx responses count as failures. A 5xx response is
// still handed back to the caller so it can build a ResponseError from it,
// only the breaker sees it as failed.
//
// When the breaker is open the round trip fails fast with
// gobreaker.ErrOpenState (or gobreaker.ErrTooManyRequests while half-open).
func (cb FailureRatioBreaker) RoundTripper(next http.RoundTripper) http.RoundTripper {
	return RoundTripper(cb, next)
}

// RoundTripper wraps next with any CircuitBreaker, see
// FailureRatioBreaker.RoundTripper for the failure rules.
func RoundTripper(cb CircuitBreaker, next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		var serverErr *http.Response
		result, err := cb.Execute(func() (interface{}, error) {
			resp, err := next.RoundTrip(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				serverErr = resp
				return nil, fmt.Errorf("breakerbp: received http %d", resp.StatusCode)
			}
			return resp, nil
		})
		if serverErr != nil {
			return serverErr, nil
		}
		if err != nil {
			return nil, err
		}
		return result.(*http.Response), nil
	})
}

func (cb FailureRatioBreaker) shouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests > 0 && counts.Requests >= uint32(cb.minRequestsToTrip) {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		if failureRatio >= cb.failureThreshold {
			log.C(cb.logContext).Warnw(
				"tripping circuit breaker",
				"name", cb.name,
				"requests", counts.Requests,
				"failures", counts.TotalFailures,
			)
			return true
		}
	}
	return false
}

func (cb FailureRatioBreaker) stateChanged(name string, from gobreaker.State, to gobreaker.State) {
	var value float64
	if to != gobreaker.StateOpen {
		value = 1
	}
	breakerClosed.With(prometheus.Labels{
		nameLabel: cb.name,
	}).Set(value)

	log.C(cb.logContext).Infow(
		"circuit breaker state changed",
		"name", name,
		"from", from.String(),
		"to", to.String(),
	)
}

var _ CircuitBreaker = FailureRatioBreaker{}

// roundTripperFunc adapts closures and functions to implement http.RoundTripper.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

var (
	_ CircuitBreaker = FailureRatioBreaker{}
	_ CircuitBreaker = (*gobreaker.CircuitBreaker)(nil)
)
