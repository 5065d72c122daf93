package connection

import (
	"context"
	"errors"
	"sync/atomic"
)

// requestState is the state of one request.
//
// A request leaves pending exactly once, the first terminal transition wins
// and later ones are no-ops.
type requestState int32

const (
	statePending requestState = iota
	stateCompleted
	stateTimedOut
	stateErrored
	stateAborted
)

func (s requestState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateCompleted:
		return "completed"
	case stateTimedOut:
		return "timeout"
	case stateErrored:
		return "error"
	case stateAborted:
		return "aborted"
	}
	return "unknown"
}

type lifecycle struct {
	state atomic.Int32
}

// finish moves the request from pending to the terminal state to.
//
// It reports whether this call made the transition.
func (l *lifecycle) finish(to requestState) bool {
	return l.state.CompareAndSwap(int32(statePending), int32(to))
}

func (l *lifecycle) current() requestState {
	return requestState(l.state.Load())
}

// contextState maps the error of a done context to a terminal state:
// deadlines are timeouts, everything else is an abort.
func contextState(err error) requestState {
	if errors.Is(err, context.DeadlineExceeded) {
		return stateTimedOut
	}
	return stateAborted
}
