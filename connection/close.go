package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/reddit/searchbp.go/retrybp"
)

var errOpenRequests = errors.New("connection: requests still in flight")

// Close waits for every in-flight request to finish, checking every
// Config.CloseRetryInterval, then closes the agent.
//
// In-flight requests are never aborted by Close.
func (c *Connection) Close() error {
	return c.CloseContext(context.Background())
}

// CloseContext is Close giving up waiting once ctx is done.
//
// The agent is left untouched when ctx is done first, and the error of ctx
// is returned.
func (c *Connection) CloseContext(ctx context.Context) error {
	c.log().Debugw("Closing connection", "connection", c)
	err := retrybp.Do(
		ctx,
		func() error {
			if n := c.openRequests.Get(); n > 0 {
				c.log().Debugw(
					"Connection has open requests, retrying close",
					"connection", c.ID(),
					"openRequests", n,
					"retryIn", c.closeRetry,
				)
				return retrybp.Retryable(errOpenRequests)
			}
			return nil
		},
		retrybp.Poll(c.closeRetry, retrybp.RetryableErrorFilter)...,
	)
	if err != nil {
		return fmt.Errorf("connection: closing %q: %w", c.ID(), err)
	}
	c.closeAgent.Do(c.agent.CloseIdleConnections)
	return nil
}
