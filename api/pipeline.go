package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stephnangue/sessionpipe/helper"
	"github.com/stephnangue/sessionpipe/logger"
)

// RawRequest performs the raw request given. This request may be against any
// path. It should only be used when no other method is available on the
// client.
func (c *Client) RawRequest(r *Request) (*Response, error) {
	return c.RawRequestWithContext(context.Background(), r)
}

// RawRequestWithContext dispatches r through the authenticated pipeline.
// A 401 is recovered with a credential refresh when possible. When the
// session cannot be recovered the error satisfies IsAuthError and the
// response is nil.
func (c *Client) RawRequestWithContext(ctx context.Context, r *Request) (*Response, error) {
	// The cancel func is not called here: the response body is streamed
	// after return and cancelling would cut it short. It still runs when
	// the timeout is hit.
	ctx, _ = c.withConfiguredTimeout(ctx)
	return c.dispatch(ctx, r)
}

func (c *Client) dispatch(ctx context.Context, r *Request) (*Response, error) {
	if r.NoAuth {
		return c.send(ctx, r, "")
	}

	if err := r.bufferBody(); err != nil {
		return nil, err
	}

	pair, err := c.store.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	return c.attempt(ctx, r, pair.AccessToken)
}

// attempt sends r with token and hands a 401 to the classifier. Anything
// else, transport errors included, goes back to the caller untouched.
func (c *Client) attempt(ctx context.Context, r *Request, token string) (*Response, error) {
	resp, err := c.send(ctx, r, token)
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	return c.classify(ctx, r, token, resp, err)
}

// classify decides what happens to a request rejected as unauthenticated.
// sent is the access token the rejected request carried.
func (c *Client) classify(ctx context.Context, r *Request, sent string, resp *Response, respErr error) (*Response, error) {
	if c.escalator.Active() {
		return resp, respErr
	}

	closeBody(resp)

	if r.Attempt() == AttemptReplay {
		c.logger.Debug("replayed request rejected", logger.String("path", r.URL.Path))
		authErr := &AuthError{Kind: ErrReplayRejected, Cause: respErr}
		c.escalator.Escalate(ctx, authErr)
		return nil, authErr
	}

	pair, err := c.store.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	if !pair.HasRefreshToken() {
		authErr := &AuthError{Kind: ErrNoRefreshToken, Cause: respErr}
		c.escalator.Escalate(ctx, authErr)
		return nil, authErr
	}

	cl, err := c.refresher.acquire(sent)
	switch {
	case err != nil:
		return nil, err
	case cl.waiter != nil:
		return c.await(ctx, r, cl.waiter)
	case !cl.owner:
		return c.replay(ctx, r, cl.token)
	}

	token, err := c.refresh(ctx, cl.pair)
	if err != nil {
		return nil, err
	}
	return c.replay(ctx, r, token)
}

// await blocks until the refresh in flight settles w, the wait bound
// expires, or ctx is done.
func (c *Client) await(ctx context.Context, r *Request, w *waiter) (*Response, error) {
	c.metrics.incr(metricWaiters)

	wait := c.waitTimeout()
	timer := c.clock.NewTimer(wait)
	defer timer.Stop()

	select {
	case outcome := <-w.ch:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return c.replay(ctx, r, outcome.token)
	case <-timer.Chan():
		c.metrics.incr(metricWaiterTimeouts)
		authErr := &AuthError{
			Kind:  ErrSessionExpired,
			Cause: fmt.Errorf("no credential refresh outcome after %s", helper.FormatDuration(wait)),
		}
		c.escalator.Escalate(ctx, authErr)
		return nil, authErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// replay sends a copy of r, marked as a replay, with token. A replay that
// is rejected again is not refreshed a second time.
func (c *Client) replay(ctx context.Context, r *Request, token string) (*Response, error) {
	next, err := r.replay()
	if err != nil {
		return nil, err
	}
	c.metrics.incr(metricReplays)
	return c.attempt(ctx, next, token)
}
