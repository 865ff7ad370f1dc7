package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stephnangue/sessionpipe/helper"
	"github.com/stephnangue/sessionpipe/logger"
	"github.com/stephnangue/sessionpipe/session"
)

// refreshOutcome is what every waiter of one refresh episode receives.
type refreshOutcome struct {
	token string
	err   error
}

type waiter struct {
	ch chan refreshOutcome
}

// refreshCoordinator allows a single refresh exchange at a time. Requests
// rejected while it runs queue up and are settled together when it ends.
type refreshCoordinator struct {
	mu         sync.Mutex
	store      session.Store
	refreshing bool
	queue      []*waiter
}

// claim is what a rejected request gets from acquire: ownership of a new
// refresh, a place in the queue, or a newer token to replay with.
type claim struct {
	owner  bool
	pair   session.Pair
	waiter *waiter
	token  string
}

// acquire settles what a request rejected while carrying sent does next.
// With a refresh in flight it is queued. Otherwise, when the store already
// holds another access token, a refresh finished while the request was on
// the wire and it replays with that token. Only then does the caller become
// the owner of a new refresh of the stored pair.
func (rc *refreshCoordinator) acquire(sent string) (claim, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.refreshing {
		w := &waiter{ch: make(chan refreshOutcome, 1)}
		rc.queue = append(rc.queue, w)
		return claim{waiter: w}, nil
	}

	pair, err := rc.store.Get()
	if err != nil {
		return claim{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	if pair.AccessToken != "" && pair.AccessToken != sent {
		return claim{token: pair.AccessToken}, nil
	}

	rc.refreshing = true
	return claim{owner: true, pair: pair}, nil
}

// release ends the episode and settles the queued waiters in arrival order.
// It returns how many were settled.
func (rc *refreshCoordinator) release(outcome refreshOutcome) int {
	rc.mu.Lock()
	queue := rc.queue
	rc.queue = nil
	rc.refreshing = false
	rc.mu.Unlock()

	for _, w := range queue {
		w.ch <- outcome
	}
	return len(queue)
}

type refreshRequest struct {
	SubjectID    string `json:"subject_id"`
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
}

var (
	errNoAccessToken = errors.New("refresh response did not contain an access token")
	errSessionEnded  = errors.New("session ended while the refresh was in flight")
)

// refresh runs the exchange as the owner of the episode and settles every
// waiter with its result. On failure the session is escalated before the
// waiters are released, unless it already ended while the exchange ran.
func (c *Client) refresh(ctx context.Context, pair session.Pair) (token string, err error) {
	episode := helper.GenerateEpisodeID()
	log := c.logger.WithFields(logger.String("episode_id", episode))

	outcome := refreshOutcome{err: ErrSessionExpired}
	defer func() {
		settled := c.refresher.release(outcome)
		log.Debug("refresh episode ended",
			logger.Int("waiters", settled),
			logger.Bool("success", outcome.err == nil),
		)
	}()

	start := c.clock.Now()
	log.Debug("refreshing credentials")
	c.metrics.incr(metricRefreshExchanges)

	resp, err := c.exchange(ctx, pair)
	if err == nil {
		err = c.storeRefreshed(pair, resp)
	}
	if err != nil {
		c.metrics.incr(metricRefreshFailures)
		log.Warn("credential refresh failed",
			logger.Err(err),
			logger.Duration("elapsed", c.clock.Since(start)),
		)
		authErr := &AuthError{Kind: ErrRefreshFailed, Cause: err}
		outcome = refreshOutcome{err: authErr}
		if !errors.Is(err, errSessionEnded) {
			c.escalator.Escalate(ctx, authErr)
		}
		return "", authErr
	}

	log.Info("credentials refreshed",
		logger.Bool("rotated", resp.RefreshToken != ""),
		logger.Duration("elapsed", c.clock.Since(start)),
	)
	outcome = refreshOutcome{token: resp.AccessToken}
	return resp.AccessToken, nil
}

// exchange posts the refresh token outside of the pipeline: a rejection here
// is a failed refresh, never a session to recover. It runs detached from the
// caller's cancellation and is bounded by RefreshTimeout.
func (c *Client) exchange(ctx context.Context, pair session.Pair) (*refreshResponse, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
	defer cancel()

	r := c.NewRequest(http.MethodPost, c.refreshPath())
	if err := r.SetJSONBody(refreshRequest{
		SubjectID:    pair.SubjectID,
		RefreshToken: pair.RefreshToken,
	}); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, r, "")
	if resp != nil {
		defer closeBody(resp)
	}
	if err != nil {
		return nil, err
	}

	resource, err := ParseResource(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if resource == nil {
		return nil, errNoAccessToken
	}

	var out refreshResponse
	if err := mapstructure.WeakDecode(resource.Data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, errNoAccessToken
	}
	return &out, nil
}

// storeRefreshed saves the new tokens only if the store still holds the
// session that was refreshed. A session cleared by an escalation or a
// logout while the exchange ran stays cleared.
func (c *Client) storeRefreshed(pair session.Pair, resp *refreshResponse) error {
	ok, err := c.store.ReplaceTokens(pair, resp.AccessToken, resp.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to store refreshed credentials: %w", err)
	}
	if !ok {
		return errSessionEnded
	}
	return nil
}
