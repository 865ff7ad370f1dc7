package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stephnangue/sessionpipe/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer accepts a fixed set of access tokens and issues new ones on
// the refresh endpoint.
type tokenServer struct {
	mu            sync.Mutex
	valid         map[string]bool
	issue         string
	rotate        string
	refreshStatus int
	refreshGate   chan struct{}
	rejectAll     bool

	refreshCalls  atomic.Int32
	refreshBodies []refreshRequest
	seen          map[string][]string
	bodies        map[string][]string
}

func newTokenServer(valid ...string) *tokenServer {
	s := &tokenServer{
		valid:  make(map[string]bool),
		issue:  "T2",
		seen:   make(map[string][]string),
		bodies: make(map[string][]string),
	}
	for _, token := range valid {
		s.valid[token] = true
	}
	return s
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == DefaultRefreshPath {
		s.refreshCalls.Add(1)
		var body refreshRequest
		json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.refreshBodies = append(s.refreshBodies, body)
		gate := s.refreshGate
		s.mu.Unlock()

		if gate != nil {
			<-gate
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.refreshStatus != 0 {
			w.WriteHeader(s.refreshStatus)
			json.NewEncoder(w).Encode(map[string]any{"errors": []string{"refresh token revoked"}})
			return
		}
		s.valid[s.issue] = true
		data := map[string]any{"access_token": s.issue}
		if s.rotate != "" {
			data["refresh_token"] = s.rotate
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
		return
	}

	body, _ := io.ReadAll(r.Body)
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	s.seen[r.URL.Path] = append(s.seen[r.URL.Path], r.Header.Get("Authorization"))
	s.bodies[r.URL.Path] = append(s.bodies[r.URL.Path], string(body))
	ok := s.valid[token] && !s.rejectAll
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{"token expired"}})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"path": r.URL.Path}})
}

func (s *tokenServer) headers(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen[path]...)
}

func (s *tokenServer) dataRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.seen {
		n += len(v)
	}
	return n
}

func (s *tokenServer) gate() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshGate = make(chan struct{})
	return s.refreshGate
}

// fakeUI records notifications and navigations.
type fakeUI struct {
	mu          sync.Mutex
	path        string
	notices     []string
	navigations []string
	options     []NavigateOptions
}

func (f *fakeUI) Notify(_ context.Context, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, message)
}

func (f *fakeUI) CurrentPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

func (f *fakeUI) Navigate(path string, opts NavigateOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, path)
	f.options = append(f.options, opts)
	f.path = path
}

func (f *fakeUI) counts() (notices, navigations int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notices), len(f.navigations)
}

type pipelineFixture struct {
	client *Client
	server *tokenServer
	ui     *fakeUI
	clock  clockwork.FakeClock
	store  session.Store
}

func newPipelineFixture(t *testing.T, server *tokenServer, pair session.Pair) *pipelineFixture {
	t.Helper()

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	f := &pipelineFixture{
		server: server,
		ui:     &fakeUI{path: "/dashboard"},
		clock:  clockwork.NewFakeClock(),
		store:  session.NewMemoryStoreWith(pair),
	}

	config := DefaultConfig()
	require.NoError(t, config.Error)
	config.Address = ts.URL
	config.MaxRetries = 0
	config.Store = f.store
	config.Notifier = f.ui
	config.Navigator = f.ui
	config.Clock = f.clock

	client, err := NewClient(config)
	require.NoError(t, err)
	f.client = client
	return f
}

func (f *pipelineFixture) get(path string) (*Response, error) {
	return f.client.RawRequestWithContext(context.Background(), f.client.NewRequest(http.MethodGet, path))
}

func expired() session.Pair {
	return session.Pair{AccessToken: "T1", RefreshToken: "R1", SubjectID: "user-42"}
}

func TestPipeline_AttachesBearerToken(t *testing.T) {
	f := newPipelineFixture(t, newTokenServer("T1"), expired())

	resp, err := f.get("/v1/data")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"Bearer T1"}, f.server.headers("/v1/data"))
	assert.Zero(t, f.server.refreshCalls.Load())
}

func TestPipeline_NoTokenSendsNoAuthorization(t *testing.T) {
	server := newTokenServer()
	f := newPipelineFixture(t, server, session.Pair{})

	_, err := f.get("/v1/data")
	require.Error(t, err)

	assert.Equal(t, []string{""}, server.headers("/v1/data"))
}

func TestPipeline_NonAuthFailuresPassThrough(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer ts.Close()

			config := DefaultConfig()
			config.Address = ts.URL
			config.MaxRetries = 0
			config.Store = session.NewMemoryStoreWith(expired())
			client, err := NewClient(config)
			require.NoError(t, err)

			resp, err := client.RawRequest(client.NewRequest(http.MethodGet, "/v1/data"))
			require.Error(t, err)
			require.NotNil(t, resp)
			resp.Body.Close()

			var respErr *ResponseError
			require.ErrorAs(t, err, &respErr)
			assert.Equal(t, status, respErr.StatusCode)
			assert.False(t, IsAuthError(err))
			assert.Zero(t, client.Metrics()[metricRefreshExchanges])
			assert.Zero(t, client.Metrics()[metricEscalations])
		})
	}
}

func TestPipeline_TransportErrorPassesThrough(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	config := DefaultConfig()
	config.Address = addr
	config.MaxRetries = 0
	config.Store = session.NewMemoryStoreWith(expired())
	client, err := NewClient(config)
	require.NoError(t, err)

	resp, err := client.RawRequest(client.NewRequest(http.MethodGet, "/v1/data"))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.False(t, IsAuthError(err))
	assert.Zero(t, client.Metrics()[metricEscalations])
}

func TestPipeline_SingleFlightRefresh(t *testing.T) {
	const n = 10

	server := newTokenServer()
	gate := server.gate()
	f := newPipelineFixture(t, server, expired())

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.get("/v1/data")
			if resp != nil {
				resp.Body.Close()
			}
			errs[i] = err
		}(i)
	}

	require.Eventually(t, func() bool {
		return f.client.Metrics()[metricWaiters] == n-1
	}, 5*time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), server.refreshCalls.Load())
	assert.Equal(t, int64(n), f.client.Metrics()[metricReplays])
	assert.Zero(t, f.client.Metrics()[metricEscalations])

	notices, navigations := f.ui.counts()
	assert.Zero(t, notices)
	assert.Zero(t, navigations)

	pair, err := f.store.Get()
	require.NoError(t, err)
	assert.Equal(t, "T2", pair.AccessToken)
	assert.Equal(t, "R1", pair.RefreshToken)
}

func TestPipeline_OwnerAndWaiterScenario(t *testing.T) {
	server := newTokenServer()
	gate := server.gate()
	f := newPipelineFixture(t, server, expired())

	results := make(chan error, 2)
	go func() {
		resp, err := f.get("/v1/a")
		if resp != nil {
			resp.Body.Close()
		}
		results <- err
	}()
	require.Eventually(t, func() bool {
		return server.refreshCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	go func() {
		resp, err := f.get("/v1/b")
		if resp != nil {
			resp.Body.Close()
		}
		results <- err
	}()
	require.Eventually(t, func() bool {
		return f.client.Metrics()[metricWaiters] == 1
	}, 5*time.Second, 5*time.Millisecond)

	close(gate)
	require.NoError(t, <-results)
	require.NoError(t, <-results)

	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, server.headers("/v1/a"))
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, server.headers("/v1/b"))
	assert.Equal(t, int32(1), server.refreshCalls.Load())
	assert.Equal(t, []refreshRequest{{SubjectID: "user-42", RefreshToken: "R1"}}, server.refreshBodies)
	assert.Equal(t, "T2", f.client.Token())
}

func TestPipeline_NoRefreshTokenEscalates(t *testing.T) {
	server := newTokenServer()
	f := newPipelineFixture(t, server, session.Pair{AccessToken: "T1"})

	resp, err := f.get("/v1/c")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.True(t, IsUnauthorized(err))

	assert.Zero(t, server.refreshCalls.Load())
	assert.Equal(t, int64(1), f.client.Metrics()[metricEscalations])
	assert.False(t, f.store.IsAuthenticated())

	notices, navigations := f.ui.counts()
	assert.Equal(t, 1, notices)
	assert.Zero(t, navigations)

	f.clock.BlockUntil(1)
	f.clock.Advance(DefaultNavigateDelay)
	require.Eventually(t, func() bool {
		_, navigations := f.ui.counts()
		return navigations == 1
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{DefaultSignInPath}, f.ui.navigations)
	assert.True(t, f.ui.options[0].ReplaceHistory)
	require.Eventually(t, func() bool { return !f.client.Escalator().Active() }, time.Second, 5*time.Millisecond)
}

func TestPipeline_ReplayIsNotRefreshedTwice(t *testing.T) {
	server := newTokenServer()
	server.rejectAll = true
	f := newPipelineFixture(t, server, expired())

	_, err := f.get("/v1/data")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReplayRejected)
	assert.ErrorIs(t, err, ErrSessionExpired)

	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, server.headers("/v1/data"))
	assert.Equal(t, int32(1), server.refreshCalls.Load())
	assert.Equal(t, int64(1), f.client.Metrics()[metricEscalations])
	assert.False(t, f.store.IsAuthenticated())
}

func TestPipeline_RefreshTokenRotation(t *testing.T) {
	server := newTokenServer()
	server.rotate = "R2"
	f := newPipelineFixture(t, server, expired())

	resp, err := f.get("/v1/data")
	require.NoError(t, err)
	resp.Body.Close()

	pair, err := f.store.Get()
	require.NoError(t, err)
	assert.Equal(t, session.Pair{AccessToken: "T2", RefreshToken: "R2", SubjectID: "user-42"}, pair)
}

func TestPipeline_RefreshFailureRejectsEveryWaiter(t *testing.T) {
	server := newTokenServer()
	server.refreshStatus = http.StatusUnauthorized
	gate := server.gate()
	f := newPipelineFixture(t, server, expired())

	owner := make(chan error, 1)
	go func() {
		_, err := f.get("/v1/a")
		owner <- err
	}()
	require.Eventually(t, func() bool {
		return server.refreshCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	waiters := make(chan error, 2)
	for _, path := range []string{"/v1/b", "/v1/c"} {
		go func(path string) {
			_, err := f.get(path)
			waiters <- err
		}(path)
	}
	require.Eventually(t, func() bool {
		return f.client.Metrics()[metricWaiters] == 2
	}, 5*time.Second, 5*time.Millisecond)
	close(gate)

	ownerErr := <-owner
	assert.ErrorIs(t, ownerErr, ErrRefreshFailed)
	assert.ErrorIs(t, ownerErr, ErrSessionExpired)
	assert.True(t, IsUnauthorized(ownerErr))

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-waiters, ErrSessionExpired)
	}

	assert.Equal(t, 3, server.dataRequests())
	assert.Zero(t, f.client.Metrics()[metricReplays])
	assert.Equal(t, int64(1), f.client.Metrics()[metricEscalations])
	assert.Equal(t, int64(1), f.client.Metrics()[metricRefreshFailures])

	notices, _ := f.ui.counts()
	assert.Equal(t, 1, notices)
}

func TestPipeline_WaiterTimeoutEscalates(t *testing.T) {
	server := newTokenServer()
	gate := server.gate()
	f := newPipelineFixture(t, server, expired())

	owner := make(chan struct{})
	go func() {
		defer close(owner)
		resp, _ := f.get("/v1/a")
		if resp != nil {
			resp.Body.Close()
		}
	}()
	require.Eventually(t, func() bool {
		return server.refreshCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	waiter := make(chan error, 1)
	go func() {
		_, err := f.get("/v1/b")
		waiter <- err
	}()

	f.clock.BlockUntil(1)
	f.clock.Advance(f.client.waitTimeout())

	err := <-waiter
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int64(1), f.client.Metrics()[metricWaiterTimeouts])
	assert.Equal(t, int64(1), f.client.Metrics()[metricEscalations])

	close(gate)
	<-owner
}

func TestPipeline_LateRefreshKeepsEscalatedSessionCleared(t *testing.T) {
	server := newTokenServer()
	gate := server.gate()
	f := newPipelineFixture(t, server, expired())

	owner := make(chan error, 1)
	go func() {
		resp, err := f.get("/v1/a")
		if resp != nil {
			resp.Body.Close()
		}
		owner <- err
	}()
	require.Eventually(t, func() bool {
		return server.refreshCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	waiter := make(chan error, 1)
	go func() {
		_, err := f.get("/v1/b")
		waiter <- err
	}()

	f.clock.BlockUntil(1)
	f.clock.Advance(f.client.waitTimeout())
	require.ErrorIs(t, <-waiter, ErrSessionExpired)
	require.False(t, f.store.IsAuthenticated())

	close(gate)
	err := <-owner
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, ErrSessionExpired)

	pair, err := f.store.Get()
	require.NoError(t, err)
	assert.Equal(t, session.Pair{}, pair)
	assert.False(t, f.store.IsAuthenticated())
	assert.Len(t, server.headers("/v1/a"), 1, "the owner must not replay into an ended session")
	assert.Equal(t, int64(1), f.client.Metrics()[metricEscalations])
}

func TestPipeline_LogoutDuringRefreshStaysSignedOut(t *testing.T) {
	server := newTokenServer()
	gate := server.gate()
	f := newPipelineFixture(t, server, expired())

	owner := make(chan error, 1)
	go func() {
		_, err := f.get("/v1/a")
		owner <- err
	}()
	require.Eventually(t, func() bool {
		return server.refreshCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, f.client.Auth().Logout(context.Background()))
	close(gate)

	err := <-owner
	assert.True(t, IsAuthError(err))
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.False(t, f.store.IsAuthenticated())
	assert.Zero(t, f.client.Metrics()[metricEscalations])
	notices, navigations := f.ui.counts()
	assert.Zero(t, notices)
	assert.Zero(t, navigations)
}

func TestPipeline_WaiterContextCancelled(t *testing.T) {
	server := newTokenServer()
	gate := server.gate()
	f := newPipelineFixture(t, server, expired())

	owner := make(chan struct{})
	go func() {
		defer close(owner)
		resp, _ := f.get("/v1/a")
		if resp != nil {
			resp.Body.Close()
		}
	}()
	require.Eventually(t, func() bool {
		return server.refreshCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiter := make(chan error, 1)
	go func() {
		_, err := f.client.RawRequestWithContext(ctx, f.client.NewRequest(http.MethodGet, "/v1/b"))
		waiter <- err
	}()
	require.Eventually(t, func() bool {
		return f.client.Metrics()[metricWaiters] == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	err := <-waiter
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsAuthError(err))

	close(gate)
	<-owner
	assert.Zero(t, f.client.Metrics()[metricEscalations])
}

func TestPipeline_OwnerCancellationDoesNotAbortRefresh(t *testing.T) {
	server := newTokenServer()
	gate := server.gate()
	f := newPipelineFixture(t, server, expired())

	ctx, cancel := context.WithCancel(context.Background())
	owner := make(chan error, 1)
	go func() {
		_, err := f.client.RawRequestWithContext(ctx, f.client.NewRequest(http.MethodGet, "/v1/a"))
		owner <- err
	}()
	require.Eventually(t, func() bool {
		return server.refreshCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	close(gate)
	<-owner

	require.Eventually(t, func() bool {
		return f.client.Token() == "T2"
	}, 5*time.Second, 5*time.Millisecond)
	assert.Zero(t, f.client.Metrics()[metricEscalations])
}

func TestPipeline_StaleTokenReplaysWithoutRefresh(t *testing.T) {
	server := newTokenServer("T2")
	f := newPipelineFixture(t, server, session.Pair{AccessToken: "T2", RefreshToken: "R1"})

	resp, err := f.client.attempt(context.Background(), f.client.NewRequest(http.MethodGet, "/v1/data"), "T1")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, server.headers("/v1/data"))
	assert.Zero(t, server.refreshCalls.Load())
}

func TestPipeline_StreamingBodyIsReplayed(t *testing.T) {
	server := newTokenServer()
	f := newPipelineFixture(t, server, expired())

	r := f.client.NewRequest(http.MethodPut, "/v1/data")
	r.Body = strings.NewReader(`{"key":"value"}`)

	resp, err := f.client.RawRequest(r)
	require.NoError(t, err)
	resp.Body.Close()

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, []string{`{"key":"value"}`, `{"key":"value"}`}, server.bodies["/v1/data"])
}

func TestPipeline_RequestsDuringEscalationPassThrough(t *testing.T) {
	server := newTokenServer()
	f := newPipelineFixture(t, server, session.Pair{AccessToken: "T1"})

	_, err := f.get("/v1/a")
	require.ErrorIs(t, err, ErrNoRefreshToken)
	require.True(t, f.client.Escalator().Active())

	resp, err := f.get("/v1/b")
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsAuthError(err))

	assert.Equal(t, int64(1), f.client.Metrics()[metricEscalations])
	notices, _ := f.ui.counts()
	assert.Equal(t, 1, notices)
}

func TestPipeline_ConcurrentEscalationsCollapse(t *testing.T) {
	server := newTokenServer()
	f := newPipelineFixture(t, server, session.Pair{AccessToken: "T1"})

	var wg sync.WaitGroup
	var terminal atomic.Int32
	for _, path := range []string{"/v1/a", "/v1/b", "/v1/c"} {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			resp, err := f.get(path)
			if resp != nil {
				resp.Body.Close()
			}
			assert.Error(t, err)
			if errors.Is(err, ErrSessionExpired) {
				terminal.Add(1)
			}
		}(path)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, terminal.Load(), int32(1))
	assert.Equal(t, int64(1), f.client.Metrics()[metricEscalations])

	f.clock.BlockUntil(1)
	f.clock.Advance(DefaultNavigateDelay)
	require.Eventually(t, func() bool {
		_, navigations := f.ui.counts()
		return navigations == 1
	}, 5*time.Second, 5*time.Millisecond)

	notices, _ := f.ui.counts()
	assert.Equal(t, 1, notices)
}
