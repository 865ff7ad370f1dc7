package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/go-rootcerts"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/jonboulle/clockwork"
	"github.com/stephnangue/sessionpipe/logger"
	"github.com/stephnangue/sessionpipe/session"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

const (
	EnvAddress        = "SESSIONPIPE_ADDR"
	EnvCACert         = "SESSIONPIPE_CACERT"
	EnvCACertBytes    = "SESSIONPIPE_CACERT_BYTES"
	EnvCAPath         = "SESSIONPIPE_CAPATH"
	EnvClientCert     = "SESSIONPIPE_CLIENT_CERT"
	EnvClientKey      = "SESSIONPIPE_CLIENT_KEY"
	EnvClientTimeout  = "SESSIONPIPE_CLIENT_TIMEOUT"
	EnvRefreshTimeout = "SESSIONPIPE_REFRESH_TIMEOUT"
	EnvWaitTimeout    = "SESSIONPIPE_WAIT_TIMEOUT"
	EnvSkipVerify     = "SESSIONPIPE_SKIP_VERIFY"
	EnvTLSServerName  = "SESSIONPIPE_TLS_SERVER_NAME"
	EnvMaxRetries     = "SESSIONPIPE_MAX_RETRIES"
	EnvToken          = "SESSIONPIPE_TOKEN"
	EnvRateLimit      = "SESSIONPIPE_RATE_LIMIT"
	EnvHTTPProxy      = "SESSIONPIPE_HTTP_PROXY"
	EnvProxyAddr      = "SESSIONPIPE_PROXY_ADDR"
	EnvSignInPath     = "SESSIONPIPE_SIGNIN_PATH"
	EnvRefreshPath    = "SESSIONPIPE_REFRESH_PATH"

	DefaultAddress        = "https://127.0.0.1:8400"
	DefaultRefreshPath    = "/v1/auth/refresh"
	DefaultSignInPath     = "/signin"
	DefaultRefreshTimeout = 10 * time.Second
	DefaultNavigateDelay  = 1500 * time.Millisecond

	TLSErrorString = "This error usually means that the server is running with TLS disabled\n" +
		"but the client is configured to use TLS. Please either enable TLS\n" +
		"on the server or run the client with -address set to an address\n" +
		"that uses the http protocol:\n\n" +
		"    sessionpipe <command> -address http://<address>\n\n" +
		"You can also set the SESSIONPIPE_ADDR environment variable:\n\n\n" +
		"    SESSIONPIPE_ADDR=http://<address> sessionpipe <command>\n\n" +
		"where <address> is replaced by the actual address to the server."
)

// Config is used to configure the creation of the client.
type Config struct {
	modifyLock sync.RWMutex
	// Address is the address of the API server. This should be a complete
	// URL such as "https://api.example.com".
	Address string

	// HttpClient is the HTTP client to use. DefaultConfig sets sane defaults
	// for the http.Client and its associated http.Transport. If you must
	// modify them, start with that client rather than an empty one (or
	// http.DefaultClient).
	HttpClient *http.Client

	// MinRetryWait controls the minimum time to wait before retrying when a 5xx
	// error occurs. Defaults to 1000 milliseconds.
	MinRetryWait time.Duration

	// MaxRetryWait controls the maximum time to wait before retrying when a 5xx
	// error occurs. Defaults to 1500 milliseconds.
	MaxRetryWait time.Duration

	// MaxRetries controls the maximum number of times to retry when a 5xx
	// error occurs. Set to 0 to disable retrying. Defaults to 2 (for a total
	// of three tries). A 401 is never retried by the transport.
	MaxRetries int

	// If there is an error when creating the configuration, this will be the
	// error
	Error error

	// OutputCurlString causes the actual request to return an error of type
	// *OutputStringError. Type asserting the error message will allow
	// fetching a cURL-compatible string for the operation.
	//
	// Note: It is not thread-safe to set this and make concurrent requests
	// with the same client.
	OutputCurlString bool

	// curlCACert, curlCAPath, curlClientCert and curlClientKey are used to keep
	// track of the name of the TLS certs and keys when OutputCurlString is set.
	curlCACert, curlCAPath        string
	curlClientCert, curlClientKey string

	// Timeout, given a non-negative value, will apply the request timeout
	// to each request function unless an earlier deadline is passed to the
	// request function through context.Context. It covers the whole
	// dispatch, including a credential refresh and the replay.
	Timeout time.Duration

	// RefreshPath is the endpoint the refresh exchange is posted to.
	RefreshPath string

	// RefreshTimeout bounds a single refresh exchange. The exchange is
	// detached from the cancellation of the request that started it.
	RefreshTimeout time.Duration

	// WaitTimeout bounds how long a request rejected during an in-flight
	// refresh waits for its outcome. Defaults to RefreshTimeout plus 5s.
	WaitTimeout time.Duration

	// SignInPath is where the user is sent once the session cannot be
	// recovered.
	SignInPath string

	// NavigateDelay is how long the session expired notice stays visible
	// before navigating to SignInPath.
	NavigateDelay time.Duration

	// Store holds the credential pair. Defaults to an in-memory store.
	Store session.Store

	// Notifier and Navigator are the user facing side of session
	// escalation. Both are optional.
	Notifier  Notifier
	Navigator Navigator

	// Clock drives the navigation delay and the waiter bound.
	Clock clockwork.Clock

	// The Backoff function to use; a default is used if not provided
	Backoff retryablehttp.Backoff

	// The CheckRetry function to use; a default is used if not provided
	CheckRetry retryablehttp.CheckRetry

	// Logger receives pipeline and transport logs. It is handed to the
	// retryable HTTP client through an hclog adapter.
	Logger logger.Logger

	// Limiter is the rate limiter used by the client.
	// If this pointer is nil, then there will be no limit set.
	// In contrast, if this pointer is set, even to an empty struct,
	// then that limiter will be used. Note that an empty Limiter
	// is equivalent blocking all events.
	Limiter *rate.Limiter

	clientTLSConfig *tls.Config
}

// TLSConfig contains the parameters needed to configure TLS on the HTTP client
// used to communicate with the API server.
type TLSConfig struct {
	// CACert is the path to a PEM-encoded CA cert file to use to verify the
	// server SSL certificate. It takes precedence over CACertBytes
	// and CAPath.
	CACert string

	// CACertBytes is a PEM-encoded certificate or bundle. It takes precedence
	// over CAPath.
	CACertBytes []byte

	// CAPath is the path to a directory of PEM-encoded CA cert files to verify
	// the server SSL certificate.
	CAPath string

	// ClientCert is the path to the client certificate
	ClientCert string

	// ClientKey is the path to the client private key
	ClientKey string

	// TLSServerName, if set, is used to set the SNI host when connecting via
	// TLS.
	TLSServerName string

	// Insecure enables or disables SSL verification
	Insecure bool
}

// DefaultConfig returns a default configuration for the client. It is
// safe to modify the return value of this function.
//
// The default Address is https://127.0.0.1:8400, but this can be overridden by
// setting the `SESSIONPIPE_ADDR` environment variable.
//
// If an error is encountered, the Error field on the returned *Config will be populated with the specific error.
func DefaultConfig() *Config {
	config := &Config{
		Address:        DefaultAddress,
		HttpClient:     cleanhttp.DefaultPooledClient(),
		Timeout:        time.Second * 60,
		MinRetryWait:   time.Millisecond * 1000,
		MaxRetryWait:   time.Millisecond * 1500,
		MaxRetries:     2,
		Backoff:        retryablehttp.RateLimitLinearJitterBackoff,
		RefreshPath:    DefaultRefreshPath,
		RefreshTimeout: DefaultRefreshTimeout,
		SignInPath:     DefaultSignInPath,
		NavigateDelay:  DefaultNavigateDelay,
	}

	transport := config.HttpClient.Transport.(*http.Transport)
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		config.Error = err
		return config
	}

	if err := config.ReadEnvironment(); err != nil {
		config.Error = err
		return config
	}

	// Redirects are surfaced to the caller instead of being followed.
	// Returning this value makes net/http keep the response body and nil out
	// the error, so the retry client does not see an error on each redirect.
	config.HttpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return config
}

// configureTLS is a lock free version of ConfigureTLS that can be used in
// ReadEnvironment where the lock is already hold
func (c *Config) configureTLS(t *TLSConfig) error {
	if c.HttpClient == nil {
		c.HttpClient = DefaultConfig().HttpClient
	}
	clientTLSConfig := c.HttpClient.Transport.(*http.Transport).TLSClientConfig

	var clientCert tls.Certificate
	foundClientCert := false

	switch {
	case t.ClientCert != "" && t.ClientKey != "":
		var err error
		clientCert, err = tls.LoadX509KeyPair(t.ClientCert, t.ClientKey)
		if err != nil {
			return err
		}
		foundClientCert = true
		c.curlClientCert = t.ClientCert
		c.curlClientKey = t.ClientKey
	case t.ClientCert != "" || t.ClientKey != "":
		return errors.New("both client cert and client key must be provided")
	}

	if t.CACert != "" || len(t.CACertBytes) != 0 || t.CAPath != "" {
		c.curlCACert = t.CACert
		c.curlCAPath = t.CAPath
		rootConfig := &rootcerts.Config{
			CAFile:        t.CACert,
			CACertificate: t.CACertBytes,
			CAPath:        t.CAPath,
		}
		if err := rootcerts.ConfigureTLS(clientTLSConfig, rootConfig); err != nil {
			return err
		}
	}

	if t.Insecure {
		clientTLSConfig.InsecureSkipVerify = true
	}

	if foundClientCert {
		// Ignore the server's preferential list of CAs and always present
		// the configured certificate.
		clientTLSConfig.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return &clientCert, nil
		}
	}

	if t.TLSServerName != "" {
		clientTLSConfig.ServerName = t.TLSServerName
	}
	c.clientTLSConfig = clientTLSConfig

	return nil
}

func (c *Config) TLSConfig() *tls.Config {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	return c.clientTLSConfig.Clone()
}

// ConfigureTLS takes a set of TLS configurations and applies those to the
// HTTP client.
func (c *Config) ConfigureTLS(t *TLSConfig) error {
	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()

	return c.configureTLS(t)
}

// ReadEnvironment reads configuration information from the environment. If
// there is an error, no configuration value is updated.
func (c *Config) ReadEnvironment() error {
	var envAddress string
	var envCACert string
	var envCACertBytes []byte
	var envCAPath string
	var envClientCert string
	var envClientKey string
	var envClientTimeout time.Duration
	var envRefreshTimeout time.Duration
	var envWaitTimeout time.Duration
	var envInsecure bool
	var envTLSServerName string
	var envMaxRetries *int
	var limit *rate.Limiter
	var envProxy string
	var envSignInPath string
	var envRefreshPath string

	// Parse the environment variables
	if v := ReadEnvVariable(EnvAddress); v != "" {
		envAddress = v
	}
	if v := ReadEnvVariable(EnvMaxRetries); v != "" {
		maxRetries, err := parseutil.SafeParseIntRange(v, 0, math.MaxInt)
		if err != nil {
			return err
		}
		mRetries := int(maxRetries)
		envMaxRetries = &mRetries
	}
	if v := ReadEnvVariable(EnvCACert); v != "" {
		envCACert = v
	}
	if v := ReadEnvVariable(EnvCACertBytes); v != "" {
		envCACertBytes = []byte(v)
	}
	if v := ReadEnvVariable(EnvCAPath); v != "" {
		envCAPath = v
	}
	if v := ReadEnvVariable(EnvClientCert); v != "" {
		envClientCert = v
	}
	if v := ReadEnvVariable(EnvClientKey); v != "" {
		envClientKey = v
	}
	if v := ReadEnvVariable(EnvRateLimit); v != "" {
		rateLimit, burstLimit, err := parseRateLimit(v)
		if err != nil {
			return err
		}
		limit = rate.NewLimiter(rate.Limit(rateLimit), burstLimit)
	}
	if t := ReadEnvVariable(EnvClientTimeout); t != "" {
		clientTimeout, err := parseutil.ParseDurationSecond(t)
		if err != nil {
			return fmt.Errorf("could not parse %q", EnvClientTimeout)
		}
		envClientTimeout = clientTimeout
	}
	if t := ReadEnvVariable(EnvRefreshTimeout); t != "" {
		refreshTimeout, err := parseutil.ParseDurationSecond(t)
		if err != nil {
			return fmt.Errorf("could not parse %q", EnvRefreshTimeout)
		}
		envRefreshTimeout = refreshTimeout
	}
	if t := ReadEnvVariable(EnvWaitTimeout); t != "" {
		waitTimeout, err := parseutil.ParseDurationSecond(t)
		if err != nil {
			return fmt.Errorf("could not parse %q", EnvWaitTimeout)
		}
		envWaitTimeout = waitTimeout
	}
	if v := ReadEnvVariable(EnvSkipVerify); v != "" {
		var err error
		envInsecure, err = strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("could not parse %s", EnvSkipVerify)
		}
	}

	if v := ReadEnvVariable(EnvTLSServerName); v != "" {
		envTLSServerName = v
	}

	if v := ReadEnvVariable(EnvHTTPProxy); v != "" {
		envProxy = v
	}

	// SESSIONPIPE_PROXY_ADDR supersedes SESSIONPIPE_HTTP_PROXY
	if v := ReadEnvVariable(EnvProxyAddr); v != "" {
		envProxy = v
	}

	if v := ReadEnvVariable(EnvSignInPath); v != "" {
		envSignInPath = v
	}
	if v := ReadEnvVariable(EnvRefreshPath); v != "" {
		envRefreshPath = v
	}

	// Configure the HTTP clients TLS configuration.
	t := &TLSConfig{
		CACert:        envCACert,
		CACertBytes:   envCACertBytes,
		CAPath:        envCAPath,
		ClientCert:    envClientCert,
		ClientKey:     envClientKey,
		TLSServerName: envTLSServerName,
		Insecure:      envInsecure,
	}

	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()

	refreshTimeout, waitTimeout := c.RefreshTimeout, c.WaitTimeout
	if envRefreshTimeout != 0 {
		refreshTimeout = envRefreshTimeout
	}
	if envWaitTimeout != 0 {
		waitTimeout = envWaitTimeout
	}
	if err := checkWaitTimeout(refreshTimeout, waitTimeout); err != nil {
		return err
	}

	c.Limiter = limit

	if err := c.configureTLS(t); err != nil {
		return err
	}

	if envAddress != "" {
		c.Address = envAddress
	}

	if envMaxRetries != nil {
		c.MaxRetries = *envMaxRetries
	}

	if envClientTimeout != 0 {
		c.Timeout = envClientTimeout
	}

	if envRefreshTimeout != 0 {
		c.RefreshTimeout = envRefreshTimeout
	}

	if envWaitTimeout != 0 {
		c.WaitTimeout = envWaitTimeout
	}

	if envSignInPath != "" {
		c.SignInPath = envSignInPath
	}

	if envRefreshPath != "" {
		c.RefreshPath = envRefreshPath
	}

	if envProxy != "" {
		u, err := url.Parse(envProxy)
		if err != nil {
			return err
		}

		transport := c.HttpClient.Transport.(*http.Transport)
		transport.Proxy = http.ProxyURL(u)
	}

	return nil
}

// ParseAddress transforms the provided address into a url.URL and handles
// the case of Unix domain sockets by setting the DialContext in the
// configuration's HttpClient.Transport. This function must be called with
// c.modifyLock held for write access.
func (c *Config) ParseAddress(address string) (*url.URL, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}

	previous := c.Address
	c.Address = address

	if strings.HasPrefix(address, "unix://") {
		socket := strings.TrimPrefix(address, "unix://")

		if transport, ok := c.HttpClient.Transport.(*http.Transport); ok {
			transport.DialContext = func(context.Context, string, string) (net.Conn, error) {
				return net.Dial("unix", socket)
			}

			// The URL carries the application protocol, not the transport
			// one, so a unix socket address is rewritten to plain http.
			u.Scheme = "http"
			u.Host = "localhost"
			u.Path = ""
		} else {
			return nil, errors.New("attempting to specify unix:// address with non-transport transport")
		}
	} else if strings.HasPrefix(previous, "unix://") {
		// Moving away from a unix socket restores the dialer cleanhttp uses.
		if transport, ok := c.HttpClient.Transport.(*http.Transport); ok {
			transport.DialContext = cleanhttp.DefaultPooledTransport().DialContext
		}
	}

	return u, nil
}

func parseRateLimit(val string) (rate float64, burst int, err error) {
	_, err = fmt.Sscanf(val, "%f:%d", &rate, &burst)
	if err != nil {
		rate, err = strconv.ParseFloat(val, 64)
		if err != nil {
			err = fmt.Errorf("%v was provided but incorrectly formatted", EnvRateLimit)
		}
		burst = int(rate)
	}

	return rate, burst, err
}

// Client is the client to the API server. Create a client with NewClient.
//
// Every request goes through the authenticated pipeline: the access token
// is attached from the credential store, and a 401 triggers at most one
// refresh exchange shared by all concurrent requests.
type Client struct {
	modifyLock sync.RWMutex
	addr       *url.URL
	config     *Config

	store     session.Store
	refresher *refreshCoordinator
	escalator *Escalator
	metrics   *pipelineMetrics
	logger    logger.Logger
	clock     clockwork.Clock
}

// NewClient returns a new client for the given configuration.
//
// If the configuration is nil, DefaultConfig() is used, which is the
// recommended starting configuration.
//
// If the environment variable `SESSIONPIPE_TOKEN` is present, it is stored
// as the access token. Otherwise, call SetCredentials or log in.
func NewClient(c *Config) (*Client, error) {
	def := DefaultConfig()
	if def == nil {
		return nil, errors.New("could not create/read default configuration")
	}
	if def.Error != nil {
		return nil, fmt.Errorf("error encountered setting up default configuration: %w", def.Error)
	}

	if c == nil {
		c = def
	}

	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()

	if c.MinRetryWait == 0 {
		c.MinRetryWait = def.MinRetryWait
	}

	if c.MaxRetryWait == 0 {
		c.MaxRetryWait = def.MaxRetryWait
	}

	if c.HttpClient == nil {
		c.HttpClient = def.HttpClient
	}
	if c.HttpClient.Transport == nil {
		c.HttpClient.Transport = def.HttpClient.Transport
	}

	if c.RefreshPath == "" {
		c.RefreshPath = def.RefreshPath
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = def.RefreshTimeout
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = c.RefreshTimeout + 5*time.Second
	}
	if err := checkWaitTimeout(c.RefreshTimeout, c.WaitTimeout); err != nil {
		return nil, err
	}
	if c.SignInPath == "" {
		c.SignInPath = def.SignInPath
	}
	if c.NavigateDelay < 0 {
		c.NavigateDelay = 0
	}
	if c.Store == nil {
		c.Store = session.NewMemoryStore()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}

	u, err := c.ParseAddress(c.Address)
	if err != nil {
		return nil, err
	}

	log := c.Logger.WithSubsystem("pipeline")
	metrics := newPipelineMetrics()

	client := &Client{
		addr:      u,
		config:    c,
		store:     c.Store,
		refresher: &refreshCoordinator{store: c.Store},
		metrics:   metrics,
		logger:    log,
		clock:     c.Clock,
	}
	client.escalator = newEscalator(escalatorConfig{
		store:      c.Store,
		notifier:   c.Notifier,
		navigator:  c.Navigator,
		clock:      c.Clock,
		delay:      c.NavigateDelay,
		signInPath: c.SignInPath,
		logger:     c.Logger.WithSubsystem("escalation"),
		metrics:    metrics,
	})

	if token := ReadEnvVariable(EnvToken); token != "" {
		if err := client.store.SetAccessToken(token); err != nil {
			return nil, fmt.Errorf("failed to store token from %s: %w", EnvToken, err)
		}
	}

	return client, nil
}

// checkWaitTimeout rejects a waiter bound shorter than the refresh exchange
// bound: waiters would give up, and end the session, while the exchange can
// still succeed. Zero values mean unset.
func checkWaitTimeout(refreshTimeout, waitTimeout time.Duration) error {
	if refreshTimeout > 0 && waitTimeout > 0 && waitTimeout < refreshTimeout {
		return fmt.Errorf("wait timeout %s must not be shorter than refresh timeout %s", waitTimeout, refreshTimeout)
	}
	return nil
}

// SetAddress sets the address of the API server in the client. The format
// of address should be "<Scheme>://<Host>:<Port>". Setting this on a client
// will override the value of SESSIONPIPE_ADDR environment variable.
func (c *Client) SetAddress(addr string) error {
	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()

	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	parsedAddr, err := c.config.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("failed to set address: %w", err)
	}

	c.addr = parsedAddr
	return nil
}

// Address returns the URL the client is configured to connect to
func (c *Client) Address() string {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()

	return c.addr.String()
}

// SetLimiter will set the rate limiter for this client.
// This method is thread-safe.
// rateLimit and burst are specified according to https://godoc.org/golang.org/x/time/rate#NewLimiter
func (c *Client) SetLimiter(rateLimit float64, burst int) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.Limiter = rate.NewLimiter(rate.Limit(rateLimit), burst)
}

func (c *Client) Limiter() *rate.Limiter {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()

	return c.config.Limiter
}

// SetMaxRetries sets the number of retries that will be used in the case of certain errors
func (c *Client) SetMaxRetries(retries int) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.MaxRetries = retries
}

func (c *Client) MaxRetries() int {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()

	return c.config.MaxRetries
}

// SetCheckRetry sets the CheckRetry function to be used for future requests.
func (c *Client) SetCheckRetry(checkRetry retryablehttp.CheckRetry) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.CheckRetry = checkRetry
}

// SetClientTimeout sets the client request timeout
func (c *Client) SetClientTimeout(timeout time.Duration) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.Timeout = timeout
}

func (c *Client) ClientTimeout() time.Duration {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()

	return c.config.Timeout
}

func (c *Client) OutputCurlString() bool {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()

	return c.config.OutputCurlString
}

func (c *Client) SetOutputCurlString(curl bool) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.OutputCurlString = curl
}

// SetBackoff sets the backoff function to be used for future requests.
func (c *Client) SetBackoff(backoff retryablehttp.Backoff) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.Backoff = backoff
}

// Store returns the credential store backing this client.
func (c *Client) Store() session.Store {
	return c.store
}

// Escalator returns the handler that ends the session when a rejection
// cannot be recovered.
func (c *Client) Escalator() *Escalator {
	return c.escalator
}

// Token returns the access token currently in the credential store. It
// returns the empty string if there is none.
func (c *Client) Token() string {
	pair, err := c.store.Get()
	if err != nil {
		return ""
	}
	return pair.AccessToken
}

// SetToken replaces the access token. It won't perform any auth
// verification, it simply sets the token for future requests.
func (c *Client) SetToken(v string) error {
	return c.store.SetAccessToken(v)
}

// SetCredentials starts a new session with the given pair. A pending
// navigation to the sign-in surface from a previous session is cancelled.
func (c *Client) SetCredentials(pair session.Pair) error {
	if err := c.store.Set(pair); err != nil {
		return err
	}
	if c.escalator.Cancel() {
		c.logger.Debug("pending sign-in navigation cancelled by new session")
	}
	return nil
}

// ClearCredentials removes both tokens from the credential store.
func (c *Client) ClearCredentials() error {
	return c.store.Clear()
}

// Metrics returns a snapshot of the pipeline counters.
func (c *Client) Metrics() map[string]int64 {
	return c.metrics.snapshot()
}

// NewRequest creates a new raw request object to query the API server
// configured for this client.
func (c *Client) NewRequest(method, requestPath string) *Request {
	c.modifyLock.RLock()
	addr := c.addr
	c.modifyLock.RUnlock()

	return &Request{
		Method: method,
		URL: &url.URL{
			User:   addr.User,
			Scheme: addr.Scheme,
			Host:   addr.Host,
			Path:   path.Join(addr.Path, requestPath),
		},
		Host:   addr.Host,
		Params: make(map[string][]string),
	}
}

func (c *Client) refreshPath() string {
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()
	return c.config.RefreshPath
}

func (c *Client) refreshTimeout() time.Duration {
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()
	return c.config.RefreshTimeout
}

func (c *Client) waitTimeout() time.Duration {
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()
	return c.config.WaitTimeout
}

// send performs one exchange with the server using the given access token.
// It knows nothing about refreshes: a 401 comes back as a *ResponseError
// together with the response.
func (c *Client) send(ctx context.Context, r *Request, token string) (*Response, error) {
	c.modifyLock.RLock()

	c.config.modifyLock.RLock()
	limiter := c.config.Limiter
	minRetryWait := c.config.MinRetryWait
	maxRetryWait := c.config.MaxRetryWait
	maxRetries := c.config.MaxRetries
	checkRetry := c.config.CheckRetry
	backoff := c.config.Backoff
	httpClient := c.config.HttpClient
	outputCurlString := c.config.OutputCurlString
	log := c.config.Logger
	c.config.modifyLock.RUnlock()

	c.modifyLock.RUnlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := r.toRetryableHTTP(token)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, errors.New("nil request created")
	}

	if outputCurlString {
		return nil, &OutputStringError{
			Request:       req,
			TLSSkipVerify: httpClient.Transport.(*http.Transport).TLSClientConfig.InsecureSkipVerify,
			ClientCert:    c.config.curlClientCert,
			ClientKey:     c.config.curlClientKey,
			ClientCACert:  c.config.curlCACert,
			ClientCAPath:  c.config.curlCAPath,
		}
	}

	req.Request = req.Request.WithContext(ctx)

	if backoff == nil {
		backoff = retryablehttp.RateLimitLinearJitterBackoff
	}

	if checkRetry == nil {
		checkRetry = DefaultRetryPolicy
	}

	client := &retryablehttp.Client{
		HTTPClient:   httpClient,
		RetryWaitMin: minRetryWait,
		RetryWaitMax: maxRetryWait,
		RetryMax:     maxRetries,
		Backoff:      backoff,
		CheckRetry:   checkRetry,
		Logger:       logger.NewHCLogAdapter(log.WithSubsystem("transport")),
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	var result *Response
	resp, err := client.Do(req)
	if resp != nil {
		result = &Response{Response: resp}
	}
	if err != nil {
		if strings.Contains(err.Error(), "tls: oversized") {
			err = fmt.Errorf("%w\n\n"+TLSErrorString, err) //nolint:staticcheck // user-facing error
		}
		return result, err
	}

	if err := result.Error(); err != nil {
		return result, err
	}

	return result, nil
}

// withConfiguredTimeout wraps the context with a timeout from the client configuration.
func (c *Client) withConfiguredTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.ClientTimeout()

	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}

	return ctx, func() {}
}

// DefaultRetryPolicy is the default retry policy used by new Client objects.
// It is retryablehttp.DefaultRetryPolicy except that it also retries 412,
// and never retries 401: an unauthenticated response belongs to the
// refresh pipeline, not to the transport.
func DefaultRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	if err != nil || retry {
		return retry, err
	}
	if resp != nil && resp.StatusCode == http.StatusPreconditionFailed {
		return true, nil
	}
	return false, nil
}
