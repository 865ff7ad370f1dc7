package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/mitchellh/copystructure"
	"github.com/stephnangue/sessionpipe/helper"
)

// HeaderRequestID correlates a request with server side logs.
const HeaderRequestID = "X-Request-Id"

// Attempt tells whether a request is being dispatched for the first time or
// replayed after a credential refresh. A replay that is rejected again is
// never refreshed a second time.
type Attempt int

const (
	AttemptFirst Attempt = iota
	AttemptReplay
)

func (a Attempt) String() string {
	if a == AttemptReplay {
		return "replay"
	}
	return "first"
}

// Request is a raw request configuration structure used to initiate
// API requests to the server. The access token is not part of it: it is
// attached at dispatch time from the credential store.
type Request struct {
	Method  string
	URL     *url.URL
	Host    string
	Params  url.Values
	Headers http.Header
	Obj     interface{}

	// When possible, use BodyBytes: a Body reader is drained into
	// BodyBytes before the first dispatch so the request can be replayed.
	BodyBytes []byte

	// Fallback
	Body     io.Reader
	BodySize int64

	// NoAuth sends the request without a bearer token and outside of the
	// refresh pipeline. Login endpoints use it: their 401 means bad
	// credentials, not an expired session.
	NoAuth bool

	attempt Attempt
}

// Attempt returns whether r is a first dispatch or a replay.
func (r *Request) Attempt() Attempt {
	return r.attempt
}

// SetJSONBody is used to set a request body that is a JSON-encoded value.
func (r *Request) SetJSONBody(val interface{}) error {
	if val == nil {
		return nil
	}

	buf, err := json.Marshal(val)
	if err != nil {
		return err
	}

	r.Obj = val
	r.BodyBytes = buf
	return nil
}

// bufferBody turns a streaming Body into BodyBytes so it survives a replay.
func (r *Request) bufferBody() error {
	if r.Body == nil || r.BodyBytes != nil {
		return nil
	}
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to buffer request body: %w", err)
	}
	r.BodyBytes = buf
	r.Body = nil
	r.BodySize = int64(len(buf))
	return nil
}

// replay returns a copy of r marked as a replay. r itself is left untouched
// so a caller holding it never observes the retry marker change.
func (r *Request) replay() (*Request, error) {
	next := *r
	next.attempt = AttemptReplay

	if r.URL != nil {
		u := *r.URL
		if r.URL.User != nil {
			user := *r.URL.User
			u.User = &user
		}
		next.URL = &u
	}
	if r.Params != nil {
		params, err := copystructure.Copy(r.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to copy request parameters: %w", err)
		}
		next.Params = params.(url.Values)
	}
	if r.Headers != nil {
		headers, err := copystructure.Copy(r.Headers)
		if err != nil {
			return nil, fmt.Errorf("failed to copy request headers: %w", err)
		}
		next.Headers = headers.(http.Header)
	}
	if r.BodyBytes != nil {
		next.BodyBytes = bytes.Clone(r.BodyBytes)
	}
	return &next, nil
}

// toRetryableHTTP builds the wire request. This is where the access token
// is attached: custom headers first, then the bearer header, which wins
// over any Authorization header the caller set. With no token the request
// goes out unauthenticated and the server decides.
func (r *Request) toRetryableHTTP(token string) (*retryablehttp.Request, error) {
	u := *r.URL
	u.RawQuery = r.Params.Encode()

	var body interface{}
	switch {
	case r.BodyBytes == nil && r.Body == nil:
		// No body
	case r.BodyBytes != nil:
		body = r.BodyBytes
	default:
		body = r.Body
	}

	req, err := retryablehttp.NewRequest(r.Method, u.RequestURI(), body)
	if err != nil {
		return nil, err
	}

	req.URL.User = u.User
	req.URL.Scheme = u.Scheme
	req.URL.Host = u.Host
	req.Host = r.Host

	for header, vals := range r.Headers {
		for _, val := range vals {
			req.Header.Add(header, val)
		}
	}

	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, helper.GenerateRequestID())
	}

	if r.BodyBytes != nil && req.Header.Get("Content-Type") == "" && r.Obj != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}
