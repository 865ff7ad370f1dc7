package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Response is a raw response that wraps an HTTP response.
type Response struct {
	*http.Response
}

// DecodeJSON will decode the response body to a JSON structure. This
// will consume the response body, but will not close it. Close must
// still be called.
func (r *Response) DecodeJSON(out interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(out)
}

// Error returns an error response if there is one. If there is an error,
// this will fully consume the response body, but will not close it. The
// body is replaced by a reader over the consumed bytes so it can still be
// read by the caller.
func (r *Response) Error() error {
	if r.StatusCode >= 200 && r.StatusCode < 400 {
		return nil
	}

	var bodyBuf bytes.Buffer
	if _, err := io.Copy(&bodyBuf, r.Body); err != nil {
		return err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(bodyBuf.Bytes()))

	respErr := &ResponseError{StatusCode: r.StatusCode}
	if r.Request != nil {
		respErr.HTTPMethod = r.Request.Method
		respErr.URL = r.Request.URL.String()
		respErr.RequestID = r.Request.Header.Get(HeaderRequestID)
	}

	var resp ErrorResponse
	dec := json.NewDecoder(bytes.NewReader(bodyBuf.Bytes()))
	if err := dec.Decode(&resp); err != nil || len(resp.Errors) == 0 {
		// Not the structured error shape; surface the raw body
		respErr.RawError = true
		if raw := strings.TrimSpace(bodyBuf.String()); raw != "" {
			respErr.Errors = []string{raw}
		}
		return respErr
	}

	respErr.Errors = resp.Errors
	return respErr
}

// ErrorResponse is the raw structure of errors when they're returned by the
// HTTP API.
type ErrorResponse struct {
	Errors []string `json:"errors"`
}

// ResponseError is the error returned when the server responds with a
// status outside 2xx/3xx.
type ResponseError struct {
	HTTPMethod string
	URL        string
	StatusCode int
	RequestID  string

	// RawError marks that the body did not decode as an ErrorResponse and
	// Errors holds the raw body instead.
	RawError bool
	Errors   []string
}

func (r *ResponseError) Error() string {
	errString := "Errors"
	if r.RawError {
		errString = "Raw Message"
	}

	var errBody strings.Builder
	errBody.WriteString(fmt.Sprintf(
		"Error making API request.\n\n"+
			"URL: %s %s\n"+
			"Code: %d. %s:\n\n",
		r.HTTPMethod, r.URL, r.StatusCode, errString))

	if r.RequestID != "" {
		errBody.WriteString(fmt.Sprintf("Request ID: %s\n\n", r.RequestID))
	}

	if r.RawError && len(r.Errors) == 1 {
		errBody.WriteString(r.Errors[0])
	} else {
		for _, err := range r.Errors {
			errBody.WriteString(fmt.Sprintf("* %s", err))
		}
	}

	return errBody.String()
}

func closeBody(resp *Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
