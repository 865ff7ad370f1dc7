package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Operator performs generic read, write and delete calls against the API
// through the authenticated pipeline.
type Operator struct {
	c *Client
}

// Operator is used to return the client for generic API calls.
func (c *Client) Operator() *Operator {
	return &Operator{c: c}
}

func (c *Operator) Read(path string) (*Resource, error) {
	return c.ReadWithDataWithContext(context.Background(), path, nil)
}

func (c *Operator) ReadWithContext(ctx context.Context, path string) (*Resource, error) {
	return c.ReadWithDataWithContext(ctx, path, nil)
}

func (c *Operator) ReadWithData(path string, data map[string][]string) (*Resource, error) {
	return c.ReadWithDataWithContext(context.Background(), path, data)
}

func (c *Operator) ReadWithDataWithContext(ctx context.Context, path string, data map[string][]string) (*Resource, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	resp, err := c.ReadRawWithDataWithContext(ctx, path, data)
	return c.ParseRawResponseAndCloseBody(resp, err)
}

// ReadRawWithDataWithContext reads the value at the given path (without the
// '/v1/' prefix) and returns the raw response. The 'data' map is added as
// query parameters to the request.
//
// Note: the raw-response functions do not respect the client-configured
// request timeout; if a timeout is desired, please set it through
// context.WithTimeout or context.WithDeadline.
func (c *Operator) ReadRawWithDataWithContext(ctx context.Context, path string, data map[string][]string) (*Response, error) {
	r := c.c.NewRequest(http.MethodGet, "/v1/"+path)
	if values := toValues(data); values != nil {
		r.Params = values
	}
	return c.c.dispatch(ctx, r)
}

// ParseRawResponseAndCloseBody turns a raw response into a Resource. A 404
// with no data reads as a nil Resource and no error.
func (c *Operator) ParseRawResponseAndCloseBody(resp *Response, err error) (*Resource, error) {
	if resp != nil {
		defer resp.Body.Close()
	}
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		resource, parseErr := ParseResource(resp.Body)
		switch parseErr {
		case nil:
		case io.EOF:
			return nil, nil
		default:
			return nil, parseErr
		}
		if resource != nil && len(resource.Data) > 0 {
			return resource, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseResource(resp.Body)
}

func (c *Operator) Write(path string, data map[string]interface{}) (*Resource, error) {
	return c.WriteWithContext(context.Background(), path, data)
}

func (c *Operator) WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*Resource, error) {
	r := c.c.NewRequest(http.MethodPut, "/v1/"+path)
	if err := r.SetJSONBody(data); err != nil {
		return nil, err
	}

	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	resp, err := c.c.dispatch(ctx, r)
	return c.ParseRawResponseAndCloseBody(resp, err)
}

func (c *Operator) Delete(path string) (*Resource, error) {
	return c.DeleteWithDataWithContext(context.Background(), path, nil)
}

func (c *Operator) DeleteWithContext(ctx context.Context, path string) (*Resource, error) {
	return c.DeleteWithDataWithContext(ctx, path, nil)
}

func (c *Operator) DeleteWithDataWithContext(ctx context.Context, path string, data map[string][]string) (*Resource, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodDelete, "/v1/"+path)
	if values := toValues(data); values != nil {
		r.Params = values
	}

	resp, err := c.c.dispatch(ctx, r)
	return c.ParseRawResponseAndCloseBody(resp, err)
}

func toValues(data map[string][]string) url.Values {
	var values url.Values
	for k, v := range data {
		if values == nil {
			values = make(url.Values)
		}
		for _, val := range v {
			values.Add(k, val)
		}
	}
	return values
}
