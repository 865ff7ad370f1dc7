package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Resource is the decoded body of an API response.
type Resource struct {
	// Data holds the "data" object of the body, or the whole body when the
	// server answers without that envelope.
	Data map[string]any `json:"data"`
}

// ParseResource decodes a response body. An empty body, or one holding only
// an "errors" list, yields a nil Resource and no error. Numbers are kept as
// json.Number.
func ParseResource(r io.Reader) (*Resource, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var top map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&top); err != nil {
		return nil, err
	}

	if data, ok := top["data"].(map[string]any); ok {
		return &Resource{Data: data}, nil
	}

	if raw, ok := top["errors"]; ok {
		if len(top) == 1 {
			return nil, nil
		}
		var messages []string
		if err := mapstructure.Decode(raw, &messages); err != nil {
			return nil, fmt.Errorf("failed to decode errors: %w", err)
		}
		return nil, errors.New(strings.Join(messages, " "))
	}

	if len(top) == 0 {
		return &Resource{}, nil
	}
	return &Resource{Data: top}, nil
}
