package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stephnangue/sessionpipe/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputCurlString(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer ts.Close()

	config := DefaultConfig()
	config.Address = ts.URL
	config.OutputCurlString = true
	config.Store = session.NewMemoryStoreWith(session.Pair{AccessToken: "abcdefghijklmnop"})
	client, err := NewClient(config)
	require.NoError(t, err)

	_, err = client.Operator().Write("items/1", map[string]interface{}{"name": "it's"})
	require.Error(t, err)

	var outErr *OutputStringError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, ErrOutputStringRequest, err.Error())

	curl, err := outErr.CurlString()
	require.NoError(t, err)
	assert.Contains(t, curl, "-X PUT")
	assert.Contains(t, curl, "-H 'Authorization: Bearer abcd****mnop'")
	assert.NotContains(t, curl, "abcdefghijklmnop")
	assert.Contains(t, curl, `-d '{"name":"it'"'"'s"}'`)
	assert.Contains(t, curl, `"`+ts.URL+`/v1/items/1"`)
	assert.Zero(t, hits)
}
