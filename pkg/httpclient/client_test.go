package httpclient

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.UserAgent = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Timeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestClientSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "xray-test/1.0"
	client, err := New(cfg)
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "xray-test/1.0", gotUA)
}

func TestSanitizeURLRedactsSecrets(t *testing.T) {
	u, err := url.Parse("https://example.com/v1/ingest?api_key=supersecret&page=2&TOKEN=abc")
	require.NoError(t, err)

	out := sanitizeURL(u)
	assert.NotContains(t, out, "supersecret")
	assert.NotContains(t, out, "abc")
	assert.Contains(t, out, "page=2")
	assert.Contains(t, out, "%5BREDACTED%5D")
}

func TestSanitizeURLNil(t *testing.T) {
	assert.Empty(t, sanitizeURL(nil))
}
