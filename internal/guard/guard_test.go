package guard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javelinlabs/mcp-validation-gateway/internal/guard"
)

func stubGuard(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/internal/guard/predict", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("X-Javelin-Apikey"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestValidate_CategoricalShape(t *testing.T) {
	srv := stubGuard(t, 200, `{"categories":{"prompt_injection":"true"},"category_scores":{"prompt_injection":0.87}}`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "do something")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, "Threats detected: prompt_injection", v.Reason)
	require.NotNil(t, v.Confidence)
	assert.Equal(t, 0.87, *v.Confidence)
}

func TestValidate_SafeShape(t *testing.T) {
	srv := stubGuard(t, 200, `{"safe":true,"confidence":0.92}`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "read a file")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	require.NotNil(t, v.Confidence)
	assert.Equal(t, 0.92, *v.Confidence)
}

func TestValidate_AllowedShape(t *testing.T) {
	srv := stubGuard(t, 200, `{"allowed":false,"reason":"nope","confidence":0.3}`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, "nope", v.Reason)
}

func TestValidate_ResultShape(t *testing.T) {
	srv := stubGuard(t, 200, `{"result":"SAFE"}`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

func TestValidate_BareBooleanShape(t *testing.T) {
	srv := stubGuard(t, 200, `true`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	require.NotNil(t, v.Confidence)
	assert.Equal(t, 0.9, *v.Confidence)
}

func TestValidate_PlainTextAllow(t *testing.T) {
	srv := stubGuard(t, 200, `looks safe and approved`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

func TestValidate_PlainTextBlock(t *testing.T) {
	srv := stubGuard(t, 200, `this must be rejected`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
}

// When a plain-text response carries both an allow-keyword and a
// block-keyword, the allow check wins: spec.md's if/else-if only
// reaches the block check when no allow-keyword matched.
func TestValidate_PlainTextAllowWinsOverBlock(t *testing.T) {
	srv := stubGuard(t, 200, `this looks safe, nothing to block or deny here`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

func TestValidate_UnknownShapeFailsOpen(t *testing.T) {
	srv := stubGuard(t, 200, `{"totally":"unexpected"}`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	require.NotNil(t, v.Confidence)
	assert.Equal(t, 0.5, *v.Confidence)
}

func TestValidate_NonTwoXXIsClientLevelFailOpen(t *testing.T) {
	srv := stubGuard(t, 500, `boom`)
	defer srv.Close()

	c := guard.New("test-api-key", srv.URL, 5*time.Second)
	v, err := c.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Contains(t, v.Reason, "Guard API error: 500")
	assert.Nil(t, v.Confidence)
}

func TestValidate_TransportFailureReturnsError(t *testing.T) {
	c := guard.New("test-api-key", "http://127.0.0.1:0", 1*time.Second)
	_, err := c.Validate(context.Background(), "x")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := guard.New("k", srv.URL, 5*time.Second)
	assert.True(t, c.Health(context.Background()))
}

func TestHealth_Unreachable(t *testing.T) {
	c := guard.New("k", "http://127.0.0.1:0", 1*time.Second)
	assert.False(t, c.Health(context.Background()))
}
