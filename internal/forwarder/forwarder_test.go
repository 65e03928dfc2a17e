package forwarder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javelinlabs/mcp-validation-gateway/internal/forwarder"
)

func TestTargetURL_AddsHTTPPrefix(t *testing.T) {
	assert.Equal(t, "http://example.com", forwarder.TargetURL("example.com"))
}

func TestTargetURL_LeavesSchemeVerbatim(t *testing.T) {
	assert.Equal(t, "https://example.com", forwarder.TargetURL("https://example.com"))
	assert.Equal(t, "http://example.com", forwarder.TargetURL("http://example.com"))
}

func TestForward_HeaderWhitelist(t *testing.T) {
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	f := forwarder.New()
	inbound := http.Header{
		"Authorization": {"Bearer tok"},
		"X-Trace-Id":    {"abc"},
		"Cookie":        {"should-not-forward"},
		"User-Agent":    {"should-not-forward-either"},
	}

	_, err := f.Forward(context.Background(), srv.URL, json.RawMessage(`{}`), inbound)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", seen.Get("Authorization"))
	assert.Equal(t, "abc", seen.Get("X-Trace-Id"))
	assert.Empty(t, seen.Get("Cookie"))
}

func TestForward_NonTwoXXIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := forwarder.New()
	_, err := f.Forward(context.Background(), srv.URL, json.RawMessage(`{}`), http.Header{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestForward_InvalidJSONIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	f := forwarder.New()
	_, err := f.Forward(context.Background(), srv.URL, json.RawMessage(`{}`), http.Header{})
	assert.Error(t, err)
}

func TestForward_ReturnsParsedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"done"}`))
	}))
	defer srv.Close()

	f := forwarder.New()
	body, err := f.Forward(context.Background(), srv.URL, json.RawMessage(`{}`), http.Header{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"done"}`, string(body))
}
