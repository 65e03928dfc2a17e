// Package forwarder sends a validated JSON-RPC request on to an
// upstream MCP server and parses its response.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultTimeout = 30 * time.Second

// ErrUpstreamUnavailable is returned when the target MCP server cannot
// be reached, times out, or answers with a non-2xx or unparseable body.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

var tracer = otel.Tracer("internal/forwarder")

// Forwarder forwards validated requests to upstream MCP servers.
type Forwarder struct {
	httpClient *http.Client
}

// New constructs a Forwarder with a fixed 30s per-call timeout.
func New() *Forwarder {
	return &Forwarder{httpClient: &http.Client{Timeout: defaultTimeout}}
}

// TargetURL normalizes target into an absolute URL: verbatim if it
// already carries a scheme, otherwise prefixed with http://.
func TargetURL(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return "http://" + target
}

// Forward POSTs body to target, carrying only Content-Type plus any
// inbound header whose lowercased name begins with "authorization" or
// "x-"; all other inbound headers are stripped. It returns the parsed
// JSON response body.
func (f *Forwarder) Forward(ctx context.Context, target string, body json.RawMessage, inbound http.Header) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "forwarder.Forward")
	defer span.End()

	url := TargetURL(target)
	span.SetAttributes(attribute.String("http.url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, values := range inbound {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "authorization") || strings.HasPrefix(lower, "x-") {
			for _, v := range values {
				req.Header.Add(name, v)
			}
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: send request to target: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: read response from target: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: target server returned error status: %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%w: parse JSON response from target: invalid JSON", ErrUpstreamUnavailable)
	}
	return json.RawMessage(respBody), nil
}
