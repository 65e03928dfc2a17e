// Package guard is the HTTP client for the external content-safety
// oracle ("the Guard"). It sends a canonicalized utterance and parses
// the Guard's response into a Verdict, trying each known response shape
// in a fixed order.
package guard

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

// ErrGuardUnavailable is returned for transport failures talking to the
// Guard: network errors, timeouts, or a failure to build the request or
// read the response body. A body of unknown shape is not an error; it
// yields a fail-open Verdict.
var ErrGuardUnavailable = errors.New("guard unavailable")

const (
	predictPath = "/v1/internal/guard/predict"
	healthPath  = "/v1/health"
	userAgent   = "mcp-validation-gateway/0.1.0"
)

var tracer = otel.Tracer("internal/guard")

// Verdict is the gateway's admit/deny decision plus metadata. It is
// produced either by the Guard response parser or by the Validation
// Service's policy machine, and is never mutated after construction.
type Verdict struct {
	Allowed    bool
	Reason     string
	Confidence *float64
	ProducedAt time.Time
}

// Client talks to the Guard over HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New constructs a Guard client. timeout bounds every outbound call;
// the underlying transport pools up to 10 idle connections per host
// with a 30s idle timeout, matching the Guard's expected traffic shape.
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Validate sends the canonical utterance to the Guard and returns the
// parsed Verdict. A non-nil error means the call never got a response
// body (transport failure); an unparseable body yields the unknown-shape
// fail-open Verdict, and a non-2xx HTTP status is NOT an error here — it yields a client-level
// fail-open Verdict, per the Guard's own contract.
func (c *Client) Validate(ctx context.Context, utterance string) (Verdict, error) {
	ctx, span := tracer.Start(ctx, "guard.Validate")
	defer span.End()

	body, err := json.Marshal(map[string]string{"text": utterance})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, fmt.Errorf("%w: marshal request: %v", ErrGuardUnavailable, err)
	}

	url := c.baseURL + predictPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, fmt.Errorf("%w: build request: %v", ErrGuardUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Javelin-Apikey", c.apiKey)
	req.Header.Set("User-Agent", userAgent)

	span.SetAttributes(attribute.String("http.url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, fmt.Errorf("%w: read response: %v", ErrGuardUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verdict{
			Allowed:    true,
			Reason:     fmt.Sprintf("Guard API error: %d", resp.StatusCode),
			ProducedAt: time.Now(),
		}, nil
	}

	return parseResponse(respBody), nil
}

// Health reports whether the Guard's own health endpoint is reachable
// and returning success.
func (c *Client) Health(ctx context.Context) bool {
	url := c.baseURL + healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func floatPtr(f float64) *float64 { return &f }

// parseResponse implements the ordered, first-match-wins response
// parser: categorical, safe, allowed, result, bare boolean, plain text,
// and finally an unknown-shape fail-open fallback.
func parseResponse(body []byte) Verdict {
	now := time.Now()
	var generic map[string]interface{}
	if err := json.Unmarshal(body, &generic); err == nil {
		if v, ok := parseCategorical(generic, now); ok {
			return v
		}
		if v, ok := parseSafe(generic, now); ok {
			return v
		}
		if v, ok := parseAllowed(generic, now); ok {
			return v
		}
		if v, ok := parseResult(generic, now); ok {
			return v
		}
	}

	var asBool bool
	if err := json.Unmarshal(body, &asBool); err == nil {
		confidence := 0.1
		if asBool {
			confidence = 0.9
		}
		return Verdict{Allowed: asBool, Confidence: floatPtr(confidence), ProducedAt: now}
	}

	return parseText(string(body), now)
}

func parseCategorical(m map[string]interface{}, now time.Time) (Verdict, bool) {
	categoriesRaw, ok := m["categories"]
	if !ok {
		return Verdict{}, false
	}
	categories, ok := categoriesRaw.(map[string]interface{})
	if !ok {
		return Verdict{}, false
	}

	scores, _ := m["category_scores"].(map[string]interface{})

	var threats []string
	maxScore := 0.0

	for category, raw := range categories {
		if !truthy(raw) {
			continue
		}
		threats = append(threats, category)
		if scores != nil {
			if s, ok := scores[category].(float64); ok && s > maxScore {
				maxScore = s
			}
		}
	}

	reason := "No threats detected"
	if len(threats) > 0 {
		reason = "Threats detected: " + strings.Join(threats, ", ")
	}

	// A scoreless categorical verdict still reports confidence 0.0
	// rather than leaving it absent.
	return Verdict{
		Allowed:    len(threats) == 0,
		Reason:     reason,
		Confidence: floatPtr(maxScore),
		ProducedAt: now,
	}, true
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	default:
		return false
	}
}

func parseSafe(m map[string]interface{}, now time.Time) (Verdict, bool) {
	safe, ok := m["safe"].(bool)
	if !ok {
		return Verdict{}, false
	}
	v := Verdict{Allowed: safe, ProducedAt: now}
	if reason, ok := m["reason"].(string); ok {
		v.Reason = reason
	}
	if conf, ok := m["confidence"].(float64); ok {
		v.Confidence = floatPtr(conf)
	}
	return v, true
}

func parseAllowed(m map[string]interface{}, now time.Time) (Verdict, bool) {
	allowed, ok := m["allowed"].(bool)
	if !ok {
		return Verdict{}, false
	}
	v := Verdict{Allowed: allowed, ProducedAt: now}
	if reason, ok := m["reason"].(string); ok {
		v.Reason = reason
	}
	if conf, ok := m["confidence"].(float64); ok {
		v.Confidence = floatPtr(conf)
	}
	return v, true
}

func parseResult(m map[string]interface{}, now time.Time) (Verdict, bool) {
	result, ok := m["result"].(string)
	if !ok {
		return Verdict{}, false
	}
	lower := strings.ToLower(result)
	allowed := strings.Contains(lower, "safe") || strings.Contains(lower, "allow")
	v := Verdict{
		Allowed:    allowed,
		Reason:     fmt.Sprintf("Guard result: %s", result),
		ProducedAt: now,
	}
	if conf, ok := m["confidence"].(float64); ok {
		v.Confidence = floatPtr(conf)
	}
	return v, true
}

func parseText(text string, now time.Time) Verdict {
	lower := strings.ToLower(text)

	allow := containsAny(lower, "safe", "allow", "ok", "approved")
	block := containsAny(lower, "unsafe", "block", "deny", "reject")

	if allow || block {
		return Verdict{
			Allowed:    allow,
			Reason:     fmt.Sprintf("Guard text response: %s", text),
			Confidence: floatPtr(0.7),
			ProducedAt: now,
		}
	}

	return Verdict{
		Allowed:    true,
		Reason:     fmt.Sprintf("Unknown Guard response: %s", truncate(text, 200)),
		Confidence: floatPtr(0.5),
		ProducedAt: now,
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
