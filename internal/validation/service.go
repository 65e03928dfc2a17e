// Package validation implements the orchestrator that sits between the
// Gateway Front and the Guard: it applies the fail-open/fail-closed
// policy, mints request ids and timestamps, and frames blocked/error
// verdicts as JSON-RPC.
package validation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/javelinlabs/mcp-validation-gateway/internal/cache"
	"github.com/javelinlabs/mcp-validation-gateway/internal/canonicalize"
	"github.com/javelinlabs/mcp-validation-gateway/internal/guard"
	"github.com/javelinlabs/mcp-validation-gateway/internal/jsonrpc"
)

const blockedBy = "mcp-validation-gateway"

// Result is a Verdict annotated with the request id and timestamp the
// service mints for every call, regardless of outcome.
type Result struct {
	Allowed    bool
	Reason     string
	Confidence *float64
	RequestID  string
	Timestamp  string
}

// Service orchestrates the cache, coalescer, and Guard client, and
// never returns a raw error to its callers: every outcome — success,
// block, or Guard failure — is folded into a Result via policy.
type Service struct {
	cache         *cache.ValidationCache
	coalescer     *cache.Coalescer
	guardClient   *guard.Client
	failOpen      bool
	cacheEnabled  bool
	dedupEnabled  bool
	hashSensitive bool
}

// Config bundles the policy knobs the Service needs at construction.
type Config struct {
	FailOpen      bool
	CacheEnabled  bool
	DedupEnabled  bool
	HashSensitive bool
}

// New constructs a Service wired to the given cache, coalescer, and
// Guard client.
func New(c *cache.ValidationCache, co *cache.Coalescer, gc *guard.Client, cfg Config) *Service {
	return &Service{
		cache:         c,
		coalescer:     co,
		guardClient:   gc,
		failOpen:      cfg.FailOpen,
		cacheEnabled:  cfg.CacheEnabled,
		dedupEnabled:  cfg.DedupEnabled,
		hashSensitive: cfg.HashSensitive,
	}
}

// ValidateRequest always returns a Result; Guard/transport failures are
// folded into it via the fail-open/fail-closed policy rather than
// raised as an error.
func (s *Service) ValidateRequest(ctx context.Context, request json.RawMessage) Result {
	return s.validate(ctx, request, "Request")
}

// ValidateResponse behaves like ValidateRequest but rewrites "Request"
// to "Response" in the synthesized reason strings.
func (s *Service) ValidateResponse(ctx context.Context, response json.RawMessage) Result {
	r := s.validate(ctx, response, "Response")
	r.Reason = strings.Replace(r.Reason, "Request", "Response", 1)
	return r
}

func (s *Service) validate(ctx context.Context, payload json.RawMessage, subject string) Result {
	requestID := uuid.New().String()
	timestamp := time.Now().UTC().Format(time.RFC3339)

	verdict, err := s.resolveVerdict(ctx, payload)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("guard unavailable")
		allowed := s.failOpen
		var reason string
		if allowed {
			reason = "Validation service unavailable, failing open: " + err.Error()
		} else {
			reason = "Validation service unavailable, failing closed: " + err.Error()
		}
		zero := 0.0
		return Result{
			Allowed:    allowed,
			Reason:     reason,
			Confidence: &zero,
			RequestID:  requestID,
			Timestamp:  timestamp,
		}
	}

	if verdict.Allowed {
		confidence := verdict.Confidence
		if confidence == nil {
			c := 0.9
			confidence = &c
		}
		return Result{
			Allowed:    true,
			Reason:     subject + " approved by Guard",
			Confidence: confidence,
			RequestID:  requestID,
			Timestamp:  timestamp,
		}
	}

	confidence := verdict.Confidence
	if confidence == nil {
		c := 0.1
		confidence = &c
	}
	return Result{
		Allowed:    false,
		Reason:     subject + " blocked by Guard",
		Confidence: confidence,
		RequestID:  requestID,
		Timestamp:  timestamp,
	}
}

// resolveVerdict runs the cache → coalescer → Guard client pipeline.
func (s *Service) resolveVerdict(ctx context.Context, payload json.RawMessage) (guard.Verdict, error) {
	call := func() (guard.Verdict, error) {
		utterance := canonicalize.Utterance(payload)
		return s.guardClient.Validate(ctx, utterance)
	}

	if !s.cacheEnabled {
		return call()
	}

	key := canonicalize.Key(payload, s.hashSensitive)

	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	fn := func() (guard.Verdict, error) {
		v, err := call()
		if err != nil {
			return guard.Verdict{}, err
		}
		s.cache.Set(key, v)
		return v, nil
	}

	if !s.dedupEnabled {
		return fn()
	}
	return s.coalescer.Do(key, fn)
}

// ValidateAndHandle validates req; on allow it returns the Result with
// no envelope, on block it returns the JSON-RPC blocked envelope ready
// to send to the caller.
func (s *Service) ValidateAndHandle(ctx context.Context, id json.RawMessage, req json.RawMessage) (Result, *jsonrpc.Response) {
	result := s.ValidateRequest(ctx, req)
	if result.Allowed {
		return result, nil
	}
	return result, s.BlockedResponse(id, result)
}

// BlockedResponse builds the JSON-RPC envelope for a blocked verdict.
func (s *Service) BlockedResponse(id json.RawMessage, result Result) *jsonrpc.Response {
	return jsonrpc.Fail(id, jsonrpc.CodeInvalidRequest, "Request blocked by Guard", map[string]interface{}{
		"reason":     result.Reason,
		"confidence": result.Confidence,
		"request_id": result.RequestID,
		"timestamp":  result.Timestamp,
		"blocked_by": blockedBy,
	})
}

// ErrorResponse builds the JSON-RPC internal-error envelope for a
// validation or forwarding failure unrelated to a Guard verdict.
func (s *Service) ErrorResponse(id json.RawMessage, errMessage string) *jsonrpc.Response {
	return jsonrpc.Fail(id, jsonrpc.CodeInternalError, "Internal validation error", map[string]interface{}{
		"error":     errMessage,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   blockedBy,
	})
}

// HealthCheck reports whether the Guard is reachable.
func (s *Service) HealthCheck(ctx context.Context) bool {
	return s.guardClient.Health(ctx)
}

// CacheStats reports cache occupancy/pending-coalescer counts.
func (s *Service) CacheStats() cache.Stats {
	return cache.Stats{
		Entries:     s.cache.Len(),
		Pending:     s.coalescer.Pending(),
		MaxCapacity: s.cache.MaxEntries(),
		TTLSeconds:  s.cache.TTLSeconds(),
	}
}

// ClearCache invalidates every cached verdict and every pending
// coalescer slot.
func (s *Service) ClearCache() {
	s.cache.Clear()
	s.coalescer.Clear()
}
