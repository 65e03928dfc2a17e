package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/javelinlabs/mcp-validation-gateway/internal/forwarder"
	"github.com/javelinlabs/mcp-validation-gateway/internal/jsonrpc"
	"github.com/javelinlabs/mcp-validation-gateway/internal/validation"
)

// ErrRequestMalformed is the sentinel behind every HTTP 400 response in
// this package: an unreadable or invalid JSON body. The MCP endpoint's
// JSON-RPC "Invalid params" responses carry their own messages and do
// not use it.
var ErrRequestMalformed = errors.New("request malformed")

// Handlers holds the dependencies shared by every HTTP handler. All
// handlers share this single instance by reference.
type Handlers struct {
	Validation  *validation.Service
	Forwarder   *forwarder.Forwarder
	ServiceName string
	Version     string
	GuardAPIKey string
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Health handles GET / and GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"service":         h.ServiceName,
		"version":         h.Version,
		"guard_reachable": h.Validation.HealthCheck(r.Context()),
	})
}

// License handles GET /license.
func (h *Handlers) License(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"license": map[string]interface{}{
			"status":           licenseStatus(h.GuardAPIKey),
			"component":        h.ServiceName,
			"requires_api_key": true,
		},
		"timestamp": nowRFC3339(),
	})
}

// licenseStatus reports a human-readable license status string, backed
// by the same API-key-shape validation used at config load time — there
// is no license server in scope, only a reporting surface.
func licenseStatus(apiKey string) string {
	if validAPIKeyShape(apiKey) {
		return "valid"
	}
	return "invalid: malformed or missing Guard API key"
}

func validAPIKeyShape(apiKey string) bool {
	if len(apiKey) < 10 {
		return false
	}
	for _, r := range apiKey {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return false
		}
	}
	return true
}

// Validate handles POST /validate: the body is the request JSON; the
// response reports the validation verdict directly, with no JSON-RPC
// envelope.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, ErrRequestMalformed.Error()+": invalid request body", http.StatusBadRequest)
		return
	}

	result := h.Validation.ValidateRequest(r.Context(), body)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":      result.Allowed,
		"reason":     result.Reason,
		"confidence": result.Confidence,
		"request_id": result.RequestID,
		"timestamp":  result.Timestamp,
	})
}

// Proxy handles POST /proxy/{target}: validate, forward on allow,
// validate the upstream response, and return the upstream body or a
// blocked/error JSON-RPC envelope.
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")

	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, ErrRequestMalformed.Error()+": invalid request body", http.StatusBadRequest)
		return
	}

	id := extractID(body)

	_, blocked := h.Validation.ValidateAndHandle(r.Context(), id, body)
	if blocked != nil {
		writeJSON(w, http.StatusOK, blocked)
		return
	}

	upstreamBody, err := h.Forwarder.Forward(r.Context(), target, body, r.Header)
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("forward failed")
		writeJSON(w, http.StatusOK, h.Validation.ErrorResponse(id, err.Error()))
		return
	}

	respResult := h.Validation.ValidateResponse(r.Context(), upstreamBody)
	if !respResult.Allowed {
		writeJSON(w, http.StatusOK, h.Validation.BlockedResponse(id, respResult))
		return
	}

	var decoded interface{}
	if err := json.Unmarshal(upstreamBody, &decoded); err != nil {
		decoded = string(upstreamBody)
	}
	writeJSON(w, http.StatusOK, jsonrpc.Success(id, decoded))
}

// extractID pulls the "id" field out of a raw JSON-RPC request body,
// falling back to the JSON-RPC null id if absent or unparseable.
func extractID(body []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || len(probe.ID) == 0 {
		return jsonrpc.NullID
	}
	return probe.ID
}
