package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/javelinlabs/mcp-validation-gateway/internal/forwarder"
	"github.com/javelinlabs/mcp-validation-gateway/internal/jsonrpc"
	"github.com/javelinlabs/mcp-validation-gateway/internal/validation"
)

const protocolVersion = "2024-11-05"

// mcpHandler exposes the validation service as an MCP server with two
// built-in tools: validate and proxy.
type mcpHandler struct {
	validation *validation.Service
	forwarder  *forwarder.Forwarder
}

var mcpTools = []map[string]interface{}{
	{
		"name":        "validate",
		"description": "Validate a request against the configured Guard",
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"request": map[string]interface{}{"type": "object", "description": "The MCP request to validate"},
			},
			"required": []string{"request"},
		},
	},
	{
		"name":        "proxy",
		"description": "Validate and proxy a request to a target MCP server",
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"target":  map[string]interface{}{"type": "string", "description": "Target MCP server identifier"},
				"request": map[string]interface{}{"type": "object", "description": "The MCP request to proxy"},
			},
			"required": []string{"target", "request"},
		},
	},
}

func (h *mcpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, ErrRequestMalformed.Error()+": invalid request body", http.StatusBadRequest)
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, jsonrpc.Fail(jsonrpc.NullID, jsonrpc.CodeParseError, "Parse error", err.Error()))
		return
	}

	var resp *jsonrpc.Response
	switch req.Method {
	case "initialize":
		resp = jsonrpc.Success(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      map[string]interface{}{"name": "mcp-validation-gateway", "version": "0.1.0"},
		})
	case "tools/list":
		resp = jsonrpc.Success(req.ID, map[string]interface{}{"tools": mcpTools})
	case "tools/call":
		resp = h.callTool(r.Context(), req)
	default:
		resp = jsonrpc.Fail(req.ID, jsonrpc.CodeMethodNotFound, "Method not found", req.Method)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *mcpHandler) callTool(ctx context.Context, req jsonrpc.Request) *jsonrpc.Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidParams, "Invalid params", err.Error())
	}

	switch params.Name {
	case "validate":
		return h.callValidate(ctx, req.ID, params.Arguments)
	case "proxy":
		return h.callProxy(ctx, req.ID, params.Arguments)
	default:
		return jsonrpc.Fail(req.ID, jsonrpc.CodeMethodNotFound, "Method not found", "unknown tool: "+params.Name)
	}
}

func (h *mcpHandler) callValidate(ctx context.Context, id json.RawMessage, arguments json.RawMessage) *jsonrpc.Response {
	var args struct {
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil || len(args.Request) == 0 {
		return jsonrpc.Fail(id, jsonrpc.CodeInvalidParams, "Invalid params", "missing 'request' parameter")
	}

	result := h.validation.ValidateRequest(ctx, args.Request)
	return jsonrpc.Success(id, toolContent(map[string]interface{}{
		"valid":        result.Allowed,
		"timestamp":    result.Timestamp,
		"validated_by": "mcp-validation-gateway",
	}))
}

func (h *mcpHandler) callProxy(ctx context.Context, id json.RawMessage, arguments json.RawMessage) *jsonrpc.Response {
	var args struct {
		Target  string          `json:"target"`
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil || args.Target == "" || len(args.Request) == 0 {
		return jsonrpc.Fail(id, jsonrpc.CodeInvalidParams, "Invalid params", "missing 'target' or 'request' parameter")
	}

	result := h.validation.ValidateRequest(ctx, args.Request)
	if !result.Allowed {
		return jsonrpc.Success(id, errorToolContent("Request blocked by Guard: "+result.Reason))
	}

	upstream, err := h.forwarder.Forward(ctx, args.Target, args.Request, nil)
	if err != nil {
		return jsonrpc.Success(id, errorToolContent("Upstream error: "+err.Error()))
	}

	var decoded interface{}
	if err := json.Unmarshal(upstream, &decoded); err != nil {
		decoded = string(upstream)
	}
	return jsonrpc.Success(id, toolContent(decoded))
}

// toolContent wraps a payload in the MCP tool-result content shape.
func toolContent(payload interface{}) map[string]interface{} {
	encoded, _ := json.Marshal(payload)
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(encoded)},
		},
		"isError": false,
	}
}

func errorToolContent(message string) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": message},
		},
		"isError": true,
	}
}
