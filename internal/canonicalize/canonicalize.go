// Package canonicalize turns an MCP tool-call request into a short
// natural-language utterance that a content-safety oracle can reason
// about, and derives a deterministic cache key from the request's
// canonical JSON.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const contentPreviewBytes = 50

type toolRequest struct {
	Params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"params"`
}

// Utterance converts an arbitrary MCP request JSON value into the
// canonical string fed to the Guard. It never fails: malformed or
// unrecognized shapes fall back to a generic rendering of the whole
// request.
func Utterance(request json.RawMessage) string {
	var req toolRequest
	if err := json.Unmarshal(request, &req); err != nil || req.Params.Name == "" || len(req.Params.Arguments) == 0 {
		return fmt.Sprintf("perform action: %s", compactJSON(request))
	}

	var args map[string]interface{}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return fmt.Sprintf("perform action: %s", compactJSON(request))
	}

	switch req.Params.Name {
	case "read_file", "file_read":
		return withPath("read file", args)
	case "write_file", "file_write":
		return writeFileUtterance(args)
	case "delete_file", "file_delete":
		return withPath("delete file", args)
	case "execute_command", "run_command", "shell_exec":
		return withField("execute command", "command", args)
	case "database_query", "sql_query":
		return withField("run database query", "query", args)
	case "network_request", "http_request":
		return withField("make network request to", "url", args)
	default:
		return fmt.Sprintf("use tool %s with arguments: %s", req.Params.Name, compactJSON(req.Params.Arguments))
	}
}

func withPath(verb string, args map[string]interface{}) string {
	if path, ok := args["path"].(string); ok {
		return fmt.Sprintf("%s %s", verb, path)
	}
	return verb
}

func withField(verb, field string, args map[string]interface{}) string {
	if v, ok := args[field].(string); ok {
		return fmt.Sprintf("%s: %s", verb, v)
	}
	return verb
}

func writeFileUtterance(args map[string]interface{}) string {
	path, hasPath := args["path"].(string)
	content, hasContent := args["content"].(string)
	if !hasPath {
		return "write file with content"
	}
	if !hasContent {
		return fmt.Sprintf("write file %s with content: data", path)
	}
	return fmt.Sprintf("write file %s with content: %s", path, truncateUTF8(content, contentPreviewBytes))
}

// truncateUTF8 returns a byte-wise prefix of s of at most n bytes,
// never splitting a multi-byte codepoint.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// compactJSON renders v as key-sorted, whitespace-free JSON. It is the
// canonical serialization used both for the fallback utterance and for
// cache-key hashing.
func compactJSON(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return marshalSorted(v)
}

func marshalSorted(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			b.WriteString(marshalSorted(t[k]))
		}
		b.WriteByte('}')
		return b.String()
	case []interface{}:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(marshalSorted(e))
		}
		b.WriteByte(']')
		return b.String()
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Key derives a cache key for request. When hashSensitive is true the
// key is a SHA-256 hex digest of the canonical JSON serialization,
// prefixed "req_"; when false the raw canonical JSON is embedded in the
// key instead, which is only safe for debugging non-sensitive input.
func Key(request json.RawMessage, hashSensitive bool) string {
	canonical := compactJSON(request)
	if !hashSensitive {
		return "req_raw_" + canonical
	}
	sum := sha256.Sum256([]byte(canonical))
	return "req_" + hex.EncodeToString(sum[:])
}
