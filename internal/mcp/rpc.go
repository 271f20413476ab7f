package mcp

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// JSON-RPC 2.0 wire shapes.

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    *rpcErrorData `json:"data,omitempty"`
}

// rpcErrorData carries a stable machine-readable code alongside the
// numeric JSON-RPC one.
type rpcErrorData struct {
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603
	// codeNoValidSession covers every malformed-session condition:
	// missing, unknown, or bound to an incompatible transport kind.
	codeNoValidSession = -32000
)

func newResult(id, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func newError(id any, code int, message string, data *rpcErrorData) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}}
}

// writeResponse serializes one JSON-RPC response, either as a plain JSON
// body or framed as a single-event SSE stream when eventStream is set.
func writeResponse(w http.ResponseWriter, statusCode int, resp rpcResponse, eventStream bool) {
	payload, err := json.Marshal(resp)
	if err != nil {
		log.Printf("mcp: marshal response failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if eventStream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(payload)
}
