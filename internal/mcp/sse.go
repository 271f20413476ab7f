package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// sseStream is the outbound half of a legacy SSE conversation. Responses
// accepted on POST /messages are pumped down the long-lived GET stream.
// outbound is never closed: teardown closes done instead, so a reply from
// an in-flight dispatch that loses the race is dropped, never a panic.
type sseStream struct {
	outbound chan rpcResponse
	done     chan struct{}
}

func (s *Server) ssePath() string {
	return strings.TrimSuffix(s.cfg.MCPPath, "/") + "/sse"
}

func (s *Server) sseMessagePath() string {
	return strings.TrimSuffix(s.cfg.MCPPath, "/") + "/messages"
}

// handleSSEOpen serves GET {mcpPath}/sse: it creates a session, announces
// the message endpoint for it, and then streams responses until the client
// disconnects.
func (s *Server) handleSSEOpen(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream := &sseStream{
		outbound: make(chan rpcResponse, 16),
		done:     make(chan struct{}),
	}
	sess, err := s.sessions.create(kindSSE, s.newExecutor(), func() { close(stream.done) })
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	sess.stream = stream

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	endpoint := fmt.Sprintf("%s?sessionId=%s", s.sseMessagePath(), sess.id)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint)
	flusher.Flush()

	for {
		select {
		case resp := <-stream.outbound:
			payload, err := json.Marshal(resp)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-stream.done:
			return
		case <-r.Context().Done():
			if removed := s.sessions.remove(sess.id); removed != nil {
				removed.close()
			}
			return
		case <-s.closed:
			return
		}
	}
}

// handleSSEMessage serves POST {mcpPath}/messages?sessionId=: the request
// is dispatched on the session's executor and the reply rides the event
// stream, not this response. A reply for a session torn down mid-dispatch
// is discarded and the POST still answers 202.
func (s *Server) handleSSEMessage(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, err := s.sessions.lookup(r.URL.Query().Get("sessionId"), kindSSE)
	if err != nil {
		writeResponse(w, http.StatusNotFound, newError(nil, codeNoValidSession, "no valid session", &rpcErrorData{Code: "NO_VALID_SESSION"}), false)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, newError(nil, codeParseError, "parse error", nil), false)
		return
	}

	resp := s.dispatch(r.Context(), sess.exec, req)
	if resp != nil {
		select {
		case sess.stream.outbound <- *resp:
		case <-sess.stream.done:
		case <-s.closed:
		case <-r.Context().Done():
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}
