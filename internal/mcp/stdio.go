package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxStdioLine = 1 << 20

// ServeStdio runs the newline-delimited JSON-RPC loop over the given
// reader and writer. One executor serves the whole process lifetime; the
// loop ends on EOF or context cancellation.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	exec := s.sharedExecutor()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxStdioLine)
	writer := bufio.NewWriter(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req rpcRequest
		var resp *rpcResponse
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			errResp := newError(nil, codeParseError, "parse error", nil)
			resp = &errResp
		} else {
			resp = s.dispatch(ctx, exec, req)
		}
		if resp == nil {
			continue
		}

		payload, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(writer, "%s\n", payload); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}
