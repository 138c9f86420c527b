package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mira/internal/logging"
	"mira/internal/tool"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run Mira as a service over stdio (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// rpcRequest/rpcResponse are the stdio wire format, per spec.md §6:
// "JSON objects with stable field names; no binary framing".
type rpcRequest struct {
	ID     string          `json:"id"`
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// runServe is the stdio service loop: each line of stdin is one
// rpcRequest, each line of stdout is its matching rpcResponse. This is
// the minimal CLI surface spec.md §6 describes; MCP/WebSocket transports
// are explicitly out of core scope.
func runServe(ctx context.Context) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	deps, closeFn, err := buildDeps(ctx, ws)
	if err != nil {
		return err
	}
	defer closeFn()

	logging.Tool("serve: listening on stdio for workspace %s", ws)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			writeRPCResponse(out, rpcResponse{Error: fmt.Sprintf("decode request: %v", err)})
			continue
		}

		result, err := tool.Dispatch(ctx, deps, req.Tool, req.Params)
		resp := rpcResponse{ID: req.ID}
		if err != nil {
			resp.Error = err.Error()
			logging.ToolDebug("dispatch %s failed: %v", req.Tool, err)
		} else {
			resp.Result = result
		}
		writeRPCResponse(out, resp)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}

func writeRPCResponse(out *bufio.Writer, resp rpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode response: %v\n", err)
		return
	}
	out.Write(data)
	out.WriteByte('\n')
	out.Flush()
}
