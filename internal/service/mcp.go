package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the probe operations as MCP tools. Successful calls
// return the same JSON documents as the HTTP API.
func NewMCPServer(probe Probe, version string) *server.MCPServer {
	s := server.NewMCPServer("workload-probe", version)
	tools := &mcpTools{probe: probe}

	s.AddTool(mcp.Tool{
		Name:        "exec",
		Description: "Run a command on the host without a shell. The command string is split with shell-like quoting and times out after the configured limit.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Executable followed by its arguments",
				},
			},
			Required: []string{"command"},
		},
	}, tools.exec)

	s.AddTool(mcp.Tool{
		Name:        "read_file",
		Description: "Read a text file from the host filesystem. Invalid UTF-8 is replaced.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path of the file, resolved from /",
				},
			},
			Required: []string{"path"},
		},
	}, tools.readFile)

	s.AddTool(mcp.Tool{
		Name:        "write_file",
		Description: "Write text to a file on the host, creating parent directories and truncating existing content.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path of the file, resolved from /",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Content to write",
				},
			},
			Required: []string{"path", "content"},
		},
	}, tools.writeFile)

	return s
}

type mcpTools struct {
	probe Probe
}

func (t *mcpTools) exec(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, _ := getArgs(request)["command"].(string)
	result, err := t.probe.RunCommand(ctx, command)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result), nil
}

func (t *mcpTools) readFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, _ := getArgs(request)["path"].(string)
	if path == "" {
		return errResult(newError(KindValidation, "missing path parameter")), nil
	}

	content, err := t.probe.ReadFile(path)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(content), nil
}

func (t *mcpTools) writeFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	path, _ := args["path"].(string)
	if path == "" {
		return errResult(newError(KindValidation, "missing path parameter")), nil
	}
	content, ok := args["content"].(string)
	if !ok {
		return errResult(newError(KindValidation, "missing content parameter")), nil
	}

	result, err := t.probe.WriteFile(path, content)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result), nil
}

func getArgs(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errResult(wrapError(KindInternal, err, "error encoding result"))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(data)}},
	}
}

func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: fmt.Sprintf("error (%s): %s", KindOf(err), err)}},
		IsError: true,
	}
}
