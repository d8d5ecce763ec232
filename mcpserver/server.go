// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// sandbox command surface as tools. It uses the mark3labs/mcp-go library to
// handle the protocol details; sandbox_execute is the primary interface for
// running shell commands in the managed container.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/shellbox/config"
	"github.com/isdmx/shellbox/sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	sandboxExec sandbox.SandboxExecutor
	mcpServer   *server.MCPServer
}

type executeResponse struct {
	ExecutionID string `json:"execution_id"`
	Output      string `json:"output"`
	ExitCode    int    `json:"exit_code"`
	DurationMS  int64  `json:"duration_ms"`
}

type statusResponse struct {
	RuntimeAvailable bool   `json:"runtime_available"`
	Container        string `json:"container"`
	Image            string `json:"image"`
	State            string `json:"state"`
	Running          bool   `json:"running"`
	ID               string `json:"id,omitempty"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sandboxExec sandbox.SandboxExecutor) (*MCPServer, error) {
	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		sandboxExec: sandboxExec,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.String("sandbox.image_name", s.config.Sandbox.ImageName),
		zap.String("sandbox.container_name", s.config.Sandbox.ContainerName),
		zap.String("sandbox.data_dir", s.config.Sandbox.DataDir),
		zap.Int("sandbox.exec_timeout_sec", s.config.Sandbox.ExecTimeoutSec),
		zap.String("sandbox.lookup_policy", s.config.Sandbox.LookupPolicy),
		zap.Bool("sandbox.stop_on_shutdown", s.config.Sandbox.StopOnShutdown),
	)

	s.mcpServer = server.NewMCPServer("shellbox", "A managed shell sandbox server")

	s.registerExecuteTool()
	s.registerStopTool()
	s.registerStatusTool()

	return s, nil
}

func (s *MCPServer) registerExecuteTool() {
	tool := mcp.Tool{
		Name:        "sandbox_execute",
		Description: "Run a shell command inside the managed sandbox container. The host data directory is mounted at /data.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Shell command, run with /bin/sh -c",
				},
			},
			Required: []string{"command"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecute)
}

func (s *MCPServer) registerStopTool() {
	tool := mcp.Tool{
		Name:        "sandbox_stop",
		Description: "Stop and remove the managed sandbox container",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"all": map[string]any{
					"type":        "boolean",
					"description": "Tear the container down; false is a no-op",
					"default":     true,
				},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleStop)
}

func (s *MCPServer) registerStatusTool() {
	tool := mcp.Tool{
		Name:        "sandbox_status",
		Description: "Report container runtime availability and the managed container state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleStatus)
}

// handleExecute handles the sandbox_execute tool
func (s *MCPServer) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := request.RequireString("command")
	if err != nil {
		return nil, fmt.Errorf("command parameter is required: %w", err)
	}

	s.logger.Info("command execution requested", zap.String("command", command))

	result, err := s.sandboxExec.Run(ctx, command)
	if err != nil {
		s.logger.Error("sandbox execution failed",
			zap.Error(err),
			zap.String("command", command))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	s.logger.Info("command execution completed",
		zap.String("execution_id", result.ID),
		zap.Int("exit_code", result.ExitCode),
		zap.Int("output_len", len(result.Output)),
		zap.Duration("duration", result.Duration))

	return jsonResult(executeResponse{
		ExecutionID: result.ID,
		Output:      string(result.Output),
		ExitCode:    result.ExitCode,
		DurationMS:  result.Duration.Milliseconds(),
	})
}

// handleStop handles the sandbox_stop tool
func (s *MCPServer) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all := request.GetBool("all", true)
	s.logger.Info("sandbox stop requested", zap.Bool("all", all))

	if err := s.sandboxExec.Stop(ctx, all); err != nil {
		s.logger.Error("sandbox stop failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Stop failed: %v", err)), nil
	}

	text := "sandbox stopped"
	if !all {
		text = "nothing to stop"
	}
	return textResult(text), nil
}

// handleStatus handles the sandbox_status tool
func (s *MCPServer) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp := statusResponse{
		RuntimeAvailable: s.sandboxExec.IsRuntimeAvailable(ctx),
		Container:        s.config.Sandbox.ContainerName,
		Image:            s.config.Sandbox.ImageName,
		State:            "unknown",
	}

	if resp.RuntimeAvailable {
		status, err := s.sandboxExec.Status(ctx)
		switch {
		case err == nil:
			resp.State = status.State
			resp.Running = status.Running
			resp.ID = status.ID
		case errors.Is(err, sandbox.ErrContainerNotFound):
			resp.State = "absent"
		default:
			s.logger.Warn("sandbox status lookup failed", zap.Error(err))
			return errorResult(fmt.Sprintf("Status failed: %v", err)), nil
		}
	}

	return jsonResult(resp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	result := textResult(text)
	result.IsError = true
	return result
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
