package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/yclients-mcp/internal/tools"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

var mcpTracer = otel.Tracer("yclients.internal.mcp")

// ToolSet lists and runs tools.
type ToolSet interface {
	List() []tools.Tool
	Call(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// Server answers MCP requests. It holds no per-session state and is safe for
// concurrent use by several transports.
type Server struct {
	name    string
	version string
	tools   ToolSet
	logger  *logging.Logger
}

// NewServer builds a server advertising name and version.
func NewServer(name, version string, toolset ToolSet, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{name: name, version: version, tools: toolset, logger: logger}
}

// Handle processes one raw JSON-RPC message and returns the encoded response,
// or nil when the message was a notification.
func (s *Server) Handle(ctx context.Context, raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		return s.encode(errorResponse(nil, CodeInvalidRequest, "Batch requests are not supported"))
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		s.logger.Warn("mcp: unparseable message", "error", err)
		return s.encode(errorResponse(nil, CodeParseError, "Parse error"))
	}
	resp := s.Dispatch(ctx, req)
	if resp == nil {
		return nil
	}
	return s.encode(resp)
}

// Dispatch routes a decoded request by method.
func (s *Server) Dispatch(ctx context.Context, req Request) *Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request")
	}

	if req.IsNotification() {
		s.logger.Debug("mcp: notification", "method", req.Method)
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.initialize(req)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": s.tools.List()})
	case "tools/call":
		return s.callTool(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) initialize(req Request) *Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params")
		}
	}
	version := DefaultProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}
	s.logger.Info("mcp: client initialized",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)
	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: version,
		ServerInfo:      implementation{Name: s.name, Version: s.version},
	})
}

func (s *Server) callTool(ctx context.Context, req Request) *Response {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: tool name is required")
	}

	ctx, span := mcpTracer.Start(ctx, "mcp.tools.call")
	defer span.End()
	span.SetAttributes(attribute.String("mcp.tool", params.Name))

	start := time.Now()
	res := s.tools.Call(ctx, params.Name, params.Arguments)
	span.SetAttributes(attribute.Bool("mcp.tool.is_error", res.IsError))
	s.logger.Info("mcp: tool call",
		"tool", params.Name,
		"is_error", res.IsError,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return resultResponse(req.ID, CallToolResult{
		Content: []Content{{Type: "text", Text: res.Text}},
		IsError: res.IsError,
	})
}

func (s *Server) encode(resp *Response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp: encode response", "error", err)
		out, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "Internal error"))
	}
	return out
}
