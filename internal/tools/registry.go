// Package tools implements the booking tools exposed to assistants: their
// declared input schemas, handlers and the text they answer with.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfman30/yclients-mcp/internal/observability/metrics"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

// Result is a tool's answer. IsError marks answers produced from a failure.
type Result struct {
	Text    string
	IsError bool
}

// Handler runs a tool against an untyped argument object.
type Handler func(ctx context.Context, args json.RawMessage) Result

// Property describes one input argument.
type Property struct {
	Type        string `json:"type"`
	Format      string `json:"format,omitempty"`
	Description string `json:"description,omitempty"`
}

// Schema is the JSON schema of a tool's arguments.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Tool is a named, self-describing operation.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	InputSchema Schema  `json:"inputSchema"`
	Handler     Handler `json:"-"`
}

// unknownToolLabel is the metrics label for names not in the registry, so
// caller-supplied names cannot create new series.
const unknownToolLabel = "unknown"

// Registry dispatches calls by tool name.
type Registry struct {
	tools   []Tool
	byName  map[string]Tool
	logger  *logging.Logger
	metrics *metrics.ToolMetrics
}

// NewRegistry indexes tools by name. Later duplicates replace earlier ones.
func NewRegistry(logger *logging.Logger, m *metrics.ToolMetrics, tools ...Tool) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Registry{
		byName:  make(map[string]Tool, len(tools)),
		logger:  logger,
		metrics: m,
	}
	for _, t := range tools {
		if _, dup := r.byName[t.Name]; !dup {
			r.tools = append(r.tools, t)
		} else {
			for i := range r.tools {
				if r.tools[i].Name == t.Name {
					r.tools[i] = t
				}
			}
		}
		r.byName[t.Name] = t
	}
	return r
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	return append([]Tool(nil), r.tools...)
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name)
	}
	return names
}

// Call runs the named tool. Unknown names and handler panics are reported as
// error results, never as Go errors.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (res Result) {
	start := time.Now()
	label := name
	if _, known := r.byName[name]; !known {
		label = unknownToolLabel
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", name, "panic", fmt.Sprint(rec))
			res = callFailure(name, fmt.Sprint(rec))
		}
		status := "ok"
		if res.IsError {
			status = "error"
		}
		r.metrics.ObserveCall(label, status, time.Since(start).Seconds())
	}()

	tool, ok := r.byName[name]
	if !ok || tool.Handler == nil {
		r.logger.Warn("unknown tool requested", "tool", name)
		return callFailure(name, "Неизвестный инструмент: "+name)
	}
	return tool.Handler(ctx, args)
}

func callFailure(name, message string) Result {
	return Result{
		Text:    fmt.Sprintf("❌ Ошибка при выполнении инструмента %s: %s", name, message),
		IsError: true,
	}
}
