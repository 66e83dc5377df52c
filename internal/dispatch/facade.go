// Package dispatch resolves a tool name to its execution path: an MCP
// server when routed, the local registry otherwise, or deterministic
// stubs in mock mode. Every path yields the same result envelope.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
	"github.com/ivanintech/concierge/internal/mcp"
	"github.com/ivanintech/concierge/internal/tools"
)

// MCPCaller is what the facade needs from the MCP manager.
type MCPCaller interface {
	CallTool(ctx context.Context, serverID, tool string, args map[string]any) (mcp.Outcome, error)
}

// AuditSink records every execution for the audit trail.
type AuditSink interface {
	Audit(ctx context.Context, action, actor string, payload any) error
}

// Stats receives per-tool telemetry.
type Stats interface {
	ObserveTool(name string, d time.Duration, success bool)
}

type Facade struct {
	routes      map[string]config.ToolRoute
	mcp         MCPCaller
	registry    *tools.Registry
	mocks       map[string]tools.Output
	mockMode    bool
	toolTimeout time.Duration
	audit       AuditSink
	stats       Stats
}

type Option func(*Facade)

func WithMockMode(mocks map[string]tools.Output) Option {
	return func(f *Facade) {
		f.mockMode = true
		f.mocks = mocks
	}
}

func WithAudit(sink AuditSink) Option {
	return func(f *Facade) { f.audit = sink }
}

func WithStats(stats Stats) Option {
	return func(f *Facade) { f.stats = stats }
}

func New(routes map[string]config.ToolRoute, caller MCPCaller, registry *tools.Registry, toolTimeout time.Duration, opts ...Option) *Facade {
	if toolTimeout <= 0 {
		toolTimeout = 20 * time.Second
	}
	f := &Facade{
		routes:      routes,
		mcp:         caller,
		registry:    registry,
		toolTimeout: toolTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Execute runs one tool call and always returns a filled envelope.
// Transport-level MCP failures fall back to the local registry;
// application-level failures do not.
func (f *Facade) Execute(ctx context.Context, name string, args json.RawMessage) tools.Result {
	start := time.Now()
	res := f.execute(ctx, name, args)
	res.ToolName = name
	res.DurationMS = time.Since(start).Milliseconds()

	if f.stats != nil {
		f.stats.ObserveTool(name, time.Since(start), res.Success)
	}
	if f.audit != nil {
		_ = f.audit.Audit(ctx, "tool_"+name, "agent", map[string]any{
			"args":    json.RawMessage(nonEmptyJSON(args)),
			"success": res.Success,
			"via":     res.Via,
		})
	}
	log.Info().
		Str("tool", name).
		Str("via", res.Via).
		Bool("success", res.Success).
		Int64("duration_ms", res.DurationMS).
		Msg("tool_executed")
	return res
}

func (f *Facade) execute(ctx context.Context, name string, args json.RawMessage) tools.Result {
	if f.mockMode {
		return f.executeMock(name)
	}

	if route, routed := f.routes[name]; routed && f.mcp != nil {
		res, fellThrough := f.executeMCP(ctx, name, route, args)
		if !fellThrough {
			return res
		}
		// Transport failure: the local registry, if it carries the tool,
		// serves the call instead.
		if _, ok := f.registry.Get(name); !ok {
			return res
		}
		log.Warn().Str("tool", name).Str("server", route.Server).Msg("mcp_transport_failure_falling_back")
	}

	return f.executeLocal(ctx, name, args)
}

func (f *Facade) executeMCP(ctx context.Context, name string, route config.ToolRoute, args json.RawMessage) (tools.Result, bool) {
	var argMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argMap); err != nil {
			return tools.Result{
				Via:          tools.ViaMCP,
				ErrorKind:    faults.Application,
				ErrorMessage: "tool arguments must be a JSON object",
			}, false
		}
	}
	outcome, err := f.mcp.CallTool(ctx, route.Server, route.Tool, argMap)
	if err != nil {
		return tools.Result{
			Via:          tools.ViaMCP,
			ErrorKind:    classify(ctx, err),
			ErrorMessage: err.Error(),
		}, true
	}
	if outcome.IsError {
		return tools.Result{
			Via:          tools.ViaMCP,
			ErrorKind:    faults.Application,
			ErrorMessage: outcome.Text,
		}, false
	}
	return tools.Result{
		Via:     tools.ViaMCP,
		Success: true,
		Result:  encodeResult(outcome.Structured, outcome.Text),
	}, false
}

func (f *Facade) executeLocal(ctx context.Context, name string, args json.RawMessage) tools.Result {
	tool, ok := f.registry.Get(name)
	if !ok {
		return tools.Result{
			Via:          tools.ViaLocal,
			ErrorKind:    faults.Application,
			ErrorMessage: "unknown tool " + name,
		}
	}

	cctx, cancel := context.WithTimeout(ctx, f.toolTimeout)
	defer cancel()

	out, err := tool.Execute(cctx, args)
	if err != nil {
		return tools.Result{
			Via:          tools.ViaLocal,
			ErrorKind:    classify(ctx, err),
			ErrorMessage: err.Error(),
		}
	}
	return tools.Result{
		Via:           tools.ViaLocal,
		Success:       true,
		Result:        encodeResult(out.Result, ""),
		FormattedText: out.FormattedText,
	}
}

func (f *Facade) executeMock(name string) tools.Result {
	if out, ok := f.mocks[name]; ok {
		return tools.Result{
			Via:           tools.ViaMock,
			Success:       true,
			Result:        encodeResult(out.Result, ""),
			FormattedText: out.FormattedText,
		}
	}
	return tools.Result{
		Via:     tools.ViaMock,
		Success: true,
		Result:  json.RawMessage(`{"mock":true}`),
	}
}

// classify maps an execution error to its kind. A deadline that expired
// below a still-live request context is a transport timeout, not a user
// cancellation.
func classify(parent context.Context, err error) faults.Kind {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return faults.Transport
	}
	return faults.KindOf(err)
}

func encodeResult(structured any, text string) json.RawMessage {
	if structured != nil {
		if b, err := json.Marshal(structured); err == nil {
			return b
		}
	}
	if text != "" {
		b, _ := json.Marshal(map[string]string{"text": text})
		return b
	}
	return json.RawMessage(`{}`)
}

func nonEmptyJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
