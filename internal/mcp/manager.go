// Package mcp manages Model-Context-Protocol client sessions over stdio,
// HTTP, and SSE transports. One live client per server id; concurrent
// connects coalesce; failed servers cool down before re-attempt.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
)

const clientName = "concierge"

type entry struct {
	session  *mcppkg.ClientSession
	lastUsed time.Time
}

type Manager struct {
	cfg     config.MCPConfig
	servers map[string]config.MCPServerConfig

	mu        sync.Mutex
	clients   map[string]*entry
	unhealthy map[string]time.Time

	sf singleflight.Group
}

func NewManager(cfg config.MCPConfig) *Manager {
	servers := make(map[string]config.MCPServerConfig, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		servers[srv.ID] = srv
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 10
	}
	if cfg.IdleTimeoutSeconds <= 0 {
		cfg.IdleTimeoutSeconds = 300
	}
	if cfg.CooldownSeconds <= 0 {
		cfg.CooldownSeconds = 30
	}
	return &Manager{
		cfg:       cfg,
		servers:   servers,
		clients:   make(map[string]*entry),
		unhealthy: make(map[string]time.Time),
	}
}

// Outcome is the normalised result of one tools/call.
type Outcome struct {
	IsError    bool
	Text       string
	Structured any
}

// CallTool invokes a tool on the given server. A returned error is always
// transport-level (connect, subprocess, serialisation); application-level
// failures come back as Outcome.IsError.
func (m *Manager) CallTool(ctx context.Context, serverID, tool string, args map[string]any) (Outcome, error) {
	session, err := m.session(ctx, serverID)
	if err != nil {
		return Outcome{}, err
	}

	timeout := time.Duration(m.cfg.CallTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(cctx, &mcppkg.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		// A dead session is unusable for every later call; drop it so the
		// next caller reconnects.
		m.drop(serverID)
		return Outcome{}, faults.Wrap(faults.Transport, err, fmt.Sprintf("tools/call %s on %s", tool, serverID))
	}
	m.touch(serverID)

	texts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := c.(*mcppkg.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return Outcome{
		IsError:    res.IsError,
		Text:       strings.Join(texts, "\n"),
		Structured: res.StructuredContent,
	}, nil
}

// ListTools enumerates the tools a server advertises.
func (m *Manager) ListTools(ctx context.Context, serverID string) ([]string, error) {
	session, err := m.session(ctx, serverID)
	if err != nil {
		return nil, err
	}
	var names []string
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, faults.Wrap(faults.Transport, err, "tools/list "+serverID)
		}
		names = append(names, tool.Name)
	}
	m.touch(serverID)
	return names, nil
}

// ValidateRoutes checks the static tool route table against tools/list.
// Unreachable servers only warn (they may come up later); a reachable
// server missing a routed tool is a configuration error.
func (m *Manager) ValidateRoutes(ctx context.Context, routes map[string]config.ToolRoute) error {
	byServer := make(map[string][]string)
	for name, route := range routes {
		byServer[route.Server] = append(byServer[route.Server], name)
	}
	for serverID, toolNames := range byServer {
		available, err := m.ListTools(ctx, serverID)
		if err != nil {
			log.Warn().Err(err).Str("server", serverID).Msg("mcp_route_validation_skipped")
			continue
		}
		have := make(map[string]bool, len(available))
		for _, n := range available {
			have[n] = true
		}
		for _, localName := range toolNames {
			if !have[routes[localName].Tool] {
				return faults.Newf(faults.Config, "mcp server %s does not provide tool %q (routed as %q)",
					serverID, routes[localName].Tool, localName)
			}
		}
	}
	return nil
}

// session returns the live client for serverID, connecting at most once
// per server across concurrent callers.
func (m *Manager) session(ctx context.Context, serverID string) (*mcppkg.ClientSession, error) {
	srv, ok := m.servers[serverID]
	if !ok {
		return nil, faults.Newf(faults.Transport, "unknown mcp server %q", serverID)
	}

	m.mu.Lock()
	if e, ok := m.clients[serverID]; ok {
		e.lastUsed = time.Now()
		m.mu.Unlock()
		return e.session, nil
	}
	if until, bad := m.unhealthy[serverID]; bad {
		if time.Now().Before(until) {
			m.mu.Unlock()
			return nil, faults.Newf(faults.Transport, "mcp server %s cooling down until %s", serverID, until.Format(time.RFC3339))
		}
		delete(m.unhealthy, serverID)
	}
	m.mu.Unlock()

	v, err, _ := m.sf.Do(serverID, func() (any, error) {
		m.mu.Lock()
		if e, ok := m.clients[serverID]; ok {
			e.lastUsed = time.Now()
			m.mu.Unlock()
			return e.session, nil
		}
		m.mu.Unlock()

		session, err := m.connect(ctx, srv)
		if err != nil {
			m.mu.Lock()
			m.unhealthy[serverID] = time.Now().Add(time.Duration(m.cfg.CooldownSeconds) * time.Second)
			m.mu.Unlock()
			return nil, faults.Wrap(faults.Transport, err, "initialize "+serverID)
		}

		m.mu.Lock()
		m.evictOverflowLocked()
		m.clients[serverID] = &entry{session: session, lastUsed: time.Now()}
		m.mu.Unlock()
		log.Info().Str("server", serverID).Str("transport", srv.Transport).Msg("mcp_session_open")
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mcppkg.ClientSession), nil
}

func (m *Manager) connect(ctx context.Context, srv config.MCPServerConfig) (*mcppkg.ClientSession, error) {
	opts := &mcppkg.ClientOptions{}
	if srv.KeepAliveSeconds > 0 {
		opts.KeepAlive = time.Duration(srv.KeepAliveSeconds) * time.Second
	}
	client := mcppkg.NewClient(&mcppkg.Implementation{Name: clientName, Version: "1.0.0"}, opts)

	transport := strings.ToLower(strings.TrimSpace(srv.Transport))
	switch {
	case transport == "stdio" || (transport == "" && srv.Command != ""):
		cmd := exec.Command(srv.Command, srv.Args...)
		if len(srv.Env) > 0 {
			env := os.Environ()
			for k, v := range srv.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		return client.Connect(ctx, &mcppkg.CommandTransport{Command: cmd}, nil)
	case transport == "sse":
		return client.Connect(ctx, &mcppkg.SSEClientTransport{Endpoint: srv.URL, HTTPClient: http.DefaultClient}, nil)
	case transport == "http" || (transport == "" && srv.URL != ""):
		return client.Connect(ctx, &mcppkg.StreamableClientTransport{Endpoint: srv.URL, HTTPClient: http.DefaultClient}, nil)
	default:
		return nil, fmt.Errorf("unknown transport %q", srv.Transport)
	}
}

// evictOverflowLocked closes the least-recently used client when the pool
// is at capacity. Caller holds m.mu.
func (m *Manager) evictOverflowLocked() {
	for len(m.clients) >= m.cfg.MaxPoolSize {
		var oldestID string
		var oldest time.Time
		for id, e := range m.clients {
			if oldestID == "" || e.lastUsed.Before(oldest) {
				oldestID = id
				oldest = e.lastUsed
			}
		}
		if oldestID == "" {
			return
		}
		_ = m.clients[oldestID].session.Close()
		delete(m.clients, oldestID)
		log.Debug().Str("server", oldestID).Msg("mcp_session_evicted")
	}
}

func (m *Manager) touch(serverID string) {
	m.mu.Lock()
	if e, ok := m.clients[serverID]; ok {
		e.lastUsed = time.Now()
	}
	m.mu.Unlock()
}

func (m *Manager) drop(serverID string) {
	m.mu.Lock()
	if e, ok := m.clients[serverID]; ok {
		_ = e.session.Close()
		delete(m.clients, serverID)
	}
	m.mu.Unlock()
}

// StartReaper closes clients idle longer than the configured timeout.
func (m *Manager) StartReaper(ctx context.Context) {
	idle := time.Duration(m.cfg.IdleTimeoutSeconds) * time.Second
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reap(idle)
			}
		}
	}()
}

func (m *Manager) reap(maxIdle time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, e := range m.clients {
		if now.Sub(e.lastUsed) > maxIdle {
			_ = e.session.Close()
			delete(m.clients, id)
			log.Info().Str("server", id).Msg("mcp_idle_session_closed")
		}
	}
}

// HasRoute reports whether serverID is configured.
func (m *Manager) HasRoute(serverID string) bool {
	_, ok := m.servers[serverID]
	return ok
}

// ActiveSessions reports the live client count.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.clients {
		_ = e.session.Close()
		delete(m.clients, id)
	}
}
