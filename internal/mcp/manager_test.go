package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
)

func TestUnknownServerIsTransportError(t *testing.T) {
	m := NewManager(config.MCPConfig{})
	_, err := m.CallTool(context.Background(), "ghost", "anything", nil)
	assert.Error(t, err)
	assert.Equal(t, faults.Transport, faults.KindOf(err))
}

func TestHasRoute(t *testing.T) {
	m := NewManager(config.MCPConfig{Servers: []config.MCPServerConfig{
		{ID: "mail", Transport: "http", URL: "http://localhost:9999/mcp"},
	}})
	assert.True(t, m.HasRoute("mail"))
	assert.False(t, m.HasRoute("other"))
	assert.Zero(t, m.ActiveSessions())
}

func TestValidateRoutesSkipsUnreachableServers(t *testing.T) {
	m := NewManager(config.MCPConfig{})
	err := m.ValidateRoutes(context.Background(), map[string]config.ToolRoute{
		"send_email": {Server: "offline", Tool: "send_email"},
	})
	assert.NoError(t, err, "unreachable servers only warn at startup")
}
