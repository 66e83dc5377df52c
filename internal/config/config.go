// Package config loads process-wide configuration from environment
// variables. The resulting Config is immutable after Load and is passed by
// value into the service container.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ivanintech/concierge/internal/faults"
)

type Config struct {
	HTTPAddr string
	LogLevel string
	LogPath  string

	// MockMode short-circuits tool dispatch to deterministic stubs and
	// swaps external stores for in-memory implementations.
	MockMode bool

	Database  DatabaseConfig
	Redis     RedisConfig
	Qdrant    QdrantConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	STT       STTConfig
	TTS       TTSConfig
	Mail      MailConfig
	WhatsApp  WhatsAppConfig
	Calendly  CalendlyConfig
	Agent     AgentConfig
	Policy    PolicyConfig
	Cache     CacheConfig
	MCP       MCPConfig
	Voice     VoiceConfig
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr string
}

type QdrantConfig struct {
	URL        string
	Collection string
	Dimensions int
}

type EmbeddingConfig struct {
	BaseURL        string
	Path           string
	Model          string
	APIKey         string
	TimeoutSeconds int
}

type LLMConfig struct {
	// Provider selects the chat backend: "openai" or "anthropic".
	Provider       string
	TimeoutSeconds int
	OpenAI         OpenAIConfig
	Anthropic      AnthropicConfig
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type STTConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type TTSConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	// FirstChunkTimeoutMS bounds how long the primary backend may take to
	// emit its first audio chunk before the session falls back.
	FirstChunkTimeoutMS int
	SampleRate          int
}

type MailConfig struct {
	// GatewayURL points at the mail adapter service; SMTP/IMAP wire details
	// live behind it.
	GatewayURL string
	APIKey     string
	From       string
}

type WhatsAppConfig struct {
	AccountSID    string
	AuthToken     string
	From          string
	WebhookSecret string
}

type CalendlyConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

type AgentConfig struct {
	MaxIterations         int
	TopK                  int
	MinSimilarity         float64
	RequestTimeoutSeconds int
	ToolTimeoutSeconds    int
}

type PolicyConfig struct {
	WorkingHoursStart int
	WorkingHoursEnd   int
	MaxLookaheadDays  int
}

type CacheConfig struct {
	Enabled    bool
	TTLSeconds int
	MaxSize    int
}

// MCPServerConfig describes one MCP server. At least one of Command or URL
// must be set; Transport selects "stdio", "http", or "sse".
type MCPServerConfig struct {
	ID               string            `json:"id"`
	Transport        string            `json:"transport"`
	Command          string            `json:"command,omitempty"`
	Args             []string          `json:"args,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	URL              string            `json:"url,omitempty"`
	KeepAliveSeconds int               `json:"keep_alive_seconds,omitempty"`
}

// ToolRoute maps a local tool name to a tool on a specific MCP server.
type ToolRoute struct {
	Server string `json:"server"`
	Tool   string `json:"tool"`
}

type MCPConfig struct {
	Servers []MCPServerConfig
	// Routes is the static tool_name -> (server, server tool) table. Exact
	// names, no wildcards; validated against tools/list at startup.
	Routes             map[string]ToolRoute
	MaxPoolSize        int
	IdleTimeoutSeconds int
	CooldownSeconds    int
	CallTimeoutSeconds int
}

type VoiceConfig struct {
	MinTranscriptionChars int
}

// Validate fails fast on configuration the process cannot run with.
func (c Config) Validate() error {
	if !c.MockMode {
		if c.Database.URL == "" {
			return faults.New(faults.Config, "DATABASE_URL is required")
		}
		if c.Qdrant.URL == "" {
			return faults.New(faults.Config, "QDRANT_URL is required")
		}
		switch strings.ToLower(c.LLM.Provider) {
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				return faults.New(faults.Config, "OPENAI_API_KEY is required")
			}
		case "anthropic":
			if c.LLM.Anthropic.APIKey == "" {
				return faults.New(faults.Config, "ANTHROPIC_API_KEY is required")
			}
		default:
			return faults.Newf(faults.Config, "unknown LLM_PROVIDER %q", c.LLM.Provider)
		}
	}
	if c.Qdrant.Dimensions <= 0 {
		return faults.New(faults.Config, "EMBEDDING_DIMENSIONS must be > 0")
	}
	if c.Agent.MaxIterations <= 0 {
		return faults.New(faults.Config, "MAX_ITERATIONS must be > 0")
	}
	if c.Policy.WorkingHoursStart >= c.Policy.WorkingHoursEnd {
		return faults.New(faults.Config, "working hours window is empty")
	}
	for name, route := range c.MCP.Routes {
		if route.Server == "" || route.Tool == "" {
			return faults.Newf(faults.Config, "tool route %q needs server and tool", name)
		}
	}
	for _, srv := range c.MCP.Servers {
		if srv.ID == "" {
			return faults.New(faults.Config, "mcp server id is required")
		}
		if srv.Command == "" && srv.URL == "" {
			return faults.Newf(faults.Config, "mcp server %q: neither command nor url provided", srv.ID)
		}
	}
	return nil
}

func parseMCPServers(raw string) ([]MCPServerConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, fmt.Errorf("parse MCP_SERVERS: %w", err)
	}
	return servers, nil
}

func parseToolRoutes(raw string) (map[string]ToolRoute, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	routes := map[string]ToolRoute{}
	if err := json.Unmarshal([]byte(raw), &routes); err != nil {
		return nil, fmt.Errorf("parse TOOL_ROUTES: %w", err)
	}
	return routes, nil
}
