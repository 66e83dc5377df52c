package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ivanintech/concierge/internal/faults"
)

// Load reads configuration from environment variables (optionally .env).
// Defaults are applied before validation; the returned Config is final.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr: envStr("HTTP_ADDR", ":8080"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		LogPath:  os.Getenv("LOG_PATH"),
		MockMode: envBool("MOCK_MODE", false),
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Redis:    RedisConfig{Addr: os.Getenv("REDIS_ADDR")},
		Qdrant: QdrantConfig{
			URL:        os.Getenv("QDRANT_URL"),
			Collection: envStr("QDRANT_COLLECTION", "semantic_chunks"),
			Dimensions: envInt("EMBEDDING_DIMENSIONS", 1024),
		},
		Embedding: EmbeddingConfig{
			BaseURL:        envStr("EMBEDDINGS_BASE_URL", "https://api.openai.com/v1"),
			Path:           envStr("EMBEDDINGS_PATH", "/embeddings"),
			Model:          envStr("EMBEDDINGS_MODEL", "text-embedding-3-large"),
			APIKey:         firstNonEmpty(os.Getenv("EMBEDDINGS_API_KEY"), os.Getenv("OPENAI_API_KEY")),
			TimeoutSeconds: envInt("EMBEDDINGS_TIMEOUT_SECONDS", 10),
		},
		LLM: LLMConfig{
			Provider:       envStr("LLM_PROVIDER", "openai"),
			TimeoutSeconds: envInt("LLM_TIMEOUT_SECONDS", 30),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
				Model:   envStr("OPENAI_MODEL", "gpt-4o"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
				Model:   envStr("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
			},
		},
		STT: STTConfig{
			BaseURL: envStr("STT_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  firstNonEmpty(os.Getenv("STT_API_KEY"), os.Getenv("OPENAI_API_KEY")),
			Model:   envStr("STT_MODEL", "whisper-1"),
		},
		TTS: TTSConfig{
			BaseURL:             envStr("TTS_BASE_URL", "https://api.openai.com/v1"),
			APIKey:              firstNonEmpty(os.Getenv("TTS_API_KEY"), os.Getenv("OPENAI_API_KEY")),
			Model:               envStr("TTS_MODEL", "tts-1"),
			Voice:               envStr("TTS_VOICE", "alloy"),
			FirstChunkTimeoutMS: envInt("TTS_FIRST_CHUNK_TIMEOUT_MS", 2000),
			SampleRate:          envInt("TTS_SAMPLE_RATE", 24000),
		},
		Mail: MailConfig{
			GatewayURL: os.Getenv("MAIL_GATEWAY_URL"),
			APIKey:     os.Getenv("MAIL_GATEWAY_API_KEY"),
			From:       os.Getenv("MAIL_FROM"),
		},
		WhatsApp: WhatsAppConfig{
			AccountSID:    os.Getenv("WHATSAPP_ACCOUNT_SID"),
			AuthToken:     os.Getenv("WHATSAPP_AUTH_TOKEN"),
			From:          os.Getenv("WHATSAPP_FROM"),
			WebhookSecret: os.Getenv("WHATSAPP_WEBHOOK_SECRET"),
		},
		Calendly: CalendlyConfig{
			BaseURL:       envStr("CALENDLY_BASE_URL", "https://api.calendly.com"),
			APIKey:        os.Getenv("CALENDLY_API_KEY"),
			WebhookSecret: os.Getenv("CALENDLY_WEBHOOK_SECRET"),
		},
		Agent: AgentConfig{
			MaxIterations:         envInt("MAX_ITERATIONS", 5),
			TopK:                  envInt("RAG_TOP_K", 6),
			MinSimilarity:         envFloat("RAG_MIN_SIMILARITY", 0),
			RequestTimeoutSeconds: envInt("REQUEST_TIMEOUT_SECONDS", 30),
			ToolTimeoutSeconds:    envInt("TOOL_TIMEOUT_SECONDS", 20),
		},
		Policy: PolicyConfig{
			WorkingHoursStart: envInt("WORKING_HOURS_START", 9),
			WorkingHoursEnd:   envInt("WORKING_HOURS_END", 19),
			MaxLookaheadDays:  envInt("MAX_LOOKAHEAD_DAYS", 90),
		},
		Cache: CacheConfig{
			Enabled:    envBool("CACHE_ENABLED", true),
			TTLSeconds: envInt("CACHE_TTL", 3600),
			MaxSize:    envInt("CACHE_MAX_SIZE", 1000),
		},
		MCP: MCPConfig{
			MaxPoolSize:        envInt("MCP_MAX_POOL_SIZE", 10),
			IdleTimeoutSeconds: envInt("MCP_IDLE_TIMEOUT_SECONDS", 300),
			CooldownSeconds:    envInt("MCP_COOLDOWN_SECONDS", 30),
			CallTimeoutSeconds: envInt("MCP_CALL_TIMEOUT_SECONDS", 20),
		},
		Voice: VoiceConfig{
			MinTranscriptionChars: envInt("MIN_TRANSCRIPTION_CHARS", 3),
		},
	}

	servers, err := parseMCPServers(os.Getenv("MCP_SERVERS"))
	if err != nil {
		return Config{}, faults.Wrap(faults.Config, err, "mcp servers")
	}
	cfg.MCP.Servers = servers

	routes, err := parseToolRoutes(os.Getenv("TOOL_ROUTES"))
	if err != nil {
		return Config{}, faults.Wrap(faults.Config, err, "tool routes")
	}
	cfg.MCP.Routes = routes

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
