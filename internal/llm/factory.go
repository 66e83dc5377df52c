package llm

import (
	"net/http"
	"strings"
	"time"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
)

// NewProvider builds the chat client selected by cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAIClient(cfg.OpenAI, httpClient), nil
	case "anthropic":
		return NewAnthropicClient(cfg.Anthropic, httpClient), nil
	default:
		return nil, faults.Newf(faults.Config, "unknown LLM provider %q", cfg.Provider)
	}
}
