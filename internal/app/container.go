// Package app wires the service container and exposes the HTTP surface.
// Construction is leaves-first: stores and clients, then the retrieval
// and tool layers, then the orchestrator on top.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/conversation"
	"github.com/ivanintech/concierge/internal/dispatch"
	"github.com/ivanintech/concierge/internal/embedding"
	"github.com/ivanintech/concierge/internal/humanize"
	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/mcp"
	"github.com/ivanintech/concierge/internal/metrics"
	"github.com/ivanintech/concierge/internal/orchestrator"
	"github.com/ivanintech/concierge/internal/rag"
	"github.com/ivanintech/concierge/internal/store"
	"github.com/ivanintech/concierge/internal/tools"
	"github.com/ivanintech/concierge/internal/vector"
)

type App struct {
	Cfg config.Config

	Store     store.Store
	Vector    vector.Store
	Metrics   *metrics.Service
	Registry  *tools.Registry
	MCP       *mcp.Manager
	Facade    *dispatch.Facade
	Provider  llm.Provider
	Retriever *rag.Retriever
	Orch      *orchestrator.Orchestrator
	Processor *conversation.Processor
	Messenger tools.Messenger
}

// Build constructs the container. Mock mode swaps the stores, the
// embedder, and the LLM provider for in-process implementations and
// short-circuits tool dispatch to stubs; the messenger used for
// conversation replies is still the Twilio client.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Cfg: cfg, Metrics: metrics.New()}

	if err := a.buildStores(ctx, cfg); err != nil {
		return nil, err
	}

	embedder := a.buildEmbedder(cfg)
	a.Retriever = rag.NewRetriever(embedder, a.Vector)

	if err := a.buildProvider(cfg); err != nil {
		return nil, err
	}

	a.buildTools(cfg)

	a.MCP = mcp.NewManager(cfg.MCP)
	a.buildFacade(cfg)

	a.Orch = orchestrator.New(
		a.Provider,
		a.Retriever,
		a.Store,
		a.Facade,
		a.Registry,
		humanize.New(),
		a.Metrics,
		cfg.Agent,
		cfg.Policy,
		cfg.MockMode,
	)

	guard := a.buildGuard(cfg)
	a.Processor = conversation.NewProcessor(a.Store, a.Orch, a.Messenger, guard)
	return a, nil
}

func (a *App) buildStores(ctx context.Context, cfg config.Config) error {
	if cfg.MockMode {
		a.Store = store.NewMemory()
		a.Vector = vector.NewMemory(cfg.Qdrant.Dimensions)
		return nil
	}
	st, err := store.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	a.Store = st

	vs, err := vector.NewQdrant(cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Qdrant.Dimensions)
	if err != nil {
		st.Close()
		return err
	}
	a.Vector = vs
	return nil
}

func (a *App) buildEmbedder(cfg config.Config) rag.QueryEmbedder {
	var inner embedding.Embedder
	if cfg.MockMode {
		inner = embedding.Deterministic{Dim: cfg.Qdrant.Dimensions}
	} else {
		inner = embedding.NewHTTPClient(cfg.Embedding, nil)
	}
	if !cfg.Cache.Enabled {
		return embedding.Direct{Inner: inner}
	}
	return embedding.NewCache(inner, cfg.Cache.MaxSize, time.Duration(cfg.Cache.TTLSeconds)*time.Second, a.Metrics)
}

func (a *App) buildProvider(cfg config.Config) error {
	if cfg.MockMode {
		a.Provider = devProvider{}
		return nil
	}
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	a.Provider = provider
	return nil
}

func (a *App) buildTools(cfg config.Config) {
	reg := tools.NewRegistry()

	mailer := tools.NewGatewayMailer(cfg.Mail, nil)
	messenger := tools.NewTwilioMessenger(cfg.WhatsApp, nil)
	calendly := tools.NewCalendlyClient(cfg.Calendly, nil)
	fetcher := tools.NewFetcher(nil)

	reg.MustRegister(
		&tools.ListAgendaEvents{Store: a.Store},
		&tools.CreateCalendarEvent{Store: a.Store, Provider: tools.LocalCalendar{}},
		&tools.ConfirmAgendaEvent{Store: a.Store},
		&tools.SearchEmails{Mailer: mailer},
		&tools.ReadEmail{Mailer: mailer},
		&tools.SendEmail{Mailer: mailer},
		&tools.SendWhatsApp{Messenger: messenger},
		&tools.ListCalendlyEvents{API: calendly},
		&tools.CreateCalendlyEvent{API: calendly},
		&tools.IngestCalendlyEvents{API: calendly, Store: a.Store},
		&tools.ExtractURLs{},
		&tools.ScrapeWebContent{Fetcher: fetcher},
		&tools.ScrapeNewsForEvents{Fetcher: fetcher},
	)

	a.Registry = reg
	a.Messenger = messenger
}

func (a *App) buildFacade(cfg config.Config) {
	opts := []dispatch.Option{
		dispatch.WithAudit(a.Store),
		dispatch.WithStats(a.Metrics),
	}
	if cfg.MockMode {
		opts = append(opts, dispatch.WithMockMode(dispatch.DefaultMocks()))
	}
	a.Facade = dispatch.New(
		cfg.MCP.Routes,
		a.MCP,
		a.Registry,
		time.Duration(cfg.Agent.ToolTimeoutSeconds)*time.Second,
		opts...,
	)
}

func (a *App) buildGuard(cfg config.Config) conversation.DedupeGuard {
	if cfg.MockMode || cfg.Redis.Addr == "" {
		return conversation.NopGuard{}
	}
	guard, err := conversation.NewRedisGuard(cfg.Redis.Addr)
	if err != nil {
		log.Warn().Err(err).Msg("redis_unavailable_using_nop_guard")
		return conversation.NopGuard{}
	}
	return guard
}

// Start runs background maintenance: the MCP idle reaper and the startup
// validation of the static tool route table.
func (a *App) Start(ctx context.Context) {
	a.MCP.StartReaper(ctx)
	if len(a.Cfg.MCP.Routes) > 0 {
		vctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := a.MCP.ValidateRoutes(vctx, a.Cfg.MCP.Routes); err != nil {
			log.Error().Err(err).Msg("mcp_route_validation_failed")
		}
	}
}

// Close releases held resources.
func (a *App) Close() {
	a.MCP.Close()
	if a.Vector != nil {
		_ = a.Vector.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// devProvider answers without an external model; mock mode only.
type devProvider struct{}

func (devProvider) Chat(_ context.Context, msgs []llm.Message, _ []llm.ToolSchema) (llm.Message, error) {
	last := ""
	for _, m := range msgs {
		if m.Role == "user" {
			last = m.Content
		}
	}
	return llm.Message{Role: "assistant", Content: "(dev) " + last}, nil
}
