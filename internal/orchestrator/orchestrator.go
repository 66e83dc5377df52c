package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/dispatch"
	"github.com/ivanintech/concierge/internal/faults"
	"github.com/ivanintech/concierge/internal/humanize"
	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/rag"
	"github.com/ivanintech/concierge/internal/store"
	"github.com/ivanintech/concierge/internal/tools"
)

// Progress events forwarded to the Observer.
const (
	EventRAGStarted     = "agent_rag_started"
	EventRAGCompleted   = "agent_rag_completed"
	EventIteration      = "agent_iteration_started"
	EventToolsAvailable = "agent_tools_available"
	EventLLMReasoning   = "agent_llm_reasoning"
	EventToolExecuting  = "agent_tool_executing"
	EventToolCompleted  = "agent_tool_completed"
	EventResponseReady  = "agent_response_ready"
)

// StageObserver receives per-stage timings.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration)
}

type Orchestrator struct {
	classifier *Classifier
	retriever  *rag.Retriever
	events     store.Store
	facade     *dispatch.Facade
	registry   *tools.Registry
	provider   llm.Provider
	humanizer  *humanize.Humanizer
	stats      StageObserver
	policy     policyEngine

	agentCfg config.AgentConfig
	devMode  bool
}

func New(
	provider llm.Provider,
	retriever *rag.Retriever,
	events store.Store,
	facade *dispatch.Facade,
	registry *tools.Registry,
	humanizer *humanize.Humanizer,
	stats StageObserver,
	agentCfg config.AgentConfig,
	policyCfg config.PolicyConfig,
	devMode bool,
) *Orchestrator {
	return &Orchestrator{
		classifier: NewClassifier(provider),
		retriever:  retriever,
		events:     events,
		facade:     facade,
		registry:   registry,
		provider:   provider,
		humanizer:  humanizer,
		stats:      stats,
		policy:     policyEngine{cfg: policyCfg},
		agentCfg:   agentCfg,
		devMode:    devMode,
	}
}

const apologyResponse = "Lo siento, ahora mismo no puedo completar esa petición. Inténtalo de nuevo en un momento."

// Run executes the full stage graph for one request. The per-request
// deadline is enforced on ctx by the caller.
func (o *Orchestrator) Run(ctx context.Context, req Request, obs Observer) Result {
	st := &state{
		query:        req.Query,
		chatHistory:  req.ChatHistory,
		confirmToken: req.ConfirmationToken,
		now:          req.Now,
		timings:      make(map[string]time.Duration),
	}
	if st.now.IsZero() {
		st.now = time.Now()
	}

	// Stages 2-5 are strictly ordered.
	o.stage(st, StageIntent, func() {
		st.intent, st.agentCode = o.classifier.Classify(ctx, st.query)
	})
	log.Info().Str("stage", StageIntent).Str("agent", st.agentCode).Str("intent", st.intent).Msg("intent_classified")

	o.stage(st, StageRAG, func() { o.runRAG(ctx, st, req, obs) })
	o.stage(st, StageConflict, func() { o.runConflictCheck(ctx, st) })
	o.stage(st, StagePolicy, func() { st.policyRefusal = o.policy.check(st) })

	if st.policyRefusal != "" {
		log.Info().Str("stage", StagePolicy).Str("agent", st.agentCode).Msg("policy_refusal")
		st.response = st.policyRefusal
		obs.emit(EventResponseReady, map[string]any{"refused": true})
		return o.finish(st, true)
	}

	o.stage(st, StageAgent, func() {
		st.toolSet = selectTools(st.agentCode, len(st.conflicts) > 0)
		st.systemPrompt = composeSystemPrompt(st, o.devMode)
	})
	obs.emit(EventToolsAvailable, map[string]any{"tools": st.toolSet, "agent": st.agentCode})

	o.runLoop(ctx, st, obs)

	o.stage(st, StageResponse, func() {
		st.response = o.humanizer.Humanize(st.response, st.toolResults)
		if st.response == "" {
			st.response = apologyResponse
		}
	})
	obs.emit(EventResponseReady, map[string]any{"length": len(st.response)})
	return o.finish(st, false)
}

func (o *Orchestrator) runRAG(ctx context.Context, st *state, req Request, obs Observer) {
	if o.retriever == nil {
		return
	}
	obs.emit(EventRAGStarted, nil)
	topK := req.TopK
	if topK <= 0 {
		topK = o.agentCfg.TopK
	}
	hits, err := o.retriever.Retrieve(ctx, st.query, rag.Options{
		TopK:          topK,
		MinSimilarity: o.agentCfg.MinSimilarity,
	})
	if err != nil {
		// Retrieval failure degrades to an empty context; the request
		// continues without memory.
		log.Warn().Err(err).Str("stage", StageRAG).Str("agent", st.agentCode).Msg("rag_failed")
		obs.emit(EventRAGCompleted, map[string]any{"chunks": 0, "error": err.Error()})
		return
	}
	st.ragContext, st.citations = rag.AssembleContext(hits)
	obs.emit(EventRAGCompleted, map[string]any{"chunks": len(hits)})
}

func (o *Orchestrator) runConflictCheck(ctx context.Context, st *state) {
	if st.intent != IntentCalendar && st.intent != IntentScheduling {
		return
	}
	st.window = parseWindow(st.query, st.now)
	if st.window == nil || o.events == nil {
		return
	}
	conflicts, err := o.events.OverlappingEvents(ctx, st.window.start, st.window.end)
	if err != nil {
		log.Warn().Err(err).Str("stage", StageConflict).Str("agent", st.agentCode).Msg("conflict_check_failed")
		return
	}
	st.conflicts = conflicts
	if len(conflicts) > 0 {
		log.Info().Int("conflicts", len(conflicts)).Str("agent", st.agentCode).Msg("agenda_conflicts_found")
	}
}

// runLoop is the bounded reason-act segment: plan -> tool -> plan ...
// until the model answers in text or the iteration cap forces an exit.
func (o *Orchestrator) runLoop(ctx context.Context, st *state, obs Observer) {
	st.msgs = append(st.msgs, llm.Message{Role: "system", Content: st.systemPrompt})
	st.msgs = append(st.msgs, st.chatHistory...)
	st.msgs = append(st.msgs, llm.Message{Role: "user", Content: st.query})

	schemas := o.registry.Schemas(st.toolSet)

	for {
		obs.emit(EventIteration, map[string]any{"iteration": st.iterations})

		var reply llm.Message
		var err error
		o.stage(st, StagePlan, func() {
			reply, err = o.provider.Chat(ctx, st.msgs, schemas)
		})
		if err != nil {
			log.Error().Err(err).Str("stage", StagePlan).Str("agent", st.agentCode).Msg("plan_failed")
			if faults.KindOf(err) != faults.Cancelled {
				st.response = apologyResponse
			}
			return
		}
		st.msgs = append(st.msgs, reply)
		if reply.Content != "" {
			obs.emit(EventLLMReasoning, map[string]any{"text": reply.Content})
		}

		if len(reply.ToolCalls) == 0 {
			st.response = reply.Content
			return
		}

		if st.iterations >= o.agentCfg.MaxIterations {
			// The loop is out of budget; answer with what we have.
			st.response = reply.Content
			if st.response == "" {
				st.response = "He llegado al límite de pasos para esta petición; esto es lo que tengo hasta ahora."
			}
			log.Warn().Int("iterations", st.iterations).Str("agent", st.agentCode).Msg("iteration_budget_exhausted")
			return
		}

		o.stage(st, StageTool, func() {
			o.executeToolCalls(ctx, st, reply.ToolCalls, obs)
		})
		st.iterations++
	}
}

// executeToolCalls dispatches one iteration's calls concurrently and
// rejoins at a barrier before the next plan step. Result order follows
// call order regardless of completion order.
func (o *Orchestrator) executeToolCalls(ctx context.Context, st *state, calls []llm.ToolCall, obs Observer) {
	results := make([]tools.Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, tc := range calls {
		obs.emit(EventToolExecuting, map[string]any{"tool": tc.Name, "iteration": st.iterations})
		g.Go(func() error {
			results[i] = o.facade.Execute(gctx, tc.Name, tc.Args)
			return nil
		})
	}
	_ = g.Wait()

	for i, tc := range calls {
		res := results[i]
		obs.emit(EventToolCompleted, map[string]any{
			"tool":    tc.Name,
			"success": res.Success,
			"via":     res.Via,
		})
		st.toolResults = append(st.toolResults, res)
		st.msgs = append(st.msgs, llm.Message{
			Role:     "tool",
			ToolID:   tc.ID,
			ToolName: tc.Name,
			Content:  res.Payload(),
		})
	}
}

func (o *Orchestrator) stage(st *state, name string, fn func()) {
	start := time.Now()
	fn()
	d := time.Since(start)
	st.timings[name] += d
	if o.stats != nil {
		o.stats.ObserveStage(name, d)
	}
}

func (o *Orchestrator) finish(st *state, refused bool) Result {
	summaries := make([]ToolCallSummary, len(st.toolResults))
	for i, r := range st.toolResults {
		summaries[i] = ToolCallSummary{
			Name:       r.ToolName,
			Success:    r.Success,
			Via:        r.Via,
			DurationMS: r.DurationMS,
		}
	}
	if st.citations == nil {
		st.citations = []string{}
	}
	return Result{
		Response:     st.response,
		Citations:    st.citations,
		Intent:       st.intent,
		AgentCode:    st.agentCode,
		Refused:      refused,
		Iterations:   st.iterations,
		ToolCalls:    summaries,
		StageTimings: st.timings,
		ToolResults:  st.toolResults,
	}
}
