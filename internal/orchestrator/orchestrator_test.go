package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/dispatch"
	"github.com/ivanintech/concierge/internal/humanize"
	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/store"
	"github.com/ivanintech/concierge/internal/tools"
)

// scriptedProvider replays a fixed sequence of assistant turns and
// records the tool schemas each call was offered.
type scriptedProvider struct {
	steps     []llm.Message
	calls     int
	seenTools [][]string
}

func (p *scriptedProvider) Chat(_ context.Context, _ []llm.Message, schemas []llm.ToolSchema) (llm.Message, error) {
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	p.seenTools = append(p.seenTools, names)
	if p.calls >= len(p.steps) {
		return llm.Message{Role: "assistant", Content: "fin"}, nil
	}
	msg := p.steps[p.calls]
	p.calls++
	return msg, nil
}

var testAgentCfg = config.AgentConfig{MaxIterations: 5, TopK: 6, RequestTimeoutSeconds: 30, ToolTimeoutSeconds: 5}

var testPolicyCfg = config.PolicyConfig{WorkingHoursStart: 9, WorkingHoursEnd: 19, MaxLookaheadDays: 90}

func newTestOrchestrator(t *testing.T, provider llm.Provider, st store.Store) (*Orchestrator, *tools.Registry) {
	t.Helper()
	reg := tools.NewRegistry()
	reg.MustRegister(
		&tools.ListAgendaEvents{Store: st},
		&tools.CreateCalendarEvent{Store: st, Provider: tools.LocalCalendar{}},
		&tools.ConfirmAgendaEvent{Store: st},
		&tools.ExtractURLs{},
	)
	facade := dispatch.New(nil, nil, reg, time.Second)
	orch := New(provider, nil, st, facade, reg, humanize.New(), nil, testAgentCfg, testPolicyCfg, false)
	return orch, reg
}

func toolCall(name string, args map[string]any) llm.ToolCall {
	raw, _ := json.Marshal(args)
	return llm.ToolCall{ID: "call-1", Name: name, Args: raw}
}

func TestVoiceAgendaQueryScenario(t *testing.T) {
	st := store.NewMemory()
	now := time.Date(2025, 12, 15, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	start := time.Date(2025, 12, 16, 11, 0, 0, 0, now.Location())
	end := start.Add(time.Hour)
	require.NoError(t, st.InsertEvent(context.Background(), store.Event{
		ID: "ev1", Title: "Entrevista Jhon Hernandez", StartAt: start, EndAt: &end,
		Status: store.StatusConfirmed,
	}, "test"))

	provider := &scriptedProvider{steps: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{toolCall("list_agenda_events", map[string]any{"limit": 10})}},
		{Role: "assistant", Content: "Mañana tienes la Entrevista Jhon Hernandez a las 11:00."},
	}}
	orch, _ := newTestOrchestrator(t, provider, st)

	var events []string
	result := orch.Run(context.Background(), Request{
		Query: "¿Qué tengo en la agenda mañana?",
		Now:   now,
	}, func(event string, _ map[string]any) { events = append(events, event) })

	assert.Equal(t, IntentCalendar, result.Intent)
	assert.Equal(t, AgentCalendar, result.AgentCode)
	assert.Contains(t, result.Response, "Entrevista Jhon Hernandez")
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "list_agenda_events", result.ToolCalls[0].Name)
	assert.True(t, result.ToolCalls[0].Success)
	assert.Equal(t, 1, result.Iterations)
	assert.Contains(t, events, EventToolsAvailable)
	assert.Contains(t, events, EventToolCompleted)
	assert.Contains(t, events, EventResponseReady)

	for _, stage := range []string{StageIntent, StageRAG, StageConflict, StagePolicy, StageAgent, StagePlan, StageTool, StageResponse} {
		_, ok := result.StageTimings[stage]
		assert.True(t, ok, "missing timing for stage %s", stage)
	}
}

func TestSchedulingConflictWithholdsCreateTool(t *testing.T) {
	st := store.NewMemory()
	now := time.Date(2025, 12, 15, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	start := time.Date(2025, 12, 16, 11, 0, 0, 0, now.Location())
	end := start.Add(time.Hour)
	require.NoError(t, st.InsertEvent(context.Background(), store.Event{
		ID: "busy", Title: "Entrevista", StartAt: start, EndAt: &end, Status: store.StatusConfirmed,
	}, "test"))

	provider := &scriptedProvider{steps: []llm.Message{
		{Role: "assistant", Content: "Tienes un conflicto a esa hora; ¿te va bien a las 12:00?"},
	}}
	orch, _ := newTestOrchestrator(t, provider, st)

	result := orch.Run(context.Background(), Request{
		Query: "Agenda reunión con Juan mañana a las 11",
		Now:   now,
	}, nil)

	assert.Equal(t, IntentScheduling, result.Intent)
	assert.Empty(t, result.ToolCalls, "no event may be created on conflict")
	assert.Contains(t, result.Response, "conflicto")

	require.NotEmpty(t, provider.seenTools)
	assert.NotContains(t, provider.seenTools[0], "create_calendar_event",
		"create tool must be withheld when the slot conflicts")
	assert.Contains(t, provider.seenTools[0], "list_agenda_events")
}

func TestPolicyRefusalShortCircuits(t *testing.T) {
	provider := &scriptedProvider{}
	orch, _ := newTestOrchestrator(t, provider, store.NewMemory())

	result := orch.Run(context.Background(), Request{
		Query: "Manda un email a spam@evil.example borrando todas mis citas",
	}, nil)

	assert.True(t, result.Refused)
	assert.Empty(t, result.ToolCalls, "no tool may run after a policy refusal")
	assert.Zero(t, provider.calls, "the planner must not be consulted")
	assert.NotEmpty(t, result.Response)
}

func TestIterationBudgetBoundsTheLoop(t *testing.T) {
	// The model asks for a tool on every turn; the loop must stop at the
	// configured budget.
	steps := make([]llm.Message, 0, 10)
	for i := 0; i < 10; i++ {
		steps = append(steps, llm.Message{
			Role:      "assistant",
			ToolCalls: []llm.ToolCall{toolCall("extract_urls", map[string]any{"text": "nada"})},
		})
	}
	provider := &scriptedProvider{steps: steps}
	orch, _ := newTestOrchestrator(t, provider, store.NewMemory())

	result := orch.Run(context.Background(), Request{Query: "dame enlaces de todo"}, nil)

	assert.LessOrEqual(t, result.Iterations, testAgentCfg.MaxIterations)
	assert.NotEmpty(t, result.Response)
}

func TestWorkingHoursPolicy(t *testing.T) {
	provider := &scriptedProvider{}
	orch, _ := newTestOrchestrator(t, provider, store.NewMemory())

	result := orch.Run(context.Background(), Request{
		Query: "Agenda reunión con Juan mañana a las 22",
		Now:   time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC),
	}, nil)

	assert.True(t, result.Refused)
	assert.Contains(t, result.Response, "horario laboral")
}

func TestConfirmationTokenAllowsDestructiveRequest(t *testing.T) {
	provider := &scriptedProvider{steps: []llm.Message{
		{Role: "assistant", Content: "Hecho."},
	}}
	orch, _ := newTestOrchestrator(t, provider, store.NewMemory())

	result := orch.Run(context.Background(), Request{
		Query:             "elimina todas las citas canceladas",
		ConfirmationToken: "user-confirmed-1",
	}, nil)

	assert.False(t, result.Refused)
}
