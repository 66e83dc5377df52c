// Package orchestrator runs the multi-agent stage graph: intent routing,
// retrieval, conflict detection, policy, specialist dispatch, and the
// bounded reason-act loop around tool calls.
package orchestrator

import (
	"time"

	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/store"
	"github.com/ivanintech/concierge/internal/tools"
)

// Intents and their specialist codes.
const (
	IntentCalendar   = "CALENDAR"
	IntentEmail      = "EMAIL"
	IntentScheduling = "SCHEDULING"
	IntentComms      = "COMMS"
	IntentGeneral    = "GENERAL"
)

const (
	AgentCalendar   = "CAL"
	AgentEmail      = "EMAIL"
	AgentScheduling = "SCHED"
	AgentComms      = "COMMS"
	AgentGeneral    = "GEN"
)

var agentByIntent = map[string]string{
	IntentCalendar:   AgentCalendar,
	IntentEmail:      AgentEmail,
	IntentScheduling: AgentScheduling,
	IntentComms:      AgentComms,
	IntentGeneral:    AgentGeneral,
}

// Stage names, in graph order.
const (
	StageEntry    = "entry"
	StageIntent   = "intent"
	StageRAG      = "rag"
	StageConflict = "conflict_check"
	StagePolicy   = "policy"
	StageAgent    = "agent"
	StagePlan     = "plan"
	StageTool     = "tool"
	StageResponse = "response"
)

// Request seeds a run. Now is injectable for tests; zero means wall clock.
type Request struct {
	Query             string
	ChatHistory       []llm.Message
	TopK              int
	ConfirmationToken string
	Now               time.Time
}

// ToolCallSummary is the end-of-run report of one executed call.
type ToolCallSummary struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Via        string `json:"via"`
	DurationMS int64  `json:"duration_ms"`
}

// state is the per-request AgentState. It flows forward through the
// stages; nothing outside one run ever sees it.
type state struct {
	query       string
	chatHistory []llm.Message
	now         time.Time

	intent    string
	agentCode string

	ragContext string
	citations  []string

	window    *window
	conflicts []store.Event

	policyRefusal string
	confirmToken  string

	toolSet      []string
	systemPrompt string

	msgs        []llm.Message
	toolResults []tools.Result
	iterations  int

	response string
	timings  map[string]time.Duration
}

// Result is what a finished run reports.
type Result struct {
	Response     string                   `json:"text"`
	Citations    []string                 `json:"citations"`
	Intent       string                   `json:"intent"`
	AgentCode    string                   `json:"agent_code"`
	Refused      bool                     `json:"refused,omitempty"`
	Iterations   int                      `json:"iterations"`
	ToolCalls    []ToolCallSummary        `json:"tool_calls"`
	StageTimings map[string]time.Duration `json:"stage_timings"`
	ToolResults  []tools.Result           `json:"-"`
}

// Observer receives progress events during a run (used by the voice
// session to forward structured log events to the client).
type Observer func(event string, fields map[string]any)

func (o Observer) emit(event string, fields map[string]any) {
	if o != nil {
		o(event, fields)
	}
}
