package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ivanintech/concierge/internal/llm"
)

type fixedProvider struct {
	reply llm.Message
	calls int
}

func (p *fixedProvider) Chat(context.Context, []llm.Message, []llm.ToolSchema) (llm.Message, error) {
	p.calls++
	return p.reply, nil
}

func TestClassifyByRules(t *testing.T) {
	cases := []struct {
		query  string
		intent string
		agent  string
	}{
		{"¿Qué tengo en la agenda mañana?", IntentCalendar, AgentCalendar},
		{"Agenda reunión con Juan mañana a las 11", IntentScheduling, AgentScheduling},
		{"Mándale un email a Laura con el informe", IntentEmail, AgentEmail},
		{"Escribe a Pedro por whatsapp que llego tarde", IntentComms, AgentComms},
		{"schedule a meeting with the design team", IntentScheduling, AgentScheduling},
		{"what do i have on my calendar friday", IntentCalendar, AgentCalendar},
	}

	c := NewClassifier(nil)
	for _, tc := range cases {
		intent, agent := c.Classify(context.Background(), tc.query)
		assert.Equal(t, tc.intent, intent, tc.query)
		assert.Equal(t, tc.agent, agent, tc.query)
	}
}

func TestClassifyFallsBackToLLM(t *testing.T) {
	p := &fixedProvider{reply: llm.Message{Role: "assistant", Content: "COMMS"}}
	c := NewClassifier(p)

	intent, agent := c.Classify(context.Background(), "hmmm ping her please")
	assert.Equal(t, IntentComms, intent)
	assert.Equal(t, AgentComms, agent)
	assert.Equal(t, 1, p.calls)
}

func TestClassifyUnknownLLMAnswerIsGeneral(t *testing.T) {
	p := &fixedProvider{reply: llm.Message{Role: "assistant", Content: "BANANA"}}
	c := NewClassifier(p)

	intent, agent := c.Classify(context.Background(), "cuéntame un chiste")
	assert.Equal(t, IntentGeneral, intent)
	assert.Equal(t, AgentGeneral, agent)
}

func TestRulePassSkipsLLM(t *testing.T) {
	p := &fixedProvider{reply: llm.Message{Content: "EMAIL"}}
	c := NewClassifier(p)
	c.Classify(context.Background(), "revisa mi correo")
	assert.Zero(t, p.calls, "rule match must not consult the LLM")
}
