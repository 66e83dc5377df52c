package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/dispatch"
	"github.com/ivanintech/concierge/internal/humanize"
	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/orchestrator"
	"github.com/ivanintech/concierge/internal/store"
	"github.com/ivanintech/concierge/internal/tools"
)

type recordingMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMessenger) SendMessage(_ context.Context, _, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, body)
	return "SM-out", nil
}

// schedulingProvider emits a create_calendar_event call once the
// conversation mentions a concrete slot, then answers in text.
type schedulingProvider struct {
	mu       sync.Mutex
	planned  bool
	numCalls int
}

func (p *schedulingProvider) Chat(_ context.Context, msgs []llm.Message, _ []llm.ToolSchema) (llm.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numCalls++

	var all string
	for _, m := range msgs {
		if m.Role == "user" {
			all += " " + m.Content
		}
	}
	mentionsSlot := strings.Contains(all, "viernes") && strings.Contains(all, "Revisión del proyecto")
	if mentionsSlot && !p.planned {
		p.planned = true
		args, _ := json.Marshal(map[string]string{
			"title": "Revisión del proyecto",
			"start": "2025-12-19 10:00",
			"end":   "2025-12-19 11:00",
		})
		return llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{{ID: "c1", Name: "create_calendar_event", Args: args}}}, nil
	}
	return llm.Message{Role: "assistant", Content: "Apuntado."}, nil
}

func newTestProcessor(t *testing.T, st store.Store, provider llm.Provider, messenger tools.Messenger) *Processor {
	t.Helper()
	reg := tools.NewRegistry()
	reg.MustRegister(
		&tools.ListAgendaEvents{Store: st},
		&tools.CreateCalendarEvent{Store: st, Provider: tools.LocalCalendar{}},
		&tools.ConfirmAgendaEvent{Store: st},
	)
	facade := dispatch.New(nil, nil, reg, time.Second)
	orch := orchestrator.New(provider, nil, st, facade, reg, humanize.New(), nil,
		config.AgentConfig{MaxIterations: 5, TopK: 6},
		config.PolicyConfig{WorkingHoursStart: 9, WorkingHoursEnd: 19, MaxLookaheadDays: 365},
		false)
	return NewProcessor(st, orch, messenger, nil)
}

func TestIngestIsIdempotentOnSID(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st, &schedulingProvider{}, nil)
	ctx := context.Background()

	msg := InboundMessage{SID: "SM1", From: "whatsapp:+34600111222", Body: "Hola", ReceivedAt: time.Now()}
	dup, err := p.Ingest(ctx, msg)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = p.Ingest(ctx, msg)
	require.NoError(t, err)
	assert.True(t, dup, "second delivery of the same SID is a silent success")

	stored, ok := st.MessageBySID("SM1")
	require.True(t, ok)
	assert.Equal(t, "Hola", stored.Body)
}

func TestEventExtractionAcrossMessages(t *testing.T) {
	st := store.NewMemory()
	provider := &schedulingProvider{}
	messenger := &recordingMessenger{}
	p := newTestProcessor(t, st, provider, messenger)
	ctx := context.Background()

	base := time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC)
	bodies := []string{"Hola", "Quiero agendar una reunión", "El viernes a las 10", "Revisión del proyecto"}
	var lastSID string
	for i, body := range bodies {
		sid := store.NewEventID()
		lastSID = sid
		_, err := st.InsertMessage(ctx, store.Message{
			SID:            sid,
			ConversationID: ConversationID("whatsapp:+34600111222"),
			From:           "whatsapp:+34600111222",
			Body:           body,
			ReceivedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	p.Analyze(ctx, ConversationID("whatsapp:+34600111222"), lastSID, true)

	trigger, ok := st.MessageBySID(lastSID)
	require.True(t, ok)
	assert.True(t, trigger.EventExtracted, "triggering message must be linked to the event")
	require.NotNil(t, trigger.LinkedEventID)

	event, err := st.GetEvent(ctx, *trigger.LinkedEventID)
	require.NoError(t, err)
	assert.Equal(t, "Revisión del proyecto", event.Title)
	assert.Equal(t, time.Friday, event.StartAt.Weekday())
	assert.Equal(t, 10, event.StartAt.Hour())

	messenger.mu.Lock()
	defer messenger.mu.Unlock()
	assert.Len(t, messenger.sent, 1, "the contact gets one reply")
}

func TestReprocessSuppressesReplies(t *testing.T) {
	st := store.NewMemory()
	messenger := &recordingMessenger{}
	p := newTestProcessor(t, st, &schedulingProvider{}, messenger)
	ctx := context.Background()

	_, err := st.InsertMessage(ctx, store.Message{
		SID:            "SM-b1",
		ConversationID: "34600111222",
		From:           "whatsapp:+34600111222",
		Body:           "Hola",
		ReceivedAt:     time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, p.Reprocess(ctx, false))

	stored, _ := st.MessageBySID("SM-b1")
	assert.True(t, stored.Processed)

	messenger.mu.Lock()
	defer messenger.mu.Unlock()
	assert.Empty(t, messenger.sent)
}

func TestReprocessAllRevisitsProcessedConversations(t *testing.T) {
	st := store.NewMemory()
	provider := &schedulingProvider{}
	p := newTestProcessor(t, st, provider, nil)
	ctx := context.Background()

	_, err := st.InsertMessage(ctx, store.Message{
		SID:            "SM-a1",
		ConversationID: "34600111222",
		From:           "whatsapp:+34600111222",
		Body:           "Hola",
		ReceivedAt:     time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, p.Reprocess(ctx, false))
	stored, _ := st.MessageBySID("SM-a1")
	require.True(t, stored.Processed)
	afterFirst := providerCalls(provider)
	require.Positive(t, afterFirst)

	// Everything is processed: the default scan finds nothing to do.
	require.NoError(t, p.Reprocess(ctx, false))
	assert.Equal(t, afterFirst, providerCalls(provider))

	// all=true widens the scan to processed conversations too.
	require.NoError(t, p.Reprocess(ctx, true))
	assert.Greater(t, providerCalls(provider), afterFirst)
}

func providerCalls(p *schedulingProvider) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numCalls
}

func TestConversationIDNormalisation(t *testing.T) {
	assert.Equal(t, "+34600111222", ConversationID("whatsapp:+34600111222"))
	assert.Equal(t, "+34600111222", ConversationID("  WHATSAPP:+34 600 111 222 "))
}
