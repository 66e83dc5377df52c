package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanintech/concierge/internal/store"
)

func seedEvent(t *testing.T, st *store.Memory, title, status string, start time.Time) store.Event {
	t.Helper()
	end := start.Add(time.Hour)
	e := store.Event{
		ID:        store.NewEventID(),
		Source:    "test",
		Title:     title,
		StartAt:   start,
		EndAt:     &end,
		Status:    status,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.InsertEvent(context.Background(), e, "test"))
	return e
}

func TestListAgendaEvents(t *testing.T) {
	st := store.NewMemory()
	now := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	seedEvent(t, st, "Entrevista Jhon Hernandez", store.StatusConfirmed, now.Add(25*time.Hour))
	seedEvent(t, st, "Pasada", store.StatusConfirmed, now.Add(-48*time.Hour))

	tool := &ListAgendaEvents{Store: st, Now: func() time.Time { return now }}
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"limit": 10}`))
	require.NoError(t, err)

	views := out.Result.([]EventView)
	require.Len(t, views, 1)
	assert.Equal(t, "Entrevista Jhon Hernandez", views[0].Title)
	assert.Contains(t, out.FormattedText, "Entrevista Jhon Hernandez")
}

func TestCreateCalendarEventMaterialisesCalendarRow(t *testing.T) {
	st := store.NewMemory()
	tool := &CreateCalendarEvent{Store: st, Provider: LocalCalendar{}}

	args, _ := json.Marshal(map[string]any{
		"title": "Revisión del proyecto",
		"start": "2025-12-19T10:00:00+01:00",
		"end":   "2025-12-19T11:00:00+01:00",
	})
	out, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)

	result := out.Result.(map[string]any)
	eventID := result["event_id"].(string)
	providerID := result["provider_event_id"].(string)
	require.NotEmpty(t, eventID)
	require.NotEmpty(t, providerID)

	e, err := st.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCreated, e.Status)

	_, ok := st.CalendarEventByID("local", providerID)
	assert.True(t, ok, "a calendar event row must exist for a created event")
}

func TestCreateCalendarEventRejectsInvertedWindow(t *testing.T) {
	tool := &CreateCalendarEvent{Store: store.NewMemory(), Provider: LocalCalendar{}}
	args, _ := json.Marshal(map[string]any{
		"title": "x",
		"start": "2025-12-19T11:00:00+01:00",
		"end":   "2025-12-19T10:00:00+01:00",
	})
	_, err := tool.Execute(context.Background(), args)
	assert.Error(t, err)
}

func TestConfirmAgendaEventTransitions(t *testing.T) {
	st := store.NewMemory()
	e := seedEvent(t, st, "Propuesta", store.StatusProposed, time.Now().Add(24*time.Hour))

	tool := &ConfirmAgendaEvent{Store: st}
	args, _ := json.Marshal(map[string]string{"event_id": e.ID})
	out, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, store.StatusConfirmed, out.Result.(EventView).Status)

	// created events are terminal: confirming again must fail.
	_, err = st.UpdateEventStatus(context.Background(), e.ID, store.StatusCreated, "test")
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), args)
	assert.Error(t, err)
}
