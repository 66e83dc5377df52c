package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivanintech/concierge/internal/faults"
	"github.com/ivanintech/concierge/internal/store"
)

// CalendarProvider materialises events on an external calendar. The wire
// format of the provider API stays behind this interface.
type CalendarProvider interface {
	ProviderName() string
	CreateEvent(ctx context.Context, e store.Event) (providerEventID string, err error)
}

// LocalCalendar is the default provider: events live only in the store.
type LocalCalendar struct{}

func (LocalCalendar) ProviderName() string { return "local" }

func (LocalCalendar) CreateEvent(context.Context, store.Event) (string, error) {
	return uuid.NewString(), nil
}

// ListAgendaEvents returns forthcoming events from the persistent store.
type ListAgendaEvents struct {
	Store store.Store
	Now   func() time.Time
}

func (t *ListAgendaEvents) Name() string { return "list_agenda_events" }

func (t *ListAgendaEvents) Description() string {
	return "List the user's upcoming agenda events in chronological order."
}

func (t *ListAgendaEvents) Schema() map[string]any {
	return objectSchema(map[string]any{
		"limit": map[string]any{"type": "integer", "description": "Maximum events to return (default 10)"},
	})
}

func (t *ListAgendaEvents) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		Limit int `json:"limit"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Limit <= 0 {
		args.Limit = 10
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	events, err := t.Store.UpcomingEvents(ctx, now(), args.Limit)
	if err != nil {
		return Output{}, err
	}
	return Output{Result: eventViews(events), FormattedText: formatAgenda(events)}, nil
}

// CreateCalendarEvent persists a created event and mirrors it onto the
// configured provider.
type CreateCalendarEvent struct {
	Store    store.Store
	Provider CalendarProvider
}

func (t *CreateCalendarEvent) Name() string { return "create_calendar_event" }

func (t *CreateCalendarEvent) Description() string {
	return "Create a calendar event. Times are RFC3339 or 'YYYY-MM-DD HH:MM' in the user's timezone."
}

func (t *CreateCalendarEvent) Schema() map[string]any {
	return objectSchema(map[string]any{
		"title":       map[string]any{"type": "string"},
		"start":       map[string]any{"type": "string", "description": "Event start time"},
		"end":         map[string]any{"type": "string", "description": "Event end time"},
		"attendees":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"location":    map[string]any{"type": "string"},
		"description": map[string]any{"type": "string"},
	}, "title", "start", "end")
}

func (t *CreateCalendarEvent) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		Title     string   `json:"title"`
		Start     string   `json:"start"`
		End       string   `json:"end"`
		Attendees []string `json:"attendees"`
		Location  string   `json:"location"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Output{}, faults.Wrap(faults.Application, err, "invalid arguments")
	}
	if strings.TrimSpace(args.Title) == "" {
		return Output{}, faults.New(faults.Application, "title is required")
	}
	start, err := ParseEventTime(args.Start)
	if err != nil {
		return Output{}, faults.Wrap(faults.Application, err, "invalid start time")
	}
	end, err := ParseEventTime(args.End)
	if err != nil {
		return Output{}, faults.Wrap(faults.Application, err, "invalid end time")
	}
	if end.Before(start) {
		return Output{}, faults.New(faults.Application, "event ends before it starts")
	}

	event := store.Event{
		ID:         store.NewEventID(),
		Source:     "agent",
		Title:      args.Title,
		StartAt:    start,
		EndAt:      &end,
		Timezone:   start.Location().String(),
		Location:   args.Location,
		Attendees:  args.Attendees,
		Status:     store.StatusCreated,
		Confidence: 1,
		CreatedAt:  time.Now(),
	}
	providerID, err := t.Provider.CreateEvent(ctx, event)
	if err != nil {
		return Output{}, faults.Wrap(faults.Transport, err, "calendar provider")
	}
	if err := t.Store.InsertEvent(ctx, event, "agent"); err != nil {
		return Output{}, err
	}
	if err := t.Store.InsertCalendarEvent(ctx, store.CalendarEvent{
		Provider:        t.Provider.ProviderName(),
		ProviderEventID: providerID,
		Title:           args.Title,
		StartAt:         start,
		EndAt:           end,
		Status:          "confirmed",
		LastSyncAt:      time.Now(),
	}); err != nil {
		return Output{}, err
	}

	return Output{
		Result: map[string]any{
			"event_id":          event.ID,
			"provider_event_id": providerID,
			"title":             event.Title,
			"start":             start.Format(time.RFC3339),
			"end":               end.Format(time.RFC3339),
		},
		FormattedText: fmt.Sprintf("Evento creado: %s, %s", event.Title, formatWindow(start, &end)),
	}, nil
}

// ConfirmAgendaEvent transitions a proposed or suggested event to
// confirmed.
type ConfirmAgendaEvent struct {
	Store store.Store
}

func (t *ConfirmAgendaEvent) Name() string { return "confirm_agenda_event" }

func (t *ConfirmAgendaEvent) Description() string {
	return "Confirm a pending agenda event by id."
}

func (t *ConfirmAgendaEvent) Schema() map[string]any {
	return objectSchema(map[string]any{
		"event_id": map[string]any{"type": "string"},
	}, "event_id")
}

func (t *ConfirmAgendaEvent) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || args.EventID == "" {
		return Output{}, faults.New(faults.Application, "event_id is required")
	}
	e, err := t.Store.UpdateEventStatus(ctx, args.EventID, store.StatusConfirmed, "agent")
	if err != nil {
		return Output{}, err
	}
	return Output{
		Result:        eventView(e),
		FormattedText: fmt.Sprintf("Evento confirmado: %s, %s", e.Title, formatWindow(e.StartAt, e.EndAt)),
	}, nil
}

// ParseEventTime accepts RFC3339 or "2006-01-02 15:04" in local time.
func ParseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return ts, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04", s, time.Local); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

type EventView struct {
	ID     string `json:"event_id"`
	Title  string `json:"title"`
	Start  string `json:"start"`
	End    string `json:"end,omitempty"`
	Status string `json:"status"`
}

func eventView(e store.Event) EventView {
	v := EventView{
		ID:     e.ID,
		Title:  e.Title,
		Start:  e.StartAt.Format(time.RFC3339),
		Status: e.Status,
	}
	if e.EndAt != nil {
		v.End = e.EndAt.Format(time.RFC3339)
	}
	return v
}

func eventViews(events []store.Event) []EventView {
	out := make([]EventView, len(events))
	for i, e := range events {
		out[i] = eventView(e)
	}
	return out
}

func formatAgenda(events []store.Event) string {
	if len(events) == 0 {
		return "No tienes eventos próximos en la agenda."
	}
	var sb strings.Builder
	sb.WriteString("Próximos eventos:\n")
	for _, e := range events {
		fmt.Fprintf(&sb, "- %s, %s\n", e.Title, formatWindow(e.StartAt, e.EndAt))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatWindow(start time.Time, end *time.Time) string {
	if end == nil {
		return start.Format("02/01/2006 15:04")
	}
	return fmt.Sprintf("%s–%s", start.Format("02/01/2006 15:04"), end.Format("15:04"))
}
