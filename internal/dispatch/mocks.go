package dispatch

import "github.com/ivanintech/concierge/internal/tools"

// DefaultMocks returns the deterministic stub responses used when
// mock_mode is enabled. Payloads are stable so tests and demos can assert
// on them.
func DefaultMocks() map[string]tools.Output {
	return map[string]tools.Output{
		"list_agenda_events": {
			Result: []tools.EventView{{
				ID:     "mock-event-1",
				Title:  "Entrevista Jhon Hernandez",
				Start:  "2025-12-16T11:00:00+01:00",
				End:    "2025-12-16T12:00:00+01:00",
				Status: "confirmed",
			}},
			FormattedText: "Próximos eventos:\n- Entrevista Jhon Hernandez, 16/12/2025 11:00–12:00",
		},
		"create_calendar_event": {
			Result: map[string]string{
				"event_id":          "mock-event-2",
				"provider_event_id": "mock-provider-2",
			},
			FormattedText: "Evento creado.",
		},
		"confirm_agenda_event": {
			Result: map[string]string{"event_id": "mock-event-1", "status": "confirmed"},
		},
		"search_emails": {
			Result: []map[string]string{{
				"id":      "mock-mail-1",
				"from":    "ana@example.com",
				"subject": "Propuesta de reunión",
				"snippet": "¿Te viene bien el jueves?",
			}},
		},
		"send_email": {
			Result: map[string]string{"receipt_id": "mock-receipt-1"},
		},
		"send_whatsapp": {
			Result: map[string]string{"message_sid": "mock-wa-1"},
		},
		"list_calendly_events": {
			Result: []map[string]string{},
		},
		"extract_urls": {
			Result: map[string]any{"urls": []string{}, "count": 0},
		},
	}
}
