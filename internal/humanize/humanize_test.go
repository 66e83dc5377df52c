package humanize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ivanintech/concierge/internal/tools"
)

func TestHumanizeStripsReasoningSpans(t *testing.T) {
	h := New()
	out := h.Humanize("<think>primero miro la agenda</think>Tienes una reunión mañana.", nil)
	assert.Equal(t, "Tienes una reunión mañana.", out)

	out = h.Humanize("<THINK>case insensitive</THINK>Hola.", nil)
	assert.Equal(t, "Hola.", out)
}

func TestHumanizeDropsPreambles(t *testing.T) {
	h := New()
	out := h.Humanize("Let me think. Tienes dos eventos el viernes.", nil)
	assert.Equal(t, "Tienes dos eventos el viernes.", out)
}

func TestHumanizeIdempotent(t *testing.T) {
	h := New()
	inputs := []string{
		"<think>x</think>Respuesta final con  espacios   dobles.",
		"We note that el 16 de diciembre de 2025 tienes una entrevista.",
		"Texto ya limpio.",
	}
	for _, in := range inputs {
		once := h.Humanize(in, nil)
		twice := h.Humanize(once, nil)
		assert.Equal(t, once, twice, "humanize must be idempotent for %q", in)
	}
}

func TestHumanizeIdempotentWithFormattedText(t *testing.T) {
	h := New()
	results := []tools.Result{{
		ToolName:      "list_agenda_events",
		Success:       true,
		Result:        json.RawMessage(`[]`),
		FormattedText: "Próximos eventos:\n- Entrevista Jhon Hernandez, 16/12/2025 11:00–12:00",
	}}
	inputs := []string{
		"Aquí tienes tu agenda.", // short prefix joins the formatted body
		"",                       // formatted body stands alone
		strings.Repeat("Una respuesta muy larga del modelo. ", 10), // body replaces long text
	}
	for _, in := range inputs {
		once := h.Humanize(in, results)
		twice := h.Humanize(once, results)
		assert.Equal(t, once, twice, "humanize must be idempotent for %q", in)
	}
}

func TestHumanizePrefersFormattedText(t *testing.T) {
	h := New()
	results := []tools.Result{{
		ToolName:      "list_agenda_events",
		Success:       true,
		Result:        json.RawMessage(`[]`),
		FormattedText: "Próximos eventos:\n- Entrevista Jhon Hernandez, 16/12/2025 11:00–12:00",
	}}
	out := h.Humanize("Aquí tienes tu agenda.", results)
	assert.Contains(t, out, "Entrevista Jhon Hernandez")
}

func TestHumanizeSubstitutesEventIDs(t *testing.T) {
	h := New()
	results := []tools.Result{{
		ToolName: "list_agenda_events",
		Success:  true,
		Result:   json.RawMessage(`[{"event_id":"42","title":"Entrevista Jhon Hernandez"}]`),
	}}
	out := h.Humanize("He confirmado event_id=42 para mañana.", results)
	assert.Contains(t, out, "Entrevista Jhon Hernandez")
	assert.NotContains(t, out, "event_id=42")
}

func TestHumanizeNormalisesDates(t *testing.T) {
	h := New()
	out := h.Humanize("La entrevista es el 16 de diciembre de 2025.", nil)
	assert.Contains(t, out, "16/12/2025")

	out = h.Humanize("The interview is on 16 December 2025.", nil)
	assert.Contains(t, out, "16/12/2025")
}
