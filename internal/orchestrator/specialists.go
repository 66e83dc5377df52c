package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivanintech/concierge/internal/store"
)

// toolSets filter what each specialist may call. Tools outside the set
// are withheld from the LLM entirely.
var toolSets = map[string][]string{
	AgentCalendar: {
		"list_agenda_events", "confirm_agenda_event", "create_calendar_event",
		"ingest_calendly_events",
	},
	AgentScheduling: {
		"list_agenda_events", "create_calendar_event", "confirm_agenda_event",
		"list_calendly_events", "create_calendly_event",
	},
	AgentEmail: {
		"search_emails", "read_email", "send_email", "extract_urls",
	},
	AgentComms: {
		"send_whatsapp", "extract_urls", "scrape_web_content",
	},
	AgentGeneral: {
		"list_agenda_events", "search_emails", "extract_urls",
		"scrape_web_content", "scrape_news_for_events",
	},
}

const capabilityBrief = `Eres un asistente personal de coordinación. Gestionas la agenda,
el correo y los mensajes del usuario usando las herramientas disponibles.
Responde en el idioma del usuario, de forma breve y concreta. Nunca
inventes eventos ni correos: consulta siempre las herramientas.`

// selectTools returns the filtered tool set for an agent code, dropping
// the event-creation tool when a conflict was detected so the specialist
// can only propose an alternative.
func selectTools(agentCode string, hasConflict bool) []string {
	set := toolSets[agentCode]
	if set == nil {
		set = toolSets[AgentGeneral]
	}
	if !hasConflict {
		return set
	}
	filtered := make([]string, 0, len(set))
	for _, name := range set {
		if name == "create_calendar_event" {
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered
}

// composeSystemPrompt builds the specialist prompt: capability brief,
// clock, retrieved context, and any detected conflicts.
func composeSystemPrompt(st *state, devMode bool) string {
	var sb strings.Builder
	sb.WriteString(capabilityBrief)
	fmt.Fprintf(&sb, "\n\nFecha y hora actual: %s (%s).",
		st.now.Format("Monday 02/01/2006 15:04"), st.now.Location())
	fmt.Fprintf(&sb, "\nEspecialista activo: %s.", st.agentCode)

	if st.ragContext != "" {
		sb.WriteString("\n\nContexto recuperado de la memoria semántica:\n")
		sb.WriteString(st.ragContext)
	}
	if len(st.conflicts) > 0 {
		sb.WriteString("\n\nConflictos de agenda detectados para la franja solicitada:\n")
		for _, e := range st.conflicts {
			fmt.Fprintf(&sb, "- %s (%s)\n", e.Title, formatConflictWindow(e))
		}
		sb.WriteString("No crees el evento: informa del conflicto y propón una alternativa libre.")
		if st.window != nil {
			alt := proposeAlternative(st.conflicts, st.window)
			fmt.Fprintf(&sb, " La primera franja libre empieza a las %s.", alt.Format("15:04"))
		}
	}
	if devMode {
		sb.WriteString("\n\n[dev] Modo desarrollo activo; las herramientas pueden devolver datos simulados.")
	}
	return sb.String()
}

func formatConflictWindow(e store.Event) string {
	start := e.StartAt.Format("02/01/2006 15:04")
	if e.EndAt == nil {
		return start
	}
	return start + "–" + e.EndAt.Format("15:04")
}

// proposeAlternative finds the first free hour after the conflicting
// window, used to enrich the conflict answer deterministically.
func proposeAlternative(conflicts []store.Event, w *window) time.Time {
	latest := w.end
	for _, e := range conflicts {
		end := e.StartAt.Add(time.Hour)
		if e.EndAt != nil {
			end = *e.EndAt
		}
		if end.After(latest) {
			latest = end
		}
	}
	return latest
}
