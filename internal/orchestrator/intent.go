package orchestrator

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/llm"
)

// The rule pass matches a bilingual keyword lexicon per intent; order
// matters because scheduling verbs would otherwise be swallowed by the
// broader calendar vocabulary. The LLM fallback only runs when every rule
// abstains.
var intentLexicon = []struct {
	intent   string
	keywords []string
}{
	{IntentScheduling, []string{
		"agendar", "agenda una", "agenda reunión", "agenda reunion", "programa una",
		"programar", "quedar con", "schedule", "book a", "reunión con", "reunion con",
		"meeting with", "cita con", "hueco", "disponibilidad", "availability",
	}},
	{IntentEmail, []string{
		"email", "correo", "e-mail", "mail", "bandeja", "inbox", "asunto", "subject",
	}},
	{IntentComms, []string{
		"whatsapp", "mensaje a", "message to", "escribe a", "escríbele", "escribele",
		"text ", "contesta", "responde a",
	}},
	{IntentCalendar, []string{
		"agenda", "calendario", "calendar", "evento", "eventos", "cita", "citas",
		"qué tengo", "que tengo", "what do i have", "what's on", "próxima reunión",
		"proxima reunion", "upcoming",
	}},
}

type Classifier struct {
	provider llm.Provider
}

func NewClassifier(provider llm.Provider) *Classifier {
	return &Classifier{provider: provider}
}

// Classify runs the two-tier classifier and returns intent plus agent code.
func (c *Classifier) Classify(ctx context.Context, query string) (string, string) {
	if intent, ok := classifyByRules(query); ok {
		return intent, agentByIntent[intent]
	}
	intent := c.classifyByLLM(ctx, query)
	return intent, agentByIntent[intent]
}

func classifyByRules(query string) (string, bool) {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "
	for _, entry := range intentLexicon {
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				return entry.intent, true
			}
		}
	}
	return "", false
}

const classifyPrompt = `Classify the user request into exactly one of:
CALENDAR (asking what is on the agenda), EMAIL (reading or sending mail),
SCHEDULING (arranging a new meeting or slot), COMMS (sending a chat
message), GENERAL (anything else). Answer with the single word only.`

func (c *Classifier) classifyByLLM(ctx context.Context, query string) string {
	if c.provider == nil {
		return IntentGeneral
	}
	msg, err := c.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: classifyPrompt},
		{Role: "user", Content: query},
	}, nil)
	if err != nil {
		log.Warn().Err(err).Msg("intent_llm_fallback_failed")
		return IntentGeneral
	}
	word := strings.ToUpper(strings.TrimSpace(strings.Fields(msg.Content + " GENERAL")[0]))
	if _, ok := agentByIntent[word]; ok {
		return word
	}
	return IntentGeneral
}
