package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivanintech/concierge/internal/config"
)

// policyEngine applies the hard rules that run before any tool is
// reachable. A non-empty refusal short-circuits the graph straight to the
// response stage.
type policyEngine struct {
	cfg config.PolicyConfig
}

var destructiveVerbs = []string{
	"borra", "borrar", "borrando", "elimina", "eliminar", "eliminando",
	"cancela todas", "cancela todos", "delete", "deleting", "remove all", "wipe",
}

var bulkMarkers = []string{
	"todas", "todos", "all ", " all", "everything", "cada ",
}

func (p policyEngine) check(st *state) string {
	if refusal := p.checkDestructive(st); refusal != "" {
		return refusal
	}
	if st.window == nil {
		return ""
	}
	if st.intent != IntentScheduling && st.intent != IntentCalendar {
		return ""
	}
	if refusal := p.checkLookahead(st.now, st.window); refusal != "" {
		return refusal
	}
	if st.intent == IntentScheduling {
		if refusal := p.checkWorkingHours(st.window); refusal != "" {
			return refusal
		}
	}
	return ""
}

// checkDestructive refuses bulk destructive requests that arrive without
// an explicit confirmation token.
func (p policyEngine) checkDestructive(st *state) string {
	q := strings.ToLower(st.query)
	destructive := false
	for _, verb := range destructiveVerbs {
		if strings.Contains(q, verb) {
			destructive = true
			break
		}
	}
	if !destructive {
		return ""
	}
	bulk := false
	for _, marker := range bulkMarkers {
		if strings.Contains(q, marker) {
			bulk = true
			break
		}
	}
	if !bulk {
		return ""
	}
	if st.confirmationToken() != "" {
		return ""
	}
	return "No puedo ejecutar acciones destructivas masivas sin una confirmación explícita. " +
		"Si de verdad quieres hacerlo, confírmalo y lo reviso contigo paso a paso."
}

func (p policyEngine) checkWorkingHours(w *window) string {
	// Whole-day windows carry no concrete hour to judge.
	if w.end.Sub(w.start) >= 24*time.Hour {
		return ""
	}
	if w.start.Hour() < p.cfg.WorkingHoursStart || w.start.Hour() >= p.cfg.WorkingHoursEnd {
		return fmt.Sprintf(
			"Solo agendo eventos dentro del horario laboral (%02d:00–%02d:00). "+
				"¿Quieres que busque un hueco dentro de ese horario?",
			p.cfg.WorkingHoursStart, p.cfg.WorkingHoursEnd)
	}
	return ""
}

func (p policyEngine) checkLookahead(now time.Time, w *window) string {
	max := now.AddDate(0, 0, p.cfg.MaxLookaheadDays)
	if w.start.After(max) {
		return fmt.Sprintf(
			"Esa fecha queda más allá del horizonte de planificación (%d días). "+
				"Puedo ayudarte con fechas más cercanas.", p.cfg.MaxLookaheadDays)
	}
	return ""
}

// confirmationToken lives on the state so policy stays a pure function of
// the request.
func (st *state) confirmationToken() string { return st.confirmToken }
