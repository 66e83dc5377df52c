// Package humanize applies deterministic rewrites to model output before
// it reaches a user surface: reasoning spans and preamble fragments go,
// opaque ids become titles, dates settle into one long form.
package humanize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/tools"
)

var defaultPreambles = []string{
	"Let me think",
	"Let me check",
	"We note that",
	"Okay, so",
	"Alright,",
	"Déjame pensar",
	"Vamos a ver,",
	"Veamos,",
}

var (
	eventIDPattern    = regexp.MustCompile(`\bevent_id[=:]\s*([A-Za-z0-9-]+)`)
	whitespacePattern = regexp.MustCompile(`[ \t]{2,}`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// monthsByName resolves "15 de diciembre de 2025" style expressions;
// English month names normalise through the same table.
var monthsByName = map[string]int{
	"enero": 1, "january": 1,
	"febrero": 2, "february": 2,
	"marzo": 3, "march": 3,
	"abril": 4, "april": 4,
	"mayo": 5, "may": 5,
	"junio": 6, "june": 6,
	"julio": 7, "july": 7,
	"agosto": 8, "august": 8,
	"septiembre": 9, "setiembre": 9, "september": 9,
	"octubre": 10, "october": 10,
	"noviembre": 11, "november": 11,
	"diciembre": 12, "december": 12,
}

var datePattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:de\s+|of\s+)?([a-záéíóú]+)\s+(?:de\s+|of\s+)?(\d{4})\b`)

type Humanizer struct {
	preambles []string
}

func New(extraPreambles ...string) *Humanizer {
	return &Humanizer{preambles: append(append([]string{}, defaultPreambles...), extraPreambles...)}
}

// Humanize cleans raw model text. When the final successful tool result
// carries formatted text, that body replaces or follows the model's own
// words. Humanize is idempotent: applying it twice changes nothing more.
func (h *Humanizer) Humanize(raw string, results []tools.Result) string {
	out := llm.StripReasoning(raw)
	out = h.dropPreamble(out)
	out = substituteEventIDs(out, results)
	out = normalizeDates(out)
	out = collapseWhitespace(out)

	if formatted := lastFormattedText(results); formatted != "" {
		if out == "" {
			return formatted
		}
		// Already carries the formatted body (including our own earlier
		// output); returning it unchanged keeps Humanize a fixpoint.
		if strings.Contains(out, formatted) {
			return out
		}
		// Keep the model text as a short prefix only when it adds something.
		if len(out) <= 160 {
			return out + "\n\n" + formatted
		}
		return formatted
	}
	return out
}

func (h *Humanizer) dropPreamble(s string) string {
	for changed := true; changed; {
		changed = false
		trimmed := strings.TrimLeft(s, " \n\t")
		for _, p := range h.preambles {
			if strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(p)) {
				rest := trimmed[len(p):]
				// Drop through the end of the clause the preamble opens.
				if idx := strings.IndexAny(rest, ".\n"); idx >= 0 {
					s = rest[idx+1:]
				} else {
					s = rest
				}
				s = strings.TrimLeft(s, " \n\t")
				changed = true
				break
			}
		}
	}
	return strings.TrimSpace(s)
}

// substituteEventIDs replaces "event_id=<n>" references with the matching
// tool-result title when one resolves.
func substituteEventIDs(s string, results []tools.Result) string {
	titles := titlesByEventID(results)
	if len(titles) == 0 {
		return s
	}
	return eventIDPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := eventIDPattern.FindStringSubmatch(match)
		if len(groups) == 2 {
			if title, ok := titles[groups[1]]; ok {
				return title
			}
		}
		return match
	})
}

func titlesByEventID(results []tools.Result) map[string]string {
	titles := map[string]string{}
	for _, r := range results {
		if !r.Success || len(r.Result) == 0 {
			continue
		}
		collectTitles(r.Result, titles)
	}
	return titles
}

func collectTitles(raw json.RawMessage, titles map[string]string) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		addTitle(obj, titles)
		return
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, obj := range list {
			addTitle(obj, titles)
		}
	}
}

func addTitle(obj map[string]any, titles map[string]string) {
	id, _ := obj["event_id"].(string)
	title, _ := obj["title"].(string)
	if id != "" && title != "" {
		titles[id] = title
	}
}

// normalizeDates rewrites "16 de diciembre de 2025" and "16 December
// 2025" to the consistent numeric long form 16/12/2025. Month-first forms
// such as "December 16 2025" are left unchanged.
func normalizeDates(s string) string {
	return datePattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := datePattern.FindStringSubmatch(match)
		if len(groups) != 4 {
			return match
		}
		month, ok := monthsByName[strings.ToLower(groups[2])]
		if !ok {
			return match
		}
		return fmt.Sprintf("%s/%02d/%s", pad2(groups[1]), month, groups[3])
	})
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func collapseWhitespace(s string) string {
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = blankLinesPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func lastFormattedText(results []tools.Result) string {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Success && results[i].FormattedText != "" {
			return results[i].FormattedText
		}
	}
	return ""
}
