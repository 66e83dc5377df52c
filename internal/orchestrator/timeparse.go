package orchestrator

import (
	"regexp"
	"strings"
	"time"
)

// window is a concrete time span mentioned in a query.
type window struct {
	start time.Time
	end   time.Time
}

var weekdaysByName = map[string]time.Weekday{
	"lunes": time.Monday, "monday": time.Monday,
	"martes": time.Tuesday, "tuesday": time.Tuesday,
	"miércoles": time.Wednesday, "miercoles": time.Wednesday, "wednesday": time.Wednesday,
	"jueves": time.Thursday, "thursday": time.Thursday,
	"viernes": time.Friday, "friday": time.Friday,
	"sábado": time.Saturday, "sabado": time.Saturday, "saturday": time.Saturday,
	"domingo": time.Sunday, "sunday": time.Sunday,
}

var (
	hourPatternES = regexp.MustCompile(`(?i)a\s+las?\s+(\d{1,2})(?::(\d{2}))?`)
	hourPatternEN = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
)

// parseWindow extracts the time window a query refers to. Spanish and
// English day words are understood; a bare "mañana" means tomorrow unless
// it follows "por la" / "de la" (then it is the morning). The default
// duration is one hour.
func parseWindow(query string, now time.Time) *window {
	q := strings.ToLower(query)

	day, dayFound := parseDay(q, now)

	hour, minute, hourFound := parseHour(q)
	if !dayFound && !hourFound {
		return nil
	}
	if !dayFound {
		day = now
		// A bare hour earlier than the current time means the next day.
		if hour < now.Hour() {
			day = now.AddDate(0, 0, 1)
		}
	}
	if !hourFound {
		// Whole-day window.
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
		return &window{start: start, end: start.AddDate(0, 0, 1)}
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	return &window{start: start, end: start.Add(time.Hour)}
}

func parseDay(q string, now time.Time) (time.Time, bool) {
	if strings.Contains(q, "pasado mañana") || strings.Contains(q, "pasado manana") ||
		strings.Contains(q, "day after tomorrow") {
		return now.AddDate(0, 0, 2), true
	}
	if containsTomorrow(q) {
		return now.AddDate(0, 0, 1), true
	}
	if strings.Contains(q, "hoy") || strings.Contains(q, "today") {
		return now, true
	}
	for name, wd := range weekdaysByName {
		if !containsWord(q, name) {
			continue
		}
		days := int(wd-now.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		return now.AddDate(0, 0, days), true
	}
	return time.Time{}, false
}

// containsTomorrow accepts "mañana" as a day word but not as part of
// "por la mañana" / "de la mañana" (the morning).
func containsTomorrow(q string) bool {
	if strings.Contains(q, "tomorrow") {
		return true
	}
	for _, variant := range []string{"mañana", "manana"} {
		idx := strings.Index(q, variant)
		for idx >= 0 {
			before := q[:idx]
			if !strings.HasSuffix(strings.TrimSpace(before), "por la") &&
				!strings.HasSuffix(strings.TrimSpace(before), "de la") {
				return true
			}
			next := strings.Index(q[idx+len(variant):], variant)
			if next < 0 {
				break
			}
			idx = idx + len(variant) + next
		}
	}
	return false
}

func parseHour(q string) (hour, minute int, ok bool) {
	if m := hourPatternES.FindStringSubmatch(q); m != nil {
		return atoi(m[1]), atoi(m[2]), true
	}
	if m := hourPatternEN.FindStringSubmatch(q); m != nil {
		h := atoi(m[1])
		if strings.EqualFold(m[3], "pm") && h < 12 {
			h += 12
		}
		if strings.EqualFold(m[3], "am") && h == 12 {
			h = 0
		}
		return h, atoi(m[2]), true
	}
	return 0, 0, false
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func containsWord(q, word string) bool {
	idx := strings.Index(q, word)
	for idx >= 0 {
		beforeOK := idx == 0 || !isLetter(q[idx-1])
		afterIdx := idx + len(word)
		afterOK := afterIdx >= len(q) || !isLetter(q[afterIdx])
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(q[afterIdx:], word)
		if next < 0 {
			return false
		}
		idx = afterIdx + next
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
