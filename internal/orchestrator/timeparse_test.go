package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2025, 12, 15, 10, 0, 0, 0, time.FixedZone("CET", 3600))

func TestParseWindowTomorrowWithHour(t *testing.T) {
	w := parseWindow("Agenda reunión con Juan mañana a las 11", monday)
	require.NotNil(t, w)
	assert.Equal(t, time.Date(2025, 12, 16, 11, 0, 0, 0, monday.Location()), w.start)
	assert.Equal(t, time.Hour, w.end.Sub(w.start))
}

func TestParseWindowNextWeekday(t *testing.T) {
	w := parseWindow("El viernes a las 10", monday)
	require.NotNil(t, w)
	assert.Equal(t, time.Friday, w.start.Weekday())
	assert.Equal(t, 10, w.start.Hour())
	assert.Equal(t, time.Date(2025, 12, 19, 10, 0, 0, 0, monday.Location()), w.start)
}

func TestParseWindowSameWeekdayMeansNextWeek(t *testing.T) {
	w := parseWindow("el lunes a las 9", monday)
	require.NotNil(t, w)
	assert.Equal(t, time.Date(2025, 12, 22, 9, 0, 0, 0, monday.Location()), w.start)
}

func TestParseWindowTodayWholeDay(t *testing.T) {
	w := parseWindow("¿Qué tengo hoy?", monday)
	require.NotNil(t, w)
	assert.Equal(t, 24*time.Hour, w.end.Sub(w.start))
	assert.Equal(t, monday.Day(), w.start.Day())
}

func TestParseWindowMorningIsNotTomorrow(t *testing.T) {
	w := parseWindow("llámame por la mañana", monday)
	assert.Nil(t, w)
}

func TestParseWindowEnglishPM(t *testing.T) {
	w := parseWindow("schedule a call tomorrow at 3pm", monday)
	require.NotNil(t, w)
	assert.Equal(t, 15, w.start.Hour())
	assert.Equal(t, 16, w.start.Day())
}

func TestParseWindowNoSignal(t *testing.T) {
	assert.Nil(t, parseWindow("gracias por todo", monday))
}
