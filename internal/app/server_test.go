package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		MockMode: true,
		Qdrant:   config.QdrantConfig{Collection: "test", Dimensions: 64},
		Agent:    config.AgentConfig{MaxIterations: 5, TopK: 6, RequestTimeoutSeconds: 10, ToolTimeoutSeconds: 5},
		Policy:   config.PolicyConfig{WorkingHoursStart: 9, WorkingHoursEnd: 19, MaxLookaheadDays: 90},
		Cache:    config.CacheConfig{Enabled: true, TTLSeconds: 3600, MaxSize: 100},
	}
}

func newTestServer(t *testing.T) (*Server, *App) {
	t.Helper()
	container, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(container.Close)
	return NewServer(container), container
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["mock_mode"])
}

func TestListTools(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	names := make([]string, len(body.Tools))
	for i, tool := range body.Tools {
		names[i] = tool.Name
	}
	for _, want := range []string{
		"list_agenda_events", "create_calendar_event", "confirm_agenda_event",
		"search_emails", "read_email", "send_email", "send_whatsapp",
		"list_calendly_events", "create_calendly_event", "ingest_calendly_events",
		"extract_urls", "scrape_web_content", "scrape_news_for_events",
	} {
		assert.Contains(t, names, want)
	}
}

func TestTextEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/text",
		strings.NewReader(`{"query":"hola, ¿qué tal?"}`))
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Text      string   `json:"text"`
		Citations []string `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Text)
	assert.NotNil(t, body.Citations)
}

func TestDuplicateWebhookDeliveries(t *testing.T) {
	srv, container := newTestServer(t)

	form := url.Values{}
	form.Set("MessageSid", "SM-dup-1")
	form.Set("From", "whatsapp:+34600111222")
	form.Set("To", "whatsapp:+34911222333")
	form.Set("Body", "Hola")

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "delivery %d must be acknowledged", i+1)
	}

	mem := container.Store.(*store.Memory)
	msg, ok := mem.MessageBySID("SM-dup-1")
	require.True(t, ok)
	assert.Equal(t, "Hola", msg.Body)

	// Give the async analysis a moment; only one row may ever exist.
	time.Sleep(50 * time.Millisecond)
	_, second := mem.MessageBySID("SM-dup-1")
	assert.True(t, second)
}

func TestEventApprovalFlow(t *testing.T) {
	srv, container := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events/suggest",
		strings.NewReader(`{"title":"Conferencia Go","start":"2026-09-01T10:00:00+02:00","end":"2026-09-01T11:00:00+02:00","source":"news"}`))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created store.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, store.StatusSuggested, created.Status)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/"+created.ID+"/approve", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var approved struct {
		Event           store.Event `json:"event"`
		ProviderEventID string      `json:"provider_event_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	assert.Equal(t, store.StatusCreated, approved.Event.Status)
	require.NotEmpty(t, approved.ProviderEventID)

	mem := container.Store.(*store.Memory)
	_, ok := mem.CalendarEventByID("local", approved.ProviderEventID)
	assert.True(t, ok, "approval must materialise a calendar event")

	// created is terminal: a late reject must fail.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/"+created.ID+"/reject", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectEvent(t *testing.T) {
	srv, container := newTestServer(t)
	mem := container.Store.(*store.Memory)

	event := store.Event{
		ID: store.NewEventID(), Title: "Dudoso", Source: "news",
		StartAt: time.Now().Add(48 * time.Hour), Status: store.StatusSuggested,
	}
	require.NoError(t, mem.InsertEvent(context.Background(), event, "test"))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/"+event.ID+"/reject", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := mem.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRejected, got.Status)
}

func TestRejectUnknownEventIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/nope/reject", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
