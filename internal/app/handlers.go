package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/conversation"
	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/orchestrator"
	"github.com/ivanintech/concierge/internal/store"
	"github.com/ivanintech/concierge/internal/tools"
	"github.com/ivanintech/concierge/internal/webhook"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	health := map[string]any{
		"status":       "ok",
		"mock_mode":    s.app.Cfg.MockMode,
		"mcp_sessions": s.app.MCP.ActiveSessions(),
	}
	if err := s.app.Store.Ping(ctx); err != nil {
		health["status"] = "degraded"
		health["store"] = err.Error()
	}
	respondJSON(w, http.StatusOK, health)
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	schemas := s.app.Registry.Schemas(nil)
	out := make([]map[string]any, len(schemas))
	for i, sc := range schemas {
		out[i] = map[string]any{
			"name":        sc.Name,
			"description": sc.Description,
			"parameters":  sc.Parameters,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.app.Metrics.Snapshot())
}

type textRequest struct {
	Query             string `json:"query"`
	TopK              int    `json:"top_k,omitempty"`
	ConfirmationToken string `json:"confirmation_token,omitempty"`
	ChatHistory       []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"chat_history,omitempty"`
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	history := make([]llm.Message, 0, len(req.ChatHistory))
	for _, m := range req.ChatHistory {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	ctx, cancel := context.WithTimeout(r.Context(),
		time.Duration(s.app.Cfg.Agent.RequestTimeoutSeconds)*time.Second)
	defer cancel()

	result := s.app.Orch.Run(ctx, orchestrator.Request{
		Query:             req.Query,
		ChatHistory:       history,
		TopK:              req.TopK,
		ConfirmationToken: req.ConfirmationToken,
	}, nil)

	respondJSON(w, http.StatusOK, map[string]any{
		"text":      result.Response,
		"citations": result.Citations,
		"debug": map[string]any{
			"intent":        result.Intent,
			"agent_code":    result.AgentCode,
			"iterations":    result.Iterations,
			"refused":       result.Refused,
			"tool_calls":    result.ToolCalls,
			"stage_timings": timingsMS(result.StageTimings),
		},
	})
}

func timingsMS(in map[string]time.Duration) map[string]int64 {
	out := make(map[string]int64, len(in))
	for stage, d := range in {
		out[stage] = d.Milliseconds()
	}
	return out
}

func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	res := s.app.Facade.Execute(r.Context(), "send_email", body)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, res)
}

func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if token := s.app.Cfg.WhatsApp.AuthToken; token != "" {
		callbackURL := callbackURL(r)
		if !webhook.ValidateTwilio(r.Header.Get("X-Twilio-Signature"), callbackURL, r.PostForm, token) {
			respondJSON(w, http.StatusForbidden, map[string]string{"error": "signature mismatch"})
			return
		}
	}

	msg := conversationMessage(r)
	if msg.SID == "" || msg.Body == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "MessageSid and Body are required"})
		return
	}

	// The provider's delivery SLA is a few seconds; persistence is the
	// only synchronous work, analysis continues in the background.
	duplicate, err := s.app.Processor.Ingest(r.Context(), msg)
	if err != nil {
		// Acknowledge anyway so the provider does not hammer retries; the
		// failure is logged and audit-trailed.
		log.Error().Err(err).Str("sid", msg.SID).Msg("webhook_ingest_failed")
		_ = s.app.Store.Audit(r.Context(), "webhook_ingest_failed", "agent", map[string]string{"sid": msg.SID, "error": err.Error()})
	}
	respondJSON(w, http.StatusOK, map[string]any{"accepted": true, "duplicate": duplicate})
}

func (s *Server) handleCalendlyWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if secret := s.app.Cfg.Calendly.WebhookSecret; secret != "" {
		if !webhook.ValidateHMAC(r.Header.Get("Calendly-Webhook-Signature"), body, secret) {
			respondJSON(w, http.StatusForbidden, map[string]string{"error": "signature mismatch"})
			return
		}
	}

	var payload struct {
		Event   string `json:"event"`
		Payload struct {
			ScheduledEvent struct {
				Name      string    `json:"name"`
				StartTime time.Time `json:"start_time"`
				EndTime   time.Time `json:"end_time"`
			} `json:"scheduled_event"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	if payload.Event == "invitee.created" && payload.Payload.ScheduledEvent.Name != "" {
		end := payload.Payload.ScheduledEvent.EndTime
		err := s.app.Store.InsertEvent(r.Context(), store.Event{
			ID:         store.NewEventID(),
			Source:     "calendly",
			Title:      payload.Payload.ScheduledEvent.Name,
			StartAt:    payload.Payload.ScheduledEvent.StartTime,
			EndAt:      &end,
			Status:     store.StatusConfirmed,
			Confidence: 1,
			CreatedAt:  time.Now(),
		}, "user")
		if err != nil {
			log.Error().Err(err).Msg("calendly_event_insert_failed")
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.app.Store.UpcomingEvents(r.Context(), time.Now(), 50)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleSuggestEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string  `json:"title"`
		Start  string  `json:"start"`
		End    string  `json:"end,omitempty"`
		Source string  `json:"source,omitempty"`
		Score  float64 `json:"relevance_score,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	start, err := tools.ParseEventTime(req.Start)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	event := store.Event{
		ID:        store.NewEventID(),
		Source:    strings.TrimSpace(req.Source),
		Title:     req.Title,
		StartAt:   start,
		Status:    store.StatusSuggested,
		CreatedAt: time.Now(),
	}
	if event.Source == "" {
		event.Source = "user"
	}
	if req.End != "" {
		end, err := tools.ParseEventTime(req.End)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		event.EndAt = &end
	}
	if req.Score > 0 {
		event.Relevance = &req.Score
	}
	if err := s.app.Store.InsertEvent(r.Context(), event, "user"); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, event)
}

// handleApproveEvent walks the event forward to created and materialises
// the calendar entry.
func (s *Server) handleApproveEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	event, err := s.app.Store.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if event.Status == store.StatusProposed || event.Status == store.StatusSuggested {
		if event, err = s.app.Store.UpdateEventStatus(r.Context(), id, store.StatusConfirmed, "user"); err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
	}
	event, err = s.app.Store.UpdateEventStatus(r.Context(), id, store.StatusCreated, "user")
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	provider := tools.LocalCalendar{}
	providerID, err := provider.CreateEvent(r.Context(), event)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	end := event.StartAt.Add(time.Hour)
	if event.EndAt != nil {
		end = *event.EndAt
	}
	if err := s.app.Store.InsertCalendarEvent(r.Context(), store.CalendarEvent{
		Provider:        provider.ProviderName(),
		ProviderEventID: providerID,
		Title:           event.Title,
		StartAt:         event.StartAt,
		EndAt:           end,
		Status:          "confirmed",
		LastSyncAt:      time.Now(),
	}); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"event": event, "provider_event_id": providerID})
}

func (s *Server) handleRejectEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	event, err := s.app.Store.UpdateEventStatus(r.Context(), id, store.StatusRejected, "user")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, err)
			return
		}
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"event": event})
}

func conversationMessage(r *http.Request) (msg conversation.InboundMessage) {
	msg.SID = r.PostFormValue("MessageSid")
	msg.From = r.PostFormValue("From")
	msg.To = r.PostFormValue("To")
	msg.Body = r.PostFormValue("Body")
	msg.ReceivedAt = time.Now()
	return msg
}

func callbackURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
