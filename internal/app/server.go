package app

import (
	"encoding/json"
	"net/http"

	"github.com/ivanintech/concierge/internal/faults"
)

// Server exposes the HTTP surface over the container.
type Server struct {
	app *App
	mux *http.ServeMux
}

func NewServer(app *App) *Server {
	s := &Server{app: app, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /tools", s.handleListTools)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.mux.HandleFunc("POST /text", s.handleText)
	s.mux.HandleFunc("GET /voice", s.handleVoice)

	s.mux.HandleFunc("POST /calendly/webhook", s.handleCalendlyWebhook)
	s.mux.HandleFunc("POST /whatsapp/webhook", s.handleWhatsAppWebhook)

	s.mux.HandleFunc("POST /email/send", s.handleSendEmail)

	s.mux.HandleFunc("GET /events", s.handleListEvents)
	s.mux.HandleFunc("POST /events/suggest", s.handleSuggestEvent)
	s.mux.HandleFunc("POST /events/{id}/approve", s.handleApproveEvent)
	s.mux.HandleFunc("POST /events/{id}/reject", s.handleRejectEvent)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFromError(err error) int {
	switch faults.KindOf(err) {
	case faults.Application:
		return http.StatusConflict
	case faults.Policy:
		return http.StatusForbidden
	case faults.Cancelled:
		return http.StatusRequestTimeout
	case faults.Transport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
