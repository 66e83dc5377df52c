package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
	"github.com/ivanintech/concierge/internal/store"
)

// CalendlyEvent is one scheduled event on the scheduling-link service.
type CalendlyEvent struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Location  string    `json:"location,omitempty"`
}

// CalendlyAPI abstracts the scheduling-link collaborator.
type CalendlyAPI interface {
	ListScheduledEvents(ctx context.Context) ([]CalendlyEvent, error)
	CreateSchedulingLink(ctx context.Context, eventType string) (url string, err error)
}

// CalendlyClient talks to the Calendly REST API.
type CalendlyClient struct {
	cfg    config.CalendlyConfig
	client *http.Client
}

func NewCalendlyClient(cfg config.CalendlyConfig, client *http.Client) *CalendlyClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &CalendlyClient{cfg: cfg, client: client}
}

func (c *CalendlyClient) ListScheduledEvents(ctx context.Context) ([]CalendlyEvent, error) {
	var out struct {
		Collection []CalendlyEvent `json:"collection"`
	}
	if err := c.do(ctx, http.MethodGet, "/scheduled_events", nil, &out); err != nil {
		return nil, err
	}
	return out.Collection, nil
}

func (c *CalendlyClient) CreateSchedulingLink(ctx context.Context, eventType string) (string, error) {
	body := map[string]any{"max_event_count": 1, "owner": eventType, "owner_type": "EventType"}
	var out struct {
		Resource struct {
			BookingURL string `json:"booking_url"`
		} `json:"resource"`
	}
	if err := c.do(ctx, http.MethodPost, "/scheduling_links", body, &out); err != nil {
		return "", err
	}
	return out.Resource.BookingURL, nil
}

func (c *CalendlyClient) do(ctx context.Context, method, path string, body, out any) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return faults.New(faults.Config, "calendly api key not configured")
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return faults.Wrap(faults.Transport, err, "calendly request")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return faults.Newf(faults.Application, "calendly: %s: %s", resp.Status, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListCalendlyEvents tool.
type ListCalendlyEvents struct {
	API CalendlyAPI
}

func (t *ListCalendlyEvents) Name() string { return "list_calendly_events" }

func (t *ListCalendlyEvents) Description() string {
	return "List events scheduled through the user's Calendly account."
}

func (t *ListCalendlyEvents) Schema() map[string]any {
	return objectSchema(map[string]any{})
}

func (t *ListCalendlyEvents) Execute(ctx context.Context, _ json.RawMessage) (Output, error) {
	events, err := t.API.ListScheduledEvents(ctx)
	if err != nil {
		return Output{}, err
	}
	return Output{Result: events}, nil
}

// CreateCalendlyEvent tool: produces a single-use scheduling link.
type CreateCalendlyEvent struct {
	API CalendlyAPI
}

func (t *CreateCalendlyEvent) Name() string { return "create_calendly_event" }

func (t *CreateCalendlyEvent) Description() string {
	return "Create a single-use Calendly scheduling link for an event type."
}

func (t *CreateCalendlyEvent) Schema() map[string]any {
	return objectSchema(map[string]any{
		"event_type": map[string]any{"type": "string", "description": "Calendly event type URI"},
	}, "event_type")
}

func (t *CreateCalendlyEvent) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || args.EventType == "" {
		return Output{}, faults.New(faults.Application, "event_type is required")
	}
	link, err := t.API.CreateSchedulingLink(ctx, args.EventType)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Result:        map[string]string{"booking_url": link},
		FormattedText: "Enlace de reserva: " + link,
	}, nil
}

// IngestCalendlyEvents pulls scheduled events into the event store as
// confirmed agenda entries.
type IngestCalendlyEvents struct {
	API   CalendlyAPI
	Store store.Store
}

func (t *IngestCalendlyEvents) Name() string { return "ingest_calendly_events" }

func (t *IngestCalendlyEvents) Description() string {
	return "Import scheduled Calendly events into the local agenda."
}

func (t *IngestCalendlyEvents) Schema() map[string]any {
	return objectSchema(map[string]any{})
}

func (t *IngestCalendlyEvents) Execute(ctx context.Context, _ json.RawMessage) (Output, error) {
	events, err := t.API.ListScheduledEvents(ctx)
	if err != nil {
		return Output{}, err
	}
	imported := 0
	for _, ce := range events {
		if !strings.EqualFold(ce.Status, "active") {
			continue
		}
		end := ce.EndTime
		err := t.Store.InsertEvent(ctx, store.Event{
			ID:         store.NewEventID(),
			Source:     "calendly",
			Title:      ce.Name,
			StartAt:    ce.StartTime,
			EndAt:      &end,
			Location:   ce.Location,
			Status:     store.StatusConfirmed,
			Confidence: 1,
			CreatedAt:  time.Now(),
		}, "agent")
		if err != nil {
			return Output{}, err
		}
		imported++
	}
	return Output{
		Result:        map[string]int{"imported": imported},
		FormattedText: fmt.Sprintf("Importados %d eventos de Calendly.", imported),
	}, nil
}
