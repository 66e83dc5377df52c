// Package store persists conversation messages, extracted events,
// materialised calendar events, and the audit log.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ivanintech/concierge/internal/faults"
)

// Event statuses. Transitions are forward-only:
// proposed|suggested -> confirmed -> created, or -> rejected at any point
// before created.
const (
	StatusProposed  = "proposed"
	StatusSuggested = "suggested"
	StatusConfirmed = "confirmed"
	StatusCreated   = "created"
	StatusRejected  = "rejected"
)

// Message is one inbound chat message, keyed by the provider's message
// SID for idempotency.
type Message struct {
	SID            string
	ConversationID string
	From           string
	To             string
	Body           string
	ReceivedAt     time.Time
	Processed      bool
	EventExtracted bool
	LinkedEventID  *string
}

// Event is an extracted or suggested agenda event.
type Event struct {
	ID         string
	Source     string
	Title      string
	StartAt    time.Time
	EndAt      *time.Time
	Timezone   string
	Location   string
	Attendees  []string
	Status     string
	Confidence float64
	Relevance  *float64
	CreatedAt  time.Time
}

// CalendarEvent mirrors a provider-side calendar entry, created when an
// Event reaches status "created".
type CalendarEvent struct {
	Provider        string
	ProviderEventID string
	CalendarID      string
	Title           string
	StartAt         time.Time
	EndAt           time.Time
	Status          string
	LastSyncAt      time.Time
}

type Store interface {
	// InsertMessage persists idempotently on SID; a duplicate delivery
	// reports inserted=false and no error.
	InsertMessage(ctx context.Context, m Message) (inserted bool, err error)
	LastMessages(ctx context.Context, conversationID string, n int) ([]Message, error)
	UnprocessedConversations(ctx context.Context) ([]string, error)
	AllConversations(ctx context.Context) ([]string, error)
	MarkProcessed(ctx context.Context, sid string) error
	MarkEventExtracted(ctx context.Context, sid, eventID string) error

	// InsertEvent writes the event and its audit record in one transaction.
	InsertEvent(ctx context.Context, e Event, actor string) error
	GetEvent(ctx context.Context, id string) (Event, error)
	// UpdateEventStatus enforces the forward-only transition rules.
	UpdateEventStatus(ctx context.Context, id, status, actor string) (Event, error)
	UpcomingEvents(ctx context.Context, from time.Time, limit int) ([]Event, error)
	OverlappingEvents(ctx context.Context, from, to time.Time) ([]Event, error)

	InsertCalendarEvent(ctx context.Context, ce CalendarEvent) error

	Audit(ctx context.Context, action, actor string, payload any) error
	Ping(ctx context.Context) error
	Close()
}

var statusRank = map[string]int{
	StatusProposed:  0,
	StatusSuggested: 0,
	StatusConfirmed: 1,
	StatusCreated:   2,
	StatusRejected:  2,
}

// ValidTransition reports whether from -> to respects the forward-only
// status machine. created and rejected are terminal.
func ValidTransition(from, to string) bool {
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == StatusCreated || from == StatusRejected {
		return false
	}
	if to == StatusRejected {
		return true
	}
	return tr == fr+1
}

// ErrNotFound is returned for lookups of absent rows.
var ErrNotFound = faults.New(faults.Application, "not found")

func marshalPayload(payload any) []byte {
	if payload == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return b
}
