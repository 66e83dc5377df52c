package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivanintech/concierge/internal/faults"
)

// Memory is the in-process Store used in mock mode and tests. Semantics
// mirror the Postgres implementation, including idempotent message insert
// and the forward-only event status machine.
type Memory struct {
	mu        sync.RWMutex
	messages  map[string]*Message
	events    map[string]*Event
	calendars map[string]CalendarEvent
	audits    []auditEntry
}

type auditEntry struct {
	Action  string
	Actor   string
	Payload []byte
	At      time.Time
}

func NewMemory() *Memory {
	return &Memory{
		messages:  make(map[string]*Message),
		events:    make(map[string]*Event),
		calendars: make(map[string]CalendarEvent),
	}
}

func (s *Memory) InsertMessage(_ context.Context, m Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[m.SID]; exists {
		return false, nil
	}
	cp := m
	s.messages[m.SID] = &cp
	return true, nil
}

func (s *Memory) LastMessages(_ context.Context, conversationID string, n int) ([]Message, error) {
	s.mu.RLock()
	var msgs []Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, *m)
		}
	}
	s.mu.RUnlock()
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt) })
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (s *Memory) UnprocessedConversations(_ context.Context) ([]string, error) {
	return s.conversationIDs(func(m *Message) bool { return !m.Processed }), nil
}

func (s *Memory) AllConversations(_ context.Context) ([]string, error) {
	return s.conversationIDs(func(*Message) bool { return true }), nil
}

func (s *Memory) conversationIDs(keep func(*Message) bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var ids []string
	for _, m := range s.messages {
		if keep(m) && !seen[m.ConversationID] {
			seen[m.ConversationID] = true
			ids = append(ids, m.ConversationID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Memory) MarkProcessed(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[sid]; ok {
		m.Processed = true
	}
	return nil
}

func (s *Memory) MarkEventExtracted(_ context.Context, sid, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[sid]
	if !ok {
		return ErrNotFound
	}
	m.EventExtracted = true
	m.Processed = true
	id := eventID
	m.LinkedEventID = &id
	return nil
}

func (s *Memory) InsertEvent(_ context.Context, e Event, actor string) error {
	if e.EndAt != nil && e.EndAt.Before(e.StartAt) {
		return faults.New(faults.Internal, "event ends before it starts")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.events[e.ID] = &cp
	s.audits = append(s.audits, auditEntry{Action: "event_insert", Actor: actor, Payload: marshalPayload(e), At: time.Now()})
	return nil
}

func (s *Memory) GetEvent(_ context.Context, id string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.events[id]; ok {
		return *e, nil
	}
	return Event{}, ErrNotFound
}

func (s *Memory) UpdateEventStatus(_ context.Context, id, status, actor string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	if !ValidTransition(e.Status, status) {
		return Event{}, faults.Newf(faults.Application, "invalid status transition %s -> %s", e.Status, status)
	}
	e.Status = status
	s.audits = append(s.audits, auditEntry{Action: "event_status_" + status, Actor: actor, At: time.Now()})
	return *e, nil
}

func (s *Memory) UpcomingEvents(_ context.Context, from time.Time, limit int) ([]Event, error) {
	s.mu.RLock()
	var events []Event
	for _, e := range s.events {
		if !e.StartAt.Before(from) && e.Status != StatusRejected && e.Status != StatusProposed {
			events = append(events, *e)
		}
	}
	s.mu.RUnlock()
	sort.Slice(events, func(i, j int) bool { return events[i].StartAt.Before(events[j].StartAt) })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *Memory) OverlappingEvents(_ context.Context, from, to time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []Event
	for _, e := range s.events {
		if e.Status == StatusRejected || e.Status == StatusProposed {
			continue
		}
		end := e.StartAt.Add(time.Hour)
		if e.EndAt != nil {
			end = *e.EndAt
		}
		if e.StartAt.Before(to) && end.After(from) {
			events = append(events, *e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartAt.Before(events[j].StartAt) })
	return events, nil
}

func (s *Memory) InsertCalendarEvent(_ context.Context, ce CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars[ce.Provider+"/"+ce.ProviderEventID] = ce
	return nil
}

// CalendarEventByID reports the stored calendar row, for tests.
func (s *Memory) CalendarEventByID(provider, providerEventID string) (CalendarEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ce, ok := s.calendars[provider+"/"+providerEventID]
	return ce, ok
}

// MessageBySID reports the stored message, for tests.
func (s *Memory) MessageBySID(sid string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.messages[sid]; ok {
		return *m, true
	}
	return Message{}, false
}

func (s *Memory) Audit(_ context.Context, action, actor string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, auditEntry{Action: action, Actor: actor, Payload: marshalPayload(payload), At: time.Now()})
	return nil
}

// AuditCount reports recorded audit entries, for tests.
func (s *Memory) AuditCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audits)
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) Close() {}

// NewEventID mints an event id.
func NewEventID() string { return uuid.NewString() }
