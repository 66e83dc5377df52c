package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivanintech/concierge/internal/faults"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
	message_sid     TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	from_addr       TEXT NOT NULL,
	to_addr         TEXT NOT NULL,
	body            TEXT NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL,
	processed       BOOLEAN NOT NULL DEFAULT FALSE,
	event_extracted BOOLEAN NOT NULL DEFAULT FALSE,
	linked_event_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages (conversation_id, received_at);

CREATE TABLE IF NOT EXISTS extracted_events (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	title      TEXT NOT NULL,
	start_at   TIMESTAMPTZ NOT NULL,
	end_at     TIMESTAMPTZ,
	timezone   TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	attendees  TEXT[] NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	relevance  DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_events_window ON extracted_events (start_at, end_at);

CREATE TABLE IF NOT EXISTS calendar_events (
	provider          TEXT NOT NULL,
	provider_event_id TEXT NOT NULL,
	calendar_id       TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL,
	start_at          TIMESTAMPTZ NOT NULL,
	end_at            TIMESTAMPTZ NOT NULL,
	status            TEXT NOT NULL,
	last_sync_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider, provider_event_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	actor      TEXT NOT NULL,
	payload    JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pgx pool and ensures the tables exist.
func NewPostgres(ctx context.Context, url string) (Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, faults.Wrap(faults.Config, err, "connect postgres")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, faults.Wrap(faults.Config, err, "ensure schema")
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) InsertMessage(ctx context.Context, m Message) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_messages
			(message_sid, conversation_id, from_addr, to_addr, body, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_sid) DO NOTHING`,
		m.SID, m.ConversationID, m.From, m.To, m.Body, m.ReceivedAt)
	if err != nil {
		return false, faults.Wrap(faults.Transport, err, "insert message")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgStore) LastMessages(ctx context.Context, conversationID string, n int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_sid, conversation_id, from_addr, to_addr, body, received_at,
		       processed, event_extracted, linked_event_id
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY received_at DESC
		LIMIT $2`, conversationID, n)
	if err != nil {
		return nil, faults.Wrap(faults.Transport, err, "query messages")
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.SID, &m.ConversationID, &m.From, &m.To, &m.Body, &m.ReceivedAt,
			&m.Processed, &m.EventExtracted, &m.LinkedEventID); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	// Oldest first for prompt assembly.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, rows.Err()
}

func (s *pgStore) UnprocessedConversations(ctx context.Context) ([]string, error) {
	return s.conversationIDs(ctx, `
		SELECT DISTINCT conversation_id FROM conversation_messages WHERE processed = FALSE`)
}

func (s *pgStore) AllConversations(ctx context.Context) ([]string, error) {
	return s.conversationIDs(ctx, `
		SELECT DISTINCT conversation_id FROM conversation_messages`)
}

func (s *pgStore) conversationIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, faults.Wrap(faults.Transport, err, "query conversations")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pgStore) MarkProcessed(ctx context.Context, sid string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversation_messages SET processed = TRUE WHERE message_sid = $1`, sid)
	return faults.Wrap(faults.Transport, err, "mark processed")
}

func (s *pgStore) MarkEventExtracted(ctx context.Context, sid, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversation_messages
		SET event_extracted = TRUE, linked_event_id = $2, processed = TRUE
		WHERE message_sid = $1`, sid, eventID)
	return faults.Wrap(faults.Transport, err, "mark event extracted")
}

func (s *pgStore) InsertEvent(ctx context.Context, e Event, actor string) error {
	if e.EndAt != nil && e.EndAt.Before(e.StartAt) {
		return faults.New(faults.Internal, "event ends before it starts")
	}
	if e.Attendees == nil {
		e.Attendees = []string{}
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return faults.Wrap(faults.Transport, err, "begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO extracted_events
			(id, source, title, start_at, end_at, timezone, location, attendees, status, confidence, relevance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Source, e.Title, e.StartAt, e.EndAt, e.Timezone, e.Location, e.Attendees,
		e.Status, e.Confidence, e.Relevance, e.CreatedAt); err != nil {
		return faults.Wrap(faults.Transport, err, "insert event")
	}
	if err := auditTx(ctx, tx, "event_insert", actor, marshalPayload(e)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgStore) GetEvent(ctx context.Context, id string) (Event, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source, title, start_at, end_at, timezone, location, attendees, status, confidence, relevance, created_at
		FROM extracted_events WHERE id = $1`, id)
	return scanEvent(row)
}

func (s *pgStore) UpdateEventStatus(ctx context.Context, id, status, actor string) (Event, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Event{}, faults.Wrap(faults.Transport, err, "begin")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, source, title, start_at, end_at, timezone, location, attendees, status, confidence, relevance, created_at
		FROM extracted_events WHERE id = $1 FOR UPDATE`, id)
	e, err := scanEvent(row)
	if err != nil {
		return Event{}, err
	}
	if !ValidTransition(e.Status, status) {
		return Event{}, faults.Newf(faults.Application, "invalid status transition %s -> %s", e.Status, status)
	}
	if _, err := tx.Exec(ctx, `UPDATE extracted_events SET status = $2 WHERE id = $1`, id, status); err != nil {
		return Event{}, faults.Wrap(faults.Transport, err, "update status")
	}
	if err := auditTx(ctx, tx, "event_status_"+status, actor,
		marshalPayload(map[string]string{"event_id": id, "from": e.Status, "to": status})); err != nil {
		return Event{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Event{}, faults.Wrap(faults.Transport, err, "commit")
	}
	e.Status = status
	return e, nil
}

func (s *pgStore) UpcomingEvents(ctx context.Context, from time.Time, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, title, start_at, end_at, timezone, location, attendees, status, confidence, relevance, created_at
		FROM extracted_events
		WHERE start_at >= $1 AND status NOT IN ($2, $3)
		ORDER BY start_at ASC
		LIMIT $4`, from, StatusRejected, StatusProposed, limit)
	if err != nil {
		return nil, faults.Wrap(faults.Transport, err, "query upcoming")
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *pgStore) OverlappingEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, title, start_at, end_at, timezone, location, attendees, status, confidence, relevance, created_at
		FROM extracted_events
		WHERE status NOT IN ($3, $4)
		  AND start_at < $2
		  AND COALESCE(end_at, start_at + interval '1 hour') > $1
		ORDER BY start_at ASC`, from, to, StatusRejected, StatusProposed)
	if err != nil {
		return nil, faults.Wrap(faults.Transport, err, "query overlapping")
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *pgStore) InsertCalendarEvent(ctx context.Context, ce CalendarEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calendar_events
			(provider, provider_event_id, calendar_id, title, start_at, end_at, status, last_sync_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, provider_event_id) DO UPDATE
		SET title = EXCLUDED.title, start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
		    status = EXCLUDED.status, last_sync_at = EXCLUDED.last_sync_at`,
		ce.Provider, ce.ProviderEventID, ce.CalendarID, ce.Title, ce.StartAt, ce.EndAt, ce.Status, ce.LastSyncAt)
	return faults.Wrap(faults.Transport, err, "insert calendar event")
}

func (s *pgStore) Audit(ctx context.Context, action, actor string, payload any) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, action, actor, payload) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), action, actor, marshalPayload(payload))
	return faults.Wrap(faults.Transport, err, "audit")
}

func auditTx(ctx context.Context, tx pgx.Tx, action, actor string, payload []byte) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO audit_log (id, action, actor, payload) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), action, actor, payload)
	return faults.Wrap(faults.Transport, err, "audit")
}

func (s *pgStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *pgStore) Close() { s.pool.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Source, &e.Title, &e.StartAt, &e.EndAt, &e.Timezone, &e.Location,
		&e.Attendees, &e.Status, &e.Confidence, &e.Relevance, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, faults.Wrap(faults.Transport, err, "scan event")
	}
	return e, nil
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
