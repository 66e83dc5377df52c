// Package conversation ingests webhook-delivered chat messages, persists
// them idempotently, and analyses each conversation with the orchestrator
// to surface latent agenda events.
package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/orchestrator"
	"github.com/ivanintech/concierge/internal/store"
	"github.com/ivanintech/concierge/internal/tools"
)

const defaultHistoryDepth = 10

// InboundMessage is one webhook delivery, already signature-verified.
type InboundMessage struct {
	SID        string
	From       string
	To         string
	Body       string
	ReceivedAt time.Time
}

// DedupeGuard answers whether a delivery is the first one for its SID.
// The SQL unique constraint stays the source of truth; the guard only
// spares duplicate agent invocations.
type DedupeGuard interface {
	FirstDelivery(ctx context.Context, sid string) bool
}

// RedisGuard implements DedupeGuard with a short-TTL SETNX.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(addr string) (*RedisGuard, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisGuard{client: c, ttl: 24 * time.Hour}, nil
}

func (g *RedisGuard) FirstDelivery(ctx context.Context, sid string) bool {
	ok, err := g.client.SetNX(ctx, "webhook:sid:"+sid, "1", g.ttl).Result()
	if err != nil {
		// On guard failure, lean on the SQL constraint and proceed.
		log.Warn().Err(err).Str("sid", sid).Msg("dedupe_guard_unavailable")
		return true
	}
	return ok
}

// NopGuard accepts every delivery as first; used when Redis is absent.
type NopGuard struct{}

func (NopGuard) FirstDelivery(context.Context, string) bool { return true }

type Processor struct {
	store        store.Store
	orch         *orchestrator.Orchestrator
	messenger    tools.Messenger
	guard        DedupeGuard
	historyDepth int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProcessor(st store.Store, orch *orchestrator.Orchestrator, messenger tools.Messenger, guard DedupeGuard) *Processor {
	if guard == nil {
		guard = NopGuard{}
	}
	return &Processor{
		store:        st,
		orch:         orch,
		messenger:    messenger,
		guard:        guard,
		historyDepth: defaultHistoryDepth,
		locks:        make(map[string]*sync.Mutex),
	}
}

// ConversationID derives the conversation key from the sender identity.
func ConversationID(from string) string {
	id := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(from)), "whatsapp:")
	return strings.ReplaceAll(id, " ", "")
}

// Ingest persists the message idempotently. It returns quickly so the
// webhook handler can acknowledge within the provider's SLA; analysis
// runs asynchronously when the delivery was fresh.
func (p *Processor) Ingest(ctx context.Context, msg InboundMessage) (duplicate bool, err error) {
	record := store.Message{
		SID:            msg.SID,
		ConversationID: ConversationID(msg.From),
		From:           msg.From,
		To:             msg.To,
		Body:           msg.Body,
		ReceivedAt:     msg.ReceivedAt,
	}
	inserted, err := p.store.InsertMessage(ctx, record)
	if err != nil {
		return false, err
	}
	if !inserted {
		log.Debug().Str("sid", msg.SID).Msg("duplicate_webhook_delivery")
		return true, nil
	}
	if !p.guard.FirstDelivery(ctx, msg.SID) {
		return true, nil
	}

	go func() {
		// Analysis outlives the webhook request; it gets its own deadline.
		actx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		p.Analyze(actx, record.ConversationID, msg.SID, true)
	}()
	return false, nil
}

// Analyze runs the orchestrator over the last N messages of one
// conversation. Analyses of the same conversation serialise; different
// conversations proceed in parallel. reply controls whether the outcome
// is sent back through the messenger.
func (p *Processor) Analyze(ctx context.Context, conversationID, triggerSID string, reply bool) {
	lock := p.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	msgs, err := p.store.LastMessages(ctx, conversationID, p.historyDepth)
	if err != nil || len(msgs) == 0 {
		if err != nil {
			log.Error().Err(err).Str("conversation", conversationID).Msg("load_conversation_failed")
		}
		return
	}

	latest := msgs[len(msgs)-1]
	if triggerSID == "" {
		triggerSID = latest.SID
	}
	history := make([]llm.Message, 0, len(msgs)-1)
	for _, m := range msgs[:len(msgs)-1] {
		history = append(history, llm.Message{Role: "user", Content: m.Body})
	}

	result := p.orch.Run(ctx, orchestrator.Request{
		Query:       latest.Body,
		ChatHistory: history,
		// Batch re-scans keep the original receipt time so late-discovered
		// events date from the conversation, not the re-run.
		Now: latest.ReceivedAt,
	}, nil)

	if eventID := extractedEventID(result.ToolResults); eventID != "" {
		if err := p.store.MarkEventExtracted(ctx, triggerSID, eventID); err != nil {
			log.Error().Err(err).Str("sid", triggerSID).Msg("mark_event_extracted_failed")
		}
	} else {
		for _, m := range msgs {
			if !m.Processed {
				if err := p.store.MarkProcessed(ctx, m.SID); err != nil {
					log.Error().Err(err).Str("sid", m.SID).Msg("mark_processed_failed")
				}
			}
		}
	}

	if reply && p.messenger != nil && result.Response != "" {
		if _, err := p.messenger.SendMessage(ctx, latest.From, result.Response); err != nil {
			log.Error().Err(err).Str("conversation", conversationID).Msg("reply_failed")
		}
	}
}

// Reprocess re-scans conversations: the unprocessed ones by default, all
// of them when all is true. Replies are suppressed during batch runs.
func (p *Processor) Reprocess(ctx context.Context, all bool) error {
	var ids []string
	var err error
	if all {
		ids, err = p.store.AllConversations(ctx)
	} else {
		ids, err = p.store.UnprocessedConversations(ctx)
	}
	if err != nil {
		return err
	}
	log.Info().Int("conversations", len(ids)).Bool("all", all).Msg("reprocess_start")
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p.Analyze(ctx, id, "", false)
	}
	return nil
}

func (p *Processor) lockFor(conversationID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.locks[conversationID]; ok {
		return l
	}
	l := &sync.Mutex{}
	p.locks[conversationID] = l
	return l
}

// extractedEventID finds the event id created or confirmed by a calendar
// tool in this run, if any.
func extractedEventID(results []tools.Result) string {
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if !r.Success {
			continue
		}
		switch r.ToolName {
		case "create_calendar_event", "confirm_agenda_event":
			var payload struct {
				EventID string `json:"event_id"`
			}
			if err := json.Unmarshal(r.Result, &payload); err == nil && payload.EventID != "" {
				return payload.EventID
			}
		}
	}
	return ""
}
