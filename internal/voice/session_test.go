package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/dispatch"
	"github.com/ivanintech/concierge/internal/humanize"
	"github.com/ivanintech/concierge/internal/llm"
	"github.com/ivanintech/concierge/internal/orchestrator"
	"github.com/ivanintech/concierge/internal/store"
	"github.com/ivanintech/concierge/internal/tools"
)

type textProvider struct{ answer string }

func (p textProvider) Chat(context.Context, []llm.Message, []llm.ToolSchema) (llm.Message, error) {
	return llm.Message{Role: "assistant", Content: p.answer}, nil
}

type chunkSpeaker struct{ chunks int }

func (s chunkSpeaker) Stream(ctx context.Context, _ string, onChunk func([]byte)) error {
	for i := 0; i < s.chunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		onChunk([]byte{0x01, 0x02, 0x03, 0x04})
	}
	return nil
}

func newVoiceTestServer(t *testing.T, tts Speaker) *httptest.Server {
	t.Helper()
	reg := tools.NewRegistry()
	facade := dispatch.New(nil, nil, reg, time.Second)
	orch := orchestrator.New(textProvider{answer: "Tienes la agenda libre."}, nil,
		store.NewMemory(), facade, reg, humanize.New(), nil,
		config.AgentConfig{MaxIterations: 3},
		config.PolicyConfig{WorkingHoursStart: 9, WorkingHoursEnd: 19, MaxLookaheadDays: 90},
		false)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		session := NewSession(conn, orch, nil, tts, nil, Config{
			MinTranscriptionChars: 3,
			FirstChunkTimeout:     time.Second,
			SampleRate:            24000,
			RequestTimeout:        5 * time.Second,
		})
		session.Run(r.Context())
	}))
	t.Cleanup(srv.Close)
	return srv
}

type received struct {
	events   []string
	controls []string
	binary   int
}

// collect reads frames until the wanted control type arrives or the
// deadline passes.
func collect(t *testing.T, conn *websocket.Conn, wantControl string, deadline time.Duration) received {
	t.Helper()
	var out received
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return out
		}
		if mt == websocket.BinaryMessage {
			out.binary++
			continue
		}
		var probe struct {
			Event string `json:"event"`
			Type  string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			continue
		}
		if probe.Event != "" {
			out.events = append(out.events, probe.Event)
		}
		if probe.Type != "" {
			out.controls = append(out.controls, probe.Type)
			if probe.Type == wantControl {
				return out
			}
		}
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestVoiceTextRequestCompletes(t *testing.T) {
	srv := newVoiceTestServer(t, chunkSpeaker{chunks: 3})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]string{"mode": "text", "text": "¿Qué tengo en la agenda?"}))
	got := collect(t, conn, "complete", 3*time.Second)

	assert.Contains(t, got.events, EventBackendReady)
	assert.Contains(t, got.events, EventAgentStarted)
	assert.Contains(t, got.events, orchestrator.EventResponseReady)
	assert.Contains(t, got.events, EventTTSStarted)
	assert.Contains(t, got.events, EventTTSFirstChunk)
	assert.Contains(t, got.events, EventTTSCompleted)
	assert.Contains(t, got.controls, "complete")
	assert.Equal(t, 3, got.binary)
}

func TestVoiceNonsenseTranscriptIsCancelled(t *testing.T) {
	srv := newVoiceTestServer(t, chunkSpeaker{chunks: 1})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]string{"mode": "text", "text": "eh"}))
	got := collect(t, conn, "cancel", 3*time.Second)

	assert.Contains(t, got.controls, "cancel")
	assert.NotContains(t, got.events, EventAgentStarted)
	assert.Zero(t, got.binary)
}
