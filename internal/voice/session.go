package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/faults"
	"github.com/ivanintech/concierge/internal/metrics"
	"github.com/ivanintech/concierge/internal/orchestrator"
)

// Config tunes one session.
type Config struct {
	MinTranscriptionChars int
	FirstChunkTimeout     time.Duration
	SampleRate            int
	RequestTimeout        time.Duration
}

// Session is one full-duplex voice connection. A reader loop and a writer
// goroutine communicate through a bounded channel; at most one request is
// running per session, and an interrupt frame cancels it mid-flight.
type Session struct {
	conn  *websocket.Conn
	orch  *orchestrator.Orchestrator
	stt   Transcriber
	tts   Speaker
	stats *metrics.Service
	cfg   Config

	out     chan any
	runSlot chan struct{}

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

func NewSession(conn *websocket.Conn, orch *orchestrator.Orchestrator, stt Transcriber, tts Speaker, stats *metrics.Service, cfg Config) *Session {
	if cfg.MinTranscriptionChars <= 0 {
		cfg.MinTranscriptionChars = 3
	}
	if cfg.FirstChunkTimeout <= 0 {
		cfg.FirstChunkTimeout = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Session{
		conn:    conn,
		orch:    orch,
		stt:     stt,
		tts:     tts,
		stats:   stats,
		cfg:     cfg,
		out:     make(chan any, 64),
		runSlot: make(chan struct{}, 1),
	}
}

// Run services the connection until the client disconnects or ctx ends.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		s.writeLoop()
	}()

	s.emit(EventBackendReady, map[string]any{"sample_rate": s.cfg.SampleRate})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg(EventClientGone)
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendControl(controlFrame{Type: "error", Message: "malformed frame"})
			continue
		}

		switch {
		case frame.Type == "interrupt", frame.Type == "cancel":
			// Interrupt jumps the queue: in-flight LLM, tool, and TTS work
			// is abandoned and nothing partial is committed.
			s.interrupt()
		case frame.Mode == "text" && frame.Text != "":
			s.dispatch(ctx, nil, frame.Text)
		case frame.Mode == "audio" && frame.AudioBase64 != "":
			audio, err := base64.StdEncoding.DecodeString(frame.AudioBase64)
			if err != nil {
				s.sendControl(controlFrame{Type: "error", Message: "invalid audio encoding"})
				continue
			}
			s.dispatch(ctx, audio, "")
		}
	}

	s.interrupt()
	close(s.out)
	writerWG.Wait()
}

func (s *Session) writeLoop() {
	for frame := range s.out {
		var err error
		switch v := frame.(type) {
		case []byte:
			err = s.conn.WriteMessage(websocket.BinaryMessage, v)
		default:
			err = s.conn.WriteJSON(v)
		}
		if err != nil {
			log.Debug().Err(err).Msg("voice_write_failed")
			return
		}
	}
}

// dispatch starts a request unless one is already running; a busy session
// rejects the frame with a backend_busy event (barge-in is the explicit
// interrupt frame).
func (s *Session) dispatch(ctx context.Context, audio []byte, text string) {
	select {
	case s.runSlot <- struct{}{}:
	default:
		s.emit(EventBackendBusy, nil)
		return
	}
	go func() {
		defer func() { <-s.runSlot }()
		s.handleRequest(ctx, audio, text)
	}()
}

func (s *Session) handleRequest(parent context.Context, audio []byte, text string) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RequestTimeout)
	defer cancel()
	s.setCancel(cancel)
	defer s.setCancel(nil)

	started := time.Now()

	query := text
	if len(audio) > 0 {
		s.emit(EventSTTStarted, map[string]any{"bytes": len(audio)})
		sttStart := time.Now()
		transcript, err := s.stt.Transcribe(ctx, audio)
		if err != nil {
			log.Error().Err(err).Msg("stt_failed")
			s.emit(EventAgentError, map[string]any{"stage": "stt", "error": err.Error()})
			s.sendControl(controlFrame{Type: "error", Message: "no he podido transcribir el audio"})
			return
		}
		s.observe(metrics.SegmentSTT, time.Since(sttStart))
		s.emit(EventSTTCompleted, map[string]any{"text": transcript})
		query = transcript
	}

	if Nonsense(query, s.cfg.MinTranscriptionChars) {
		s.sendControl(controlFrame{Type: "cancel", Reason: "message_no_sense"})
		return
	}

	s.emit(EventAgentStarted, map[string]any{"query_chars": len(query)})
	agentStart := time.Now()
	result := s.orch.Run(ctx, orchestrator.Request{Query: query}, s.forwardEvent)
	s.observe(metrics.SegmentAgent, time.Since(agentStart))

	if ctx.Err() != nil {
		// Interrupted or timed out: nothing is spoken, nothing committed.
		return
	}

	s.speak(ctx, result.Response)
	if ctx.Err() != nil {
		return
	}
	s.sendControl(controlFrame{Type: "complete"})
	s.observe(metrics.SegmentEndToEnd, time.Since(started))
}

// speak streams TTS for the response. When the primary backend produces
// no chunk within the first-chunk timeout, the session signals the client
// to fall back (e.g. to browser-native synthesis) and stops; no third
// backend is attempted.
func (s *Session) speak(parent context.Context, text string) {
	if text == "" || s.tts == nil {
		return
	}
	s.emit(EventTTSStarted, map[string]any{"chars": len(text)})

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ttsStart := time.Now()
	var once sync.Once
	firstChunk := make(chan struct{})

	watchdog := time.AfterFunc(s.cfg.FirstChunkTimeout, func() {
		select {
		case <-firstChunk:
		default:
			s.emit(EventTTSError, map[string]any{"error": "first chunk timeout"})
			s.emit(EventFallback, map[string]any{"fallback": "client"})
			cancel()
		}
	})
	defer watchdog.Stop()

	err := s.tts.Stream(ctx, text, func(chunk []byte) {
		once.Do(func() {
			close(firstChunk)
			s.observe(metrics.SegmentTTSFirstChunk, time.Since(ttsStart))
			s.emit(EventTTSFirstChunk, nil)
		})
		s.send(chunk)
	})
	if err != nil {
		if faults.KindOf(err) != faults.Cancelled {
			log.Error().Err(err).Msg("tts_failed")
			s.emit(EventTTSError, map[string]any{"error": err.Error()})
			s.emit(EventFallback, map[string]any{"fallback": "client"})
		}
		return
	}
	s.observe(metrics.SegmentTTS, time.Since(ttsStart))
	s.emit(EventTTSCompleted, nil)
}

func (s *Session) forwardEvent(event string, fields map[string]any) {
	s.emit(event, fields)
}

func (s *Session) interrupt() {
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()
}

func (s *Session) emit(event string, payload map[string]any) {
	s.send(newLogFrame(event, payload))
}

func (s *Session) sendControl(frame controlFrame) {
	s.send(frame)
}

// send enqueues a frame; when the writer has fallen behind badly the
// frame is dropped rather than stalling the whole session.
func (s *Session) send(frame any) {
	defer func() {
		// The outbound channel closes when the reader exits; a late tool
		// or TTS goroutine must not crash the process.
		_ = recover()
	}()
	select {
	case s.out <- frame:
	case <-time.After(time.Second):
		log.Warn().Msg("voice_outbound_queue_full")
	}
}

func (s *Session) observe(segment string, d time.Duration) {
	if s.stats != nil {
		s.stats.ObserveVoice(segment, d)
	}
}
