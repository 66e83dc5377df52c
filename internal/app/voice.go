package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/voice"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
	// Single-user system behind the operator's own deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("voice_upgrade_failed")
		return
	}
	defer conn.Close()

	var stt voice.Transcriber
	var tts voice.Speaker
	if !s.app.Cfg.MockMode {
		stt = voice.NewHTTPTranscriber(s.app.Cfg.STT, nil)
		tts = voice.NewHTTPSpeaker(s.app.Cfg.TTS, nil)
	} else {
		stt = mockTranscriber{}
	}

	session := voice.NewSession(conn, s.app.Orch, stt, tts, s.app.Metrics, voice.Config{
		MinTranscriptionChars: s.app.Cfg.Voice.MinTranscriptionChars,
		FirstChunkTimeout:     time.Duration(s.app.Cfg.TTS.FirstChunkTimeoutMS) * time.Millisecond,
		SampleRate:            s.app.Cfg.TTS.SampleRate,
		RequestTimeout:        time.Duration(s.app.Cfg.Agent.RequestTimeoutSeconds) * time.Second,
	})
	session.Run(r.Context())
}

type mockTranscriber struct{}

func (mockTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return "(dev) transcripción simulada", nil
}
