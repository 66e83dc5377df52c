package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
)

// Speaker streams synthesized speech. onChunk receives raw PCM16 audio as
// it arrives; implementations must respect ctx cancellation between
// chunks.
type Speaker interface {
	Stream(ctx context.Context, text string, onChunk func([]byte)) error
}

const ttsChunkSize = 4096

// HTTPSpeaker streams from an OpenAI-compatible /audio/speech endpoint.
type HTTPSpeaker struct {
	cfg    config.TTSConfig
	client *http.Client
}

func NewHTTPSpeaker(cfg config.TTSConfig, client *http.Client) *HTTPSpeaker {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &HTTPSpeaker{cfg: cfg, client: client}
}

func (s *HTTPSpeaker) Stream(ctx context.Context, text string, onChunk func([]byte)) error {
	payload, _ := json.Marshal(map[string]any{
		"model":           s.cfg.Model,
		"voice":           s.cfg.Voice,
		"input":           text,
		"response_format": "pcm",
	})
	url := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return faults.Wrap(faults.Transport, err, "tts request")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return faults.Newf(faults.Application, "tts: %s: %s", resp.Status, string(b))
	}

	buf := make([]byte, ttsChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return faults.Wrap(faults.Cancelled, err, "tts cancelled")
		}
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return faults.Wrap(faults.Transport, err, "tts stream")
		}
	}
}
