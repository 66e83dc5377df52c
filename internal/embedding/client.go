// Package embedding produces query vectors via an OpenAI-compatible
// embeddings endpoint, fronted by a bounded LRU/TTL cache.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type httpClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

func NewHTTPClient(cfg config.EmbeddingConfig, client *http.Client) Embedder {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClient{cfg: cfg, client: client}
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *httpClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	body, _ := json.Marshal(embedReq{Model: c.cfg.Model, Input: inputs})

	timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.cfg.BaseURL+c.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.Transport, err, "embeddings request")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, faults.Newf(faults.Application, "embeddings error: %s: %s", resp.Status, string(b))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Wrap(faults.Transport, err, "read embeddings response")
	}
	var er embedResp
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, faults.Wrap(faults.Transport, err, "parse embeddings response")
	}
	if len(er.Data) != len(inputs) {
		return nil, faults.Newf(faults.Application, "unexpected embedding count: got %d, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}
