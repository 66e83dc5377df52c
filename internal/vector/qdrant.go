package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Qdrant only allows UUIDs and positive integers as point IDs, so we
// derive a deterministic UUID from the chunk id and keep the original id,
// source, and text in the payload.
const (
	payloadIDField     = "_original_id"
	payloadSourceField = "source"
	payloadTextField   = "text"
	payloadCreatedAt   = "created_at"
)

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrant connects to a Qdrant instance and ensures the collection
// exists with cosine distance. The Go client speaks Qdrant's gRPC API
// (port 6334 by default); an API key may be passed as a query parameter:
// "http://localhost:6334?api_key=...".
func NewQdrant(dsn, collection string, dimensions int) (Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("qdrant requires dimensions > 0")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant DSN: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	s := &qdrantStore{client: client, collection: collection, dimension: dimensions}
	if err := s.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return s, nil
}

func (s *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s *qdrantStore) Upsert(ctx context.Context, c Chunk) error {
	if err := checkDimension(s.dimension, len(c.Embedding)); err != nil {
		return err
	}
	uuidStr := c.ID
	if _, err := uuid.Parse(c.ID); err != nil {
		uuidStr = uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.ID)).String()
	}
	payload := map[string]any{
		payloadSourceField: c.Source,
		payloadTextField:   c.Text,
		payloadCreatedAt:   c.CreatedAt.Format(time.RFC3339),
	}
	if uuidStr != c.ID {
		payload[payloadIDField] = c.ID
	}
	vec := make([]float32, len(c.Embedding))
	copy(vec, c.Embedding)
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (s *qdrantStore) Search(ctx context.Context, vec []float32, k int, filter map[string]string) ([]Hit, error) {
	if err := checkDimension(s.dimension, len(vec)); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	query := make([]float32, len(vec))
	copy(query, vec)
	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for field, value := range filter {
			must = append(must, qdrant.NewMatch(field, value))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(query),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		id := p.Id.GetUuid()
		var source, text, createdAt string
		if p.Payload != nil {
			if v, ok := p.Payload[payloadIDField]; ok {
				if orig := v.GetStringValue(); orig != "" {
					id = orig
				}
			}
			if v, ok := p.Payload[payloadSourceField]; ok {
				source = v.GetStringValue()
			}
			if v, ok := p.Payload[payloadTextField]; ok {
				text = v.GetStringValue()
			}
			if v, ok := p.Payload[payloadCreatedAt]; ok {
				createdAt = v.GetStringValue()
			}
		}
		var created time.Time
		if createdAt != "" {
			created, _ = time.Parse(time.RFC3339, createdAt)
		}
		hits = append(hits, Hit{
			Chunk:      Chunk{ID: id, Source: source, Text: text, CreatedAt: created},
			Similarity: float64(p.Score),
		})
	}
	return hits, nil
}

func (s *qdrantStore) Dimension() int { return s.dimension }

func (s *qdrantStore) Close() error { return s.client.Close() }
