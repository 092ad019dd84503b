package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the caller's original (non-UUID) id, since Qdrant
// point ids must be a UUID or a positive integer.
const payloadIDField = "_original_id"

// qdrantStore wraps a Qdrant collection. resetEpoch is guarded by mu so that
// when multiple writers each observe a dimension mismatch at once, only the
// first to acquire the lock performs the Reset; the rest see the epoch has
// already moved and just retry their operation.
type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string

	mu         sync.Mutex
	resetEpoch uint64
}

// New dials Qdrant's gRPC endpoint (dsn like "http://localhost:6334", with
// an optional "api_key" query parameter) and ensures the collection exists
// at the configured dimension.
func New(dsn, collection string, dimension int, metric string) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorstore: collection name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("vectorstore: dimension must be > 0")
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid port in dsn: %w", err)
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create client: %w", err)
	}

	q := &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("vectorstore: ensure collection: %w", err)
	}
	return q, nil
}

func (q *qdrantStore) distance() qdrant.Distance {
	switch q.metric {
	case "l2", "euclidean":
		return qdrant.Distance_Euclid
	case "ip", "dot":
		return qdrant.Distance_Dot
	case "manhattan":
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: q.distance(),
		}),
	})
}

// Reset drops and recreates the collection at the configured dimension.
// The self-heal path in Add/Query performs the same drop-and-recreate
// through healOnce when the server reports a dimension mismatch; Reset is
// for an operator who needs to force a rebuild.
func (q *qdrantStore) Reset(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.resetLocked(ctx)
	if err == nil {
		q.resetEpoch++
	}
	return err
}

func (q *qdrantStore) resetLocked(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("drop collection: %w", err)
		}
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: q.distance(),
		}),
	})
}

// isDimensionMismatch recognizes Qdrant's vector-size/index-mismatch error
// text. The client exposes no typed error for this, so the check is
// substring-based against the gRPC status message.
func isDimensionMismatch(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "vector dimension") ||
		strings.Contains(msg, "wrong input") ||
		strings.Contains(msg, "dimension error") ||
		strings.Contains(msg, "size mismatch")
}

func pointID(id string) (string, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

func (q *qdrantStore) Add(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	q.mu.Lock()
	epoch := q.resetEpoch
	q.mu.Unlock()

	err := q.add(ctx, id, vector, metadata)
	if err == nil || !isDimensionMismatch(err) {
		return err
	}

	if resetErr := q.healOnce(ctx, epoch); resetErr != nil {
		return fmt.Errorf("self-heal reset failed after %v: %w", err, resetErr)
	}
	return q.add(ctx, id, vector, metadata)
}

func (q *qdrantStore) add(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	uuidStr, remapped := pointID(id)
	payloadMap := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payloadMap[k] = v
	}
	if remapped {
		payloadMap[payloadIDField] = id
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payloadMap),
		}},
	})
	return err
}

func (q *qdrantStore) Delete(ctx context.Context, id string) error {
	uuidStr, _ := pointID(id)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(uuidStr)),
	})
	return err
}

func (q *qdrantStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	q.mu.Lock()
	epoch := q.resetEpoch
	q.mu.Unlock()

	results, err := q.query(ctx, vector, k, filter)
	if err == nil || !isDimensionMismatch(err) {
		return results, err
	}

	if resetErr := q.healOnce(ctx, epoch); resetErr != nil {
		return nil, fmt.Errorf("self-heal reset failed after %v: %w", err, resetErr)
	}
	// Whoever performed the reset left the collection freshly empty, so
	// retrying the query now is equivalent to returning an empty result.
	return q.query(ctx, vector, k, filter)
}

// healOnce resets the collection unless another goroutine already bumped
// resetEpoch past the value observed before this caller's failing op ran,
// so two concurrent mismatched writers produce exactly one Reset.
func (q *qdrantStore) healOnce(ctx context.Context, observedEpoch uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.resetEpoch != observedEpoch {
		return nil
	}
	if err := q.resetLocked(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	q.resetEpoch++
	return nil
}

func (q *qdrantStore) query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		qf = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		metadata := make(map[string]string)
		var originalID string
		for k, v := range hit.Payload {
			if k == payloadIDField {
				originalID = v.GetStringValue()
				continue
			}
			metadata[k] = v.GetStringValue()
		}
		id := originalID
		if id == "" {
			id = hit.Id.GetUuid()
		}
		out = append(out, Result{ID: id, Score: float64(hit.Score), Metadata: metadata})
	}
	return out, nil
}

func (q *qdrantStore) Dimension() int { return q.dimension }
func (q *qdrantStore) Close() error   { return q.client.Close() }
