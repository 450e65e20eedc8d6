package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	qpb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"ragsmoke/internal/domain"
)

const (
	payloadDocID = "doc_id"
	payloadText  = "text"
)

// Config contains connection details for a Qdrant gRPC endpoint.
type Config struct {
	Host       string
	Port       int
	Distance   string
	VectorSize int
	Timeout    time.Duration
}

// Storage is a Qdrant client over gRPC. Document ids are mapped to UUIDv5
// point ids; the original id travels in the payload.
type Storage struct {
	conn        *grpc.ClientConn
	health      qpb.QdrantClient
	collections qpb.CollectionsClient
	points      qpb.PointsClient
	embedder    domain.Embedder
	distance    qpb.Distance
	vectorSize  int
	timeout     time.Duration
}

// NewStorage dials Qdrant. The connection is lazy, so an unreachable server
// surfaces on the first call.
func NewStorage(cfg Config, embedder domain.Embedder) (*Storage, error) {
	if embedder.NeedsCorpus() {
		return nil, fmt.Errorf("qdrant: embedder %s needs a corpus; use a fixed-dimension embedder", embedder.Name())
	}
	distance, err := parseDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	conn, err := grpc.Dial(
		fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	return &Storage{
		conn:        conn,
		health:      qpb.NewQdrantClient(conn),
		collections: qpb.NewCollectionsClient(conn),
		points:      qpb.NewPointsClient(conn),
		embedder:    embedder,
		distance:    distance,
		vectorSize:  cfg.VectorSize,
		timeout:     timeout,
	}, nil
}

func parseDistance(name string) (qpb.Distance, error) {
	switch strings.ToLower(name) {
	case "", "cosine":
		return qpb.Distance_Cosine, nil
	case "dot":
		return qpb.Distance_Dot, nil
	case "euclid", "euclidean":
		return qpb.Distance_Euclid, nil
	default:
		return 0, fmt.Errorf("%w: unknown qdrant distance %q", domain.ErrInvalidArgument, name)
	}
}

func (s *Storage) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Storage) exists(ctx context.Context, name string) (bool, error) {
	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	resp, err := s.collections.CollectionExists(cctx, &qpb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return resp.GetResult() != nil && resp.GetResult().GetExists(), nil
}

// CreateCollection creates name or fails with domain.ErrCollectionExists.
func (s *Storage) CreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	ok, err := s.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("create collection %q: %w", name, domain.ErrCollectionExists)
	}
	if err := s.create(ctx, name); err != nil {
		return nil, err
	}
	return &Collection{storage: s, name: name}, nil
}

// GetOrCreateCollection returns name, creating it when absent.
func (s *Storage) GetOrCreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	ok, err := s.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.create(ctx, name); err != nil {
			return nil, err
		}
	}
	return &Collection{storage: s, name: name}, nil
}

func (s *Storage) create(ctx context.Context, name string) error {
	size, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	_, err = s.collections.Create(cctx, &qpb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qpb.VectorsConfig{
			Config: &qpb.VectorsConfig_Params{
				Params: &qpb.VectorParams{
					Size:     uint64(size),
					Distance: s.distance,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	slog.Debug("qdrant collection created", "name", name, "size", size)
	return nil
}

// dimension resolves the vector size from config, the embedder, or a probe embedding.
func (s *Storage) dimension(ctx context.Context) (int, error) {
	if s.vectorSize > 0 {
		return s.vectorSize, nil
	}
	if d := s.embedder.Dimension(); d > 0 {
		return d, nil
	}
	probe, err := s.embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	return len(probe), nil
}

// DeleteCollection drops name.
func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	ok, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete collection %q: %w", name, domain.ErrCollectionNotFound)
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	if _, err := s.collections.Delete(cctx, &qpb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Heartbeat runs the Qdrant health check RPC.
func (s *Storage) Heartbeat(ctx context.Context) error {
	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	if _, err := s.health.HealthCheck(cctx, &qpb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *Storage) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Collection is a handle to a Qdrant collection.
type Collection struct {
	storage *Storage
	name    string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Add embeds and upserts documents after checking none of the ids exist.
func (c *Collection) Add(ctx context.Context, documents []string, ids []string) error {
	if err := domain.ValidateAdd(documents, ids); err != nil {
		return err
	}
	s := c.storage
	pointIDs := make([]*qpb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = PointID(c.name, id)
	}
	cctx, cancel := s.callCtx(ctx)
	found, err := s.points.Get(cctx, &qpb.GetPoints{
		CollectionName: c.name,
		Ids:            pointIDs,
		WithPayload: &qpb.WithPayloadSelector{
			SelectorOptions: &qpb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to look up points: %w", err)
	}
	if len(found.GetResult()) > 0 {
		dup := found.GetResult()[0].GetPayload()[payloadDocID].GetStringValue()
		return fmt.Errorf("add %q to %q: %w", dup, c.name, domain.ErrDuplicateID)
	}

	points := make([]*qpb.PointStruct, len(documents))
	for i, text := range documents {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed %q: %w", ids[i], err)
		}
		points[i] = &qpb.PointStruct{
			Id: pointIDs[i],
			Vectors: &qpb.Vectors{
				VectorsOptions: &qpb.Vectors_Vector{
					Vector: &qpb.Vector{Data: vec},
				},
			},
			Payload: map[string]*qpb.Value{
				payloadDocID: {Kind: &qpb.Value_StringValue{StringValue: ids[i]}},
				payloadText:  {Kind: &qpb.Value_StringValue{StringValue: text}},
			},
		}
	}
	wait := true
	cctx, cancel = s.callCtx(ctx)
	defer cancel()
	if _, err := s.points.Upsert(cctx, &qpb.UpsertPoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Query embeds each query text and searches for up to nResults points.
func (c *Collection) Query(ctx context.Context, queryTexts []string, nResults int) (*domain.QueryResult, error) {
	if err := domain.ValidateQuery(queryTexts, nResults); err != nil {
		return nil, err
	}
	s := c.storage
	res := &domain.QueryResult{
		IDs:       make([][]string, len(queryTexts)),
		Documents: make([][]string, len(queryTexts)),
		Distances: make([][]float64, len(queryTexts)),
	}
	for qi, text := range queryTexts {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		cctx, cancel := s.callCtx(ctx)
		out, err := s.points.Search(cctx, &qpb.SearchPoints{
			CollectionName: c.name,
			Vector:         vec,
			Limit:          uint64(nResults),
			WithPayload: &qpb.WithPayloadSelector{
				SelectorOptions: &qpb.WithPayloadSelector_Enable{Enable: true},
			},
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to search: %w", err)
		}
		ids := make([]string, 0, len(out.GetResult()))
		docs := make([]string, 0, len(out.GetResult()))
		dists := make([]float64, 0, len(out.GetResult()))
		for _, p := range out.GetResult() {
			ids = append(ids, p.GetPayload()[payloadDocID].GetStringValue())
			docs = append(docs, p.GetPayload()[payloadText].GetStringValue())
			dists = append(dists, ScoreToDistance(s.distance, p.GetScore()))
		}
		res.IDs[qi], res.Documents[qi], res.Distances[qi] = ids, docs, dists
	}
	return res, nil
}

// Count returns the exact number of points in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	exact := true
	cctx, cancel := c.storage.callCtx(ctx)
	defer cancel()
	out, err := c.storage.points.Count(cctx, &qpb.CountPoints{CollectionName: c.name, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(out.GetResult().GetCount()), nil
}

// PointID derives a stable UUID point id for a document id within a collection.
func PointID(collection, docID string) *qpb.PointId {
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"/"+docID))
	return &qpb.PointId{PointIdOptions: &qpb.PointId_Uuid{Uuid: u.String()}}
}

// ScoreToDistance maps a Qdrant score onto "lower is closer".
func ScoreToDistance(d qpb.Distance, score float32) float64 {
	switch d {
	case qpb.Distance_Euclid:
		return float64(score)
	case qpb.Distance_Dot:
		return -float64(score)
	default:
		return 1 - float64(score)
	}
}
