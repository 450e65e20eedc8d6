package qdrant

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	qpb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ragsmoke/internal/domain"
	"ragsmoke/internal/vectorstore/vecmath"
)

type storedPoint struct {
	vector  []float32
	payload map[string]*qpb.Value
}

// fakeQdrant keeps collections in memory behind the generated client
// interfaces. Methods the store never calls are left to the embedded nil
// interfaces and panic if reached.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]storedPoint // name -> uuid -> point
	sizes       map[string]uint64
	healthErr   error
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]map[string]storedPoint{}, sizes: map[string]uint64{}}
}

func newTestStorage(t *testing.T, embedder domain.Embedder) (*Storage, *fakeQdrant) {
	t.Helper()
	f := newFakeQdrant()
	return &Storage{
		health:      fakeHealth{f: f},
		collections: fakeCollections{f: f},
		points:      fakePoints{f: f},
		embedder:    embedder,
		distance:    qpb.Distance_Cosine,
		timeout:     time.Second,
	}, f
}

type fakeHealth struct {
	qpb.QdrantClient
	f *fakeQdrant
}

func (h fakeHealth) HealthCheck(context.Context, *qpb.HealthCheckRequest, ...grpc.CallOption) (*qpb.HealthCheckReply, error) {
	if h.f.healthErr != nil {
		return nil, h.f.healthErr
	}
	return &qpb.HealthCheckReply{Title: "qdrant", Version: "1.9.0"}, nil
}

type fakeCollections struct {
	qpb.CollectionsClient
	f *fakeQdrant
}

func (c fakeCollections) CollectionExists(_ context.Context, in *qpb.CollectionExistsRequest, _ ...grpc.CallOption) (*qpb.CollectionExistsResponse, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	_, ok := c.f.collections[in.GetCollectionName()]
	return &qpb.CollectionExistsResponse{Result: &qpb.CollectionExists{Exists: ok}}, nil
}

func (c fakeCollections) Create(_ context.Context, in *qpb.CreateCollection, _ ...grpc.CallOption) (*qpb.CollectionOperationResponse, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	name := in.GetCollectionName()
	if _, ok := c.f.collections[name]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "collection %s already exists", name)
	}
	c.f.collections[name] = map[string]storedPoint{}
	c.f.sizes[name] = in.GetVectorsConfig().GetParams().GetSize()
	return &qpb.CollectionOperationResponse{Result: true}, nil
}

func (c fakeCollections) Delete(_ context.Context, in *qpb.DeleteCollection, _ ...grpc.CallOption) (*qpb.CollectionOperationResponse, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	delete(c.f.collections, in.GetCollectionName())
	return &qpb.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	qpb.PointsClient
	f *fakeQdrant
}

func (p fakePoints) collection(name string) (map[string]storedPoint, error) {
	col, ok := p.f.collections[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "collection %s not found", name)
	}
	return col, nil
}

func (p fakePoints) Get(_ context.Context, in *qpb.GetPoints, _ ...grpc.CallOption) (*qpb.GetResponse, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	col, err := p.collection(in.GetCollectionName())
	if err != nil {
		return nil, err
	}
	out := &qpb.GetResponse{}
	for _, id := range in.GetIds() {
		if pt, ok := col[id.GetUuid()]; ok {
			out.Result = append(out.Result, &qpb.RetrievedPoint{Id: id, Payload: pt.payload})
		}
	}
	return out, nil
}

func (p fakePoints) Upsert(_ context.Context, in *qpb.UpsertPoints, _ ...grpc.CallOption) (*qpb.PointsOperationResponse, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	col, err := p.collection(in.GetCollectionName())
	if err != nil {
		return nil, err
	}
	size := p.f.sizes[in.GetCollectionName()]
	for _, pt := range in.GetPoints() {
		vec := pt.GetVectors().GetVector().GetData()
		if uint64(len(vec)) != size {
			return nil, status.Errorf(codes.InvalidArgument, "expected dim %d, got %d", size, len(vec))
		}
		col[pt.GetId().GetUuid()] = storedPoint{vector: vec, payload: pt.GetPayload()}
	}
	return &qpb.PointsOperationResponse{Result: &qpb.UpdateResult{Status: qpb.UpdateStatus_Completed}}, nil
}

func (p fakePoints) Search(_ context.Context, in *qpb.SearchPoints, _ ...grpc.CallOption) (*qpb.SearchResponse, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	col, err := p.collection(in.GetCollectionName())
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(col))
	for k := range col {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var scored []*qpb.ScoredPoint
	for _, k := range keys {
		pt := col[k]
		scored = append(scored, &qpb.ScoredPoint{
			Id:      &qpb.PointId{PointIdOptions: &qpb.PointId_Uuid{Uuid: k}},
			Payload: pt.payload,
			Score:   float32(vecmath.Cosine(in.GetVector(), pt.vector)),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].GetScore() > scored[j].GetScore() })
	if limit := int(in.GetLimit()); limit < len(scored) {
		scored = scored[:limit]
	}
	return &qpb.SearchResponse{Result: scored}, nil
}

func (p fakePoints) Count(_ context.Context, in *qpb.CountPoints, _ ...grpc.CallOption) (*qpb.CountResponse, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	col, err := p.collection(in.GetCollectionName())
	if err != nil {
		return nil, err
	}
	return &qpb.CountResponse{Result: &qpb.CountResult{Count: uint64(len(col))}}, nil
}
