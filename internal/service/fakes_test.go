package service

import (
	"context"
	"errors"

	"ragsmoke/internal/domain"
)

type fakeCollection struct {
	name     string
	addErr   error
	queryErr error
	result   *domain.QueryResult
	added    [][]string
	queries  [][]string
	nResults []int
}

func (c *fakeCollection) Name() string { return c.name }

func (c *fakeCollection) Add(_ context.Context, documents []string, ids []string) error {
	if c.addErr != nil {
		return c.addErr
	}
	c.added = append(c.added, ids)
	return nil
}

func (c *fakeCollection) Query(_ context.Context, queryTexts []string, nResults int) (*domain.QueryResult, error) {
	c.queries = append(c.queries, queryTexts)
	c.nResults = append(c.nResults, nResults)
	return c.result, c.queryErr
}

func (c *fakeCollection) Count(context.Context) (int, error) { return len(c.added), nil }

type fakeStore struct {
	col          *fakeCollection
	createErr    error
	heartbeatErr error
	created      []string
	getOrCreate  []string
}

func (s *fakeStore) CreateCollection(_ context.Context, name string) (domain.Collection, error) {
	s.created = append(s.created, name)
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.col.name = name
	return s.col, nil
}

func (s *fakeStore) GetOrCreateCollection(_ context.Context, name string) (domain.Collection, error) {
	s.getOrCreate = append(s.getOrCreate, name)
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.col.name = name
	return s.col, nil
}

func (s *fakeStore) DeleteCollection(context.Context, string) error { return nil }
func (s *fakeStore) Heartbeat(ctx context.Context) error {
	if s.heartbeatErr != nil {
		return s.heartbeatErr
	}
	return ctx.Err()
}
func (s *fakeStore) Close() error { return nil }

type fakeGenerator struct {
	response   string
	err        error
	versionErr error
	requests   []domain.GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &domain.GenerateResponse{Model: req.Model, Response: g.response, Done: true}, nil
}

func (g *fakeGenerator) Version(context.Context) (string, error) {
	if g.versionErr != nil {
		return "", g.versionErr
	}
	return "0.1.0", nil
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
