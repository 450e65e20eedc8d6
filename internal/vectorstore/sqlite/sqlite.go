// Package sqlite persists collections in a SQLite file through the pure-Go
// modernc.org/sqlite driver and ranks them with a brute-force cosine scan.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"ragsmoke/internal/domain"
	"ragsmoke/internal/vectorstore/vecmath"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
    name       TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
    id         TEXT NOT NULL,
    content    TEXT NOT NULL,
    embedding  BLOB,
    PRIMARY KEY (collection, id)
);
`

// Storage is a SQLite-backed vector store.
type Storage struct {
	db       *sql.DB
	embedder domain.Embedder
	// mu serialises corpus-fitted embedders, which are stateful.
	mu sync.Mutex
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string, embedder domain.Embedder) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", domain.ErrInvalidArgument)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps ":memory:" a single database
	db.SetMaxOpenConns(1)
	s, err := New(db, embedder)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database, ensuring the schema exists.
func New(db *sql.DB, embedder domain.Embedder) (*Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite: db is nil")
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Storage{db: db, embedder: embedder}, nil
}

func (s *Storage) exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up collection %q: %w", name, err)
	}
	return true, nil
}

// CreateCollection creates name or fails with domain.ErrCollectionExists.
func (s *Storage) CreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", domain.ErrInvalidArgument)
	}
	ok, err := s.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("create collection %q: %w", name, domain.ErrCollectionExists)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO collections(name, created_at) VALUES(?, ?)`, name, time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}
	return &Collection{storage: s, name: name}, nil
}

// GetOrCreateCollection returns name, creating it when absent.
func (s *Storage) GetOrCreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", domain.ErrInvalidArgument)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections(name, created_at) VALUES(?, ?)`, name, time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("get or create collection %q: %w", name, err)
	}
	return &Collection{storage: s, name: name}, nil
}

// DeleteCollection drops name and its documents.
func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("delete documents of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete collection %q: %w", name, domain.ErrCollectionNotFound)
	}
	return tx.Commit()
}

// Heartbeat pings the database.
func (s *Storage) Heartbeat(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Storage) Close() error { return s.db.Close() }

// Collection is a handle to rows of one collection.
type Collection struct {
	storage *Storage
	name    string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Add inserts documents in one transaction. Embeddings are stored when the
// embedder has a fixed dimension; corpus-fitted embedders embed at query time.
func (c *Collection) Add(ctx context.Context, documents []string, ids []string) error {
	if err := domain.ValidateAdd(documents, ids); err != nil {
		return err
	}
	s := c.storage
	blobs := make([][]byte, len(documents))
	if !s.embedder.NeedsCorpus() {
		for i, text := range documents {
			vec, err := s.embedder.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embed %q: %w", ids[i], err)
			}
			blobs[i] = vecmath.Encode(vec)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE collection = ? AND id = ?`, c.name, id).Scan(&one)
		if err == nil {
			return fmt.Errorf("add %q to %q: %w", id, c.name, domain.ErrDuplicateID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents(collection, id, content, embedding) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, c.name, id, documents[i], blobs[i]); err != nil {
			return fmt.Errorf("insert %q: %w", id, err)
		}
	}
	return tx.Commit()
}

type row struct {
	id     string
	text   string
	vector []float32
}

func (c *Collection) load(ctx context.Context) ([]row, error) {
	rows, err := c.storage.db.QueryContext(ctx, `SELECT id, content, embedding FROM documents WHERE collection = ? ORDER BY rowid`, c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		var blob []byte
		if err := rows.Scan(&r.id, &r.text, &blob); err != nil {
			return nil, err
		}
		if r.vector, err = vecmath.Decode(blob); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Query returns up to nResults documents per query text, most similar first.
func (c *Collection) Query(ctx context.Context, queryTexts []string, nResults int) (*domain.QueryResult, error) {
	if err := domain.ValidateQuery(queryTexts, nResults); err != nil {
		return nil, err
	}
	rows, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", c.name, err)
	}
	res := &domain.QueryResult{
		IDs:       make([][]string, len(queryTexts)),
		Documents: make([][]string, len(queryTexts)),
		Distances: make([][]float64, len(queryTexts)),
	}
	if len(rows) == 0 {
		for i := range queryTexts {
			res.IDs[i], res.Documents[i], res.Distances[i] = []string{}, []string{}, []float64{}
		}
		return res, nil
	}

	s := c.storage
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder.NeedsCorpus() {
		corpus := make([]string, len(rows))
		for i, r := range rows {
			corpus[i] = r.text
		}
		if err := s.embedder.Prepare(corpus); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", s.embedder.Name(), err)
		}
		for i := range rows {
			if rows[i].vector, err = s.embedder.Embed(ctx, rows[i].text); err != nil {
				return nil, fmt.Errorf("embed %q: %w", rows[i].id, err)
			}
		}
	}
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		vectors[i] = r.vector
	}
	for qi, text := range queryTexts {
		qv, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		ranked := vecmath.TopK(qv, vectors, nResults)
		ids := make([]string, len(ranked))
		docs := make([]string, len(ranked))
		dists := make([]float64, len(ranked))
		for i, r := range ranked {
			ids[i] = rows[r.Index].id
			docs[i] = rows[r.Index].text
			dists[i] = vecmath.Distance(r.Score)
		}
		res.IDs[qi], res.Documents[qi], res.Distances[qi] = ids, docs, dists
	}
	return res, nil
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.storage.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, c.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %q: %w", c.name, err)
	}
	return n, nil
}
