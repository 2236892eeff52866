package embedcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "rankd-embeddings"

// ChromemStore backs the cache with a persistent chromem-go collection for
// single-node deployments without redis. Entries carry a write timestamp in
// metadata; chromem has no native TTL, so staleness is checked on read.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	ttl        time.Duration
	now        func() time.Time
}

// ChromemConfig holds persistent-store configuration.
type ChromemConfig struct {
	// Path is the on-disk store directory.
	Path string
	// Compress enables gob compression for stored documents.
	Compress bool
	TTL      time.Duration
}

// NewChromemStore opens (or creates) the persistent store at cfg.Path.
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("embedcache: chromem path required")
	}
	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem store: %w", err)
	}

	// Vectors are always supplied explicitly; the embedding func must never
	// run.
	collection, err := db.GetOrCreateCollection(chromemCollection, nil, func(_ context.Context, _ string) ([]float32, error) {
		return nil, errors.New("embedcache: embedding func must not be called")
	})
	if err != nil {
		return nil, fmt.Errorf("opening chromem collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		ttl:        cfg.TTL,
		now:        time.Now,
	}, nil
}

// GetErr returns the vector, treating stale or malformed entries as misses.
func (s *ChromemStore) GetErr(ctx context.Context, key Key) ([]float32, bool, error) {
	doc, err := s.collection.GetByID(ctx, key.String())
	if err != nil {
		// chromem reports unknown IDs as errors; that is an ordinary miss.
		return nil, false, nil
	}

	if s.ttl > 0 {
		writtenAt, perr := strconv.ParseInt(doc.Metadata["written_at"], 10, 64)
		if perr != nil || s.now().Unix()-writtenAt > int64(s.ttl.Seconds()) {
			return nil, false, nil
		}
	}

	if !validVector(doc.Embedding) {
		return nil, false, nil
	}
	return doc.Embedding, true, nil
}

// PutErr stores the vector with a write timestamp.
func (s *ChromemStore) PutErr(ctx context.Context, key Key, vec []float32) error {
	doc := chromem.Document{
		ID:        key.String(),
		Content:   key.Identity,
		Embedding: vec,
		Metadata: map[string]string{
			"written_at": strconv.FormatInt(s.now().Unix(), 10),
			"model":      key.ModelTag,
		},
	}
	if err := s.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("writing chromem entry: %w", err)
	}
	return nil
}

// Ping verifies the collection is reachable.
func (s *ChromemStore) Ping(_ context.Context) error {
	if s.collection == nil {
		return ErrClosed
	}
	return nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}
