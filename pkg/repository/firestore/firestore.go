package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
)

type Firestore struct {
	client     *firestore.Client
	chunk      *chunkRepository
	checkpoint *checkpointStore
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix prepends prefix to every collection name, for sharing one database between environments
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.chunk.collectionPrefix = prefix
		f.checkpoint.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:     client,
		chunk:      newChunkRepository(client),
		checkpoint: newCheckpointStore(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Chunk() interfaces.ChunkRepository {
	return f.chunk
}

func (f *Firestore) Checkpoint() interfaces.CheckpointStore {
	return f.checkpoint
}

func (f *Firestore) Close(ctx context.Context) error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func collectionName(prefix, name string) string {
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}
