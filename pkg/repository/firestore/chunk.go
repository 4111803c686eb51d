package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"google.golang.org/api/iterator"
)

const (
	firestoreGetAllLimit = 100
	distanceField        = "vector_distance"
)

// chunkDoc is the Firestore document representation of model.Chunk.
// Embedding is stored as firestore.Vector32 so that FindNearest vector search works.
type chunkDoc struct {
	ID        string             `firestore:"ID"`
	Level     string             `firestore:"Level"`
	Text      string             `firestore:"Text"`
	ParentID  string             `firestore:"ParentID"`
	Position  *int64             `firestore:"Position"`
	Rating    int64              `firestore:"Rating"`
	Group     string             `firestore:"Group"`
	Timestamp time.Time          `firestore:"Timestamp"`
	Title     string             `firestore:"Title"`
	Author    string             `firestore:"Author"`
	Embedding firestore.Vector32 `firestore:"Embedding,omitempty"`
}

func toChunkDoc(c *model.Chunk) *chunkDoc {
	doc := &chunkDoc{
		ID:        c.ID,
		Level:     string(c.Level),
		Text:      c.Text,
		ParentID:  c.ParentID,
		Rating:    int64(c.Rating),
		Group:     string(c.Group),
		Timestamp: c.Timestamp,
		Title:     c.Title,
		Author:    c.Author,
	}
	if c.Position != nil {
		pos := int64(*c.Position)
		doc.Position = &pos
	}
	if len(c.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(c.Embedding)
	}
	return doc
}

func fromChunkDoc(d *chunkDoc) *model.Chunk {
	c := &model.Chunk{
		ID:        d.ID,
		Level:     types.ChunkLevel(d.Level),
		Text:      d.Text,
		ParentID:  d.ParentID,
		Rating:    int(d.Rating),
		Group:     types.GroupTag(d.Group),
		Timestamp: d.Timestamp.UTC(),
		Title:     d.Title,
		Author:    d.Author,
	}
	if d.Position != nil {
		pos := int(*d.Position)
		c.Position = &pos
	}
	if len(d.Embedding) > 0 {
		c.Embedding = []float32(d.Embedding)
	}
	return c
}

type chunkRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newChunkRepository(client *firestore.Client) *chunkRepository {
	return &chunkRepository{client: client}
}

func (r *chunkRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(collectionName(r.collectionPrefix, "chunks"))
}

func (r *chunkRepository) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Use BulkWriter which automatically handles batching
	bulkWriter := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(chunks))
	for _, c := range chunks {
		job, err := bulkWriter.Set(r.collection().Doc(c.ID), toChunkDoc(c))
		if err != nil {
			bulkWriter.End()
			return goerr.Wrap(err, "failed to add Set operation to bulk writer", goerr.V(model.ChunkIDKey, c.ID))
		}
		jobs = append(jobs, job)
	}
	bulkWriter.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "failed to upsert chunk", goerr.V(model.ChunkIDKey, chunks[i].ID))
		}
	}
	return nil
}

func (r *chunkRepository) Get(ctx context.Context, id string) (*model.Chunk, error) {
	chunks, err := r.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

func (r *chunkRepository) GetMany(ctx context.Context, ids []string) ([]*model.Chunk, error) {
	result := make([]*model.Chunk, 0, len(ids))

	for i := 0; i < len(ids); i += firestoreGetAllLimit {
		end := min(i+firestoreGetAllLimit, len(ids))
		batch := ids[i:end]

		refs := make([]*firestore.DocumentRef, len(batch))
		for j, id := range batch {
			refs[j] = r.collection().Doc(id)
		}

		docs, err := r.client.GetAll(ctx, refs)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to batch get chunks", goerr.V("count", len(batch)))
		}

		for idx, doc := range docs {
			if !doc.Exists() {
				continue
			}
			var d chunkDoc
			if err := doc.DataTo(&d); err != nil {
				return nil, goerr.Wrap(err, "failed to unmarshal chunk", goerr.V(model.ChunkIDKey, batch[idx]))
			}
			result = append(result, fromChunkDoc(&d))
		}
	}

	return result, nil
}

func (r *chunkRepository) List(ctx context.Context, parentID string) ([]*model.Chunk, error) {
	docs, err := r.collection().Where("ParentID", "==", parentID).Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list chunks", goerr.V(model.RecordIDKey, parentID))
	}

	result := make([]*model.Chunk, 0, len(docs))
	for _, doc := range docs {
		var d chunkDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal chunk", goerr.V(model.ChunkIDKey, doc.Ref.ID))
		}
		result = append(result, fromChunkDoc(&d))
	}

	sort.Slice(result, func(i, j int) bool {
		return position(result[i]) < position(result[j])
	})
	return result, nil
}

func position(c *model.Chunk) int {
	if c.Position == nil {
		return -1
	}
	return *c.Position
}

func (r *chunkRepository) filtered(filter model.IndexFilter) firestore.Query {
	q := r.collection().Query
	if filter.Level != "" {
		q = q.Where("Level", "==", string(filter.Level))
	}
	if filter.Group != "" {
		q = q.Where("Group", "==", string(filter.Group))
	}
	return q
}

func (r *chunkRepository) Nearest(ctx context.Context, vector []float32, k int, filter model.IndexFilter) ([]model.IndexHit, error) {
	vq := r.filtered(filter).FindNearest("Embedding", firestore.Vector32(vector), k,
		firestore.DistanceMeasureCosine, &firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	hits := make([]model.IndexHit, 0, k)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate chunk vector search results")
		}

		distance, err := doc.DataAt(distanceField)
		if err != nil {
			return nil, goerr.Wrap(err, "vector distance missing from result", goerr.V(model.ChunkIDKey, doc.Ref.ID))
		}
		d, ok := distance.(float64)
		if !ok {
			return nil, goerr.New("vector distance is not a number", goerr.V("value", distance))
		}

		// Cosine distance is 1 - similarity
		hits = append(hits, model.IndexHit{ChunkID: doc.Ref.ID, Similarity: 1 - d})
	}

	return hits, nil
}

func (r *chunkRepository) Count(ctx context.Context, level types.ChunkLevel) (int, error) {
	q := r.filtered(model.IndexFilter{Level: level})
	res, err := q.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count chunks", goerr.V("level", level))
	}

	v, ok := res["count"].(*firestorepb.Value)
	if !ok {
		return 0, goerr.New("unexpected count aggregation result", goerr.V("result", res))
	}
	return int(v.GetIntegerValue()), nil
}

func (r *chunkRepository) Groups(ctx context.Context) ([]model.GroupStat, error) {
	iter := r.filtered(model.IndexFilter{Level: types.ChunkLevelCoarse}).Select("Group").Documents(ctx)
	defer iter.Stop()

	counts := make(map[types.GroupTag]int)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate coarse chunks")
		}

		group, err := doc.DataAt("Group")
		if err != nil {
			return nil, goerr.Wrap(err, "group missing from chunk", goerr.V(model.ChunkIDKey, doc.Ref.ID))
		}
		if s, ok := group.(string); ok {
			counts[types.GroupTag(s)]++
		}
	}

	result := make([]model.GroupStat, 0, len(counts))
	for g, n := range counts {
		result = append(result, model.GroupStat{Group: g, Records: n})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Group < result[j].Group
	})
	return result, nil
}
