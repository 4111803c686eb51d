package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

type chunkRepository struct {
	db *sql.DB
}

const chunkColumns = `id, level, text, parent_id, position, rating, group_tag, timestamp, title, author, embedding`

func (r *chunkRepository) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			level = excluded.level,
			text = excluded.text,
			parent_id = excluded.parent_id,
			position = excluded.position,
			rating = excluded.rating,
			group_tag = excluded.group_tag,
			timestamp = excluded.timestamp,
			title = excluded.title,
			author = excluded.author,
			embedding = excluded.embedding`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare upsert")
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		var pos sql.NullInt64
		if c.Position != nil {
			pos = sql.NullInt64{Int64: int64(*c.Position), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, c.ID, string(c.Level), c.Text, c.ParentID, pos, c.Rating,
			string(c.Group), formatTime(c.Timestamp), c.Title, c.Author, vectorToBlob(c.Embedding)); err != nil {
			return goerr.Wrap(err, "failed to upsert chunk", goerr.V(model.ChunkIDKey, c.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit chunks")
	}
	return nil
}

func (r *chunkRepository) Get(ctx context.Context, id string) (*model.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chunk", goerr.V(model.ChunkIDKey, id))
	}
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

func (r *chunkRepository) GetMany(ctx context.Context, ids []string) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return []*model.Chunk{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chunks", goerr.V("count", len(ids)))
	}
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	result := make([]*model.Chunk, 0, len(chunks))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *chunkRepository) List(ctx context.Context, parentID string) ([]*model.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE parent_id = ? ORDER BY position IS NOT NULL, position`, parentID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list chunks", goerr.V(model.RecordIDKey, parentID))
	}
	return scanChunks(rows)
}

func (r *chunkRepository) Nearest(ctx context.Context, vector []float32, k int, filter model.IndexFilter) ([]model.IndexHit, error) {
	query := `SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`
	var args []any
	if filter.Level != "" {
		query += ` AND level = ?`
		args = append(args, string(filter.Level))
	}
	if filter.Group != "" {
		query += ` AND group_tag = ?`
		args = append(args, string(filter.Group))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query embeddings")
	}
	defer func() { _ = rows.Close() }()

	var hits []model.IndexHit
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, goerr.Wrap(err, "failed to scan embedding")
		}
		if len(blob) == 0 {
			continue
		}
		hits = append(hits, model.IndexHit{
			ChunkID:    id,
			Similarity: model.CosineSimilarity(vector, blobToVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate embeddings")
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (r *chunkRepository) Count(ctx context.Context, level types.ChunkLevel) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE level = ?`, string(level)).Scan(&count); err != nil {
		return 0, goerr.Wrap(err, "failed to count chunks", goerr.V("level", level))
	}
	return count, nil
}

func (r *chunkRepository) Groups(ctx context.Context) ([]model.GroupStat, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT group_tag, COUNT(*) FROM chunks
		WHERE level = ? GROUP BY group_tag ORDER BY group_tag`, string(types.ChunkLevelCoarse))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query groups")
	}
	defer func() { _ = rows.Close() }()

	result := []model.GroupStat{}
	for rows.Next() {
		var (
			group string
			stat  model.GroupStat
		)
		if err := rows.Scan(&group, &stat.Records); err != nil {
			return nil, goerr.Wrap(err, "failed to scan group")
		}
		stat.Group = types.GroupTag(group)
		result = append(result, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate groups")
	}
	return result, nil
}

func scanChunks(rows *sql.Rows) ([]*model.Chunk, error) {
	defer func() { _ = rows.Close() }()

	var result []*model.Chunk
	for rows.Next() {
		var (
			c         model.Chunk
			level     string
			group     string
			timestamp string
			pos       sql.NullInt64
			blob      []byte
		)
		if err := rows.Scan(&c.ID, &level, &c.Text, &c.ParentID, &pos, &c.Rating, &group,
			&timestamp, &c.Title, &c.Author, &blob); err != nil {
			return nil, goerr.Wrap(err, "failed to scan chunk")
		}

		ts, err := parseTime(timestamp)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode chunk", goerr.V(model.ChunkIDKey, c.ID))
		}
		c.Timestamp = ts
		c.Level = types.ChunkLevel(level)
		c.Group = types.GroupTag(group)
		if pos.Valid {
			p := int(pos.Int64)
			c.Position = &p
		}
		c.Embedding = blobToVector(blob)
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate chunks")
	}
	return result, nil
}

// vectorToBlob encodes float32 values little-endian; nil stays NULL
func vectorToBlob(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func blobToVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}
