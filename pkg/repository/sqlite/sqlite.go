package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	level      TEXT NOT NULL,
	text       TEXT NOT NULL,
	parent_id  TEXT NOT NULL,
	position   INTEGER,
	rating     INTEGER NOT NULL,
	group_tag  TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	author     TEXT NOT NULL DEFAULT '',
	embedding  BLOB
);
CREATE INDEX IF NOT EXISTS idx_chunks_level_group ON chunks(level, group_tag);
CREATE INDEX IF NOT EXISTS idx_chunks_parent ON chunks(parent_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id    TEXT NOT NULL,
	step_seq     INTEGER NOT NULL,
	messages     TEXT NOT NULL,
	tokens_used  INTEGER NOT NULL,
	state        TEXT NOT NULL,
	step         INTEGER NOT NULL,
	abort_reason TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	PRIMARY KEY (thread_id, step_seq)
);
`

// Sqlite is a single-file repository for local use
type Sqlite struct {
	db         *sql.DB
	chunk      *chunkRepository
	checkpoint *checkpointStore
}

var _ interfaces.Repository = &Sqlite{}

// New opens or creates the database at path. ":memory:" gives a private in-memory database.
func New(ctx context.Context, path string) (*Sqlite, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, goerr.Wrap(err, "failed to create data directory", goerr.V("path", path))
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}
	// One connection serializes writers and keeps an in-memory database shared
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to ping sqlite database", goerr.V("path", path))
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to initialize schema", goerr.V("path", path))
	}

	return &Sqlite{
		db:         db,
		chunk:      &chunkRepository{db: db},
		checkpoint: &checkpointStore{db: db},
	}, nil
}

func (s *Sqlite) Chunk() interfaces.ChunkRepository {
	return s.chunk
}

func (s *Sqlite) Checkpoint() interfaces.CheckpointStore {
	return s.checkpoint
}

func (s *Sqlite) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close sqlite database")
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, goerr.Wrap(err, "invalid timestamp", goerr.V("value", s))
	}
	return t, nil
}
