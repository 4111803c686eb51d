package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

type checkpointStore struct {
	db *sql.DB
}

func (s *checkpointStore) Append(ctx context.Context, cp *model.Checkpoint) error {
	if cp == nil {
		return goerr.New("checkpoint is nil")
	}

	messages, err := json.Marshal(cp.Messages)
	if err != nil {
		return goerr.Wrap(err, "failed to encode messages", goerr.V(model.ThreadIDKey, cp.ThreadID))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var latest int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(step_seq), 0) FROM checkpoints WHERE thread_id = ?`,
		string(cp.ThreadID)).Scan(&latest); err != nil {
		return goerr.Wrap(err, "failed to read latest step", goerr.V(model.ThreadIDKey, cp.ThreadID))
	}
	if cp.StepSeq != latest+1 {
		return goerr.Wrap(model.ErrCheckpointConflict, "unexpected step sequence",
			goerr.V(model.ThreadIDKey, cp.ThreadID),
			goerr.V(model.StepSeqKey, cp.StepSeq),
			goerr.V("expected", latest+1))
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO checkpoints
		(thread_id, step_seq, messages, tokens_used, state, step, abort_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(cp.ThreadID), cp.StepSeq, string(messages), cp.TokensUsed, string(cp.State), cp.Step,
		string(cp.AbortReason), formatTime(cp.CreatedAt)); err != nil {
		return goerr.Wrap(err, "failed to insert checkpoint",
			goerr.V(model.ThreadIDKey, cp.ThreadID), goerr.V(model.StepSeqKey, cp.StepSeq))
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit checkpoint")
	}
	return nil
}

const checkpointColumns = `thread_id, step_seq, messages, tokens_used, state, step, abort_reason, created_at`

func (s *checkpointStore) Latest(ctx context.Context, threadID model.ThreadID) (*model.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints
		WHERE thread_id = ? ORDER BY step_seq DESC LIMIT 1`, string(threadID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query latest checkpoint", goerr.V(model.ThreadIDKey, threadID))
	}
	cps, err := scanCheckpoints(rows)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, nil
	}
	return cps[0], nil
}

func (s *checkpointStore) List(ctx context.Context, threadID model.ThreadID) ([]*model.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints
		WHERE thread_id = ? ORDER BY step_seq ASC`, string(threadID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list checkpoints", goerr.V(model.ThreadIDKey, threadID))
	}
	cps, err := scanCheckpoints(rows)
	if err != nil {
		return nil, err
	}
	if cps == nil {
		cps = []*model.Checkpoint{}
	}
	return cps, nil
}

func (s *checkpointStore) Delete(ctx context.Context, threadID model.ThreadID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, string(threadID)); err != nil {
		return goerr.Wrap(err, "failed to delete checkpoints", goerr.V(model.ThreadIDKey, threadID))
	}
	return nil
}

func scanCheckpoints(rows *sql.Rows) ([]*model.Checkpoint, error) {
	defer func() { _ = rows.Close() }()

	var result []*model.Checkpoint
	for rows.Next() {
		var (
			cp        model.Checkpoint
			threadID  string
			state     string
			reason    string
			messages  string
			createdAt string
		)
		if err := rows.Scan(&threadID, &cp.StepSeq, &messages, &cp.TokensUsed, &state, &cp.Step,
			&reason, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan checkpoint")
		}

		if err := json.Unmarshal([]byte(messages), &cp.Messages); err != nil {
			return nil, goerr.Wrap(model.ErrCorruptCheckpoint, "failed to decode messages",
				goerr.V(model.ThreadIDKey, threadID), goerr.V(model.StepSeqKey, cp.StepSeq), goerr.V("cause", err.Error()))
		}
		ts, err := parseTime(createdAt)
		if err != nil {
			return nil, goerr.Wrap(model.ErrCorruptCheckpoint, "failed to decode created_at",
				goerr.V(model.ThreadIDKey, threadID), goerr.V(model.StepSeqKey, cp.StepSeq))
		}

		cp.ThreadID = model.ThreadID(threadID)
		cp.State = types.StateTag(state)
		cp.AbortReason = types.AbortReason(reason)
		cp.CreatedAt = ts
		result = append(result, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate checkpoints")
	}
	return result, nil
}
