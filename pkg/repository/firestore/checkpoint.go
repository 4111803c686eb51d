package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// threadDoc is the head of a thread's checkpoint log
type threadDoc struct {
	LatestStepSeq int64     `firestore:"LatestStepSeq"`
	UpdatedAt     time.Time `firestore:"UpdatedAt"`
}

// checkpointDoc stores messages as JSON so the tagged union survives round trips unchanged
type checkpointDoc struct {
	ThreadID    string    `firestore:"ThreadID"`
	StepSeq     int64     `firestore:"StepSeq"`
	Messages    string    `firestore:"Messages"`
	TokensUsed  int64     `firestore:"TokensUsed"`
	State       string    `firestore:"State"`
	Step        int64     `firestore:"Step"`
	AbortReason string    `firestore:"AbortReason"`
	CreatedAt   time.Time `firestore:"CreatedAt"`
}

type checkpointStore struct {
	client           *firestore.Client
	collectionPrefix string
}

func newCheckpointStore(client *firestore.Client) *checkpointStore {
	return &checkpointStore{client: client}
}

func (s *checkpointStore) threadRef(threadID model.ThreadID) *firestore.DocumentRef {
	return s.client.Collection(collectionName(s.collectionPrefix, "threads")).Doc(string(threadID))
}

func (s *checkpointStore) checkpoints(threadID model.ThreadID) *firestore.CollectionRef {
	return s.threadRef(threadID).Collection("checkpoints")
}

// stepDocID keeps lexical order equal to numeric order
func stepDocID(seq int64) string {
	return fmt.Sprintf("%012d", seq)
}

func (s *checkpointStore) Append(ctx context.Context, cp *model.Checkpoint) error {
	if cp == nil {
		return goerr.New("checkpoint is nil")
	}

	messages, err := json.Marshal(cp.Messages)
	if err != nil {
		return goerr.Wrap(err, "failed to encode messages", goerr.V(model.ThreadIDKey, cp.ThreadID))
	}
	doc := &checkpointDoc{
		ThreadID:    string(cp.ThreadID),
		StepSeq:     cp.StepSeq,
		Messages:    string(messages),
		TokensUsed:  cp.TokensUsed,
		State:       string(cp.State),
		Step:        int64(cp.Step),
		AbortReason: string(cp.AbortReason),
		CreatedAt:   cp.CreatedAt,
	}

	headRef := s.threadRef(cp.ThreadID)
	cpRef := s.checkpoints(cp.ThreadID).Doc(stepDocID(cp.StepSeq))

	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var latest int64
		snap, err := tx.Get(headRef)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get thread head")
			}
		} else {
			var head threadDoc
			if err := snap.DataTo(&head); err != nil {
				return goerr.Wrap(err, "failed to unmarshal thread head")
			}
			latest = head.LatestStepSeq
		}

		if cp.StepSeq != latest+1 {
			return goerr.Wrap(model.ErrCheckpointConflict, "unexpected step sequence",
				goerr.V(model.ThreadIDKey, cp.ThreadID),
				goerr.V(model.StepSeqKey, cp.StepSeq),
				goerr.V("expected", latest+1))
		}

		if err := tx.Create(cpRef, doc); err != nil {
			return goerr.Wrap(err, "failed to create checkpoint")
		}
		return tx.Set(headRef, &threadDoc{LatestStepSeq: cp.StepSeq, UpdatedAt: time.Now().UTC()})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to append checkpoint",
			goerr.V(model.ThreadIDKey, cp.ThreadID), goerr.V(model.StepSeqKey, cp.StepSeq))
	}
	return nil
}

func (s *checkpointStore) Latest(ctx context.Context, threadID model.ThreadID) (*model.Checkpoint, error) {
	iter := s.checkpoints(threadID).OrderBy("StepSeq", firestore.Desc).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get latest checkpoint", goerr.V(model.ThreadIDKey, threadID))
	}
	return decodeCheckpoint(doc)
}

func (s *checkpointStore) List(ctx context.Context, threadID model.ThreadID) ([]*model.Checkpoint, error) {
	iter := s.checkpoints(threadID).OrderBy("StepSeq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	result := make([]*model.Checkpoint, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate checkpoints", goerr.V(model.ThreadIDKey, threadID))
		}
		cp, err := decodeCheckpoint(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	return result, nil
}

func (s *checkpointStore) Delete(ctx context.Context, threadID model.ThreadID) error {
	iter := s.checkpoints(threadID).Documents(ctx)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate checkpoints for deletion", goerr.V(model.ThreadIDKey, threadID))
		}
		refs = append(refs, doc.Ref)
	}
	refs = append(refs, s.threadRef(threadID))

	// Use BulkWriter which automatically handles batching
	bulkWriter := s.client.BulkWriter(ctx)
	defer bulkWriter.End()

	for _, ref := range refs {
		if _, err := bulkWriter.Delete(ref); err != nil {
			return goerr.Wrap(err, "failed to add Delete operation to bulk writer", goerr.V(model.ThreadIDKey, threadID))
		}
	}

	// Flush and wait for all operations to complete
	bulkWriter.Flush()

	return nil
}

func decodeCheckpoint(doc *firestore.DocumentSnapshot) (*model.Checkpoint, error) {
	var d checkpointDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(model.ErrCorruptCheckpoint, "failed to unmarshal checkpoint",
			goerr.V("doc", doc.Ref.Path), goerr.V("cause", err.Error()))
	}

	cp := &model.Checkpoint{
		ThreadID:    model.ThreadID(d.ThreadID),
		StepSeq:     d.StepSeq,
		TokensUsed:  d.TokensUsed,
		State:       types.StateTag(d.State),
		Step:        int(d.Step),
		AbortReason: types.AbortReason(d.AbortReason),
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(d.Messages), &cp.Messages); err != nil {
		return nil, goerr.Wrap(model.ErrCorruptCheckpoint, "failed to decode messages",
			goerr.V(model.ThreadIDKey, d.ThreadID), goerr.V(model.StepSeqKey, d.StepSeq), goerr.V("cause", err.Error()))
	}
	return cp, nil
}
