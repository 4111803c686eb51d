package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

func TestRecord_Validate(t *testing.T) {
	valid := func() *model.Record {
		return &model.Record{ID: "ovh_1", Group: "ovh", Rating: 5, Body: "Great value."}
	}

	tests := []struct {
		name    string
		mutate  func(r *model.Record)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *model.Record) {}},
		{name: "missing id", mutate: func(r *model.Record) { r.ID = "" }, wantErr: true},
		{name: "missing rating", mutate: func(r *model.Record) { r.Rating = 0 }, wantErr: true},
		{name: "rating out of range", mutate: func(r *model.Record) { r.Rating = 6 }, wantErr: true},
		{name: "blank body", mutate: func(r *model.Record) { r.Body = "  \n" }, wantErr: true},
		{name: "invalid group", mutate: func(r *model.Record) { r.Group = "OVH" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate()
			if !tt.wantErr {
				gt.NoError(t, err)
				return
			}
			gt.Error(t, err).Is(model.ErrMalformedRecord)
		})
	}
}

func TestFineChunkID(t *testing.T) {
	gt.Value(t, model.FineChunkID("ovh_3", 0)).Equal("ovh_3_s0")
	gt.Value(t, model.FineChunkID("ovh_3", 12)).Equal("ovh_3_s12")
}

func TestChunk_Copy(t *testing.T) {
	pos := 2
	orig := &model.Chunk{ID: "a_s2", Position: &pos, Embedding: []float32{1, 2}}
	copied := orig.Copy()
	*copied.Position = 9
	copied.Embedding[0] = 42

	gt.Value(t, *orig.Position).Equal(2)
	gt.Value(t, orig.Embedding[0]).Equal(float32(1))
}

func TestIndexFilter_Match(t *testing.T) {
	c := &model.Chunk{ID: "x", Level: "fine", Group: "ovh"}
	gt.Bool(t, model.IndexFilter{}.Match(c)).True()
	gt.Bool(t, model.IndexFilter{Level: "fine", Group: "ovh"}.Match(c)).True()
	gt.Bool(t, model.IndexFilter{Level: "coarse"}.Match(c)).False()
	gt.Bool(t, model.IndexFilter{Group: "hetzner"}.Match(c)).False()
}

func TestCosineSimilarity(t *testing.T) {
	gt.Value(t, model.CosineSimilarity([]float32{1, 0}, []float32{1, 0})).Equal(1.0)
	gt.Value(t, model.CosineSimilarity([]float32{1, 0}, []float32{0, 1})).Equal(0.0)
	gt.Value(t, model.CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})).Equal(0.0)
	gt.Value(t, model.CosineSimilarity([]float32{0, 0}, []float32{1, 0})).Equal(0.0)
}
