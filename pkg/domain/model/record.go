package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

// Record is a raw customer review. It is immutable once ingested.
type Record struct {
	ID        string
	Group     types.GroupTag
	Rating    int // 1..5, 0 means missing
	Timestamp time.Time
	Title     string
	Body      string
	Author    string
	Country   string
}

// Validate checks the fields every chunk derivation depends on
func (r *Record) Validate() error {
	if r.ID == "" {
		return goerr.Wrap(ErrMalformedRecord, "record id is required")
	}
	if err := r.Group.Validate(); err != nil {
		return goerr.Wrap(ErrMalformedRecord, "invalid group tag",
			goerr.V(RecordIDKey, r.ID), goerr.V("cause", err.Error()))
	}
	if r.Rating == 0 {
		return goerr.Wrap(ErrMalformedRecord, "rating is required", goerr.V(RecordIDKey, r.ID))
	}
	if r.Rating < 1 || r.Rating > 5 {
		return goerr.Wrap(ErrMalformedRecord, "rating must be between 1 and 5",
			goerr.V(RecordIDKey, r.ID), goerr.V("rating", r.Rating))
	}
	if strings.TrimSpace(r.Body) == "" {
		return goerr.Wrap(ErrMalformedRecord, "body is required", goerr.V(RecordIDKey, r.ID))
	}
	return nil
}

// GroupStat is a registered group with its record count
type GroupStat struct {
	Group   types.GroupTag
	Records int
}
