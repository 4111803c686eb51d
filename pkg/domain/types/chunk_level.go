package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// ChunkLevel is the granularity of an indexed chunk
type ChunkLevel string

const (
	// ChunkLevelCoarse is a whole record (title and body)
	ChunkLevelCoarse ChunkLevel = "coarse"
	// ChunkLevelFine is a single sentence of a record body
	ChunkLevelFine ChunkLevel = "fine"
)

// ParseChunkLevel accepts the canonical names plus the "review" / "sentence" aliases used by tools
func ParseChunkLevel(s string) (ChunkLevel, error) {
	switch s {
	case "coarse", "review", "full":
		return ChunkLevelCoarse, nil
	case "fine", "sentence", "":
		return ChunkLevelFine, nil
	default:
		return "", goerr.New("unknown chunk level", goerr.V("level", s))
	}
}

// Validate checks if the ChunkLevel is valid
func (l ChunkLevel) Validate() error {
	switch l {
	case ChunkLevelCoarse, ChunkLevelFine:
		return nil
	default:
		return goerr.New("invalid chunk level", goerr.V("level", l))
	}
}

// String returns the string representation of ChunkLevel
func (l ChunkLevel) String() string {
	return string(l)
}
