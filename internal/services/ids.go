package services

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// NewID returns a random 64-bit identifier folded from a v4 UUID. Zero and
// MaxUint64 are never returned; both are reserved.
func NewID() uint64 {
	for {
		u := uuid.New()
		id := binary.BigEndian.Uint64(u[:8]) ^ binary.BigEndian.Uint64(u[8:])
		if id != 0 && id != math.MaxUint64 {
			return id
		}
	}
}
