// Package entropy draws seeds for runs whose scenario leaves the seed unset.
// The drawn seed is recorded in the run report so the run can be replayed.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"
)

// Seed returns a positive random seed from crypto/rand, falling back to the
// wall clock if the system source fails.
func Seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand unavailable, seeding from clock", "error", err)
		return clockSeed(time.Now())
	}
	return positive(int64(binary.LittleEndian.Uint64(buf[:]) >> 1))
}

func clockSeed(t time.Time) int64 {
	return positive(t.UnixNano() & (1<<63 - 1))
}

// positive maps 0 to 1 so the result never reads as "unset".
func positive(n int64) int64 {
	if n == 0 {
		return 1
	}
	return n
}
