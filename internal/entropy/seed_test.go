package entropy

import (
	"testing"
	"time"
)

func TestSeed_PositiveAndVaried(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 16; i++ {
		s := Seed()
		if s <= 0 {
			t.Fatalf("seed=%d want>0", s)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Fatalf("seeds never varied: %v", seen)
	}
}

func TestClockSeed(t *testing.T) {
	if got := clockSeed(time.Unix(0, 0)); got != 1 {
		t.Fatalf("clockSeed(epoch)=%d want=1", got)
	}
	if got := clockSeed(time.Unix(0, 42)); got != 42 {
		t.Fatalf("clockSeed=%d want=42", got)
	}
}
