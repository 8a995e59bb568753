package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrConfiguration means a required collaborator or scenario element is
	// missing. The operation has no effect.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidInput means a caller-supplied value was rejected.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSpawnCapacity means no navigable spawn point was found within the
	// attempt budget.
	ErrSpawnCapacity = errors.New("spawn capacity exhausted")
)

// SpawnError reports a spawn batch that stopped early.
type SpawnError struct {
	Requested int
	Spawned   int
	Attempts  int // Attempt budget per agent
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawned %d of %d agents: no navigable point after %d attempts", e.Spawned, e.Requested, e.Attempts)
}

func (e *SpawnError) Unwrap() error { return ErrSpawnCapacity }

// ParseSpawnCount parses a user-entered agent count.
func ParseSpawnCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: spawn count %q is not a number", ErrInvalidInput, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: spawn count must be positive, got %d", ErrInvalidInput, n)
	}
	return n, nil
}
