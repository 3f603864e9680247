package ledger

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand"
	"sync"
)

// Chance is the randomness source behind wager outcomes.
type Chance interface {
	Float64() float64
}

type lockedRand struct {
	mu   sync.Mutex
	rand *mathrand.Rand
}

// NewChance returns a Chance seeded with seed. The same seed replays the same
// outcomes.
func NewChance(seed int64) Chance {
	return &lockedRand{rand: mathrand.New(mathrand.NewSource(seed))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// NewSeed draws a seed from crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// FixedChance always returns the same value.
type FixedChance float64

func (f FixedChance) Float64() float64 {
	return float64(f)
}
