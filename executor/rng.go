package executor

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
)

// RNG supplies the randomness behind stochastic order execution. It is an
// interface so tests can inject deterministic sequences.
type RNG interface {
	// Float64 returns a uniform draw from [0, 1)
	Float64() float64
	// ExpFloat64 returns an exponential draw with mean 1
	ExpFloat64() float64
}

// lockedRNG guards a math/rand source for use from concurrent request
// handlers.
type lockedRNG struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRNG returns a concurrency-safe RNG seeded from crypto-grade entropy
func NewRNG() RNG {
	var seed [8]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic(err)
	}
	return &lockedRNG{
		r: rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:])))),
	}
}

func (l *lockedRNG) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRNG) ExpFloat64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.ExpFloat64()
}
