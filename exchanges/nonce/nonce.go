package nonce

import "sync"

// Ladder tracks the highest accepted nonce per api key. A nonce is accepted
// only when strictly greater than every nonce accepted for that key before
// it; check and update happen under one lock so two interleaved requests
// carrying the same nonce produce exactly one acceptance.
type Ladder struct {
	mu   sync.Mutex
	seen map[string]int64
}

// NewLadder returns an empty nonce ladder
func NewLadder() *Ladder {
	return &Ladder{seen: make(map[string]int64)}
}

// Check accepts nonce for key when it exceeds the previous accepted value,
// recording it as the new high-water mark. It returns the previous value and
// whether the nonce was accepted. Keys start at zero, so the first nonce of
// a key must be positive.
func (l *Ladder) Check(key string, nonce int64) (prev int64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev = l.seen[key]
	if nonce <= prev {
		return prev, false
	}
	l.seen[key] = nonce
	return prev, true
}

// Get returns the highest accepted nonce for key
func (l *Ladder) Get(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[key]
}
