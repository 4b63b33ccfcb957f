package app

import (
	"hash/fnv"
	"sync"
)

const stripeCount = 64

// stripedMutex serializes work per key without a map of locks.
// Distinct keys may share a stripe; that only costs concurrency.
type stripedMutex struct {
	mu [stripeCount]sync.Mutex
}

func (s *stripedMutex) lock(key string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &s.mu[h.Sum32()%stripeCount]
	m.Lock()
	return m.Unlock
}
